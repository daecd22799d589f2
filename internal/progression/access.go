package progression

// Access is the resolved state of one unit in an ordered list.
type Access struct {
	UnitID     string `json:"unit_id"`
	Accessible bool   `json:"accessible"`
	Completed  bool   `json:"completed"`
	// Current marks the single unlocked incomplete unit, if any.
	Current bool `json:"current"`
	// LineCompleted drives the progress trail drawn between units.
	LineCompleted bool `json:"line_completed"`
}

// AccessMap is the accessibility of an ordered unit list. It is a value and
// is never cached across response changes.
type AccessMap struct {
	Units []Access `json:"units"`
	// FirstIncomplete is len(Units) when every unit is complete.
	FirstIncomplete int `json:"first_incomplete"`
}

// ComputeAccessibility resolves which units a learner may open, using the
// persisted completion marker.
func ComputeAccessibility(units []Unit, src Source) AccessMap {
	return ResolveAccess(units, Evaluate(MarkerPredicate{}, units, src))
}

// ResolveAccess unlocks every completed unit plus the first incomplete one.
// done must be parallel to units.
func ResolveAccess(units []Unit, done []bool) AccessMap {
	first := FirstIncomplete(done)
	out := AccessMap{
		Units:           make([]Access, len(units)),
		FirstIncomplete: first,
	}
	for i, u := range units {
		out.Units[i] = Access{
			UnitID:        u.ID,
			Completed:     done[i],
			Accessible:    done[i] || i == first,
			Current:       i == first,
			LineCompleted: i < first || (i == first && done[i]),
		}
	}
	return out
}

// FirstIncomplete returns the index of the first false entry, or len(done).
func FirstIncomplete(done []bool) int {
	for i, d := range done {
		if !d {
			return i
		}
	}
	return len(done)
}

// Accessible looks a unit up by id. Unknown ids are locked.
func (m AccessMap) Accessible(unitID string) bool {
	for _, a := range m.Units {
		if a.UnitID == unitID {
			return a.Accessible
		}
	}
	return false
}

// ByID flattens the map to unit id -> accessible.
func (m AccessMap) ByID() map[string]bool {
	out := make(map[string]bool, len(m.Units))
	for _, a := range m.Units {
		out[a.UnitID] = a.Accessible
	}
	return out
}

// Flags returns the accessible flags in list order.
func (m AccessMap) Flags() []bool {
	out := make([]bool, len(m.Units))
	for i, a := range m.Units {
		out[i] = a.Accessible
	}
	return out
}

package progression

// Predicate decides whether a unit counts as complete.
type Predicate interface {
	Complete(u Unit, b Bundle) bool
}

// SubmittedSet answers whether a unit was submitted in the current session.
type SubmittedSet interface {
	Submitted(unitID string) bool
}

// MarkerPredicate is the persisted notion of completion: a submodule is done
// once its bundle carries the completion marker. Intermediate answers do not
// matter.
type MarkerPredicate struct{}

func (MarkerPredicate) Complete(_ Unit, b Bundle) bool {
	return b.HasMarker()
}

// SubmissionPredicate is the session notion of completion used for deck
// gating. A gated slide is complete only after it was submitted in this
// session, whatever the store holds; ungated slides never block.
type SubmissionPredicate struct {
	Set SubmittedSet
}

func (p SubmissionPredicate) Complete(u Unit, _ Bundle) bool {
	if !u.Gated() {
		return true
	}
	return p.Set != nil && p.Set.Submitted(u.ID)
}

// PredicateFor picks the completion rule for a unit kind.
func PredicateFor(kind Kind, set SubmittedSet) Predicate {
	if kind == KindSlide {
		return SubmissionPredicate{Set: set}
	}
	return MarkerPredicate{}
}

// Evaluate runs pred over units in order. A unit with no bundle in src is
// judged against an empty bundle.
func Evaluate(pred Predicate, units []Unit, src Source) []bool {
	done := make([]bool, len(units))
	for i, u := range units {
		var b Bundle
		if src != nil {
			b, _ = src.Bundle(u.ID)
		}
		done[i] = pred.Complete(u, b)
	}
	return done
}

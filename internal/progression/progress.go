package progression

// Snapshot is the derived progress of a unit list.
type Snapshot struct {
	CompletedCount int `json:"completed_count"`
	TotalCount     int `json:"total_count"`
	Percentage     int `json:"percentage"`
}

// Done reports whether every unit is complete. An empty list is not done.
func (s Snapshot) Done() bool {
	return s.TotalCount > 0 && s.CompletedCount == s.TotalCount
}

// ComputeProgress counts units carrying the completion marker.
func ComputeProgress(units []Unit, src Source) Snapshot {
	return SnapshotOf(Evaluate(MarkerPredicate{}, units, src))
}

// SnapshotOf builds a snapshot from per-unit completion flags.
func SnapshotOf(done []bool) Snapshot {
	completed := 0
	for _, d := range done {
		if d {
			completed++
		}
	}
	return Snapshot{
		CompletedCount: completed,
		TotalCount:     len(done),
		Percentage:     Percentage(completed, len(done)),
	}
}

// Percentage rounds 100*completed/total half-up. 100 is reserved for a fully
// complete list, so 199 of 200 reports 99.
func Percentage(completed, total int) int {
	if total <= 0 || completed <= 0 {
		return 0
	}
	if completed >= total {
		return 100
	}
	pct := (200*completed + total) / (2 * total)
	if pct >= 100 {
		pct = 99
	}
	return pct
}

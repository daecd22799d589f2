package progression_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/p-n-ai/pai-learn/internal/progression"
)

func submodules(n int) []progression.Unit {
	units := make([]progression.Unit, n)
	for i := range units {
		units[i] = progression.Unit{
			ID:       fmt.Sprintf("sub-%d", i),
			Position: i,
			Kind:     progression.KindSubmodule,
		}
	}
	return units
}

func marked(units []progression.Unit, idx ...int) progression.ResponseMap {
	m := progression.ResponseMap{}
	for _, i := range idx {
		m[units[i].ID] = progression.Bundle{progression.MarkerField: progression.Text("true")}
	}
	return m
}

func TestComputeProgress_HalfComplete(t *testing.T) {
	units := submodules(6)
	src := marked(units, 0, 1, 2)

	got := progression.ComputeProgress(units, src)
	want := progression.Snapshot{CompletedCount: 3, TotalCount: 6, Percentage: 50}
	if got != want {
		t.Errorf("ComputeProgress() = %+v, want %+v", got, want)
	}

	access := progression.ComputeAccessibility(units, src)
	if access.FirstIncomplete != 3 {
		t.Errorf("FirstIncomplete = %d, want 3", access.FirstIncomplete)
	}
}

func TestComputeProgress_AllComplete(t *testing.T) {
	units := submodules(5)
	src := marked(units, 0, 1, 2, 3, 4)

	snap := progression.ComputeProgress(units, src)
	if snap.Percentage != 100 {
		t.Errorf("Percentage = %d, want 100", snap.Percentage)
	}
	if !snap.Done() {
		t.Error("Done() should be true when every submodule is complete")
	}

	access := progression.ComputeAccessibility(units, src)
	want := []bool{true, true, true, true, true}
	if got := access.Flags(); !reflect.DeepEqual(got, want) {
		t.Errorf("Flags() = %v, want %v", got, want)
	}
	for _, a := range access.Units {
		if a.Current {
			t.Errorf("unit %s should not be current when all are complete", a.UnitID)
		}
	}
}

func TestComputeProgress_Empty(t *testing.T) {
	snap := progression.ComputeProgress(nil, progression.ResponseMap{})
	if snap != (progression.Snapshot{}) {
		t.Errorf("ComputeProgress(nil) = %+v, want zero snapshot", snap)
	}

	access := progression.ComputeAccessibility(nil, nil)
	if len(access.Units) != 0 || len(access.ByID()) != 0 {
		t.Errorf("ComputeAccessibility(nil) should be empty, got %+v", access)
	}
}

func TestComputeProgress_IntermediateAnswersIgnored(t *testing.T) {
	units := submodules(2)
	src := progression.ResponseMap{
		"sub-0": {"q1": progression.Text("42"), "q2": progression.Choices("a", "b")},
	}

	snap := progression.ComputeProgress(units, src)
	if snap.CompletedCount != 0 {
		t.Errorf("CompletedCount = %d, want 0 (answers without marker)", snap.CompletedCount)
	}
}

func TestComputeProgress_BlankMarkerIsIncomplete(t *testing.T) {
	units := submodules(1)
	src := progression.ResponseMap{"sub-0": {progression.MarkerField: progression.Text("  ")}}

	if snap := progression.ComputeProgress(units, src); snap.CompletedCount != 0 {
		t.Errorf("CompletedCount = %d, want 0 for blank marker", snap.CompletedCount)
	}
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		name      string
		completed int
		total     int
		want      int
	}{
		{"empty", 0, 0, 0},
		{"none", 0, 4, 0},
		{"half", 3, 6, 50},
		{"third", 1, 3, 33},
		{"two thirds", 2, 3, 67},
		{"eighth rounds half up", 1, 8, 13},
		{"all", 4, 4, 100},
		{"almost all stays below 100", 199, 200, 99},
		{"one of many rounds to 1", 1, 150, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := progression.Percentage(tt.completed, tt.total); got != tt.want {
				t.Errorf("Percentage(%d, %d) = %d, want %d", tt.completed, tt.total, got, tt.want)
			}
		})
	}
}

func TestPercentage_Bounds(t *testing.T) {
	for total := 0; total <= 60; total++ {
		for completed := 0; completed <= total; completed++ {
			got := progression.Percentage(completed, total)
			if got < 0 || got > 100 {
				t.Fatalf("Percentage(%d, %d) = %d, out of [0,100]", completed, total, got)
			}
			if (got == 100) != (total > 0 && completed == total) {
				t.Fatalf("Percentage(%d, %d) = %d, 100 must mean complete", completed, total, got)
			}
		}
	}
}

func TestComputeAccessibility_SequentialUnlock(t *testing.T) {
	units := submodules(6)

	// Every subset of completed units over 6 positions.
	for mask := 0; mask < 1<<len(units); mask++ {
		var idx []int
		for i := range units {
			if mask&(1<<i) != 0 {
				idx = append(idx, i)
			}
		}
		access := progression.ComputeAccessibility(units, marked(units, idx...))
		first := access.FirstIncomplete

		for i, a := range access.Units {
			if i <= first && !a.Accessible {
				t.Fatalf("mask %06b: unit %d locked but at or before first incomplete %d", mask, i, first)
			}
			if i > first && !a.Completed && a.Accessible {
				t.Fatalf("mask %06b: unit %d unlocked past first incomplete %d", mask, i, first)
			}
			if a.Accessible != (a.Completed || i == first) {
				t.Fatalf("mask %06b: unit %d accessible=%v completed=%v", mask, i, a.Accessible, a.Completed)
			}
		}
	}
}

func TestComputeAccessibility_CompletedBeyondFrontierStayOpen(t *testing.T) {
	units := submodules(4)
	access := progression.ComputeAccessibility(units, marked(units, 0, 2))

	want := []bool{true, true, true, false}
	if got := access.Flags(); !reflect.DeepEqual(got, want) {
		t.Errorf("Flags() = %v, want %v", got, want)
	}
	if access.FirstIncomplete != 1 {
		t.Errorf("FirstIncomplete = %d, want 1", access.FirstIncomplete)
	}
}

func TestComputeAccessibility_LineCompleted(t *testing.T) {
	units := submodules(4)
	access := progression.ComputeAccessibility(units, marked(units, 0, 1, 3))

	want := []bool{true, true, false, false}
	for i, a := range access.Units {
		if a.LineCompleted != want[i] {
			t.Errorf("unit %d LineCompleted = %v, want %v", i, a.LineCompleted, want[i])
		}
	}
	if !access.Units[2].Current {
		t.Error("unit 2 should be current")
	}
}

func TestComputeAccessibility_MissingBundlesAreIncomplete(t *testing.T) {
	units := submodules(3)
	src := progression.ResponseMap{"unrelated": {progression.MarkerField: progression.Text("true")}}

	access := progression.ComputeAccessibility(units, src)
	if access.FirstIncomplete != 0 {
		t.Errorf("FirstIncomplete = %d, want 0", access.FirstIncomplete)
	}
	if access.Accessible("sub-1") {
		t.Error("sub-1 should be locked")
	}
	if access.Accessible("nope") {
		t.Error("unknown unit should be locked")
	}
}

func TestFirstIncomplete_Monotonic(t *testing.T) {
	units := submodules(5)
	src := progression.ResponseMap{}

	prev := progression.ComputeAccessibility(units, src).FirstIncomplete
	// Complete units in an arbitrary order; the frontier never moves back.
	for _, i := range []int{3, 0, 4, 1, 2} {
		src[units[i].ID] = progression.Bundle{progression.MarkerField: progression.Text("true")}
		next := progression.ComputeAccessibility(units, src).FirstIncomplete
		if next < prev {
			t.Fatalf("FirstIncomplete went from %d to %d after completing %d", prev, next, i)
		}
		prev = next
	}
	if prev != len(units) {
		t.Errorf("FirstIncomplete = %d, want %d", prev, len(units))
	}
}

func TestSubmissionPredicate(t *testing.T) {
	gated := progression.Unit{
		ID:               "quiz",
		Kind:             progression.KindSlide,
		RequiresResponse: true,
		RequiredFields:   []string{"q1"},
	}
	static := progression.Unit{ID: "intro", Kind: progression.KindSlide}
	persistNoFields := progression.Unit{ID: "poll", Kind: progression.KindSlide, RequiresResponse: true}

	set := submittedSet{"other": true}
	pred := progression.PredicateFor(progression.KindSlide, set)

	// A stored marker does not count for session gating.
	bundle := progression.Bundle{progression.MarkerField: progression.Text("true"), "q1": progression.Text("x")}
	if pred.Complete(gated, bundle) {
		t.Error("gated slide should be incomplete until submitted this session")
	}
	if !pred.Complete(static, nil) {
		t.Error("static slide should always be complete")
	}
	if !pred.Complete(persistNoFields, nil) {
		t.Error("slide without required fields should always be complete")
	}

	set["quiz"] = true
	if !pred.Complete(gated, nil) {
		t.Error("gated slide should be complete once submitted")
	}
}

func TestPredicateFor_Submodule(t *testing.T) {
	pred := progression.PredicateFor(progression.KindSubmodule, nil)
	if _, ok := pred.(progression.MarkerPredicate); !ok {
		t.Errorf("PredicateFor(submodule) = %T, want MarkerPredicate", pred)
	}
}

func TestValidateUnits(t *testing.T) {
	tests := []struct {
		name  string
		units []progression.Unit
		want  error
	}{
		{"empty", nil, progression.ErrEmptyUnitList},
		{"blank id", []progression.Unit{{ID: ""}}, progression.ErrMalformedUnit},
		{"duplicate", []progression.Unit{{ID: "a"}, {ID: "a"}}, progression.ErrDuplicateUnit},
		{"valid", submodules(3), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := progression.ValidateUnits(tt.units)
			if !errors.Is(err, tt.want) {
				t.Errorf("ValidateUnits() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValue_JSON(t *testing.T) {
	var b progression.Bundle
	if err := json.Unmarshal([]byte(`{"q1":"x","q2":["a","b"],"q3":[]}`), &b); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if b["q1"].Multi || b["q1"].Text != "x" {
		t.Errorf("q1 = %+v, want single text x", b["q1"])
	}
	if !b["q2"].Multi || len(b["q2"].Choices) != 2 {
		t.Errorf("q2 = %+v, want two choices", b["q2"])
	}
	if !b["q3"].Empty() {
		t.Error("q3 should be empty")
	}

	if err := json.Unmarshal([]byte(`{"q1":3}`), &b); err == nil {
		t.Error("Unmarshal() should reject a number value")
	}
}

func TestBundle_Missing(t *testing.T) {
	b := progression.Bundle{
		"q1": progression.Text("answer"),
		"q2": progression.Text(" "),
		"q3": progression.Choices("", "b"),
	}
	got := b.Missing([]string{"q1", "q2", "q3", "q4"})
	want := []string{"q2", "q4"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Missing() = %v, want %v", got, want)
	}
}

type submittedSet map[string]bool

func (s submittedSet) Submitted(id string) bool { return s[id] }

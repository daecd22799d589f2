package responses_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/p-n-ai/pai-learn/internal/progression"
	"github.com/p-n-ai/pai-learn/internal/responses"
)

func TestMemoryStore_SubmitAndGet(t *testing.T) {
	ctx := t.Context()
	store := responses.NewMemoryStore()

	err := store.Submit(ctx, "learner-1", "s0", progression.Bundle{
		"answer": progression.Text("  42 "),
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	b, err := store.Get(ctx, "learner-1", "s0")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if b["answer"].Text != "42" {
		t.Errorf("answer = %q, want 42", b["answer"].Text)
	}
}

func TestMemoryStore_GetMissing(t *testing.T) {
	store := responses.NewMemoryStore()

	_, err := store.Get(t.Context(), "learner-1", "s0")
	if !errors.Is(err, responses.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_SubmitMergesFields(t *testing.T) {
	ctx := t.Context()
	store := responses.NewMemoryStore()

	_ = store.Submit(ctx, "learner-1", "s0", progression.Bundle{"a": progression.Text("1"), "b": progression.Text("2")})
	_ = store.Submit(ctx, "learner-1", "s0", progression.Bundle{"b": progression.Text("3")})

	b, err := store.Get(ctx, "learner-1", "s0")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	want := progression.Bundle{"a": progression.Text("1"), "b": progression.Text("3")}
	if !reflect.DeepEqual(b, want) {
		t.Errorf("bundle = %v, want %v", b, want)
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := t.Context()
	store := responses.NewMemoryStore()
	_ = store.Submit(ctx, "learner-1", "s0", progression.Bundle{"a": progression.Text("1")})

	b, _ := store.Get(ctx, "learner-1", "s0")
	b["a"] = progression.Text("changed")

	again, _ := store.Get(ctx, "learner-1", "s0")
	if again["a"].Text != "1" {
		t.Error("mutating a returned bundle must not change the store")
	}
}

func TestMemoryStore_Snapshot(t *testing.T) {
	ctx := t.Context()
	store := responses.NewMemoryStore()
	_ = store.MarkComplete(ctx, "learner-1", "m1-s1")
	_ = store.Submit(ctx, "learner-2", "m1-s2", progression.Bundle{"x": progression.Text("y")})

	snap, err := store.Snapshot(ctx, "learner-1", []string{"m1-s1", "m1-s2", "m1-s3"})
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(snap) != 1 {
		t.Fatalf("len(snapshot) = %d, want 1 (sparse)", len(snap))
	}
	if !snap["m1-s1"].HasMarker() {
		t.Error("m1-s1 should carry the completion marker")
	}
}

func TestMemoryStore_RequiresKeys(t *testing.T) {
	ctx := t.Context()
	store := responses.NewMemoryStore()

	tests := []struct {
		name    string
		learner string
		unit    string
	}{
		{"missing learner", "", "s0"},
		{"missing unit", "learner-1", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := store.Submit(ctx, tt.learner, tt.unit, progression.Bundle{}); err == nil {
				t.Error("Submit() should fail")
			}
		})
	}
}

func TestMemoryStore_FeedsProgress(t *testing.T) {
	ctx := t.Context()
	store := responses.NewMemoryStore()
	units := []progression.Unit{
		{ID: "m1-s1", Position: 0, Kind: progression.KindSubmodule},
		{ID: "m1-s2", Position: 1, Kind: progression.KindSubmodule},
		{ID: "m1-s3", Position: 2, Kind: progression.KindSubmodule},
	}
	_ = store.MarkComplete(ctx, "learner-1", "m1-s1")
	_ = store.Submit(ctx, "learner-1", "m1-s2", progression.Bundle{"q1": progression.Text("draft")})

	snap, err := store.Snapshot(ctx, "learner-1", progression.IDs(units))
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	got := progression.ComputeProgress(units, snap)
	if got.CompletedCount != 1 || got.Percentage != 33 {
		t.Errorf("progress = %+v, want 1 of 3 at 33%%", got)
	}
}

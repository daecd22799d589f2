// Package progression decides completion, accessibility and progress for
// ordered lists of learning units (slides within a lesson, submodules within
// a module).
package progression

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyUnitList is returned when a unit list has no units.
	ErrEmptyUnitList = errors.New("unit list is empty")
	// ErrMalformedUnit is returned when a unit has no id.
	ErrMalformedUnit = errors.New("unit has empty id")
	// ErrDuplicateUnit is returned when two units in one list share an id.
	ErrDuplicateUnit = errors.New("duplicate unit id")
)

// Kind selects which completion rule applies to a unit.
type Kind int

const (
	KindSlide Kind = iota
	KindSubmodule
)

func (k Kind) String() string {
	switch k {
	case KindSlide:
		return "slide"
	case KindSubmodule:
		return "submodule"
	default:
		return "unknown"
	}
}

// ContentType tags slide content for the presentation layer. Nothing in this
// package switches on it.
type ContentType string

const (
	ContentInteractive ContentType = "interactive"
	ContentQuestion    ContentType = "question"
	ContentStatic      ContentType = "static"
)

// Unit is one item of an ordered progression.
type Unit struct {
	ID       string      `json:"id"`
	Position int         `json:"position"`
	Kind     Kind        `json:"kind"`
	Content  ContentType `json:"content,omitempty"`

	// RequiresResponse is set for question slides whose answers are persisted.
	RequiresResponse bool     `json:"requires_response_before_advance"`
	RequiredFields   []string `json:"required_field_ids,omitempty"`
}

// Gated reports whether forward navigation past this unit needs a recorded
// submission.
func (u Unit) Gated() bool {
	return u.Kind == KindSlide && u.RequiresResponse && len(u.RequiredFields) > 0
}

// ValidateUnits checks that a list can back a deck or a catalog view.
func ValidateUnits(units []Unit) error {
	if len(units) == 0 {
		return ErrEmptyUnitList
	}
	seen := make(map[string]struct{}, len(units))
	for i, u := range units {
		if u.ID == "" {
			return fmt.Errorf("unit %d: %w", i, ErrMalformedUnit)
		}
		if _, dup := seen[u.ID]; dup {
			return fmt.Errorf("unit %q: %w", u.ID, ErrDuplicateUnit)
		}
		seen[u.ID] = struct{}{}
	}
	return nil
}

// IDs returns unit ids in list order.
func IDs(units []Unit) []string {
	ids := make([]string, len(units))
	for i, u := range units {
		ids[i] = u.ID
	}
	return ids
}

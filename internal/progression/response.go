package progression

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MarkerField is the bundle field recorded when a learner finishes a unit:
// reaching the end of a submodule, or submitting or passing a slide.
const MarkerField = "__completed"

// Value is a captured answer: a single string, or a list for multi-select.
type Value struct {
	Text    string
	Choices []string
	Multi   bool
}

// Text builds a single-string value.
func Text(s string) Value {
	return Value{Text: s}
}

// Choices builds a multi-select value.
func Choices(items ...string) Value {
	return Value{Choices: items, Multi: true}
}

// Empty reports whether the value carries no non-blank content.
func (v Value) Empty() bool {
	if !v.Multi {
		return strings.TrimSpace(v.Text) == ""
	}
	for _, c := range v.Choices {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.Multi {
		choices := v.Choices
		if choices == nil {
			choices = []string{}
		}
		return json.Marshal(choices)
	}
	return json.Marshal(v.Text)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = Text(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("response value must be a string or a list of strings: %w", err)
	}
	*v = Choices(list...)
	return nil
}

// Bundle holds every captured field of one unit, keyed by field id.
type Bundle map[string]Value

// HasMarker reports whether the completion marker was recorded.
func (b Bundle) HasMarker() bool {
	v, ok := b[MarkerField]
	return ok && !v.Empty()
}

// Missing returns the ids from required that have no non-empty value.
func (b Bundle) Missing(required []string) []string {
	var missing []string
	for _, id := range required {
		if v, ok := b[id]; !ok || v.Empty() {
			missing = append(missing, id)
		}
	}
	return missing
}

// Source is a read-only view of stored responses.
type Source interface {
	Bundle(unitID string) (Bundle, bool)
}

// ResponseMap is a sparse unit id -> bundle map; it is the usual Source.
type ResponseMap map[string]Bundle

func (m ResponseMap) Bundle(unitID string) (Bundle, bool) {
	b, ok := m[unitID]
	return b, ok
}

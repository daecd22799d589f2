package responses

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/p-n-ai/pai-learn/internal/progression"
)

// Normalize returns a copy of fields with every string trimmed and in NFC
// form, so equal answers typed on different keyboards compare equal. Blank
// entries of a multi-select value are dropped.
func Normalize(fields progression.Bundle) progression.Bundle {
	out := make(progression.Bundle, len(fields))
	for id, v := range fields {
		out[id] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v progression.Value) progression.Value {
	if !v.Multi {
		return progression.Text(normalizeString(v.Text))
	}
	choices := make([]string, 0, len(v.Choices))
	for _, c := range v.Choices {
		if c = normalizeString(c); c != "" {
			choices = append(choices, c)
		}
	}
	return progression.Choices(choices...)
}

func normalizeString(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

package entities

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Text is a free-text field that the catalog stores either as a single
// string or as a list of strings. Empty means "no known restriction".
type Text []string

// UnmarshalJSON accepts a JSON string, an array of strings or null.
func (t *Text) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*t = nil
		return nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("invalid text value: %w", err)
		}
		*t = NewText(s)
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("text must be a string or a list of strings: %w", err)
	}
	*t = NewText(list...)
	return nil
}

// NewText builds a Text dropping blank entries.
func NewText(values ...string) Text {
	var t Text
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			t = append(t, v)
		}
	}
	return t
}

// String joins the entries with "; ".
func (t Text) String() string {
	return strings.Join(t, "; ")
}

// IsEmpty reports whether the field carries no text.
func (t Text) IsEmpty() bool {
	return len(t) == 0
}

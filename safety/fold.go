package safety

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s and strips combining accents so that "HIPERTENSIÓN",
// "hipertensión" and "hipertension" compare equal.
func Fold(s string) string {
	if s == "" {
		return ""
	}

	// Transformers carry state, build a fresh chain per call.
	t := transform.Chain(
		cases.Lower(language.Und),
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)

	folded, _, err := transform.String(t, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return folded
}

// NameKey is the key herb names are matched on: trimmed and folded.
func NameKey(name string) string {
	return Fold(strings.TrimSpace(name))
}

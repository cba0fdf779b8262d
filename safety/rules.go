// Package safety cross-references a patient's active conditions against the
// free-text contraindication and caution fields of herbs and formulas.
//
// Matching is a case and accent insensitive substring search over a small,
// versioned table of markers. Results are advisory: the catalog text has no
// controlled vocabulary, so a miss does not mean the ingredient is safe.
package safety

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrInvalidRules is returned for a custom rule table that cannot be used.
var ErrInvalidRules = errors.New("invalid safety rules")

// Rule maps a condition key to the markers that signal it in catalog text
// and the messages reported on a hit.
type Rule struct {
	Key              string   `json:"key"`
	Markers          []string `json:"markers"`
	Contraindication string   `json:"contraindication"`
	Caution          string   `json:"caution"`
}

// RuleTable is an ordered, versioned set of rules. Evaluation follows the
// table order so results are deterministic.
type RuleTable struct {
	Version string `json:"version"`
	Rules   []Rule `json:"rules"`
}

// Condition keys known to the default table.
const (
	Pregnancy     = "pregnancy"
	Breastfeeding = "breastfeeding"
	Hypertension  = "hypertension"
	LiverDisease  = "liverDisease"
)

// DefaultRules is evaluated in this order: pregnancy, breastfeeding,
// hypertension, liverDisease. Markers are Spanish and English.
var DefaultRules = RuleTable{
	Version: "2",
	Rules: []Rule{
		{
			Key:              Pregnancy,
			Markers:          []string{"embarazo", "pregnancy"},
			Contraindication: "Contraindicated in pregnancy",
			Caution:          "Use with caution in pregnancy",
		},
		{
			Key:              Breastfeeding,
			Markers:          []string{"lactancia", "breastfeeding"},
			Contraindication: "Contraindicated during breastfeeding",
			Caution:          "Use with caution during breastfeeding",
		},
		{
			Key:              Hypertension,
			Markers:          []string{"hipertensión", "hypertension"},
			Contraindication: "Contraindicated in hypertension",
			Caution:          "Use with caution in hypertension",
		},
		{
			Key:              LiverDisease,
			Markers:          []string{"hepática", "hepatic", "hígado", "liver"},
			Contraindication: "Contraindicated in liver disease",
			Caution:          "Use with caution in liver disease",
		},
	},
}

// Keys returns the condition keys of the table in evaluation order.
func (t RuleTable) Keys() []string {
	keys := make([]string, len(t.Rules))
	for i, r := range t.Rules {
		keys[i] = r.Key
	}
	return keys
}

// Has reports whether key has a rule.
func (t RuleTable) Has(key string) bool {
	for _, r := range t.Rules {
		if r.Key == key {
			return true
		}
	}
	return false
}

// Validate checks a custom rule table: every rule needs a key, at least one
// marker and a message, and keys must be unique.
func (t RuleTable) Validate() error {
	keys := t.Keys()
	for i, r := range t.Rules {
		if strings.TrimSpace(r.Key) == "" {
			return fmt.Errorf("%w: rule %d has no key", ErrInvalidRules, i)
		}
		if slices.Contains(keys[:i], r.Key) {
			return fmt.Errorf("%w: duplicate key %q", ErrInvalidRules, r.Key)
		}
		markers := 0
		for _, m := range r.Markers {
			if Fold(strings.TrimSpace(m)) != "" {
				markers++
			}
		}
		if markers == 0 {
			return fmt.Errorf("%w: rule %q has no markers", ErrInvalidRules, r.Key)
		}
		if r.Contraindication == "" && r.Caution == "" {
			return fmt.Errorf("%w: rule %q has no message", ErrInvalidRules, r.Key)
		}
	}
	return nil
}

package safety

import (
	"strings"

	"github.com/giygas/herbolaria-api/composition"
)

// Conditions is the patient's active condition set: condition key to
// active state. Keys without a rule are ignored.
type Conditions map[string]bool

// Restricted is anything carrying contraindication and caution text.
// entities.Herb and entities.Formula implement it.
type Restricted interface {
	ContraindicationText() string
	CautionText() string
}

// Warnings lists the messages that apply to an entity.
type Warnings struct {
	Contraindications []string `json:"contraindications"`
	Cautions          []string `json:"cautions"`
}

// Empty reports whether no warning applies.
func (w Warnings) Empty() bool {
	return len(w.Contraindications) == 0 && len(w.Cautions) == 0
}

type foldedRule struct {
	Rule
	markers []string
}

// Evaluator matches entities against a rule table. It is immutable and safe
// for concurrent use.
type Evaluator struct {
	version string
	rules   []foldedRule
}

// NewEvaluator builds an evaluator over table.
func NewEvaluator(table RuleTable) *Evaluator {
	e := &Evaluator{version: table.Version}
	for _, r := range table.Rules {
		e.rules = append(e.rules, fold(r))
	}
	return e
}

// NewDefaultEvaluator builds an evaluator over DefaultRules.
func NewDefaultEvaluator() *Evaluator {
	return NewEvaluator(DefaultRules)
}

func fold(r Rule) foldedRule {
	fr := foldedRule{Rule: r}
	for _, m := range r.Markers {
		if m = Fold(strings.TrimSpace(m)); m != "" {
			fr.markers = append(fr.markers, m)
		}
	}
	return fr
}

// WithRules returns a new evaluator with extra rules appended after the
// existing ones. A rule whose key is already present replaces it in place.
func (e *Evaluator) WithRules(rules ...Rule) *Evaluator {
	next := &Evaluator{version: e.version, rules: make([]foldedRule, len(e.rules))}
	copy(next.rules, e.rules)

	for _, r := range rules {
		replaced := false
		for i := range next.rules {
			if next.rules[i].Key == r.Key {
				next.rules[i] = fold(r)
				replaced = true
				break
			}
		}
		if !replaced {
			next.rules = append(next.rules, fold(r))
		}
	}
	return next
}

// Extend applies WithRules for the rules of table. When table adds any rule
// its version is appended to the evaluator's, so saved records tell the
// default table apart from a customized one.
func (e *Evaluator) Extend(table RuleTable) *Evaluator {
	if len(table.Rules) == 0 {
		return e
	}
	next := e.WithRules(table.Rules...)
	custom := table.Version
	if custom == "" {
		custom = "custom"
	}
	next.version = e.version + "+" + custom
	return next
}

// Version returns the version of the underlying rule table.
func (e *Evaluator) Version() string {
	return e.version
}

// Keys returns the condition keys in evaluation order.
func (e *Evaluator) Keys() []string {
	keys := make([]string, len(e.rules))
	for i, r := range e.rules {
		keys[i] = r.Key
	}
	return keys
}

// Evaluate reports, for every active condition with a rule, whether the
// entity's contraindication or caution text mentions any of its markers.
func (e *Evaluator) Evaluate(entity Restricted, active Conditions) Warnings {
	w := Warnings{Contraindications: []string{}, Cautions: []string{}}
	if entity == nil || len(active) == 0 {
		return w
	}

	contraindications := Fold(entity.ContraindicationText())
	cautions := Fold(entity.CautionText())

	for _, r := range e.rules {
		if !active[r.Key] {
			continue
		}
		if containsAny(contraindications, r.markers) {
			w.Contraindications = append(w.Contraindications, r.Contraindication)
		}
		if containsAny(cautions, r.markers) {
			w.Cautions = append(w.Cautions, r.Caution)
		}
	}
	return w
}

// EvaluateItem decorates a prescription item. A formula item reports the
// formula's own warnings followed by those of each constituent herb,
// without repeating a message.
func (e *Evaluator) EvaluateItem(item composition.Item, active Conditions, catalog composition.HerbCatalog) Warnings {
	switch it := item.(type) {
	case composition.HerbItem:
		return e.Evaluate(it.Herb, active)

	case composition.FormulaItem:
		w := e.Evaluate(it.Formula, active)
		herbs, err := composition.FlattenItem(it, catalog)
		if err != nil {
			return w
		}
		for _, h := range herbs {
			hw := e.Evaluate(h.Herb, active)
			w.Contraindications = appendUnique(w.Contraindications, hw.Contraindications...)
			w.Cautions = appendUnique(w.Cautions, hw.Cautions...)
		}
		return w

	default:
		return Warnings{Contraindications: []string{}, Cautions: []string{}}
	}
}

func containsAny(text string, markers []string) bool {
	if text == "" {
		return false
	}
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

func appendUnique(list []string, values ...string) []string {
	for _, v := range values {
		seen := false
		for _, existing := range list {
			if existing == v {
				seen = true
				break
			}
		}
		if !seen {
			list = append(list, v)
		}
	}
	return list
}

package safety

import (
	"sync/atomic"

	"github.com/giygas/herbolaria-api/logging"
)

// Source hands out the evaluator currently in use. Loading a custom rule
// table swaps it atomically; callers keep the evaluator they already hold.
type Source struct {
	current atomic.Pointer[Evaluator]
}

// NewSource starts with base, or with the default rules when base is nil.
func NewSource(base *Evaluator) *Source {
	if base == nil {
		base = NewDefaultEvaluator()
	}
	s := &Source{}
	s.current.Store(base)
	return s
}

// Current returns the evaluator to use for one request.
func (s *Source) Current() *Evaluator {
	return s.current.Load()
}

// Load replaces the evaluator with the default rules extended by custom.
// An invalid table leaves the current evaluator in place.
func (s *Source) Load(custom RuleTable) (*Evaluator, error) {
	if err := custom.Validate(); err != nil {
		return s.Current(), err
	}

	for _, r := range custom.Rules {
		if DefaultRules.Has(r.Key) {
			logging.Info("Custom safety rule replaces a default one", "key", r.Key)
		}
	}

	next := NewDefaultEvaluator().Extend(custom)
	s.current.Store(next)

	logging.Info("Safety rules loaded",
		"version", next.Version(),
		"custom_keys", custom.Keys(),
	)
	return next, nil
}

package storage

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/giygas/herbolaria-api/interfaces"
)

// Compile-time check to ensure DraftStore implements interfaces.DraftStore
var _ interfaces.DraftStore = (*DraftStore)(nil)

// DraftStore holds drafts in memory. Each draft is replaced as a whole, a
// caller never observes a half-applied change.
type DraftStore struct {
	mu     sync.Mutex
	drafts map[string]interfaces.Draft
	now    func() time.Time
}

// NewDraftStore creates an empty store
func NewDraftStore() *DraftStore {
	return &DraftStore{
		drafts: make(map[string]interfaces.Draft),
		now:    time.Now,
	}
}

// Create starts an empty draft for a patient
func (s *DraftStore) Create(patient string, conditions []string) interfaces.Draft {
	now := s.now()
	draft := interfaces.Draft{
		ID:         uuid.NewString(),
		Patient:    patient,
		Conditions: copyStrings(conditions),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	s.mu.Lock()
	s.drafts[draft.ID] = draft
	s.mu.Unlock()

	return cloneDraft(draft)
}

// Get returns a copy of the draft
func (s *DraftStore) Get(id string) (interfaces.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft, ok := s.drafts[id]
	if !ok {
		return interfaces.Draft{}, fmt.Errorf("%w: %s", ErrDraftNotFound, id)
	}
	return cloneDraft(draft), nil
}

// Update applies fn to the draft and stores its result. When expectedVersion
// is not negative it must equal the current prescription version, otherwise
// ErrVersionConflict is returned. If fn fails the draft is left untouched.
func (s *DraftStore) Update(id string, expectedVersion int, fn func(interfaces.Draft) (interfaces.Draft, error)) (interfaces.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.drafts[id]
	if !ok {
		return interfaces.Draft{}, fmt.Errorf("%w: %s", ErrDraftNotFound, id)
	}

	if expectedVersion >= 0 && current.Prescription.Version != expectedVersion {
		return interfaces.Draft{}, fmt.Errorf("%w: expected version %d, current is %d",
			ErrVersionConflict, expectedVersion, current.Prescription.Version)
	}

	updated, err := fn(cloneDraft(current))
	if err != nil {
		return interfaces.Draft{}, err
	}

	// Identity and creation time belong to the store
	updated.ID = current.ID
	updated.CreatedAt = current.CreatedAt
	updated.UpdatedAt = s.now()

	s.drafts[id] = updated
	return cloneDraft(updated), nil
}

// Delete removes a draft
func (s *DraftStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.drafts[id]; !ok {
		return fmt.Errorf("%w: %s", ErrDraftNotFound, id)
	}
	delete(s.drafts, id)
	return nil
}

// PurgeIdle removes drafts not updated within ttl and returns how many were
// removed
func (s *DraftStore) PurgeIdle(ttl time.Duration) int {
	cutoff := s.now().Add(-ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, draft := range s.drafts {
		if draft.UpdatedAt.Before(cutoff) {
			delete(s.drafts, id)
			removed++
		}
	}
	return removed
}

// Count returns the number of live drafts
func (s *DraftStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.drafts)
}

func cloneDraft(d interfaces.Draft) interfaces.Draft {
	d.Conditions = copyStrings(d.Conditions)
	return d
}

func copyStrings(values []string) []string {
	out := make([]string, len(values))
	copy(out, values)
	return out
}

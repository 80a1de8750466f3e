package matching

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrSuggestionNotFound is returned when a phone has no pending suggestion
// at the requested position.
var ErrSuggestionNotFound = errors.New("matching: suggestion not found")

// Suggestion is one curated candidate held for a user's review. Position is
// the 1-based number the user replies with.
type Suggestion struct {
	Phone          string
	Position       int
	CandidatePhone string
	Score          int
	Reason         string
	Icebreaker     string
	CreatedAt      time.Time
}

// SuggestionStore persists pending suggestions so a reply can be honored
// after a process restart.
type SuggestionStore interface {
	// Replace swaps the user's pending set atomically.
	Replace(ctx context.Context, phone string, suggestions []Suggestion) error
	// List returns pending suggestions ordered by position.
	List(ctx context.Context, phone string) ([]Suggestion, error)
	// Get fetches one suggestion by its 1-based position.
	Get(ctx context.Context, phone string, position int) (*Suggestion, error)
	// Clear drops all pending suggestions for the phone.
	Clear(ctx context.Context, phone string) error
}

// InMemorySuggestionStore backs tests and single-node development runs.
type InMemorySuggestionStore struct {
	mu      sync.RWMutex
	byPhone map[string][]Suggestion
}

func NewInMemorySuggestionStore() *InMemorySuggestionStore {
	return &InMemorySuggestionStore{byPhone: make(map[string][]Suggestion)}
}

func (s *InMemorySuggestionStore) Replace(ctx context.Context, phone string, suggestions []Suggestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cloned := make([]Suggestion, len(suggestions))
	copy(cloned, suggestions)
	sort.SliceStable(cloned, func(i, j int) bool { return cloned[i].Position < cloned[j].Position })
	s.byPhone[phone] = cloned
	return nil
}

func (s *InMemorySuggestionStore) List(ctx context.Context, phone string) ([]Suggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.byPhone[phone]
	out := make([]Suggestion, len(stored))
	copy(out, stored)
	return out, nil
}

func (s *InMemorySuggestionStore) Get(ctx context.Context, phone string, position int) (*Suggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sg := range s.byPhone[phone] {
		if sg.Position == position {
			copied := sg
			return &copied, nil
		}
	}
	return nil, ErrSuggestionNotFound
}

func (s *InMemorySuggestionStore) Clear(ctx context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byPhone, phone)
	return nil
}

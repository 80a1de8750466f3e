package chatlog

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for message log storage
type Repository interface {
	Append(ctx context.Context, entry *Entry) error
	TodayMessageCount(ctx context.Context, phone string) (int, error)
	TodayTotalCount(ctx context.Context) (int, error)
	TodayAICount(ctx context.Context, phone string) (int, error)
	CountContaining(ctx context.Context, phone, marker string) (int, error)
	LastOutboundAt(ctx context.Context, phone string) (time.Time, error)
	DeleteForUser(ctx context.Context, phone string) error
}

// InMemoryRepository is a slice-backed Repository used in tests.
type InMemoryRepository struct {
	mu      sync.RWMutex
	entries []*Entry
	now     func() time.Time
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{now: time.Now}
}

func (r *InMemoryRepository) Append(_ context.Context, entry *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now().UTC()
	}
	clone := *entry
	r.entries = append(r.entries, &clone)
	return nil
}

func (r *InMemoryRepository) TodayMessageCount(_ context.Context, phone string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	start := startOfDay(r.now().UTC())
	count := 0
	for _, e := range r.entries {
		if e.Phone == phone && !e.CreatedAt.Before(start) {
			count++
		}
	}
	return count, nil
}

func (r *InMemoryRepository) TodayTotalCount(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	start := startOfDay(r.now().UTC())
	count := 0
	for _, e := range r.entries {
		if !e.CreatedAt.Before(start) {
			count++
		}
	}
	return count, nil
}

func (r *InMemoryRepository) TodayAICount(_ context.Context, phone string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	start := startOfDay(r.now().UTC())
	count := 0
	for _, e := range r.entries {
		if e.Phone == phone && e.AIUsed && !e.CreatedAt.Before(start) {
			count++
		}
	}
	return count, nil
}

func (r *InMemoryRepository) CountContaining(_ context.Context, phone, marker string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, e := range r.entries {
		if e.Phone == phone && strings.Contains(e.Text, marker) {
			count++
		}
	}
	return count, nil
}

func (r *InMemoryRepository) LastOutboundAt(_ context.Context, phone string) (time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var last time.Time
	for _, e := range r.entries {
		if e.Phone == phone && e.Direction == DirectionOutbound && e.CreatedAt.After(last) {
			last = e.CreatedAt
		}
	}
	return last, nil
}

func (r *InMemoryRepository) DeleteForUser(_ context.Context, phone string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.entries[:0]
	for _, e := range r.entries {
		if e.Phone != phone {
			kept = append(kept, e)
		}
	}
	r.entries = kept
	return nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

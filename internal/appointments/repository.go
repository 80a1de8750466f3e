package appointments

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no appointment exists for the id
	ErrNotFound = errors.New("appointment not found")

	// ErrMissingParticipants is returned when either participant phone is empty
	ErrMissingParticipants = errors.New("both participant phones are required")
)

// Repository defines the interface for appointment storage
type Repository interface {
	Create(ctx context.Context, appt *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListConfirmedBetween(ctx context.Context, from, to time.Time) ([]*Appointment, error)
	ListUpcomingForUser(ctx context.Context, phone string, after time.Time) ([]*Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	MarkConfirmed(ctx context.Context, id uuid.UUID) error
	MarkReminderSent(ctx context.Context, id uuid.UUID, kind ReminderKind) error
	Count(ctx context.Context) (int, error)
}

// InMemoryRepository is a map-backed Repository used in tests.
type InMemoryRepository struct {
	mu    sync.RWMutex
	appts map[uuid.UUID]*Appointment
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{appts: make(map[uuid.UUID]*Appointment)}
}

func (r *InMemoryRepository) Create(_ context.Context, appt *Appointment) error {
	if appt.User1Phone == "" || appt.User2Phone == "" {
		return ErrMissingParticipants
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	now := time.Now().UTC()
	appt.CreatedAt = now
	appt.UpdatedAt = now
	clone := *appt
	r.appts[appt.ID] = &clone
	return nil
}

func (r *InMemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *a
	return &clone, nil
}

func (r *InMemoryRepository) ListConfirmedBetween(_ context.Context, from, to time.Time) ([]*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Appointment
	for _, a := range r.appts {
		if a.Status != StatusConfirmed {
			continue
		}
		if a.ScheduledAt.Before(from) || a.ScheduledAt.After(to) {
			continue
		}
		clone := *a
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (r *InMemoryRepository) ListUpcomingForUser(_ context.Context, phone string, after time.Time) ([]*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Appointment
	for _, a := range r.appts {
		if a.Status == StatusCancelled || !a.Involves(phone) || a.ScheduledAt.Before(after) {
			continue
		}
		clone := *a
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (r *InMemoryRepository) UpdateStatus(_ context.Context, id uuid.UUID, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemoryRepository) MarkConfirmed(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return ErrNotFound
	}
	a.ConfirmationReceived = true
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemoryRepository) MarkReminderSent(_ context.Context, id uuid.UUID, kind ReminderKind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return ErrNotFound
	}
	switch kind {
	case Reminder24Hour:
		a.Reminder24hSent = true
	case Reminder1Hour:
		a.Reminder1hSent = true
	}
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemoryRepository) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.appts), nil
}

package users

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Repository defines the interface for user storage
type Repository interface {
	GetByPhone(ctx context.Context, phone string) (*User, error)
	Upsert(ctx context.Context, user *User) error
	UpdateState(ctx context.Context, phone string, phase Phase, step string, data map[string]string) error
	CreditPoints(ctx context.Context, phone string, delta int) error
	UpdateCalendar(ctx context.Context, phone string, creds CalendarCredentials) error
	ListAll(ctx context.Context) ([]*User, error)
	ListEligibleForMatching(ctx context.Context, minPoints int) ([]*User, error)
	ListByPhase(ctx context.Context, phases ...Phase) ([]*User, error)
	Delete(ctx context.Context, phone string) error
}

// InMemoryRepository is a map-backed Repository used in tests and local runs.
type InMemoryRepository struct {
	mu    sync.RWMutex
	users map[string]*User
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{users: make(map[string]*User)}
}

func (r *InMemoryRepository) GetByPhone(_ context.Context, phone string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[phone]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (r *InMemoryRepository) Upsert(_ context.Context, user *User) error {
	if user == nil || user.Phone == "" {
		return ErrMissingPhone
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := r.users[user.Phone]; ok {
		user.CreatedAt = existing.CreatedAt
	} else if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.TrustScore == 0 {
		user.TrustScore = DefaultTrustScore
	}
	user.UpdatedAt = now
	clone := *user
	r.users[user.Phone] = &clone
	return nil
}

func (r *InMemoryRepository) UpdateState(_ context.Context, phone string, phase Phase, step string, data map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[phone]
	if !ok {
		return ErrNotFound
	}
	u.Phase = phase
	u.Step = step
	u.StateData = data
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemoryRepository) CreditPoints(_ context.Context, phone string, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[phone]
	if !ok {
		return ErrNotFound
	}
	u.PointsBalance += delta
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemoryRepository) UpdateCalendar(_ context.Context, phone string, creds CalendarCredentials) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[phone]
	if !ok {
		return ErrNotFound
	}
	u.Calendar = creds
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemoryRepository) ListAll(_ context.Context) ([]*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*User, 0, len(r.users))
	for _, u := range r.users {
		clone := *u
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Phone < out[j].Phone })
	return out, nil
}

func (r *InMemoryRepository) ListEligibleForMatching(ctx context.Context, minPoints int) ([]*User, error) {
	all, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*User, 0, len(all))
	for _, u := range all {
		if !u.Calendar.Connected() || u.PointsBalance < minPoints {
			continue
		}
		switch u.Phase {
		case PhaseWaiting, PhaseMatching, "":
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *InMemoryRepository) ListByPhase(ctx context.Context, phases ...Phase) ([]*User, error) {
	all, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	want := make(map[Phase]struct{}, len(phases))
	for _, p := range phases {
		want[p] = struct{}{}
	}
	out := make([]*User, 0, len(all))
	for _, u := range all {
		if _, ok := want[u.Phase]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *InMemoryRepository) Delete(_ context.Context, phone string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, phone)
	return nil
}

package appointments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func newMockRepo(t *testing.T) (*PostgresRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return &PostgresRepository{pool: mock}, mock
}

func TestPostgresCreate(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()
	scheduled := now.Add(24 * time.Hour)

	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), "+1", "+2", scheduled, 15, "https://meet.example/abc", 100, "confirmed").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	appt := &Appointment{
		User1Phone:      "+1",
		User2Phone:      "+2",
		ScheduledAt:     scheduled,
		DurationMinutes: 15,
		MeetLink:        "https://meet.example/abc",
		PointsUsed:      100,
		Status:          StatusConfirmed,
	}
	if err := repo.Create(context.Background(), appt); err != nil {
		t.Fatalf("create: %v", err)
	}
	if appt.ID == uuid.Nil {
		t.Error("id should be assigned")
	}
}

func TestPostgresCreateRequiresParticipants(t *testing.T) {
	repo, _ := newMockRepo(t)
	err := repo.Create(context.Background(), &Appointment{User1Phone: "+1"})
	if !errors.Is(err, ErrMissingParticipants) {
		t.Errorf("err = %v, want ErrMissingParticipants", err)
	}
}

func TestPostgresMarkReminderSent(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE appointments SET reminder_24h_sent").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	if err := repo.MarkReminderSent(context.Background(), id, Reminder24Hour); err != nil {
		t.Fatalf("mark 24h: %v", err)
	}

	mock.ExpectExec("UPDATE appointments SET reminder_1h_sent").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	if err := repo.MarkReminderSent(context.Background(), id, Reminder1Hour); err != nil {
		t.Fatalf("mark 1h: %v", err)
	}
}

func TestPostgresUpdateStatusUnknownID(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE appointments SET status").
		WithArgs(id, "cancelled").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.UpdateStatus(context.Background(), id, StatusCancelled)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCounterpart(t *testing.T) {
	a := &Appointment{User1Phone: "+1", User2Phone: "+2"}
	if got := a.Counterpart("+1"); got != "+2" {
		t.Errorf("counterpart of +1 = %q", got)
	}
	if got := a.Counterpart("+2"); got != "+1" {
		t.Errorf("counterpart of +2 = %q", got)
	}
	if got := a.Counterpart("+3"); got != "" {
		t.Errorf("counterpart of stranger = %q", got)
	}
}

func TestInMemoryListConfirmedBetween(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	now := time.Now()

	inside := &Appointment{User1Phone: "+1", User2Phone: "+2", ScheduledAt: now.Add(24 * time.Hour), Status: StatusConfirmed}
	outside := &Appointment{User1Phone: "+3", User2Phone: "+4", ScheduledAt: now.Add(48 * time.Hour), Status: StatusConfirmed}
	cancelled := &Appointment{User1Phone: "+5", User2Phone: "+6", ScheduledAt: now.Add(24 * time.Hour), Status: StatusCancelled}
	for _, a := range []*Appointment{inside, outside, cancelled} {
		if err := repo.Create(ctx, a); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := repo.ListConfirmedBetween(ctx, now.Add(23*time.Hour), now.Add(25*time.Hour))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != inside.ID {
		t.Errorf("got %d appointments, want only the one inside the window", len(got))
	}
}

package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of pgxpool.Pool the repository needs; pgxmock
// implements it in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores appointments in the relational database.
type PostgresRepository struct {
	pool PgxPool
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool PgxPool) *PostgresRepository {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

const apptColumns = `id, user1_phone, user2_phone, scheduled_at, duration_minutes,
	meet_link, points_used, status, confirmation_received, reminder_24h_sent,
	reminder_1h_sent, created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, appt *Appointment) error {
	if appt.User1Phone == "" || appt.User2Phone == "" {
		return ErrMissingParticipants
	}
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	query := `
		INSERT INTO appointments (id, user1_phone, user2_phone, scheduled_at, duration_minutes,
			meet_link, points_used, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		appt.ID,
		appt.User1Phone,
		appt.User2Phone,
		appt.ScheduledAt,
		appt.DurationMinutes,
		appt.MeetLink,
		appt.PointsUsed,
		string(appt.Status),
	).Scan(&appt.CreatedAt, &appt.UpdatedAt)
	if err != nil {
		return fmt.Errorf("appointments: insert failed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	query := `SELECT ` + apptColumns + ` FROM appointments WHERE id = $1`
	a, err := scanAppointment(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: select failed: %w", err)
	}
	return a, nil
}

// ListConfirmedBetween returns confirmed appointments starting inside the
// inclusive window. Used by the reminder and auto-cancel jobs.
func (r *PostgresRepository) ListConfirmedBetween(ctx context.Context, from, to time.Time) ([]*Appointment, error) {
	query := `
		SELECT ` + apptColumns + `
		FROM appointments
		WHERE status = 'confirmed' AND scheduled_at BETWEEN $1 AND $2
		ORDER BY scheduled_at
	`
	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("appointments: list between failed: %w", err)
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (r *PostgresRepository) ListUpcomingForUser(ctx context.Context, phone string, after time.Time) ([]*Appointment, error) {
	query := `
		SELECT ` + apptColumns + `
		FROM appointments
		WHERE status <> 'cancelled'
		  AND (user1_phone = $1 OR user2_phone = $1)
		  AND scheduled_at >= $2
		ORDER BY scheduled_at
	`
	rows, err := r.pool.Query(ctx, query, phone, after)
	if err != nil {
		return nil, fmt.Errorf("appointments: list upcoming failed: %w", err)
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	query := `UPDATE appointments SET status = $2, updated_at = now() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, string(status))
	if err != nil {
		return fmt.Errorf("appointments: update status failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) MarkConfirmed(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE appointments SET confirmation_received = true, updated_at = now() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("appointments: mark confirmed failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkReminderSent persists the dedup flag so a job run twice in the same
// window does not resend.
func (r *PostgresRepository) MarkReminderSent(ctx context.Context, id uuid.UUID, kind ReminderKind) error {
	column := "reminder_24h_sent"
	if kind == Reminder1Hour {
		column = "reminder_1h_sent"
	}
	query := fmt.Sprintf(`UPDATE appointments SET %s = true, updated_at = now() WHERE id = $1`, column)
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("appointments: mark reminder failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the total number of appointments ever booked. Used by the
// admin stats endpoint.
func (r *PostgresRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM appointments`).Scan(&count); err != nil {
		return 0, fmt.Errorf("appointments: count failed: %w", err)
	}
	return count, nil
}

func collectAppointments(rows pgx.Rows) ([]*Appointment, error) {
	var out []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan failed: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: rows failed: %w", err)
	}
	return out, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a      Appointment
		status string
	)
	if err := row.Scan(
		&a.ID,
		&a.User1Phone,
		&a.User2Phone,
		&a.ScheduledAt,
		&a.DurationMinutes,
		&a.MeetLink,
		&a.PointsUsed,
		&status,
		&a.ConfirmationReceived,
		&a.Reminder24hSent,
		&a.Reminder1hSent,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.Status = Status(status)
	return &a, nil
}

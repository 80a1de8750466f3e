package chatlog

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

// PostgresRepository stores message log entries in the relational database.
type PostgresRepository struct {
	pool PgxPool
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool PgxPool) *PostgresRepository {
	if pool == nil {
		panic("chatlog: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Append(ctx context.Context, entry *Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	query := `
		INSERT INTO message_logs (id, phone, direction, text, ai_used)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	err := r.pool.QueryRow(ctx, query,
		entry.ID,
		entry.Phone,
		string(entry.Direction),
		entry.Text,
		entry.AIUsed,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("chatlog: insert failed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) TodayMessageCount(ctx context.Context, phone string) (int, error) {
	query := `SELECT COUNT(*) FROM message_logs WHERE phone = $1 AND created_at >= date_trunc('day', now())`
	var count int
	if err := r.pool.QueryRow(ctx, query, phone).Scan(&count); err != nil {
		return 0, fmt.Errorf("chatlog: count today failed: %w", err)
	}
	return count, nil
}

// TodayTotalCount reports platform-wide message volume since midnight.
func (r *PostgresRepository) TodayTotalCount(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM message_logs WHERE created_at >= date_trunc('day', now())`
	var count int
	if err := r.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("chatlog: count today total failed: %w", err)
	}
	return count, nil
}

// TodayAICount drives the daily model-call quota check.
func (r *PostgresRepository) TodayAICount(ctx context.Context, phone string) (int, error) {
	query := `SELECT COUNT(*) FROM message_logs WHERE phone = $1 AND ai_used AND created_at >= date_trunc('day', now())`
	var count int
	if err := r.pool.QueryRow(ctx, query, phone).Scan(&count); err != nil {
		return 0, fmt.Errorf("chatlog: count ai today failed: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) CountContaining(ctx context.Context, phone, marker string) (int, error) {
	query := `SELECT COUNT(*) FROM message_logs WHERE phone = $1 AND text LIKE '%' || $2 || '%'`
	var count int
	if err := r.pool.QueryRow(ctx, query, phone, marker).Scan(&count); err != nil {
		return 0, fmt.Errorf("chatlog: count marker failed: %w", err)
	}
	return count, nil
}

// LastOutboundAt returns the zero time when the bot has never messaged the
// phone.
func (r *PostgresRepository) LastOutboundAt(ctx context.Context, phone string) (time.Time, error) {
	query := `SELECT created_at FROM message_logs WHERE phone = $1 AND direction = 'outbound' ORDER BY created_at DESC LIMIT 1`
	var last time.Time
	if err := r.pool.QueryRow(ctx, query, phone).Scan(&last); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("chatlog: last outbound failed: %w", err)
	}
	return last, nil
}

// DeleteForUser removes the full history. Used only by the reset command.
func (r *PostgresRepository) DeleteForUser(ctx context.Context, phone string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM message_logs WHERE phone = $1`, phone); err != nil {
		return fmt.Errorf("chatlog: delete for user failed: %w", err)
	}
	return nil
}

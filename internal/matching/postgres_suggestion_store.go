package matching

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of pgxpool.Pool the store needs; pgxmock
// implements it in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresSuggestionStore persists pending suggestions so replies survive
// process restarts.
type PostgresSuggestionStore struct {
	pool PgxPool
}

func NewPostgresSuggestionStore(pool PgxPool) *PostgresSuggestionStore {
	if pool == nil {
		panic("matching: pgx pool required")
	}
	return &PostgresSuggestionStore{pool: pool}
}

const suggestionColumns = `phone, position, candidate_phone, score, reason, icebreaker, created_at`

func (s *PostgresSuggestionStore) Replace(ctx context.Context, phone string, suggestions []Suggestion) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM pending_suggestions WHERE phone = $1`, phone); err != nil {
		return fmt.Errorf("matching: clear suggestions: %w", err)
	}
	for _, sg := range suggestions {
		query := `
			INSERT INTO pending_suggestions (phone, position, candidate_phone, score, reason, icebreaker)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		if _, err := s.pool.Exec(ctx, query, phone, sg.Position, sg.CandidatePhone, sg.Score, sg.Reason, sg.Icebreaker); err != nil {
			return fmt.Errorf("matching: insert suggestion: %w", err)
		}
	}
	return nil
}

func (s *PostgresSuggestionStore) List(ctx context.Context, phone string) ([]Suggestion, error) {
	query := `SELECT ` + suggestionColumns + ` FROM pending_suggestions WHERE phone = $1 ORDER BY position`
	rows, err := s.pool.Query(ctx, query, phone)
	if err != nil {
		return nil, fmt.Errorf("matching: list suggestions: %w", err)
	}
	defer rows.Close()

	var out []Suggestion
	for rows.Next() {
		sg, err := scanSuggestion(rows)
		if err != nil {
			return nil, fmt.Errorf("matching: scan suggestion: %w", err)
		}
		out = append(out, *sg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("matching: suggestion rows: %w", err)
	}
	return out, nil
}

func (s *PostgresSuggestionStore) Get(ctx context.Context, phone string, position int) (*Suggestion, error) {
	query := `SELECT ` + suggestionColumns + ` FROM pending_suggestions WHERE phone = $1 AND position = $2`
	sg, err := scanSuggestion(s.pool.QueryRow(ctx, query, phone, position))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSuggestionNotFound
		}
		return nil, fmt.Errorf("matching: select suggestion: %w", err)
	}
	return sg, nil
}

func (s *PostgresSuggestionStore) Clear(ctx context.Context, phone string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM pending_suggestions WHERE phone = $1`, phone); err != nil {
		return fmt.Errorf("matching: clear suggestions: %w", err)
	}
	return nil
}

func scanSuggestion(row pgx.Row) (*Suggestion, error) {
	var sg Suggestion
	if err := row.Scan(
		&sg.Phone,
		&sg.Position,
		&sg.CandidatePhone,
		&sg.Score,
		&sg.Reason,
		&sg.Icebreaker,
		&sg.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &sg, nil
}

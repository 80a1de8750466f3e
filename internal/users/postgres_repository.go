package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

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

// PostgresRepository stores users in the relational database.
type PostgresRepository struct {
	pool PgxPool
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool PgxPool) *PostgresRepository {
	if pool == nil {
		panic("users: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

const userColumns = `phone, name, target_language, native_language, level, interests,
	job_title, matching_goal, preferences, calendar, points_balance, trust_score,
	phase, step, state_data, created_at, updated_at`

func (r *PostgresRepository) GetByPhone(ctx context.Context, phone string) (*User, error) {
	if phone == "" {
		return nil, ErrMissingPhone
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE phone = $1`
	u, err := scanUser(r.pool.QueryRow(ctx, query, phone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("users: select failed: %w", err)
	}
	return u, nil
}

// Upsert writes the full user record, keyed by phone.
func (r *PostgresRepository) Upsert(ctx context.Context, user *User) error {
	if user == nil || user.Phone == "" {
		return ErrMissingPhone
	}
	if user.TrustScore == 0 {
		user.TrustScore = DefaultTrustScore
	}
	prefs, err := json.Marshal(user.Preferences)
	if err != nil {
		return fmt.Errorf("users: encode preferences: %w", err)
	}
	cal, err := json.Marshal(user.Calendar)
	if err != nil {
		return fmt.Errorf("users: encode calendar: %w", err)
	}
	state, err := json.Marshal(user.StateData)
	if err != nil {
		return fmt.Errorf("users: encode state data: %w", err)
	}

	query := `
		INSERT INTO users (phone, name, target_language, native_language, level, interests,
			job_title, matching_goal, preferences, calendar, points_balance, trust_score,
			phase, step, state_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (phone) DO UPDATE SET
			name = EXCLUDED.name,
			target_language = EXCLUDED.target_language,
			native_language = EXCLUDED.native_language,
			level = EXCLUDED.level,
			interests = EXCLUDED.interests,
			job_title = EXCLUDED.job_title,
			matching_goal = EXCLUDED.matching_goal,
			preferences = EXCLUDED.preferences,
			calendar = EXCLUDED.calendar,
			points_balance = EXCLUDED.points_balance,
			trust_score = EXCLUDED.trust_score,
			phase = EXCLUDED.phase,
			step = EXCLUDED.step,
			state_data = EXCLUDED.state_data,
			updated_at = now()
		RETURNING created_at, updated_at
	`
	err = r.pool.QueryRow(ctx, query,
		user.Phone,
		user.Name,
		user.TargetLanguage,
		user.NativeLanguage,
		string(user.Level),
		user.Interests,
		user.JobTitle,
		user.MatchingGoal,
		prefs,
		cal,
		user.PointsBalance,
		user.TrustScore,
		string(user.Phase),
		user.Step,
		state,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("users: upsert failed: %w", err)
	}
	return nil
}

// UpdateState transitions the conversation phase atomically in one statement.
func (r *PostgresRepository) UpdateState(ctx context.Context, phone string, phase Phase, step string, data map[string]string) error {
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("users: encode state data: %w", err)
	}
	query := `UPDATE users SET phase = $2, step = $3, state_data = $4, updated_at = now() WHERE phone = $1`
	tag, err := r.pool.Exec(ctx, query, phone, string(phase), step, encoded)
	if err != nil {
		return fmt.Errorf("users: update state failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreditPoints adds delta to the balance; negative delta deducts.
func (r *PostgresRepository) CreditPoints(ctx context.Context, phone string, delta int) error {
	query := `UPDATE users SET points_balance = points_balance + $2, updated_at = now() WHERE phone = $1`
	tag, err := r.pool.Exec(ctx, query, phone, delta)
	if err != nil {
		return fmt.Errorf("users: credit points failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) UpdateCalendar(ctx context.Context, phone string, creds CalendarCredentials) error {
	encoded, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("users: encode calendar: %w", err)
	}
	query := `UPDATE users SET calendar = $2, updated_at = now() WHERE phone = $1`
	tag, err := r.pool.Exec(ctx, query, phone, encoded)
	if err != nil {
		return fmt.Errorf("users: update calendar failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) ListAll(ctx context.Context) ([]*User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("users: list failed: %w", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

// ListEligibleForMatching returns users the scheduler may pair: calendar
// connected, enough points, and not mid-registration or already matched.
func (r *PostgresRepository) ListEligibleForMatching(ctx context.Context, minPoints int) ([]*User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE (COALESCE(calendar->>'refresh_token', '') <> '' OR COALESCE(calendar->>'access_token', '') <> '')
		  AND points_balance >= $1
		  AND phase IN ('waiting', 'matching', '')
		ORDER BY created_at
	`
	rows, err := r.pool.Query(ctx, query, minPoints)
	if err != nil {
		return nil, fmt.Errorf("users: list eligible failed: %w", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

func (r *PostgresRepository) ListByPhase(ctx context.Context, phases ...Phase) ([]*User, error) {
	values := make([]string, len(phases))
	for i, p := range phases {
		values[i] = string(p)
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE phase = ANY($1) ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, values)
	if err != nil {
		return nil, fmt.Errorf("users: list by phase failed: %w", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

// Delete removes the user record entirely. Used by the reset command.
func (r *PostgresRepository) Delete(ctx context.Context, phone string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM users WHERE phone = $1`, phone); err != nil {
		return fmt.Errorf("users: delete failed: %w", err)
	}
	return nil
}

func collectUsers(rows pgx.Rows) ([]*User, error) {
	var out []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("users: scan failed: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("users: rows failed: %w", err)
	}
	return out, nil
}

func scanUser(row pgx.Row) (*User, error) {
	var (
		u         User
		level     string
		phase     string
		prefs     []byte
		cal       []byte
		stateData []byte
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(
		&u.Phone,
		&u.Name,
		&u.TargetLanguage,
		&u.NativeLanguage,
		&level,
		&u.Interests,
		&u.JobTitle,
		&u.MatchingGoal,
		&prefs,
		&cal,
		&u.PointsBalance,
		&u.TrustScore,
		&phase,
		&u.Step,
		&stateData,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	u.Level = Level(level)
	u.Phase = Phase(phase)
	u.CreatedAt = createdAt
	u.UpdatedAt = updatedAt
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &u.Preferences); err != nil {
			return nil, fmt.Errorf("decode preferences: %w", err)
		}
	}
	if len(cal) > 0 {
		if err := json.Unmarshal(cal, &u.Calendar); err != nil {
			return nil, fmt.Errorf("decode calendar: %w", err)
		}
	}
	if len(stateData) > 0 {
		if err := json.Unmarshal(stateData, &u.StateData); err != nil {
			return nil, fmt.Errorf("decode state data: %w", err)
		}
	}
	return &u, nil
}

package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/karaokectl/internal/models"
	"github.com/desertthunder/karaokectl/internal/shared"
)

// SessionRepository persists the one active session in the sessions table.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new [SessionRepository] with the given database connection
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Save upserts the session row.
func (r *SessionRepository) Save(session *models.Session) error {
	if session == nil || session.Token == "" {
		return fmt.Errorf("%w: session without token", shared.ErrInvalidInput)
	}

	query := `
		INSERT INTO sessions (id, token, tier, jobs_remaining, jobs_used, authenticated_at, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			token = excluded.token,
			tier = excluded.tier,
			jobs_remaining = excluded.jobs_remaining,
			jobs_used = excluded.jobs_used,
			authenticated_at = excluded.authenticated_at,
			updated_at = excluded.updated_at
	`

	_, err := r.db.Exec(query,
		session.Token,
		string(session.Tier),
		session.JobsRemaining,
		session.JobsUsed,
		session.AuthenticatedAt,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	return nil
}

// Load returns the persisted session or [shared.ErrNotAuthenticated] when there is none.
func (r *SessionRepository) Load() (*models.Session, error) {
	query := `
		SELECT token, tier, jobs_remaining, jobs_used, authenticated_at
		FROM sessions
		WHERE id = 1
	`

	var (
		session models.Session
		tier    string
	)

	err := r.db.QueryRow(query).Scan(&session.Token, &tier, &session.JobsRemaining, &session.JobsUsed, &session.AuthenticatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrNotAuthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	session.Tier = models.Tier(tier)
	return &session, nil
}

// Clear removes the persisted session. Clearing an empty table is not an error.
func (r *SessionRepository) Clear() error {
	if _, err := r.db.Exec("DELETE FROM sessions"); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

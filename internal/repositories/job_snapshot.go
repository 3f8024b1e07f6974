package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/desertthunder/karaokectl/internal/models"
)

// JobSnapshotRepository stores the last job list produced by a successful poll.
type JobSnapshotRepository struct {
	db *sql.DB
}

// NewJobSnapshotRepository creates a new [JobSnapshotRepository] with the given database connection
func NewJobSnapshotRepository(db *sql.DB) *JobSnapshotRepository {
	return &JobSnapshotRepository{db: db}
}

// Replace swaps the stored snapshot for jobs in a single transaction.
func (r *JobSnapshotRepository) Replace(jobs []models.Job, observedAt time.Time) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM job_snapshots"); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO job_snapshots (
			id, artist, title, source_kind, source_url, source_filename, raw_status, state,
			error_message, candidates, selected_instrumental, created_at, updated_at, observed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, job := range jobs {
		candidates, err := json.Marshal(job.Candidates)
		if err != nil {
			return fmt.Errorf("failed to encode candidates for %s: %w", job.ID, err)
		}

		_, err = stmt.Exec(
			job.ID,
			job.Artist,
			job.Title,
			string(job.Source.Kind),
			job.Source.URL,
			job.Source.Filename,
			job.RawStatus,
			job.State.String(),
			job.ErrorMessage,
			string(candidates),
			job.SelectedInstrumental,
			nullTime(job.CreatedAt),
			nullTime(job.UpdatedAt),
			observedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert snapshot row %s: %w", job.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// Clear removes the stored snapshot.
func (r *JobSnapshotRepository) Clear() error {
	if _, err := r.db.Exec("DELETE FROM job_snapshots"); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}
	return nil
}

// List returns the stored jobs and when they were observed. An empty table yields a zero time.
func (r *JobSnapshotRepository) List() ([]models.Job, time.Time, error) {
	rows, err := r.db.Query(`
		SELECT id, artist, title, source_kind, source_url, source_filename, raw_status, state,
			error_message, candidates, selected_instrumental, created_at, updated_at, observed_at
		FROM job_snapshots
		ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to query snapshot: %w", err)
	}
	defer rows.Close()

	var (
		jobs     []models.Job
		observed time.Time
	)
	for rows.Next() {
		job, at, err := r.scanRow(rows)
		if err != nil {
			return nil, time.Time{}, err
		}
		if at.After(observed) {
			observed = at
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to iterate snapshot: %w", err)
	}

	return jobs, observed, nil
}

// scanRow scans a row from [sql.Rows] into a [models.Job]
func (r *JobSnapshotRepository) scanRow(rows *sql.Rows) (*models.Job, time.Time, error) {
	var (
		job        models.Job
		kind       string
		state      string
		candidates string
		createdAt  sql.NullTime
		updatedAt  sql.NullTime
		observedAt time.Time
	)

	err := rows.Scan(
		&job.ID, &job.Artist, &job.Title, &kind, &job.Source.URL, &job.Source.Filename,
		&job.RawStatus, &state, &job.ErrorMessage, &candidates, &job.SelectedInstrumental,
		&createdAt, &updatedAt, &observedAt,
	)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to scan snapshot row: %w", err)
	}

	if err := json.Unmarshal([]byte(candidates), &job.Candidates); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to decode candidates for %s: %w", job.ID, err)
	}
	if len(job.Candidates) == 0 {
		job.Candidates = nil
	}

	job.Source.Kind = models.SourceKind(kind)
	job.State = models.ParseState(state)
	job.CreatedAt = createdAt.Time
	job.UpdatedAt = updatedAt.Time

	return &job, observedAt, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

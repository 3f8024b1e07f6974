package repositories

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/karaokectl/internal/models"
	"github.com/desertthunder/karaokectl/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.OpenDatabase(shared.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

func TestSessionRepository(t *testing.T) {
	t.Run("Load Empty", func(t *testing.T) {
		repo := NewSessionRepository(setupTestDB(t))

		_, err := repo.Load()
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("Save And Load", func(t *testing.T) {
		repo := NewSessionRepository(setupTestDB(t))
		at := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

		err := repo.Save(&models.Session{Token: "tok-1", Tier: models.TierAdmin, JobsRemaining: 4, JobsUsed: 6, AuthenticatedAt: at})
		if err != nil {
			t.Fatalf("failed to save session: %v", err)
		}

		got, err := repo.Load()
		if err != nil {
			t.Fatalf("failed to load session: %v", err)
		}
		if got.Token != "tok-1" || got.Tier != models.TierAdmin || got.JobsRemaining != 4 || got.JobsUsed != 6 {
			t.Errorf("unexpected session %+v", got)
		}
		if !got.AuthenticatedAt.Equal(at) {
			t.Errorf("authenticated_at = %v, want %v", got.AuthenticatedAt, at)
		}
	})

	t.Run("Save Overwrites", func(t *testing.T) {
		repo := NewSessionRepository(setupTestDB(t))

		repo.Save(&models.Session{Token: "old", Tier: models.TierStandard, AuthenticatedAt: time.Now()})
		repo.Save(&models.Session{Token: "new", Tier: models.TierStandard, JobsRemaining: 1, AuthenticatedAt: time.Now()})

		got, err := repo.Load()
		if err != nil {
			t.Fatalf("failed to load session: %v", err)
		}
		if got.Token != "new" || got.JobsRemaining != 1 {
			t.Errorf("expected overwritten session, got %+v", got)
		}
	})

	t.Run("Save Rejects Empty Token", func(t *testing.T) {
		repo := NewSessionRepository(setupTestDB(t))
		if err := repo.Save(&models.Session{}); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if err := repo.Save(nil); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for nil, got %v", err)
		}
	})

	t.Run("Clear", func(t *testing.T) {
		repo := NewSessionRepository(setupTestDB(t))
		repo.Save(&models.Session{Token: "tok", AuthenticatedAt: time.Now()})

		if err := repo.Clear(); err != nil {
			t.Fatalf("failed to clear: %v", err)
		}
		if _, err := repo.Load(); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected no session after clear, got %v", err)
		}
		if err := repo.Clear(); err != nil {
			t.Errorf("clearing twice should not fail: %v", err)
		}
	})
}

func TestJobSnapshotRepository(t *testing.T) {
	created := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	jobs := []models.Job{
		{
			ID: "job-1", Artist: "ABBA", Title: "Waterloo",
			Source: models.Source{Kind: models.SourceFile, Filename: "waterloo.flac"},
			State:  models.Queued, RawStatus: "queued", CreatedAt: created, UpdatedAt: created,
		},
		{
			ID: "job-2", Artist: "Queen", Title: "Bohemian Rhapsody",
			Source:    models.Source{Kind: models.SourceYouTube, URL: "https://www.youtube.com/watch?v=fJ9rUzIMcZQ"},
			State:     models.AwaitingReview,
			RawStatus: "awaiting_review",
			Candidates: []models.Candidate{
				{ID: "c1", Label: "Clean", PreviewURL: "https://cdn.example.com/c1.mp3"},
				{ID: "c2", Label: "With backing vocals", PreviewURL: "https://cdn.example.com/c2.mp3"},
			},
			CreatedAt: created.Add(time.Minute),
		},
		{
			ID: "job-3", Artist: "Toto", Title: "Africa", State: models.Error,
			RawStatus: "failed", ErrorMessage: "separation failed",
		},
	}

	t.Run("Empty", func(t *testing.T) {
		repo := NewJobSnapshotRepository(setupTestDB(t))
		got, observed, err := repo.List()
		if err != nil {
			t.Fatalf("failed to list: %v", err)
		}
		if len(got) != 0 || !observed.IsZero() {
			t.Errorf("expected empty snapshot, got %d jobs observed at %v", len(got), observed)
		}
	})

	t.Run("Replace And List", func(t *testing.T) {
		repo := NewJobSnapshotRepository(setupTestDB(t))
		observedAt := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)

		if err := repo.Replace(jobs, observedAt); err != nil {
			t.Fatalf("failed to replace: %v", err)
		}

		got, observed, err := repo.List()
		if err != nil {
			t.Fatalf("failed to list: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("expected 3 jobs, got %d", len(got))
		}
		if !observed.Equal(observedAt) {
			t.Errorf("observed = %v, want %v", observed, observedAt)
		}

		byID := map[string]models.Job{}
		for _, j := range got {
			byID[j.ID] = j
		}

		review := byID["job-2"]
		if review.State != models.AwaitingReview || len(review.Candidates) != 2 {
			t.Errorf("review job not restored: %+v", review)
		}
		if review.Source.Kind != models.SourceYouTube || review.Source.URL == "" {
			t.Errorf("source not restored: %+v", review.Source)
		}
		if !byID["job-1"].CreatedAt.Equal(created) {
			t.Errorf("created_at not restored: %v", byID["job-1"].CreatedAt)
		}
		if byID["job-3"].ErrorMessage != "separation failed" || byID["job-3"].State != models.Error {
			t.Errorf("error job not restored: %+v", byID["job-3"])
		}
		if byID["job-1"].Candidates != nil {
			t.Errorf("expected nil candidates for queued job, got %v", byID["job-1"].Candidates)
		}
	})

	t.Run("Replace Drops Old Rows", func(t *testing.T) {
		repo := NewJobSnapshotRepository(setupTestDB(t))

		repo.Replace(jobs, time.Now())
		if err := repo.Replace(jobs[:1], time.Now()); err != nil {
			t.Fatalf("failed to replace: %v", err)
		}

		got, _, err := repo.List()
		if err != nil {
			t.Fatalf("failed to list: %v", err)
		}
		if len(got) != 1 || got[0].ID != "job-1" {
			t.Errorf("expected only job-1, got %+v", got)
		}
	})
	t.Run("Clear", func(t *testing.T) {
		repo := NewJobSnapshotRepository(setupTestDB(t))
		if err := repo.Replace(jobs, time.Now()); err != nil {
			t.Fatalf("failed to replace: %v", err)
		}
		if err := repo.Clear(); err != nil {
			t.Fatalf("failed to clear: %v", err)
		}

		got, observed, err := repo.List()
		if err != nil {
			t.Fatalf("failed to list: %v", err)
		}
		if len(got) != 0 || !observed.IsZero() {
			t.Errorf("expected empty snapshot after clear, got %d jobs", len(got))
		}
	})
}

package services

import (
	"context"

	"github.com/desertthunder/karaokectl/internal/models"
)

// Registry is the set of job operations the controller and CLI depend on.
type Registry interface {
	// SubmitJob validates spec and creates a job, returning its id.
	SubmitJob(ctx context.Context, spec models.JobSpec) (string, error)

	// ListJobs returns every job visible to the session, deduplicated by id.
	ListJobs(ctx context.Context) ([]models.Job, error)

	// GetJob returns a single job.
	GetJob(ctx context.Context, jobID string) (*models.Job, error)

	// GetInstrumentalCandidates returns the review candidates of a job in AwaitingReview.
	GetInstrumentalCandidates(ctx context.Context, jobID string) ([]models.Candidate, error)

	// SelectInstrumental resolves the review of jobID with candidateID.
	SelectInstrumental(ctx context.Context, jobID, candidateID string) error

	// ClearErrorJobs removes all jobs in Error. Admin only.
	ClearErrorJobs(ctx context.Context) (int, error)
}

// SessionStore persists the session between runs.
type SessionStore interface {
	Save(session *models.Session) error
	Load() (*models.Session, error)
	Clear() error
}

var _ Registry = (*RegistryClient)(nil)

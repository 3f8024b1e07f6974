package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/desertthunder/karaokectl/internal/models"
	"github.com/desertthunder/karaokectl/internal/shared"
)

// ReviewState is the step of the review workflow.
type ReviewState int

const (
	ReviewHidden ReviewState = iota
	ReviewLoading
	ReviewPresenting
	ReviewSubmitting
	ReviewResolved
)

func (s ReviewState) String() string {
	switch s {
	case ReviewLoading:
		return "loading"
	case ReviewPresenting:
		return "presenting"
	case ReviewSubmitting:
		return "submitting"
	case ReviewResolved:
		return "resolved"
	default:
		return "hidden"
	}
}

// ReviewView is a read-only copy of the workflow for rendering.
type ReviewView struct {
	State       ReviewState
	JobID       string
	Candidates  []models.Candidate
	Selected    string
	Err         error // inline error while presenting, or the failure when resolved
	NeedsReload bool  // a conflict invalidated the candidate list
	Succeeded   bool  // resolved with success
}

// Reviewer is what the workflow needs from the controller.
type Reviewer interface {
	Candidates(ctx context.Context, jobID string) ([]models.Candidate, error)
	SelectInstrumental(ctx context.Context, jobID, candidateID string) error
	OpenReview(jobID string, open bool)
}

// Review drives instrumental selection for one job at a time.
type Review struct {
	ctrl    Reviewer
	preview func(url string) error

	mu          sync.Mutex
	state       ReviewState
	jobID       string
	candidates  []models.Candidate
	selected    string
	err         error
	needsReload bool
	succeeded   bool
	gen         uint64
	cancel      context.CancelFunc
}

// NewReview creates a hidden workflow. preview opens a candidate URL and defaults to
// [shared.OpenBrowser].
func NewReview(ctrl Reviewer, preview func(string) error) *Review {
	if preview == nil {
		preview = shared.OpenBrowser
	}
	return &Review{ctrl: ctrl, preview: preview}
}

// View returns a copy of the current workflow.
func (r *Review) View() ReviewView {
	r.mu.Lock()
	defer r.mu.Unlock()

	return ReviewView{
		State:       r.state,
		JobID:       r.jobID,
		Candidates:  append([]models.Candidate(nil), r.candidates...),
		Selected:    r.selected,
		Err:         r.err,
		NeedsReload: r.needsReload,
		Succeeded:   r.succeeded,
	}
}

// Begin moves to Loading for job and returns the generation to pass to [Review.Load].
//
// Only jobs awaiting review can be opened. Any previous fetch is cancelled.
func (r *Review) Begin(job models.Job) (uint64, error) {
	if !job.NeedsReview() {
		return 0, fmt.Errorf("%w: %s is %s", shared.ErrNotReady, job.Label(), job.State.Title())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.reset()
	r.gen++
	r.state = ReviewLoading
	r.jobID = job.ID
	r.ctrl.OpenReview(job.ID, true)
	return r.gen, nil
}

// Load fetches candidates for generation gen. A result for a closed or replaced workflow is
// dropped with [shared.ErrDiscarded].
func (r *Review) Load(ctx context.Context, gen uint64) error {
	r.mu.Lock()
	if r.gen != gen || r.state != ReviewLoading {
		r.mu.Unlock()
		return shared.ErrDiscarded
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	jobID := r.jobID
	r.mu.Unlock()

	candidates, err := r.ctrl.Candidates(ctx, jobID)
	cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.gen != gen {
		return shared.ErrDiscarded
	}
	r.cancel = nil

	switch {
	case err == nil:
	case errors.Is(err, shared.ErrDiscarded), errors.Is(err, shared.ErrSessionExpired):
		r.close()
		return err
	case errors.Is(err, shared.ErrNotReady), errors.Is(err, shared.ErrJobNotFound):
		r.err = err
		r.resolve(false)
		return err
	default:
		// Transient failure: stay open so the list can be reloaded.
		r.state = ReviewPresenting
		r.err = err
		r.needsReload = true
		return err
	}

	r.state = ReviewPresenting
	r.candidates = candidates
	r.err = nil
	r.needsReload = false
	if r.selected != "" && !r.has(r.selected) {
		r.selected = ""
	}
	return nil
}

// Open is Begin followed by Load.
func (r *Review) Open(ctx context.Context, job models.Job) error {
	gen, err := r.Begin(job)
	if err != nil {
		return err
	}
	return r.Load(ctx, gen)
}

// Reload fetches the candidate list again after a conflict or a failed load.
func (r *Review) Reload(ctx context.Context) error {
	r.mu.Lock()
	if r.state != ReviewPresenting && r.state != ReviewResolved {
		r.mu.Unlock()
		return fmt.Errorf("%w: nothing to reload", shared.ErrInvalidInput)
	}
	r.gen++
	gen := r.gen
	r.state = ReviewLoading
	r.succeeded = false
	r.mu.Unlock()

	return r.Load(ctx, gen)
}

// Select marks candidateID as chosen. A later call replaces an earlier one.
func (r *Review) Select(candidateID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != ReviewPresenting {
		return fmt.Errorf("%w: review is %s", shared.ErrInvalidInput, r.state)
	}
	if !r.has(candidateID) {
		return fmt.Errorf("%w: unknown candidate %q", shared.ErrInvalidInput, candidateID)
	}
	r.selected = candidateID
	return nil
}

// Confirm submits the selection. Input is disabled until the call returns.
//
// On ack the workflow resolves with success. On a conflict or any other failure it returns to
// Presenting with the error shown inline; nothing is retried.
func (r *Review) Confirm(ctx context.Context) error {
	r.mu.Lock()
	switch {
	case r.state != ReviewPresenting:
		r.mu.Unlock()
		return fmt.Errorf("%w: review is %s", shared.ErrInvalidInput, r.state)
	case r.needsReload:
		r.mu.Unlock()
		return fmt.Errorf("%w: reload the candidates before confirming again", shared.ErrConflict)
	case r.selected == "":
		r.mu.Unlock()
		return fmt.Errorf("%w: pick a candidate first", shared.ErrInvalidInput)
	}
	r.state = ReviewSubmitting
	r.err = nil
	gen, jobID, candidateID := r.gen, r.jobID, r.selected
	r.mu.Unlock()

	err := r.ctrl.SelectInstrumental(ctx, jobID, candidateID)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.gen != gen {
		return shared.ErrDiscarded
	}

	switch {
	case err == nil:
		r.err = nil
		r.resolve(true)
		return nil
	case errors.Is(err, shared.ErrDiscarded), errors.Is(err, shared.ErrSessionExpired):
		r.close()
		return err
	case errors.Is(err, shared.ErrConflict):
		r.needsReload = true
	}

	r.state = ReviewPresenting
	r.err = err
	return err
}

// Preview opens the preview URL of a candidate.
func (r *Review) Preview(candidateID string) error {
	r.mu.Lock()
	var url string
	for _, c := range r.candidates {
		if c.ID == candidateID {
			url = c.PreviewURL
		}
	}
	r.mu.Unlock()

	if url == "" {
		return fmt.Errorf("%w: no preview for %q", shared.ErrInvalidInput, candidateID)
	}
	return r.preview(url)
}

// Close hides the workflow and cancels any candidate fetch.
func (r *Review) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.close()
}

func (r *Review) close() {
	if r.jobID != "" && r.state != ReviewResolved {
		r.ctrl.OpenReview(r.jobID, false)
	}
	r.gen++
	r.reset()
}

func (r *Review) reset() {
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.state = ReviewHidden
	r.jobID = ""
	r.candidates = nil
	r.selected = ""
	r.err = nil
	r.needsReload = false
	r.succeeded = false
}

func (r *Review) resolve(ok bool) {
	r.state = ReviewResolved
	r.succeeded = ok
	if !ok {
		r.ctrl.OpenReview(r.jobID, false)
	}
}

func (r *Review) has(id string) bool {
	for _, c := range r.candidates {
		if c.ID == id {
			return true
		}
	}
	return false
}

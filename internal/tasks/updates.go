package tasks

import (
	"fmt"

	"github.com/desertthunder/karaokectl/internal/models"
	"github.com/desertthunder/karaokectl/internal/shared"
	"github.com/desertthunder/karaokectl/internal/store"
)

// EventKind enumerates controller events.
type EventKind int

const (
	PollSucceeded EventKind = iota
	PollFailed
	JobTransitioned
	JobSubmitted
	SelectionConfirmed
	SelectionFailed
	ErrorsCleared
	SessionStarted
	SessionExpired
	LoggedOut
	BulkProgress
)

func (k EventKind) String() string {
	switch k {
	case PollSucceeded:
		return "poll_succeeded"
	case PollFailed:
		return "poll_failed"
	case JobTransitioned:
		return "job_transitioned"
	case JobSubmitted:
		return "job_submitted"
	case SelectionConfirmed:
		return "selection_confirmed"
	case SelectionFailed:
		return "selection_failed"
	case ErrorsCleared:
		return "errors_cleared"
	case SessionStarted:
		return "session_started"
	case SessionExpired:
		return "session_expired"
	case LoggedOut:
		return "logged_out"
	case BulkProgress:
		return "bulk_progress"
	default:
		return ""
	}
}

// Event is one thing the controller wants the UI to know.
type Event struct {
	Kind       EventKind
	JobID      string
	Message    string            // human-readable
	Transition *store.Transition // set for JobTransitioned
	Err        error
	Step       int // BulkProgress only
	Total      int // BulkProgress only
}

func pollSucceededEvent(r CycleResult) Event {
	return Event{
		Kind:    PollSucceeded,
		Message: fmt.Sprintf("Refreshed: %d new, %d updated, %d removed", len(r.Result.Inserted), len(r.Result.Updated), len(r.Result.Removed)),
	}
}

func pollFailedEvent(r CycleResult) Event {
	return Event{
		Kind:    PollFailed,
		Message: fmt.Sprintf("%s Retrying in %s.", shared.Describe(r.Err).Message, r.Next),
		Err:     r.Err,
	}
}

func transitionEvent(t store.Transition) Event {
	msg := fmt.Sprintf("%s: %s → %s", t.Label, t.From.Title(), t.To.Title())
	if t.To == models.AwaitingReview {
		msg = fmt.Sprintf("%s is ready for review", t.Label)
	}
	return Event{Kind: JobTransitioned, JobID: t.JobID, Message: msg, Transition: &t}
}

func submittedEvent(id string, spec models.JobSpec) Event {
	return Event{Kind: JobSubmitted, JobID: id, Message: fmt.Sprintf("Submitted %s - %s", spec.Artist, spec.Title)}
}

func selectionConfirmedEvent(jobID, candidateID string) Event {
	return Event{Kind: SelectionConfirmed, JobID: jobID, Message: fmt.Sprintf("Selected %s, finalizing", candidateID)}
}

func selectionFailedEvent(jobID string, err error) Event {
	return Event{Kind: SelectionFailed, JobID: jobID, Message: shared.Describe(err).Message, Err: err}
}

func errorsClearedEvent(n int) Event {
	return Event{Kind: ErrorsCleared, Message: fmt.Sprintf("Cleared %d failed jobs", n)}
}

func sessionStartedEvent(s *models.Session) Event {
	return Event{Kind: SessionStarted, Message: fmt.Sprintf("Logged in (%s, %d jobs remaining)", s.Tier, s.JobsRemaining)}
}

func sessionExpiredEvent() Event {
	return Event{Kind: SessionExpired, Message: shared.Describe(shared.ErrSessionExpired).Message, Err: shared.ErrSessionExpired}
}

func loggedOutEvent() Event {
	return Event{Kind: LoggedOut, Message: "Logged out"}
}

func bulkSubmittedEvent(step, total int, res SubmitResult) Event {
	if res.Err != nil {
		return Event{Kind: BulkProgress, Step: step, Total: total, Err: res.Err,
			Message: fmt.Sprintf("[%d/%d] ✗ %s: %s", step, total, res.Spec.Title, shared.Describe(res.Err).Message)}
	}
	return Event{Kind: BulkProgress, Step: step, Total: total, JobID: res.JobID,
		Message: fmt.Sprintf("[%d/%d] ✓ %s - %s", step, total, res.Spec.Artist, res.Spec.Title)}
}

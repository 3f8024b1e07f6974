package models

import "strings"

// State is the client-side lifecycle state of a job.
//
// The set is closed: every raw backend status maps to exactly one value, with [Unknown] for
// vocabulary the client does not recognize.
type State int

const (
	Unknown State = iota
	Queued
	Processing
	AwaitingReview
	Finalizing
	Complete
	Error
)

// GenericErrorMessage is used when the backend reports a failure without saying why.
const GenericErrorMessage = "job failed without an error message"

var allStates = []State{Unknown, Queued, Processing, AwaitingReview, Finalizing, Complete, Error}

// States returns every lifecycle state, [Unknown] first.
func States() []State {
	out := make([]State, len(allStates))
	copy(out, allStates)
	return out
}

func (s State) String() string {
	switch s {
	case Queued:
		return "queued"
	case Processing:
		return "processing"
	case AwaitingReview:
		return "awaiting_review"
	case Finalizing:
		return "finalizing"
	case Complete:
		return "complete"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Title is the display form used by the dashboard and CLI tables.
func (s State) Title() string {
	switch s {
	case Queued:
		return "Queued"
	case Processing:
		return "Processing"
	case AwaitingReview:
		return "Awaiting Review"
	case Finalizing:
		return "Finalizing"
	case Complete:
		return "Complete"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// NeedsReview is true only for [AwaitingReview].
func (s State) NeedsReview() bool { return s == AwaitingReview }

// IsTerminal is true for [Complete] and [Error].
func (s State) IsTerminal() bool { return s == Complete || s == Error }

// rank orders the forward path Queued → Complete. Error and Unknown sit outside it.
func (s State) rank() int {
	switch s {
	case Queued:
		return 1
	case Processing:
		return 2
	case AwaitingReview:
		return 3
	case Finalizing:
		return 4
	case Complete:
		return 5
	default:
		return 0
	}
}

// CanTransition reports whether moving from s to next respects the lifecycle.
//
// Re-observing the same state is allowed. Unknown may move anywhere and anything non-terminal
// may become Unknown or Error. Terminal states never change.
func (s State) CanTransition(next State) bool {
	switch {
	case s == next:
		return true
	case s.IsTerminal():
		return false
	case s == Unknown, next == Unknown, next == Error:
		return true
	}
	return next.rank() > s.rank()
}

// RawFields carries the backend fields, besides the status string, that influence the state.
type RawFields struct {
	Error          string
	CandidateCount int
}

var statusVocabulary = map[string]State{
	"queued":    Queued,
	"pending":   Queued,
	"submitted": Queued,
	"waiting":   Queued,

	"processing":        Processing,
	"downloading":       Processing,
	"separating":        Processing,
	"separating_audio":  Processing,
	"processing_audio":  Processing,
	"transcribing":      Processing,
	"aligning":          Processing,
	"generating":        Processing,
	"rendering_preview": Processing,

	"awaiting_review":                 AwaitingReview,
	"awaiting_instrumental_selection": AwaitingReview,
	"ready_for_review":                AwaitingReview,
	"in_review":                       AwaitingReview,

	"finalizing":            Finalizing,
	"instrumental_selected": Finalizing,
	"rendering":             Finalizing,
	"encoding":              Finalizing,
	"packaging":             Finalizing,
	"uploading":             Finalizing,

	"complete":  Complete,
	"completed": Complete,
	"done":      Complete,
	"succeeded": Complete,

	"error":     Error,
	"failed":    Error,
	"errored":   Error,
	"cancelled": Error,
	"canceled":  Error,
}

// NormalizeStatus lower-cases a raw status and folds spaces and dashes to underscores.
func NormalizeStatus(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	return strings.NewReplacer("-", "_", " ", "_").Replace(s)
}

// IsKnownStatus reports whether raw belongs to the recognized backend vocabulary.
func IsKnownStatus(raw string) bool {
	_, ok := statusVocabulary[NormalizeStatus(raw)]
	return ok
}

// DeriveState maps a raw backend status and its companion fields to a [State].
//
// A non-empty error field wins over any status. A review status without candidates is not yet
// actionable and maps to [Processing]. Unrecognized statuses map to [Unknown].
func DeriveState(rawStatus string, fields RawFields) State {
	if strings.TrimSpace(fields.Error) != "" {
		return Error
	}

	state, ok := statusVocabulary[NormalizeStatus(rawStatus)]
	if !ok {
		return Unknown
	}

	if state == AwaitingReview && fields.CandidateCount == 0 {
		return Processing
	}
	return state
}

// ParseState is the inverse of [State.String]. Anything unrecognized is [Unknown].
func ParseState(s string) State {
	for _, st := range allStates {
		if st.String() == s {
			return st
		}
	}
	return Unknown
}

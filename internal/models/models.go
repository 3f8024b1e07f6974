package models

import (
	"slices"
	"time"
)

// SourceKind identifies where a job's audio comes from.
type SourceKind string

const (
	SourceFile    SourceKind = "file"
	SourceYouTube SourceKind = "youtube"
)

// Source describes the audio input of a job.
type Source struct {
	Kind     SourceKind `json:"kind" validate:"required,oneof=file youtube"`
	URL      string     `json:"url,omitempty" validate:"omitempty,youtube_url"`
	Filename string     `json:"filename,omitempty"`
}

// Candidate is one generated instrumental track a reviewer can pick.
type Candidate struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	PreviewURL string `json:"previewUrl"`
}

// Job is the client's cached view of one conversion request.
//
// ErrorMessage is set iff State is [Error]; Candidates is non-empty iff State is [AwaitingReview].
type Job struct {
	ID                   string
	Artist               string
	Title                string
	Source               Source
	State                State
	RawStatus            string
	CreatedAt            time.Time
	UpdatedAt            time.Time
	ErrorMessage         string
	Candidates           []Candidate
	SelectedInstrumental string
}

// NeedsReview reports whether the job is waiting for an instrumental selection.
func (j Job) NeedsReview() bool { return j.State.NeedsReview() }

// IsTerminal reports whether the job has reached Complete or Error.
func (j Job) IsTerminal() bool { return j.State.IsTerminal() }

// Candidate returns the candidate with the given id.
func (j Job) Candidate(id string) (Candidate, bool) {
	for _, c := range j.Candidates {
		if c.ID == id {
			return c, true
		}
	}
	return Candidate{}, false
}

// Equal compares the backend-observable fields of two jobs.
func (j Job) Equal(o Job) bool {
	return j.ID == o.ID &&
		j.Artist == o.Artist &&
		j.Title == o.Title &&
		j.Source == o.Source &&
		j.State == o.State &&
		j.RawStatus == o.RawStatus &&
		j.CreatedAt.Equal(o.CreatedAt) &&
		j.UpdatedAt.Equal(o.UpdatedAt) &&
		j.ErrorMessage == o.ErrorMessage &&
		j.SelectedInstrumental == o.SelectedInstrumental &&
		slices.Equal(j.Candidates, o.Candidates)
}

// Label renders "Artist - Title" for lists and log lines.
func (j Job) Label() string {
	switch {
	case j.Artist == "" && j.Title == "":
		return j.ID
	case j.Artist == "":
		return j.Title
	case j.Title == "":
		return j.Artist
	}
	return j.Artist + " - " + j.Title
}

// JobSpec is the user input for a new job.
type JobSpec struct {
	Artist        string `validate:"required,max=200"`
	Title         string `validate:"required,max=200"`
	Source        Source
	FilePath      string // local audio file, required for file sources
	StyleOverride string // optional path to a style reference file
}

// Tier is the account level derived from the session.
type Tier string

const (
	TierStandard Tier = "standard"
	TierAdmin    Tier = "admin"
)

// Session holds the access token and what the backend told us about it.
type Session struct {
	Token           string
	Tier            Tier
	JobsRemaining   int
	JobsUsed        int
	AuthenticatedAt time.Time
}

// IsAdmin reports whether the session may run admin operations.
func (s *Session) IsAdmin() bool { return s != nil && s.Tier == TierAdmin }

// HasQuota reports whether the session can submit another job.
func (s *Session) HasQuota() bool { return s != nil && s.JobsRemaining > 0 }

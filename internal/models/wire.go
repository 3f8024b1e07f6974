package models

import (
	"strings"
	"time"
)

// JobRecord is the backend's JSON shape for one job (GET /jobs, GET /jobs/{id}).
type JobRecord struct {
	ID                   string      `json:"id"`
	Artist               string      `json:"artist"`
	Title                string      `json:"title"`
	Source               Source      `json:"source"`
	Status               string      `json:"status"`
	Error                string      `json:"error,omitempty"`
	Instrumentals        []Candidate `json:"instrumentals,omitempty"`
	SelectedInstrumental string      `json:"selectedInstrumental,omitempty"`
	CreatedAt            time.Time   `json:"createdAt"`
	UpdatedAt            time.Time   `json:"updatedAt"`
}

// ToJob derives the lifecycle state and normalizes the record so the [Job] invariants hold.
func (r JobRecord) ToJob() Job {
	state := DeriveState(r.Status, RawFields{Error: r.Error, CandidateCount: len(r.Instrumentals)})

	job := Job{
		ID:                   r.ID,
		Artist:               r.Artist,
		Title:                r.Title,
		Source:               r.Source,
		State:                state,
		RawStatus:            r.Status,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
		SelectedInstrumental: r.SelectedInstrumental,
	}

	switch state {
	case Error:
		job.ErrorMessage = strings.TrimSpace(r.Error)
		if job.ErrorMessage == "" {
			job.ErrorMessage = GenericErrorMessage
		}
	case AwaitingReview:
		job.Candidates = append([]Candidate(nil), r.Instrumentals...)
	}

	return job
}

// RecordFromJob is the inverse of [JobRecord.ToJob] for exports and the sandbox backend.
func RecordFromJob(j Job) JobRecord {
	return JobRecord{
		ID:                   j.ID,
		Artist:               j.Artist,
		Title:                j.Title,
		Source:               j.Source,
		Status:               j.RawStatus,
		Error:                j.ErrorMessage,
		Instrumentals:        append([]Candidate(nil), j.Candidates...),
		SelectedInstrumental: j.SelectedInstrumental,
		CreatedAt:            j.CreatedAt,
		UpdatedAt:            j.UpdatedAt,
	}
}

// AuthRequest is the body of POST /auth.
type AuthRequest struct {
	Token string `json:"token"`
}

// AuthResponse is the session descriptor returned by POST /auth.
type AuthResponse struct {
	Tier          Tier `json:"tier"`
	JobsRemaining int  `json:"jobsRemaining"`
	JobsUsed      int  `json:"jobsUsed"`
}

// SubmitResponse is returned by POST /jobs.
type SubmitResponse struct {
	JobID         string `json:"jobId"`
	JobsRemaining *int   `json:"jobsRemaining,omitempty"`
	JobsUsed      *int   `json:"jobsUsed,omitempty"`
}

// SelectResponse acknowledges POST /jobs/{id}/instrumentals/{candidateId}/select.
type SelectResponse struct {
	OK bool `json:"ok"`
}

// ClearResponse is returned by DELETE /jobs?status=error.
type ClearResponse struct {
	Removed int `json:"removed"`
}

// ErrorEnvelope is the backend's error body: {"error": {"code": ..., "message": ...}}.
type ErrorEnvelope struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is the inner part of [ErrorEnvelope].
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Backend error codes.
const (
	CodeValidation    = "VALIDATION_ERROR"
	CodeQuotaExceeded = "QUOTA_EXCEEDED"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeTokenInvalid  = "TOKEN_INVALID"
	CodeTokenExpired  = "TOKEN_EXPIRED"
	CodeTokenRevoked  = "TOKEN_REVOKED"
	CodeForbidden     = "FORBIDDEN"
	CodeNotFound      = "NOT_FOUND"
	CodeNotReady      = "NOT_READY"
	CodeConflict      = "CONFLICT"
	CodeServiceError  = "SERVICE_ERROR"
)

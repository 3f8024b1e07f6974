package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/karaokectl/internal/models"
	"github.com/desertthunder/karaokectl/internal/shared"
)

const (
	codeUnauthorized = models.CodeUnauthorized
	maxUploadBytes   = 64 << 20
)

// NewHandler routes the job API to b.
func NewHandler(b *Backend, logger *log.Logger) http.Handler {
	if logger == nil {
		logger = b.logger
	}
	r := NewBasicRouter()
	r.Use(Logging(logger), Authenticate(b, "/auth"))

	r.Handle(http.MethodPost, "/auth", http.HandlerFunc(b.handleAuth))
	r.Handle(http.MethodPost, "/jobs", http.HandlerFunc(b.handleSubmit))
	r.Handle(http.MethodGet, "/jobs", http.HandlerFunc(b.handleList))
	r.Handle(http.MethodDelete, "/jobs", http.HandlerFunc(b.handleClear))
	r.Handle(http.MethodGet, "/jobs/{id}", http.HandlerFunc(b.handleGet))
	r.Handle(http.MethodGet, "/jobs/{id}/instrumentals", http.HandlerFunc(b.handleCandidates))
	r.Handle(http.MethodPost, "/jobs/{id}/instrumentals/{candidateId}/select", http.HandlerFunc(b.handleSelect))
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, models.ErrorEnvelope{Error: models.ErrorDetail{Code: code, Message: message}})
}

func (b *Backend) handleAuth(w http.ResponseWriter, r *http.Request) {
	var req models.AuthRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, models.CodeValidation, "body must be {\"token\": ...}")
		return
	}

	token, code := b.lookup(strings.TrimSpace(req.Token))
	if code != "" {
		writeError(w, http.StatusUnauthorized, code, "access token rejected")
		return
	}

	b.mu.Lock()
	acct := *b.accounts[token]
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, models.AuthResponse{Tier: acct.Tier, JobsRemaining: acct.Remaining, JobsUsed: acct.Used})
}

func (b *Backend) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, models.CodeValidation, "expected a multipart form")
		return
	}

	rec := models.JobRecord{
		Artist: strings.TrimSpace(r.FormValue("artist")),
		Title:  strings.TrimSpace(r.FormValue("title")),
		Source: models.Source{Kind: models.SourceKind(r.FormValue("sourceKind"))},
	}
	if rec.Artist == "" || rec.Title == "" {
		writeError(w, http.StatusBadRequest, models.CodeValidation, "artist and title are required")
		return
	}

	switch rec.Source.Kind {
	case models.SourceYouTube:
		rec.Source.URL = strings.TrimSpace(r.FormValue("youtubeUrl"))
		if rec.Source.URL == "" {
			writeError(w, http.StatusBadRequest, models.CodeValidation, "youtubeUrl is required")
			return
		}
	case models.SourceFile:
		f, header, err := r.FormFile("audio")
		if err != nil {
			writeError(w, http.StatusBadRequest, models.CodeValidation, "audio file is required")
			return
		}
		f.Close()
		rec.Source.Filename = header.Filename
	default:
		writeError(w, http.StatusBadRequest, models.CodeValidation, "sourceKind must be file or youtube")
		return
	}

	created, acct, err := b.create(accountFrom(r.Context()), rec)
	if errors.Is(err, shared.ErrQuotaExceeded) {
		writeError(w, http.StatusTooManyRequests, models.CodeQuotaExceeded, "no jobs remaining on this token")
		return
	}

	b.logger.Info("job created", "job", created.ID, "artist", created.Artist, "title", created.Title)
	writeJSON(w, http.StatusCreated, models.SubmitResponse{
		JobID:         created.ID,
		JobsRemaining: &acct.Remaining,
		JobsUsed:      &acct.Used,
	})
}

func (b *Backend) handleList(w http.ResponseWriter, r *http.Request) {
	records, err := b.list(accountFrom(r.Context()))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, models.CodeServiceError, "job store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (b *Backend) handleGet(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	j, err := b.get(accountFrom(r.Context()), r.PathValue("id"))
	var rec models.JobRecord
	if err == nil {
		rec = j.rec
	}
	b.mu.Unlock()

	if err != nil {
		writeError(w, http.StatusNotFound, models.CodeNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (b *Backend) handleCandidates(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	j, err := b.get(accountFrom(r.Context()), r.PathValue("id"))
	var candidates []models.Candidate
	ready := false
	if err == nil && j.stage == reviewStage && !j.failed {
		ready = true
		candidates = append(candidates, j.rec.Instrumentals...)
	}
	b.mu.Unlock()

	switch {
	case err != nil:
		writeError(w, http.StatusNotFound, models.CodeNotFound, "job not found")
	case !ready:
		writeError(w, http.StatusConflict, models.CodeNotReady, "job is not awaiting review")
	default:
		writeJSON(w, http.StatusOK, candidates)
	}
}

func (b *Backend) handleSelect(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	_, err := b.get(accountFrom(r.Context()), r.PathValue("id"))
	if err == nil {
		err = b.selectLocked(r.PathValue("id"), r.PathValue("candidateId"))
	}
	b.mu.Unlock()

	switch {
	case errors.Is(err, shared.ErrJobNotFound):
		writeError(w, http.StatusNotFound, models.CodeNotFound, "job not found")
	case errors.Is(err, shared.ErrConflict):
		writeError(w, http.StatusConflict, models.CodeConflict, "job is no longer awaiting review")
	case errors.Is(err, shared.ErrValidation):
		writeError(w, http.StatusBadRequest, models.CodeValidation, "unknown candidate")
	default:
		writeJSON(w, http.StatusOK, models.SelectResponse{OK: true})
	}
}

func (b *Backend) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("status") != "error" {
		writeError(w, http.StatusBadRequest, models.CodeValidation, "only status=error can be cleared")
		return
	}

	removed, err := b.clearErrors(accountFrom(r.Context()))
	if err != nil {
		writeError(w, http.StatusForbidden, models.CodeForbidden, "admin token required")
		return
	}
	writeJSON(w, http.StatusOK, models.ClearResponse{Removed: removed})
}

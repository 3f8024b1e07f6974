package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/karaokectl/internal/models"
	"github.com/desertthunder/karaokectl/internal/shared"
	"golang.org/x/time/rate"
)

// RegistryClient issues job requests to the backend through an [AuthGate].
type RegistryClient struct {
	baseURL    string
	gate       *AuthGate
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
}

// RegistryOptions configures a [RegistryClient].
type RegistryOptions struct {
	Timeout           time.Duration
	RequestsPerSecond float64 // zero disables pacing
	Logger            *log.Logger
}

// NewRegistryClient creates a client for the backend at baseURL, authorized by gate.
func NewRegistryClient(baseURL string, gate *AuthGate, opts RegistryOptions) *RegistryClient {
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}

	return &RegistryClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		gate:       gate,
		httpClient: gate.Client(opts.Timeout),
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
	}
}

// SubmitJob validates spec, checks the session quota and uploads the job as a multipart form.
func (c *RegistryClient) SubmitJob(ctx context.Context, spec models.JobSpec) (string, error) {
	spec, err := ValidateJobSpec(spec)
	if err != nil {
		return "", err
	}

	session := c.gate.Session()
	if session == nil {
		return "", fmt.Errorf("%w: no active session", shared.ErrSessionExpired)
	}
	if !session.HasQuota() {
		return "", fmt.Errorf("%w: %d jobs used, none remaining", shared.ErrQuotaExceeded, session.JobsUsed)
	}

	body, contentType, err := encodeJobForm(spec)
	if err != nil {
		return "", err
	}

	var resp models.SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/jobs", body, contentType, &resp); err != nil {
		return "", err
	}
	if resp.JobID == "" {
		return "", fmt.Errorf("%w: response is missing the job id", shared.ErrServer)
	}

	if resp.JobsRemaining != nil && resp.JobsUsed != nil {
		c.gate.UpdateUsage(*resp.JobsRemaining, *resp.JobsUsed)
	} else {
		remaining, used := c.gate.ConsumeJob()
		switch {
		case resp.JobsRemaining != nil:
			c.gate.UpdateUsage(*resp.JobsRemaining, used)
		case resp.JobsUsed != nil:
			c.gate.UpdateUsage(remaining, *resp.JobsUsed)
		}
	}

	c.logger.Info("job submitted", "job", resp.JobID, "artist", spec.Artist, "title", spec.Title, "source", spec.Source.Kind)
	return resp.JobID, nil
}

func encodeJobForm(spec models.JobSpec) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"artist", spec.Artist},
		{"title", spec.Title},
		{"sourceKind", string(spec.Source.Kind)},
	}
	if spec.Source.Kind == models.SourceYouTube {
		fields = append(fields, [2]string{"youtubeUrl", spec.Source.URL})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("failed to write form field %s: %w", f[0], err)
		}
	}

	if spec.Source.Kind == models.SourceFile {
		if err := attachFile(w, "audio", spec.FilePath); err != nil {
			return nil, "", err
		}
	}
	if spec.StyleOverride != "" {
		if err := attachFile(w, "style", spec.StyleOverride); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func attachFile(w *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: cannot open %s file: %v", shared.ErrValidation, field, err)
	}
	defer f.Close()

	part, err := w.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("failed to read %s file: %w", field, err)
	}
	return nil
}

// ListJobs returns every job, deduplicated by id. A later record for the same id wins but keeps
// the position of the first.
func (c *RegistryClient) ListJobs(ctx context.Context) ([]models.Job, error) {
	var records []models.JobRecord
	if err := c.do(ctx, http.MethodGet, "/jobs", nil, "", &records); err != nil {
		return nil, err
	}

	index := make(map[string]int, len(records))
	jobs := make([]models.Job, 0, len(records))
	for _, rec := range records {
		if rec.ID == "" {
			c.logger.Warn("skipping job record without id", "status", rec.Status)
			continue
		}
		job := c.toJob(rec)
		if i, ok := index[rec.ID]; ok {
			jobs[i] = job
			continue
		}
		index[rec.ID] = len(jobs)
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// GetJob fetches a single job.
func (c *RegistryClient) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	if jobID == "" {
		return nil, fmt.Errorf("%w: job id", shared.ErrMissingArgument)
	}

	var rec models.JobRecord
	if err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(jobID), nil, "", &rec); err != nil {
		return nil, err
	}
	job := c.toJob(rec)
	return &job, nil
}

// GetInstrumentalCandidates fetches the review candidates of a job.
//
// It fails with [shared.ErrNotReady] when the job is not awaiting review.
func (c *RegistryClient) GetInstrumentalCandidates(ctx context.Context, jobID string) ([]models.Candidate, error) {
	if jobID == "" {
		return nil, fmt.Errorf("%w: job id", shared.ErrMissingArgument)
	}

	var candidates []models.Candidate
	path := "/jobs/" + url.PathEscape(jobID) + "/instrumentals"
	if err := c.do(ctx, http.MethodGet, path, nil, "", &candidates); err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates for job %s", shared.ErrNotReady, jobID)
	}
	return candidates, nil
}

// SelectInstrumental resolves a review. A 409 means another session got there first and
// surfaces as [shared.ErrConflict].
func (c *RegistryClient) SelectInstrumental(ctx context.Context, jobID, candidateID string) error {
	if jobID == "" || candidateID == "" {
		return fmt.Errorf("%w: job id and candidate id", shared.ErrMissingArgument)
	}

	var ack models.SelectResponse
	path := "/jobs/" + url.PathEscape(jobID) + "/instrumentals/" + url.PathEscape(candidateID) + "/select"
	if err := c.do(ctx, http.MethodPost, path, nil, "", &ack); err != nil {
		return err
	}
	if !ack.OK {
		return fmt.Errorf("%w: selection was not acknowledged", shared.ErrServer)
	}

	c.logger.Info("instrumental selected", "job", jobID, "candidate", candidateID)
	return nil
}

// ClearErrorJobs removes every job in Error and returns how many went. Admin sessions only.
func (c *RegistryClient) ClearErrorJobs(ctx context.Context) (int, error) {
	session := c.gate.Session()
	if session == nil {
		return 0, fmt.Errorf("%w: no active session", shared.ErrSessionExpired)
	}
	if !session.IsAdmin() {
		return 0, fmt.Errorf("%w: clearing error jobs needs an admin session", shared.ErrForbidden)
	}

	var resp models.ClearResponse
	if err := c.do(ctx, http.MethodDelete, "/jobs?status=error", nil, "", &resp); err != nil {
		return 0, err
	}

	c.logger.Info("cleared error jobs", "removed", resp.Removed)
	return resp.Removed, nil
}

func (c *RegistryClient) toJob(rec models.JobRecord) models.Job {
	if !models.IsKnownStatus(rec.Status) {
		c.logger.Warn("unrecognized job status", "job", rec.ID, "status", rec.Status)
	}
	return rec.ToJob()
}

// do sends one paced request and decodes a JSON result. Failures are typed; see the package docs.
func (c *RegistryClient) do(ctx context.Context, method, path string, body io.Reader, contentType string, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", shared.ErrNetwork, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = classifyTransport(ctx, err)
		c.logger.Debug("request failed", "method", method, "path", path, "error", err)
		return err
	}
	defer resp.Body.Close()

	c.logger.Debug("request", "method", method, "path", path, "status", resp.StatusCode, "took", time.Since(start))

	if !isSuccess(resp.StatusCode) {
		apiErr := decodeAPIError(resp)
		if resp.StatusCode == http.StatusUnauthorized {
			apiErr.Kind = shared.ErrSessionExpired
		}
		return apiErr
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("%w: failed to decode response: %v", shared.ErrServer, err)
		}
	}
	return nil
}

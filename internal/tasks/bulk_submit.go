package tasks

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/desertthunder/karaokectl/internal/models"
	"github.com/desertthunder/karaokectl/internal/services"
	"github.com/desertthunder/karaokectl/internal/shared"
	"golang.org/x/time/rate"
)

// BulkSubmitOpts configures [Controller.BulkSubmit].
type BulkSubmitOpts struct {
	NumWorkers int     // concurrent submits (default 2, max 5)
	RateLimit  float64 // submits per second (default 1)
}

// SubmitResult is the outcome of one manifest row.
type SubmitResult struct {
	Spec  models.JobSpec
	JobID string
	Err   error
}

// BulkSubmitResult summarizes a manifest run. Results keep manifest order.
type BulkSubmitResult struct {
	Total     int
	Submitted int
	Failed    int
	Results   []SubmitResult
}

// BulkSubmit submits specs through a small worker pool.
//
// Rows are paced by a rate limiter. Once the backend reports the quota is exhausted the
// remaining rows are not sent and fail with [shared.ErrQuotaExceeded].
func (c *Controller) BulkSubmit(
	ctx context.Context,
	prog chan<- Event,
	specs []models.JobSpec,
	opts BulkSubmitOpts,
) (*BulkSubmitResult, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: manifest has no jobs", shared.ErrMissingArgument)
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 2
	}
	if opts.NumWorkers > 5 {
		opts.NumWorkers = 5
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 1
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	result := &BulkSubmitResult{Total: len(specs), Results: make([]SubmitResult, len(specs))}

	type row struct {
		index int
		spec  models.JobSpec
	}
	rows := make(chan row)
	done := make(chan row, len(specs))

	var wg sync.WaitGroup
	for range opts.NumWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := range rows {
				res := SubmitResult{Spec: r.spec}
				if err := limiter.Wait(ctx); err != nil {
					res.Err = stopCause(ctx, err)
				} else {
					res.JobID, res.Err = c.Submit(ctx, r.spec)
				}
				if errors.Is(res.Err, shared.ErrQuotaExceeded) {
					cancel(shared.ErrQuotaExceeded)
				}
				result.Results[r.index] = res
				done <- r
			}
		}()
	}

	go func() {
		defer close(rows)
		for i, spec := range specs {
			select {
			case <-ctx.Done():
				for j := i; j < len(specs); j++ {
					result.Results[j] = SubmitResult{Spec: specs[j], Err: stopCause(ctx, ctx.Err())}
					done <- row{index: j}
				}
				return
			case rows <- row{index: i, spec: spec}:
			}
		}
	}()

	for step := 1; step <= len(specs); step++ {
		r := <-done
		sendEvent(prog, bulkSubmittedEvent(step, len(specs), result.Results[r.index]))
	}
	wg.Wait()

	for _, res := range result.Results {
		if res.Err != nil {
			result.Failed++
		} else {
			result.Submitted++
		}
	}

	if cause := context.Cause(ctx); errors.Is(cause, shared.ErrQuotaExceeded) {
		return result, fmt.Errorf("%w: submitted %d of %d", shared.ErrQuotaExceeded, result.Submitted, result.Total)
	}
	return result, nil
}

// stopCause prefers the cancellation cause over the bare context error.
func stopCause(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); cause != nil {
		return cause
	}
	return err
}

func sendEvent(prog chan<- Event, ev Event) {
	if prog == nil {
		return
	}
	select {
	case prog <- ev:
	default:
	}
}

var manifestColumns = []string{"artist", "title", "source", "style"}

// ParseManifest reads a CSV manifest with an "artist,title,source,style" header.
//
// source is either a YouTube URL or a path to an audio file; style is optional. Rows are
// validated before anything is sent and every invalid row is reported with its line number.
func ParseManifest(r io.Reader) ([]models.JobSpec, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	cr.Comment = '#'

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: manifest is empty", shared.ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
	}

	cols := map[string]int{}
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range manifestColumns[:3] {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("%w: manifest is missing the %q column", shared.ErrInvalidInput, name)
		}
	}

	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var specs []models.JobSpec
	var problems []string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
		}
		line, _ := cr.FieldPos(0)

		spec := models.JobSpec{
			Artist:        field(rec, "artist"),
			Title:         field(rec, "title"),
			StyleOverride: field(rec, "style"),
		}
		source := field(rec, "source")
		if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
			spec.Source = models.Source{Kind: models.SourceYouTube, URL: source}
		} else if source != "" {
			spec.Source = models.Source{Kind: models.SourceFile}
			spec.FilePath = source
		}

		valid, err := services.ValidateJobSpec(spec)
		if err != nil {
			problems = append(problems, fmt.Sprintf("line %d: %s", line, shared.Describe(err).Message))
			continue
		}
		specs = append(specs, valid)
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", shared.ErrValidation, strings.Join(problems, "; "))
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: manifest has no jobs", shared.ErrInvalidInput)
	}
	return specs, nil
}

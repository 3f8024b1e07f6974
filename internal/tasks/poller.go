package tasks

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/karaokectl/internal/models"
	"github.com/desertthunder/karaokectl/internal/shared"
	"github.com/desertthunder/karaokectl/internal/store"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultMaxInterval  = 60 * time.Second
)

// JobLister is the part of the registry the poller needs.
type JobLister interface {
	ListJobs(ctx context.Context) ([]models.Job, error)
}

// PollerOptions configures a [Poller].
type PollerOptions struct {
	Interval    time.Duration
	MaxInterval time.Duration
	GraceCycles int
	Enabled     bool
	OnCycle     func(CycleResult) // called after every cycle, outside the cycle lock
	Logger      *log.Logger

	// Apply replaces direct store writes when set. It reports false when the cycle's context no
	// longer belongs to the live session, and the cycle is then dropped with [shared.ErrDiscarded].
	Apply func(ctx context.Context, m store.Mutation) (store.Result, bool)
}

// CycleResult is the outcome of one poll cycle.
type CycleResult struct {
	ID       string
	Result   store.Result
	Err      error
	Failures int           // consecutive failures including this one
	Next     time.Duration // delay before the next scheduled cycle
}

// Poller refreshes the store from the registry on an interval.
type Poller struct {
	registry JobLister
	store    *store.Store
	flights  *Flights
	opts     PollerOptions
	logger   *log.Logger

	cycleMu sync.Mutex

	mu       sync.Mutex
	enabled  bool
	failures int
	backoff  *backoff.ExponentialBackOff

	trigger chan struct{}
}

// NewPoller creates a poller writing into s. flights may be nil.
func NewPoller(registry JobLister, s *store.Store, flights *Flights, opts PollerOptions) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.MaxInterval < opts.Interval {
		opts.MaxInterval = max(DefaultMaxInterval, opts.Interval)
	}
	if opts.GraceCycles <= 0 {
		opts.GraceCycles = store.DefaultGraceCycles
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(io.Discard)
	}
	if flights == nil {
		flights = NewFlights()
	}

	return &Poller{
		registry: registry,
		store:    s,
		flights:  flights,
		opts:     opts,
		logger:   opts.Logger,
		enabled:  opts.Enabled,
		backoff:  newBackoff(opts.Interval, opts.MaxInterval),
		trigger:  make(chan struct{}, 1),
	}
}

// newBackoff doubles from interval up to maxInterval with no jitter and never gives up.
func newBackoff(interval, maxInterval time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = interval
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = maxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Cycle runs one refresh. Cycles never overlap: a second caller waits for the first.
func (p *Poller) Cycle(ctx context.Context) CycleResult {
	res := p.cycle(ctx)
	if p.opts.OnCycle != nil && ctx.Err() == nil && !errors.Is(res.Err, shared.ErrDiscarded) {
		p.opts.OnCycle(res)
	}
	return res
}

func (p *Poller) cycle(ctx context.Context) CycleResult {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	res := CycleResult{ID: shared.GenerateID()}
	started := p.store.Seq()

	jobs, err := p.registry.ListJobs(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		res.Err = ctxErr
		return res
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		if !errors.Is(err, shared.ErrSessionExpired) {
			result, ok := p.apply(ctx, store.MarkStale{Reason: shared.Describe(err).Message})
			if !ok {
				res.Err = shared.ErrDiscarded
				return res
			}
			res.Result = result
		}
		p.failures++
		res.Err = err
		res.Failures = p.failures
		res.Next = p.backoff.NextBackOff()
		p.logger.Warn("poll failed", "error", err, "failures", p.failures, "next", res.Next)
		return res
	}

	result, ok := p.apply(ctx, store.Snapshot{
		CycleID:    res.ID,
		StartedSeq: started,
		Jobs:       jobs,
		InFlight:   p.flights.Snapshot(),
		Grace:      p.opts.GraceCycles,
		ObservedAt: time.Now(),
	})
	if !ok {
		p.logger.Debug("poll result discarded: session ended", "cycle", res.ID)
		res.Err = shared.ErrDiscarded
		return res
	}
	res.Result = result
	if p.failures > 0 {
		p.logger.Info("poll recovered", "after", p.failures)
	}
	p.failures = 0
	p.backoff.Reset()
	res.Next = p.opts.Interval

	p.logger.Debug("poll", "jobs", len(jobs), "inserted", len(res.Result.Inserted), "updated", len(res.Result.Updated), "removed", len(res.Result.Removed))
	return res
}

func (p *Poller) apply(ctx context.Context, m store.Mutation) (store.Result, bool) {
	if p.opts.Apply != nil {
		return p.opts.Apply(ctx, m)
	}
	return p.store.Apply(m), true
}

// Run polls until ctx is done or the session expires. It cycles immediately when enabled.
//
// While disabled, scheduled cycles are skipped but [Poller.Trigger] still runs one.
func (p *Poller) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.trigger:
			if ctx.Err() != nil {
				// leave it for the next loop
				p.Trigger()
				return ctx.Err()
			}
		case <-timer.C:
			if !p.Enabled() {
				continue
			}
		}

		res := p.Cycle(ctx)
		if errors.Is(res.Err, shared.ErrSessionExpired) || errors.Is(res.Err, shared.ErrDiscarded) {
			p.logger.Info("poller stopped: session ended")
			return res.Err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		timer.Reset(res.Next)
	}
}

// Trigger asks the running loop for a cycle now. Extra triggers while one is pending are dropped.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// SetEnabled toggles auto-refresh. Turning it on triggers a cycle.
func (p *Poller) SetEnabled(on bool) {
	p.mu.Lock()
	was := p.enabled
	p.enabled = on
	p.mu.Unlock()

	if on && !was {
		p.Trigger()
	}
}

// Enabled reports whether auto-refresh is on.
func (p *Poller) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// Failures is the number of consecutive failed cycles.
func (p *Poller) Failures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures
}

// Wait blocks until any cycle in progress has finished.
func (p *Poller) Wait() {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()
}

// Interval is the normal cadence.
func (p *Poller) Interval() time.Duration { return p.opts.Interval }

package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/karaokectl/internal/models"
	"github.com/desertthunder/karaokectl/internal/services"
	"github.com/desertthunder/karaokectl/internal/shared"
	"github.com/desertthunder/karaokectl/internal/store"
)

// Gate is the session side of the controller's dependencies; [services.AuthGate] implements it.
type Gate interface {
	Authenticate(ctx context.Context, token string) (*models.Session, error)
	Restore(ctx context.Context) (*models.Session, error)
	Session() *models.Session
	OnExpire(fn func())
	Logout() error
}

// SnapshotSaver persists the last known job list for offline viewing.
type SnapshotSaver interface {
	Replace(jobs []models.Job, observedAt time.Time) error
	Clear() error
}

// ControllerOptions configures a [Controller].
type ControllerOptions struct {
	Poller    PollerOptions
	Snapshots SnapshotSaver // optional
	Logger    *log.Logger
	EventBuf  int
}

// Controller wires the gate, registry, store and poller together and owns every mutating call.
type Controller struct {
	gate      Gate
	registry  services.Registry
	store     *store.Store
	flights   *Flights
	poller    *Poller
	snapshots SnapshotSaver
	logger    *log.Logger
	events    chan Event

	mu       sync.Mutex
	epoch    uint64
	ctx      context.Context
	cancel   context.CancelFunc
	running  chan struct{} // closed when the poll loop exits
	stopping chan struct{} // a loop cancelled by expiry that may still be winding down
}

type epochKey struct{}

// sessionContext returns a cancellable context tagged with epoch.
func sessionContext(epoch uint64) (context.Context, context.CancelFunc) {
	return context.WithCancel(context.WithValue(context.Background(), epochKey{}, epoch))
}

// NewController creates a controller. The store starts empty; call [Controller.Login] or
// [Controller.Restore] before anything else.
func NewController(gate Gate, registry services.Registry, s *store.Store, opts ControllerOptions) *Controller {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(io.Discard)
	}
	if opts.EventBuf <= 0 {
		opts.EventBuf = 64
	}
	if opts.Poller.Logger == nil {
		opts.Poller.Logger = opts.Logger
	}

	c := &Controller{
		gate:      gate,
		registry:  registry,
		store:     s,
		flights:   NewFlights(),
		snapshots: opts.Snapshots,
		logger:    opts.Logger,
		events:    make(chan Event, opts.EventBuf),
	}

	pollOpts := opts.Poller
	pollOpts.OnCycle = c.onCycle
	pollOpts.Apply = c.applyCtx
	c.poller = NewPoller(registry, s, c.flights, pollOpts)
	c.ctx, c.cancel = sessionContext(c.epoch)

	gate.OnExpire(c.onExpire)
	return c
}

// Events delivers controller events. The channel is never closed.
func (c *Controller) Events() <-chan Event { return c.events }

// Store returns the job cache.
func (c *Controller) Store() *store.Store { return c.store }

// Poller returns the refresh loop.
func (c *Controller) Poller() *Poller { return c.poller }

// Session returns the active session, or nil.
func (c *Controller) Session() *models.Session { return c.gate.Session() }

func (c *Controller) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Debug("event dropped", "kind", ev.Kind)
	}
}

// session returns the current epoch and its context.
func (c *Controller) session() (uint64, context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch, c.ctx
}

func (c *Controller) current(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch == epoch
}

// applyIf applies m only while epoch is still the live session.
func (c *Controller) applyIf(epoch uint64, m store.Mutation) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch {
		return false
	}
	c.store.Apply(m)
	return true
}

// applyCtx applies m only while the epoch carried by ctx is still the live session. A context
// without an epoch never writes.
func (c *Controller) applyCtx(ctx context.Context, m store.Mutation) (store.Result, bool) {
	epoch, ok := ctx.Value(epochKey{}).(uint64)
	if !ok {
		return store.Result{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch {
		return store.Result{}, false
	}
	return c.store.Apply(m), true
}

// bind derives a context that is cancelled by either parent or the end of the session.
func (c *Controller) bind(parent context.Context) (uint64, context.Context, context.CancelFunc) {
	epoch, sessCtx := c.session()
	ctx, cancel := context.WithCancel(context.WithValue(parent, epochKey{}, epoch))
	stop := context.AfterFunc(sessCtx, cancel)
	return epoch, ctx, func() {
		stop()
		cancel()
	}
}

// Login authenticates token and starts a fresh session. Jobs cached for a previous session
// are dropped.
func (c *Controller) Login(ctx context.Context, token string) (*models.Session, error) {
	c.endSession()
	c.poller.Wait()
	c.store.Apply(store.Reset{})

	session, err := c.gate.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	c.emit(sessionStartedEvent(session))
	return session, nil
}

// Restore re-authenticates from the persisted token.
func (c *Controller) Restore(ctx context.Context) (*models.Session, error) {
	session, err := c.gate.Restore(ctx)
	if err != nil {
		return nil, err
	}
	c.emit(sessionStartedEvent(session))
	return session, nil
}

// Start runs the poll loop in the background for the current session.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running != nil {
		return
	}
	done := make(chan struct{})
	c.running = done
	prev := c.stopping
	c.stopping = nil
	ctx := c.ctx

	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}
		if err := c.poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Debug("poll loop exited", "error", err)
		}
		c.mu.Lock()
		if c.running == done {
			c.running = nil
		}
		if c.stopping == done {
			c.stopping = nil
		}
		c.mu.Unlock()
	}()
}

// Refresh runs one poll cycle now and waits for it.
func (c *Controller) Refresh(ctx context.Context) CycleResult {
	_, ctx, cancel := c.bind(ctx)
	defer cancel()
	return c.poller.Cycle(ctx)
}

// SetAutoRefresh toggles the background cadence.
func (c *Controller) SetAutoRefresh(on bool) { c.poller.SetEnabled(on) }

func (c *Controller) onCycle(res CycleResult) {
	if res.Err != nil {
		if errors.Is(res.Err, shared.ErrSessionExpired) {
			return
		}
		c.emit(pollFailedEvent(res))
		return
	}

	for _, t := range res.Result.Transitions {
		c.emit(transitionEvent(t))
	}
	if res.Result.Changed() {
		c.emit(pollSucceededEvent(res))
	}

	if c.snapshots != nil {
		if err := c.snapshots.Replace(c.store.Jobs(), time.Now()); err != nil {
			c.logger.Warn("failed to persist job snapshot", "error", err)
		}
	}
}

// Submit creates a job and adds it to the store once the backend acknowledges it.
func (c *Controller) Submit(ctx context.Context, spec models.JobSpec) (string, error) {
	key := "submit:" + strings.ToLower(strings.TrimSpace(spec.Artist)+"|"+strings.TrimSpace(spec.Title))
	if err := c.flights.Begin(key, "submit"); err != nil {
		return "", err
	}
	defer c.flights.End(key)

	epoch, ctx, cancel := c.bind(ctx)
	defer cancel()

	id, err := c.registry.SubmitJob(ctx, spec)
	if err != nil {
		if !c.current(epoch) {
			return "", shared.ErrDiscarded
		}
		return "", err
	}

	now := time.Now().UTC()
	job := models.Job{
		ID:        id,
		Artist:    strings.TrimSpace(spec.Artist),
		Title:     strings.TrimSpace(spec.Title),
		Source:    spec.Source,
		State:     models.Queued,
		RawStatus: "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if job.Source.Kind == models.SourceFile && spec.FilePath != "" {
		job.Source.Filename = filepath.Base(spec.FilePath)
	}
	if !c.applyIf(epoch, store.Inserted{Job: job}) {
		return "", shared.ErrDiscarded
	}
	c.emit(submittedEvent(id, spec))
	c.poller.Trigger()
	return id, nil
}

// SelectInstrumental resolves the review of jobID.
//
// The row is marked submitting while the call runs and polls leave the job alone. On ack the
// job moves to Finalizing; on failure the flag is rolled back and the row shows the error. A
// conflict also triggers a refresh so the real state comes back.
func (c *Controller) SelectInstrumental(ctx context.Context, jobID, candidateID string) error {
	entry, ok := c.store.Get(jobID)
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrJobNotFound, jobID)
	}
	if !entry.Job.NeedsReview() {
		return fmt.Errorf("%w: %s is %s", shared.ErrConflict, jobID, entry.Job.State.Title())
	}

	if err := c.flights.Begin(jobID, "select"); err != nil {
		return err
	}
	defer c.flights.End(jobID)

	epoch, ctx, cancel := c.bind(ctx)
	defer cancel()

	if !c.applyIf(epoch, store.SelectionStarted{JobID: jobID}) {
		return shared.ErrDiscarded
	}
	err := c.registry.SelectInstrumental(ctx, jobID, candidateID)

	if err != nil {
		if !c.applyIf(epoch, store.SelectionRolledBack{JobID: jobID, Message: shared.Describe(err).Message}) {
			c.logger.Debug("discarding selection result from an ended session", "job", jobID)
			return shared.ErrDiscarded
		}
		c.emit(selectionFailedEvent(jobID, err))
		if errors.Is(err, shared.ErrConflict) {
			c.poller.Trigger()
		}
		return err
	}

	if !c.applyIf(epoch, store.SelectionAcked{JobID: jobID, CandidateID: candidateID}) {
		c.logger.Debug("discarding selection result from an ended session", "job", jobID)
		return shared.ErrDiscarded
	}
	c.emit(selectionConfirmedEvent(jobID, candidateID))
	return nil
}

// ClearErrors removes failed jobs on the backend, then from the store.
func (c *Controller) ClearErrors(ctx context.Context) (int, error) {
	const key = "clear-errors"
	if err := c.flights.Begin(key, "clear"); err != nil {
		return 0, err
	}
	defer c.flights.End(key)

	epoch, ctx, cancel := c.bind(ctx)
	defer cancel()

	n, err := c.registry.ClearErrorJobs(ctx)
	if err != nil {
		if !c.current(epoch) {
			return 0, shared.ErrDiscarded
		}
		return 0, err
	}
	if !c.applyIf(epoch, store.ErrorsCleared{}) {
		return 0, shared.ErrDiscarded
	}
	c.emit(errorsClearedEvent(n))
	return n, nil
}

// OpenReview flags jobID as under review in the store.
func (c *Controller) OpenReview(jobID string, open bool) {
	c.store.Apply(store.ReviewOpened{JobID: jobID, Open: open})
}

// Candidates fetches review candidates within the current session.
func (c *Controller) Candidates(ctx context.Context, jobID string) ([]models.Candidate, error) {
	epoch, ctx, cancel := c.bind(ctx)
	defer cancel()

	candidates, err := c.registry.GetInstrumentalCandidates(ctx, jobID)
	var badge string
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrServer), errors.Is(err, shared.ErrNetwork):
		badge = shared.Describe(err).Message
	default:
		if !c.current(epoch) {
			return nil, shared.ErrDiscarded
		}
		return nil, err
	}

	if !c.applyIf(epoch, store.RowFailed{JobID: jobID, Message: badge}) {
		return nil, shared.ErrDiscarded
	}
	return candidates, err
}

// Logout ends the session, stops polling, empties the store and forgets the token.
func (c *Controller) Logout() error {
	c.endSession()
	c.poller.Wait()
	c.store.Apply(store.Reset{})

	err := c.gate.Logout()
	if c.snapshots != nil {
		if clearErr := c.snapshots.Clear(); clearErr != nil {
			c.logger.Warn("failed to clear job snapshot", "error", clearErr)
		}
	}
	c.emit(loggedOutEvent())
	return err
}

// Close stops the poll loop and waits for it.
func (c *Controller) Close() {
	c.endSession()
}

func (c *Controller) onExpire() {
	c.mu.Lock()
	c.epoch++
	c.cancel()
	c.ctx, c.cancel = sessionContext(c.epoch)
	if c.running != nil {
		c.stopping = c.running
	}
	c.running = nil
	c.store.Apply(store.Reset{})
	c.mu.Unlock()

	c.emit(sessionExpiredEvent())
}

// endSession bumps the epoch, cancels everything bound to the old session and waits for the
// poll loop to exit.
func (c *Controller) endSession() {
	c.mu.Lock()
	c.epoch++
	c.cancel()
	c.ctx, c.cancel = sessionContext(c.epoch)
	running, stopping := c.running, c.stopping
	c.running, c.stopping = nil, nil
	c.mu.Unlock()

	for _, ch := range []chan struct{}{running, stopping} {
		if ch != nil {
			<-ch
		}
	}
}

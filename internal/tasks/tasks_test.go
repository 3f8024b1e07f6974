package tasks

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/karaokectl/internal/models"
	"github.com/desertthunder/karaokectl/internal/server"
	"github.com/desertthunder/karaokectl/internal/services"
	"github.com/desertthunder/karaokectl/internal/store"
	"github.com/desertthunder/karaokectl/internal/shared"
	tu "github.com/desertthunder/karaokectl/internal/testing"
)

const testVideo = "https://www.youtube.com/watch?v=Sj_9CiNkkn4"

// harness is a controller talking to the sandbox backend over HTTP.
type harness struct {
	backend   *server.Backend
	gate      *services.AuthGate
	registry  *services.RegistryClient
	ctrl      *Controller
	sessions  *tu.MemorySessionStore
	snapshots *memorySnapshots
	url       string
}

// newHarness logs acct in against a fresh sandbox. wrap, if set, decorates the sandbox handler.
func newHarness(t *testing.T, acct server.Account, wrap func(http.Handler) http.Handler) *harness {
	t.Helper()

	backend := server.NewBackend(nil)
	backend.AddAccount(acct)

	handler := server.NewHandler(backend, nil)
	if wrap != nil {
		handler = wrap(handler)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	sessions := &tu.MemorySessionStore{}
	gate := services.NewAuthGate(srv.URL, sessions, nil, nil)
	registry := services.NewRegistryClient(srv.URL, gate, services.RegistryOptions{Timeout: 5 * time.Second})
	snapshots := &memorySnapshots{}
	ctrl := NewController(gate, registry, store.New(nil), ControllerOptions{Snapshots: snapshots})
	t.Cleanup(ctrl.Close)

	if _, err := ctrl.Login(context.Background(), acct.Token); err != nil {
		t.Fatalf("login: %v", err)
	}

	return &harness{
		backend:   backend,
		gate:      gate,
		registry:  registry,
		ctrl:      ctrl,
		sessions:  sessions,
		snapshots: snapshots,
		url:       srv.URL,
	}
}

func (h *harness) submit(t *testing.T, artist, title string) string {
	t.Helper()
	id, err := h.ctrl.Submit(context.Background(), models.JobSpec{
		Artist: artist,
		Title:  title,
		Source: models.Source{Kind: models.SourceYouTube, URL: testVideo},
	})
	if err != nil {
		t.Fatalf("submit %s: %v", title, err)
	}
	return id
}

func (h *harness) refresh(t *testing.T) CycleResult {
	t.Helper()
	res := h.ctrl.Refresh(context.Background())
	if res.Err != nil {
		t.Fatalf("refresh: %v", res.Err)
	}
	return res
}

func (h *harness) entry(t *testing.T, id string) store.Entry {
	t.Helper()
	e, ok := h.ctrl.Store().Get(id)
	if !ok {
		t.Fatalf("job %s not in store", id)
	}
	return e
}

// drain returns the events buffered so far.
func (h *harness) drain() []Event {
	var out []Event
	for {
		select {
		case ev := <-h.ctrl.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func hasEvent(events []Event, kind EventKind) bool {
	for _, ev := range events {
		if ev.Kind == kind {
			return true
		}
	}
	return false
}

type memorySnapshots struct {
	mu       sync.Mutex
	jobs     []models.Job
	replaces int
	clears   int
}

func (m *memorySnapshots) Replace(jobs []models.Job, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = jobs
	m.replaces++
	return nil
}

func (m *memorySnapshots) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = nil
	m.clears++
	return nil
}

func (m *memorySnapshots) counts() (replaces, clears, jobs int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replaces, m.clears, len(m.jobs)
}

// gatedSelect blocks select requests until release is closed or the client gives up.
func gatedSelect(entered chan<- struct{}, release <-chan struct{}) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/select") {
				entered <- struct{}{}
				select {
				case <-release:
				case <-r.Context().Done():
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// stubGate hands out a fixed session until expire is called.
type stubGate struct {
	mu       sync.Mutex
	session  *models.Session
	onExpire func()
}

func newStubGate() *stubGate {
	return &stubGate{session: &models.Session{Token: "good", Tier: models.TierStandard, JobsRemaining: 3}}
}

func (g *stubGate) Authenticate(_ context.Context, token string) (*models.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.session = &models.Session{Token: token, Tier: models.TierStandard, JobsRemaining: 3}
	return g.session, nil
}

func (g *stubGate) Restore(context.Context) (*models.Session, error) { return g.Session(), nil }

func (g *stubGate) Session() *models.Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session
}

func (g *stubGate) OnExpire(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onExpire = fn
}

// expire mimics a 401 on some concurrent request.
func (g *stubGate) expire() {
	g.mu.Lock()
	g.session = nil
	fn := g.onExpire
	g.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (g *stubGate) Logout() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.session = nil
	return nil
}

// stubRegistry answers ListJobs from a script; the other operations are not used.
type stubRegistry struct {
	mu     sync.Mutex
	list   func(ctx context.Context) ([]models.Job, error)
	listed int
}

func (r *stubRegistry) ListJobs(ctx context.Context) ([]models.Job, error) {
	r.mu.Lock()
	r.listed++
	list := r.list
	r.mu.Unlock()
	return list(ctx)
}

func (r *stubRegistry) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listed
}

var errUnused = errors.New("not used by this test")

func (r *stubRegistry) SubmitJob(context.Context, models.JobSpec) (string, error) {
	return "", errUnused
}

func (r *stubRegistry) GetJob(context.Context, string) (*models.Job, error) { return nil, errUnused }

func (r *stubRegistry) GetInstrumentalCandidates(context.Context, string) ([]models.Candidate, error) {
	return nil, errUnused
}

func (r *stubRegistry) SelectInstrumental(context.Context, string, string) error { return errUnused }

func (r *stubRegistry) ClearErrorJobs(context.Context) (int, error) { return 0, shared.ErrForbidden }

func queuedJob(id string) models.Job {
	return models.Job{ID: id, Artist: "ABBA", Title: "Waterloo", State: models.Queued, RawStatus: "queued"}
}

// failingCandidates answers candidate requests with a 500 while fail is set.
func failingCandidates(fail *atomic.Bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if fail.Load() && strings.HasSuffix(r.URL.Path, "/instrumentals") {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":{"code":"INTERNAL","message":"separation service unavailable"}}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package server

import (
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/karaokectl/internal/models"
	"github.com/desertthunder/karaokectl/internal/shared"
)

// TokenStatus is the lifecycle of a sandbox access token.
type TokenStatus string

const (
	TokenActive  TokenStatus = "active"
	TokenExpired TokenStatus = "expired"
	TokenRevoked TokenStatus = "revoked"
)

// Account is one access token known to the sandbox.
type Account struct {
	Token     string
	Tier      models.Tier
	Remaining int
	Used      int
	Status    TokenStatus
}

// pipeline is the raw status sequence a sandbox job walks through. The review stage waits for a
// selection; [Backend.Advance] never moves past it on its own.
var pipeline = []string{
	"queued",
	"downloading",
	"separating_audio",
	"transcribing",
	"awaiting_review",
	"instrumental_selected",
	"rendering",
	"complete",
}

const reviewStage = 4

type sandboxJob struct {
	rec    models.JobRecord
	owner  string
	stage  int
	failed bool
}

// Backend is an in-memory implementation of the job API used by dev-server and tests.
type Backend struct {
	mu         sync.Mutex
	accounts   map[string]*Account
	jobs       map[string]*sandboxJob
	order      []string
	listFaults int
	hidden     map[string]int
	now        func() time.Time
	logger     *log.Logger
}

// NewBackend creates an empty sandbox.
func NewBackend(logger *log.Logger) *Backend {
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	return &Backend{
		accounts: make(map[string]*Account),
		jobs:     make(map[string]*sandboxJob),
		hidden:   make(map[string]int),
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// AddAccount registers an access token.
func (b *Backend) AddAccount(acct Account) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if acct.Status == "" {
		acct.Status = TokenActive
	}
	if acct.Tier == "" {
		acct.Tier = models.TierStandard
	}
	b.accounts[acct.Token] = &acct
}

// SetTokenStatus expires or revokes a token.
func (b *Backend) SetTokenStatus(token string, status TokenStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if acct, ok := b.accounts[token]; ok {
		acct.Status = status
	}
}

// Usage returns the quota counters of a token.
func (b *Backend) Usage(token string) (remaining, used int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if acct, ok := b.accounts[token]; ok {
		return acct.Remaining, acct.Used
	}
	return 0, 0
}

// lookup returns the token if it is active, or the error code for rejecting it.
func (b *Backend) lookup(token string) (string, string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	acct, ok := b.accounts[token]
	switch {
	case !ok:
		return "", models.CodeTokenInvalid
	case acct.Status == TokenExpired:
		return "", models.CodeTokenExpired
	case acct.Status == TokenRevoked:
		return "", models.CodeTokenRevoked
	}
	return token, ""
}

// FailNextLists makes the next n GET /jobs calls answer 503.
func (b *Backend) FailNextLists(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listFaults = n
}

// HideNextLists leaves job id out of the next n GET /jobs responses.
func (b *Backend) HideNextLists(id string, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hidden[id] = n
}

// Job returns the current record of a job.
func (b *Backend) Job(id string) (models.JobRecord, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	j, ok := b.jobs[id]
	if !ok {
		return models.JobRecord{}, false
	}
	return j.rec, true
}

// JobIDs lists every job id in creation order.
func (b *Backend) JobIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.order)
}

// Advance moves a job one stage along its pipeline. Jobs awaiting review, finished or failed
// stay where they are. It reports whether the job moved.
func (b *Backend) Advance(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	j, ok := b.jobs[id]
	if !ok || j.stage == reviewStage || j.stage >= len(pipeline)-1 || j.failed {
		return false
	}
	b.setStage(j, j.stage+1)
	return true
}

// AdvanceAll advances every job once and returns how many moved.
func (b *Backend) AdvanceAll() int {
	moved := 0
	for _, id := range b.JobIDs() {
		if b.Advance(id) {
			moved++
		}
	}
	return moved
}

// AdvanceTo walks a job forward until it reaches status or cannot move any more.
func (b *Backend) AdvanceTo(id, status string) bool {
	for {
		rec, ok := b.Job(id)
		if !ok {
			return false
		}
		if rec.Status == status {
			return true
		}
		if !b.Advance(id) {
			return false
		}
	}
}

// Fail puts a job into the error state.
func (b *Backend) Fail(id, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	j, ok := b.jobs[id]
	if !ok {
		return
	}
	j.failed = true
	j.rec.Status = "failed"
	j.rec.Error = message
	j.rec.Instrumentals = nil
	j.rec.UpdatedAt = b.now()
}

// Resolve selects a candidate as if another session had done it.
func (b *Backend) Resolve(id, candidateID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.selectLocked(id, candidateID)
}

func (b *Backend) selectLocked(id, candidateID string) error {
	j, ok := b.jobs[id]
	if !ok {
		return shared.ErrJobNotFound
	}
	if j.stage != reviewStage || j.failed {
		return shared.ErrConflict
	}
	if !slices.ContainsFunc(j.rec.Instrumentals, func(c models.Candidate) bool { return c.ID == candidateID }) {
		return shared.ErrValidation
	}
	j.rec.SelectedInstrumental = candidateID
	b.setStage(j, reviewStage+1)
	return nil
}

func (b *Backend) setStage(j *sandboxJob, stage int) {
	j.stage = stage
	j.rec.Status = pipeline[stage]
	j.rec.UpdatedAt = b.now()

	if stage == reviewStage {
		j.rec.Instrumentals = []models.Candidate{
			{ID: "inst-clean", Label: "Clean instrumental", PreviewURL: fmt.Sprintf("https://sandbox.invalid/preview/%s/clean.mp3", j.rec.ID)},
			{ID: "inst-backing", Label: "With backing vocals", PreviewURL: fmt.Sprintf("https://sandbox.invalid/preview/%s/backing.mp3", j.rec.ID)},
		}
	} else {
		j.rec.Instrumentals = nil
	}
	b.logger.Debug("job advanced", "job", j.rec.ID, "status", j.rec.Status)
}

func (b *Backend) create(owner string, rec models.JobRecord) (models.JobRecord, *Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	acct := b.accounts[owner]
	if acct.Remaining <= 0 {
		return models.JobRecord{}, nil, shared.ErrQuotaExceeded
	}
	acct.Remaining--
	acct.Used++

	now := b.now()
	rec.ID = shared.GenerateID()
	rec.Status = pipeline[0]
	rec.CreatedAt = now
	rec.UpdatedAt = now

	b.jobs[rec.ID] = &sandboxJob{rec: rec, owner: owner}
	b.order = append(b.order, rec.ID)

	out := *acct
	return rec, &out, nil
}

func (b *Backend) visible(owner string, j *sandboxJob) bool {
	acct := b.accounts[owner]
	return j.owner == owner || (acct != nil && acct.Tier == models.TierAdmin)
}

func (b *Backend) list(owner string) ([]models.JobRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.listFaults > 0 {
		b.listFaults--
		return nil, shared.ErrServer
	}

	out := make([]models.JobRecord, 0, len(b.order))
	for _, id := range b.order {
		if n := b.hidden[id]; n > 0 {
			b.hidden[id] = n - 1
			continue
		}
		if j := b.jobs[id]; b.visible(owner, j) {
			out = append(out, j.rec)
		}
	}
	return out, nil
}

func (b *Backend) get(owner, id string) (*sandboxJob, error) {
	j, ok := b.jobs[id]
	if !ok || !b.visible(owner, j) {
		return nil, shared.ErrJobNotFound
	}
	return j, nil
}

func (b *Backend) clearErrors(owner string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if acct := b.accounts[owner]; acct == nil || acct.Tier != models.TierAdmin {
		return 0, shared.ErrForbidden
	}

	kept := b.order[:0]
	removed := 0
	for _, id := range b.order {
		if b.jobs[id].failed {
			delete(b.jobs, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	b.order = kept
	return removed, nil
}

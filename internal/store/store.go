package store

import (
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/karaokectl/internal/models"
	"github.com/desertthunder/karaokectl/internal/shared"
)

// DefaultGraceCycles is how many consecutive polls may miss a job before it is dropped. Smaller
// windows are raised to it.
const DefaultGraceCycles = 2

// Entry is one cached job plus the UI state that belongs to it.
type Entry struct {
	Job        models.Job
	ReviewOpen bool   // the review surface is showing this job
	Submitting bool   // a selection is in flight
	RowError   string // last failure for this row, shown as a badge

	misses     int
	mutatedSeq uint64
}

// Transition records a lifecycle change applied by a mutation.
type Transition struct {
	JobID string
	Label string
	From  models.State
	To    models.State
}

// Result describes what one [Store.Apply] call changed.
type Result struct {
	Inserted    []string
	Updated     []string
	Removed     []string
	Skipped     []string // present in a snapshot but held back by a local mutation
	Ignored     []string // snapshot tried to move the job backwards
	Transitions []Transition
	StaleChange bool
}

// Changed reports whether the mutation altered anything visible.
func (r Result) Changed() bool {
	return len(r.Inserted) > 0 || len(r.Updated) > 0 || len(r.Removed) > 0 || r.StaleChange
}

// Store is the single owned job cache.
type Store struct {
	mu         sync.RWMutex
	entries    map[string]*Entry
	order      []string
	seq        uint64
	clearedSeq uint64
	lastCycle  string
	stale      bool
	staleErr   string
	lastSync   time.Time
	logger     *log.Logger
}

// New creates an empty store.
func New(logger *log.Logger) *Store {
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	return &Store{entries: make(map[string]*Entry), logger: logger}
}

// Mutation is a write against the store. The set of mutations is closed.
type Mutation interface {
	apply(s *Store, r *Result)
}

// Apply runs m under the store lock.
func (s *Store) Apply(m Mutation) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	var r Result
	m.apply(s, &r)
	return r
}

// Seq is a counter bumped by every local mutation of a job. Poll cycles record it when they
// start; see [Snapshot.StartedSeq].
func (s *Store) Seq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// Entries returns copies of every entry in first-seen order.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, copyEntry(s.entries[id]))
	}
	return out
}

// Jobs returns copies of every cached job in first-seen order.
func (s *Store) Jobs() []models.Job {
	entries := s.Entries()
	jobs := make([]models.Job, len(entries))
	for i, e := range entries {
		jobs[i] = e.Job
	}
	return jobs
}

// Get returns a copy of the entry for id.
func (s *Store) Get(id string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return Entry{}, false
	}
	return copyEntry(e), true
}

// Len is the number of cached jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Stale reports whether the last poll failed, and why.
func (s *Store) Stale() (bool, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stale, s.staleErr
}

// LastSync is when the last successful snapshot was merged.
func (s *Store) LastSync() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync
}

// Counts tallies cached jobs per state.
func (s *Store) Counts() map[models.State]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[models.State]int, len(models.States()))
	for _, e := range s.entries {
		counts[e.Job.State]++
	}
	return counts
}

func copyEntry(e *Entry) Entry {
	out := *e
	out.Job.Candidates = append([]models.Candidate(nil), e.Job.Candidates...)
	return out
}

// touch marks e as locally mutated. Caller holds the lock.
func (s *Store) touch(e *Entry) {
	s.seq++
	e.mutatedSeq = s.seq
}

func (s *Store) insert(job models.Job) *Entry {
	e := &Entry{Job: job}
	s.entries[job.ID] = e
	s.order = append(s.order, job.ID)
	return e
}

func (s *Store) remove(id string) {
	delete(s.entries, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

package store

import (
	"time"

	"github.com/desertthunder/karaokectl/internal/models"
)

// Snapshot merges the result of one poll cycle.
type Snapshot struct {
	CycleID    string          // applying the same cycle twice is a no-op
	StartedSeq uint64          // [Store.Seq] when the cycle began
	Jobs       []models.Job    // deduplicated by id
	InFlight   map[string]bool // job ids with a mutation in progress
	Grace      int             // consecutive absences before removal; never below [DefaultGraceCycles]
	ObservedAt time.Time
}

func (m Snapshot) apply(s *Store, r *Result) {
	if m.CycleID != "" && m.CycleID == s.lastCycle {
		return
	}
	s.lastCycle = m.CycleID

	grace := max(m.Grace, DefaultGraceCycles)

	seen := make(map[string]bool, len(m.Jobs))
	for _, job := range m.Jobs {
		if job.ID == "" || seen[job.ID] {
			continue
		}
		seen[job.ID] = true

		e, ok := s.entries[job.ID]
		if !ok {
			if job.State == models.Error && s.clearedSeq > m.StartedSeq {
				r.Skipped = append(r.Skipped, job.ID)
				continue
			}
			s.insert(job)
			r.Inserted = append(r.Inserted, job.ID)
			continue
		}
		e.misses = 0

		if m.InFlight[job.ID] || e.mutatedSeq > m.StartedSeq {
			r.Skipped = append(r.Skipped, job.ID)
			continue
		}
		s.merge(e, job, r)
	}

	for _, id := range append([]string(nil), s.order...) {
		e := s.entries[id]
		if seen[id] || m.InFlight[id] || e.mutatedSeq > m.StartedSeq {
			continue
		}
		e.misses++
		if e.misses >= grace {
			s.logger.Debug("dropping job absent from polls", "job", id, "misses", e.misses)
			s.remove(id)
			r.Removed = append(r.Removed, id)
		}
	}

	if s.stale {
		r.StaleChange = true
	}
	s.stale = false
	s.staleErr = ""
	s.lastSync = m.ObservedAt
	if s.lastSync.IsZero() {
		s.lastSync = time.Now()
	}
}

// merge updates e in place from an observed job. UI-only fields are kept.
func (s *Store) merge(e *Entry, job models.Job, r *Result) {
	from := e.Job.State
	if !from.CanTransition(job.State) {
		s.logger.Warn("ignoring lifecycle regression", "job", job.ID, "local", from, "observed", job.State, "raw", job.RawStatus)
		r.Ignored = append(r.Ignored, job.ID)
		return
	}
	if e.Job.SelectedInstrumental != "" {
		job.SelectedInstrumental = e.Job.SelectedInstrumental
	}
	if e.Job.Equal(job) {
		return
	}

	e.Job = job
	r.Updated = append(r.Updated, job.ID)

	if from != job.State {
		r.Transitions = append(r.Transitions, Transition{JobID: job.ID, Label: job.Label(), From: from, To: job.State})
		e.RowError = ""
		if job.State == models.Unknown {
			s.logger.Warn("job entered unknown state", "job", job.ID, "raw", job.RawStatus)
		}
	}
	if !job.NeedsReview() {
		e.ReviewOpen = false
	}
}

// Inserted adds a job the backend just acknowledged.
type Inserted struct {
	Job models.Job
}

func (m Inserted) apply(s *Store, r *Result) {
	if m.Job.ID == "" {
		return
	}
	if _, ok := s.entries[m.Job.ID]; ok {
		return
	}
	e := s.insert(m.Job)
	s.touch(e)
	r.Inserted = append(r.Inserted, m.Job.ID)
}

// SelectionStarted marks a review selection as in flight.
type SelectionStarted struct {
	JobID string
}

func (m SelectionStarted) apply(s *Store, r *Result) {
	e, ok := s.entries[m.JobID]
	if !ok {
		return
	}
	e.Submitting = true
	e.RowError = ""
	s.touch(e)
	r.Updated = append(r.Updated, m.JobID)
}

// SelectionAcked moves the job to Finalizing after the backend accepted the selection.
type SelectionAcked struct {
	JobID       string
	CandidateID string
}

func (m SelectionAcked) apply(s *Store, r *Result) {
	e, ok := s.entries[m.JobID]
	if !ok {
		return
	}
	e.Submitting = false
	e.ReviewOpen = false
	e.RowError = ""
	s.touch(e)
	r.Updated = append(r.Updated, m.JobID)

	from := e.Job.State
	if !from.CanTransition(models.Finalizing) {
		return
	}
	e.Job.State = models.Finalizing
	e.Job.Candidates = nil
	if e.Job.SelectedInstrumental == "" {
		e.Job.SelectedInstrumental = m.CandidateID
	}
	if from != models.Finalizing {
		r.Transitions = append(r.Transitions, Transition{JobID: m.JobID, Label: e.Job.Label(), From: from, To: models.Finalizing})
	}
}

// SelectionRolledBack undoes [SelectionStarted] after a failure.
type SelectionRolledBack struct {
	JobID   string
	Message string
}

func (m SelectionRolledBack) apply(s *Store, r *Result) {
	e, ok := s.entries[m.JobID]
	if !ok {
		return
	}
	e.Submitting = false
	e.RowError = m.Message
	s.touch(e)
	r.Updated = append(r.Updated, m.JobID)
}

// ErrorsCleared drops every job in Error after the backend removed them.
type ErrorsCleared struct{}

func (ErrorsCleared) apply(s *Store, r *Result) {
	for _, id := range append([]string(nil), s.order...) {
		if s.entries[id].Job.State == models.Error {
			s.remove(id)
			r.Removed = append(r.Removed, id)
		}
	}
	s.seq++
	s.clearedSeq = s.seq
}

// MarkStale records a failed poll. The cached jobs are left as they are.
type MarkStale struct {
	Reason string
}

func (m MarkStale) apply(s *Store, r *Result) {
	if !s.stale {
		r.StaleChange = true
	}
	s.stale = true
	s.staleErr = m.Reason
}

// ReviewOpened toggles the review surface flag of one job.
type ReviewOpened struct {
	JobID string
	Open  bool
}

func (m ReviewOpened) apply(s *Store, r *Result) {
	e, ok := s.entries[m.JobID]
	if !ok || e.ReviewOpen == m.Open {
		return
	}
	if m.Open && !e.Job.NeedsReview() {
		return
	}
	e.ReviewOpen = m.Open
	r.Updated = append(r.Updated, m.JobID)
}

// RowFailed attaches an error badge to one job without touching its lifecycle.
type RowFailed struct {
	JobID   string
	Message string
}

func (m RowFailed) apply(s *Store, r *Result) {
	e, ok := s.entries[m.JobID]
	if !ok || e.RowError == m.Message {
		return
	}
	e.RowError = m.Message
	r.Updated = append(r.Updated, m.JobID)
}

// Reset empties the store.
type Reset struct{}

func (Reset) apply(s *Store, r *Result) {
	r.Removed = append(r.Removed, s.order...)
	s.entries = make(map[string]*Entry)
	s.order = nil
	s.lastCycle = ""
	s.stale = false
	s.staleErr = ""
	s.lastSync = time.Time{}
	s.seq++
}

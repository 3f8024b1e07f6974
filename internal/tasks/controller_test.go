package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/karaokectl/internal/models"
	"github.com/desertthunder/karaokectl/internal/server"
	"github.com/desertthunder/karaokectl/internal/services"
	"github.com/desertthunder/karaokectl/internal/shared"
	"github.com/desertthunder/karaokectl/internal/store"
	tu "github.com/desertthunder/karaokectl/internal/testing"
)

func TestScenarios(t *testing.T) {
	ctx := context.Background()

	t.Run("A Submit Then List", func(t *testing.T) {
		h := newHarness(t, server.Account{Token: "good", Remaining: 3}, nil)
		audio := tu.WriteFile(t, t.TempDir(), "waterloo.mp3", "ID3 fake audio")

		id, err := h.ctrl.Submit(ctx, models.JobSpec{
			Artist:   "ABBA",
			Title:    "Waterloo",
			Source:   models.Source{Kind: models.SourceFile},
			FilePath: audio,
		})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if id == "" {
			t.Fatal("expected a job id")
		}

		e := h.entry(t, id)
		if e.Job.State != models.Queued || e.Job.Source.Filename != "waterloo.mp3" {
			t.Errorf("unexpected optimistic job %+v", e.Job)
		}

		jobs, err := h.registry.ListJobs(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(jobs) != 1 || jobs[0].ID != id {
			t.Fatalf("expected the new job in the list, got %+v", jobs)
		}
		if st := jobs[0].State; st != models.Queued && st != models.Processing {
			t.Errorf("expected Queued or Processing, got %v", st)
		}

		if s := h.ctrl.Session(); s.JobsRemaining != 2 || s.JobsUsed != 1 {
			t.Errorf("expected usage updated, got %+v", s)
		}
		if !hasEvent(h.drain(), JobSubmitted) {
			t.Error("expected a JobSubmitted event")
		}
	})

	t.Run("B Quota Exhausted", func(t *testing.T) {
		h := newHarness(t, server.Account{Token: "good", Remaining: 0}, nil)

		_, err := h.ctrl.Submit(ctx, models.JobSpec{
			Artist: "ABBA",
			Title:  "Waterloo",
			Source: models.Source{Kind: models.SourceYouTube, URL: testVideo},
		})
		if !errors.Is(err, shared.ErrQuotaExceeded) {
			t.Fatalf("expected ErrQuotaExceeded, got %v", err)
		}
		if len(h.backend.JobIDs()) != 0 || h.ctrl.Store().Len() != 0 {
			t.Error("no job should be created")
		}
	})

	t.Run("B Quota Rechecked By Backend", func(t *testing.T) {
		h := newHarness(t, server.Account{Token: "good", Remaining: 0}, nil)
		h.gate.UpdateUsage(5, 0)

		_, err := h.ctrl.Submit(ctx, models.JobSpec{
			Artist: "ABBA",
			Title:  "Waterloo",
			Source: models.Source{Kind: models.SourceYouTube, URL: testVideo},
		})
		if !errors.Is(err, shared.ErrQuotaExceeded) {
			t.Fatalf("expected ErrQuotaExceeded from the backend, got %v", err)
		}
		if len(h.backend.JobIDs()) != 0 {
			t.Error("no job should be created")
		}
	})

	t.Run("C Review Ready", func(t *testing.T) {
		h := newHarness(t, server.Account{Token: "good", Remaining: 3}, nil)
		id := h.submit(t, "ABBA", "Waterloo")
		h.backend.AdvanceTo(id, "awaiting_review")

		res := h.refresh(t)
		if len(res.Result.Transitions) != 1 || res.Result.Transitions[0].To != models.AwaitingReview {
			t.Errorf("expected one transition to AwaitingReview, got %+v", res.Result.Transitions)
		}

		e := h.entry(t, id)
		if e.Job.State != models.AwaitingReview {
			t.Fatalf("expected AwaitingReview, got %v", e.Job.State)
		}

		review := NewReview(h.ctrl, func(string) error { return nil })
		if err := review.Open(ctx, e.Job); err != nil {
			t.Fatalf("open review: %v", err)
		}
		view := review.View()
		if view.State != ReviewPresenting || len(view.Candidates) != 2 {
			t.Fatalf("expected two candidates presented, got %+v", view)
		}
		if view.Candidates[0].ID != "inst-clean" || view.Candidates[1].ID != "inst-backing" {
			t.Errorf("unexpected candidates %+v", view.Candidates)
		}
		if !h.entry(t, id).ReviewOpen {
			t.Error("expected the row flagged as under review")
		}
	})

	t.Run("D Select Then Complete", func(t *testing.T) {
		h := newHarness(t, server.Account{Token: "good", Remaining: 3}, nil)
		id := h.submit(t, "ABBA", "Waterloo")
		h.backend.AdvanceTo(id, "awaiting_review")
		h.refresh(t)

		review := NewReview(h.ctrl, nil)
		if err := review.Open(ctx, h.entry(t, id).Job); err != nil {
			t.Fatalf("open review: %v", err)
		}
		if err := review.Select("inst-backing"); err != nil {
			t.Fatalf("select: %v", err)
		}
		if err := review.Confirm(ctx); err != nil {
			t.Fatalf("confirm: %v", err)
		}

		view := review.View()
		if view.State != ReviewResolved || !view.Succeeded {
			t.Errorf("expected resolved with success, got %+v", view)
		}
		e := h.entry(t, id)
		if e.Job.State != models.Finalizing || e.Job.SelectedInstrumental != "inst-backing" {
			t.Errorf("expected Finalizing with the selection, got %+v", e.Job)
		}
		if e.ReviewOpen || e.Submitting {
			t.Errorf("expected review UI closed, got %+v", e)
		}
		if rec, _ := h.backend.Job(id); rec.SelectedInstrumental != "inst-backing" {
			t.Errorf("backend did not record the selection: %+v", rec)
		}

		review.Close()
		if review.View().State != ReviewHidden {
			t.Error("expected hidden after close")
		}

		h.backend.AdvanceTo(id, "complete")
		h.refresh(t)
		e = h.entry(t, id)
		if e.Job.State != models.Complete || e.ReviewOpen || len(e.Job.Candidates) != 0 {
			t.Errorf("expected Complete with no review UI, got %+v", e)
		}
		if !hasEvent(h.drain(), SelectionConfirmed) {
			t.Error("expected a SelectionConfirmed event")
		}
	})

	t.Run("E Stale Then Recover", func(t *testing.T) {
		h := newHarness(t, server.Account{Token: "good", Remaining: 3}, nil)
		first := h.submit(t, "ABBA", "Waterloo")
		h.submit(t, "ABBA", "Mamma Mia")
		h.refresh(t)
		before := h.ctrl.Store().Jobs()

		h.backend.FailNextLists(3)
		h.backend.Advance(first)

		wantNext := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}
		for i, next := range wantNext {
			res := h.ctrl.Refresh(ctx)
			if !errors.Is(res.Err, shared.ErrServer) {
				t.Fatalf("failure %d: expected ErrServer, got %v", i+1, res.Err)
			}
			if res.Next != next {
				t.Errorf("failure %d: next = %v, want %v", i+1, res.Next, next)
			}
		}

		if stale, _ := h.ctrl.Store().Stale(); !stale {
			t.Error("expected the stale indicator on")
		}
		after := h.ctrl.Store().Jobs()
		if len(after) != len(before) {
			t.Fatalf("expected %d jobs kept, got %d", len(before), len(after))
		}
		for i := range before {
			if !before[i].Equal(after[i]) {
				t.Errorf("job %d changed during the outage: %+v -> %+v", i, before[i], after[i])
			}
		}

		res := h.refresh(t)
		if !res.Result.StaleChange || res.Next != DefaultPollInterval {
			t.Errorf("expected recovery at the normal cadence, got %+v", res)
		}
		if stale, _ := h.ctrl.Store().Stale(); stale {
			t.Error("expected the stale indicator cleared")
		}
		if e := h.entry(t, first); e.Job.State != models.Processing {
			t.Errorf("expected the fresh snapshot applied, got %v", e.Job.State)
		}

		events := h.drain()
		if !hasEvent(events, PollFailed) || !hasEvent(events, PollSucceeded) {
			t.Errorf("expected failure and success events, got %+v", events)
		}
	})

	t.Run("F Logout While Submitting", func(t *testing.T) {
		entered := make(chan struct{}, 1)
		release := make(chan struct{})
		defer close(release)

		h := newHarness(t, server.Account{Token: "good", Remaining: 3}, gatedSelect(entered, release))
		id := h.submit(t, "ABBA", "Waterloo")
		h.backend.AdvanceTo(id, "awaiting_review")
		h.refresh(t)

		review := NewReview(h.ctrl, nil)
		if err := review.Open(ctx, h.entry(t, id).Job); err != nil {
			t.Fatalf("open review: %v", err)
		}
		if err := review.Select("inst-clean"); err != nil {
			t.Fatal(err)
		}

		done := make(chan error, 1)
		go func() { done <- review.Confirm(ctx) }()

		select {
		case <-entered:
		case <-time.After(2 * time.Second):
			t.Fatal("select request never reached the backend")
		}
		if !h.entry(t, id).Submitting {
			t.Error("expected the row marked submitting")
		}
		if view := review.View(); view.State != ReviewSubmitting {
			t.Errorf("expected Submitting, got %v", view.State)
		}

		if err := h.ctrl.Logout(); err != nil {
			t.Fatalf("logout: %v", err)
		}
		seq := h.ctrl.Store().Seq()

		select {
		case err := <-done:
			if !errors.Is(err, shared.ErrDiscarded) {
				t.Errorf("expected ErrDiscarded, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("confirm did not return after logout")
		}

		if h.ctrl.Store().Len() != 0 || h.ctrl.Store().Seq() != seq {
			t.Error("no store mutation may happen after logout")
		}
		if review.View().State != ReviewHidden {
			t.Errorf("expected the workflow hidden, got %v", review.View().State)
		}
		if h.ctrl.Session() != nil || h.sessions.Stored() != nil {
			t.Error("expected the session cleared")
		}
	})
}

func TestController(t *testing.T) {
	ctx := context.Background()

	t.Run("Select Conflict Rolls Back", func(t *testing.T) {
		h := newHarness(t, server.Account{Token: "good", Remaining: 3}, nil)
		id := h.submit(t, "ABBA", "Waterloo")
		h.backend.AdvanceTo(id, "awaiting_review")
		h.refresh(t)

		if err := h.backend.Resolve(id, "inst-clean"); err != nil {
			t.Fatal(err)
		}

		err := h.ctrl.SelectInstrumental(ctx, id, "inst-backing")
		if !errors.Is(err, shared.ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
		e := h.entry(t, id)
		if e.Submitting || e.RowError == "" {
			t.Errorf("expected rollback with a row error, got %+v", e)
		}
		if e.Job.State != models.AwaitingReview {
			t.Errorf("local state should wait for the next poll, got %v", e.Job.State)
		}
		if !hasEvent(h.drain(), SelectionFailed) {
			t.Error("expected a SelectionFailed event")
		}

		h.refresh(t)
		if e := h.entry(t, id); e.Job.State != models.Finalizing || e.RowError != "" {
			t.Errorf("expected the poll to bring back the real state, got %+v", e)
		}
	})

	t.Run("Select Guards", func(t *testing.T) {
		h := newHarness(t, server.Account{Token: "good", Remaining: 3}, nil)
		id := h.submit(t, "ABBA", "Waterloo")

		if err := h.ctrl.SelectInstrumental(ctx, "missing", "c1"); !errors.Is(err, shared.ErrJobNotFound) {
			t.Errorf("expected ErrJobNotFound, got %v", err)
		}
		if err := h.ctrl.SelectInstrumental(ctx, id, "c1"); !errors.Is(err, shared.ErrConflict) {
			t.Errorf("expected ErrConflict for a queued job, got %v", err)
		}

		h.backend.AdvanceTo(id, "awaiting_review")
		h.refresh(t)
		if err := h.ctrl.flights.Begin(id, "select"); err != nil {
			t.Fatal(err)
		}
		if err := h.ctrl.SelectInstrumental(ctx, id, "inst-clean"); !errors.Is(err, shared.ErrBusy) {
			t.Errorf("expected ErrBusy, got %v", err)
		}
	})

	t.Run("Clear Errors", func(t *testing.T) {
		h := newHarness(t, server.Account{Token: "admin", Tier: models.TierAdmin, Remaining: 5}, nil)
		failed := h.submit(t, "ABBA", "Waterloo")
		h.submit(t, "ABBA", "Mamma Mia")
		h.backend.Fail(failed, "")
		h.refresh(t)

		if e := h.entry(t, failed); e.Job.State != models.Error || e.Job.ErrorMessage == "" {
			t.Fatalf("expected Error with a message, got %+v", e.Job)
		}

		n, err := h.ctrl.ClearErrors(ctx)
		if err != nil {
			t.Fatalf("clear errors: %v", err)
		}
		if n != 1 || h.ctrl.Store().Len() != 1 {
			t.Errorf("expected one job removed, got n=%d len=%d", n, h.ctrl.Store().Len())
		}
		if _, ok := h.ctrl.Store().Get(failed); ok {
			t.Error("failed job still cached")
		}

		h.refresh(t)
		if h.ctrl.Store().Len() != 1 {
			t.Errorf("expected the cleared job to stay gone, got %d jobs", h.ctrl.Store().Len())
		}
	})

	t.Run("Clear Errors Requires Admin", func(t *testing.T) {
		h := newHarness(t, server.Account{Token: "good", Remaining: 5}, nil)
		failed := h.submit(t, "ABBA", "Waterloo")
		h.backend.Fail(failed, "boom")
		h.refresh(t)

		if _, err := h.ctrl.ClearErrors(ctx); !errors.Is(err, shared.ErrForbidden) {
			t.Errorf("expected ErrForbidden, got %v", err)
		}
		if h.ctrl.Store().Len() != 1 {
			t.Error("nothing should be removed locally")
		}
	})

	t.Run("Grace Window", func(t *testing.T) {
		h := newHarness(t, server.Account{Token: "good", Remaining: 3}, nil)
		id := h.submit(t, "ABBA", "Waterloo")
		h.refresh(t)

		h.backend.HideNextLists(id, 1)
		h.refresh(t)
		h.entry(t, id)
		h.refresh(t)

		h.backend.HideNextLists(id, 2)
		h.refresh(t)
		h.entry(t, id)
		res := h.refresh(t)
		if len(res.Result.Removed) != 1 {
			t.Fatalf("expected the job removed after two absences, got %+v", res.Result)
		}

		res = h.refresh(t)
		if len(res.Result.Inserted) != 1 {
			t.Errorf("expected the job back once it reappears, got %+v", res.Result)
		}
	})

	t.Run("Session Expiry", func(t *testing.T) {
		h := newHarness(t, server.Account{Token: "good", Remaining: 3}, nil)
		h.submit(t, "ABBA", "Waterloo")
		h.refresh(t)
		h.drain()

		h.backend.SetTokenStatus("good", server.TokenExpired)
		if res := h.ctrl.Refresh(ctx); res.Err == nil {
			t.Fatal("expected the refresh to fail")
		}

		if h.ctrl.Session() != nil || h.sessions.Stored() != nil {
			t.Error("expected the session cleared everywhere")
		}
		if h.ctrl.Store().Len() != 0 {
			t.Error("expected the store emptied")
		}
		if !hasEvent(h.drain(), SessionExpired) {
			t.Error("expected a SessionExpired event")
		}

		_, err := h.ctrl.Submit(ctx, models.JobSpec{
			Artist: "ABBA",
			Title:  "SOS",
			Source: models.Source{Kind: models.SourceYouTube, URL: testVideo},
		})
		if !errors.Is(err, shared.ErrSessionExpired) {
			t.Errorf("expected ErrSessionExpired after expiry, got %v", err)
		}
	})

	t.Run("Login Starts Fresh", func(t *testing.T) {
		h := newHarness(t, server.Account{Token: "good", Remaining: 3}, nil)
		h.backend.AddAccount(server.Account{Token: "other", Remaining: 3})
		h.submit(t, "ABBA", "Waterloo")

		if _, err := h.ctrl.Login(ctx, "other"); err != nil {
			t.Fatalf("login: %v", err)
		}
		h.refresh(t)
		if h.ctrl.Store().Len() != 0 {
			t.Errorf("expected only the new account's jobs, got %d", h.ctrl.Store().Len())
		}
	})

	t.Run("Restore", func(t *testing.T) {
		h := newHarness(t, server.Account{Token: "good", Remaining: 3}, nil)

		gate := services.NewAuthGate(h.url, h.sessions, nil, nil)
		registry := services.NewRegistryClient(h.url, gate, services.RegistryOptions{})
		ctrl := NewController(gate, registry, store.New(nil), ControllerOptions{})
		defer ctrl.Close()

		session, err := ctrl.Restore(ctx)
		if err != nil {
			t.Fatalf("restore: %v", err)
		}
		if session.Token != "good" || session.JobsRemaining != 3 {
			t.Errorf("unexpected session %+v", session)
		}
	})

	t.Run("Snapshots And Logout", func(t *testing.T) {
		h := newHarness(t, server.Account{Token: "good", Remaining: 3}, nil)
		h.submit(t, "ABBA", "Waterloo")
		h.refresh(t)

		if replaces, _, jobs := h.snapshots.counts(); replaces == 0 || jobs != 1 {
			t.Errorf("expected the snapshot persisted, got replaces=%d jobs=%d", replaces, jobs)
		}

		if err := h.ctrl.Logout(); err != nil {
			t.Fatalf("logout: %v", err)
		}
		if _, clears, jobs := h.snapshots.counts(); clears != 1 || jobs != 0 {
			t.Errorf("expected the snapshot cleared, got clears=%d jobs=%d", clears, jobs)
		}
		if h.ctrl.Store().Len() != 0 || h.ctrl.Session() != nil || h.sessions.Stored() != nil {
			t.Error("expected everything cleared after logout")
		}
		if !hasEvent(h.drain(), LoggedOut) {
			t.Error("expected a LoggedOut event")
		}
	})

	t.Run("Background Loop", func(t *testing.T) {
		h := newHarness(t, server.Account{Token: "good", Remaining: 3}, nil)
		id := h.submit(t, "ABBA", "Waterloo")
		h.ctrl.SetAutoRefresh(true)
		h.ctrl.Start()
		h.backend.Advance(id)

		deadline := time.Now().Add(2 * time.Second)
		for h.entry(t, id).Job.State != models.Processing {
			if time.Now().After(deadline) {
				t.Fatal("background loop never refreshed the job")
			}
			h.ctrl.Poller().Trigger()
			time.Sleep(10 * time.Millisecond)
		}
		h.ctrl.Close()
	})
}

func TestSessionEndsMidCycle(t *testing.T) {
	ctx := context.Background()

	t.Run("Expiry During Refresh Leaves Store Empty", func(t *testing.T) {
		for range 50 {
			gate := newStubGate()
			registry := &stubRegistry{}
			registry.list = func(context.Context) ([]models.Job, error) {
				gate.expire()
				return []models.Job{queuedJob("a")}, nil
			}
			ctrl := NewController(gate, registry, store.New(nil), ControllerOptions{})

			res := ctrl.Refresh(ctx)
			if !errors.Is(res.Err, shared.ErrDiscarded) && !errors.Is(res.Err, context.Canceled) {
				t.Fatalf("expected the cycle dropped, got %v", res.Err)
			}
			if n := ctrl.Store().Len(); n != 0 {
				t.Fatalf("expected an empty store after expiry, got %d jobs", n)
			}
			for _, ev := range drainEvents(ctrl) {
				if ev.Kind == PollSucceeded || ev.Kind == JobTransitioned {
					t.Fatalf("unexpected %v event from the ended session", ev.Kind)
				}
			}
			ctrl.Close()
		}
	})

	t.Run("Expiry During Failed Refresh Is Not Stale", func(t *testing.T) {
		gate := newStubGate()
		registry := &stubRegistry{}
		registry.list = func(context.Context) ([]models.Job, error) {
			gate.expire()
			return nil, shared.ErrNetwork
		}
		ctrl := NewController(gate, registry, store.New(nil), ControllerOptions{})
		defer ctrl.Close()

		ctrl.Refresh(ctx)
		if stale, _ := ctrl.Store().Stale(); stale {
			t.Error("expected no stale flag from the ended session")
		}
		if ctrl.Poller().Failures() != 0 {
			t.Errorf("expected no failure counted, got %d", ctrl.Poller().Failures())
		}
	})

	t.Run("Restarted Loop Gets The Trigger", func(t *testing.T) {
		gate := newStubGate()
		registry := &stubRegistry{}
		registry.list = func(context.Context) ([]models.Job, error) {
			return []models.Job{queuedJob("a")}, nil
		}
		ctrl := NewController(gate, registry, store.New(nil), ControllerOptions{
			Poller: PollerOptions{Interval: time.Hour},
		})
		defer ctrl.Close()

		ctrl.Start()
		gate.expire()
		ctrl.Start()
		ctrl.Poller().Trigger()

		deadline := time.Now().Add(2 * time.Second)
		for ctrl.Store().Len() != 1 {
			if time.Now().After(deadline) {
				t.Fatalf("restarted loop never cycled, %d list calls", registry.calls())
			}
			time.Sleep(5 * time.Millisecond)
		}
	})
}

func TestCandidateRowBadge(t *testing.T) {
	ctx := context.Background()
	var fail atomic.Bool
	h := newHarness(t, server.Account{Token: "good", Remaining: 3}, failingCandidates(&fail))
	id := h.submit(t, "ABBA", "Waterloo")
	h.backend.AdvanceTo(id, "awaiting_review")
	h.refresh(t)

	t.Run("Server Error Marks The Row", func(t *testing.T) {
		fail.Store(true)
		_, err := h.ctrl.Candidates(ctx, id)
		if !errors.Is(err, shared.ErrServer) {
			t.Fatalf("expected ErrServer, got %v", err)
		}
		if h.entry(t, id).RowError == "" {
			t.Error("expected an error badge on the row")
		}
		if h.entry(t, id).Job.State != models.AwaitingReview {
			t.Error("expected the lifecycle untouched")
		}
	})

	t.Run("Success Clears The Badge", func(t *testing.T) {
		fail.Store(false)
		candidates, err := h.ctrl.Candidates(ctx, id)
		if err != nil {
			t.Fatalf("candidates: %v", err)
		}
		if len(candidates) != 2 {
			t.Errorf("expected two candidates, got %d", len(candidates))
		}
		if e := h.entry(t, id); e.RowError != "" {
			t.Errorf("expected the badge cleared, got %q", e.RowError)
		}
	})

	t.Run("Not Ready Leaves The Row Alone", func(t *testing.T) {
		other := h.submit(t, "ABBA", "SOS")
		h.refresh(t)
		if _, err := h.ctrl.Candidates(ctx, other); !errors.Is(err, shared.ErrNotReady) {
			t.Fatalf("expected ErrNotReady, got %v", err)
		}
		if e := h.entry(t, other); e.RowError != "" {
			t.Errorf("expected no badge, got %q", e.RowError)
		}
	})
}

func drainEvents(ctrl *Controller) []Event {
	var out []Event
	for {
		select {
		case ev := <-ctrl.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

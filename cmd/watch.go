package main

import (
	"context"
	"time"

	"github.com/desertthunder/karaokectl/internal/formatter"
	"github.com/desertthunder/karaokectl/internal/models"
	"github.com/desertthunder/karaokectl/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Watch prints the job table once, then streams transitions from the background poller until
// ctx is cancelled or the session expires.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	c, err := r.connect(ctx)
	if err != nil {
		return err
	}
	defer c.ctrl.Close()

	if err := c.sync(ctx); err != nil {
		return err
	}

	colorize := formatter.Colorize(r.output)
	jobs := c.ctrl.Store().Jobs()
	r.writePlain("%s\n", formatter.RenderTable(jobs, formatter.Options{Colorize: colorize}))

	exitWhenIdle := cmd.Bool("exit-when-idle")
	if exitWhenIdle && idle(jobs) {
		return r.writePlain("Nothing in flight.\n")
	}

	c.ctrl.SetAutoRefresh(true)
	c.ctrl.Start()
	r.logger.Info("watching jobs", "interval", c.ctrl.Poller().Interval())

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-c.ctrl.Events():
			if err := r.printEvent(ev, colorize); err != nil {
				return err
			}
			if ev.Kind == tasks.SessionExpired {
				return ev.Err
			}
			if exitWhenIdle && ev.Kind == tasks.PollSucceeded && idle(c.ctrl.Store().Jobs()) {
				return r.writePlain("Nothing in flight.\n")
			}
		}
	}
}

func (r *Runner) printEvent(ev tasks.Event, colorize bool) error {
	stamp := time.Now().Format(time.TimeOnly)
	switch ev.Kind {
	case tasks.JobTransitioned:
		t := ev.Transition
		return r.writePlain("%s  %-10s %s → %s  %s\n", stamp, formatter.ShortID(t.JobID),
			formatter.StateLabel(t.From, colorize), formatter.StateLabel(t.To, colorize), t.Label)
	case tasks.PollFailed:
		r.logger.Warn("refresh failed", "error", ev.Err)
		return r.writePlain("%s  %s\n", stamp, ev.Message)
	case tasks.SessionExpired:
		return r.writePlain("%s  %s\n", stamp, ev.Message)
	case tasks.PollSucceeded:
		r.logger.Debug(ev.Message)
	}
	return nil
}

// idle reports whether no job still moves without user input.
func idle(jobs []models.Job) bool {
	for _, j := range jobs {
		if !j.IsTerminal() && !j.NeedsReview() {
			return false
		}
	}
	return true
}

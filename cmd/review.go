package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/karaokectl/internal/formatter"
	"github.com/desertthunder/karaokectl/internal/shared"
	"github.com/desertthunder/karaokectl/internal/tasks"
	"github.com/urfave/cli/v3"
)

// openReview syncs the job list and loads the candidates of jobID into a review workflow.
func (r *Runner) openReview(ctx context.Context, c *client, jobID string) (*tasks.Review, error) {
	if jobID == "" {
		return nil, fmt.Errorf("%w: job id is required", shared.ErrMissingArgument)
	}
	if err := c.sync(ctx); err != nil {
		return nil, err
	}

	entry, ok := c.ctrl.Store().Get(jobID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrJobNotFound, jobID)
	}

	review := tasks.NewReview(c.ctrl, nil)
	if err := review.Open(ctx, entry.Job); err != nil {
		return nil, err
	}
	return review, nil
}

// ReviewCandidates lists the instrumentals a job is waiting on.
func (r *Runner) ReviewCandidates(ctx context.Context, cmd *cli.Command) error {
	c, err := r.connect(ctx)
	if err != nil {
		return err
	}
	defer c.ctrl.Close()

	review, err := r.openReview(ctx, c, strings.TrimSpace(cmd.StringArg("id")))
	if err != nil {
		return err
	}
	defer review.Close()

	return r.writePlain("%s\n", formatter.RenderCandidates(review.View().Candidates))
}

// ReviewSelect picks an instrumental and moves the job on to finalizing.
func (r *Runner) ReviewSelect(ctx context.Context, cmd *cli.Command) error {
	jobID := strings.TrimSpace(cmd.StringArg("id"))
	candidateID := strings.TrimSpace(cmd.StringArg("candidate"))
	if candidateID == "" {
		return fmt.Errorf("%w: candidate id is required", shared.ErrMissingArgument)
	}

	c, err := r.connect(ctx)
	if err != nil {
		return err
	}
	defer c.ctrl.Close()

	review, err := r.openReview(ctx, c, jobID)
	if err != nil {
		return err
	}
	defer review.Close()

	if err := review.Select(candidateID); err != nil {
		return err
	}

	r.logger.Info("confirming instrumental", "job", jobID, "candidate", candidateID)
	if err := review.Confirm(ctx); err != nil {
		return err
	}
	return r.writePlain("✓ Selected %s for %s, finalizing\n", candidateID, formatter.ShortID(jobID))
}

// ReviewPreview opens a candidate's audio preview in the default browser.
func (r *Runner) ReviewPreview(ctx context.Context, cmd *cli.Command) error {
	candidateID := strings.TrimSpace(cmd.StringArg("candidate"))

	c, err := r.connect(ctx)
	if err != nil {
		return err
	}
	defer c.ctrl.Close()

	review, err := r.openReview(ctx, c, strings.TrimSpace(cmd.StringArg("id")))
	if err != nil {
		return err
	}
	defer review.Close()

	return review.Preview(candidateID)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/desertthunder/karaokectl/internal/shared"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"
)

// AuthLogin validates an access token against the backend and stores the session.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	token := strings.TrimSpace(cmd.StringArg("token"))
	if token == "" {
		token = strings.TrimSpace(os.Getenv(cmd.String("token-env")))
	}
	if token == "" {
		return fmt.Errorf("%w: pass a token or set $%s", shared.ErrMissingArgument, cmd.String("token-env"))
	}

	c, err := r.newClient()
	if err != nil {
		return err
	}
	defer c.ctrl.Close()

	r.logger.Info("authenticating", "backend", r.config.Backend.BaseURL)

	session, err := c.ctrl.Login(ctx, token)
	if err != nil {
		return err
	}

	r.logger.Info("authentication successful", "tier", session.Tier)
	return r.writePlain("✓ Logged in (%s tier, %d jobs remaining)\n", session.Tier, session.JobsRemaining)
}

// AuthLogout forgets the stored session and the cached job list.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	c, err := r.newClient()
	if err != nil {
		return err
	}
	defer c.ctrl.Close()

	if err := c.ctrl.Logout(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return r.writePlain("✓ Logged out\n")
}

// AuthStatus re-validates the stored token and prints what the backend reports for it.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	r.logger.Info("checking auth status")

	c, err := r.connect(ctx)
	if errors.Is(err, shared.ErrNotAuthenticated) {
		return r.writePlain("✗ Not authenticated\n")
	}
	if err != nil {
		return err
	}
	defer c.ctrl.Close()

	session := c.ctrl.Session()
	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{
			"tier":            session.Tier,
			"jobsRemaining":   session.JobsRemaining,
			"jobsUsed":        session.JobsUsed,
			"authenticatedAt": session.AuthenticatedAt,
		}, true)
	}

	r.writePlain("✓ Authenticated\n")
	r.writePlain("Backend: %s\n", r.config.Backend.BaseURL)
	if r.configPath != "" {
		r.writePlain("Config: %s\n", r.configPath)
	}
	r.writePlain("Tier: %s\n", session.Tier)
	r.writePlain("Jobs: %d remaining, %d used\n", session.JobsRemaining, session.JobsUsed)
	return r.writePlain("Since: %s\n", humanize.Time(session.AuthenticatedAt))
}

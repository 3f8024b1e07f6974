package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/karaokectl/internal/models"
	"github.com/desertthunder/karaokectl/internal/server"
	"github.com/desertthunder/karaokectl/internal/shared"
	"github.com/urfave/cli/v3"
)

// DevServer runs the in-memory sandbox backend until interrupted.
func (r *Runner) DevServer(ctx context.Context, cmd *cli.Command) error {
	addr := cmd.String("addr")
	if addr == "" {
		addr = fmt.Sprintf("%s:%d", r.config.Server.Host, r.config.Server.Port)
	}
	quota := int(cmd.Int("quota"))

	logger := shared.WithLogger(r.logger, "component", "sandbox")
	backend := server.NewBackend(logger)
	for _, token := range cmd.StringSlice("token") {
		backend.AddAccount(server.Account{Token: token, Tier: models.TierStandard, Remaining: quota})
	}
	if admin := cmd.String("admin-token"); admin != "" {
		backend.AddAccount(server.Account{Token: admin, Tier: models.TierAdmin, Remaining: quota})
	}

	r.writePlainHeader("karaokectl sandbox backend")
	r.writePlain("Listening on http://%s\n", addr)
	r.writePlain("Tokens: %v (admin: %s)\n", cmd.StringSlice("token"), cmd.String("admin-token"))

	return server.Serve(ctx, backend, server.ServeOptions{
		Addr:         addr,
		AdvanceEvery: cmd.Duration("advance"),
		Logger:       logger,
	})
}

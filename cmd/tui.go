package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/karaokectl/internal/shared"
	"github.com/desertthunder/karaokectl/internal/ui"
	"github.com/urfave/cli/v3"
)

// Dashboard launches the interactive terminal UI. The stored session is restored when present,
// otherwise the login view asks for a token.
func (r *Runner) Dashboard(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(shared.ExpandHome(r.config.Logging.File))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	fileLogger.SetLevel(shared.ParseLevel(r.config.Logging.Level))
	r.SetLogger(fileLogger)

	c, err := r.newClient()
	if err != nil {
		return err
	}
	defer c.ctrl.Close()

	model := ui.NewModel(ctx, c.ctrl, true)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}

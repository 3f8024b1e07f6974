package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/karaokectl/internal/shared"
	"github.com/urfave/cli/v3"
)

// configPaths are tried in order when $KARAOKECTL_CONFIG is unset.
var configPaths = []string{"config.toml", "~/.karaokectl/config.toml"}

func main() {
	logger := shared.NewLogger(nil)

	config, configPath := loadConfig(logger)
	logger.SetLevel(shared.ParseLevel(config.Logging.Level))

	runner := NewRunner(RunnerOpts{
		Config:     config,
		ConfigPath: configPath,
		Logger:     logger,
	})
	defer runner.Close()

	app := &cli.Command{
		Name:     "karaokectl",
		Usage:    "Submit karaoke conversion jobs and follow them to completion",
		Version:  "0.1.0",
		Commands: runner.register(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		problem := shared.Describe(err)
		logger.Error(problem.Message, "error", err)
		if problem.Relogin {
			logger.Info("run 'karaokectl auth login <token>' to start a new session")
		}
		runner.Close()
		os.Exit(1)
	}
}

// loadConfig returns the first config file found, or the embedded defaults.
func loadConfig(logger *log.Logger) (*shared.Config, string) {
	paths := configPaths
	if env := os.Getenv("KARAOKECTL_CONFIG"); env != "" {
		paths = []string{env}
	}

	for _, p := range paths {
		path := shared.ExpandHome(p)
		if _, err := os.Stat(path); err != nil {
			if len(paths) == 1 {
				logger.Warn("using defaults", "error", fmt.Errorf("%w: %s", shared.ErrMissingConfig, path))
			}
			continue
		}
		config, err := shared.LoadConfig(path)
		if err != nil {
			logger.Warn("failed to load config, using defaults", "path", path, "error", err)
			return shared.DefaultConfig(), path
		}
		return config, path
	}
	return shared.DefaultConfig(), ""
}

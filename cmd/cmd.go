// submodule cmd contains command definitions
package main

import (
	"fmt"
	"strings"

	"github.com/desertthunder/karaokectl/internal/formatter"
	"github.com/urfave/cli/v3"
)

// setupCommand handles setup operations for the local database and config file.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Initialize the local database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:  "config",
				Usage: "Write an example config.toml",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Path of the config file to create",
						Value:   "config.toml",
					},
				},
				Action: r.SetupConfig,
			},
		},
	}
}

// authCommand handles the access token session
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage the backend session",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Validate an access token and store the session",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "token"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "token-env",
						Usage: "Read the token from this environment variable instead",
						Value: "KARAOKECTL_TOKEN",
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:   "logout",
				Usage:  "Forget the stored session and the cached job list",
				Action: r.AuthLogout,
			},
			{
				Name:  "status",
				Usage: "Show tier and remaining quota of the stored session",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.AuthStatus,
			},
		},
	}
}

// jobsCommand handles job submission and listing
func jobsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "jobs",
		Aliases: []string{"job"},
		Usage:   "Submit and inspect karaoke jobs",
		Commands: []*cli.Command{
			{
				Name:  "submit",
				Usage: "Submit a new job, or every row of a CSV manifest",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "artist",
						Usage: "Song artist",
					},
					&cli.StringFlag{
						Name:  "title",
						Usage: "Song title",
					},
					&cli.StringFlag{
						Name:  "url",
						Usage: "YouTube URL of the source audio",
					},
					&cli.StringFlag{
						Name:  "file",
						Usage: "Path to a local audio file",
					},
					&cli.StringFlag{
						Name:  "style",
						Usage: "Optional style reference file",
					},
					&cli.StringFlag{
						Name:    "manifest",
						Aliases: []string{"m"},
						Usage:   "CSV with artist,title,source[,style] columns",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent submits for a manifest",
						Value: 2,
					},
					&cli.FloatFlag{
						Name:  "rate",
						Usage: "Submits per second for a manifest",
						Value: 1,
					},
				},
				Action: r.JobsSubmit,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List jobs with their lifecycle state",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   fmt.Sprintf("Output format (%s)", formatNames()),
						Value:   string(formatter.FormatTable),
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write to a file instead of stdout",
					},
					&cli.BoolFlag{
						Name:  "offline",
						Usage: "Show the last synced list without contacting the backend",
					},
				},
				Action: r.JobsList,
			},
			{
				Name:  "show",
				Usage: "Show one job",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.JobsShow,
			},
			{
				Name:   "clear-errors",
				Usage:  "Remove every failed job (admin only)",
				Action: r.JobsClearErrors,
			},
		},
	}
}

// reviewCommand handles the instrumental selection step
func reviewCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "review",
		Usage: "Review instrumental candidates",
		Commands: []*cli.Command{
			{
				Name:  "candidates",
				Usage: "List the instrumental candidates of a job awaiting review",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Action: r.ReviewCandidates,
			},
			{
				Name:  "select",
				Usage: "Pick the instrumental for a job",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
					&cli.StringArg{Name: "candidate"},
				},
				Action: r.ReviewSelect,
			},
			{
				Name:  "preview",
				Usage: "Open a candidate's audio preview in the browser",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
					&cli.StringArg{Name: "candidate"},
				},
				Action: r.ReviewPreview,
			},
		},
	}
}

// watchCommand polls in the foreground and prints transitions
func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Poll the backend and print job transitions until interrupted",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "exit-when-idle",
				Usage: "Stop once no job is in flight or awaiting review",
			},
		},
		Action: r.Watch,
	}
}

// dashboardCommand returns the top-level TUI command.
func dashboardCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "dashboard",
		Aliases: []string{"tui", "ui"},
		Usage:   "Launch the interactive job dashboard",
		Action:  r.Dashboard,
	}
}

// devServerCommand runs the in-memory sandbox backend.
func devServerCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "dev-server",
		Usage: "Run a local sandbox backend for development",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (defaults to [server] in config)",
			},
			&cli.StringSliceFlag{
				Name:  "token",
				Usage: "Standard-tier access token to accept (repeatable)",
				Value: []string{"dev-token"},
			},
			&cli.StringFlag{
				Name:  "admin-token",
				Usage: "Admin-tier access token to accept",
				Value: "dev-admin",
			},
			&cli.IntFlag{
				Name:  "quota",
				Usage: "Jobs each token may submit",
				Value: 10,
			},
			&cli.DurationFlag{
				Name:  "advance",
				Usage: "Move every job one pipeline stage per interval (0 disables)",
				Value: 0,
			},
		},
		Action: r.DevServer,
	}
}

func formatNames() string {
	names := make([]string, len(formatter.Formats))
	for i, f := range formatter.Formats {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/karaokectl/internal/models"
	"github.com/desertthunder/karaokectl/internal/repositories"
	"github.com/desertthunder/karaokectl/internal/services"
	"github.com/desertthunder/karaokectl/internal/shared"
	"github.com/desertthunder/karaokectl/internal/store"
	"github.com/desertthunder/karaokectl/internal/tasks"
	"github.com/urfave/cli/v3"
)

// snapshotStore is the last-known job list kept for offline listing.
type snapshotStore interface {
	tasks.SnapshotSaver
	List() ([]models.Job, time.Time, error)
}

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer
	transport  http.RoundTripper
	sessions   services.SessionStore
	snapshots  snapshotStore
	db         *sql.DB
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
	Transport  http.RoundTripper
	Sessions   services.SessionStore // defaults to the sqlite session table
	Snapshots  snapshotStore         // defaults to the sqlite snapshot table
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
		transport:  opts.Transport,
		sessions:   opts.Sessions,
		snapshots:  opts.Snapshots,
	}
}

// SetLogger replaces the logger, e.g. with a file logger while the dashboard owns the terminal.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, jobsCommand, reviewCommand, watchCommand, dashboardCommand, devServerCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// openStorage opens the local database for whatever stores were not injected.
func (r *Runner) openStorage() error {
	if r.sessions != nil && r.snapshots != nil {
		return nil
	}

	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return fmt.Errorf("failed to open local database: %w", err)
	}
	r.db = db

	if r.sessions == nil {
		r.sessions = repositories.NewSessionRepository(db)
	}
	if r.snapshots == nil {
		r.snapshots = repositories.NewJobSnapshotRepository(db)
	}
	return nil
}

// Close releases the local database.
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// client is one wired stack: gate, registry and the controller that owns them.
type client struct {
	gate     *services.AuthGate
	registry *services.RegistryClient
	ctrl     *tasks.Controller
}

// newClient wires the backend stack from the loaded configuration.
func (r *Runner) newClient() (*client, error) {
	if err := r.openStorage(); err != nil {
		return nil, err
	}

	cfg := r.config
	gate := services.NewAuthGate(cfg.Backend.BaseURL, r.sessions, r.transport, shared.WithLogger(r.logger, "component", "auth"))
	registry := services.NewRegistryClient(cfg.Backend.BaseURL, gate, services.RegistryOptions{
		Timeout:           cfg.Backend.Timeout(),
		RequestsPerSecond: cfg.Backend.RequestsPerSecond,
		Logger:            shared.WithLogger(r.logger, "component", "registry"),
	})

	ctrl := tasks.NewController(gate, registry, store.New(r.logger), tasks.ControllerOptions{
		Poller: tasks.PollerOptions{
			Interval:    cfg.Poller.Interval(),
			MaxInterval: cfg.Poller.MaxInterval(),
			GraceCycles: cfg.Poller.GraceCycles,
			Enabled:     cfg.Poller.AutoRefresh,
		},
		Snapshots: r.snapshots,
		Logger:    r.logger,
	})

	return &client{gate: gate, registry: registry, ctrl: ctrl}, nil
}

// connect wires the stack and restores the stored session.
func (r *Runner) connect(ctx context.Context) (*client, error) {
	c, err := r.newClient()
	if err != nil {
		return nil, err
	}

	if _, err := c.ctrl.Restore(ctx); err != nil {
		c.ctrl.Close()
		if errors.Is(err, shared.ErrNotAuthenticated) {
			return nil, fmt.Errorf("%w: run 'karaokectl auth login' first", err)
		}
		return nil, err
	}
	return c, nil
}

// sync runs one poll cycle and fails when it did.
func (c *client) sync(ctx context.Context) error {
	if res := c.ctrl.Refresh(ctx); res.Err != nil {
		if c.ctrl.Session() == nil {
			return fmt.Errorf("failed to refresh jobs: %w", shared.ErrSessionExpired)
		}
		return fmt.Errorf("failed to refresh jobs: %w", res.Err)
	}
	return nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
)

// ServeOptions configures [Serve].
type ServeOptions struct {
	Addr         string
	AdvanceEvery time.Duration // zero leaves jobs where they are
	Logger       *log.Logger
}

// Serve runs the sandbox API until ctx is cancelled, then shuts down gracefully.
//
// With AdvanceEvery set, every job moves one pipeline stage per tick.
func Serve(ctx context.Context, b *Backend, opts ServeOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = b.logger
	}

	httpServer := &http.Server{
		Addr:              opts.Addr,
		Handler:           NewHandler(b, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("sandbox backend listening", "addr", opts.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	var tick <-chan time.Time
	if opts.AdvanceEvery > 0 {
		ticker := time.NewTicker(opts.AdvanceEvery)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)
		case <-tick:
			if moved := b.AdvanceAll(); moved > 0 {
				logger.Debug("advanced jobs", "moved", moved)
			}
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("error shutting down server", "error", err)
			}
			return nil
		}
	}
}

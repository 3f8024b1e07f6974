package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/desertthunder/karaokectl/internal/formatter"
	"github.com/desertthunder/karaokectl/internal/models"
	"github.com/desertthunder/karaokectl/internal/services"
	"github.com/desertthunder/karaokectl/internal/shared"
	"github.com/desertthunder/karaokectl/internal/tasks"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"
)

// JobsSubmit submits one job from flags, or every row of --manifest.
func (r *Runner) JobsSubmit(ctx context.Context, cmd *cli.Command) error {
	if path := cmd.String("manifest"); path != "" {
		return r.submitManifest(ctx, cmd, path)
	}

	spec, err := specFromFlags(cmd)
	if err != nil {
		return err
	}
	if _, err := services.ValidateJobSpec(spec); err != nil {
		return err
	}

	c, err := r.connect(ctx)
	if err != nil {
		return err
	}
	defer c.ctrl.Close()

	r.logger.Info("submitting job", "artist", spec.Artist, "title", spec.Title, "source", spec.Source.Kind)

	id, err := c.ctrl.Submit(ctx, spec)
	if err != nil {
		return err
	}

	r.writePlain("✓ Submitted %s - %s\n", spec.Artist, spec.Title)
	r.writePlain("Job ID: %s\n", id)
	if s := c.ctrl.Session(); s != nil {
		r.writePlain("Jobs remaining: %d\n", s.JobsRemaining)
	}
	return nil
}

func (r *Runner) submitManifest(ctx context.Context, cmd *cli.Command, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	specs, err := tasks.ParseManifest(f)
	if err != nil {
		return err
	}

	c, err := r.connect(ctx)
	if err != nil {
		return err
	}
	defer c.ctrl.Close()

	if s := c.ctrl.Session(); s != nil && s.JobsRemaining < len(specs) {
		r.logger.Warn("manifest exceeds remaining quota", "rows", len(specs), "remaining", s.JobsRemaining)
	}

	prog := make(chan tasks.Event, len(specs))
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for ev := range prog {
			r.writePlain("%s\n", ev.Message)
		}
	}()

	r.writePlainHeader(fmt.Sprintf("Submitting %d jobs from %s", len(specs), path))
	result, err := c.ctrl.BulkSubmit(ctx, prog, specs, tasks.BulkSubmitOpts{
		NumWorkers: int(cmd.Int("workers")),
		RateLimit:  cmd.Float("rate"),
	})
	close(prog)
	<-printed

	if result != nil {
		r.writePlainln("Submitted: %d, Failed: %d, Total: %d", result.Submitted, result.Failed, result.Total)
	}
	return err
}

// specFromFlags builds a [models.JobSpec] from the submit flags. Exactly one of --url and --file
// must be set.
func specFromFlags(cmd *cli.Command) (models.JobSpec, error) {
	spec := models.JobSpec{
		Artist:        cmd.String("artist"),
		Title:         cmd.String("title"),
		StyleOverride: cmd.String("style"),
	}

	url, file := cmd.String("url"), cmd.String("file")
	switch {
	case url != "" && file != "":
		return spec, fmt.Errorf("%w: cannot specify both --url and --file", shared.ErrInvalidInput)
	case url != "":
		spec.Source = models.Source{Kind: models.SourceYouTube, URL: url}
	case file != "":
		spec.Source = models.Source{Kind: models.SourceFile}
		spec.FilePath = file
	default:
		return spec, fmt.Errorf("%w: either --url or --file must be provided", shared.ErrMissingArgument)
	}
	return spec, nil
}

// JobsList prints every job, from the backend or from the last synced snapshot with --offline.
func (r *Runner) JobsList(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	var (
		jobs   []models.Job
		synced time.Time
	)
	if cmd.Bool("offline") {
		if err := r.openStorage(); err != nil {
			return err
		}
		jobs, synced, err = r.snapshots.List()
		if err != nil {
			return err
		}
		r.logger.Info("showing last synced jobs", "count", len(jobs), "synced", humanize.Time(synced))
	} else {
		c, err := r.connect(ctx)
		if err != nil {
			return err
		}
		defer c.ctrl.Close()

		if err := c.sync(ctx); err != nil {
			return err
		}
		jobs = c.ctrl.Store().Jobs()
		synced = c.ctrl.Store().LastSync()
	}

	if path := cmd.String("output"); path != "" {
		if err := formatter.WriteExport(jobs, format, path); err != nil {
			return err
		}
		r.logger.Info("exported jobs", "path", path, "format", format, "count", len(jobs))
		return r.writePlain("✓ Exported %d jobs to %s\n", len(jobs), path)
	}

	opts := formatter.Options{Colorize: formatter.Colorize(r.output), Title: "Karaoke Jobs"}
	if err := formatter.Write(r.output, jobs, format, opts); err != nil {
		return err
	}
	if format == formatter.FormatTable && cmd.Bool("offline") && !synced.IsZero() {
		return r.writePlain("Last synced %s\n", humanize.Time(synced))
	}
	return nil
}

// JobsShow prints one job fetched directly from the backend.
func (r *Runner) JobsShow(ctx context.Context, cmd *cli.Command) error {
	id := strings.TrimSpace(cmd.StringArg("id"))
	if id == "" {
		return fmt.Errorf("%w: job id is required", shared.ErrMissingArgument)
	}

	c, err := r.connect(ctx)
	if err != nil {
		return err
	}
	defer c.ctrl.Close()

	job, err := c.registry.GetJob(ctx, id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(models.RecordFromJob(*job), true)
	}
	return r.writePlain("%s\n", formatter.RenderJob(*job, formatter.Options{Colorize: formatter.Colorize(r.output)}))
}

// JobsClearErrors removes every failed job. Only admin sessions may do this.
func (r *Runner) JobsClearErrors(ctx context.Context, cmd *cli.Command) error {
	c, err := r.connect(ctx)
	if err != nil {
		return err
	}
	defer c.ctrl.Close()

	if err := c.sync(ctx); err != nil {
		return err
	}

	n, err := c.ctrl.ClearErrors(ctx)
	if err != nil {
		return err
	}
	return r.writePlain("✓ Cleared %d failed jobs\n", n)
}

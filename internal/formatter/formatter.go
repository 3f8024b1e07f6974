// package formatter renders job lists for the CLI and exports them to CSV, Markdown and plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/desertthunder/karaokectl/internal/models"
	"github.com/desertthunder/karaokectl/internal/shared"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

// Format is an output format for job lists.
type Format string

const (
	FormatTable    Format = "table"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "txt"
	FormatJSON     Format = "json"
)

// Formats lists every supported format in help order.
var Formats = []Format{FormatTable, FormatCSV, FormatMarkdown, FormatText, FormatJSON}

// ParseFormat accepts a format name and the usual aliases ("md", "text").
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "table":
		return FormatTable, nil
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "txt", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidInput, name)
}

// Colorize reports whether w is a terminal that can take ANSI styling.
func Colorize(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Options tunes rendering.
type Options struct {
	Now      time.Time // reference for relative times; zero means time.Now
	Colorize bool
	Title    string // Markdown heading
}

func (o Options) now() time.Time {
	if o.Now.IsZero() {
		return time.Now()
	}
	return o.Now
}

// Write renders jobs to w in format.
func Write(w io.Writer, jobs []models.Job, format Format, opts Options) error {
	var (
		data []byte
		err  error
	)
	switch format {
	case FormatTable, "":
		data = []byte(RenderTable(jobs, opts) + "\n")
	case FormatCSV:
		data, err = ExportToCSV(jobs)
	case FormatMarkdown:
		data, err = ExportToMarkdown(jobs, opts)
	case FormatText:
		data, err = ExportToText(jobs)
	case FormatJSON:
		data, err = ExportToJSON(jobs)
	default:
		return fmt.Errorf("%w: unknown format %q", shared.ErrInvalidInput, format)
	}
	if err != nil {
		return err
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write %s output: %w", format, err)
	}
	return nil
}

// WriteExport writes jobs to path in format, creating or truncating the file.
func WriteExport(jobs []models.Job, format Format, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := Write(f, jobs, format, Options{}); err != nil {
		return err
	}
	return f.Close()
}

// RenderTable draws jobs as a rounded table with relative update times.
func RenderTable(jobs []models.Job, opts Options) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"ID", "Artist", "Title", "Source", "State", "Updated", "Notes"})

	now := opts.now()
	for _, job := range jobs {
		tw.AppendRow(table.Row{
			ShortID(job.ID),
			job.Artist,
			job.Title,
			SourceLabel(job.Source),
			StateLabel(job.State, opts.Colorize),
			Since(job.UpdatedAt, now),
			Notes(job),
		})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 6, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 7, WidthMax: 48},
	})
	return tw.Render()
}

// RenderJob draws one job as a two-column table, candidates included.
func RenderJob(job models.Job, opts Options) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	now := opts.now()
	tw.AppendRows([]table.Row{
		{"ID", job.ID},
		{"Artist", job.Artist},
		{"Title", job.Title},
		{"Source", SourceLabel(job.Source)},
		{"State", StateLabel(job.State, opts.Colorize)},
		{"Backend status", job.RawStatus},
		{"Created", Since(job.CreatedAt, now)},
		{"Updated", Since(job.UpdatedAt, now)},
	})
	if job.ErrorMessage != "" {
		tw.AppendRow(table.Row{"Error", job.ErrorMessage})
	}
	if job.SelectedInstrumental != "" {
		tw.AppendRow(table.Row{"Instrumental", job.SelectedInstrumental})
	}
	for i, c := range job.Candidates {
		tw.AppendRow(table.Row{fmt.Sprintf("Candidate %d", i+1), fmt.Sprintf("%s (%s)", c.Label, c.ID)})
	}
	return tw.Render()
}

// RenderCandidates draws review candidates with their preview links.
func RenderCandidates(candidates []models.Candidate) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"#", "ID", "Label", "Preview"})
	for i, c := range candidates {
		tw.AppendRow(table.Row{i + 1, c.ID, c.Label, c.PreviewURL})
	}
	return tw.Render()
}

// ShortID trims long ids for tables.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// SourceLabel describes where the audio came from.
func SourceLabel(src models.Source) string {
	switch src.Kind {
	case models.SourceYouTube:
		return "YouTube"
	case models.SourceFile:
		if src.Filename != "" {
			return src.Filename
		}
		return "file"
	}
	return "-"
}

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
	ansiCyan   = "\x1b[36m"
)

// StateLabel is the display title of s, colored when colorize is set.
func StateLabel(s models.State, colorize bool) string {
	label := s.Title()
	if s == models.Unknown {
		label = "⚠ " + label
	}
	if !colorize {
		return label
	}

	var color string
	switch s {
	case models.Complete:
		color = ansiGreen
	case models.Error:
		color = ansiRed
	case models.AwaitingReview, models.Unknown:
		color = ansiYellow
	case models.Processing, models.Finalizing:
		color = ansiBlue
	case models.Queued:
		color = ansiCyan
	}
	return color + label + ansiReset
}

// Since renders t relative to now, or "-" for a zero time.
func Since(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// Notes is the free-text column: the error, the review prompt or the raw status of unknown jobs.
func Notes(job models.Job) string {
	switch job.State {
	case models.Error:
		return job.ErrorMessage
	case models.AwaitingReview:
		return fmt.Sprintf("%d instrumentals to review", len(job.Candidates))
	case models.Unknown:
		return fmt.Sprintf("backend status %q", job.RawStatus)
	}
	return ""
}

// ExportToCSV writes one row per job with columns: ID, Artist, Title, Source, URL, State, Status, Error, Instrumental, Created, Updated
func ExportToCSV(jobs []models.Job) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Artist", "Title", "Source", "URL", "State", "Status", "Error", "Instrumental", "Created", "Updated"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, job := range jobs {
		record := []string{
			job.ID,
			job.Artist,
			job.Title,
			string(job.Source.Kind),
			job.Source.URL,
			job.State.String(),
			job.RawStatus,
			job.ErrorMessage,
			job.SelectedInstrumental,
			timestamp(job.CreatedAt),
			timestamp(job.UpdatedAt),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown groups jobs by state under a heading.
func ExportToMarkdown(jobs []models.Job, opts Options) ([]byte, error) {
	var buf bytes.Buffer

	title := opts.Title
	if title == "" {
		title = "Karaoke Jobs"
	}
	buf.WriteString(fmt.Sprintf("# %s\n\n", title))
	buf.WriteString(fmt.Sprintf("**Jobs**: %d\n\n", len(jobs)))

	for _, state := range models.States() {
		var group []models.Job
		for _, job := range jobs {
			if job.State == state {
				group = append(group, job)
			}
		}
		if len(group) == 0 {
			continue
		}

		buf.WriteString(fmt.Sprintf("## %s\n\n", state.Title()))
		for i, job := range group {
			buf.WriteString(fmt.Sprintf("%d. %s - %s (`%s`)", i+1, job.Artist, job.Title, job.ID))
			if note := Notes(job); note != "" {
				buf.WriteString(": " + note)
			}
			buf.WriteString("\n")
		}
		buf.WriteString("\n")
	}

	return buf.Bytes(), nil
}

// ExportToText writes one line per job.
func ExportToText(jobs []models.Job) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Jobs: %d\n\n", len(jobs)))
	for i, job := range jobs {
		buf.WriteString(fmt.Sprintf("%d. [%s] %s - %s (%s)\n", i+1, job.State.Title(), job.Artist, job.Title, job.ID))
	}

	return buf.Bytes(), nil
}

// ExportToJSON writes the jobs in the backend record shape.
func ExportToJSON(jobs []models.Job) ([]byte, error) {
	records := make([]models.JobRecord, len(jobs))
	for i, job := range jobs {
		records[i] = models.RecordFromJob(job)
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode jobs: %w", err)
	}
	return append(data, '\n'), nil
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

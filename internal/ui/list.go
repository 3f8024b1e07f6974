package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/karaokectl/internal/formatter"
	"github.com/desertthunder/karaokectl/internal/models"
	"github.com/desertthunder/karaokectl/internal/store"
)

var (
	_ list.Item = jobItem{}
)

// jobItem wraps a [store.Entry] to implement [list.Item].
type jobItem struct {
	entry store.Entry
}

func (i jobItem) FilterValue() string { return i.entry.Job.Label() }
func (i jobItem) Title() string {
	title := i.entry.Job.Label()
	if i.entry.Job.NeedsReview() {
		title = "★ " + title
	}
	return title
}

func (i jobItem) Description() string {
	job := i.entry.Job
	parts := []string{
		styles.stateStyle(job.State).Render(formatter.StateLabel(job.State, false)),
		formatter.SourceLabel(job.Source),
	}

	switch {
	case i.entry.Submitting:
		parts = append(parts, "submitting selection…")
	case i.entry.RowError != "":
		parts = append(parts, styles.err.Render(i.entry.RowError))
	}
	if note := formatter.Notes(job); note != "" {
		parts = append(parts, note)
	}
	if job.SelectedInstrumental != "" && job.State != models.AwaitingReview {
		parts = append(parts, fmt.Sprintf("instrumental %s", job.SelectedInstrumental))
	}
	return strings.Join(parts, " • ")
}

func jobItems(entries []store.Entry) []list.Item {
	items := make([]list.Item, len(entries))
	for i, e := range entries {
		items[i] = jobItem{entry: e}
	}
	return items
}

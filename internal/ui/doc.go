// Package ui implements an interactive terminal dashboard using bubbletea's Elm architecture.
//
// The TUI provides a multi-view workflow over a [tasks.Controller]:
//  1. [LoginView] : Paste an access token, or restore the stored one silently
//  2. [DashboardView] : Browse jobs with their lifecycle state, refresh and toggle auto-refresh
//  3. [SubmitView] : Fill in artist, title and source for a new job
//  4. [ReviewView] : Pick one instrumental candidate for a job awaiting review
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Controller events flow through a channel that the model re-arms after every event, so poll results and
// session expiry reach the screen without blocking the poll loop.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui

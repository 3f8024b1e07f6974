package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/karaokectl/internal/models"
	"github.com/desertthunder/karaokectl/internal/services"
	"github.com/desertthunder/karaokectl/internal/shared"
	"github.com/desertthunder/karaokectl/internal/tasks"
	"github.com/dustin/go-humanize"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	LoginView ViewState = iota
	DashboardView
	ReviewView
	SubmitView
)

// submit form fields, in tab order
const (
	fieldArtist = iota
	fieldTitle
	fieldSource
	fieldStyle
	fieldCount
)

// Model represents the TUI application state.
type Model struct {
	ctx     context.Context
	ctrl    *tasks.Controller
	review  *tasks.Review
	view    ViewState
	width   int
	height  int
	jobList list.Model
	token   textinput.Model
	form    []textinput.Model
	focus   int
	spinner spinner.Model
	help    help.Model
	keys    keyMap

	restoring bool   // silent restore in progress
	busy      string // label of the running request, empty when idle
	notice    string
	noticeErr bool
	cursor    int // highlighted review candidate
}

// NewModel creates a TUI model on top of ctrl. When restore is set the stored session is tried
// before the login form is shown.
func NewModel(ctx context.Context, ctrl *tasks.Controller, restore bool) *Model {
	token := textinput.New()
	token.Placeholder = "access token"
	token.EchoMode = textinput.EchoPassword
	token.EchoCharacter = '•'
	token.CharLimit = 256
	token.Focus()

	placeholders := [fieldCount]string{"Artist", "Title", "YouTube URL or path to an audio file", "Style file (optional)"}
	form := make([]textinput.Model, fieldCount)
	for i := range form {
		form[i] = textinput.New()
		form[i].Placeholder = placeholders[i]
		form[i].CharLimit = 512
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.info

	jobList := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	jobList.Title = "Karaoke Jobs"
	jobList.SetShowHelp(false)

	return &Model{
		ctx:       ctx,
		ctrl:      ctrl,
		review:    tasks.NewReview(ctrl, nil),
		view:      LoginView,
		jobList:   jobList,
		token:     token,
		form:      form,
		spinner:   sp,
		help:      help.New(),
		keys:      newKeyMap(),
		restoring: restore,
	}
}

// Init tries the stored session and starts listening for controller events.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.waitForEvent(), m.spinner.Tick, textinput.Blink}
	if m.restoring {
		cmds = append(cmds, m.restore())
	}
	return tea.Batch(cmds...)
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.jobList.SetSize(msg.Width-4, max(msg.Height-8, 4))
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.view {
		case LoginView:
			return m.handleLoginKeys(msg)
		case DashboardView:
			return m.handleDashboardKeys(msg)
		case ReviewView:
			return m.handleReviewKeys(msg)
		case SubmitView:
			return m.handleSubmitKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateInputs(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgSessionStarted:
		m.restoring = false
		m.busy = ""
		m.token.SetValue("")
		m.token.Blur()
		m.view = DashboardView
		m.ctrl.SetAutoRefresh(true)
		m.ctrl.Start()
		m.syncJobs()
		s := msg.data.(*models.Session)
		m.setNotice(fmt.Sprintf("Logged in (%s tier, %d jobs remaining)", s.Tier, s.JobsRemaining), false)
		return m, nil

	case MsgLoginFailed:
		r := msg.result()
		m.busy = ""
		if restoring, _ := r.value.(bool); restoring {
			m.restoring = false
			if !errors.Is(r.err, shared.ErrNotAuthenticated) {
				m.setError(r.err)
			}
		} else {
			m.setError(r.err)
		}
		m.view = LoginView
		return m, m.token.Focus()

	case MsgControllerEvent:
		return m, tea.Batch(m.handleEvent(msg.data.(tasks.Event)), m.waitForEvent())

	case MsgSubmitted:
		r := msg.result()
		m.busy = ""
		if r.err != nil {
			m.setError(r.err)
			return m, nil
		}
		for i := range m.form {
			m.form[i].SetValue("")
		}
		m.view = DashboardView
		m.syncJobs()
		return m, nil

	case MsgCandidatesLoaded:
		if err := msg.result().err; err != nil && !errors.Is(err, shared.ErrDiscarded) {
			m.setError(err)
		}
		if st := m.review.View().State; st == tasks.ReviewHidden || st == tasks.ReviewResolved {
			m.review.Close()
			m.view = DashboardView
		}
		m.cursor = 0
		return m, nil

	case MsgSelectionDone:
		err := msg.result().err
		m.syncJobs()
		switch {
		case err == nil:
			m.review.Close()
			m.view = DashboardView
			m.setNotice("Instrumental selected, finalizing", false)
		case errors.Is(err, shared.ErrDiscarded):
			m.view = DashboardView
		default:
			m.setError(err)
			if m.review.View().State == tasks.ReviewHidden {
				m.view = DashboardView
			}
		}
		return m, nil

	case MsgErrorsCleared:
		r := msg.result()
		m.busy = ""
		if r.err != nil {
			m.setError(r.err)
		} else {
			m.setNotice(fmt.Sprintf("Cleared %d failed jobs", r.value.(int)), false)
		}
		m.syncJobs()
		return m, nil

	case MsgRefreshed:
		res := msg.data.(tasks.CycleResult)
		m.busy = ""
		if res.Err != nil && !errors.Is(res.Err, context.Canceled) && !errors.Is(res.Err, shared.ErrDiscarded) {
			m.setError(res.Err)
		}
		m.syncJobs()
		return m, nil

	case MsgLoggedOut:
		m.busy = ""
		m.review.Close()
		m.view = LoginView
		m.syncJobs()
		if err := msg.result().err; err != nil {
			m.setError(err)
		} else {
			m.setNotice("Logged out", false)
		}
		return m, m.token.Focus()

	case MsgPreviewed:
		if err := msg.result().err; err != nil {
			m.setError(err)
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) handleEvent(ev tasks.Event) tea.Cmd {
	switch ev.Kind {
	case tasks.SessionExpired:
		m.review.Close()
		m.view = LoginView
		m.syncJobs()
		m.setError(shared.ErrSessionExpired)
		return m.token.Focus()
	case tasks.PollFailed:
		m.setNotice(ev.Message, true)
	case tasks.JobTransitioned, tasks.SelectionConfirmed, tasks.ErrorsCleared, tasks.JobSubmitted, tasks.SelectionFailed:
		m.setNotice(ev.Message, ev.Err != nil)
	case tasks.PollSucceeded:
		if m.noticeErr {
			m.notice, m.noticeErr = "", false
		}
	}
	m.syncJobs()
	return nil
}

func (m *Model) handleLoginKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.busy != "" || m.restoring {
		return m, nil
	}
	switch msg.String() {
	case "esc":
		return m, tea.Quit
	case "enter":
		token := strings.TrimSpace(m.token.Value())
		if token == "" {
			m.setError(fmt.Errorf("%w: enter an access token", shared.ErrMissingArgument))
			return m, nil
		}
		m.busy = "Logging in"
		return m, m.login(token)
	}

	var cmd tea.Cmd
	m.token, cmd = m.token.Update(msg)
	return m, cmd
}

func (m *Model) handleDashboardKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.jobList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.jobList, cmd = m.jobList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.enter):
		return m.openReview()
	case key.Matches(msg, m.keys.submit):
		m.view = SubmitView
		m.focus = fieldArtist
		return m, m.focusForm()
	case key.Matches(msg, m.keys.refresh):
		m.busy = "Refreshing"
		return m, m.refresh()
	case key.Matches(msg, m.keys.auto):
		on := !m.ctrl.Poller().Enabled()
		m.ctrl.SetAutoRefresh(on)
		m.setNotice(fmt.Sprintf("Auto-refresh %s", onOff(on)), false)
		return m, nil
	case key.Matches(msg, m.keys.clear):
		if !m.ctrl.Session().IsAdmin() {
			m.setError(shared.ErrForbidden)
			return m, nil
		}
		m.busy = "Clearing failed jobs"
		return m, m.clearErrors()
	case key.Matches(msg, m.keys.logout):
		m.busy = "Logging out"
		return m, m.logout()
	}

	var cmd tea.Cmd
	m.jobList, cmd = m.jobList.Update(msg)
	return m, cmd
}

func (m *Model) handleReviewKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	view := m.review.View()
	if view.State == tasks.ReviewSubmitting {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.quit):
		m.review.Close()
		m.view = DashboardView
		m.syncJobs()
		return m, nil
	case key.Matches(msg, m.keys.up):
		m.cursor = max(m.cursor-1, 0)
	case key.Matches(msg, m.keys.down):
		m.cursor = min(m.cursor+1, max(len(view.Candidates)-1, 0))
	case key.Matches(msg, m.keys.pick):
		if m.cursor < len(view.Candidates) {
			if err := m.review.Select(view.Candidates[m.cursor].ID); err != nil {
				m.setError(err)
			}
		}
	case key.Matches(msg, m.keys.confirm):
		return m, m.confirm()
	case key.Matches(msg, m.keys.reload):
		return m, m.reload()
	case key.Matches(msg, m.keys.preview):
		if m.cursor < len(view.Candidates) {
			return m, m.preview(view.Candidates[m.cursor].ID)
		}
	}
	return m, nil
}

func (m *Model) handleSubmitKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.busy != "" {
		return m, nil
	}

	switch msg.String() {
	case "esc":
		m.view = DashboardView
		return m, nil
	case "tab", "down":
		m.focus = (m.focus + 1) % fieldCount
		return m, m.focusForm()
	case "shift+tab", "up":
		m.focus = (m.focus + fieldCount - 1) % fieldCount
		return m, m.focusForm()
	case "enter":
		if m.focus < fieldCount-1 {
			m.focus++
			return m, m.focusForm()
		}
		spec := m.formSpec()
		if _, err := services.ValidateJobSpec(spec); err != nil {
			m.setError(err)
			return m, nil
		}
		m.busy = "Submitting"
		return m, m.submit(spec)
	}

	var cmd tea.Cmd
	m.form[m.focus], cmd = m.form[m.focus].Update(msg)
	return m, cmd
}

func (m *Model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case LoginView:
		m.token, cmd = m.token.Update(msg)
	case SubmitView:
		m.form[m.focus], cmd = m.form[m.focus].Update(msg)
	case DashboardView:
		m.jobList, cmd = m.jobList.Update(msg)
	}
	return m, cmd
}

func (m *Model) focusForm() tea.Cmd {
	var cmd tea.Cmd
	for i := range m.form {
		if i == m.focus {
			cmd = m.form[i].Focus()
		} else {
			m.form[i].Blur()
		}
	}
	return cmd
}

// formSpec builds a job spec from the submit form. The source field takes a URL or a path.
func (m *Model) formSpec() models.JobSpec {
	spec := models.JobSpec{
		Artist:        m.form[fieldArtist].Value(),
		Title:         m.form[fieldTitle].Value(),
		StyleOverride: m.form[fieldStyle].Value(),
	}
	source := strings.TrimSpace(m.form[fieldSource].Value())
	switch {
	case source == "":
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		spec.Source = models.Source{Kind: models.SourceYouTube, URL: source}
	default:
		spec.Source = models.Source{Kind: models.SourceFile}
		spec.FilePath = source
	}
	return spec
}

func (m *Model) openReview() (tea.Model, tea.Cmd) {
	item, ok := m.jobList.SelectedItem().(jobItem)
	if !ok {
		return m, nil
	}
	gen, err := m.review.Begin(item.entry.Job)
	if err != nil {
		m.setError(err)
		return m, nil
	}
	m.view = ReviewView
	m.cursor = 0
	m.syncJobs()
	return m, func() tea.Msg {
		return candidatesLoadedMsg(m.review.Load(m.ctx, gen))
	}
}

// syncJobs copies the store into the list, keeping the cursor on the same job.
func (m *Model) syncJobs() {
	var selected string
	if item, ok := m.jobList.SelectedItem().(jobItem); ok {
		selected = item.entry.Job.ID
	}

	entries := m.ctrl.Store().Entries()
	m.jobList.SetItems(jobItems(entries))
	for i, e := range entries {
		if e.Job.ID == selected {
			m.jobList.Select(i)
			break
		}
	}
}

func (m *Model) setNotice(text string, isErr bool) {
	m.notice, m.noticeErr = text, isErr
}

func (m *Model) setError(err error) {
	m.setNotice(shared.Describe(err).Message, true)
}

func (m *Model) restore() tea.Cmd {
	return func() tea.Msg {
		session, err := m.ctrl.Restore(m.ctx)
		if err != nil {
			return loginFailedMsg(err, true)
		}
		return sessionStartedMsg(session)
	}
}

func (m *Model) login(token string) tea.Cmd {
	return func() tea.Msg {
		session, err := m.ctrl.Login(m.ctx, token)
		if err != nil {
			return loginFailedMsg(err, false)
		}
		return sessionStartedMsg(session)
	}
}

func (m *Model) submit(spec models.JobSpec) tea.Cmd {
	return func() tea.Msg {
		id, err := m.ctrl.Submit(m.ctx, spec)
		return submittedMsg(id, err)
	}
}

func (m *Model) confirm() tea.Cmd {
	return func() tea.Msg {
		return selectionDoneMsg(m.review.Confirm(m.ctx))
	}
}

func (m *Model) reload() tea.Cmd {
	return func() tea.Msg {
		return candidatesLoadedMsg(m.review.Reload(m.ctx))
	}
}

func (m *Model) preview(candidateID string) tea.Cmd {
	return func() tea.Msg {
		return previewedMsg(m.review.Preview(candidateID))
	}
}

func (m *Model) refresh() tea.Cmd {
	return func() tea.Msg {
		return refreshedMsg(m.ctrl.Refresh(m.ctx))
	}
}

func (m *Model) clearErrors() tea.Cmd {
	return func() tea.Msg {
		n, err := m.ctrl.ClearErrors(m.ctx)
		return errorsClearedMsg(n, err)
	}
}

func (m *Model) logout() tea.Cmd {
	return func() tea.Msg {
		return loggedOutMsg(m.ctrl.Logout())
	}
}

// waitForEvent blocks on the controller event channel; the handler re-arms it.
func (m *Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		select {
		case ev := <-m.ctrl.Events():
			return controllerEventMsg(ev)
		case <-m.ctx.Done():
			return nil
		}
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	var body string
	switch m.view {
	case LoginView:
		body = m.renderLogin()
	case DashboardView:
		body = m.renderDashboard()
	case ReviewView:
		body = m.renderReview()
	case SubmitView:
		body = m.renderSubmit()
	}

	if m.notice != "" {
		style := styles.ok
		if m.noticeErr {
			style = styles.err
		}
		body += "\n" + style.Render(m.notice)
	}
	return body
}

func (m *Model) renderLogin() string {
	title := styles.title.Render("karaokectl")
	if m.restoring {
		return fmt.Sprintf("%s\n%s Restoring session…\n", title, m.spinner.View())
	}

	status := ""
	if m.busy != "" {
		status = fmt.Sprintf("\n%s %s…", m.spinner.View(), m.busy)
	}
	helpView := m.help.ShortHelpView([]key.Binding{
		key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "log in")),
		key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "quit")),
	})
	return fmt.Sprintf("%s\nPaste your access token:\n\n%s\n%s\n\n%s", title, m.token.View(), status, helpView)
}

func (m *Model) renderDashboard() string {
	header := m.renderHeader()

	helpKeys := []key.Binding{m.keys.enter, m.keys.submit, m.keys.refresh, m.keys.auto}
	if m.ctrl.Session().IsAdmin() {
		helpKeys = append(helpKeys, m.keys.clear)
	}
	helpKeys = append(helpKeys, m.keys.logout, m.keys.quit)

	return fmt.Sprintf("%s\n%s\n\n%s", header, m.jobList.View(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderHeader() string {
	var parts []string
	if s := m.ctrl.Session(); s != nil {
		parts = append(parts, fmt.Sprintf("%s tier • %d jobs remaining • %d used", s.Tier, s.JobsRemaining, s.JobsUsed))
	}

	st := m.ctrl.Store()
	if n := st.Counts()[models.AwaitingReview]; n > 0 {
		parts = append(parts, styles.warn.Render(fmt.Sprintf("%d awaiting review", n)))
	}
	if stale, reason := st.Stale(); stale {
		parts = append(parts, styles.warn.Render("⚠ stale: "+reason))
	} else if last := st.LastSync(); !last.IsZero() {
		parts = append(parts, "synced "+humanize.Time(last))
	}
	parts = append(parts, "auto-refresh "+onOff(m.ctrl.Poller().Enabled()))

	if m.busy != "" {
		parts = append(parts, fmt.Sprintf("%s %s…", m.spinner.View(), m.busy))
	}
	return styles.help.Render(strings.Join(parts, " • "))
}

func (m *Model) renderReview() string {
	view := m.review.View()

	label := view.JobID
	if e, ok := m.ctrl.Store().Get(view.JobID); ok {
		label = e.Job.Label()
	}
	title := styles.title.Render(fmt.Sprintf("Choose an instrumental for %s", label))

	var b strings.Builder
	switch view.State {
	case tasks.ReviewLoading:
		b.WriteString(fmt.Sprintf("%s Loading candidates…\n", m.spinner.View()))
	case tasks.ReviewSubmitting:
		b.WriteString(fmt.Sprintf("%s Submitting selection…\n", m.spinner.View()))
	}

	for i, c := range view.Candidates {
		cursor := "  "
		if i == m.cursor {
			cursor = "> "
		}
		mark := "( )"
		if c.ID == view.Selected {
			mark = "(•)"
		}
		line := fmt.Sprintf("%s%s %s", cursor, mark, c.Label)
		if i == m.cursor {
			line = styles.info.Render(line)
		}
		b.WriteString(line + "\n")
	}

	if view.Err != nil {
		b.WriteString("\n" + styles.err.Render(shared.Describe(view.Err).Message) + "\n")
	}
	if view.NeedsReload {
		b.WriteString(styles.warn.Render("The candidate list is out of date. Press R to reload.") + "\n")
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.up, m.keys.down, m.keys.pick, m.keys.preview, m.keys.confirm, m.keys.reload, m.keys.back})
	return styles.box.Render(fmt.Sprintf("%s\n%s", title, b.String())) + "\n" + helpView
}

func (m *Model) renderSubmit() string {
	title := styles.title.Render("New karaoke job")

	var b strings.Builder
	for i := range m.form {
		b.WriteString(m.form[i].View() + "\n")
	}
	if m.busy != "" {
		b.WriteString(fmt.Sprintf("\n%s %s…\n", m.spinner.View(), m.busy))
	}
	if s := m.ctrl.Session(); s != nil && !s.HasQuota() {
		b.WriteString("\n" + styles.warn.Render("No jobs remaining on this token.") + "\n")
	}

	helpView := m.help.ShortHelpView([]key.Binding{
		m.keys.next,
		key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "submit")),
		m.keys.back,
	})
	return fmt.Sprintf("%s\n%s\n%s", title, b.String(), helpView)
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

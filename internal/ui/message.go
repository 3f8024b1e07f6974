package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/karaokectl/internal/models"
	"github.com/desertthunder/karaokectl/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgSessionStarted MsgKind = iota
	MsgLoginFailed
	MsgControllerEvent
	MsgSubmitted
	MsgCandidatesLoaded
	MsgSelectionDone
	MsgErrorsCleared
	MsgRefreshed
	MsgLoggedOut
	MsgPreviewed
)

type result struct {
	value any
	err   error
}

// sessionStartedMsg is the constructor for [MsgSessionStarted]
func sessionStartedMsg(s *models.Session) Msg {
	return Msg{kind: MsgSessionStarted, data: s}
}

// loginFailedMsg is the constructor for [MsgLoginFailed]. restoring marks a silent restore.
func loginFailedMsg(err error, restoring bool) Msg {
	return Msg{kind: MsgLoginFailed, data: result{value: restoring, err: err}}
}

// controllerEventMsg is the constructor for [MsgControllerEvent]
func controllerEventMsg(ev tasks.Event) Msg {
	return Msg{kind: MsgControllerEvent, data: ev}
}

// submittedMsg is the constructor for [MsgSubmitted]
func submittedMsg(jobID string, err error) Msg {
	return Msg{kind: MsgSubmitted, data: result{value: jobID, err: err}}
}

// candidatesLoadedMsg is the constructor for [MsgCandidatesLoaded]
func candidatesLoadedMsg(err error) Msg {
	return Msg{kind: MsgCandidatesLoaded, data: result{err: err}}
}

// selectionDoneMsg is the constructor for [MsgSelectionDone]
func selectionDoneMsg(err error) Msg {
	return Msg{kind: MsgSelectionDone, data: result{err: err}}
}

// errorsClearedMsg is the constructor for [MsgErrorsCleared]
func errorsClearedMsg(n int, err error) Msg {
	return Msg{kind: MsgErrorsCleared, data: result{value: n, err: err}}
}

// refreshedMsg is the constructor for [MsgRefreshed]
func refreshedMsg(res tasks.CycleResult) Msg {
	return Msg{kind: MsgRefreshed, data: res}
}

// loggedOutMsg is the constructor for [MsgLoggedOut]
func loggedOutMsg(err error) Msg {
	return Msg{kind: MsgLoggedOut, data: result{err: err}}
}

// previewedMsg is the constructor for [MsgPreviewed]
func previewedMsg(err error) Msg {
	return Msg{kind: MsgPreviewed, data: result{err: err}}
}

func (m Msg) result() result {
	r, _ := m.data.(result)
	return r
}

package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	up      key.Binding
	down    key.Binding
	enter   key.Binding
	back    key.Binding
	submit  key.Binding
	refresh key.Binding
	auto    key.Binding
	clear   key.Binding
	logout  key.Binding
	next    key.Binding
	prev    key.Binding
	pick    key.Binding
	confirm key.Binding
	preview key.Binding
	reload  key.Binding
	quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		enter:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "review")),
		back:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		submit:  key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new job")),
		refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		auto:    key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "auto-refresh")),
		clear:   key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "clear errors")),
		logout:  key.NewBinding(key.WithKeys("L"), key.WithHelp("L", "log out")),
		next:    key.NewBinding(key.WithKeys("tab", "down"), key.WithHelp("tab", "next field")),
		prev:    key.NewBinding(key.WithKeys("shift+tab", "up"), key.WithHelp("shift+tab", "previous field")),
		pick:    key.NewBinding(key.WithKeys(" ", "enter"), key.WithHelp("space", "pick")),
		confirm: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "confirm")),
		preview: key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "preview")),
		reload:  key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "reload")),
		quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.enter},
		{k.submit, k.refresh, k.auto, k.clear},
		{k.logout, k.quit},
	}
}

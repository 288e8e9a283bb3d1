package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

type (
	// TickMsg is sent periodically for spinner animation
	TickMsg time.Time

	// SettingsSavedMsg reports whether a login or logout reached the config file
	SettingsSavedMsg struct {
		Action string
		Error  error
	}
)

// tickCmd creates a ticker for spinner animation
func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// saveCmd runs a settings callback off the event loop
func saveCmd(action string, fn func() error) tea.Cmd {
	if fn == nil {
		return nil
	}
	return func() tea.Msg {
		return SettingsSavedMsg{Action: action, Error: fn()}
	}
}

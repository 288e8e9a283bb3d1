package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	Select   key.Binding
	Focus    key.Binding
	New      key.Binding
	Rename   key.Binding
	Delete   key.Binding
	Feedback key.Binding
	Model    key.Binding
	Mode     key.Binding
	Filter   key.Binding
	Scroll   key.Binding
	Logout   key.Binding
	Quit     key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Select:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
		Focus:    key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "compose")),
		New:      key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new")),
		Rename:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rename")),
		Delete:   key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
		Feedback: key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "feedback")),
		Model:    key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "model")),
		Mode:     key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "prompt mode")),
		Filter:   key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "filter")),
		Scroll:   key.NewBinding(key.WithKeys("pgup", "pgdown"), key.WithHelp("pgup/pgdn", "scroll")),
		Logout:   key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("ctrl+l", "logout")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Select, k.Focus, k.New, k.Rename, k.Delete, k.Feedback, k.Model, k.Mode, k.Filter, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Select, k.Focus, k.Scroll},
		{k.New, k.Rename, k.Delete, k.Filter},
		{k.Feedback, k.Model, k.Mode, k.Logout, k.Quit},
	}
}

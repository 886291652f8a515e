package app

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all keyboard bindings for the dashboard.
type KeyMap struct {
	Up          key.Binding
	Down        key.Binding
	Enter       key.Binding
	Escape      key.Binding
	Quit        key.Binding
	Alerts      key.Binding
	Reconnect   key.Binding
	StartStop   key.Binding
	Acknowledge key.Binding
	Clear       key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "prev"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "next"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "alert detail"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "close overlay"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Alerts: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "alerts"),
		),
		Reconnect: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reconnect"),
		),
		StartStop: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "start/stop stream"),
		),
		Acknowledge: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "acknowledge"),
		),
		Clear: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "clear alerts"),
		),
	}
}

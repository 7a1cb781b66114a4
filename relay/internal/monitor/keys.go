package monitor

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Quit       key.Binding
	Up         key.Binding
	Down       key.Binding
	Top        key.Binding
	Bottom     key.Binding
	Refresh    key.Binding
	Disconnect key.Binding
	Confirm    key.Binding
	Cancel     key.Binding
	Help       key.Binding
}

var keys = keyMap{
	Quit:       key.NewBinding(key.WithKeys("ctrl+c", "q"), key.WithHelp("q", "quit")),
	Up:         key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "up")),
	Down:       key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "down")),
	Top:        key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "top")),
	Bottom:     key.NewBinding(key.WithKeys("G"), key.WithHelp("G", "bottom")),
	Refresh:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Disconnect: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "disconnect")),
	Confirm:    key.NewBinding(key.WithKeys("y", "s"), key.WithHelp("y", "confirm")),
	Cancel:     key.NewBinding(key.WithKeys("n", "esc"), key.WithHelp("n", "cancel")),
	Help:       key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
}

func (k keyMap) bindings() []key.Binding {
	return []key.Binding{k.Quit, k.Up, k.Down, k.Top, k.Bottom, k.Refresh, k.Disconnect, k.Help}
}

package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up        key.Binding
	Down      key.Binding
	Refresh   key.Binding
	Scan      key.Binding
	Repair    key.Binding
	ScanAll   key.Binding
	RepairAll key.Binding
	Rotate    key.Binding
	Sync      key.Binding
	Help      key.Binding
	Quit      key.Binding

	Submit key.Binding
	Cancel key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Refresh, k.Scan, k.Repair, k.Sync, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Refresh},
		{k.Scan, k.Repair},
		{k.ScanAll, k.RepairAll, k.Rotate},
		{k.Sync, k.Help, k.Quit},
	}
}

// inputKeyMap is shown while the sync prompt has focus
type inputKeyMap struct {
	Submit key.Binding
	Cancel key.Binding
}

func (k inputKeyMap) ShortHelp() []key.Binding  { return []key.Binding{k.Submit, k.Cancel} }
func (k inputKeyMap) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }

var keys = keyMap{
	Up:        key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:      key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Refresh:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Scan:      key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "scan host")),
	Repair:    key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "repair host")),
	ScanAll:   key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "scan all")),
	RepairAll: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "repair all")),
	Rotate:    key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "rotate")),
	Sync:      key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "sync repos")),
	Help:      key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),

	Submit: key.NewBinding(key.WithKeys("enter"), key.WithHelp("⏎", "sync")),
	Cancel: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
}

var inputKeys = inputKeyMap{Submit: keys.Submit, Cancel: keys.Cancel}

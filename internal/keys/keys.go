// Package keys contains keybinding definitions.
package keys

import "github.com/charmbracelet/bubbles/key"

// CompanionKeyMap defines the keybindings of the companion view.
type CompanionKeyMap struct {
	Send         key.Binding
	ToggleStatus key.Binding
	Plugins      key.Binding
	Logs         key.Binding
	Help         key.Binding
	Quit         key.Binding
}

// PluginsKeyMap applies while the plugin list has focus.
type PluginsKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Toggle key.Binding
	Reload key.Binding
	Close  key.Binding
}

// Companion holds the companion view bindings.
var Companion = CompanionKeyMap{
	Send: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "say it"),
	),
	ToggleStatus: key.NewBinding(
		key.WithKeys("ctrl+s"),
		key.WithHelp("ctrl+s", "toggle status"),
	),
	Plugins: key.NewBinding(
		key.WithKeys("ctrl+p"),
		key.WithHelp("ctrl+p", "plugins"),
	),
	Logs: key.NewBinding(
		key.WithKeys("ctrl+x"),
		key.WithHelp("ctrl+x", "logs"),
	),
	Help: key.NewBinding(
		key.WithKeys("ctrl+_", "ctrl+/"),
		key.WithHelp("ctrl+/", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "quit"),
	),
}

// Plugins holds the plugin list bindings.
var Plugins = PluginsKeyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "down"),
	),
	Toggle: key.NewBinding(
		key.WithKeys(" ", "enter"),
		key.WithHelp("space", "enable/disable"),
	),
	Reload: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "reload"),
	),
	Close: key.NewBinding(
		key.WithKeys("esc", "ctrl+p"),
		key.WithHelp("esc", "close"),
	),
}

// ShortHelp returns keybindings for the short help view.
func (k CompanionKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Send, k.Plugins, k.Help, k.Quit}
}

// FullHelp returns keybindings for the full help view.
func (k CompanionKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Send, k.ToggleStatus, k.Plugins},
		{k.Logs, k.Help, k.Quit},
	}
}

func (k PluginsKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Toggle, k.Reload, k.Close}
}

func (k PluginsKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

package viewer

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up         key.Binding
	Down       key.Binding
	Toggle     key.Binding
	More       key.Binding
	NextFilter key.Binding
	PrevFilter key.Binding
	MoreLimit  key.Binding
	LessLimit  key.Binding
	Refresh    key.Binding
	Explain    key.Binding
	Submit     key.Binding
	Escape     key.Binding
	Quit       key.Binding
}

var keys = keyMap{
	Up:         key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:       key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Toggle:     key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "expand")),
	More:       key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "load more")),
	NextFilter: key.NewBinding(key.WithKeys("tab", "right", "l"), key.WithHelp("tab", "next subreddit")),
	PrevFilter: key.NewBinding(key.WithKeys("shift+tab", "left", "h"), key.WithHelp("shift+tab", "prev subreddit")),
	MoreLimit:  key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+/-", "post count")),
	LessLimit:  key.NewBinding(key.WithKeys("-", "_")),
	Refresh:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Explain:    key.NewBinding(key.WithKeys("/", "e"), key.WithHelp("/", "explain keyword")),
	Submit:     key.NewBinding(key.WithKeys("enter")),
	Escape:     key.NewBinding(key.WithKeys("esc")),
	Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

func (k keyMap) help() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Toggle, k.More, k.NextFilter, k.MoreLimit, k.Explain, k.Quit}
}

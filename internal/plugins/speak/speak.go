// Package speak turns the agent's "speak" output into a speech bubble.
package speak

import (
	"strings"

	"github.com/rivo/uniseg"

	"github.com/zjrosen/deskmate/internal/event"
	"github.com/zjrosen/deskmate/internal/plugin"
)

const (
	ID    = "speak"
	Field = "speak"
)

type Config struct {
	plugin.BaseConfig `yaml:",inline"`
	MaxLength         int `yaml:"max_length"`
}

// Speak is something the pet says out loud.
type Speak struct {
	event.Base
	Text string
}

func (Speak) Tags() []event.Tag { return []event.Tag{event.TagAgent} }

type Speaker struct {
	plugin.Base
	pc  *plugin.Context
	cfg *Config
}

func Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		ID: ID,
		NewConfig: func() plugin.Config {
			return &Config{BaseConfig: plugin.BaseConfig{Enabled: true}, MaxLength: 280}
		},
		New: func(pc *plugin.Context) (plugin.Plugin, error) {
			return &Speaker{pc: pc, cfg: plugin.ConfigOf[*Config](pc)}, nil
		},
	}
}

func (s *Speaker) Prompts() map[string]string {
	return map[string]string{
		"output": "Put anything you want to say to the user in the `speak` field. Keep it to one or two short sentences.",
	}
}

func (s *Speaker) HandleEvent(e event.Event) {
	f, ok := e.(event.PluginField)
	if !ok || f.Key != Field {
		return
	}
	text, _ := f.Value.(string)
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.pc.Emitter().TriggerEvent(Speak{Text: truncate(text, s.cfg.MaxLength)})
}

// truncate limits s to n user-perceived characters, ending in an ellipsis
// when cut. Grapheme clusters such as flags and skin-toned emoji stay whole.
func truncate(s string, n int) string {
	if n <= 0 || uniseg.GraphemeClusterCount(s) <= n {
		return s
	}
	var b strings.Builder
	g := uniseg.NewGraphemes(s)
	for i := 0; i < n-1 && g.Next(); i++ {
		b.WriteString(g.Str())
	}
	return b.String() + "…"
}

// Package think gives the agent a private scratch field.
package think

import (
	"github.com/zjrosen/deskmate/internal/event"
	"github.com/zjrosen/deskmate/internal/log"
	"github.com/zjrosen/deskmate/internal/plugin"
)

const (
	ID    = "think"
	Field = "think"
)

type Thinker struct{ plugin.Base }

func Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		ID:  ID,
		New: func(*plugin.Context) (plugin.Plugin, error) { return Thinker{}, nil },
	}
}

func (Thinker) Prompts() map[string]string {
	return map[string]string{
		"output": "Use the `think` field to reason before you act. The user never sees it.",
	}
}

func (Thinker) HandleEvent(e event.Event) {
	if f, ok := e.(event.PluginField); ok && f.Key == Field {
		log.Debug(log.CatAgent, "thought", "text", f.Value)
	}
}

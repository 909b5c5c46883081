// Package event defines the notifications broadcast through the task
// manager. Events are immutable values; every variant embeds Base, which
// closes the set of types that satisfy Event.
package event

import (
	"fmt"
	"slices"
	"strings"
)

// Tag is a coarse filter label carried by an event.
type Tag string

const (
	TagUser   Tag = "user"   // caused by a user gesture or input
	TagMove   Tag = "move"   // changes or requests the pet's position
	TagAgent  Tag = "agent"  // produced by the decision loop
	TagPlugin Tag = "plugin" // plugin lifecycle
	TagTask   Tag = "task"   // task lifecycle
)

// Role identifies who a Message speaks for when handed to the agent.
type Role string

const (
	RoleUser      Role = "user"
	RoleEvent     Role = "event"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleInfo      Role = "info"
)

// Message is what the agent sees of an event.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Event is implemented by every notification. Only types embedding Base
// satisfy it.
type Event interface {
	// Tags returns the event's tags. Callers must not modify the slice.
	Tags() []Tag
	// AgentMessage renders the event for the agent, or reports false when
	// the agent should not see it. It must not have side effects.
	AgentMessage() (Message, bool)

	sealed()
}

// Base supplies the default behaviour for event variants: no tags and no
// agent message.
type Base struct{}

func (Base) Tags() []Tag                   { return nil }
func (Base) AgentMessage() (Message, bool) { return Message{}, false }
func (Base) sealed()                       {}

// Name returns the variant's qualified type name, such as "event.Plain".
func Name(e Event) string {
	if e == nil {
		return "<nil>"
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", e), "*")
}

// HasTag reports whether e carries every one of tags.
func HasTag(e Event, tags ...Tag) bool {
	have := e.Tags()
	for _, t := range tags {
		if !slices.Contains(have, t) {
			return false
		}
	}
	return true
}

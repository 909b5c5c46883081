package plugin

import "github.com/zjrosen/deskmate/internal/event"

// Refresh carries the aggregate the agent binds to. It is broadcast after
// every structural change to the loaded set.
type Refresh struct {
	event.Base
	Prompts map[string]string
	Tools   []Tool
}

func (Refresh) Tags() []event.Tag { return []event.Tag{event.TagPlugin} }

// Reloaded is broadcast after a plugin was unloaded and loaded again.
type Reloaded struct {
	event.Base
	ID string
}

func (Reloaded) Tags() []event.Tag { return []event.Tag{event.TagPlugin} }

// ConfigUpdated is broadcast when a plugin's persisted config changed.
type ConfigUpdated struct {
	event.Base
	ID  string
	Old Config
	New Config
}

func (ConfigUpdated) Tags() []event.Tag { return []event.Tag{event.TagPlugin} }

// Loaded is broadcast when a plugin instance was created.
type Loaded struct {
	event.Base
	ID string
}

func (Loaded) Tags() []event.Tag { return []event.Tag{event.TagPlugin} }

// Unloaded is broadcast when a plugin instance was closed.
type Unloaded struct {
	event.Base
	ID string
}

func (Unloaded) Tags() []event.Tag { return []event.Tag{event.TagPlugin} }

// Package flags provides feature flag support. Flags are read-only after
// initialization and unknown flags are off.
package flags

import (
	"maps"
	"slices"

	"github.com/zjrosen/deskmate/internal/log"
)

const (
	// FlagHotReload re-applies plugin config.yaml edits made while running.
	FlagHotReload = "hot-reload"

	// FlagEventStream exposes the live event websocket on the daemon.
	FlagEventStream = "event-stream"
)

// Known lists every flag deskmate reads, for CLI listing.
var Known = []string{FlagEventStream, FlagHotReload}

// Registry holds feature flag state loaded from configuration.
type Registry struct {
	flags map[string]bool
}

// New creates a Registry from a config map. A nil map disables everything.
func New(flags map[string]bool) *Registry {
	copied := make(map[string]bool, len(flags))
	maps.Copy(copied, flags)
	r := &Registry{flags: copied}
	log.Debug(log.CatConfig, "Feature flags initialized", "count", len(copied), "flags", r.All())
	return r
}

// Enabled reports whether name is on. Nil registries and unknown flags are off.
func (r *Registry) Enabled(name string) bool {
	if r == nil {
		return false
	}
	value, exists := r.flags[name]
	if !exists {
		log.Debug(log.CatConfig, "Unknown flag accessed", "flag", name)
		return false
	}
	return value
}

// All returns a copy of all flags.
func (r *Registry) All() map[string]bool {
	if r == nil {
		return map[string]bool{}
	}
	return maps.Clone(r.flags)
}

// Names returns the configured flag names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(r.flags))
}

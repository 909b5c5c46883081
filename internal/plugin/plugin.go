package plugin

import (
	"context"

	"github.com/zjrosen/deskmate/internal/event"
)

// Plugin is a loaded feature module. Init runs once after construction;
// Close releases whatever Init acquired.
type Plugin interface {
	Init(ctx context.Context) error
	Close() error
}

// Prompter contributes prompt fragments keyed by fragment name.
type Prompter interface {
	Prompts() map[string]string
}

// Tooler exposes tools the agent may call.
type Tooler interface {
	Tools() []Tool
}

// Informer contributes status lines.
type Informer interface {
	Infos() []InfoGroup
}

// EventHandler sees every broadcast event while the plugin is loaded. It
// runs on the loop and must return quickly.
type EventHandler interface {
	HandleEvent(e event.Event)
}

// DepLoader is told when a plugin it depends on has been reloaded, with the
// fresh instance.
type DepLoader interface {
	OnDepLoad(id string, p Plugin)
}

// Config is a per-plugin persisted record.
type Config interface {
	IsEnabled() bool
	SetEnabled(enabled bool)
}

// BaseConfig carries the enabled flag. Plugin configs embed it inline:
//
//	type Config struct {
//		plugin.BaseConfig `yaml:",inline"`
//		Speed float64     `yaml:"speed"`
//	}
type BaseConfig struct {
	Enabled bool `yaml:"enabled"`
}

func (c *BaseConfig) IsEnabled() bool         { return c.Enabled }
func (c *BaseConfig) SetEnabled(enabled bool) { c.Enabled = enabled }

// Base gives plugins a no-op lifecycle.
type Base struct{}

func (Base) Init(context.Context) error { return nil }
func (Base) Close() error               { return nil }

// InfoItem is one status line. An empty Key marks the group's headline.
type InfoItem struct {
	Key   string
	Value string
}

// InfoGroup is a titled block of status lines.
type InfoGroup struct {
	Title string
	Items []InfoItem
}

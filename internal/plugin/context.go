package plugin

import (
	"context"
	"slices"

	"github.com/zjrosen/deskmate/internal/event"
	"github.com/zjrosen/deskmate/internal/task"
)

// Context is handed to a plugin constructor. Lookups always return the live
// instances, so a plugin that resolves its dependencies on use never holds a
// closed one. Methods other than Emitter must be called on the loop.
type Context struct {
	id    string
	m     *Manager
	tasks []string
}

// ID returns the plugin's ID.
func (c *Context) ID() string { return c.id }

// Dep returns the loaded plugin with the given ID.
func (c *Context) Dep(id string) (Plugin, bool) {
	inst, ok := c.m.loaded[id]
	if !ok {
		return nil, false
	}
	return inst.plugin, true
}

// Provider returns the first loaded plugin, in load order, that provides capability.
func (c *Context) Provider(capability Capability) (Plugin, bool) {
	for _, d := range c.m.order {
		if inst, ok := c.m.loaded[d.ID]; ok && slices.Contains(d.Provides, capability) {
			return inst.plugin, true
		}
	}
	return nil, false
}

// Config returns the plugin's current config.
func (c *Context) Config() Config {
	return c.m.configs[c.id]
}

// SaveConfig persists the plugin's current config as is, without
// reloading the plugin. Plugins use it to keep state they own.
func (c *Context) SaveConfig(ctx context.Context) error {
	_, err := c.m.store.Save(ctx, c.id, c.Config())
	return err
}

// UpdateConfig persists cfg and applies it. A changed config may reload the
// plugin that calls it.
func (c *Context) UpdateConfig(ctx context.Context, cfg Config) error {
	return c.m.UpdateConfig(ctx, c.id, cfg)
}

// AddTask submits t. Tasks added here are cancelled when the plugin unloads.
func (c *Context) AddTask(t task.Task) bool {
	name := task.Key(t)
	if !slices.Contains(c.tasks, name) {
		c.tasks = append(c.tasks, name)
	}
	return c.m.tasks.Add(t)
}

// TriggerEvent broadcasts e synchronously.
func (c *Context) TriggerEvent(e event.Event) {
	c.m.tasks.TriggerEvent(e)
}

// Emitter returns an Emitter usable from any goroutine.
func (c *Context) Emitter() task.Emitter {
	return c.m.tasks.Emitter()
}

// ConfigOf returns the plugin's config as T. It panics if the plugin was
// registered with a different config type.
func ConfigOf[T Config](pc *Context) T {
	return pc.Config().(T)
}

// DepOf returns the loaded dependency id as T.
func DepOf[T any](pc *Context, id string) (T, bool) {
	var zero T
	p, ok := pc.Dep(id)
	if !ok {
		return zero, false
	}
	v, ok := p.(T)
	return v, ok
}

// ProviderOf returns the first loaded provider of capability as T.
func ProviderOf[T any](pc *Context, capability Capability) (T, bool) {
	var zero T
	p, ok := pc.Provider(capability)
	if !ok {
		return zero, false
	}
	v, ok := p.(T)
	return v, ok
}

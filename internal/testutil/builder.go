// Package testutil builds a running loop, task manager and plugin manager
// for plugin tests.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/deskmate/internal/config"
	"github.com/zjrosen/deskmate/internal/event"
	"github.com/zjrosen/deskmate/internal/plugin"
	"github.com/zjrosen/deskmate/internal/task"
	"github.com/zjrosen/deskmate/internal/worker"
)

// DefaultTimeout bounds every wait in this package.
const DefaultTimeout = 5 * time.Second

// Builder accumulates plugins and their on-disk configs.
type Builder struct {
	t       *testing.T
	descs   []plugin.Descriptor
	configs map[string]string
}

// NewBuilder creates a builder for t.
func NewBuilder(t *testing.T) *Builder {
	t.Helper()
	return &Builder{t: t, configs: make(map[string]string)}
}

// WithPlugins registers descriptors in discovery order.
func (b *Builder) WithPlugins(descs ...plugin.Descriptor) *Builder {
	b.descs = append(b.descs, descs...)
	return b
}

// WithConfig writes a YAML config for id before startup.
func (b *Builder) WithConfig(id, doc string) *Builder {
	b.configs[id] = doc
	return b
}

// Build starts the loop and creates the managers. Plugins are not loaded
// until Init.
func (b *Builder) Build() *Env {
	b.t.Helper()

	w := worker.New(worker.WithGracePeriod(time.Second))
	require.NoError(b.t, w.Start())

	e := &Env{
		t:      b.t,
		Worker: w,
		Store:  config.NewPluginStore(b.t.TempDir()),
	}
	for id, doc := range b.configs {
		e.WriteConfig(id, doc)
	}

	reg := plugin.NewRegistry()
	reg.MustRegister(b.descs...)

	e.Tasks = task.NewManager(w)
	w.OnStop(func(ctx context.Context) {
		e.Plugins.Close()
		_ = e.Tasks.Shutdown(ctx)
	})
	e.Tasks.RegisterCallback("testutil", e.record)
	e.Plugins = plugin.NewManager(reg, e.Store, e.Tasks)

	b.t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
		defer cancel()
		_ = w.Stop(ctx)
	})
	return e
}

// Env is a running plugin environment.
type Env struct {
	t       *testing.T
	Worker  *worker.Worker
	Tasks   *task.Manager
	Plugins *plugin.Manager
	Store   *config.PluginStore

	mu     sync.Mutex
	events []event.Event
}

func (e *Env) record(ev event.Event) {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
}

// Do runs fn on the loop and waits for it.
func (e *Env) Do(fn func()) {
	e.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()
	_, err := e.Worker.Submit("testutil", func(context.Context) (any, error) {
		fn()
		return nil, nil
	}).Wait(ctx)
	require.NoError(e.t, err)
}

// Init loads the plugins and fails the test on error.
func (e *Env) Init() {
	e.t.Helper()
	var err error
	e.Do(func() { err = e.Plugins.Init(context.Background()) })
	require.NoError(e.t, err)
}

// Trigger broadcasts ev on the loop.
func (e *Env) Trigger(ev event.Event) {
	e.Do(func() { e.Tasks.TriggerEvent(ev) })
}

// Instance returns the loaded plugin id.
func (e *Env) Instance(id string) plugin.Plugin {
	e.t.Helper()
	var p plugin.Plugin
	var ok bool
	e.Do(func() { p, ok = e.Plugins.Instance(id) })
	require.True(e.t, ok, "plugin %s not loaded", id)
	return p
}

// Infos returns the merged plugin infos.
func (e *Env) Infos() []plugin.InfoGroup {
	e.t.Helper()
	var groups []plugin.InfoGroup
	var err error
	e.Do(func() { groups, err = e.Plugins.Infos() })
	require.NoError(e.t, err)
	return groups
}

// Running reports whether a task with name is running.
func (e *Env) Running(name string) bool {
	var ok bool
	e.Do(func() { _, ok = e.Tasks.Running(name) })
	return ok
}

// WriteConfig writes doc as id's config file.
func (e *Env) WriteConfig(id, doc string) {
	e.t.Helper()
	path := e.Store.Path(id)
	require.NoError(e.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(e.t, os.WriteFile(path, []byte(doc), 0o644))
}

// Events returns every event broadcast so far.
func (e *Env) Events() []event.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]event.Event(nil), e.events...)
}

// EventsOf filters events by variant.
func EventsOf[T event.Event](events []event.Event) []T {
	var out []T
	for _, ev := range events {
		if v, ok := ev.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// WaitFor polls until an event of type T satisfying match was broadcast and
// returns it.
func WaitFor[T event.Event](e *Env, match func(T) bool) T {
	e.t.Helper()
	var found T
	require.Eventually(e.t, func() bool {
		for _, v := range EventsOf[T](e.Events()) {
			if match == nil || match(v) {
				found = v
				return true
			}
		}
		return false
	}, DefaultTimeout, 5*time.Millisecond)
	return found
}

// AgentMessages returns what the agent would have been shown.
func AgentMessages(events []event.Event) []event.Message {
	var out []event.Message
	for _, ev := range events {
		if msg, ok := ev.AgentMessage(); ok {
			out = append(out, msg)
		}
	}
	return out
}

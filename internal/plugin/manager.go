package plugin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"runtime/debug"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/deskmate/internal/event"
	"github.com/zjrosen/deskmate/internal/log"
	"github.com/zjrosen/deskmate/internal/task"
	"github.com/zjrosen/deskmate/internal/tracing"
)

// CallbackKey is the task manager callback the Manager dispatches plugin
// event handlers from.
const CallbackKey = "plugin-manager"

// Plugin lifecycle actions reported to the Observer.
const (
	ActionLoad   = "load"
	ActionUnload = "unload"
	ActionReload = "reload"
	ActionSkip   = "skip"
	ActionError  = "error"
)

// ConfigStore persists plugin configs. *config.PluginStore satisfies it.
type ConfigStore interface {
	Load(ctx context.Context, id string, dst any) error
	Save(ctx context.Context, id string, cfg any) (bool, error)
}

// Observer is told about lifecycle actions, typically for metrics.
type Observer interface {
	PluginAction(id, action string)
	SetLoadedPlugins(n int)
}

// Option configures the Manager.
type Option func(*Manager)

// WithTracer records spans for plugin loads.
func WithTracer(t trace.Tracer) Option {
	return func(m *Manager) {
		if t != nil {
			m.tracer = t
		}
	}
}

// WithObserver reports lifecycle actions.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		m.observer = o
	}
}

type instance struct {
	desc   Descriptor
	plugin Plugin
	pc     *Context
}

// Status describes one plugin for listings.
type Status struct {
	ID       string   `json:"id"`
	Enabled  bool     `json:"enabled"`
	Loaded   bool     `json:"loaded"`
	Deps     []string `json:"deps,omitempty"`
	Provides []string `json:"provides,omitempty"`
}

// Manager owns the loaded plugin set.
type Manager struct {
	registry *Registry
	store    ConfigStore
	tasks    *task.Manager
	tracer   trace.Tracer
	observer Observer

	order   []Descriptor
	index   map[string]int
	configs map[string]Config
	loaded  map[string]*instance

	prompts map[string]string
	tools   []Tool
}

// NewManager creates a Manager over the registered plugins. Nothing loads
// until Init.
func NewManager(reg *Registry, store ConfigStore, tasks *task.Manager, opts ...Option) *Manager {
	m := &Manager{
		registry: reg,
		store:    store,
		tasks:    tasks,
		tracer:   noop.NewTracerProvider().Tracer("plugin"),
		loaded:   make(map[string]*instance),
		prompts:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init orders the registered plugins, loads their configs and loads every
// enabled plugin whose dependencies are loaded. A dependency cycle or a
// status key collision is returned as an error; a missing dependency only
// leaves the dependent unloaded.
func (m *Manager) Init(ctx context.Context) error {
	if m.order != nil {
		return errors.New("plugin manager already initialized")
	}

	ordered, err := Order(m.registry.All())
	if err != nil {
		log.ErrorErr(log.CatPlugin, "cannot order plugins", err)
		return err
	}

	ctx, span := m.tracer.Start(ctx, tracing.SpanPrefixPlugin+"init",
		trace.WithAttributes(attribute.Int(tracing.AttrPluginCount, len(ordered))))
	defer span.End()

	m.order = ordered
	m.index = make(map[string]int, len(ordered))
	m.configs = make(map[string]Config, len(ordered))
	for i, d := range ordered {
		m.index[d.ID] = i
		m.configs[d.ID] = m.loadConfig(ctx, d)
	}

	m.tasks.RegisterCallback(CallbackKey, m.dispatch)

	// A provider ordered after its dependent is only picked up by a later
	// pass, so loading runs to a fixed point.
	err = m.cascade(ctx, 0)
	m.refresh()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	log.Info(log.CatPlugin, "plugins initialized", "registered", len(ordered), "loaded", len(m.loaded))
	return nil
}

// SetEnabled persists the enabled flag for id and loads or unloads it,
// cascading to later plugins.
func (m *Manager) SetEnabled(ctx context.Context, id string, enabled bool) error {
	d, err := m.descriptor(id)
	if err != nil {
		return err
	}
	cfg := m.configs[id]
	if cfg.IsEnabled() == enabled {
		return nil
	}

	old := m.cloneConfig(d, cfg)
	cfg.SetEnabled(enabled)
	if _, err := m.store.Save(ctx, id, cfg); err != nil {
		cfg.SetEnabled(!enabled)
		return fmt.Errorf("saving %s: %w", id, err)
	}
	return m.applyChange(ctx, d, old, cfg)
}

// UpdateConfig persists cfg for id. If the stored document changed, the
// plugin is loaded, unloaded or reloaded to match.
func (m *Manager) UpdateConfig(ctx context.Context, id string, cfg Config) error {
	d, err := m.descriptor(id)
	if err != nil {
		return err
	}
	old := m.configs[id]
	if reflect.TypeOf(cfg) != reflect.TypeOf(old) {
		return fmt.Errorf("config for %s: got %T, want %T", id, cfg, old)
	}

	changed, err := m.store.Save(ctx, id, cfg)
	if err != nil {
		return fmt.Errorf("saving %s: %w", id, err)
	}
	if !changed {
		return nil
	}
	if cfg == old {
		// Mutated in place; the previous values are gone.
		old = nil
	}
	m.configs[id] = cfg
	return m.applyChange(ctx, d, old, cfg)
}

// ReloadConfig re-reads id's document from the store and applies it when
// it differs from the config in use. The store's cache must already be
// invalidated.
func (m *Manager) ReloadConfig(ctx context.Context, id string) error {
	d, err := m.descriptor(id)
	if err != nil {
		return err
	}
	fresh := d.newConfig()
	if err := m.store.Load(ctx, id, fresh); err != nil {
		return fmt.Errorf("reloading config for %s: %w", id, err)
	}

	old := m.configs[id]
	if sameEncoding(old, fresh) {
		return nil
	}
	log.Info(log.CatPlugin, "plugin config changed on disk", "plugin", id)
	m.configs[id] = fresh
	return m.applyChange(ctx, d, old, fresh)
}

// Reload unloads and loads id again. Later loaded plugins depending on it
// receive the new instance through OnDepLoad.
func (m *Manager) Reload(ctx context.Context, id string) error {
	d, err := m.descriptor(id)
	if err != nil {
		return err
	}
	if _, ok := m.loaded[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotLoaded, id)
	}
	err = m.reload(ctx, d)
	m.refresh()
	return err
}

// Close unloads every plugin in reverse load order.
func (m *Manager) Close() {
	for i := len(m.order) - 1; i >= 0; i-- {
		m.unload(m.order[i].ID)
	}
	m.tasks.RemoveCallback(CallbackKey)
}

// Prompts returns the merged prompt fragments from the last refresh.
func (m *Manager) Prompts() map[string]string {
	return maps.Clone(m.prompts)
}

// Tools returns the exposed tools from the last refresh.
func (m *Manager) Tools() []Tool {
	return slices.Clone(m.tools)
}

// Infos merges the status groups of loaded plugins in load order. Groups
// with the same title are combined; a key contributed twice to one group
// is an error. Headlines (empty keys) are limited to one per plugin and
// group, and every plugin's headline is kept.
func (m *Manager) Infos() ([]InfoGroup, error) {
	var groups []InfoGroup
	index := make(map[string]int)
	owner := make(map[string]string)

	for _, d := range m.order {
		inst, ok := m.loaded[d.ID]
		if !ok {
			continue
		}
		inf, ok := inst.plugin.(Informer)
		if !ok {
			continue
		}
		headlines := make(map[string]bool)
		for _, g := range inf.Infos() {
			i, seen := index[g.Title]
			if !seen {
				i = len(groups)
				index[g.Title] = i
				groups = append(groups, InfoGroup{Title: g.Title})
			}
			for _, item := range g.Items {
				if item.Key == "" {
					if headlines[g.Title] {
						return nil, fmt.Errorf("%w: second headline in %q from %s", ErrDuplicateInfoKey, g.Title, d.ID)
					}
					headlines[g.Title] = true
					groups[i].Items = append(groups[i].Items, item)
					continue
				}
				k := g.Title + "\x00" + item.Key
				if prev, dup := owner[k]; dup {
					return nil, fmt.Errorf("%w: %q in %q from %s and %s", ErrDuplicateInfoKey, item.Key, g.Title, prev, d.ID)
				}
				owner[k] = d.ID
				groups[i].Items = append(groups[i].Items, item)
			}
		}
	}
	return groups, nil
}

// StatusText renders Infos as markdown.
func (m *Manager) StatusText() (string, error) {
	groups, err := m.Infos()
	if err != nil {
		return "", err
	}
	return FormatInfos(groups), nil
}

// FormatInfos renders groups as markdown sections. Headlines come first
// in each section.
func FormatInfos(groups []InfoGroup) string {
	var b strings.Builder
	for i, g := range groups {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "### %s\n", g.Title)
		for _, item := range g.Items {
			if item.Key == "" {
				fmt.Fprintf(&b, "%s\n", item.Value)
			}
		}
		for _, item := range g.Items {
			if item.Key != "" {
				fmt.Fprintf(&b, "- **%s**: %s\n", item.Key, item.Value)
			}
		}
	}
	return b.String()
}

// IsLoaded reports whether id is loaded.
func (m *Manager) IsLoaded(id string) bool {
	_, ok := m.loaded[id]
	return ok
}

// Instance returns the loaded plugin id.
func (m *Manager) Instance(id string) (Plugin, bool) {
	inst, ok := m.loaded[id]
	if !ok {
		return nil, false
	}
	return inst.plugin, true
}

// Config returns the config in use for id.
func (m *Manager) Config(id string) (Config, bool) {
	cfg, ok := m.configs[id]
	return cfg, ok
}

// Loaded lists loaded plugin IDs in load order.
func (m *Manager) Loaded() []string {
	var ids []string
	for _, d := range m.order {
		if _, ok := m.loaded[d.ID]; ok {
			ids = append(ids, d.ID)
		}
	}
	return ids
}

// Status describes every plugin in load order.
func (m *Manager) Status() []Status {
	out := make([]Status, 0, len(m.order))
	for _, d := range m.order {
		st := Status{ID: d.ID, Loaded: m.IsLoaded(d.ID)}
		if cfg, ok := m.configs[d.ID]; ok {
			st.Enabled = cfg.IsEnabled()
		}
		for _, dep := range d.Deps {
			st.Deps = append(st.Deps, dep.String())
		}
		for _, c := range d.Provides {
			st.Provides = append(st.Provides, string(c))
		}
		out = append(out, st)
	}
	return out
}

func (m *Manager) descriptor(id string) (Descriptor, error) {
	if m.order == nil {
		return Descriptor{}, ErrNotInitialized
	}
	i, ok := m.index[id]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownPlugin, id)
	}
	return m.order[i], nil
}

func (m *Manager) loadConfig(ctx context.Context, d Descriptor) Config {
	cfg := d.newConfig()
	if err := m.store.Load(ctx, d.ID, cfg); err != nil {
		log.Warn(log.CatPlugin, "using default config", "plugin", d.ID, "error", err)
		return d.newConfig()
	}
	return cfg
}

// applyChange reconciles the loaded set with a new config and announces it.
// old is nil when the previous values are unknown.
func (m *Manager) applyChange(ctx context.Context, d Descriptor, old, cfg Config) error {
	_, loaded := m.loaded[d.ID]

	var err error
	switch {
	case cfg.IsEnabled() && !loaded:
		_, err = m.tryLoad(ctx, d)
		err = errors.Join(err, m.cascade(ctx, 0))
	case !cfg.IsEnabled() && loaded:
		m.unload(d.ID)
		err = m.cascade(ctx, 0)
	case loaded:
		err = m.reload(ctx, d)
	}
	m.refresh()

	m.tasks.TriggerEvent(ConfigUpdated{ID: d.ID, Old: old, New: cfg})
	return err
}

// tryLoad loads d if it is enabled and its dependencies are loaded. It
// reports whether d is loaded afterwards. Constructor and Init failures
// leave d unloaded and are only logged; a status key collision unloads d
// again and is returned.
func (m *Manager) tryLoad(ctx context.Context, d Descriptor) (bool, error) {
	if _, ok := m.loaded[d.ID]; ok {
		return true, nil
	}
	if !m.configs[d.ID].IsEnabled() {
		return false, nil
	}
	if missing := m.missingDeps(d); len(missing) > 0 {
		log.Debug(log.CatPlugin, "dependencies not loaded", "plugin", d.ID, "missing", strings.Join(missing, ","))
		m.observe(d.ID, ActionSkip)
		return false, nil
	}

	ctx, span := m.tracer.Start(ctx, tracing.SpanPrefixPlugin+ActionLoad,
		trace.WithAttributes(attribute.String(tracing.AttrPluginID, d.ID)))
	defer span.End()

	pc := &Context{id: d.ID, m: m}
	p, err := m.construct(ctx, d, pc)
	if err != nil {
		log.ErrorErr(log.CatPlugin, "plugin failed to load", err, "plugin", d.ID)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.observe(d.ID, ActionError)
		return false, nil
	}

	m.loaded[d.ID] = &instance{desc: d, plugin: p, pc: pc}
	if _, err := m.Infos(); err != nil {
		log.ErrorErr(log.CatPlugin, "plugin status conflicts", err, "plugin", d.ID)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.unload(d.ID)
		return false, err
	}

	log.Info(log.CatPlugin, "plugin loaded", "plugin", d.ID)
	m.observe(d.ID, ActionLoad)
	m.tasks.TriggerEvent(Loaded{ID: d.ID})
	return true, nil
}

func (m *Manager) construct(ctx context.Context, d Descriptor, pc *Context) (p Plugin, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error(log.CatPlugin, "plugin panicked during load", "plugin", d.ID, "panic", r, "stack", string(debug.Stack()))
			p, err = nil, fmt.Errorf("plugin %s panicked: %v", d.ID, r)
		}
	}()

	p, err = d.New(pc)
	if err != nil {
		return nil, err
	}
	if err := p.Init(ctx); err != nil {
		closeQuietly(d.ID, p)
		return nil, fmt.Errorf("init: %w", err)
	}
	return p, nil
}

func (m *Manager) unload(id string) {
	inst, ok := m.loaded[id]
	if !ok {
		return
	}
	delete(m.loaded, id)

	for _, name := range inst.pc.tasks {
		m.tasks.Cancel(name)
	}
	closeQuietly(id, inst.plugin)

	log.Info(log.CatPlugin, "plugin unloaded", "plugin", id)
	m.observe(id, ActionUnload)
	m.tasks.TriggerEvent(Unloaded{ID: id})
}

func (m *Manager) reload(ctx context.Context, d Descriptor) error {
	m.unload(d.ID)
	ok, err := m.tryLoad(ctx, d)
	if !ok {
		return errors.Join(err, m.cascade(ctx, 0))
	}

	fresh := m.loaded[d.ID].plugin
	for _, later := range m.order[m.index[d.ID]+1:] {
		inst, loaded := m.loaded[later.ID]
		if !loaded || !later.DependsOn(d) {
			continue
		}
		if dl, ok := inst.plugin.(DepLoader); ok {
			dl.OnDepLoad(d.ID, fresh)
		}
	}

	m.observe(d.ID, ActionReload)
	m.tasks.TriggerEvent(Reloaded{ID: d.ID})
	return nil
}

// cascade re-evaluates plugins from position from onward until nothing
// changes: loaded plugins whose dependencies went away are unloaded and
// enabled plugins whose dependencies appeared are loaded. Each plugin is
// attempted at most once per cascade. Order only places one provider of a
// capability before its dependents, so lifecycle changes walk from 0.
func (m *Manager) cascade(ctx context.Context, from int) error {
	if from >= len(m.order) {
		return nil
	}
	attempted := make(map[string]bool)
	var errs []error
	span := trace.SpanFromContext(ctx)
	mark := func(id, action string) {
		span.AddEvent(tracing.EventCascade, trace.WithAttributes(
			attribute.String(tracing.AttrPluginID, id),
			attribute.String(tracing.AttrPluginAction, action),
		))
	}

	for changed := true; changed; {
		changed = false
		for _, d := range m.order[from:] {
			_, loaded := m.loaded[d.ID]
			enabled := m.configs[d.ID].IsEnabled()
			satisfied := len(m.missingDeps(d)) == 0

			switch {
			case loaded && (!enabled || !satisfied):
				log.Debug(log.CatPlugin, "cascade unload", "plugin", d.ID)
				mark(d.ID, ActionUnload)
				m.unload(d.ID)
				changed = true
			case !loaded && enabled && satisfied && !attempted[d.ID]:
				attempted[d.ID] = true
				ok, err := m.tryLoad(ctx, d)
				if err != nil {
					errs = append(errs, err)
				}
				if ok {
					log.Debug(log.CatPlugin, "cascade load", "plugin", d.ID)
					mark(d.ID, ActionLoad)
					changed = true
				}
			}
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) missingDeps(d Descriptor) []string {
	var missing []string
	for _, dep := range d.Deps {
		if !m.depLoaded(dep) {
			missing = append(missing, dep.String())
		}
	}
	return missing
}

func (m *Manager) depLoaded(dep Dependency) bool {
	for _, inst := range m.loaded {
		if inst.desc.Satisfies(dep) {
			return true
		}
	}
	return false
}

// refresh recomputes the merged prompts and tools and broadcasts them.
func (m *Manager) refresh() {
	prompts := make(map[string]string)
	var tools []Tool
	for _, d := range m.order {
		inst, ok := m.loaded[d.ID]
		if !ok {
			continue
		}
		if pr, ok := inst.plugin.(Prompter); ok {
			frags := pr.Prompts()
			for _, k := range slices.Sorted(maps.Keys(frags)) {
				if prev, ok := prompts[k]; ok {
					prompts[k] = prev + "\n" + frags[k]
				} else {
					prompts[k] = frags[k]
				}
			}
		}
		if tl, ok := inst.plugin.(Tooler); ok {
			tools = append(tools, tl.Tools()...)
		}
	}
	m.prompts, m.tools = prompts, tools

	if m.observer != nil {
		m.observer.SetLoadedPlugins(len(m.loaded))
	}
	m.tasks.TriggerEvent(Refresh{Prompts: maps.Clone(prompts), Tools: slices.Clone(tools)})
}

// dispatch forwards broadcast events to loaded event handlers in load
// order.
func (m *Manager) dispatch(e event.Event) {
	for _, d := range slices.Clone(m.order) {
		inst, ok := m.loaded[d.ID]
		if !ok {
			continue
		}
		h, ok := inst.plugin.(EventHandler)
		if !ok {
			continue
		}
		m.handle(d.ID, h, e)
	}
}

func (m *Manager) handle(id string, h EventHandler, e event.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error(log.CatPlugin, "event handler panicked", "plugin", id, "event", event.Name(e), "panic", r, "stack", string(debug.Stack()))
		}
	}()
	h.HandleEvent(e)
}

func (m *Manager) observe(id, action string) {
	if m.observer != nil {
		m.observer.PluginAction(id, action)
	}
}

func (m *Manager) cloneConfig(d Descriptor, cfg Config) Config {
	clone := d.newConfig()
	data, err := yaml.Marshal(cfg)
	if err == nil {
		err = yaml.Unmarshal(data, clone)
	}
	if err != nil {
		log.Warn(log.CatPlugin, "cannot snapshot config", "plugin", d.ID, "error", err)
		return nil
	}
	return clone
}

func sameEncoding(a, b Config) bool {
	x, err1 := yaml.Marshal(a)
	y, err2 := yaml.Marshal(b)
	return err1 == nil && err2 == nil && bytes.Equal(x, y)
}

func closeQuietly(id string, p Plugin) {
	defer func() {
		if r := recover(); r != nil {
			log.Error(log.CatPlugin, "plugin close panicked", "plugin", id, "panic", r)
		}
	}()
	if err := p.Close(); err != nil {
		log.Warn(log.CatPlugin, "plugin close failed", "plugin", id, "error", err)
	}
}

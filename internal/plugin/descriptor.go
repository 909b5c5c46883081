// Package plugin resolves which feature plugins are loaded and keeps that set
// consistent with declared dependencies and persisted enablement.
//
// Plugins are registered up front as Descriptors. The Manager orders them by
// dependency, loads the enabled ones whose dependencies are loaded, and
// re-evaluates the set whenever a config changes. All Manager methods run on
// the orchestration loop.
package plugin

import (
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
)

var (
	// ErrDuplicatePlugin is returned when an ID is registered twice.
	ErrDuplicatePlugin = errors.New("plugin already registered")
	// ErrInvalidDescriptor is returned for a descriptor without an ID or
	// constructor.
	ErrInvalidDescriptor = errors.New("invalid plugin descriptor")
	// ErrDependencyCycle is returned by Order when plugins depend on each
	// other in a loop.
	ErrDependencyCycle = errors.New("plugin dependency cycle")
	// ErrUnknownPlugin is returned for an ID the registry does not know.
	ErrUnknownPlugin = errors.New("unknown plugin")
	// ErrNotLoaded is returned by Reload for a plugin that is not loaded.
	ErrNotLoaded = errors.New("plugin not loaded")
	// ErrNotInitialized is returned by Manager methods called before Init.
	ErrNotInitialized = errors.New("plugin manager not initialized")
	// ErrDuplicateInfoKey is returned when two plugins contribute the same
	// status key under one group title.
	ErrDuplicateInfoKey = errors.New("duplicate status key")
)

// Capability names a feature several plugins may provide.
type Capability string

// Dependency targets either a concrete plugin ID or a capability.
type Dependency struct {
	ID         string
	Capability Capability
}

// On depends on the plugin with the given ID.
func On(id string) Dependency { return Dependency{ID: id} }

// Needs depends on any plugin providing c.
func Needs(c Capability) Dependency { return Dependency{Capability: c} }

func (d Dependency) String() string {
	if d.ID != "" {
		return d.ID
	}
	return "cap:" + string(d.Capability)
}

// Descriptor declares a plugin: its dependencies, the capabilities it
// provides, its config type and its constructor.
type Descriptor struct {
	ID       string
	Deps     []Dependency
	Provides []Capability

	// NewConfig returns a pointer to the default config. Nil means a bare
	// BaseConfig that is enabled.
	NewConfig func() Config

	// New builds the plugin. Dependencies are loaded when it is called.
	New func(pc *Context) (Plugin, error)
}

// Satisfies reports whether d can serve dep.
func (d Descriptor) Satisfies(dep Dependency) bool {
	if dep.ID != "" {
		return d.ID == dep.ID
	}
	return slices.Contains(d.Provides, dep.Capability)
}

// DependsOn reports whether any of d's dependencies is served by other.
func (d Descriptor) DependsOn(other Descriptor) bool {
	for _, dep := range d.Deps {
		if other.Satisfies(dep) {
			return true
		}
	}
	return false
}

// DefaultConfig returns a fresh default config for d.
func (d Descriptor) DefaultConfig() Config {
	return d.newConfig()
}

func (d Descriptor) newConfig() Config {
	if d.NewConfig == nil {
		return &BaseConfig{Enabled: true}
	}
	return d.NewConfig()
}

// Registry holds descriptors in discovery order.
type Registry struct {
	descs []Descriptor
	byID  map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]int)}
}

// Register adds d. A nested ID such as "petstate/digest" implicitly depends
// on its parent when the parent is registered first.
func (r *Registry) Register(d Descriptor) error {
	if strings.TrimSpace(d.ID) == "" || d.New == nil {
		return fmt.Errorf("%w: %q", ErrInvalidDescriptor, d.ID)
	}
	if _, ok := r.byID[d.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePlugin, d.ID)
	}

	d.Deps = slices.Clone(d.Deps)
	if parent := path.Dir(d.ID); parent != "." {
		if _, ok := r.byID[parent]; ok && !slices.Contains(d.Deps, On(parent)) {
			d.Deps = append(d.Deps, On(parent))
		}
	}

	r.byID[d.ID] = len(r.descs)
	r.descs = append(r.descs, d)
	return nil
}

// MustRegister registers every descriptor and panics on error. It is meant
// for static registration at startup.
func (r *Registry) MustRegister(ds ...Descriptor) {
	for _, d := range ds {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
}

// Get returns the descriptor registered under id.
func (r *Registry) Get(id string) (Descriptor, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Descriptor{}, false
	}
	return r.descs[i], true
}

// All returns every descriptor in discovery order.
func (r *Registry) All() []Descriptor {
	return slices.Clone(r.descs)
}

package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/deskmate/internal/cachemanager"
	"github.com/zjrosen/deskmate/internal/log"
)

// PluginConfigFile is the fixed document name inside each plugin directory.
const PluginConfigFile = "config.yaml"

// PluginStore persists one YAML document per plugin under a root directory.
// Documents are loaded on first access and cached in their normalized
// encoded form; Save only touches disk when that form changes.
type PluginStore struct {
	root  string
	mem   *cachemanager.InMemoryCacheManager[string, []byte]
	cache *cachemanager.ReadThroughCache[string, []byte, loadRequest]
}

type loadRequest struct {
	id       string
	typ      reflect.Type
	defaults []byte
}

// NewPluginStore creates a store rooted at root.
func NewPluginStore(root string) *PluginStore {
	s := &PluginStore{
		root: root,
		mem:  cachemanager.NewInMemoryCacheManager[string, []byte]("plugin-config", cachemanager.DefaultExpiration, cachemanager.DefaultCleanupInterval),
	}
	s.cache = cachemanager.NewReadThroughCache[string, []byte, loadRequest](s.mem, s.load, false)
	return s
}

// Root returns the store's root directory.
func (s *PluginStore) Root() string { return s.root }

// Dir returns the directory for plugin id. Nested ids such as
// "petstate/digest" map to nested directories.
func (s *PluginStore) Dir(id string) string {
	return filepath.Join(s.root, filepath.FromSlash(id))
}

// Path returns the config document path for plugin id.
func (s *PluginStore) Path(id string) string {
	return filepath.Join(s.Dir(id), PluginConfigFile)
}

// Load decodes plugin id's config into dst, a non-nil pointer already
// holding the default values. A missing or malformed document is replaced
// by the defaults on disk. Fields absent from the document keep their
// defaults.
func (s *PluginStore) Load(ctx context.Context, id string, dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("plugin config for %s: destination must be a non-nil pointer", id)
	}
	defaults, err := yaml.Marshal(dst)
	if err != nil {
		return fmt.Errorf("encoding defaults for %s: %w", id, err)
	}

	data, err := s.cache.Get(ctx, id, loadRequest{id: id, typ: rv.Elem().Type(), defaults: defaults}, cachemanager.NoExpiration)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decoding config for %s: %w", id, err)
	}
	return nil
}

// Save persists cfg for plugin id if its encoding differs from the
// current document. It reports whether anything was written.
func (s *PluginStore) Save(ctx context.Context, id string, cfg any) (bool, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return false, fmt.Errorf("encoding config for %s: %w", id, err)
	}

	current, ok := s.mem.Get(ctx, id)
	if !ok {
		raw, err := os.ReadFile(s.Path(id))
		if err == nil {
			current, ok = raw, true
		}
	}
	if ok && bytes.Equal(current, data) {
		return false, nil
	}

	if err := writeFileAtomic(s.Path(id), data, 0o644); err != nil {
		return false, fmt.Errorf("saving config for %s: %w", id, err)
	}
	s.cache.Put(ctx, id, data, cachemanager.NoExpiration)
	log.Debug(log.CatConfig, "plugin config saved", "plugin", id)
	return true, nil
}

// Cached reports the cached encoded document for id, if any.
func (s *PluginStore) Cached(ctx context.Context, id string) ([]byte, bool) {
	return s.mem.Get(ctx, id)
}

// Invalidate drops the cached document so the next Load re-reads disk.
func (s *PluginStore) Invalidate(ctx context.Context, id string) error {
	return s.cache.Invalidate(ctx, id)
}

func (s *PluginStore) load(_ context.Context, req loadRequest) ([]byte, error) {
	path := s.Path(req.id)
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Info(log.CatConfig, "plugin config missing, writing defaults", "plugin", req.id, "path", path)
		return s.persistDefaults(req)
	case err != nil:
		return nil, fmt.Errorf("reading config for %s: %w", req.id, err)
	}

	v := reflect.New(req.typ).Interface()
	if err := yaml.Unmarshal(req.defaults, v); err != nil {
		return nil, fmt.Errorf("decoding defaults for %s: %w", req.id, err)
	}
	if err := yaml.Unmarshal(raw, v); err != nil {
		log.Warn(log.CatConfig, "plugin config malformed, restoring defaults", "plugin", req.id, "error", err)
		return s.persistDefaults(req)
	}

	normalized, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding config for %s: %w", req.id, err)
	}
	return normalized, nil
}

func (s *PluginStore) persistDefaults(req loadRequest) ([]byte, error) {
	if err := writeFileAtomic(s.Path(req.id), req.defaults, 0o644); err != nil {
		return nil, fmt.Errorf("writing default config for %s: %w", req.id, err)
	}
	return req.defaults, nil
}

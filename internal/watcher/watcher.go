// Package watcher follows the per-plugin config tree and reports which
// plugins had their config.yaml edited on disk.
package watcher

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/deskmate/internal/log"
)

// ConfigFileName is the per-plugin document the watcher reacts to.
const ConfigFileName = "config.yaml"

// Watcher debounces fsnotify events under a plugin config root and emits
// the sorted set of plugin IDs touched during each quiet window.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	root      string
	ids       []string
	debounce  time.Duration
	onChange  chan []string
	done      chan struct{}
}

// Config holds watcher configuration options.
type Config struct {
	// Root is the plugin config directory.
	Root string
	// PluginIDs are watched as Root/<id>. Nested IDs such as "petstate/digest"
	// map to nested directories.
	PluginIDs   []string
	DebounceDur time.Duration
}

// DefaultConfig returns a config with a 300ms debounce.
func DefaultConfig(root string, ids []string) Config {
	return Config{
		Root:        root,
		PluginIDs:   ids,
		DebounceDur: 300 * time.Millisecond,
	}
}

// New creates a watcher. Nothing is watched until Start.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &Watcher{
		fsWatcher: fsw,
		root:      cfg.Root,
		ids:       cfg.PluginIDs,
		debounce:  cfg.DebounceDur,
		onChange:  make(chan []string, 1),
		done:      make(chan struct{}),
	}, nil
}

// Start registers every plugin directory and begins the event loop. The
// returned channel is closed after Stop. Plugin
// directories must exist; the plugin store creates them on first load.
func (w *Watcher) Start() (<-chan []string, error) {
	for _, id := range w.ids {
		dir := filepath.Join(w.root, filepath.FromSlash(id))
		if err := w.fsWatcher.Add(dir); err != nil {
			return nil, fmt.Errorf("watching directory %s: %w", dir, err)
		}
	}
	log.Debug(log.CatWatcher, "watching plugin configs", "root", w.root, "plugins", len(w.ids))

	go w.loop()

	return w.onChange, nil
}

// Stop terminates the watcher and releases resources.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsWatcher.Close()
}

func (w *Watcher) loop() {
	defer close(w.onChange)

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending = make(map[string]struct{})
	)

	for {
		select {
		case ev, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			id, relevant := w.pluginID(ev)
			if !relevant {
				continue
			}
			pending[id] = struct{}{}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			if len(pending) == 0 {
				continue
			}
			ids := make([]string, 0, len(pending))
			for id := range pending {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			select {
			case w.onChange <- ids:
				pending = make(map[string]struct{})
			case <-w.done:
				return
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.ErrorErr(log.CatWatcher, "fsnotify error", err)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// pluginID maps an event on Root/<id>/config.yaml back to <id>.
func (w *Watcher) pluginID(ev fsnotify.Event) (string, bool) {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return "", false
	}
	if filepath.Base(ev.Name) != ConfigFileName {
		return "", false
	}
	rel, err := filepath.Rel(w.root, filepath.Dir(ev.Name))
	if err != nil || rel == "." {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

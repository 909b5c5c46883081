package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type moveSettings struct {
	Enabled  bool    `yaml:"enabled"`
	Speed    float64 `yaml:"speed"`
	RunSpeed float64 `yaml:"run_speed"`
	Label    string  `yaml:"label"`
}

func defaultMove() *moveSettings {
	return &moveSettings{Enabled: true, Speed: 200, RunSpeed: 500}
}

func TestPluginStore_MissingFileWritesDefaults(t *testing.T) {
	store := NewPluginStore(t.TempDir())
	ctx := context.Background()

	cfg := defaultMove()
	require.NoError(t, store.Load(ctx, "move", cfg))
	require.Equal(t, defaultMove(), cfg)

	data, err := os.ReadFile(store.Path("move"))
	require.NoError(t, err)
	require.Contains(t, string(data), "speed: 200")
}

func TestPluginStore_NestedIDsUseNestedDirectories(t *testing.T) {
	root := t.TempDir()
	store := NewPluginStore(root)

	cfg := defaultMove()
	require.NoError(t, store.Load(context.Background(), "petstate/digest", cfg))
	require.FileExists(t, filepath.Join(root, "petstate", "digest", PluginConfigFile))
}

func TestPluginStore_PartialDocumentKeepsDefaults(t *testing.T) {
	store := NewPluginStore(t.TempDir())
	require.NoError(t, os.MkdirAll(store.Dir("move"), 0o755))
	require.NoError(t, os.WriteFile(store.Path("move"), []byte("enabled: false\n"), 0o644))

	cfg := defaultMove()
	require.NoError(t, store.Load(context.Background(), "move", cfg))
	require.False(t, cfg.Enabled)
	require.InDelta(t, 200, cfg.Speed, 0)
}

func TestPluginStore_MalformedDocumentFallsBackAndRepersists(t *testing.T) {
	store := NewPluginStore(t.TempDir())
	require.NoError(t, os.MkdirAll(store.Dir("move"), 0o755))
	require.NoError(t, os.WriteFile(store.Path("move"), []byte("speed: [not a number\n"), 0o644))

	cfg := defaultMove()
	require.NoError(t, store.Load(context.Background(), "move", cfg))
	require.Equal(t, defaultMove(), cfg)

	data, err := os.ReadFile(store.Path("move"))
	require.NoError(t, err)
	require.Contains(t, string(data), "run_speed: 500")
}

func TestPluginStore_LoadIsCached(t *testing.T) {
	store := NewPluginStore(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.Load(ctx, "move", defaultMove()))
	require.NoError(t, os.WriteFile(store.Path("move"), []byte("enabled: false\n"), 0o644))

	cfg := defaultMove()
	require.NoError(t, store.Load(ctx, "move", cfg))
	require.True(t, cfg.Enabled, "cached value wins until invalidated")

	require.NoError(t, store.Invalidate(ctx, "move"))
	cfg = defaultMove()
	require.NoError(t, store.Load(ctx, "move", cfg))
	require.False(t, cfg.Enabled)
}

func TestPluginStore_SaveOnlyWritesChanges(t *testing.T) {
	store := NewPluginStore(t.TempDir())
	ctx := context.Background()

	cfg := defaultMove()
	require.NoError(t, store.Load(ctx, "move", cfg))

	changed, err := store.Save(ctx, "move", cfg)
	require.NoError(t, err)
	require.False(t, changed)

	cfg.Speed = 300
	changed, err = store.Save(ctx, "move", cfg)
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = store.Save(ctx, "move", cfg)
	require.NoError(t, err)
	require.False(t, changed)
}

func TestPluginStore_RejectsNonPointer(t *testing.T) {
	store := NewPluginStore(t.TempDir())
	require.Error(t, store.Load(context.Background(), "move", moveSettings{}))
}

func TestPluginStore_RoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		dir, err := os.MkdirTemp("", "plugin-store-*")
		if err != nil {
			rt.Fatalf("temp dir: %v", err)
		}
		defer os.RemoveAll(dir)

		want := &moveSettings{
			Enabled:  rapid.Bool().Draw(rt, "enabled"),
			Speed:    float64(rapid.IntRange(0, 10000).Draw(rt, "speed")),
			RunSpeed: float64(rapid.IntRange(0, 10000).Draw(rt, "run_speed")),
			Label:    rapid.StringMatching(`[a-zA-Z0-9 :#'"-]{0,24}`).Draw(rt, "label"),
		}

		ctx := context.Background()
		writer := NewPluginStore(dir)
		if _, err := writer.Save(ctx, "move", want); err != nil {
			rt.Fatalf("save: %v", err)
		}

		reader := NewPluginStore(dir)
		got := defaultMove()
		if err := reader.Load(ctx, "move", got); err != nil {
			rt.Fatalf("load: %v", err)
		}
		if *got != *want {
			rt.Fatalf("round trip mismatch: got %+v want %+v", got, want)
		}
	})
}

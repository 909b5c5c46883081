package cachemanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type pluginKey string

type settings struct {
	Enabled bool
	Speed   int
}

func TestInMemoryCacheManager_SetGet(t *testing.T) {
	cache := NewInMemoryCacheManager[pluginKey, settings]("plugin-config", DefaultExpiration, DefaultCleanupInterval)
	ctx := context.Background()

	want := settings{Enabled: true, Speed: 200}
	cache.Set(ctx, "move", want, DefaultExpiration)

	got, ok := cache.Get(ctx, "move")
	require.True(t, ok)
	require.Equal(t, want, got)
	require.Equal(t, 1, cache.Len())
}

func TestInMemoryCacheManager_Miss(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("test", DefaultExpiration, DefaultCleanupInterval)

	got, ok := cache.Get(context.Background(), "absent")
	require.False(t, ok)
	require.Empty(t, got)
}

func TestInMemoryCacheManager_WrongStoredTypeIsAMiss(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("test", DefaultExpiration, DefaultCleanupInterval)
	cache.cache.Set("food", 123, DefaultExpiration)

	got, ok := cache.Get(context.Background(), "food")
	require.False(t, ok)
	require.Empty(t, got)
}

func TestInMemoryCacheManager_NoExpiration(t *testing.T) {
	cache := NewInMemoryCacheManager[string, int]("test", time.Millisecond, time.Millisecond)
	ctx := context.Background()

	cache.Set(ctx, "pinned", 7, NoExpiration)
	cache.Set(ctx, "short", 8, time.Millisecond)

	require.Eventually(t, func() bool {
		_, ok := cache.Get(ctx, "short")
		return !ok
	}, time.Second, 5*time.Millisecond)

	v, ok := cache.Get(ctx, "pinned")
	require.True(t, ok)
	require.Equal(t, 7, v)
}

func TestInMemoryCacheManager_DeleteAndFlush(t *testing.T) {
	cache := NewInMemoryCacheManager[string, int]("test", DefaultExpiration, DefaultCleanupInterval)
	ctx := context.Background()

	cache.Set(ctx, "a", 1, DefaultExpiration)
	cache.Set(ctx, "b", 2, DefaultExpiration)
	cache.Set(ctx, "c", 3, DefaultExpiration)

	require.NoError(t, cache.Delete(ctx, "a", "b"))
	_, ok := cache.Get(ctx, "a")
	require.False(t, ok)
	require.Equal(t, 1, cache.Len())

	require.NoError(t, cache.Flush(ctx))
	require.Equal(t, 0, cache.Len())
}

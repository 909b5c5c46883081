package cachemanager

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCache struct {
	mock.Mock
}

func (m *mockCache) Get(ctx context.Context, key string) (settings, bool) {
	args := m.Called(ctx, key)
	return args.Get(0).(settings), args.Bool(1)
}

func (m *mockCache) Set(ctx context.Context, key string, value settings, ttl time.Duration) {
	m.Called(ctx, key, value, ttl)
}

func (m *mockCache) Delete(ctx context.Context, keys ...string) error {
	return m.Called(ctx, keys).Error(0)
}

func (m *mockCache) Flush(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func TestReadThroughCache_SkipCacheAlwaysLoads(t *testing.T) {
	m := &mockCache{}
	rtc := NewReadThroughCache[string, settings, int](m, func(_ context.Context, speed int) (settings, error) {
		return settings{Speed: speed}, nil
	}, true)

	got, err := rtc.Get(context.Background(), "move", 50, time.Minute)
	require.NoError(t, err)
	require.Equal(t, settings{Speed: 50}, got)
	m.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	m.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReadThroughCache_HitSkipsLoader(t *testing.T) {
	ctx := context.Background()
	m := &mockCache{}
	m.On("Get", ctx, "move").Return(settings{Enabled: true}, true).Once()

	rtc := NewReadThroughCache[string, settings, int](m, func(context.Context, int) (settings, error) {
		require.FailNow(t, "loader must not run on hit")
		return settings{}, nil
	}, false)

	got, err := rtc.Get(ctx, "move", 0, time.Minute)
	require.NoError(t, err)
	require.True(t, got.Enabled)
	m.AssertExpectations(t)
}

func TestReadThroughCache_MissLoadsAndStores(t *testing.T) {
	ctx := context.Background()
	m := &mockCache{}
	m.On("Get", ctx, "move").Return(settings{}, false).Twice()
	m.On("Set", ctx, "move", settings{Speed: 9}, time.Minute).Once()

	rtc := NewReadThroughCache[string, settings, int](m, func(_ context.Context, speed int) (settings, error) {
		return settings{Speed: speed}, nil
	}, false)

	got, err := rtc.Get(ctx, "move", 9, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 9, got.Speed)
	m.AssertExpectations(t)
}

func TestReadThroughCache_LoaderErrorIsNotCached(t *testing.T) {
	ctx := context.Background()
	m := &mockCache{}
	m.On("Get", ctx, "move").Return(settings{}, false)

	boom := errors.New("boom")
	rtc := NewReadThroughCache[string, settings, int](m, func(context.Context, int) (settings, error) {
		return settings{}, boom
	}, false)

	_, err := rtc.Get(ctx, "move", 0, time.Minute)
	require.ErrorIs(t, err, boom)
	m.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReadThroughCache_ConcurrentMissLoadsOnce(t *testing.T) {
	cache := NewInMemoryCacheManager[string, settings]("test", DefaultExpiration, DefaultCleanupInterval)
	var loads atomic.Int32
	rtc := NewReadThroughCache[string, settings, int](cache, func(_ context.Context, speed int) (settings, error) {
		loads.Add(1)
		time.Sleep(5 * time.Millisecond)
		return settings{Speed: speed}, nil
	}, false)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := rtc.Get(context.Background(), "move", 3, NoExpiration)
			require.NoError(t, err)
			require.Equal(t, 3, got.Speed)
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), loads.Load())

	require.NoError(t, rtc.Invalidate(context.Background(), "move"))
	_, err := rtc.Get(context.Background(), "move", 4, NoExpiration)
	require.NoError(t, err)
	require.Equal(t, int32(2), loads.Load())
}

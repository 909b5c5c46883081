package cachemanager

import (
	"context"
	"sync"
	"time"
)

// ReadThroughCache fills a CacheManager on miss by calling a loader.
// Concurrent misses for the same key are serialized so the loader runs once.
type ReadThroughCache[K comparable, V any, I any] struct {
	cache           CacheManager[K, V]
	fn              func(ctx context.Context, input I) (V, error)
	shouldSkipCache bool

	mu    sync.Mutex
	locks map[K]*sync.Mutex
}

func NewReadThroughCache[K comparable, V any, I any](
	cache CacheManager[K, V],
	fn func(ctx context.Context, input I) (V, error),
	shouldSkipCache bool,
) *ReadThroughCache[K, V, I] {
	return &ReadThroughCache[K, V, I]{
		cache:           cache,
		fn:              fn,
		shouldSkipCache: shouldSkipCache,
		locks:           make(map[K]*sync.Mutex),
	}
}

// Get returns the cached value for key, loading it from input on miss.
// Loader errors are returned and nothing is cached.
func (r *ReadThroughCache[K, V, I]) Get(ctx context.Context, key K, input I, ttl time.Duration) (V, error) {
	if r.shouldSkipCache {
		return r.fn(ctx, input)
	}

	if value, ok := r.cache.Get(ctx, key); ok {
		return value, nil
	}

	l := r.keyLock(key)
	l.Lock()
	defer l.Unlock()

	if value, ok := r.cache.Get(ctx, key); ok {
		return value, nil
	}

	value, err := r.fn(ctx, input)
	if err != nil {
		return value, err
	}
	r.cache.Set(ctx, key, value, ttl)
	return value, nil
}

// Put overwrites the cached value, used after a successful write-back.
func (r *ReadThroughCache[K, V, I]) Put(ctx context.Context, key K, value V, ttl time.Duration) {
	if r.shouldSkipCache {
		return
	}
	r.cache.Set(ctx, key, value, ttl)
}

// Invalidate drops key so the next Get reloads it.
func (r *ReadThroughCache[K, V, I]) Invalidate(ctx context.Context, key K) error {
	return r.cache.Delete(ctx, key)
}

func (r *ReadThroughCache[K, V, I]) keyLock(key K) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[key]
	if !ok {
		l = &sync.Mutex{}
		r.locks[key] = l
	}
	return l
}

// Package cachemanager holds the small caching layer used for lazily loaded
// plugin configuration.
package cachemanager

import (
	"context"
	"time"
)

// CacheManager is a keyed cache with per-entry TTL.
type CacheManager[K comparable, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Delete(ctx context.Context, keys ...K) error
	Flush(ctx context.Context) error
}

// NoExpiration keeps an entry until it is deleted or the cache is flushed.
const NoExpiration time.Duration = -1

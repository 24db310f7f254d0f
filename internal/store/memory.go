// Package store provides the time-bounded caches for resolved streams.
package store

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"musicstreamer/pkg/stream"
)

// DefaultMaxEntries bounds the in-memory cache when no size is configured.
const DefaultMaxEntries = 10000

// entry is a cached result together with the instant it stops being valid.
type entry struct {
	result    *stream.StreamResult
	expiresAt time.Time
}

// MemoryCache is a thread-safe, size-bounded TTL cache. Expired entries are
// evicted lazily when they are read; the LRU bound evicts the least recently
// used entry when the cache is full.
type MemoryCache struct {
	lru   *lru.Cache[string, entry]
	mutex sync.Mutex
	now   func() time.Time
}

// MemoryOption customizes a MemoryCache.
type MemoryOption func(*MemoryCache)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(c *MemoryCache) {
		c.now = now
	}
}

// NewMemoryCache creates an in-memory cache holding at most maxEntries results.
func NewMemoryCache(maxEntries int, opts ...MemoryOption) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	lruCache, _ := lru.New[string, entry](maxEntries)

	c := &MemoryCache{
		lru: lruCache,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached result for key if it has not expired.
func (c *MemoryCache) Get(_ context.Context, key string) (*stream.StreamResult, bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(e.expiresAt) {
		c.lru.Remove(key)
		return nil, false, nil
	}

	result := *e.result
	return &result, true, nil
}

// Put stores result under key for ttl. A non-positive ttl stores nothing.
func (c *MemoryCache) Put(_ context.Context, key string, result *stream.StreamResult, ttl time.Duration) error {
	if ttl <= 0 || result == nil {
		return nil
	}

	stored := *result
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.lru.Add(key, entry{result: &stored, expiresAt: c.now().Add(ttl)})
	return nil
}

// Len returns the number of entries, including expired ones not yet evicted.
func (c *MemoryCache) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.lru.Len()
}

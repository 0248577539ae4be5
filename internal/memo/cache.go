// Package memo provides a keyed cache that builds each missing value at most
// once, no matter how many goroutines ask for it at the same time.
package memo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// ErrReentrantBuild is returned when a builder asks its own cache for the key
// it is currently building.
var ErrReentrantBuild = errors.New("memo: reentrant build for key")

// ErrBuildPanicked wraps the value a panicking builder raised.
var ErrBuildPanicked = errors.New("memo: builder panicked")

// BuildFunc produces the value for a missing key.
type BuildFunc[K ~string, V any] func(ctx context.Context, key K) (V, error)

// Stats counts cache traffic since creation.
type Stats struct {
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Builds   int64 `json:"builds"`
	Failures int64 `json:"failures"`
}

// Cache maps keys to values and runs the builder exactly once per missing key.
//
// The entry map lock is never held while a builder runs, so builders may use
// the same cache for other keys. Concurrent requests for one key share a
// single flight.
type Cache[K ~string, V any] struct {
	build   BuildFunc[K, V]
	mu      sync.RWMutex
	entries map[K]V
	flight  singleflight.Group

	hits     atomic.Int64
	misses   atomic.Int64
	builds   atomic.Int64
	failures atomic.Int64
}

type buildingKey struct {
	cache any
	key   string
}

// New creates a cache that uses build for missing keys.
func New[K ~string, V any](build BuildFunc[K, V]) *Cache[K, V] {
	return &Cache[K, V]{
		build:   build,
		entries: make(map[K]V),
	}
}

// Get returns the cached value for key, building it if absent.
//
// A failed build leaves no entry; the next Get tries again. If ctx ends while
// waiting on another caller's build, Get returns ctx.Err() and the build keeps
// running for the remaining waiters.
func (c *Cache[K, V]) Get(ctx context.Context, key K) (V, error) {
	if v, ok := c.Peek(key); ok {
		c.hits.Add(1)
		return v, nil
	}
	c.misses.Add(1)

	var zero V
	marker := buildingKey{cache: c, key: string(key)}
	if ctx.Value(marker) != nil {
		return zero, ErrReentrantBuild
	}

	ch := c.flight.DoChan(string(key), func() (interface{}, error) {
		// A flight that finished between our Peek and DoChan already stored it.
		if v, ok := c.Peek(key); ok {
			return v, nil
		}
		buildCtx := context.WithValue(context.WithoutCancel(ctx), marker, true)
		v, err := c.runBuild(buildCtx, key)
		if err != nil {
			c.failures.Add(1)
			return nil, err
		}
		c.builds.Add(1)
		c.mu.Lock()
		c.entries[key] = v
		c.mu.Unlock()
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	}
}

// runBuild turns a builder panic into an error so the key stays buildable
// and the flight's waiters are released.
func (c *Cache[K, V]) runBuild(ctx context.Context, key K) (v V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrBuildPanicked, r)
		}
	}()
	return c.build(ctx, key)
}

// Peek returns the cached value without building.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	c.mu.RLock()
	v, ok := c.entries[key]
	c.mu.RUnlock()
	return v, ok
}

// Insert stores value under key, replacing any previous entry.
func (c *Cache[K, V]) Insert(key K, value V) {
	c.mu.Lock()
	c.entries[key] = value
	c.mu.Unlock()
}

// Remove drops the entry for key. A build already in flight for key still
// stores its result when it completes.
func (c *Cache[K, V]) Remove(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear drops every entry.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[K]V)
	c.mu.Unlock()
}

// Len returns the number of stored entries.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Snapshot returns a copy of the current entries.
func (c *Cache[K, V]) Snapshot() map[K]V {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[K]V, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

// Stats returns the traffic counters.
func (c *Cache[K, V]) Stats() Stats {
	return Stats{
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Builds:   c.builds.Load(),
		Failures: c.failures.Load(),
	}
}

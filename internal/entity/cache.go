package entity

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/morozRed/codescape/internal/memo"
)

// Cache indexes entities by identity and by source path. Each path maps to
// at most one entity for the lifetime of the cache.
type Cache struct {
	builders Builders

	mu   sync.RWMutex
	byID map[uuid.UUID]*Entity

	paths *memo.Cache[string, uuid.UUID]
}

// NewCache returns an empty cache that builds misses through builders.
func NewCache(builders Builders) *Cache {
	c := &Cache{
		builders: builders,
		byID:     make(map[uuid.UUID]*Entity),
	}
	c.paths = memo.New(c.buildPath)
	return c
}

// Insert records e under its identity, and under its path when it has one.
// An entity previously indexed under the same path is dropped.
func (c *Cache) Insert(e *Entity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[e.ID] = e
	if e.Path == "" {
		return
	}
	key := normalizePath(e.Path)
	if old, ok := c.paths.Peek(key); ok && old != e.ID {
		delete(c.byID, old)
	}
	c.paths.Insert(key, e.ID)
}

// GetOrCreate returns the entity for path, building it on first request.
// Concurrent callers for the same path share one build. Paths are compared
// after cleaning and resolving against the working directory.
func (c *Cache) GetOrCreate(ctx context.Context, path string) (*Entity, error) {
	key := normalizePath(path)
	id, err := c.paths.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	e, ok := c.ByID(id)
	if !ok {
		return nil, fmt.Errorf("entity %s for %s missing from identity index", id, key)
	}
	return e, nil
}

// Get returns the cached entity for path without building.
func (c *Cache) Get(path string) (*Entity, bool) {
	id, ok := c.paths.Peek(normalizePath(path))
	if !ok {
		return nil, false
	}
	return c.ByID(id)
}

func normalizePath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// ByID returns the entity with the given identity.
func (c *Cache) ByID(id uuid.UUID) (*Entity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byID[id]
	return e, ok
}

// Len returns the number of entities known by identity.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

// Entities returns a snapshot of every entity, ordered by path and then ID.
func (c *Cache) Entities() []*Entity {
	c.mu.RLock()
	out := make([]*Entity, 0, len(c.byID))
	for _, e := range c.byID {
		out = append(out, e)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// Paths returns every indexed path, sorted.
func (c *Cache) Paths() []string {
	snapshot := c.paths.Snapshot()
	out := make([]string, 0, len(snapshot))
	for path := range snapshot {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// buildPath runs inside the path's single flight, so recording the identity
// here cannot race with another build for the same path.
func (c *Cache) buildPath(ctx context.Context, path string) (uuid.UUID, error) {
	info, err := os.Stat(path)
	if err != nil {
		return uuid.Nil, fmt.Errorf("stat %s: %w", path, err)
	}

	kind := SourceFile
	if info.IsDir() {
		kind = SourceDirectory
	}
	e, err := c.builders.build(kind, path, func() ([]byte, error) {
		return os.ReadFile(path)
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("build %s entity for %s: %w", kind, path, err)
	}
	if e == nil {
		return uuid.Nil, fmt.Errorf("build %s entity for %s: builder returned nil", kind, path)
	}

	c.mu.Lock()
	c.byID[e.ID] = e
	c.mu.Unlock()
	return e.ID, nil
}

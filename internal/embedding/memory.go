package embedding

import (
	"context"
	"sync"
)

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]Entry)}
}

func key(model, hash string) string {
	return model + "\x00" + hash
}

// Get returns the cached vectors among hashes for model.
func (c *MemoryCache) Get(_ context.Context, model string, hashes []string) (map[string]Vector, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Vector)
	for _, h := range hashes {
		if e, ok := c.entries[key(model, h)]; ok {
			out[h] = e.Vector
		}
	}
	return out, nil
}

// Put upserts entries.
func (c *MemoryCache) Put(_ context.Context, entries []Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		c.entries[key(e.Model, e.Hash)] = e
	}
	return nil
}

// Len returns the number of cached entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

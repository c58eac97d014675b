package memory

import (
	"context"
	"sync"
	"time"
)

type cacheEntry struct {
	value    []byte
	cachedAt time.Time
}

// Cache is an in-memory, goroutine-safe eventstore.KVCache.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// NewCache returns an empty in-memory cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]cacheEntry)}
}

// Get returns the cached value and write timestamp for key, if present.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, time.Time, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, time.Time{}, false, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, time.Time{}, false, nil
	}
	value := make([]byte, len(e.value))
	copy(value, e.value)
	return value, e.cachedAt, true, nil
}

// Put stores value under key, stamping cachedAt to the current wall clock
// — never a caller-supplied timestamp, per the KVCache contract.
func (c *Cache) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: stored, cachedAt: time.Now().UTC()}
	return nil
}

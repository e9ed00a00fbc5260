// Package directory caches the read-only clinician list used during booking.
package directory

import (
	"context"
	"sync"

	"healthcare-coordination-client/internal/gateway"
	"healthcare-coordination-client/internal/model"
)

type Cache struct {
	gw *gateway.Client

	mu      sync.Mutex
	loaded  bool
	entries []model.DirectoryEntry
}

func NewCache(gw *gateway.Client) *Cache {
	return &Cache{gw: gw}
}

// Load fetches the directory on the first call and serves the cached list
// afterwards. A failed fetch is not cached: the next Load retries.
func (c *Cache) Load(ctx context.Context) ([]model.DirectoryEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded {
		return c.snapshotLocked(), nil
	}
	entries, err := c.gw.Doctors(ctx)
	if err != nil {
		return nil, err
	}
	c.entries = entries
	c.loaded = true
	return c.snapshotLocked(), nil
}

// Invalidate drops the cached list so the next Load refetches.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.loaded = false
	c.entries = nil
	c.mu.Unlock()
}

func (c *Cache) snapshotLocked() []model.DirectoryEntry {
	out := make([]model.DirectoryEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

package cache

import (
	"context"
	"sync"
	"time"

	"SIP-Compose/pkg/proof"
)

type memoryEntry struct {
	proof     *proof.SingleProof
	expiresAt time.Time
}

// MemoryCache is an in-process TTL cache. Expired entries are dropped lazily
// on lookup and swept opportunistically on writes.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	hits    uint64
	misses  uint64
	writes  uint64
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string) (*proof.SingleProof, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		c.misses++
		return nil, false, nil
	}
	c.hits++
	return entry.proof.Clone(), true, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, key string, p *proof.SingleProof, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{proof: p.Clone(), expiresAt: time.Now().Add(ttl)}
	c.writes++
	// Sweep every 64 writes so abandoned keys cannot accumulate forever.
	if c.writes%64 == 0 {
		now := time.Now()
		for k, e := range c.entries {
			if now.After(e.expiresAt) {
				delete(c.entries, k)
			}
		}
	}
	return nil
}

// Delete implements Cache.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Clear implements Cache.
func (c *MemoryCache) Clear(context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]memoryEntry)
	c.mu.Unlock()
	return nil
}

// Stats implements Cache.
func (c *MemoryCache) Stats(context.Context) (Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses}, nil
}

// Close implements Cache.
func (c *MemoryCache) Close() error { return nil }

// Package embedding provides embedding generation with a two-tier cache:
// a bounded in-memory LRU in front of a durable, age-bounded store.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vecmem/vecmem/internal/storage"
)

// ErrCacheWrite tags a rejected durable-tier write in the warning log. The
// in-memory tier accepts the entry regardless, so the failure is degraded-
// but-working and never surfaces to callers of Set.
var ErrCacheWrite = errors.New("durable cache write failed")

// fastEntry is one in-memory tier record.
type fastEntry struct {
	vector     []float64
	insertedAt time.Time
}

// CacheStats is a point-in-time summary of the in-memory tier.
type CacheStats struct {
	Count             int       `json:"count"`
	OldestEntry       time.Time `json:"oldest_entry,omitzero"`
	NewestEntry       time.Time `json:"newest_entry,omitzero"`
	ApproxMemoryBytes int64     `json:"approx_memory_bytes"`
	Hits              uint64    `json:"hits"`
	Misses            uint64    `json:"misses"`
}

// Cache is the two-tier embedding cache. Lookups hit the LRU tier first and
// fall back to the durable tier, promoting on hit. Writes go through to both
// tiers. Keys are 64-bit hashes of the source text; the hash space is treated
// as collision-free for cache purposes.
type Cache struct {
	fast    *lru.Cache[uint64, *fastEntry]
	durable storage.VectorCache
	maxAge  time.Duration

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCache creates a two-tier cache with at most maxEntries in the fast tier.
// Durable entries older than maxAge are purged by Initialize.
func NewCache(maxEntries int, maxAge time.Duration, durable storage.VectorCache) (*Cache, error) {
	fast, err := lru.New[uint64, *fastEntry](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU tier: %w", err)
	}
	return &Cache{
		fast:    fast,
		durable: durable,
		maxAge:  maxAge,
	}, nil
}

// Key hashes source text into the cache key space.
func Key(text string) uint64 {
	return xxhash.Sum64String(text)
}

// Initialize purges durable-tier entries older than the configured max age.
// Call once at startup.
func (c *Cache) Initialize(ctx context.Context) error {
	cutoff := time.Now().Add(-c.maxAge)
	removed, err := c.durable.Purge(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to purge durable cache tier: %w", err)
	}
	if removed > 0 {
		log.Printf("embedding cache: purged %d expired durable entries", removed)
	}
	return nil
}

// Get returns the cached embedding for text, or ok=false on a miss in both
// tiers. Durable-tier read errors are logged and treated as misses so a
// degraded database never blocks lookups.
func (c *Cache) Get(ctx context.Context, text string) ([]float64, bool) {
	key := Key(text)

	if entry, ok := c.fast.Get(key); ok {
		c.hits.Add(1)
		return entry.vector, true
	}

	entry, err := c.durable.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("WARNING: embedding cache: durable read failed: %v", err)
		}
		c.misses.Add(1)
		return nil, false
	}

	// Promote to the fast tier, keeping the original insertion time so
	// age-based reasoning stays consistent across tiers.
	c.fast.Add(key, &fastEntry{vector: entry.Vector, insertedAt: entry.InsertedAt})
	c.hits.Add(1)
	return entry.Vector, true
}

// Has reports whether text is cached in either tier without promoting it.
func (c *Cache) Has(ctx context.Context, text string) bool {
	key := Key(text)
	if c.fast.Contains(key) {
		return true
	}
	_, err := c.durable.Get(ctx, key)
	return err == nil
}

// Set stores the embedding for text in both tiers. The fast tier always
// accepts the write (evicting least-recently-used entries when full); a
// durable-tier failure is logged and otherwise invisible, so a degraded
// database never fails a write.
func (c *Cache) Set(ctx context.Context, text string, vector []float64) {
	key := Key(text)
	c.fast.Add(key, &fastEntry{vector: vector, insertedAt: time.Now()})

	if err := c.durable.Put(ctx, key, vector); err != nil {
		log.Printf("WARNING: embedding cache: %v: %v", ErrCacheWrite, err)
	}
}

// Clear empties both tiers.
func (c *Cache) Clear(ctx context.Context) error {
	c.fast.Purge()
	if err := c.durable.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear durable cache tier: %w", err)
	}
	return nil
}

// Size returns the number of entries in the fast tier.
func (c *Cache) Size() int {
	return c.fast.Len()
}

// Stats summarizes the fast tier. OldestEntry/NewestEntry are zero when the
// cache is empty.
func (c *Cache) Stats() CacheStats {
	stats := CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}

	for _, key := range c.fast.Keys() {
		entry, ok := c.fast.Peek(key)
		if !ok {
			continue
		}
		stats.Count++
		stats.ApproxMemoryBytes += int64(len(entry.vector))*8 + 24
		if stats.OldestEntry.IsZero() || entry.insertedAt.Before(stats.OldestEntry) {
			stats.OldestEntry = entry.insertedAt
		}
		if entry.insertedAt.After(stats.NewestEntry) {
			stats.NewestEntry = entry.insertedAt
		}
	}
	return stats
}

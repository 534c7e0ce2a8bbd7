package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vecmem/vecmem/internal/storage"
)

// memVectorCache is an in-memory stand-in for the durable tier.
type memVectorCache struct {
	mu       sync.Mutex
	entries  map[uint64]storage.CacheEntry
	failPuts bool
	failGets bool
}

func newMemVectorCache() *memVectorCache {
	return &memVectorCache{entries: make(map[uint64]storage.CacheEntry)}
}

func (m *memVectorCache) Get(_ context.Context, key uint64) (*storage.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGets {
		return nil, errors.New("durable tier unavailable")
	}
	entry, ok := m.entries[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &entry, nil
}

func (m *memVectorCache) Put(_ context.Context, key uint64, vec []float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPuts {
		return errors.New("durable tier unavailable")
	}
	m.entries[key] = storage.CacheEntry{Key: key, Vector: vec, InsertedAt: time.Now()}
	return nil
}

func (m *memVectorCache) Purge(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key, entry := range m.entries {
		if entry.InsertedAt.Before(cutoff) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (m *memVectorCache) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[uint64]storage.CacheEntry)
	return nil
}

func (m *memVectorCache) Close() error { return nil }

var _ storage.VectorCache = (*memVectorCache)(nil)

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache, err := NewCache(10, time.Hour, newMemVectorCache())
	require.NoError(t, err)

	vec := []float64{0.1, 0.2, 0.3}
	cache.Set(ctx, "hello", vec)

	got, ok := cache.Get(ctx, "hello")
	require.True(t, ok)
	assert.Equal(t, vec, got)

	_, ok = cache.Get(ctx, "goodbye")
	assert.False(t, ok)
}

func TestCacheEvictionKeepsBound(t *testing.T) {
	ctx := context.Background()
	durable := newMemVectorCache()
	cache, err := NewCache(1000, time.Hour, durable)
	require.NoError(t, err)

	for i := 0; i < 1001; i++ {
		cache.Set(ctx, fmt.Sprintf("text-%d", i), []float64{float64(i)})
	}

	assert.Equal(t, 1000, cache.Size())

	// The least-recently-used entry left the fast tier but survives in
	// the durable tier, so a lookup still hits and promotes it.
	got, ok := cache.Get(ctx, "text-0")
	require.True(t, ok)
	assert.Equal(t, []float64{0}, got)
	assert.Equal(t, 1000, cache.Size())
}

func TestCachePromotionFromDurable(t *testing.T) {
	ctx := context.Background()
	durable := newMemVectorCache()
	cache, err := NewCache(10, time.Hour, durable)
	require.NoError(t, err)

	// Seed the durable tier directly, as if written by a prior process.
	vec := []float64{1, 2, 3}
	require.NoError(t, durable.Put(ctx, Key("persisted"), vec))
	assert.Equal(t, 0, cache.Size())

	got, ok := cache.Get(ctx, "persisted")
	require.True(t, ok)
	assert.Equal(t, vec, got)
	assert.Equal(t, 1, cache.Size(), "durable hit should promote to the fast tier")
}

func TestCacheDurableWriteFailureIsNonFatal(t *testing.T) {
	ctx := context.Background()
	durable := newMemVectorCache()
	durable.failPuts = true
	cache, err := NewCache(10, time.Hour, durable)
	require.NoError(t, err)

	cache.Set(ctx, "hello", []float64{0.5})

	// The write reported nothing; the fast tier still serves the entry.
	got, ok := cache.Get(ctx, "hello")
	require.True(t, ok)
	assert.Equal(t, []float64{0.5}, got)
}

func TestCacheDurableReadFailureIsAMiss(t *testing.T) {
	ctx := context.Background()
	durable := newMemVectorCache()
	cache, err := NewCache(10, time.Hour, durable)
	require.NoError(t, err)

	durable.failGets = true
	_, ok := cache.Get(ctx, "anything")
	assert.False(t, ok)
}

func TestCacheInitializePurgesExpired(t *testing.T) {
	ctx := context.Background()
	durable := newMemVectorCache()
	cache, err := NewCache(10, time.Hour, durable)
	require.NoError(t, err)

	stale := storage.CacheEntry{Key: Key("stale"), Vector: []float64{1}, InsertedAt: time.Now().Add(-2 * time.Hour)}
	durable.entries[stale.Key] = stale
	require.NoError(t, durable.Put(ctx, Key("fresh"), []float64{2}))

	require.NoError(t, cache.Initialize(ctx))

	_, err = durable.Get(ctx, Key("stale"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = durable.Get(ctx, Key("fresh"))
	assert.NoError(t, err)
}

func TestCacheClear(t *testing.T) {
	ctx := context.Background()
	durable := newMemVectorCache()
	cache, err := NewCache(10, time.Hour, durable)
	require.NoError(t, err)

	cache.Set(ctx, "a", []float64{1})
	require.NoError(t, cache.Clear(ctx))

	assert.Equal(t, 0, cache.Size())
	_, ok := cache.Get(ctx, "a")
	assert.False(t, ok)
}

func TestCacheStats(t *testing.T) {
	ctx := context.Background()
	cache, err := NewCache(10, time.Hour, newMemVectorCache())
	require.NoError(t, err)

	assert.Equal(t, 0, cache.Stats().Count)

	cache.Set(ctx, "a", []float64{1, 2, 3})
	cache.Set(ctx, "b", []float64{4, 5, 6})
	cache.Get(ctx, "a")
	cache.Get(ctx, "missing")

	stats := cache.Stats()
	assert.Equal(t, 2, stats.Count)
	assert.False(t, stats.OldestEntry.IsZero())
	assert.False(t, stats.OldestEntry.After(stats.NewestEntry))
	assert.Greater(t, stats.ApproxMemoryBytes, int64(0))
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestKeyIsDeterministic(t *testing.T) {
	assert.Equal(t, Key("same text"), Key("same text"))
	assert.NotEqual(t, Key("one"), Key("two"))
}

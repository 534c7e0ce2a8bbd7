// Package storage provides the persistence boundaries for the vecmem core:
// the memory record store and the durable embedding-cache tier.
//
// Interfaces are kept small and implemented independently (SQLite and
// PostgreSQL) so the engine never depends on a concrete backend.
package storage

import (
	"context"
	"time"

	"github.com/vecmem/vecmem/pkg/types"
)

// MemoryStore owns memory records. The engine treats it as a black box:
// no schema, index, or migration details leak through this interface.
type MemoryStore interface {
	// Put creates or replaces a memory record (upsert semantics).
	Put(ctx context.Context, memory *types.Memory) error

	// Get retrieves a memory by ID. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (*types.Memory, error)

	// Delete removes a memory by ID. Returns ErrNotFound if absent.
	Delete(ctx context.Context, id string) error

	// List retrieves memories ordered by created_at, with optional
	// type-equality and time-range filters.
	List(ctx context.Context, opts ListOptions) (*PaginatedResult[types.Memory], error)

	// PutEmbeddings persists embeddings for multiple memories atomically:
	// either every update lands or none do. Returns ErrNotFound if any ID
	// is missing.
	PutEmbeddings(ctx context.Context, embeddings map[string][]float64) error

	// Close releases resources held by the store.
	Close() error
}

// VectorCache is the durable tier of the two-tier embedding cache. Keys are
// hashes of the source text; entries are bounded by age, not by count.
type VectorCache interface {
	// Get returns the cached entry for key, or ErrNotFound.
	Get(ctx context.Context, key uint64) (*CacheEntry, error)

	// Put inserts or replaces the entry for key.
	Put(ctx context.Context, key uint64, vec []float64) error

	// Purge removes entries inserted before cutoff and returns the count removed.
	Purge(ctx context.Context, cutoff time.Time) (int, error)

	// Clear removes all entries.
	Clear(ctx context.Context) error

	// Close releases resources held by the cache tier.
	Close() error
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vecmem/vecmem/internal/storage"
)

const cacheSchema = `
CREATE TABLE IF NOT EXISTS embedding_cache (
	key         INTEGER PRIMARY KEY,
	embedding   BLOB NOT NULL,
	dimension   INTEGER NOT NULL,
	inserted_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_embedding_cache_inserted_at ON embedding_cache(inserted_at);
`

// VectorCache implements storage.VectorCache on the embedding_cache table.
// It is the durable tier of the two-tier embedding cache; entries survive
// restarts and are bounded by age (see Purge), not by count.
type VectorCache struct {
	db     *sql.DB
	ownsDB bool
}

var _ storage.VectorCache = (*VectorCache)(nil)

// NewVectorCache creates a durable cache tier on an already-open database.
// Normally this shares the MemoryStore's handle so a single SQLite file
// holds both records and cached vectors.
func NewVectorCache(db *sql.DB) *VectorCache {
	return &VectorCache{db: db}
}

// NewVectorCacheFile opens (or creates) a standalone SQLite file holding
// only the embedding cache. Used when memory records live elsewhere, e.g.
// in PostgreSQL, so the durable cache tier stays local and zero-config.
func NewVectorCacheFile(path string) (*VectorCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(cacheSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply cache schema: %w", err)
	}
	return &VectorCache{db: db, ownsDB: true}, nil
}

// Get returns the cached entry for key, or storage.ErrNotFound.
func (c *VectorCache) Get(ctx context.Context, key uint64) (*storage.CacheEntry, error) {
	var blob []byte
	var dimension int
	var insertedAt time.Time

	err := c.db.QueryRowContext(ctx, `
		SELECT embedding, dimension, inserted_at FROM embedding_cache WHERE key = ?`,
		int64(key)).Scan(&blob, &dimension, &insertedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}

	vec, err := deserializeVector(blob, dimension)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize cache entry: %w", err)
	}

	return &storage.CacheEntry{Key: key, Vector: vec, InsertedAt: insertedAt}, nil
}

// Put inserts or replaces the entry for key.
func (c *VectorCache) Put(ctx context.Context, key uint64, vec []float64) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty vector", storage.ErrInvalidInput)
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO embedding_cache (key, embedding, dimension, inserted_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			embedding   = excluded.embedding,
			dimension   = excluded.dimension,
			inserted_at = excluded.inserted_at
	`, int64(key), serializeVector(vec), len(vec), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Purge removes entries inserted before cutoff.
func (c *VectorCache) Purge(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := c.db.ExecContext(ctx,
		`DELETE FROM embedding_cache WHERE inserted_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return int(affected), nil
}

// Clear removes all entries.
func (c *VectorCache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM embedding_cache`); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

// Close releases the database handle when this cache owns it (standalone
// file mode); otherwise the owning MemoryStore closes it.
func (c *VectorCache) Close() error {
	if c.ownsDB {
		return c.db.Close()
	}
	return nil
}

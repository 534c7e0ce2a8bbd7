// Package sqlite implements the storage interfaces on SQLite using the
// pure-Go modernc.org/sqlite driver. It is the default backend: a single
// file, no server, good enough for corpora in the tens of thousands.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vecmem/vecmem/internal/storage"
	"github.com/vecmem/vecmem/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id         TEXT PRIMARY KEY,
	content    TEXT NOT NULL,
	type       TEXT NOT NULL,
	tags       TEXT,
	metadata   TEXT,
	embedding  BLOB,
	dimension  INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);
CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(type);

CREATE TABLE IF NOT EXISTS embedding_cache (
	key         INTEGER PRIMARY KEY,
	embedding   BLOB NOT NULL,
	dimension   INTEGER NOT NULL,
	inserted_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_embedding_cache_inserted_at ON embedding_cache(inserted_at);
`

// MemoryStore implements storage.MemoryStore backed by SQLite.
type MemoryStore struct {
	db *sql.DB
}

var _ storage.MemoryStore = (*MemoryStore)(nil)

// NewMemoryStore opens (or creates) the SQLite database at path and applies
// the schema. Use ":memory:" for an ephemeral store in tests.
func NewMemoryStore(path string) (*MemoryStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// modernc.org/sqlite serializes writes itself; a single connection
	// avoids SQLITE_BUSY under concurrent access.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &MemoryStore{db: db}, nil
}

// DB exposes the underlying handle so the durable cache tier can share one
// database file with the record store.
func (s *MemoryStore) DB() *sql.DB {
	return s.db
}

// Put creates or replaces a memory record.
func (s *MemoryStore) Put(ctx context.Context, memory *types.Memory) error {
	if memory == nil || memory.ID == "" {
		return fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	tagsJSON, err := json.Marshal(memory.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	metaJSON, err := json.Marshal(memory.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	var blob []byte
	if len(memory.Embedding) > 0 {
		blob = serializeVector(memory.Embedding)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (id, content, type, tags, metadata, embedding, dimension, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content    = excluded.content,
			type       = excluded.type,
			tags       = excluded.tags,
			metadata   = excluded.metadata,
			embedding  = excluded.embedding,
			dimension  = excluded.dimension,
			updated_at = excluded.updated_at
	`, memory.ID, memory.Content, string(memory.Type), string(tagsJSON), string(metaJSON),
		blob, len(memory.Embedding), memory.CreatedAt.UTC(), memory.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to store memory: %w", err)
	}
	return nil
}

// Get retrieves a memory by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*types.Memory, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, content, type, tags, metadata, embedding, dimension, created_at, updated_at
		FROM memories WHERE id = ?`, id)

	memory, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get memory: %w", err)
	}
	return memory, nil
}

// Delete removes a memory by ID.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete memory: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// List retrieves memories ordered by created_at with optional filters.
func (s *MemoryStore) List(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Memory], error) {
	opts.Normalize()

	where := "WHERE 1=1"
	args := []interface{}{}
	if opts.Type != "" {
		where += " AND type = ?"
		args = append(args, opts.Type)
	}
	if !opts.CreatedAfter.IsZero() {
		where += " AND created_at > ?"
		args = append(args, opts.CreatedAfter.UTC())
	}
	if !opts.CreatedBefore.IsZero() {
		where += " AND created_at < ?"
		args = append(args, opts.CreatedBefore.UTC())
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count memories: %w", err)
	}

	order := "ASC"
	if opts.SortOrder == "desc" {
		order = "DESC"
	}
	query := fmt.Sprintf(`
		SELECT id, content, type, tags, metadata, embedding, dimension, created_at, updated_at
		FROM memories %s ORDER BY created_at %s LIMIT ? OFFSET ?`, where, order)
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []types.Memory
	for rows.Next() {
		memory, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		items = append(items, *memory)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &storage.PaginatedResult[types.Memory]{
		Items:   items,
		Total:   total,
		HasMore: opts.Offset+len(items) < total,
	}, nil
}

// PutEmbeddings persists embeddings for multiple memories in one transaction.
// If any ID is missing the whole batch is rolled back.
func (s *MemoryStore) PutEmbeddings(ctx context.Context, embeddings map[string][]float64) error {
	if len(embeddings) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for id, vec := range embeddings {
		result, err := tx.ExecContext(ctx, `
			UPDATE memories SET embedding = ?, dimension = ?, updated_at = ? WHERE id = ?`,
			serializeVector(vec), len(vec), now, id)
		if err != nil {
			return fmt.Errorf("failed to update embedding for %s: %w", id, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("%w: memory %s", storage.ErrNotFound, id)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit embeddings: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *MemoryStore) Close() error {
	return s.db.Close()
}

// scanner abstracts *sql.Row and *sql.Rows for scanMemory.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row scanner) (*types.Memory, error) {
	var memory types.Memory
	var typ string
	var tagsJSON, metaJSON sql.NullString
	var blob []byte
	var dimension int

	err := row.Scan(&memory.ID, &memory.Content, &typ, &tagsJSON, &metaJSON,
		&blob, &dimension, &memory.CreatedAt, &memory.UpdatedAt)
	if err != nil {
		return nil, err
	}

	memory.Type = types.MemoryType(typ)
	if tagsJSON.Valid && tagsJSON.String != "" && tagsJSON.String != "null" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &memory.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	if metaJSON.Valid && metaJSON.String != "" && metaJSON.String != "null" {
		if err := json.Unmarshal([]byte(metaJSON.String), &memory.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if len(blob) > 0 && dimension > 0 {
		vec, err := deserializeVector(blob, dimension)
		if err != nil {
			return nil, fmt.Errorf("deserialize embedding: %w", err)
		}
		memory.Embedding = vec
	}

	return &memory, nil
}

// serializeVector encodes a float64 slice as little-endian IEEE 754 bytes.
func serializeVector(vec []float64) []byte {
	buf := make([]byte, len(vec)*8)
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// deserializeVector decodes a little-endian float64 blob, validating the
// buffer length against the recorded dimension.
func deserializeVector(buf []byte, dimension int) ([]float64, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid dimension: %d", dimension)
	}
	if len(buf) != dimension*8 {
		return nil, fmt.Errorf("buffer size mismatch: expected %d bytes, got %d", dimension*8, len(buf))
	}
	vec := make([]float64, dimension)
	for i := 0; i < dimension; i++ {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec, nil
}

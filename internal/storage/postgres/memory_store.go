// Package postgres provides a PostgreSQL implementation of the storage
// interfaces. Embeddings are stored in a pgvector column when the extension
// is available, falling back to a plain float array otherwise.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/vecmem/vecmem/internal/storage"
	"github.com/vecmem/vecmem/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id         TEXT PRIMARY KEY,
	content    TEXT NOT NULL,
	type       TEXT NOT NULL,
	tags       JSONB,
	metadata   JSONB,
	embedding  DOUBLE PRECISION[],
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);
CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(type);
`

// migrationPgvector adds a typed vector column used for storage when the
// pgvector extension is present. The dimension is fixed at table-alter time.
const migrationPgvector = `
ALTER TABLE memories ADD COLUMN IF NOT EXISTS embedding_vec vector(%d);
`

// MemoryStore implements storage.MemoryStore using PostgreSQL.
type MemoryStore struct {
	db                *sql.DB
	dimension         int
	pgvectorAvailable bool
}

var _ storage.MemoryStore = (*MemoryStore)(nil)

// NewMemoryStore connects to PostgreSQL, applies the schema, and attempts to
// enable pgvector. dimension is the system-wide embedding dimension used for
// the typed vector column.
func NewMemoryStore(dsn string, dimension int) (*MemoryStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: failed to ping database: %w", err)
	}

	s := &MemoryStore{db: db, dimension: dimension}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: failed to apply schema: %w", err)
	}

	// pgvector may not be installed on the server. Vector storage then falls
	// back to the float array column; nothing else degrades.
	if _, err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		log.Printf("postgres: pgvector extension not available: %v", err)
	} else if _, err := db.Exec(fmt.Sprintf(migrationPgvector, dimension)); err != nil {
		log.Printf("postgres: failed to add vector column: %v", err)
	} else {
		s.pgvectorAvailable = true
	}

	return s, nil
}

// Put creates or replaces a memory record.
func (s *MemoryStore) Put(ctx context.Context, memory *types.Memory) error {
	if memory == nil || memory.ID == "" {
		return fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	tagsJSON, err := json.Marshal(memory.Tags)
	if err != nil {
		return fmt.Errorf("postgres: failed to marshal tags: %w", err)
	}
	metaJSON, err := json.Marshal(memory.Metadata)
	if err != nil {
		return fmt.Errorf("postgres: failed to marshal metadata: %w", err)
	}

	if s.pgvectorAvailable && len(memory.Embedding) == s.dimension {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO memories (id, content, type, tags, metadata, embedding, embedding_vec, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET
				content = EXCLUDED.content, type = EXCLUDED.type,
				tags = EXCLUDED.tags, metadata = EXCLUDED.metadata,
				embedding = EXCLUDED.embedding, embedding_vec = EXCLUDED.embedding_vec,
				updated_at = EXCLUDED.updated_at`,
			memory.ID, memory.Content, string(memory.Type), tagsJSON, metaJSON,
			pq.Float64Array(memory.Embedding), toPgVector(memory.Embedding),
			memory.CreatedAt.UTC(), memory.UpdatedAt.UTC())
	} else {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO memories (id, content, type, tags, metadata, embedding, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				content = EXCLUDED.content, type = EXCLUDED.type,
				tags = EXCLUDED.tags, metadata = EXCLUDED.metadata,
				embedding = EXCLUDED.embedding, updated_at = EXCLUDED.updated_at`,
			memory.ID, memory.Content, string(memory.Type), tagsJSON, metaJSON,
			pq.Float64Array(memory.Embedding), memory.CreatedAt.UTC(), memory.UpdatedAt.UTC())
	}
	if err != nil {
		return fmt.Errorf("postgres: failed to store memory: %w", err)
	}
	return nil
}

// Get retrieves a memory by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*types.Memory, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, content, type, tags, metadata, embedding, created_at, updated_at
		FROM memories WHERE id = $1`, id)

	memory, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get memory: %w", err)
	}
	return memory, nil
}

// Delete removes a memory by ID.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete memory: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// List retrieves memories ordered by created_at with optional filters.
func (s *MemoryStore) List(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Memory], error) {
	opts.Normalize()

	where := "WHERE TRUE"
	args := []interface{}{}
	arg := 1
	if opts.Type != "" {
		where += fmt.Sprintf(" AND type = $%d", arg)
		args = append(args, opts.Type)
		arg++
	}
	if !opts.CreatedAfter.IsZero() {
		where += fmt.Sprintf(" AND created_at > $%d", arg)
		args = append(args, opts.CreatedAfter.UTC())
		arg++
	}
	if !opts.CreatedBefore.IsZero() {
		where += fmt.Sprintf(" AND created_at < $%d", arg)
		args = append(args, opts.CreatedBefore.UTC())
		arg++
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("postgres: failed to count memories: %w", err)
	}

	order := "ASC"
	if opts.SortOrder == "desc" {
		order = "DESC"
	}
	query := fmt.Sprintf(`
		SELECT id, content, type, tags, metadata, embedding, created_at, updated_at
		FROM memories %s ORDER BY created_at %s LIMIT $%d OFFSET $%d`, where, order, arg, arg+1)
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list memories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []types.Memory
	for rows.Next() {
		memory, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan memory: %w", err)
		}
		items = append(items, *memory)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows error: %w", err)
	}

	return &storage.PaginatedResult[types.Memory]{
		Items:   items,
		Total:   total,
		HasMore: opts.Offset+len(items) < total,
	}, nil
}

// PutEmbeddings persists embeddings for multiple memories in one transaction.
func (s *MemoryStore) PutEmbeddings(ctx context.Context, embeddings map[string][]float64) error {
	if len(embeddings) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for id, vec := range embeddings {
		var result sql.Result
		if s.pgvectorAvailable && len(vec) == s.dimension {
			result, err = tx.ExecContext(ctx, `
				UPDATE memories SET embedding = $1, embedding_vec = $2, updated_at = $3 WHERE id = $4`,
				pq.Float64Array(vec), toPgVector(vec), now, id)
		} else {
			result, err = tx.ExecContext(ctx, `
				UPDATE memories SET embedding = $1, updated_at = $2 WHERE id = $3`,
				pq.Float64Array(vec), now, id)
		}
		if err != nil {
			return fmt.Errorf("postgres: failed to update embedding for %s: %w", id, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("postgres: failed to check rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("%w: memory %s", storage.ErrNotFound, id)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: failed to commit embeddings: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *MemoryStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row scanner) (*types.Memory, error) {
	var memory types.Memory
	var typ string
	var tagsJSON, metaJSON []byte
	var embedding pq.Float64Array

	err := row.Scan(&memory.ID, &memory.Content, &typ, &tagsJSON, &metaJSON,
		&embedding, &memory.CreatedAt, &memory.UpdatedAt)
	if err != nil {
		return nil, err
	}

	memory.Type = types.MemoryType(typ)
	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &memory.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &memory.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	memory.Embedding = []float64(embedding)
	if len(memory.Embedding) == 0 {
		memory.Embedding = nil
	}

	return &memory, nil
}

// toPgVector converts to pgvector's float32 wire type.
func toPgVector(vec []float64) pgvector.Vector {
	f32 := make([]float32, len(vec))
	for i, v := range vec {
		f32[i] = float32(v)
	}
	return pgvector.NewVector(f32)
}

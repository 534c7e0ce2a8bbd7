package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vecmem/vecmem/internal/embedding"
	"github.com/vecmem/vecmem/internal/search"
	"github.com/vecmem/vecmem/internal/storage"
	"github.com/vecmem/vecmem/pkg/types"
)

// Search defaults applied when a caller does not specify them.
const (
	DefaultSearchThreshold = 0.7
	DefaultSearchLimit     = 20
)

// corpusPageSize bounds each List call when loading the corpus for search
// and detection.
const corpusPageSize = 500

// Service is the vecmem core: memory CRUD with automatic embedding,
// semantic search, and contradiction/duplicate detection. Construct with
// NewService, call Initialize once, and Close when done.
type Service struct {
	store    storage.MemoryStore
	embedder *embedding.Service
	detector *Detector
}

// NewService wires the engine from its collaborators.
func NewService(store storage.MemoryStore, embedder *embedding.Service, detector *Detector) *Service {
	return &Service{
		store:    store,
		embedder: embedder,
		detector: detector,
	}
}

// Initialize performs startup maintenance (expired cache purge).
func (s *Service) Initialize(ctx context.Context) error {
	return s.embedder.Cache().Initialize(ctx)
}

// Close releases the underlying store.
func (s *Service) Close() error {
	return s.store.Close()
}

// Embedder exposes the embedding service for cache maintenance endpoints.
func (s *Service) Embedder() *embedding.Service {
	return s.embedder
}

// CreateMemory embeds content, assigns an ID and timestamps, and persists
// the record.
func (s *Service) CreateMemory(ctx context.Context, content string, memType types.MemoryType, tags []string, metadata map[string]interface{}) (*types.Memory, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: content must not be empty", storage.ErrInvalidInput)
	}
	if !types.IsValidMemoryType(string(memType)) {
		return nil, fmt.Errorf("%w: unknown memory type %q", storage.ErrInvalidInput, memType)
	}

	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("failed to embed memory content: %w", err)
	}

	now := time.Now().UTC()
	memory := &types.Memory{
		ID:        uuid.NewString(),
		Content:   content,
		Type:      memType,
		Tags:      tags,
		Metadata:  metadata,
		Embedding: vec,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Put(ctx, memory); err != nil {
		return nil, fmt.Errorf("failed to store memory: %w", err)
	}
	return memory, nil
}

// UpdateParams carries the mutable fields of a memory. Nil fields are left
// unchanged.
type UpdateParams struct {
	Content  *string
	Type     *types.MemoryType
	Tags     []string
	Metadata map[string]interface{}
}

// UpdateMemory applies params to an existing memory. A content change
// re-embeds the record before it is stored.
func (s *Service) UpdateMemory(ctx context.Context, id string, params UpdateParams) (*types.Memory, error) {
	memory, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if params.Content != nil && *params.Content != memory.Content {
		if *params.Content == "" {
			return nil, fmt.Errorf("%w: content must not be empty", storage.ErrInvalidInput)
		}
		vec, err := s.embedder.Embed(ctx, *params.Content)
		if err != nil {
			return nil, fmt.Errorf("failed to embed updated content: %w", err)
		}
		memory.Content = *params.Content
		memory.Embedding = vec
	}
	if params.Type != nil {
		if !types.IsValidMemoryType(string(*params.Type)) {
			return nil, fmt.Errorf("%w: unknown memory type %q", storage.ErrInvalidInput, *params.Type)
		}
		memory.Type = *params.Type
	}
	if params.Tags != nil {
		memory.Tags = params.Tags
	}
	if params.Metadata != nil {
		memory.Metadata = params.Metadata
	}
	memory.UpdatedAt = time.Now().UTC()

	if err := s.store.Put(ctx, memory); err != nil {
		return nil, fmt.Errorf("failed to store updated memory: %w", err)
	}
	return memory, nil
}

// GetMemory retrieves a memory by ID.
func (s *Service) GetMemory(ctx context.Context, id string) (*types.Memory, error) {
	return s.store.Get(ctx, id)
}

// DeleteMemory removes a memory by ID.
func (s *Service) DeleteMemory(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// ListMemories pages through stored memories.
func (s *Service) ListMemories(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Memory], error) {
	return s.store.List(ctx, opts)
}

// SearchMemories embeds the query and returns up to limit stored memories
// with similarity >= threshold, best first. A non-positive limit falls back
// to DefaultSearchLimit.
func (s *Service) SearchMemories(ctx context.Context, query string, threshold float64, limit int) ([]types.SimilarityMatch, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: query must not be empty", storage.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed search query: %w", err)
	}

	corpus, err := s.loadCorpus(ctx)
	if err != nil {
		return nil, err
	}

	candidates := make([]search.Candidate, 0, len(corpus))
	for _, m := range corpus {
		if len(m.Embedding) == 0 {
			continue
		}
		candidates = append(candidates, search.Candidate{ID: m.ID, Vector: m.Embedding, Content: m.Content})
	}
	return search.FindSimilar(queryVec, candidates, threshold, limit), nil
}

// DetectContradictions checks the memory with the given ID against every
// other stored memory.
func (s *Service) DetectContradictions(ctx context.Context, id string) ([]types.ContradictionResult, error) {
	subject, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	corpus, err := s.loadCorpus(ctx)
	if err != nil {
		return nil, err
	}
	return s.detector.DetectContradictions(ctx, subject, corpus)
}

// FindDuplicates returns stored memories near-identical to the one with the
// given ID.
func (s *Service) FindDuplicates(ctx context.Context, id string) ([]types.DuplicateResult, error) {
	subject, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	corpus, err := s.loadCorpus(ctx)
	if err != nil {
		return nil, err
	}
	return s.detector.FindDuplicates(ctx, subject, corpus), nil
}

// RebuildEmbeddings re-embeds every stored memory and persists the new
// vectors in one atomic batch. Returns the number of memories re-embedded.
// Useful after switching embedding models or dimensions.
func (s *Service) RebuildEmbeddings(ctx context.Context) (int, error) {
	corpus, err := s.loadCorpus(ctx)
	if err != nil {
		return 0, err
	}
	if len(corpus) == 0 {
		return 0, nil
	}

	texts := make([]string, len(corpus))
	for i, m := range corpus {
		texts[i] = m.Content
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to re-embed memories: %w", err)
	}

	updates := make(map[string][]float64, len(corpus))
	for i, m := range corpus {
		updates[m.ID] = vectors[i]
	}
	if err := s.store.PutEmbeddings(ctx, updates); err != nil {
		return 0, fmt.Errorf("failed to persist rebuilt embeddings: %w", err)
	}
	return len(corpus), nil
}

// loadCorpus pages through the full memory set.
func (s *Service) loadCorpus(ctx context.Context) ([]types.Memory, error) {
	var corpus []types.Memory
	offset := 0
	for {
		page, err := s.store.List(ctx, storage.ListOptions{Limit: corpusPageSize, Offset: offset})
		if err != nil {
			return nil, fmt.Errorf("failed to load memory corpus: %w", err)
		}
		corpus = append(corpus, page.Items...)
		if !page.HasMore {
			return corpus, nil
		}
		offset += corpusPageSize
	}
}

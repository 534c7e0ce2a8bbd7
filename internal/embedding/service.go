package embedding

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/vecmem/vecmem/internal/llm"
	"github.com/vecmem/vecmem/internal/storage"
	"github.com/vecmem/vecmem/pkg/vector"
)

// Service generates embeddings through the two-tier cache, deduplicating
// concurrent requests for the same text so the generator sees each distinct
// text at most once at a time.
type Service struct {
	generator llm.EmbeddingGenerator
	cache     *Cache
	dimension int
	group     singleflight.Group
}

// NewService creates an embedding service. dimension is the system-wide
// embedding dimension; every generated vector is validated against it.
func NewService(generator llm.EmbeddingGenerator, cache *Cache, dimension int) *Service {
	return &Service{
		generator: generator,
		cache:     cache,
		dimension: dimension,
	}
}

// Cache exposes the underlying cache for stats and maintenance endpoints.
func (s *Service) Cache() *Cache {
	return s.cache
}

// Embed returns the embedding for text, from cache when possible. Concurrent
// calls for the same text share a single generator request; each caller gets
// the same vector (or the same error).
func (s *Service) Embed(ctx context.Context, text string) ([]float64, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text must not be empty", storage.ErrInvalidInput)
	}

	if vec, ok := s.cache.Get(ctx, text); ok {
		return vec, nil
	}

	result, err, _ := s.group.Do(text, func() (interface{}, error) {
		// A concurrent winner may have populated the cache between our
		// miss and acquiring the flight.
		if vec, ok := s.cache.Get(ctx, text); ok {
			return vec, nil
		}

		vec, err := s.generator.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		if len(vec) != s.dimension {
			return nil, fmt.Errorf("%w: generator returned %d dimensions, want %d",
				vector.ErrDimensionMismatch, len(vec), s.dimension)
		}

		s.cache.Set(ctx, text, vec)
		return vec, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]float64), nil
}

// EmbedBatch returns embeddings for texts in input order. Cached texts are
// served from the cache; the remainder go to the generator in one batch.
// The call is all-or-nothing: any empty text, generation failure, or
// dimension mismatch fails the whole batch and caches nothing new.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float64, len(texts))
	var missing []string
	var missingIdx []int

	for i, text := range texts {
		if text == "" {
			return nil, fmt.Errorf("%w: text at index %d must not be empty", storage.ErrInvalidInput, i)
		}
		if vec, ok := s.cache.Get(ctx, text); ok {
			results[i] = vec
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return results, nil
	}

	generated, err := s.generator.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(generated) != len(missing) {
		return nil, fmt.Errorf("%w: generator returned %d embeddings for %d texts",
			llm.ErrGenerationFailed, len(generated), len(missing))
	}
	for i, vec := range generated {
		if len(vec) != s.dimension {
			return nil, fmt.Errorf("%w: embedding %d has %d dimensions, want %d",
				vector.ErrDimensionMismatch, i, len(vec), s.dimension)
		}
	}

	// Every vector validated; cache and place them.
	for i, vec := range generated {
		s.cache.Set(ctx, missing[i], vec)
		results[missingIdx[i]] = vec
	}
	return results, nil
}

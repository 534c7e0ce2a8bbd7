package embedding

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vecmem/vecmem/internal/storage"
	"github.com/vecmem/vecmem/pkg/vector"
)

// stubEmbedder is a deterministic embedding generator that records calls.
type stubEmbedder struct {
	dim   int
	delay time.Duration

	mu         sync.Mutex
	embedCalls int
	batchCalls [][]string
}

func (s *stubEmbedder) vectorFor(text string) []float64 {
	vec := make([]float64, s.dim)
	for i := range vec {
		vec[i] = float64(len(text)%7+i) * 0.01
	}
	return vec
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	s.mu.Lock()
	s.embedCalls++
	s.mu.Unlock()
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.vectorFor(text), nil
}

func (s *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float64, error) {
	s.mu.Lock()
	s.batchCalls = append(s.batchCalls, append([]string(nil), texts...))
	s.mu.Unlock()
	vecs := make([][]float64, len(texts))
	for i, text := range texts {
		vecs[i] = s.vectorFor(text)
	}
	return vecs, nil
}

func (s *stubEmbedder) GetModel() string { return "stub-embedder" }

func newTestService(t *testing.T, gen *stubEmbedder) *Service {
	t.Helper()
	cache, err := NewCache(100, time.Hour, newMemVectorCache())
	require.NoError(t, err)
	return NewService(gen, cache, gen.dim)
}

func TestEmbedRejectsEmptyText(t *testing.T) {
	svc := newTestService(t, &stubEmbedder{dim: 4})
	_, err := svc.Embed(context.Background(), "")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestEmbedCachesResult(t *testing.T) {
	gen := &stubEmbedder{dim: 4}
	svc := newTestService(t, gen)
	ctx := context.Background()

	first, err := svc.Embed(ctx, "some text")
	require.NoError(t, err)
	second, err := svc.Embed(ctx, "some text")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, gen.embedCalls, "second call must be served from cache")
}

func TestEmbedDeduplicatesConcurrentRequests(t *testing.T) {
	gen := &stubEmbedder{dim: 4, delay: 20 * time.Millisecond}
	svc := newTestService(t, gen)
	ctx := context.Background()

	const n = 25
	results := make([][]float64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			vec, err := svc.Embed(ctx, "shared text")
			assert.NoError(t, err)
			results[i] = vec
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, gen.embedCalls, "concurrent identical requests must share one generation")
	for i := 1; i < n; i++ {
		assert.Equal(t, results[0], results[i])
	}
}

func TestEmbedRejectsDimensionMismatch(t *testing.T) {
	gen := &stubEmbedder{dim: 4}
	cache, err := NewCache(100, time.Hour, newMemVectorCache())
	require.NoError(t, err)
	svc := NewService(gen, cache, 8) // expects 8, generator produces 4

	_, err = svc.Embed(context.Background(), "some text")
	assert.ErrorIs(t, err, vector.ErrDimensionMismatch)
	assert.False(t, cache.Has(context.Background(), "some text"), "invalid vector must not be cached")
}

func TestEmbedBatchPreservesOrderAndUsesCache(t *testing.T) {
	gen := &stubEmbedder{dim: 4}
	svc := newTestService(t, gen)
	ctx := context.Background()

	cached, err := svc.Embed(ctx, "already cached")
	require.NoError(t, err)

	texts := []string{"new one", "already cached", "new two"}
	results, err := svc.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, cached, results[1])
	require.Len(t, gen.batchCalls, 1)
	assert.Equal(t, []string{"new one", "new two"}, gen.batchCalls[0],
		"only uncached texts should reach the generator")
}

func TestEmbedBatchRejectsEmptyTextBeforeGenerating(t *testing.T) {
	gen := &stubEmbedder{dim: 4}
	svc := newTestService(t, gen)

	_, err := svc.EmbedBatch(context.Background(), []string{"fine", "", "also fine"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
	assert.Empty(t, gen.batchCalls)
}

func TestEmbedBatchAllOrNothingOnBadDimension(t *testing.T) {
	gen := &stubEmbedder{dim: 4}
	cache, err := NewCache(100, time.Hour, newMemVectorCache())
	require.NoError(t, err)
	svc := NewService(gen, cache, 8)
	ctx := context.Background()

	_, err = svc.EmbedBatch(ctx, []string{"a", "b"})
	assert.ErrorIs(t, err, vector.ErrDimensionMismatch)
	assert.False(t, cache.Has(ctx, "a"))
	assert.False(t, cache.Has(ctx, "b"))
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	svc := newTestService(t, &stubEmbedder{dim: 4})
	results, err := svc.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, results)
}

// Package llm provides the two external model boundaries of the vecmem core:
// text completion (used for contradiction classification) and embedding
// generation. Both are narrow interfaces over HTTP providers (Ollama,
// OpenAI-compatible, Anthropic), each wrapped in circuit-breaker protection.
package llm

import (
	"context"
	"errors"
)

// ErrGenerationFailed wraps any internal error from an embedding provider.
// The core never retries it; the caller of the failing operation sees it once.
var ErrGenerationFailed = errors.New("embedding generation failed")

// TextGenerator is the reasoning/classification boundary: single-string
// completion in, raw response text out. The core does tolerant parsing of
// the response; providers return it verbatim.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}

// EmbeddingGenerator turns text into fixed-dimension vectors. Implementations
// must return vectors of the model's native dimension; the embedding service
// validates that dimension against the configured system-wide value.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
	GetModel() string
}

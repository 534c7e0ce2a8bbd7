// Package types defines the shared data model for the vecmem system:
// memory records, similarity matches, and contradiction/duplicate results.
package types

import "time"

// MemoryType classifies what kind of knowledge a memory holds.
type MemoryType string

const (
	// MemoryTypeKnowledge is a factual statement ("React hooks run on every render").
	MemoryTypeKnowledge MemoryType = "knowledge"

	// MemoryTypeExperience is an observation from a concrete situation.
	MemoryTypeExperience MemoryType = "experience"

	// MemoryTypeMethod is a procedure or technique.
	MemoryTypeMethod MemoryType = "method"
)

// IsValidMemoryType reports whether s is one of the known memory types.
func IsValidMemoryType(s string) bool {
	switch MemoryType(s) {
	case MemoryTypeKnowledge, MemoryTypeExperience, MemoryTypeMethod:
		return true
	}
	return false
}

// Memory represents a single memory record.
// Embedding is either exactly the configured dimension or nil (absent);
// vectors of any other length are treated as absent by consumers.
type Memory struct {
	ID        string                 `json:"id"`
	Content   string                 `json:"content"`
	Type      MemoryType             `json:"type"`
	Tags      []string               `json:"tags,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Embedding []float64              `json:"embedding,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// HasEmbedding reports whether the memory carries an embedding of the
// given dimension. Wrong-dimension vectors count as absent.
func (m *Memory) HasEmbedding(dimension int) bool {
	return len(m.Embedding) == dimension && dimension > 0
}

// SimilarityMatch is a single ranked result from semantic search.
// Score is cosine similarity in [-1,1]; for normalized text embeddings it
// lands in [0,1] in practice.
type SimilarityMatch struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Content string  `json:"content"`
}

// ContradictionResult reports a classified contradiction between two memories.
// Confidence is always within [0,100] regardless of what the classifier returned.
type ContradictionResult struct {
	Memory1ID   string `json:"memory1_id"`
	Memory2ID   string `json:"memory2_id"`
	Confidence  int    `json:"confidence"`
	Explanation string `json:"explanation"`
	Contradicts bool   `json:"contradicts"`
}

// DuplicateResult reports a near-duplicate memory found by vector similarity
// alone (no classifier involved).
type DuplicateResult struct {
	ID         string  `json:"id"`
	Similarity float64 `json:"similarity"`
	Content    string  `json:"content"`
}

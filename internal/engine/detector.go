// Package engine implements the vecmem core: memory record operations,
// semantic search, and contradiction/duplicate detection.
package engine

import (
	"context"
	"errors"
	"log"

	"github.com/vecmem/vecmem/internal/config"
	"github.com/vecmem/vecmem/internal/llm"
	"github.com/vecmem/vecmem/internal/search"
	"github.com/vecmem/vecmem/pkg/types"
)

// Detector finds contradictions and duplicates between a subject memory and
// a corpus. Contradiction detection is two-phase: a cheap vector similarity
// filter shortlists candidates, then a language model classifies each
// shortlisted pair. Duplicate detection is similarity-only.
type Detector struct {
	generator          llm.TextGenerator
	candidateThreshold float64
	duplicateThreshold float64
	maxCandidates      int
}

// NewDetector creates a detector using the given classification model and
// thresholds.
func NewDetector(generator llm.TextGenerator, cfg config.DetectionConfig) *Detector {
	return &Detector{
		generator:          generator,
		candidateThreshold: cfg.CandidateThreshold,
		duplicateThreshold: cfg.DuplicateThreshold,
		maxCandidates:      cfg.MaxCandidates,
	}
}

// DetectContradictions classifies the subject against every sufficiently
// similar corpus memory and returns the pairs judged contradictory, most
// similar first. Pairs the model judges compatible are dropped. A single
// pair failing to classify or parse never aborts the batch: generation
// failures and unparseable responses are logged, and the pair is treated as
// non-contradictory.
func (d *Detector) DetectContradictions(ctx context.Context, subject *types.Memory, corpus []types.Memory) ([]types.ContradictionResult, error) {
	candidates := d.shortlist(subject, corpus, d.candidateThreshold)

	var results []types.ContradictionResult
	for _, cand := range candidates {
		prompt := llm.ContradictionPrompt(subject.Content, cand.Content)
		raw, err := d.generator.Complete(ctx, prompt)
		if err != nil {
			log.Printf("WARNING: contradiction check %s vs %s failed: %v", subject.ID, cand.ID, err)
			continue
		}

		judgment, err := llm.ParseContradictionResponse(raw)
		if err != nil {
			if errors.Is(err, llm.ErrParseFailure) {
				log.Printf("WARNING: contradiction check %s vs %s: %v", subject.ID, cand.ID, err)
				continue
			}
			return nil, err
		}
		if !judgment.Contradicts {
			continue
		}

		results = append(results, types.ContradictionResult{
			Memory1ID:   subject.ID,
			Memory2ID:   cand.ID,
			Contradicts: true,
			Confidence:  judgment.Confidence,
			Explanation: judgment.Explanation,
		})
	}
	return results, nil
}

// FindDuplicates returns corpus memories whose similarity to the subject is
// at or above the duplicate threshold. No model is consulted: near-identical
// embeddings are duplicates by definition.
func (d *Detector) FindDuplicates(_ context.Context, subject *types.Memory, corpus []types.Memory) []types.DuplicateResult {
	matches := d.shortlist(subject, corpus, d.duplicateThreshold)

	duplicates := make([]types.DuplicateResult, 0, len(matches))
	for _, m := range matches {
		duplicates = append(duplicates, types.DuplicateResult{
			ID:         m.ID,
			Similarity: m.Score,
			Content:    m.Content,
		})
	}
	return duplicates
}

// shortlist runs the vector filter phase: corpus memories with embeddings,
// excluding the subject itself, scored against the subject's embedding.
func (d *Detector) shortlist(subject *types.Memory, corpus []types.Memory, threshold float64) []types.SimilarityMatch {
	if len(subject.Embedding) == 0 {
		return nil
	}

	candidates := make([]search.Candidate, 0, len(corpus))
	for _, m := range corpus {
		if len(m.Embedding) == 0 {
			continue
		}
		candidates = append(candidates, search.Candidate{
			ID:      m.ID,
			Vector:  m.Embedding,
			Content: m.Content,
		})
	}

	return search.FindSimilar(subject.Embedding, candidates, threshold, d.maxCandidates, subject.ID)
}

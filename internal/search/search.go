// Package search implements bounded top-N similarity search over in-memory
// candidate sets. It is a pure scoring layer: callers load candidates from
// storage and pass them in corpus order.
package search

import (
	"math"
	"sort"

	"github.com/vecmem/vecmem/pkg/types"
	"github.com/vecmem/vecmem/pkg/vector"
)

// Candidate is one scorable record.
type Candidate struct {
	ID      string
	Vector  []float64
	Content string
}

// FindSimilar scores every candidate against query and returns at most limit
// matches with similarity >= threshold, ordered by descending score.
//
// The result buffer never exceeds limit entries: once full, only candidates
// strictly better than the current minimum displace it, which tightens the
// effective threshold as scoring proceeds. Ties keep the candidate that
// appeared first in the input, so results are deterministic for a fixed
// corpus order.
//
// Candidates with an excluded ID or a vector of a different dimension than
// query are skipped, never errors.
func FindSimilar(query []float64, candidates []Candidate, threshold float64, limit int, excludeIDs ...string) []types.SimilarityMatch {
	if limit <= 0 || len(query) == 0 {
		return nil
	}

	excluded := make(map[string]struct{}, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = struct{}{}
	}

	matches := make([]types.SimilarityMatch, 0, limit)

	for _, c := range candidates {
		if _, skip := excluded[c.ID]; skip {
			continue
		}
		score, err := vector.CosineSimilarity(query, c.Vector)
		if err != nil {
			continue // dimension mismatch: not comparable, not fatal
		}
		if score < threshold {
			continue
		}
		if len(matches) == limit {
			if score <= matches[limit-1].Score {
				continue
			}
			matches = matches[:limit-1]
		}

		// Insert in descending score order, after any equal scores.
		pos := sort.Search(len(matches), func(i int) bool {
			return matches[i].Score < score
		})
		matches = append(matches, types.SimilarityMatch{})
		copy(matches[pos+1:], matches[pos:])
		matches[pos] = types.SimilarityMatch{ID: c.ID, Score: score, Content: c.Content}
	}

	return matches
}

// TopN returns the limit highest-scoring candidates regardless of how low
// their similarity is.
func TopN(query []float64, candidates []Candidate, limit int, excludeIDs ...string) []types.SimilarityMatch {
	return FindSimilar(query, candidates, math.Inf(-1), limit, excludeIDs...)
}

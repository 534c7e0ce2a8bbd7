package search

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// axis returns a unit vector rotated angle radians from the x axis in the
// xy plane, giving an exact expected cosine similarity against {1,0,...}.
func axis(dim int, angle float64) []float64 {
	v := make([]float64, dim)
	v[0] = math.Cos(angle)
	v[1] = math.Sin(angle)
	return v
}

func TestFindSimilarOrdersByScoreDescending(t *testing.T) {
	query := axis(4, 0)
	candidates := []Candidate{
		{ID: "far", Vector: axis(4, 1.2), Content: "far"},
		{ID: "near", Vector: axis(4, 0.1), Content: "near"},
		{ID: "mid", Vector: axis(4, 0.6), Content: "mid"},
	}

	matches := FindSimilar(query, candidates, 0.0, 10)
	require.Len(t, matches, 3)
	assert.Equal(t, "near", matches[0].ID)
	assert.Equal(t, "mid", matches[1].ID)
	assert.Equal(t, "far", matches[2].ID)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score)
	}
}

func TestFindSimilarHonorsThreshold(t *testing.T) {
	query := axis(4, 0)
	candidates := []Candidate{
		{ID: "in", Vector: axis(4, 0.2)},
		{ID: "out", Vector: axis(4, 1.4)},
	}

	matches := FindSimilar(query, candidates, 0.9, 10)
	require.Len(t, matches, 1)
	assert.Equal(t, "in", matches[0].ID)
	assert.GreaterOrEqual(t, matches[0].Score, 0.9)
}

func TestFindSimilarBoundsResultCount(t *testing.T) {
	query := axis(4, 0)
	var candidates []Candidate
	for i := 0; i < 50; i++ {
		candidates = append(candidates, Candidate{
			ID:     fmt.Sprintf("c-%d", i),
			Vector: axis(4, float64(i)*0.02),
		})
	}

	matches := FindSimilar(query, candidates, 0.0, 5)
	require.Len(t, matches, 5)
	// The 5 best are the 5 smallest angles, in order.
	for i, m := range matches {
		assert.Equal(t, fmt.Sprintf("c-%d", i), m.ID)
	}
}

func TestFindSimilarTieKeepsFirstCandidate(t *testing.T) {
	query := axis(4, 0)
	same := axis(4, 0.3)
	candidates := []Candidate{
		{ID: "first", Vector: same},
		{ID: "second", Vector: same},
		{ID: "third", Vector: same},
	}

	matches := FindSimilar(query, candidates, 0.0, 2)
	require.Len(t, matches, 2)
	assert.Equal(t, "first", matches[0].ID)
	assert.Equal(t, "second", matches[1].ID)
}

func TestFindSimilarSkipsExcludedIDs(t *testing.T) {
	query := axis(4, 0)
	candidates := []Candidate{
		{ID: "self", Vector: axis(4, 0)},
		{ID: "hidden", Vector: axis(4, 0.2)},
		{ID: "other", Vector: axis(4, 0.5)},
	}

	matches := FindSimilar(query, candidates, 0.0, 10, "self")
	require.Len(t, matches, 2)
	assert.Equal(t, "hidden", matches[0].ID)

	matches = FindSimilar(query, candidates, 0.0, 10, "self", "hidden")
	require.Len(t, matches, 1)
	assert.Equal(t, "other", matches[0].ID)
}

func TestFindSimilarSkipsMismatchedDimensions(t *testing.T) {
	query := axis(4, 0)
	candidates := []Candidate{
		{ID: "wrong-dim", Vector: []float64{1, 0}},
		{ID: "ok", Vector: axis(4, 0.1)},
	}

	matches := FindSimilar(query, candidates, 0.0, 10)
	require.Len(t, matches, 1)
	assert.Equal(t, "ok", matches[0].ID)
}

func TestFindSimilarEmptyInputs(t *testing.T) {
	assert.Nil(t, FindSimilar(nil, []Candidate{{ID: "a", Vector: axis(4, 0)}}, 0, 10))
	assert.Empty(t, FindSimilar(axis(4, 0), nil, 0, 10))
	assert.Nil(t, FindSimilar(axis(4, 0), []Candidate{{ID: "a", Vector: axis(4, 0)}}, 0, 0))
}

func TestTopNIgnoresThreshold(t *testing.T) {
	query := axis(4, 0)
	candidates := []Candidate{
		{ID: "opposite", Vector: axis(4, math.Pi)}, // similarity -1
		{ID: "zero", Vector: make([]float64, 4)},   // zero magnitude scores 0
	}

	matches := TopN(query, candidates, 5)
	require.Len(t, matches, 2)
	assert.Equal(t, "zero", matches[0].ID)
	assert.Equal(t, "opposite", matches[1].ID)
	assert.InDelta(t, -1.0, matches[1].Score, 1e-12)
}

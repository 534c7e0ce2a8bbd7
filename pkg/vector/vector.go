// Package vector provides the pure numeric operations used by the embedding
// cache and similarity search: dot product, magnitude, normalization,
// Euclidean distance, and cosine similarity.
//
// All operations iterate once over their inputs and allocate at most one
// result slice, so they stay cheap for dimensions in the thousands.
package vector

import (
	"errors"
	"fmt"
	"math"
)

// ErrDimensionMismatch is returned by binary operations when the two input
// vectors have different lengths. It is never coerced or silently ignored;
// callers that hit it have violated the fixed-dimension invariant.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Dot computes the dot product of a and b.
func Dot(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum, nil
}

// Magnitude computes the Euclidean norm of a.
func Magnitude(a []float64) float64 {
	var sum float64
	for _, v := range a {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// Normalize returns a unit-length copy of a. A zero vector normalizes to a
// zero vector of the same length rather than producing NaN components,
// matching the zero-magnitude policy of CosineSimilarity.
func Normalize(a []float64) []float64 {
	out := make([]float64, len(a))
	mag := Magnitude(a)
	if mag == 0 {
		return out
	}
	for i, v := range a {
		out[i] = v / mag
	}
	return out
}

// Add returns the element-wise sum of a and b.
func Add(a, b []float64) ([]float64, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] + b[i]
	}
	return out, nil
}

// Subtract returns the element-wise difference a - b.
func Subtract(a, b []float64) ([]float64, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out, nil
}

// Scale returns a copy of a with every element multiplied by s.
func Scale(a []float64, s float64) []float64 {
	out := make([]float64, len(a))
	for i, v := range a {
		out[i] = v * s
	}
	return out
}

// Distance computes the Euclidean distance between a and b.
func Distance(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// CosineSimilarity computes dot(a,b) / (|a| * |b|).
//
// When either vector has zero magnitude the result is 0 rather than NaN or
// an error, so empty or degenerate vectors never outrank real matches.
func CosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// Package similarity scores pairs of embedding vectors.
package similarity

import (
	"fmt"
	"math"

	"github.com/xhad/pagesearch/internal/models"
)

// Cosine returns the cosine similarity of a and b, or 0 when either vector
// has zero magnitude. The result is clamped to [-1, 1] to absorb rounding.
//
// a and b must have the same length; Cosine panics otherwise.
func Cosine(a, b models.Vector) float64 {
	if len(a) != len(b) {
		panic(fmt.Sprintf("similarity: vector length mismatch: %d != %d", len(a), len(b)))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	score := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(-1, math.Min(1, score))
}

// Magnitude returns the Euclidean norm of v.
func Magnitude(v models.Vector) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize scales v to unit length in place. Zero vectors are left alone.
func Normalize(v models.Vector) models.Vector {
	norm := Magnitude(v)
	if norm == 0 {
		return v
	}
	inv := 1 / norm
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}

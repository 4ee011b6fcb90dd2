package similarity

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xhad/pagesearch/internal/models"
)

func TestCosine_Basic(t *testing.T) {
	tests := []struct {
		name string
		a, b models.Vector
		want float64
	}{
		{"identical", models.Vector{1, 0}, models.Vector{1, 0}, 1},
		{"orthogonal", models.Vector{1, 0}, models.Vector{0, 1}, 0},
		{"opposite", models.Vector{1, 2, 3}, models.Vector{-1, -2, -3}, -1},
		{"scaled", models.Vector{1, 2, 3}, models.Vector{2, 4, 6}, 1},
		{"zero left", models.Vector{0, 0}, models.Vector{3, 4}, 0},
		{"zero right", models.Vector{3, 4}, models.Vector{0, 0}, 0},
		{"both zero", models.Vector{0, 0}, models.Vector{0, 0}, 0},
		{"empty", models.Vector{}, models.Vector{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			assert.False(t, math.IsNaN(got))
			assert.InDelta(t, tt.want, got, 1e-6)
		})
	}
}

func TestCosine_Bounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		a := make(models.Vector, 16)
		b := make(models.Vector, 16)
		for j := range a {
			a[j] = float32(rng.NormFloat64())
			b[j] = float32(rng.NormFloat64())
		}

		score := Cosine(a, b)
		assert.GreaterOrEqual(t, score, -1.0)
		assert.LessOrEqual(t, score, 1.0)
		assert.InDelta(t, 1.0, Cosine(a, a), 1e-6)
	}
}

func TestCosine_LengthMismatchPanics(t *testing.T) {
	assert.Panics(t, func() {
		Cosine(models.Vector{1, 2}, models.Vector{1, 2, 3})
	})
}

func TestNormalize(t *testing.T) {
	v := Normalize(models.Vector{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
	assert.InDelta(t, 1.0, Magnitude(v), 1e-6)

	zero := Normalize(models.Vector{0, 0})
	assert.Equal(t, models.Vector{0, 0}, zero)
}

package llm

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/xhad/pagesearch/internal/models"
)

// HashEmbedder is a deterministic bag-of-words embedder using the hashing
// trick. It needs no model, so it backs offline runs and tests; it only
// captures lexical overlap.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = 384
	}
	return &HashEmbedder{dim: dimension}
}

func (e *HashEmbedder) Dimension() int { return e.dim }

func (e *HashEmbedder) Embed(_ context.Context, text string) (models.Vector, error) {
	vec := make(models.Vector, e.dim)

	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum32()

		// the top bit picks the sign so collisions tend to cancel out
		sign := float32(1)
		if sum&(1<<31) != 0 {
			sign = -1
		}
		vec[int(sum%uint32(e.dim))] += sign
	}

	return vec, nil
}

package protocol_test

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xhad/pagesearch/internal/models"
	"github.com/xhad/pagesearch/pkg/retrieval"
	"github.com/xhad/pagesearch/pkg/similarity"
)

var quietLogger = log.New(io.Discard, "", 0)

type vectorTable map[string]models.Vector

func (v vectorTable) Embed(ctx context.Context, text string) (models.Vector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec, ok := v[text]
	if !ok {
		return nil, fmt.Errorf("no vector for %q", text)
	}
	return vec, nil
}

func petsFragments() []models.TextFragment {
	return []models.TextFragment{
		{ID: "element-ref-0", Type: models.Paragraph, Text: "Dogs are loyal companions", SequenceIndex: 0},
		{ID: "element-ref-1", Type: models.Paragraph, Text: "The stock market fell today.", SequenceIndex: 1},
	}
}

func petsCoordinator(t *testing.T) *retrieval.Coordinator {
	t.Helper()
	c, err := retrieval.NewCoordinator(vectorTable{
		"pets":                         {1, 0},
		"Dogs are loyal companions":    {0.6, 0.8},
		"The stock market fell today.": {0.1, float32(math.Sqrt(0.99))},
	}, retrieval.CoordinatorConfig{MaxWords: 20, Overlap: 5, Concurrency: 2, Logger: quietLogger})
	require.NoError(t, err)
	return c
}

// blockingBackend parks every call until its context ends or release is
// closed.
type blockingBackend struct {
	started chan string
	release chan struct{}
	ctxErr  chan error
}

func newBlockingBackend() *blockingBackend {
	return &blockingBackend{
		started: make(chan string, 4),
		release: make(chan struct{}),
		ctxErr:  make(chan error, 4),
	}
}

func (b *blockingBackend) wait(ctx context.Context, op string) error {
	b.started <- op
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		b.ctxErr <- ctx.Err()
		return ctx.Err()
	}
}

func (b *blockingBackend) BuildIndex(ctx context.Context, fragments []models.TextFragment) ([]models.EmbeddedChunk, error) {
	if err := b.wait(ctx, "index"); err != nil {
		return nil, err
	}
	return []models.EmbeddedChunk{}, nil
}

func (b *blockingBackend) Search(ctx context.Context, index []models.EmbeddedChunk, query string, threshold float64) ([]models.ScoredChunk, error) {
	if err := b.wait(ctx, "search"); err != nil {
		return nil, err
	}
	return []models.ScoredChunk{}, nil
}

type panicBackend struct{}

func (panicBackend) BuildIndex(context.Context, []models.TextFragment) ([]models.EmbeddedChunk, error) {
	panic("index exploded")
}

func (panicBackend) Search(context.Context, []models.EmbeddedChunk, string, float64) ([]models.ScoredChunk, error) {
	similarity.Cosine(models.Vector{1}, models.Vector{1, 2})
	return nil, nil
}

// Package retrieval builds the per-page embedding index and ranks it against
// queries.
package retrieval

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/xhad/pagesearch/internal/models"
	"github.com/xhad/pagesearch/internal/types"
	"github.com/xhad/pagesearch/pkg/config"
	"github.com/xhad/pagesearch/pkg/processor"
	"github.com/xhad/pagesearch/pkg/similarity"
	"golang.org/x/sync/errgroup"
)

// Backend is what a Session drives. Coordinator implements it in-process and
// protocol.Client implements it across a channel.
type Backend interface {
	BuildIndex(ctx context.Context, fragments []models.TextFragment) ([]models.EmbeddedChunk, error)
	Search(ctx context.Context, index []models.EmbeddedChunk, query string, threshold float64) ([]models.ScoredChunk, error)
}

var _ Backend = (*Coordinator)(nil)

type CoordinatorConfig struct {
	MaxWords    int
	Overlap     int
	Concurrency int // concurrent embed calls during BuildIndex
	MaxResults  int // 0 keeps every result above the threshold
	Logger      *log.Logger
}

// ConfigFromApp maps the application config onto a CoordinatorConfig.
func ConfigFromApp(cfg *config.Config) CoordinatorConfig {
	return CoordinatorConfig{
		MaxWords:    cfg.Chunker.MaxWords,
		Overlap:     cfg.Chunker.Overlap,
		Concurrency: cfg.Index.Concurrency,
		MaxResults:  cfg.Search.MaxResults,
	}
}

type Coordinator struct {
	embedder    types.Embedder
	chunker     *processor.Processor
	concurrency int
	maxResults  int
	logger      *log.Logger
}

func NewCoordinator(embedder types.Embedder, cfg CoordinatorConfig) (*Coordinator, error) {
	chunker, err := processor.NewWithConfig(processor.ProcessorConfig{
		MaxWords: cfg.MaxWords,
		Overlap:  cfg.Overlap,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	return &Coordinator{
		embedder:    embedder,
		chunker:     chunker,
		concurrency: cfg.Concurrency,
		maxResults:  cfg.MaxResults,
		logger:      cfg.Logger,
	}, nil
}

// BuildIndex chunks the fragments and embeds every chunk. The result keeps
// chunk order regardless of the order embed calls complete in. Any failed
// call fails the whole batch.
func (c *Coordinator) BuildIndex(ctx context.Context, fragments []models.TextFragment) ([]models.EmbeddedChunk, error) {
	if len(fragments) == 0 {
		return []models.EmbeddedChunk{}, nil
	}

	chunks := c.chunker.Process(fragments)
	index := make([]models.EmbeddedChunk, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i, chunk := range chunks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			vec, err := c.embedder.Embed(gctx, chunk.Text)
			if err != nil {
				return fmt.Errorf("%w: chunk %d (%s): %w", ErrEmbeddingFailure, i, chunk.ID, err)
			}
			index[i] = models.EmbeddedChunk{Chunk: chunk, Embedding: vec}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailure, err)
	}

	for i := 1; i < len(index); i++ {
		if len(index[i].Embedding) != len(index[0].Embedding) {
			return nil, fmt.Errorf("%w: provider returned %d and %d dimensional vectors",
				ErrEmbeddingFailure, len(index[0].Embedding), len(index[i].Embedding))
		}
	}

	c.logger.Printf("indexed %d fragments into %d chunks", len(fragments), len(index))
	return index, nil
}

// Search embeds query and returns the chunks scoring above threshold, best
// first. Equal scores keep index order.
func (c *Coordinator) Search(ctx context.Context, index []models.EmbeddedChunk, query string, threshold float64) ([]models.ScoredChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	queryVec, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %w", ErrEmbeddingFailure, err)
	}

	for i := range index {
		if len(index[i].Embedding) != len(queryVec) {
			return nil, fmt.Errorf("%w: chunk %d has %d dimensions, query has %d",
				ErrDimensionMismatch, i, len(index[i].Embedding), len(queryVec))
		}
	}

	results := Rank(index, queryVec, threshold)
	if c.maxResults > 0 && len(results) > c.maxResults {
		results = results[:c.maxResults]
	}
	return results, nil
}

// Rank scores every chunk against queryVec, drops scores at or below
// threshold and sorts the rest by descending score. Vectors must share
// queryVec's dimension.
func Rank(index []models.EmbeddedChunk, queryVec models.Vector, threshold float64) []models.ScoredChunk {
	results := make([]models.ScoredChunk, 0, len(index))
	for _, chunk := range index {
		score := similarity.Cosine(queryVec, chunk.Embedding)
		if score > threshold {
			results = append(results, models.ScoredChunk{EmbeddedChunk: chunk, Score: score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

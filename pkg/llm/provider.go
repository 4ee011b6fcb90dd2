package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/xhad/pagesearch/internal/models"
	"github.com/xhad/pagesearch/internal/types"
	"github.com/xhad/pagesearch/pkg/config"
	"github.com/xhad/pagesearch/pkg/similarity"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// ProviderError reports that the embedding model could not be loaded or that
// an inference call failed.
type ProviderError struct {
	Op  string // "load" or "embed"
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("embedding provider %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

var errEmptyEmbedding = errors.New("empty embedding")

var _ types.Embedder = (*Provider)(nil)

// LoadFunc creates the underlying embedder. It may be slow (model download,
// warm-up) and is called at most once per successful load.
type LoadFunc func(ctx context.Context) (types.Embedder, error)

// Provider is a lazily loaded embedder shared by every session in the process.
// The first Embed call triggers the load; concurrent callers wait on the same
// in-flight load. A failed load is not cached, the next call retries it.
type Provider struct {
	load    LoadFunc
	limiter *rate.Limiter

	group singleflight.Group
	mu    sync.RWMutex
	inst  types.Embedder
	loads atomic.Int32
}

type ProviderOption func(*Provider)

// WithRateLimit caps embed calls per second. Zero or less means unlimited.
func WithRateLimit(perSecond float64) ProviderOption {
	return func(p *Provider) {
		if perSecond > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

func NewProvider(load LoadFunc, opts ...ProviderOption) *Provider {
	p := &Provider{
		load:    load,
		limiter: rate.NewLimiter(rate.Inf, 0),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Embed returns the embedding of text, loading the model first if needed.
func (p *Provider) Embed(ctx context.Context, text string) (models.Vector, error) {
	inst, err := p.instance(ctx)
	if err != nil {
		return nil, err
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	vec, err := inst.Embed(ctx, text)
	if err != nil {
		return nil, &ProviderError{Op: "embed", Err: err}
	}
	if len(vec) == 0 {
		return nil, &ProviderError{Op: "embed", Err: errEmptyEmbedding}
	}
	if !isFinite(vec) {
		return nil, &ProviderError{Op: "embed", Err: errors.New("embedding contains NaN or Inf")}
	}
	return vec, nil
}

// Loaded reports whether the model has been loaded.
func (p *Provider) Loaded() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.inst != nil
}

// Loads returns how many times the load function has been invoked.
func (p *Provider) Loads() int {
	return int(p.loads.Load())
}

func (p *Provider) instance(ctx context.Context) (types.Embedder, error) {
	p.mu.RLock()
	inst := p.inst
	p.mu.RUnlock()
	if inst != nil {
		return inst, nil
	}

	ch := p.group.DoChan("load", func() (interface{}, error) {
		p.mu.RLock()
		inst := p.inst
		p.mu.RUnlock()
		if inst != nil {
			return inst, nil
		}

		p.loads.Add(1)
		// The load outlives the caller that triggered it; other callers may
		// be waiting on it.
		inst, err := p.load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, &ProviderError{Op: "load", Err: err}
		}
		if inst == nil {
			return nil, &ProviderError{Op: "load", Err: errors.New("loader returned no embedder")}
		}

		p.mu.Lock()
		p.inst = inst
		p.mu.Unlock()
		return inst, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(types.Embedder), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// FromConfig returns the LoadFunc for the configured backend.
func FromConfig(cfg config.EmbedderConfig) LoadFunc {
	return func(ctx context.Context) (types.Embedder, error) {
		var emb types.Embedder
		switch cfg.Type {
		case "hash", "":
			emb = NewHashEmbedder(cfg.Dimension)
		case "ollama":
			e, err := NewEmbedderWithConfig(EmbedderConfig{Model: cfg.Model, BaseURL: cfg.BaseURL})
			if err != nil {
				return nil, err
			}
			emb = e
		case "openai":
			e, err := NewOpenAIEmbedder(OpenAIConfig{
				Model:      cfg.Model,
				BaseURL:    cfg.BaseURL,
				APIKeyEnv:  cfg.APIKeyEnv,
				Dimensions: cfg.Dimension,
			})
			if err != nil {
				return nil, err
			}
			emb = e
		default:
			return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
		}

		if cfg.Normalize {
			emb = normalized{emb}
		}
		return emb, nil
	}
}

type normalized struct {
	types.Embedder
}

func (n normalized) Embed(ctx context.Context, text string) (models.Vector, error) {
	vec, err := n.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return similarity.Normalize(vec), nil
}

var (
	sharedMu  sync.Mutex
	providers = map[config.EmbedderConfig]*Provider{}
)

// Shared returns the process-wide Provider for cfg, creating it on first use.
func Shared(cfg config.EmbedderConfig) *Provider {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if p, ok := providers[cfg]; ok {
		return p
	}
	p := NewProvider(FromConfig(cfg), WithRateLimit(cfg.RateLimit))
	providers[cfg] = p
	return p
}

// isFinite reports whether every component of v is a real number.
func isFinite(v models.Vector) bool {
	for _, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return false
		}
	}
	return true
}

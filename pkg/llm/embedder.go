package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/xhad/pagesearch/internal/models"
)

// EmbedderConfig configures the Ollama embedding backend.
type EmbedderConfig struct {
	Model      string
	BaseURL    string // Ollama server URL
	HTTPClient *http.Client
}

// Embedder produces embeddings with a model served by Ollama.
type Embedder struct {
	Config EmbedderConfig
	llm    *ollama.LLM
}

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	if config.Model == "" {
		config.Model = "all-minilm" // MiniLM-L6-v2, 384 dims
	}

	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}

	options := []ollama.Option{
		ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL),
	}
	if config.HTTPClient != nil {
		options = append(options, ollama.WithHTTPClient(config.HTTPClient))
	}

	llm, err := ollama.New(options...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama embedder: %w", err)
	}

	return &Embedder{
		Config: config,
		llm:    llm,
	}, nil
}

func (e *Embedder) Embed(ctx context.Context, text string) (models.Vector, error) {
	embeddings, err := e.llm.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("ollama %s: %w", e.Config.Model, err)
	}

	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, errors.New("ollama returned no embedding")
	}

	return models.Vector(embeddings[0]), nil
}

package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	openai "github.com/sashabaranov/go-openai"
	"github.com/xhad/pagesearch/internal/models"
)

type OpenAIConfig struct {
	Model      string
	BaseURL    string
	APIKeyEnv  string
	Dimensions int
	HTTPClient *http.Client
}

// OpenAIEmbedder talks to any OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dims   int
}

func NewOpenAIEmbedder(config OpenAIConfig) (*OpenAIEmbedder, error) {
	if config.APIKeyEnv == "" {
		config.APIKeyEnv = "OPENAI_API_KEY"
	}
	key := os.Getenv(config.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("%s environment variable not set", config.APIKeyEnv)
	}
	if config.Model == "" {
		config.Model = "text-embedding-3-small"
	}

	clientConfig := openai.DefaultConfig(key)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	if config.HTTPClient != nil {
		clientConfig.HTTPClient = config.HTTPClient
	}

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientConfig),
		model:  config.Model,
		dims:   config.Dimensions,
	}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) (models.Vector, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model:      openai.EmbeddingModel(e.model),
		Input:      []string{text},
		Dimensions: e.dims,
	})
	if err != nil {
		return nil, fmt.Errorf("openai %s: %w", e.model, err)
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding data returned from API")
	}

	raw := resp.Data[0].Embedding
	v := make(models.Vector, len(raw))
	for i := range raw {
		v[i] = float32(raw[i])
	}
	return v, nil
}

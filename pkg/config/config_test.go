package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configData := `
embedder:
  type: "ollama"
  model: "nomic-embed-text"
  base_url: "http://localhost:11434"
  rate_limit: 5

chunker:
  max_words: 40
  overlap: 0

search:
  threshold: 0.35
  max_results: 10

index:
  concurrency: 8

scraper:
  timeout: 10s
  rate_limit: 1.5

highlight:
  duration: 2s

server:
  addr: ":9090"
  path: "/embed"
  max_message_bytes: 1048576
`
	err := os.WriteFile(configPath, []byte(configData), 0644)
	require.NoError(t, err)

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "ollama", config.Embedder.Type)
	assert.Equal(t, "nomic-embed-text", config.Embedder.Model)
	assert.Equal(t, 5.0, config.Embedder.RateLimit)
	assert.Equal(t, 40, config.Chunker.MaxWords)
	assert.Equal(t, 0, config.Chunker.Overlap, "explicit zero overlap must be kept")
	assert.Equal(t, 0.35, config.Search.Threshold)
	assert.Equal(t, 10, config.Search.MaxResults)
	assert.Equal(t, 8, config.Index.Concurrency)
	assert.Equal(t, 10*time.Second, config.Scraper.Timeout)
	assert.Equal(t, 2*time.Second, config.Highlight.Duration)
	assert.Equal(t, ":9090", config.Server.Addr)
	assert.Equal(t, "/embed", config.Server.Path)
	assert.Equal(t, int64(1<<20), config.Server.MaxMessageBytes)

	// Untouched sections keep their defaults
	assert.Equal(t, 6, config.UI.PreviewWords)
	assert.True(t, config.Embedder.Normalize)
	assert.Empty(t, config.Validate())
}

func TestLoadConfigDefaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PAGESEARCH_EMBEDDER", "")
	t.Setenv("PORT", "")

	config, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "hash", config.Embedder.Type)
	assert.Equal(t, DefaultMaxWords, config.Chunker.MaxWords)
	assert.Equal(t, DefaultOverlap, config.Chunker.Overlap)
	assert.Equal(t, DefaultThreshold, config.Search.Threshold)
	assert.Equal(t, 3800*time.Millisecond, config.Highlight.Duration)
	assert.Equal(t, "/doc-embed", config.Server.Path)
	assert.Equal(t, int64(DefaultMaxMessageBytes), config.Server.MaxMessageBytes)
	assert.Empty(t, config.Validate())
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunker: [not, a, map"), 0644))
	_, err = LoadConfig(path)
	assert.ErrorContains(t, err, "error parsing config file")
}

func TestApplyDefaultsPerEmbedder(t *testing.T) {
	config := &Config{Embedder: EmbedderConfig{Type: "openai"}}
	applyDefaults(config)
	assert.Equal(t, "text-embedding-3-small", config.Embedder.Model)
	assert.Equal(t, "https://api.openai.com/v1", config.Embedder.BaseURL)
	assert.Equal(t, "OPENAI_API_KEY", config.Embedder.APIKeyEnv)

	config = &Config{Embedder: EmbedderConfig{Type: "ollama"}}
	applyDefaults(config)
	assert.Equal(t, "http://localhost:11434", config.Embedder.BaseURL)
	assert.NotEmpty(t, config.Embedder.Model)
}

func TestUseEmbedder(t *testing.T) {
	config := defaultConfig()
	config.UseEmbedder("ollama")
	assert.Equal(t, "http://localhost:11434", config.Embedder.BaseURL)

	config.UseEmbedder("openai")
	assert.Equal(t, "https://api.openai.com/v1", config.Embedder.BaseURL)
	assert.Equal(t, "text-embedding-3-small", config.Embedder.Model)

	config.Embedder.Model = "custom"
	config.UseEmbedder("openai")
	assert.Equal(t, "custom", config.Embedder.Model, "same backend keeps its settings")
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(c *Config)
		errorMessages []string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name: "invalid chunker",
			mutate: func(c *Config) {
				c.Chunker.MaxWords = 5
				c.Chunker.Overlap = 5
			},
			errorMessages: []string{
				"chunker.overlap: overlap must be non-negative and less than max_words",
			},
		},
		{
			name: "invalid everything",
			mutate: func(c *Config) {
				c.Embedder.Type = "word2vec"
				c.Embedder.RateLimit = -1
				c.Chunker.MaxWords = 0
				c.Search.Threshold = 1.5
				c.Index.Concurrency = 0
				c.Server.Path = "doc-embed"
				c.Server.OrchestratorURL = "http://localhost:8080"
			},
			errorMessages: []string{
				`embedder.type: unknown embedder type: "word2vec"`,
				"embedder.rate_limit: rate_limit must not be negative",
				"chunker.max_words: max_words must be positive",
				"chunker.overlap: overlap must be non-negative and less than max_words",
				"search.threshold: threshold must be between -1 and 1",
				"index.concurrency: concurrency must be positive",
				"server.path: path must start with /",
				"server.orchestrator_url: orchestrator URL must be a ws:// or wss:// URL",
			},
		},
		{
			name: "zero message limit",
			mutate: func(c *Config) {
				c.Server.MaxMessageBytes = 0
			},
			errorMessages: []string{
				"server.max_message_bytes: max_message_bytes must be positive",
			},
		},
		{
			name: "remote embedder without url",
			mutate: func(c *Config) {
				c.Embedder.Type = "ollama"
				c.Embedder.BaseURL = "localhost"
			},
			errorMessages: []string{
				"embedder.base_url: invalid base URL",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := defaultConfig()
			tt.mutate(config)

			errors := config.Validate()
			require.Len(t, errors, len(tt.errorMessages))
			for i, msg := range tt.errorMessages {
				assert.Equal(t, msg, errors[i].Error())
			}
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("PAGESEARCH_EMBEDDER", "ollama")
	t.Setenv("OLLAMA_BASE_URL", "http://env-ollama:11434")
	t.Setenv("PAGESEARCH_ORCHESTRATOR_URL", "ws://env-host:8080/doc-embed")
	t.Setenv("PORT", "9999")

	config := defaultConfig()
	mergeWithEnv(config)

	assert.Equal(t, "ollama", config.Embedder.Type)
	assert.Equal(t, "http://env-ollama:11434", config.Embedder.BaseURL)
	assert.Equal(t, "ws://env-host:8080/doc-embed", config.Server.OrchestratorURL)
	assert.Equal(t, ":9999", config.Server.Addr)
}

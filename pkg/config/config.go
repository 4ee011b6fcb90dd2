package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type EmbedderConfig struct {
	Type      string  `yaml:"type"`
	Model     string  `yaml:"model"`
	BaseURL   string  `yaml:"base_url"`
	APIKeyEnv string  `yaml:"api_key_env"`
	Dimension int     `yaml:"dimension"`
	RateLimit float64 `yaml:"rate_limit"` // embed calls per second, 0 = unlimited
	Normalize bool    `yaml:"normalize"`
}

type ChunkerConfig struct {
	MaxWords int `yaml:"max_words"`
	Overlap  int `yaml:"overlap"`
}

type SearchConfig struct {
	Threshold  float64 `yaml:"threshold"`
	MaxResults int     `yaml:"max_results"`
}

type IndexConfig struct {
	Concurrency int `yaml:"concurrency"`
}

type ScraperConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"`
	UserAgent string        `yaml:"user_agent"`
}

type HighlightConfig struct {
	Duration time.Duration `yaml:"duration"`
}

type ServerConfig struct {
	Addr            string `yaml:"addr"`
	Path            string `yaml:"path"`
	OrchestratorURL string `yaml:"orchestrator_url"`
	MaxMessageBytes int64  `yaml:"max_message_bytes"` // largest websocket frame accepted
}

type UIConfig struct {
	PreviewWords int `yaml:"preview_words"`
}

type Config struct {
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Search    SearchConfig    `yaml:"search"`
	Index     IndexConfig     `yaml:"index"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Highlight HighlightConfig `yaml:"highlight"`
	Server    ServerConfig    `yaml:"server"`
	UI        UIConfig        `yaml:"ui"`
}

const (
	DefaultMaxWords  = 20
	DefaultOverlap   = 5
	DefaultThreshold = 0.2

	DefaultMaxMessageBytes = 16 << 20
)

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"pagesearch.yaml",
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/pagesearch/config.yaml"),
			"/etc/pagesearch/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Decode over the defaults so keys missing from the file keep them and an
	// explicit zero (overlap: 0) survives.
	config := defaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(config)
	applyDefaults(config)

	return config, nil
}

func getDefaultConfig() *Config {
	config := defaultConfig()
	mergeWithEnv(config)
	applyDefaults(config)
	return config
}

func defaultConfig() *Config {
	return &Config{
		Embedder: EmbedderConfig{
			Type:      "hash",
			Dimension: 384,
			Normalize: true,
		},
		Chunker: ChunkerConfig{MaxWords: DefaultMaxWords, Overlap: DefaultOverlap},
		Search:  SearchConfig{Threshold: DefaultThreshold},
		Index:   IndexConfig{Concurrency: 4},
		Scraper: ScraperConfig{
			Timeout:   30 * time.Second,
			RateLimit: 2.0,
		},
		Highlight: HighlightConfig{Duration: 3800 * time.Millisecond},
		Server:    ServerConfig{Addr: ":8080", Path: "/doc-embed", MaxMessageBytes: DefaultMaxMessageBytes},
		UI:        UIConfig{PreviewWords: 6},
	}
}

// UseEmbedder switches the embedder backend, dropping model and URL settings
// that belonged to the previous one.
func (c *Config) UseEmbedder(typ string) {
	if typ == c.Embedder.Type {
		return
	}
	c.Embedder.Type = typ
	c.Embedder.Model = ""
	c.Embedder.BaseURL = ""
	c.Embedder.APIKeyEnv = ""
	applyDefaults(c)
}

func applyDefaults(config *Config) {
	if config.Embedder.Type == "" {
		config.Embedder.Type = "hash"
	}
	switch config.Embedder.Type {
	case "ollama":
		if config.Embedder.Model == "" {
			config.Embedder.Model = "all-minilm"
		}
		if config.Embedder.BaseURL == "" {
			config.Embedder.BaseURL = "http://localhost:11434"
		}
	case "openai":
		if config.Embedder.Model == "" {
			config.Embedder.Model = "text-embedding-3-small"
		}
		if config.Embedder.BaseURL == "" {
			config.Embedder.BaseURL = "https://api.openai.com/v1"
		}
		if config.Embedder.APIKeyEnv == "" {
			config.Embedder.APIKeyEnv = "OPENAI_API_KEY"
		}
	}

	if config.Scraper.UserAgent == "" {
		config.Scraper.UserAgent = "pagesearch/1.0"
	}
	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	if config.Server.Path == "" {
		config.Server.Path = "/doc-embed"
	}
}

func mergeWithEnv(config *Config) {
	if typ := os.Getenv("PAGESEARCH_EMBEDDER"); typ != "" {
		config.Embedder.Type = typ
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" && config.Embedder.Type == "ollama" {
		config.Embedder.BaseURL = baseURL
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" && config.Embedder.Type == "openai" {
		config.Embedder.BaseURL = baseURL
	}
	if url := os.Getenv("PAGESEARCH_ORCHESTRATOR_URL"); url != "" {
		config.Server.OrchestratorURL = url
	}
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Addr = ":" + port
	}
}

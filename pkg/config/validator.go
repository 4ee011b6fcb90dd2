package config

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate embedder config
	switch c.Embedder.Type {
	case "hash":
		if c.Embedder.Dimension < 1 {
			errors = append(errors, ValidationError{
				Field:   "embedder.dimension",
				Message: "dimension must be positive for the hash embedder",
			})
		}
	case "ollama", "openai":
		if c.Embedder.BaseURL == "" {
			errors = append(errors, ValidationError{
				Field:   "embedder.base_url",
				Message: "base URL is required",
			})
		} else if u, err := url.Parse(c.Embedder.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "embedder.base_url",
				Message: "invalid base URL",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "embedder.type",
			Message: fmt.Sprintf("unknown embedder type: %q", c.Embedder.Type),
		})
	}

	if c.Embedder.RateLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "embedder.rate_limit",
			Message: "rate_limit must not be negative",
		})
	}

	// Validate chunker config
	if c.Chunker.MaxWords < 1 {
		errors = append(errors, ValidationError{
			Field:   "chunker.max_words",
			Message: "max_words must be positive",
		})
	}

	if c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.MaxWords {
		errors = append(errors, ValidationError{
			Field:   "chunker.overlap",
			Message: "overlap must be non-negative and less than max_words",
		})
	}

	// Validate search config
	if c.Search.Threshold < -1 || c.Search.Threshold > 1 {
		errors = append(errors, ValidationError{
			Field:   "search.threshold",
			Message: "threshold must be between -1 and 1",
		})
	}

	if c.Search.MaxResults < 0 {
		errors = append(errors, ValidationError{
			Field:   "search.max_results",
			Message: "max_results must not be negative",
		})
	}

	if c.Index.Concurrency < 1 {
		errors = append(errors, ValidationError{
			Field:   "index.concurrency",
			Message: "concurrency must be positive",
		})
	}

	// Validate scraper config
	if c.Scraper.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.timeout",
			Message: "timeout must be positive",
		})
	}

	if c.Scraper.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	if c.Highlight.Duration <= 0 {
		errors = append(errors, ValidationError{
			Field:   "highlight.duration",
			Message: "duration must be positive",
		})
	}

	// Validate server config
	if !strings.HasPrefix(c.Server.Path, "/") {
		errors = append(errors, ValidationError{
			Field:   "server.path",
			Message: "path must start with /",
		})
	}

	if c.Server.MaxMessageBytes <= 0 {
		errors = append(errors, ValidationError{
			Field:   "server.max_message_bytes",
			Message: "max_message_bytes must be positive",
		})
	}

	if c.Server.OrchestratorURL != "" {
		u, err := url.Parse(c.Server.OrchestratorURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			errors = append(errors, ValidationError{
				Field:   "server.orchestrator_url",
				Message: "orchestrator URL must be a ws:// or wss:// URL",
			})
		}
	}

	return errors
}

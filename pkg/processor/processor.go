package processor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xhad/pagesearch/internal/models"
)

// ErrInvalidConfig is matched by every ConfigurationError.
var ErrInvalidConfig = errors.New("invalid chunker configuration")

// ConfigurationError reports chunk parameters with a non-positive stride.
type ConfigurationError struct {
	MaxWords int
	Overlap  int
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid chunker configuration: max words %d, overlap %d (need 0 <= overlap < max words)", e.MaxWords, e.Overlap)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrInvalidConfig
}

type ProcessorConfig struct {
	MaxWords int
	Overlap  int
}

type Processor struct {
	config ProcessorConfig
}

// NewWithConfig validates the window parameters. Unlike most constructors in
// this repo it does not substitute defaults: zero overlap is meaningful.
func NewWithConfig(config ProcessorConfig) (*Processor, error) {
	if config.MaxWords <= 0 || config.Overlap < 0 || config.MaxWords-config.Overlap <= 0 {
		return nil, &ConfigurationError{MaxWords: config.MaxWords, Overlap: config.Overlap}
	}
	return &Processor{config: config}, nil
}

// Process chunks every fragment in order. Fragments of at most MaxWords words
// pass through unchanged; whitespace-only fragments produce nothing.
func (p *Processor) Process(fragments []models.TextFragment) []models.Chunk {
	chunks := make([]models.Chunk, 0, len(fragments))

	for _, fragment := range fragments {
		words := strings.Fields(fragment.Text)
		if len(words) == 0 {
			continue
		}

		if len(words) <= p.config.MaxWords {
			chunks = append(chunks, models.Chunk{TextFragment: fragment})
			continue
		}

		for _, text := range p.window(words) {
			chunk := models.Chunk{TextFragment: fragment}
			chunk.Text = text
			chunks = append(chunks, chunk)
		}
	}

	return chunks
}

// Split returns the word windows of text.
func (p *Processor) Split(text string) []string {
	return p.window(strings.Fields(text))
}

func (p *Processor) window(words []string) []string {
	var chunks []string
	stride := p.config.MaxWords - p.config.Overlap

	for i := 0; i < len(words); i += stride {
		end := i + p.config.MaxWords
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], " "))
		if end == len(words) {
			break
		}
	}

	return chunks
}

// Chunk is a convenience wrapper around NewWithConfig and Split.
func Chunk(text string, maxWords, overlap int) ([]string, error) {
	p, err := NewWithConfig(ProcessorConfig{MaxWords: maxWords, Overlap: overlap})
	if err != nil {
		return nil, err
	}
	return p.Split(text), nil
}

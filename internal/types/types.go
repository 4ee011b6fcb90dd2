package types

import (
	"context"

	"github.com/xhad/pagesearch/internal/models"
)

// Core interfaces
type Embedder interface {
	Embed(ctx context.Context, text string) (models.Vector, error)
}

// PageSource yields the heading and paragraph fragments of one page in
// document order.
type PageSource interface {
	Fragments(ctx context.Context) ([]models.TextFragment, error)
}

// Highlighter marks the element behind a reference handle. A stale handle is
// a no-op and reports false.
type Highlighter interface {
	Highlight(handle string) bool
	Clear()
}

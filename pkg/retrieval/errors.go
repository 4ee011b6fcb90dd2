package retrieval

import (
	"errors"
	"fmt"
)

var (
	// ErrEmbeddingFailure wraps any failed embedding call inside BuildIndex or
	// Search. The operation produced no partial result.
	ErrEmbeddingFailure = errors.New("embedding failed")

	// ErrPrecondition marks programmer errors: calls in the wrong session
	// state or vectors of different dimensions.
	ErrPrecondition = errors.New("precondition violation")

	// ErrBackendGone is wrapped by backends whose transport went away. A
	// session treats it as terminal.
	ErrBackendGone = errors.New("backend gone")
)

var (
	ErrDimensionMismatch = fmt.Errorf("%w: vector dimension mismatch", ErrPrecondition)
	ErrEmptyQuery        = fmt.Errorf("%w: empty query", ErrPrecondition)
	ErrNotReady          = fmt.Errorf("%w: index not ready", ErrPrecondition)
	ErrBusy              = fmt.Errorf("%w: another operation is in flight", ErrPrecondition)
	ErrAlreadyIndexed    = fmt.Errorf("%w: session already indexed", ErrPrecondition)
	ErrSessionClosed     = fmt.Errorf("%w: session closed", ErrPrecondition)
)

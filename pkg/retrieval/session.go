package retrieval

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/xhad/pagesearch/internal/models"
	"github.com/xhad/pagesearch/pkg/config"
)

type State int

const (
	Uninitialized State = iota
	Indexing
	Ready
	Searching
	Closed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Indexing:
		return "indexing"
	case Ready:
		return "ready"
	case Searching:
		return "searching"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session owns one page's index and serialises the operations on it. At most
// one BuildIndex or Search runs at a time; everything else is rejected with an
// error matching ErrPrecondition.
type Session struct {
	ID string

	backend   Backend
	threshold float64
	onChange  func(from, to State)
	terminal  func(error) bool
	logger    *log.Logger

	mu     sync.Mutex
	state  State
	index  []models.EmbeddedChunk
	cancel context.CancelFunc
}

type SessionOption func(*Session)

func WithThreshold(threshold float64) SessionOption {
	return func(s *Session) { s.threshold = threshold }
}

// WithStateListener registers fn to run after every state change. It is called
// without the session lock held.
func WithStateListener(fn func(from, to State)) SessionOption {
	return func(s *Session) { s.onChange = fn }
}

// WithTerminalErrors overrides which backend errors close the session.
func WithTerminalErrors(fn func(error) bool) SessionOption {
	return func(s *Session) { s.terminal = fn }
}

func WithLogger(logger *log.Logger) SessionOption {
	return func(s *Session) { s.logger = logger }
}

// SessionOptionsFromApp returns the options implied by the application config.
func SessionOptionsFromApp(cfg *config.Config) []SessionOption {
	return []SessionOption{WithThreshold(cfg.Search.Threshold)}
}

func NewSession(backend Backend, opts ...SessionOption) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		backend:   backend,
		threshold: config.DefaultThreshold,
		terminal: func(err error) bool {
			return errors.Is(err, ErrBackendGone)
		},
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Index returns the built index, or nil before the session is ready.
func (s *Session) Index() []models.EmbeddedChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// BuildIndex embeds the page once. It is only valid on a fresh session; a
// failed attempt returns the session to Uninitialized so it can be retried.
// It returns the number of indexed chunks.
func (s *Session) BuildIndex(ctx context.Context, fragments []models.TextFragment) (int, error) {
	opCtx, err := s.begin(ctx, Indexing)
	if err != nil {
		return 0, err
	}

	index, err := s.backend.BuildIndex(opCtx, fragments)

	s.mu.Lock()
	from, to, closedErr := s.finish()
	if closedErr == nil {
		switch {
		case err == nil:
			s.index = index
			s.state = Ready
		case s.terminal(err):
			s.state = Closed
			s.index = nil
		default:
			s.state = Uninitialized
		}
		to = s.state
	}
	s.mu.Unlock()

	s.notify(from, to)
	if closedErr != nil {
		return 0, closedErr
	}
	if err != nil {
		s.logger.Printf("session %s: build index: %v", s.ID, err)
		return 0, err
	}
	return len(index), nil
}

// Search ranks the index against query using the session threshold.
func (s *Session) Search(ctx context.Context, query string) ([]models.ScoredChunk, error) {
	return s.SearchThreshold(ctx, query, s.threshold)
}

func (s *Session) SearchThreshold(ctx context.Context, query string, threshold float64) ([]models.ScoredChunk, error) {
	opCtx, err := s.begin(ctx, Searching)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	index := s.index
	s.mu.Unlock()

	results, err := s.backend.Search(opCtx, index, query, threshold)

	s.mu.Lock()
	from, to, closedErr := s.finish()
	if closedErr == nil {
		if err != nil && s.terminal(err) {
			s.state = Closed
			s.index = nil
		} else {
			s.state = Ready
		}
		to = s.state
	}
	s.mu.Unlock()

	s.notify(from, to)
	if closedErr != nil {
		return nil, closedErr
	}
	if err != nil {
		s.logger.Printf("session %s: search: %v", s.ID, err)
		return nil, err
	}
	return results, nil
}

// Close cancels any in-flight operation and releases the index. It is safe to
// call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	from := s.state
	if from == Closed {
		s.mu.Unlock()
		return
	}
	s.state = Closed
	s.index = nil
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.notify(from, Closed)
}

// begin moves the session into the operation state op, checking the
// transition is allowed.
func (s *Session) begin(ctx context.Context, op State) (context.Context, error) {
	s.mu.Lock()
	from := s.state

	var err error
	switch {
	case from == Closed:
		err = ErrSessionClosed
	case from == Indexing || from == Searching:
		err = ErrBusy
	case op == Indexing && from != Uninitialized:
		err = ErrAlreadyIndexed
	case op == Searching && from != Ready:
		err = ErrNotReady
	}
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	opCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state = op
	s.mu.Unlock()

	s.notify(from, op)
	return opCtx, nil
}

// finish releases the operation context. It must be called with s.mu held.
// If the session was closed meanwhile it reports ErrSessionClosed and the
// state is left alone.
func (s *Session) finish() (from, to State, err error) {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	from = s.state
	if from == Closed {
		return from, from, ErrSessionClosed
	}
	return from, from, nil
}

func (s *Session) notify(from, to State) {
	if from == to || s.onChange == nil {
		return
	}
	s.onChange(from, to)
}

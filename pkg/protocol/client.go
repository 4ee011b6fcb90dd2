package protocol

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/xhad/pagesearch/internal/models"
	"github.com/xhad/pagesearch/pkg/retrieval"
)

var (
	// ErrRemoteFailure is matched by every RemoteError.
	ErrRemoteFailure = errors.New("remote operation failed")

	// ErrRequestInFlight rejects a request while another of the same action
	// is still waiting for its response.
	ErrRequestInFlight = fmt.Errorf("%w: request already in flight", retrieval.ErrPrecondition)
)

var _ retrieval.Backend = (*Client)(nil)

// RemoteError carries a document_embedding_failed event back to the caller.
type RemoteError struct {
	Action  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Action, e.Message)
}

func (e *RemoteError) Is(target error) bool {
	return target == ErrRemoteFailure
}

type result struct {
	msg Message
	err error
}

type pendingCall struct {
	seq   uint64
	reply chan result

	// abandoned is set once the caller gave up waiting. The orchestrator
	// still owes a reply, so the slot stays taken until it arrives.
	abandoned bool
}

// Client is the caller side of the protocol. It implements retrieval.Backend
// so a Session can drive a remote orchestrator.
type Client struct {
	ch     Channel
	logger *log.Logger

	mu      sync.Mutex
	seq     uint64
	pending map[string]*pendingCall
	err     error

	disconnected chan struct{}
}

type ClientOption func(*Client)

func WithClientLogger(logger *log.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient starts reading events from ch. The client owns ch from here on.
func NewClient(ch Channel, opts ...ClientOption) *Client {
	c := &Client{
		ch:           ch,
		logger:       log.Default(),
		pending:      make(map[string]*pendingCall),
		disconnected: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.readLoop()
	return c
}

func (c *Client) BuildIndex(ctx context.Context, fragments []models.TextFragment) ([]models.EmbeddedChunk, error) {
	if fragments == nil {
		fragments = []models.TextFragment{}
	}
	msg, err := c.call(ctx, &CreateEmbeddingRequest{Documents: fragments})
	if err != nil {
		return nil, err
	}

	switch reply := msg.(type) {
	case *EmbeddingCompleted:
		return reply.Embeddings, nil
	case *EmbeddingFailed:
		return nil, &RemoteError{Action: ActionCreateEmbedding, Message: reply.Error}
	}
	return nil, fmt.Errorf("%w: unexpected reply %q", ErrMalformedMessage, msg.Kind())
}

func (c *Client) Search(ctx context.Context, index []models.EmbeddedChunk, query string, threshold float64) ([]models.ScoredChunk, error) {
	if index == nil {
		index = []models.EmbeddedChunk{}
	}
	msg, err := c.call(ctx, &SearchEmbeddingRequest{
		Embeddings: index,
		SearchText: query,
		Threshold:  &threshold,
	})
	if err != nil {
		return nil, err
	}

	switch reply := msg.(type) {
	case *SearchCompleted:
		return reply.Embeddings, nil
	case *EmbeddingFailed:
		return nil, &RemoteError{Action: ActionSearchEmbedding, Message: reply.Error}
	}
	return nil, fmt.Errorf("%w: unexpected reply %q", ErrMalformedMessage, msg.Kind())
}

// Disconnected is closed when the channel goes away, whether the peer closed
// it, sent PORT_DISCONNECTED or Close was called.
func (c *Client) Disconnected() <-chan struct{} {
	return c.disconnected
}

// Err returns the reason the client disconnected, or nil while connected.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) Close() error {
	err := c.ch.Close()
	c.disconnect(ErrChannelDisconnected)
	return err
}

func (c *Client) call(ctx context.Context, req Message) (Message, error) {
	action := req.Kind()

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return nil, err
	}
	if _, busy := c.pending[action]; busy {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrRequestInFlight, action)
	}
	c.seq++
	call := &pendingCall{seq: c.seq, reply: make(chan result, 1)}
	c.pending[action] = call
	c.mu.Unlock()

	frame, err := Encode(req)
	if err != nil {
		c.release(action, call)
		return nil, err
	}
	if err := c.ch.Send(ctx, frame); err != nil {
		c.release(action, call)
		return nil, err
	}

	select {
	case res := <-call.reply:
		return res.msg, res.err
	case <-ctx.Done():
		c.abandon(action, call)
		return nil, ctx.Err()
	}
}

// abandon keeps call's slot occupied so its late reply is not handed to the
// next request of the same action.
func (c *Client) abandon(action string, call *pendingCall) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending[action] == call {
		call.abandoned = true
	}
}

func (c *Client) release(action string, call *pendingCall) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending[action] == call {
		delete(c.pending, action)
	}
}

func (c *Client) readLoop() {
	for {
		frame, err := c.ch.Receive(context.Background())
		if err != nil {
			c.disconnect(err)
			return
		}

		msg, err := Decode(frame)
		if err != nil {
			c.logger.Printf("dropping event: %v", err)
			continue
		}

		switch event := msg.(type) {
		case *PortDisconnected:
			c.disconnect(ErrChannelDisconnected)
			_ = c.ch.Close()
			return
		case *EmbeddingCompleted:
			c.deliver(ActionCreateEmbedding, event)
		case *SearchCompleted:
			c.deliver(ActionSearchEmbedding, event)
		case *EmbeddingFailed:
			c.deliverFailure(event)
		default:
			c.logger.Printf("dropping unexpected %s", msg.Kind())
		}
	}
}

func (c *Client) deliver(action string, msg Message) {
	c.mu.Lock()
	call, ok := c.pending[action]
	if ok {
		delete(c.pending, action)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Printf("dropping %s with no pending %s", msg.Kind(), action)
		return
	}
	if call.abandoned {
		c.logger.Printf("dropping late %s for an abandoned %s", msg.Kind(), action)
		return
	}
	call.reply <- result{msg: msg}
}

// deliverFailure routes a failure event to the oldest pending request, since
// the event does not say which request it answers.
func (c *Client) deliverFailure(msg *EmbeddingFailed) {
	c.mu.Lock()
	var (
		action string
		oldest *pendingCall
	)
	for a, call := range c.pending {
		if oldest == nil || call.seq < oldest.seq {
			action, oldest = a, call
		}
	}
	if oldest != nil {
		delete(c.pending, action)
	}
	c.mu.Unlock()

	if oldest == nil {
		c.logger.Printf("dropping failure with no pending request: %s", msg.Error)
		return
	}
	if oldest.abandoned {
		c.logger.Printf("dropping late failure for an abandoned %s: %s", action, msg.Error)
		return
	}
	oldest.reply <- result{msg: msg}
}

func (c *Client) disconnect(reason error) {
	if !errors.Is(reason, ErrChannelDisconnected) {
		reason = fmt.Errorf("%w: %v", ErrChannelDisconnected, reason)
	}

	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return
	}
	c.err = reason
	pending := c.pending
	c.pending = make(map[string]*pendingCall)
	c.mu.Unlock()

	close(c.disconnected)
	for _, call := range pending {
		call.reply <- result{err: reason}
	}
}

package protocol

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/xhad/pagesearch/pkg/config"
	"github.com/xhad/pagesearch/pkg/retrieval"
)

const noticeTimeout = 2 * time.Second

// Orchestrator answers index and search requests arriving on a Channel using
// a retrieval backend.
type Orchestrator struct {
	backend   retrieval.Backend
	threshold float64
	logger    *log.Logger
}

type OrchestratorOption func(*Orchestrator)

// WithDefaultThreshold sets the threshold used when a search request does not
// carry one.
func WithDefaultThreshold(threshold float64) OrchestratorOption {
	return func(o *Orchestrator) { o.threshold = threshold }
}

func WithOrchestratorLogger(logger *log.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = logger }
}

func NewOrchestrator(backend retrieval.Backend, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		backend:   backend,
		threshold: config.DefaultThreshold,
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Serve reads requests from ch until it disconnects or ctx is done. Each
// request is handled on its own goroutine and answered with exactly one
// terminal event. In-flight handlers are cancelled when Serve stops, and
// Serve returns only after all of them finish.
//
// A disconnected channel is a normal end of session and returns nil. If ctx
// ends first the peer is sent a PORT_DISCONNECTED notice and ctx.Err() is
// returned.
func (o *Orchestrator) Serve(ctx context.Context, ch Channel) error {
	serveCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup

	var err error
	for {
		frame, recvErr := ch.Receive(serveCtx)
		if recvErr != nil {
			if !errors.Is(recvErr, ErrChannelDisconnected) {
				err = recvErr
			}
			break
		}

		msg, decodeErr := Decode(frame)
		if decodeErr != nil {
			o.logger.Printf("rejecting frame: %v", decodeErr)
			o.send(serveCtx, ch, &EmbeddingFailed{Error: decodeErr.Error()})
			continue
		}
		if !IsRequest(msg) {
			o.logger.Printf("rejecting %s: not a request", msg.Kind())
			o.send(serveCtx, ch, &EmbeddingFailed{Error: fmt.Sprintf("unexpected message %q", msg.Kind())})
			continue
		}

		o.logger.Printf("received %s", msg.Kind())
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.handle(serveCtx, ch, msg)
		}()
	}

	cancel()
	wg.Wait()

	if err != nil {
		noticeCtx, cancelNotice := context.WithTimeout(context.Background(), noticeTimeout)
		o.send(noticeCtx, ch, &PortDisconnected{})
		cancelNotice()
	} else {
		o.logger.Printf("port disconnected")
	}
	_ = ch.Close()
	return err
}

func (o *Orchestrator) handle(ctx context.Context, ch Channel, msg Message) {
	var reply Message
	defer func() {
		if r := recover(); r != nil {
			o.logger.Printf("%s handler panicked: %v", msg.Kind(), r)
			reply = &EmbeddingFailed{Error: fmt.Sprintf("internal error: %v", r)}
		}
		o.send(ctx, ch, reply)
	}()

	reply = o.dispatch(ctx, msg)
}

func (o *Orchestrator) dispatch(ctx context.Context, msg Message) Message {
	switch req := msg.(type) {
	case *CreateEmbeddingRequest:
		index, err := o.backend.BuildIndex(ctx, req.Documents)
		if err != nil {
			o.logger.Printf("error creating document embedding: %v", err)
			return &EmbeddingFailed{Error: err.Error()}
		}
		return &EmbeddingCompleted{Embeddings: index}

	case *SearchEmbeddingRequest:
		threshold := o.threshold
		if req.Threshold != nil {
			threshold = *req.Threshold
		}
		results, err := o.backend.Search(ctx, req.Embeddings, req.SearchText, threshold)
		if err != nil {
			o.logger.Printf("error searching document embedding: %v", err)
			return &EmbeddingFailed{Error: err.Error()}
		}
		return &SearchCompleted{Embeddings: results}

	default:
		return &EmbeddingFailed{Error: fmt.Sprintf("unexpected message %q", msg.Kind())}
	}
}

func (o *Orchestrator) send(ctx context.Context, ch Channel, msg Message) {
	if err := ctx.Err(); err != nil {
		o.logger.Printf("dropping %s: %v", msg.Kind(), err)
		return
	}

	frame, err := Encode(msg)
	if err != nil {
		o.logger.Printf("error encoding %s: %v", msg.Kind(), err)
		frame, _ = Encode(&EmbeddingFailed{Error: err.Error()})
	}
	if err := ch.Send(ctx, frame); err != nil {
		o.logger.Printf("error sending %s: %v", msg.Kind(), err)
	}
}

package protocol

import (
	"context"
	"fmt"
	"sync"

	"github.com/xhad/pagesearch/pkg/retrieval"
)

// ErrChannelDisconnected is returned by every Channel operation once either
// end has gone away. It matches retrieval.ErrBackendGone so sessions treat it
// as terminal.
var ErrChannelDisconnected = fmt.Errorf("%w: channel disconnected", retrieval.ErrBackendGone)

// Channel is a bidirectional, message-framed connection. Send and Receive may
// be called concurrently with each other and with Close.
type Channel interface {
	Send(ctx context.Context, frame []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

type pipeEnd struct {
	in   <-chan []byte
	out  chan<- []byte
	done chan struct{}
	once *sync.Once
}

// Pipe returns two connected in-memory Channel ends. Closing either closes
// both.
func Pipe() (Channel, Channel) {
	ab := make(chan []byte)
	ba := make(chan []byte)
	done := make(chan struct{})
	once := &sync.Once{}

	a := &pipeEnd{in: ba, out: ab, done: done, once: once}
	b := &pipeEnd{in: ab, out: ba, done: done, once: once}
	return a, b
}

func (p *pipeEnd) Send(ctx context.Context, frame []byte) error {
	select {
	case <-p.done:
		return ErrChannelDisconnected
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	buf := append([]byte(nil), frame...)
	select {
	case p.out <- buf:
		return nil
	case <-p.done:
		return ErrChannelDisconnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEnd) Receive(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-p.in:
		return frame, nil
	case <-p.done:
		return nil, ErrChannelDisconnected
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeEnd) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

package protocol

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const closeGracePeriod = time.Second

// DefaultReadLimit caps a single incoming frame unless WithReadLimit says
// otherwise.
const DefaultReadLimit int64 = 16 << 20

// WebSocketChannel adapts a gorilla websocket connection to Channel. A single
// goroutine reads frames and writes are serialised. Close and WriteControl are
// safe to call alongside both.
type WebSocketChannel struct {
	conn      *websocket.Conn
	readLimit int64

	writeMu sync.Mutex
	frames  chan []byte
	done    chan struct{}
	once    sync.Once
}

type WebSocketOption func(*WebSocketChannel)

// WithReadLimit sets the largest frame the peer may send. A larger frame
// closes the connection.
func WithReadLimit(n int64) WebSocketOption {
	return func(c *WebSocketChannel) {
		if n > 0 {
			c.readLimit = n
		}
	}
}

func NewWebSocketChannel(conn *websocket.Conn, opts ...WebSocketOption) *WebSocketChannel {
	c := &WebSocketChannel{
		conn:      conn,
		readLimit: DefaultReadLimit,
		frames:    make(chan []byte),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	conn.SetReadLimit(c.readLimit)
	go c.readPump()
	return c
}

func (c *WebSocketChannel) readPump() {
	defer c.shutdown(false)

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		select {
		case c.frames <- data:
		case <-c.done:
			return
		}
	}
}

func (c *WebSocketChannel) Send(ctx context.Context, frame []byte) error {
	select {
	case <-c.done:
		return ErrChannelDisconnected
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	// zero clears any deadline left by an earlier Send
	deadline, _ := ctx.Deadline()
	_ = c.conn.SetWriteDeadline(deadline)

	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.shutdown(false)
		return fmt.Errorf("%w: %v", ErrChannelDisconnected, err)
	}
	return nil
}

func (c *WebSocketChannel) Receive(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-c.frames:
		return frame, nil
	case <-c.done:
		return nil, ErrChannelDisconnected
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close sends a close frame to the peer and releases the connection.
func (c *WebSocketChannel) Close() error {
	c.shutdown(true)
	return nil
}

// Done is closed once the channel is disconnected.
func (c *WebSocketChannel) Done() <-chan struct{} {
	return c.done
}

func (c *WebSocketChannel) shutdown(notifyPeer bool) {
	c.once.Do(func() {
		close(c.done)

		if notifyPeer {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		}
		_ = c.conn.Close()
	})
}

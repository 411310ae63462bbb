package devtool

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// Transport provides an abstraction for protocol frame I/O over different
// connection types. Implementations must allow one concurrent reader and one
// concurrent writer, but individual reads (or writes) are never concurrent
// with each other.
type Transport interface {
	// ReadFrame reads the next JSON protocol frame from the transport.
	// This method blocks until a complete frame is available.
	ReadFrame() (*frame, error)

	// WriteFrame writes a JSON protocol frame to the transport.
	WriteFrame(msg any) error

	// Close closes the transport, releasing any associated resources.
	// After Close is called, any blocked ReadFrame or WriteFrame calls
	// should return with an error.
	Close() error
}

// Dialer establishes a Transport to the given WebSocket URL.
// It exists so tests can substitute an in-memory transport.
type Dialer func(ctx context.Context, url string) (Transport, error)

// wsTransport implements Transport over a gorilla WebSocket connection.
type wsTransport struct {
	conn *websocket.Conn

	// writeMu protects concurrent writes to the connection
	writeMu sync.Mutex

	// closed indicates whether the transport has been closed
	closed bool
	mu     sync.Mutex
}

// DialWebSocket establishes a WebSocket connection to the given URL and
// returns a Transport. The context bounds the handshake.
func DialWebSocket(ctx context.Context, url string) (Transport, error) {
	conn, resp, dialErr := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if dialErr != nil {
		return nil, fmt.Errorf("%w: failed to dial %s: %v", ErrConnectionFailed, url, dialErr)
	}

	return NewWebSocketTransport(conn), nil
}

// NewWebSocketTransport creates a Transport backed by an established
// WebSocket connection.
func NewWebSocketTransport(conn *websocket.Conn) Transport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) ReadFrame() (*frame, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("transport is closed")
	}
	t.mu.Unlock()

	var f frame
	if readErr := t.conn.ReadJSON(&f); readErr != nil {
		return nil, fmt.Errorf("failed to read frame: %w", readErr)
	}

	return &f, nil
}

func (t *wsTransport) WriteFrame(msg any) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("transport is closed")
	}
	t.mu.Unlock()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if writeErr := t.conn.WriteJSON(msg); writeErr != nil {
		return fmt.Errorf("failed to write frame: %w", writeErr)
	}

	return nil
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}

	t.closed = true
	return t.conn.Close()
}

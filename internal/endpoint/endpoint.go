// Package endpoint abstracts a live connection handle for one endpoint role
// within a session.
package endpoint

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cr8-studio/relay/internal/model"
)

// Time allowed to write a message to the peer.
const writeWait = 10 * time.Second

// Endpoint is a live outbound channel to one side of a session. Sends are
// synchronous: a nil error means the message was handed to the transport.
type Endpoint interface {
	SendJSON(v any) error
	Close() error
}

// WS wraps a websocket connection as an Endpoint. Writes are serialized with
// a mutex because the broadcast engine and the message router may send on
// the same connection concurrently.
type WS struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

// NewWS creates an endpoint over an upgraded websocket connection.
func NewWS(conn *websocket.Conn) *WS {
	return &WS{conn: conn}
}

// SendJSON marshals v and writes it as a single text frame.
func (e *WS) SendJSON(v any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return model.ErrEndpointClosed
	}
	e.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return e.conn.WriteJSON(v)
}

// Close closes the underlying connection. Safe to call more than once.
func (e *WS) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	e.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
	return e.conn.Close()
}

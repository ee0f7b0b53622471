package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// ErrBadFrame marks a frame that arrived intact but failed to parse. Callers
// drop the frame and keep reading; only transport errors end a session.
var ErrBadFrame = errors.New("bad ws frame")

// WSConn wraps coder/websocket with thread-safe JSON frame writes. A single
// reader goroutine owns ReadEvent; writes may come from pipeline workers and
// timer callbacks concurrently.
type WSConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// DialWS connects to the Wrist WebSocket endpoint.
func DialWS(ctx context.Context, wsURL string, headers http.Header) (*WSConn, error) {
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("wristclaw: ws dial: %w", err)
	}
	conn.SetReadLimit(1 << 20) // 1MB
	return &WSConn{conn: conn}, nil
}

// ReadEvent reads and parses the next server event frame. Blocks until a
// frame arrives, the context is cancelled, or the connection closes. A frame
// that cannot be parsed returns an error matching ErrBadFrame; the connection
// is still healthy and the caller should read again.
func (c *WSConn) ReadEvent(ctx context.Context) (Event, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return Event{}, err
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("wristclaw: %w: %v", ErrBadFrame, err)
	}
	return ev, nil
}

// WriteJSON marshals v and sends it as a text frame. Thread-safe. Transient
// write failures are the caller's to swallow: the read loop is the single
// source of reconnect truth.
func (c *WSConn) WriteJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// Close sends a close frame and shuts down the connection.
func (c *WSConn) Close(code int, reason string) {
	c.conn.Close(websocket.StatusCode(code), reason) //nolint:errcheck
}

// CloseStatus extracts the close code from a read error, or -1.
func CloseStatus(err error) int {
	return int(websocket.CloseStatus(err))
}

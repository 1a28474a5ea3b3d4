package socket

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// Transport dials the desk server's websocket endpoint. The manager only
// touches this seam, so tests substitute a fake without network access.
type Transport interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Conn is one established bidirectional connection.
type Conn interface {
	// ReadMessage blocks until the next full frame or a transport error.
	ReadMessage() ([]byte, error)
	// WriteMessage sends one full frame, giving up at the deadline.
	WriteMessage(data []byte, deadline time.Time) error
	Close() error
}

// WebsocketTransport is the production Transport over gorilla/websocket.
type WebsocketTransport struct {
	dialer *websocket.Dialer
}

// NewWebsocketTransport creates a transport using the default dialer with
// a bounded handshake timeout.
func NewWebsocketTransport() *WebsocketTransport {
	d := *websocket.DefaultDialer
	d.HandshakeTimeout = 15 * time.Second
	return &WebsocketTransport{dialer: &d}
}

// Dial opens a websocket connection to url.
func (t *WebsocketTransport) Dial(ctx context.Context, url string) (Conn, error) {
	c, _, err := t.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: c}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte, deadline time.Time) error {
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

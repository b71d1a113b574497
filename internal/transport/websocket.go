package transport

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const (
	writeDeadline  = 5 * time.Second
	pongDeadline   = 60 * time.Second
	maxMessageSize = 65536
)

// WSConn wraps a gorilla websocket connection as a domain.Conn. Writes apply
// their own deadlines; Send and Ping must not be called concurrently, which
// the per-connection writer guarantees.
type WSConn struct {
	ws        *websocket.Conn
	clock     clockwork.Clock
	closeOnce sync.Once
}

// NewWSConn wraps conn and configures read limits and the pong handler.
func NewWSConn(conn *websocket.Conn, clock clockwork.Clock) *WSConn {
	c := &WSConn{ws: conn, clock: clock}
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(clock.Now().Add(pongDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(clock.Now().Add(pongDeadline))
	})
	return c
}

func (c *WSConn) Send(data []byte) error {
	_ = c.ws.SetWriteDeadline(c.clock.Now().Add(writeDeadline))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *WSConn) Ping() error {
	_ = c.ws.SetWriteDeadline(c.clock.Now().Add(writeDeadline))
	return c.ws.WriteMessage(websocket.PingMessage, nil)
}

func (c *WSConn) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.ws.Close() })
	return err
}

func (c *WSConn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

// CloseWithReason writes a normal-closure frame with reason before closing.
// Safe only when the writer goroutine has already stopped.
func (c *WSConn) CloseWithReason(reason string) error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = c.ws.SetWriteDeadline(c.clock.Now().Add(writeDeadline))
	_ = c.ws.WriteMessage(websocket.CloseMessage, msg)
	return c.Close()
}

// ReadFrame blocks until the next text frame or a read error.
func (c *WSConn) ReadFrame() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

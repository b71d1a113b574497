package domain

// Conn is a bidirectional message transport, usually a websocket. Send and
// Ping must apply their own write deadlines; both hubs treat any returned
// error as a dead connection.
type Conn interface {
	Send(data []byte) error
	Ping() error
	Close() error
	RemoteAddr() string
}

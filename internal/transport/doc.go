// Package transport adapts gorilla/websocket connections to the domain.Conn
// interface and provides the buffered per-connection writer both hubs use.
package transport

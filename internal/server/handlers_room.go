package server

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/lulajax/streamer-hub/internal/domain"
	"github.com/lulajax/streamer-hub/internal/metrics"
	"github.com/lulajax/streamer-hub/internal/transport"
)

// handleRoomSocket upgrades a room channel connection. The role handshake
// happens in-protocol: the first frame must be a join envelope, which the hub
// validates and answers.
func (s *Server) handleRoomSocket(c echo.Context) error {
	ip := c.RealIP()
	ok, reason := s.limits.Acquire(ip)
	if !ok {
		metrics.WSConnectionsRejected.WithLabelValues(string(reason)).Inc()
		return c.String(429, "Too many connections")
	}
	defer s.limits.Release(ip)

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Warn("Websocket upgrade failed", "error", err, "remote", ip)
		return nil
	}

	metrics.WSConnectionsTotal.WithLabelValues("room").Inc()
	metrics.WSConnectionsCurrent.WithLabelValues("room").Inc()
	defer metrics.WSConnectionsCurrent.WithLabelValues("room").Dec()

	conn := transport.NewWSConn(ws, s.clock)
	s.roomReadLoop(conn)
	s.roomHub.Disconnect(conn)
	return nil
}

func (s *Server) roomReadLoop(conn *transport.WSConn) {
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			return
		}

		env, err := domain.ParseEnvelope(frame)
		if err != nil {
			_ = conn.Send(domain.ErrorEnvelope("Malformed message").Encode())
			_ = conn.CloseWithReason("malformed message")
			return
		}

		switch env.Type {
		case domain.MessageJoin:
			s.roomHub.Join(conn, env.RoomID, string(env.Role), env.Token)
		case domain.MessageState:
			s.roomHub.State(conn, env.Payload)
		case domain.MessageEvent:
			s.roomHub.Event(conn, env.Payload)
		case domain.MessageHeartbeat:
			s.roomHub.Heartbeat(conn)
		default:
			_ = conn.Send(domain.ErrorEnvelope("Unsupported message type").Encode())
			_ = conn.CloseWithReason("unsupported message type")
			return
		}
	}
}

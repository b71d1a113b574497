package server

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/lulajax/streamer-hub/internal/domain"
	"github.com/lulajax/streamer-hub/internal/metrics"
	"github.com/lulajax/streamer-hub/internal/transport"
)

// handleWidgetSocket upgrades a widget subscription. The token rides in the
// path; mode comes from the query string or the token prefix. Inbound frames
// are drained and ignored, the widget channel is push-only.
func (s *Server) handleWidgetSocket(c echo.Context) error {
	token := c.Param("token")
	mode := domain.ResolveMode(c.QueryParam("mode"), token)

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

	metrics.WSConnectionsTotal.WithLabelValues("widget").Inc()
	metrics.WSConnectionsCurrent.WithLabelValues("widget").Inc()
	defer metrics.WSConnectionsCurrent.WithLabelValues("widget").Dec()

	conn := transport.NewWSConn(ws, s.clock)
	s.widgetHub.Subscribe(conn, token, mode)

	for {
		if _, err := conn.ReadFrame(); err != nil {
			break
		}
	}

	s.widgetHub.Unsubscribe(conn)
	return nil
}

package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// handleStats reports per-room relay state and connection limiter usage.
func (s *Server) handleStats(c echo.Context) error {
	rooms := s.roomHub.Stats()

	return c.JSON(http.StatusOK, map[string]any{
		"rooms": rooms,
		"connections": map[string]any{
			"current":    s.limits.Global().Current(),
			"max":        s.limits.Global().Max(),
			"unique_ips": s.limits.PerIP().UniqueIPs(),
		},
	})
}

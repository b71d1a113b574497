package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints (no auth required)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Token issuance for devices
	s.echo.POST("/api/auth/token", s.handleIssueToken)

	// Preset management (authenticated)
	api := s.echo.Group("/api", s.requireAuth)
	api.GET("/presets", s.handleListPresets)
	api.POST("/presets", s.handleCreatePreset)
	api.GET("/presets/:id", s.handleGetPreset)
	api.PUT("/presets/:id", s.handleUpdatePreset)
	api.DELETE("/presets/:id", s.handleDeletePreset)
	api.POST("/presets/:id/rotate-token", s.handleRotateWidgetToken)

	// Session lifecycle (authenticated)
	api.POST("/sessions", s.handleStartSession)
	api.GET("/sessions/:id", s.handleGetSession)
	api.POST("/sessions/:id/pause", s.handlePauseSession)
	api.POST("/sessions/:id/resume", s.handleResumeSession)
	api.POST("/sessions/:id/end", s.handleEndSession)
	api.POST("/sessions/:id/gifts", s.handleRecordGift)
	api.GET("/sessions/:id/gifts", s.handleListGifts)

	api.GET("/stats", s.handleStats)

	// Websocket channels (no CSRF, tokens are checked in-protocol)
	s.echo.GET("/ws/room", s.handleRoomSocket)
	s.echo.GET("/ws/widget/:token", s.handleWidgetSocket)
}

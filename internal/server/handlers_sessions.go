package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/lulajax/streamer-hub/internal/domain"
)

type startSessionRequest struct {
	RoomID   string `json:"roomId" validate:"required,max=128"`
	PresetID string `json:"presetId" validate:"required,uuid"`
}

type sessionResponse struct {
	ID            uuid.UUID            `json:"id"`
	RoomID        string               `json:"roomId"`
	PresetID      uuid.UUID            `json:"presetId"`
	WidgetToken   string               `json:"widgetToken"`
	GameMode      domain.GameMode      `json:"gameMode"`
	Status        domain.SessionStatus `json:"status"`
	CurrentRound  int                  `json:"currentRound"`
	TotalGifts    int64                `json:"totalGifts"`
	TotalDiamonds int64                `json:"totalDiamonds"`
	StartedAt     *time.Time           `json:"startedAt,omitempty"`
	EndedAt       *time.Time           `json:"endedAt,omitempty"`
	CreatedAt     time.Time            `json:"createdAt"`
}

func toSessionResponse(s *domain.Session) sessionResponse {
	return sessionResponse{
		ID:            s.ID,
		RoomID:        s.RoomID,
		PresetID:      s.PresetID,
		WidgetToken:   s.WidgetToken,
		GameMode:      s.GameMode,
		Status:        s.Status,
		CurrentRound:  s.CurrentRound,
		TotalGifts:    s.TotalGifts,
		TotalDiamonds: s.TotalDiamonds,
		StartedAt:     s.StartedAt,
		EndedAt:       s.EndedAt,
		CreatedAt:     s.CreatedAt,
	}
}

// handleStartSession creates a running session from a preset. The widget
// settings are snapshotted so later preset edits do not restyle a live run.
func (s *Server) handleStartSession(c echo.Context) error {
	var req startSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	presetID := uuid.MustParse(req.PresetID)

	preset, err := s.presets.Get(ctx, presetID)
	if err != nil {
		return s.presetError(c, err)
	}
	if preset.DeviceID != deviceID(c) {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "Forbidden"})
	}

	now := s.clock.Now()
	session := &domain.Session{
		ID:                     uuid.New(),
		RoomID:                 req.RoomID,
		PresetID:               preset.ID,
		WidgetToken:            domain.NewSessionToken(),
		WidgetSettingsSnapshot: preset.WidgetSettings,
		GameMode:               preset.GameMode,
		Status:                 domain.SessionRunning,
		StartedAt:              &now,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		slog.Error("Failed to create session", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to start session"})
	}

	s.publisher.Publish(domain.ChangeEvent{SessionID: session.ID.String()})
	return c.JSON(http.StatusCreated, toSessionResponse(session))
}

func (s *Server) handleGetSession(c echo.Context) error {
	session, err := s.ownedSession(c)
	if err != nil {
		return s.sessionError(c, err)
	}
	return c.JSON(http.StatusOK, toSessionResponse(session))
}

func (s *Server) handlePauseSession(c echo.Context) error {
	return s.transitionSession(c, domain.SessionPaused)
}

func (s *Server) handleResumeSession(c echo.Context) error {
	return s.transitionSession(c, domain.SessionRunning)
}

func (s *Server) handleEndSession(c echo.Context) error {
	return s.transitionSession(c, domain.SessionEnded)
}

func (s *Server) transitionSession(c echo.Context, status domain.SessionStatus) error {
	session, err := s.ownedSession(c)
	if err != nil {
		return s.sessionError(c, err)
	}

	if err := s.sessions.UpdateStatus(c.Request().Context(), session.ID, status, s.clock.Now()); err != nil {
		return s.sessionError(c, err)
	}

	s.publisher.Publish(domain.ChangeEvent{SessionID: session.ID.String()})
	session.Status = status
	return c.JSON(http.StatusOK, toSessionResponse(session))
}

// --- Gifts ---

type giftRequest struct {
	GiftID     string `json:"giftId" validate:"required,max=64"`
	GiftName   string `json:"giftName" validate:"max=128"`
	GiftIcon   string `json:"giftIcon" validate:"max=512"`
	UserID     string `json:"userId" validate:"max=128"`
	UserName   string `json:"userName" validate:"max=128"`
	AnchorID   string `json:"anchorId" validate:"max=128"`
	AnchorName string `json:"anchorName" validate:"max=128"`
	Count      int64  `json:"count" validate:"required,min=1"`
	TotalCost  int64  `json:"totalCost" validate:"min=0"`
}

func (s *Server) handleRecordGift(c echo.Context) error {
	session, err := s.ownedSession(c)
	if err != nil {
		return s.sessionError(c, err)
	}

	var req giftRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	gift := &domain.GiftRecord{
		ID:         uuid.New(),
		SessionID:  session.ID,
		GiftID:     req.GiftID,
		GiftName:   req.GiftName,
		GiftIcon:   req.GiftIcon,
		UserID:     req.UserID,
		UserName:   req.UserName,
		AnchorID:   req.AnchorID,
		AnchorName: req.AnchorName,
		Count:      req.Count,
		TotalCost:  req.TotalCost,
	}

	if err := s.gifts.Record(ctx, gift); err != nil {
		slog.Error("Failed to record gift", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to record gift"})
	}
	if err := s.sessions.AddGiftTotals(ctx, session.ID, req.Count, req.TotalCost); err != nil {
		slog.Error("Failed to update gift totals", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to update totals"})
	}

	s.publisher.Publish(domain.ChangeEvent{SessionID: session.ID.String()})
	return c.JSON(http.StatusCreated, map[string]string{"id": gift.ID.String()})
}

func (s *Server) handleListGifts(c echo.Context) error {
	session, err := s.ownedSession(c)
	if err != nil {
		return s.sessionError(c, err)
	}

	gifts, err := s.gifts.ListForSession(c.Request().Context(), session.ID)
	if err != nil {
		slog.Error("Failed to list gifts", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list gifts"})
	}

	type giftResponse struct {
		ID        uuid.UUID `json:"id"`
		GiftID    string    `json:"giftId"`
		GiftName  string    `json:"giftName,omitempty"`
		UserName  string    `json:"userName,omitempty"`
		Count     int64     `json:"count"`
		TotalCost int64     `json:"totalCost"`
		CreatedAt time.Time `json:"createdAt"`
	}

	out := make([]giftResponse, 0, len(gifts))
	for _, g := range gifts {
		out = append(out, giftResponse{
			ID:        g.ID,
			GiftID:    g.GiftID,
			GiftName:  g.GiftName,
			UserName:  g.UserName,
			Count:     g.Count,
			TotalCost: g.TotalCost,
			CreatedAt: g.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// ownedSession loads the session from the path and checks that its preset
// belongs to the authenticated device. A session whose preset was deleted is
// accessible to nobody but still renders on the widget channel.
func (s *Server) ownedSession(c echo.Context) (*domain.Session, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, errBadID
	}

	ctx := c.Request().Context()
	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	preset, err := s.presets.Get(ctx, session.PresetID)
	if err != nil {
		if errors.Is(err, domain.ErrPresetNotFound) {
			return nil, errForbidden
		}
		return nil, err
	}
	if preset.DeviceID != deviceID(c) {
		return nil, errForbidden
	}
	return session, nil
}

func (s *Server) sessionError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, errBadID):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid session id"})
	case errors.Is(err, errForbidden):
		return c.JSON(http.StatusForbidden, map[string]string{"error": "Forbidden"})
	case errors.Is(err, domain.ErrSessionNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Session not found"})
	default:
		slog.Error("Session operation failed", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal error"})
	}
}

package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/lulajax/streamer-hub/internal/domain"
)

// requireAuth validates the Bearer token and stores the device identity in
// the request context.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get("Authorization")
		token := ""
		if parts := strings.SplitN(header, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			token = parts[1]
		}
		if token == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Missing bearer token"})
		}

		claims, err := s.tokens.Verify(token)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid token"})
		}

		c.Set("deviceID", claims.DeviceID)
		return next(c)
	}
}

func deviceID(c echo.Context) string {
	id, _ := c.Get("deviceID").(string)
	return id
}

// --- Token issuance ---

type issueTokenRequest struct {
	DeviceID string `json:"deviceId" validate:"required,min=1,max=128"`
}

func (s *Server) handleIssueToken(c echo.Context) error {
	var req issueTokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	token, err := s.tokens.Sign(req.DeviceID)
	if err != nil {
		slog.Error("Failed to sign token", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to issue token"})
	}
	return c.JSON(http.StatusOK, map[string]string{"token": token})
}

// --- Presets ---

type presetRequest struct {
	Name           string          `json:"name" validate:"required,max=100"`
	GameMode       string          `json:"gameMode" validate:"required,oneof=STICKER PK FREE"`
	TargetGifts    json.RawMessage `json:"targetGifts"`
	Config         json.RawMessage `json:"config"`
	WidgetSettings json.RawMessage `json:"widgetSettings"`
	IsDefault      bool            `json:"isDefault"`
}

type presetResponse struct {
	ID             uuid.UUID       `json:"id"`
	Name           string          `json:"name"`
	GameMode       domain.GameMode `json:"gameMode"`
	TargetGifts    json.RawMessage `json:"targetGifts,omitempty"`
	Config         json.RawMessage `json:"config,omitempty"`
	WidgetSettings json.RawMessage `json:"widgetSettings,omitempty"`
	WidgetToken    string          `json:"widgetToken"`
	IsDefault      bool            `json:"isDefault"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func toPresetResponse(p *domain.Preset) presetResponse {
	return presetResponse{
		ID:             p.ID,
		Name:           p.Name,
		GameMode:       p.GameMode,
		TargetGifts:    p.TargetGifts,
		Config:         p.Config,
		WidgetSettings: p.WidgetSettings,
		WidgetToken:    p.WidgetToken,
		IsDefault:      p.IsDefault,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func (s *Server) handleListPresets(c echo.Context) error {
	presets, err := s.presets.List(c.Request().Context(), deviceID(c))
	if err != nil {
		slog.Error("Failed to list presets", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list presets"})
	}

	out := make([]presetResponse, 0, len(presets))
	for _, p := range presets {
		out = append(out, toPresetResponse(p))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleCreatePreset(c echo.Context) error {
	var req presetRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	preset := &domain.Preset{
		ID:             uuid.New(),
		Name:           req.Name,
		GameMode:       domain.GameMode(req.GameMode),
		DeviceID:       deviceID(c),
		TargetGifts:    orEmptyJSON(req.TargetGifts, `[]`),
		Config:         orEmptyJSON(req.Config, `{}`),
		WidgetSettings: orEmptyJSON(req.WidgetSettings, `{}`),
		WidgetToken:    domain.NewPresetToken(),
		IsDefault:      req.IsDefault,
	}

	if err := s.presets.Create(c.Request().Context(), preset); err != nil {
		slog.Error("Failed to create preset", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to create preset"})
	}
	return c.JSON(http.StatusCreated, toPresetResponse(preset))
}

func (s *Server) handleGetPreset(c echo.Context) error {
	preset, err := s.ownedPreset(c)
	if err != nil {
		return s.presetError(c, err)
	}
	return c.JSON(http.StatusOK, toPresetResponse(preset))
}

func (s *Server) handleUpdatePreset(c echo.Context) error {
	preset, err := s.ownedPreset(c)
	if err != nil {
		return s.presetError(c, err)
	}

	var req presetRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	preset.Name = req.Name
	preset.GameMode = domain.GameMode(req.GameMode)
	preset.TargetGifts = orEmptyJSON(req.TargetGifts, `[]`)
	preset.Config = orEmptyJSON(req.Config, `{}`)
	preset.WidgetSettings = orEmptyJSON(req.WidgetSettings, `{}`)
	preset.IsDefault = req.IsDefault

	if err := s.presets.Update(c.Request().Context(), preset); err != nil {
		return s.presetError(c, err)
	}

	s.publisher.Publish(domain.ChangeEvent{PresetID: preset.ID.String()})
	return c.JSON(http.StatusOK, toPresetResponse(preset))
}

func (s *Server) handleDeletePreset(c echo.Context) error {
	preset, err := s.ownedPreset(c)
	if err != nil {
		return s.presetError(c, err)
	}

	if err := s.presets.Delete(c.Request().Context(), preset.ID); err != nil {
		return s.presetError(c, err)
	}

	// Token event, not preset event: the row is gone and subscribers on the
	// deleted token need to learn it is now invalid.
	s.publisher.Publish(domain.ChangeEvent{Token: preset.WidgetToken})
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleRotateWidgetToken(c echo.Context) error {
	preset, err := s.ownedPreset(c)
	if err != nil {
		return s.presetError(c, err)
	}

	oldToken := preset.WidgetToken
	newToken := domain.NewPresetToken()
	if err := s.presets.RotateWidgetToken(c.Request().Context(), preset.ID, newToken); err != nil {
		return s.presetError(c, err)
	}

	// Kick subscribers still connected on the old token.
	s.publisher.Publish(domain.ChangeEvent{Token: oldToken})
	return c.JSON(http.StatusOK, map[string]string{"widgetToken": newToken})
}

func (s *Server) ownedPreset(c echo.Context) (*domain.Preset, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, errBadID
	}

	preset, err := s.presets.Get(c.Request().Context(), id)
	if err != nil {
		return nil, err
	}
	if preset.DeviceID != deviceID(c) {
		return nil, errForbidden
	}
	return preset, nil
}

var (
	errBadID     = errors.New("invalid id")
	errForbidden = errors.New("forbidden")
)

func (s *Server) presetError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, errBadID):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid preset id"})
	case errors.Is(err, errForbidden):
		return c.JSON(http.StatusForbidden, map[string]string{"error": "Forbidden"})
	case errors.Is(err, domain.ErrPresetNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Preset not found"})
	default:
		slog.Error("Preset operation failed", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal error"})
	}
}

func orEmptyJSON(raw json.RawMessage, fallback string) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(fallback)
	}
	return raw
}

package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// GameMode is the play mode a preset configures.
type GameMode string

const (
	GameModeSticker GameMode = "STICKER"
	GameModePK      GameMode = "PK"
	GameModeFree    GameMode = "FREE"
)

// Preset is a saved widget/game configuration owned by a device.
type Preset struct {
	ID             uuid.UUID
	Name           string
	GameMode       GameMode
	DeviceID       string
	TargetGifts    json.RawMessage
	Config         json.RawMessage
	WidgetSettings json.RawMessage
	WidgetToken    string
	IsDefault      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PresetRepository persists presets. Get* methods return ErrPresetNotFound
// when no row matches.
type PresetRepository interface {
	Create(ctx context.Context, preset *Preset) error
	Update(ctx context.Context, preset *Preset) error
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*Preset, error)
	GetByWidgetToken(ctx context.Context, token string) (*Preset, error)
	List(ctx context.Context, deviceID string) ([]*Preset, error)
	RotateWidgetToken(ctx context.Context, id uuid.UUID, newToken string) error
}

package domain

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
)

// Mode selects how a widget token is rendered: a static preset preview or a
// live session view.
type Mode string

const (
	ModePreset  Mode = "preset"
	ModeSession Mode = "session"
)

// Widget token prefixes. The token issuer guarantees that session-scoped
// tokens start with "sess_" and preset tokens with "wgt_"; mode inference
// relies on that convention rather than inspecting backing data.
const (
	PresetTokenPrefix  = "wgt_"
	SessionTokenPrefix = "sess_"
)

// ResolveMode picks the widget mode for a connection. An explicit recognized
// value wins; otherwise a session-issued token implies session mode; anything
// else falls back to the preset preview.
func ResolveMode(explicit, token string) Mode {
	switch Mode(explicit) {
	case ModePreset, ModeSession:
		return Mode(explicit)
	}
	if len(token) >= len(SessionTokenPrefix) && token[:len(SessionTokenPrefix)] == SessionTokenPrefix {
		return ModeSession
	}
	return ModePreset
}

// NewPresetToken issues a fresh preset widget token.
func NewPresetToken() string {
	return PresetTokenPrefix + randomHex()
}

// NewSessionToken issues a fresh session widget token.
func NewSessionToken() string {
	return SessionTokenPrefix + randomHex()
}

func randomHex() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(buf)
}

// WidgetData is the display payload pushed to widget subscribers.
type WidgetData struct {
	Token          string          `json:"token"`
	Name           string          `json:"name"`
	GameMode       GameMode        `json:"gameMode"`
	Status         string          `json:"status"`
	CurrentRound   int             `json:"currentRound,omitempty"`
	TotalGifts     int64           `json:"totalGifts"`
	TotalDiamonds  int64           `json:"totalDiamonds"`
	WidgetSettings json.RawMessage `json:"widgetSettings,omitempty"`
}

// WidgetDataProvider materializes the current display payload for a token.
// Returns ErrWidgetTokenNotFound if the token resolves to nothing.
type WidgetDataProvider interface {
	Render(ctx context.Context, token string, mode Mode) (*WidgetData, error)
}

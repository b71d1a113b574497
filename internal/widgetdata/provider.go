// Package widgetdata renders the display payload behind a widget token from
// the preset and session stores.
package widgetdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/lulajax/streamer-hub/internal/domain"
)

// StatusPreview marks payloads rendered from a preset with no live session.
const StatusPreview = "PREVIEW"

// PresetStore is the slice of the preset repository the provider reads from.
type PresetStore interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Preset, error)
	GetByWidgetToken(ctx context.Context, token string) (*domain.Preset, error)
}

// SessionStore is the slice of the session repository the provider reads from.
type SessionStore interface {
	GetByWidgetToken(ctx context.Context, token string) (*domain.Session, error)
	LatestForPreset(ctx context.Context, presetID uuid.UUID) (*domain.Session, error)
}

// Provider resolves a widget token to its current payload. Preset tokens
// render either a preview of the preset or the latest session played on it,
// depending on mode; session tokens always render that one session.
type Provider struct {
	presets  PresetStore
	sessions SessionStore
}

// NewProvider creates a provider over the given stores.
func NewProvider(presets PresetStore, sessions SessionStore) *Provider {
	return &Provider{presets: presets, sessions: sessions}
}

// Render implements domain.WidgetDataProvider. An unresolvable token returns
// domain.ErrWidgetTokenNotFound.
func (p *Provider) Render(ctx context.Context, token string, mode domain.Mode) (*domain.WidgetData, error) {
	preset, err := p.presets.GetByWidgetToken(ctx, token)
	if err == nil {
		return p.renderPreset(ctx, preset, mode)
	}
	if !errors.Is(err, domain.ErrPresetNotFound) {
		return nil, fmt.Errorf("resolving widget token: %w", err)
	}

	// Session tokens are issued per live run and are not in the preset table.
	session, err := p.sessions.GetByWidgetToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.ErrWidgetTokenNotFound
		}
		return nil, fmt.Errorf("resolving widget token: %w", err)
	}
	return p.renderSession(ctx, session, session.WidgetToken)
}

func (p *Provider) renderPreset(ctx context.Context, preset *domain.Preset, mode domain.Mode) (*domain.WidgetData, error) {
	if mode == domain.ModeSession {
		session, err := p.sessions.LatestForPreset(ctx, preset.ID)
		if err == nil {
			return p.renderSession(ctx, session, preset.WidgetToken)
		}
		if !errors.Is(err, domain.ErrSessionNotFound) {
			return nil, fmt.Errorf("loading latest session: %w", err)
		}
		// No session played yet, fall back to the preview.
	}

	return &domain.WidgetData{
		Token:          preset.WidgetToken,
		Name:           preset.Name,
		GameMode:       preset.GameMode,
		Status:         StatusPreview,
		WidgetSettings: preset.WidgetSettings,
	}, nil
}

// renderSession builds the payload for one session. token is the token the
// subscriber used, which for preset-token subscribers in session mode differs
// from the session's own token.
func (p *Provider) renderSession(ctx context.Context, session *domain.Session, token string) (*domain.WidgetData, error) {
	data := &domain.WidgetData{
		Token:          token,
		GameMode:       session.GameMode,
		Status:         string(session.Status),
		CurrentRound:   session.CurrentRound,
		TotalGifts:     session.TotalGifts,
		TotalDiamonds:  session.TotalDiamonds,
		WidgetSettings: session.WidgetSettingsSnapshot,
	}

	// Name is cosmetic; a deleted preset does not break a running widget.
	if preset, err := p.presets.Get(ctx, session.PresetID); err == nil {
		data.Name = preset.Name
	}
	return data, nil
}

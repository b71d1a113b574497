package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/lulajax/streamer-hub/internal/auth"
	"github.com/lulajax/streamer-hub/internal/config"
	"github.com/lulajax/streamer-hub/internal/domain"
	"github.com/lulajax/streamer-hub/internal/room"
	"github.com/lulajax/streamer-hub/internal/widget"
	"github.com/lulajax/streamer-hub/internal/widgetdata"
)

// In-memory repositories shared by the handler tests.

type memPresets struct {
	mu      sync.Mutex
	presets map[uuid.UUID]*domain.Preset
}

func newMemPresets() *memPresets {
	return &memPresets{presets: make(map[uuid.UUID]*domain.Preset)}
}

func (m *memPresets) Create(_ context.Context, preset *domain.Preset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	preset.CreatedAt = time.Now()
	preset.UpdatedAt = preset.CreatedAt
	clone := *preset
	m.presets[preset.ID] = &clone
	return nil
}

func (m *memPresets) Update(_ context.Context, preset *domain.Preset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.presets[preset.ID]; !ok {
		return domain.ErrPresetNotFound
	}
	clone := *preset
	clone.UpdatedAt = time.Now()
	m.presets[preset.ID] = &clone
	return nil
}

func (m *memPresets) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.presets[id]; !ok {
		return domain.ErrPresetNotFound
	}
	delete(m.presets, id)
	return nil
}

func (m *memPresets) Get(_ context.Context, id uuid.UUID) (*domain.Preset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.presets[id]; ok {
		clone := *p
		return &clone, nil
	}
	return nil, domain.ErrPresetNotFound
}

func (m *memPresets) GetByWidgetToken(_ context.Context, token string) (*domain.Preset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.presets {
		if p.WidgetToken == token {
			clone := *p
			return &clone, nil
		}
	}
	return nil, domain.ErrPresetNotFound
}

func (m *memPresets) List(_ context.Context, deviceID string) ([]*domain.Preset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Preset
	for _, p := range m.presets {
		if p.DeviceID == deviceID {
			clone := *p
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *memPresets) RotateWidgetToken(_ context.Context, id uuid.UUID, newToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.presets[id]
	if !ok {
		return domain.ErrPresetNotFound
	}
	p.WidgetToken = newToken
	return nil
}

type memSessions struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*domain.Session
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: make(map[uuid.UUID]*domain.Session)}
}

func (m *memSessions) Create(_ context.Context, session *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session.CreatedAt = time.Now()
	session.UpdatedAt = session.CreatedAt
	clone := *session
	m.sessions[session.ID] = &clone
	return nil
}

func (m *memSessions) Get(_ context.Context, id uuid.UUID) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		clone := *s
		return &clone, nil
	}
	return nil, domain.ErrSessionNotFound
}

func (m *memSessions) GetByWidgetToken(_ context.Context, token string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.WidgetToken == token {
			clone := *s
			return &clone, nil
		}
	}
	return nil, domain.ErrSessionNotFound
}

func (m *memSessions) UpdateStatus(_ context.Context, id uuid.UUID, status domain.SessionStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	s.Status = status
	switch status {
	case domain.SessionRunning:
		s.StartedAt = &at
	case domain.SessionPaused:
		s.PausedAt = &at
	case domain.SessionEnded:
		s.EndedAt = &at
	}
	return nil
}

func (m *memSessions) ActiveForRoom(_ context.Context, roomID string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *domain.Session
	for _, s := range m.sessions {
		if s.RoomID == roomID && s.Active() {
			if best == nil || s.CreatedAt.After(best.CreatedAt) {
				best = s
			}
		}
	}
	if best == nil {
		return nil, domain.ErrSessionNotFound
	}
	clone := *best
	return &clone, nil
}

func (m *memSessions) MostRecentForRoom(_ context.Context, roomID string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *domain.Session
	for _, s := range m.sessions {
		if s.RoomID == roomID {
			if best == nil || s.CreatedAt.After(best.CreatedAt) {
				best = s
			}
		}
	}
	if best == nil {
		return nil, domain.ErrSessionNotFound
	}
	clone := *best
	return &clone, nil
}

func (m *memSessions) LatestForPreset(_ context.Context, presetID uuid.UUID) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *domain.Session
	for _, s := range m.sessions {
		if s.PresetID == presetID {
			if best == nil || s.CreatedAt.After(best.CreatedAt) {
				best = s
			}
		}
	}
	if best == nil {
		return nil, domain.ErrSessionNotFound
	}
	clone := *best
	return &clone, nil
}

func (m *memSessions) AddGiftTotals(_ context.Context, id uuid.UUID, gifts int64, diamonds int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	s.TotalGifts += gifts
	s.TotalDiamonds += diamonds
	return nil
}

type memGifts struct {
	mu    sync.Mutex
	gifts []*domain.GiftRecord
}

func (m *memGifts) Record(_ context.Context, gift *domain.GiftRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	gift.CreatedAt = time.Now()
	clone := *gift
	m.gifts = append(m.gifts, &clone)
	return nil
}

func (m *memGifts) ListForSession(_ context.Context, sessionID uuid.UUID) ([]*domain.GiftRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.GiftRecord
	for _, g := range m.gifts {
		if g.SessionID == sessionID {
			clone := *g
			out = append(out, &clone)
		}
	}
	return out, nil
}

// capturingPublisher records published change events.
type capturingPublisher struct {
	mu     sync.Mutex
	events []domain.ChangeEvent
}

func (p *capturingPublisher) Publish(ev domain.ChangeEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *capturingPublisher) published() []domain.ChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.ChangeEvent, len(p.events))
	copy(out, p.events)
	return out
}

type testEnv struct {
	server    *Server
	presets   *memPresets
	sessions  *memSessions
	gifts     *memGifts
	publisher *capturingPublisher
	tokens    *auth.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := clockwork.NewRealClock()
	presets := newMemPresets()
	sessions := newMemSessions()
	gifts := &memGifts{}
	publisher := &capturingPublisher{}
	tokens := auth.NewService("test-secret-0123456789", time.Hour)

	provider := widgetdata.NewProvider(presets, sessions)
	roomHub := room.NewHub(tokens, clock)
	widgetHub := widget.NewHub(provider, clock)
	t.Cleanup(roomHub.Stop)
	t.Cleanup(widgetHub.Stop)

	cfg := &config.Config{
		AppEnv:              "test",
		Port:                "0",
		JWTSecret:           "test-secret-0123456789",
		MaxConnections:      100,
		MaxConnectionsPerIP: 100,
		ConnectionRate:      1000,
		ConnectionBurst:     1000,
	}

	srv := NewServer(cfg, Deps{
		RoomHub:   roomHub,
		WidgetHub: widgetHub,
		Presets:   presets,
		Sessions:  sessions,
		Gifts:     gifts,
		Publisher: publisher,
		Tokens:    tokens,
		Clock:     clock,
	})

	return &testEnv{
		server:    srv,
		presets:   presets,
		sessions:  sessions,
		gifts:     gifts,
		publisher: publisher,
		tokens:    tokens,
	}
}

package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a live session.
type SessionStatus string

const (
	SessionIdle    SessionStatus = "IDLE"
	SessionRunning SessionStatus = "RUNNING"
	SessionPaused  SessionStatus = "PAUSED"
	SessionEnded   SessionStatus = "ENDED"
)

// Session is one live run of a preset in a room. WidgetSettingsSnapshot is
// frozen at start so later preset edits do not change a running session's
// widget appearance.
type Session struct {
	ID                     uuid.UUID
	RoomID                 string
	PresetID               uuid.UUID
	WidgetToken            string
	WidgetSettingsSnapshot json.RawMessage
	GameMode               GameMode
	Status                 SessionStatus
	CurrentRound           int
	TotalGifts             int64
	TotalDiamonds          int64
	StartedAt              *time.Time
	PausedAt               *time.Time
	EndedAt                *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Active reports whether the session is still receiving gifts.
func (s *Session) Active() bool {
	return s.Status == SessionRunning || s.Status == SessionPaused
}

// SessionRepository persists sessions. Get* methods return ErrSessionNotFound
// when no row matches; ActiveForRoom and MostRecentForRoom return
// ErrSessionNotFound when the room has no matching session.
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	Get(ctx context.Context, id uuid.UUID) (*Session, error)
	GetByWidgetToken(ctx context.Context, token string) (*Session, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status SessionStatus, at time.Time) error
	ActiveForRoom(ctx context.Context, roomID string) (*Session, error)
	MostRecentForRoom(ctx context.Context, roomID string) (*Session, error)
	LatestForPreset(ctx context.Context, presetID uuid.UUID) (*Session, error)
	AddGiftTotals(ctx context.Context, id uuid.UUID, gifts int64, diamonds int64) error
}

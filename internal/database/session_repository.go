package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lulajax/streamer-hub/internal/domain"
)

// sessionColumns must match the Scan order in scanSession.
const sessionColumns = `id, room_id, preset_id, widget_token, widget_settings_snapshot, game_mode, status, current_round, total_gifts, total_diamonds, started_at, paused_at, ended_at, created_at, updated_at`

// SessionRepo implements domain.SessionRepository backed by PostgreSQL.
type SessionRepo struct {
	pool *pgxpool.Pool
}

// NewSessionRepo creates a SessionRepo over the shared pool.
func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var session domain.Session
	err := row.Scan(
		&session.ID, &session.RoomID, &session.PresetID, &session.WidgetToken,
		&session.WidgetSettingsSnapshot, &session.GameMode, &session.Status,
		&session.CurrentRound, &session.TotalGifts, &session.TotalDiamonds,
		&session.StartedAt, &session.PausedAt, &session.EndedAt,
		&session.CreatedAt, &session.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepo) Create(ctx context.Context, session *domain.Session) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO sessions (id, room_id, preset_id, widget_token, widget_settings_snapshot, game_mode, status, current_round, total_gifts, total_diamonds, started_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		RETURNING created_at, updated_at
	`, session.ID, session.RoomID, session.PresetID, session.WidgetToken,
		session.WidgetSettingsSnapshot, session.GameMode, session.Status,
		session.CurrentRound, session.TotalGifts, session.TotalDiamonds, session.StartedAt)

	if err := row.Scan(&session.CreatedAt, &session.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *SessionRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	session, err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

func (r *SessionRepo) GetByWidgetToken(ctx context.Context, token string) (*domain.Session, error) {
	session, err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE widget_token = $1`, token))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get session by widget token: %w", err)
	}
	return session, nil
}

// UpdateStatus moves a session through its lifecycle and stamps the matching
// timestamp column.
func (r *SessionRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SessionStatus, at time.Time) error {
	var column string
	switch status {
	case domain.SessionRunning:
		column = "started_at"
	case domain.SessionPaused:
		column = "paused_at"
	case domain.SessionEnded:
		column = "ended_at"
	default:
		column = ""
	}

	query := `UPDATE sessions SET status = $1, updated_at = NOW() WHERE id = $2`
	args := []any{status, id}
	if column != "" {
		query = `UPDATE sessions SET status = $1, ` + column + ` = $3, updated_at = NOW() WHERE id = $2`
		args = append(args, at)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepo) ActiveForRoom(ctx context.Context, roomID string) (*domain.Session, error) {
	session, err := scanSession(r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE room_id = $1 AND status IN ('RUNNING', 'PAUSED')
		ORDER BY created_at DESC
		LIMIT 1
	`, roomID))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}
	return session, nil
}

func (r *SessionRepo) MostRecentForRoom(ctx context.Context, roomID string) (*domain.Session, error) {
	session, err := scanSession(r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE room_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, roomID))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get most recent session: %w", err)
	}
	return session, nil
}

func (r *SessionRepo) LatestForPreset(ctx context.Context, presetID uuid.UUID) (*domain.Session, error) {
	session, err := scanSession(r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE preset_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, presetID))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get latest session for preset: %w", err)
	}
	return session, nil
}

func (r *SessionRepo) AddGiftTotals(ctx context.Context, id uuid.UUID, gifts int64, diamonds int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sessions
		SET total_gifts = total_gifts + $1, total_diamonds = total_diamonds + $2, updated_at = NOW()
		WHERE id = $3
	`, gifts, diamonds, id)
	if err != nil {
		return fmt.Errorf("failed to add gift totals: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

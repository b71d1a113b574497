package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lulajax/streamer-hub/internal/domain"
)

// presetColumns must match the Scan order in scanPreset.
const presetColumns = `id, name, game_mode, device_id, target_gifts, config, widget_settings, widget_token, is_default, created_at, updated_at`

// PresetRepo implements domain.PresetRepository backed by PostgreSQL.
type PresetRepo struct {
	pool *pgxpool.Pool
}

// NewPresetRepo creates a PresetRepo over the shared pool.
func NewPresetRepo(pool *pgxpool.Pool) *PresetRepo {
	return &PresetRepo{pool: pool}
}

func scanPreset(row pgx.Row) (*domain.Preset, error) {
	var preset domain.Preset
	err := row.Scan(
		&preset.ID, &preset.Name, &preset.GameMode, &preset.DeviceID,
		&preset.TargetGifts, &preset.Config, &preset.WidgetSettings,
		&preset.WidgetToken, &preset.IsDefault, &preset.CreatedAt, &preset.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPresetNotFound
	}
	if err != nil {
		return nil, err
	}
	return &preset, nil
}

func (r *PresetRepo) Create(ctx context.Context, preset *domain.Preset) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO presets (id, name, game_mode, device_id, target_gifts, config, widget_settings, widget_token, is_default, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING created_at, updated_at
	`, preset.ID, preset.Name, preset.GameMode, preset.DeviceID, preset.TargetGifts,
		preset.Config, preset.WidgetSettings, preset.WidgetToken, preset.IsDefault)

	if err := row.Scan(&preset.CreatedAt, &preset.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create preset: %w", err)
	}
	return nil
}

func (r *PresetRepo) Update(ctx context.Context, preset *domain.Preset) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE presets
		SET name = $1, game_mode = $2, target_gifts = $3, config = $4, widget_settings = $5, is_default = $6, updated_at = NOW()
		WHERE id = $7
	`, preset.Name, preset.GameMode, preset.TargetGifts, preset.Config,
		preset.WidgetSettings, preset.IsDefault, preset.ID)
	if err != nil {
		return fmt.Errorf("failed to update preset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPresetNotFound
	}
	return nil
}

func (r *PresetRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM presets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete preset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPresetNotFound
	}
	return nil
}

func (r *PresetRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Preset, error) {
	preset, err := scanPreset(r.pool.QueryRow(ctx,
		`SELECT `+presetColumns+` FROM presets WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, domain.ErrPresetNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get preset: %w", err)
	}
	return preset, nil
}

func (r *PresetRepo) GetByWidgetToken(ctx context.Context, token string) (*domain.Preset, error) {
	preset, err := scanPreset(r.pool.QueryRow(ctx,
		`SELECT `+presetColumns+` FROM presets WHERE widget_token = $1`, token))
	if err != nil {
		if errors.Is(err, domain.ErrPresetNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get preset by widget token: %w", err)
	}
	return preset, nil
}

func (r *PresetRepo) List(ctx context.Context, deviceID string) ([]*domain.Preset, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+presetColumns+` FROM presets WHERE device_id = $1 ORDER BY created_at`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list presets: %w", err)
	}
	defer rows.Close()

	var presets []*domain.Preset
	for rows.Next() {
		preset, err := scanPreset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan preset: %w", err)
		}
		presets = append(presets, preset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list presets: %w", err)
	}
	return presets, nil
}

func (r *PresetRepo) RotateWidgetToken(ctx context.Context, id uuid.UUID, newToken string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE presets SET widget_token = $1, updated_at = NOW() WHERE id = $2
	`, newToken, id)
	if err != nil {
		return fmt.Errorf("failed to rotate widget token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPresetNotFound
	}
	return nil
}

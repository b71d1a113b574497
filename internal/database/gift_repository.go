package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lulajax/streamer-hub/internal/domain"
)

// GiftRepo implements domain.GiftRepository backed by PostgreSQL.
type GiftRepo struct {
	pool *pgxpool.Pool
}

// NewGiftRepo creates a GiftRepo over the shared pool.
func NewGiftRepo(pool *pgxpool.Pool) *GiftRepo {
	return &GiftRepo{pool: pool}
}

func (r *GiftRepo) Record(ctx context.Context, gift *domain.GiftRecord) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO gifts (id, session_id, gift_id, gift_name, gift_icon, user_id, user_name, anchor_id, anchor_name, count, total_cost, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		RETURNING created_at
	`, gift.ID, gift.SessionID, gift.GiftID, gift.GiftName, gift.GiftIcon,
		gift.UserID, gift.UserName, gift.AnchorID, gift.AnchorName, gift.Count, gift.TotalCost)

	if err := row.Scan(&gift.CreatedAt); err != nil {
		return fmt.Errorf("failed to record gift: %w", err)
	}
	return nil
}

func (r *GiftRepo) ListForSession(ctx context.Context, sessionID uuid.UUID) ([]*domain.GiftRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, session_id, gift_id, gift_name, gift_icon, user_id, user_name, anchor_id, anchor_name, count, total_cost, created_at
		FROM gifts
		WHERE session_id = $1
		ORDER BY created_at
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list gifts: %w", err)
	}
	defer rows.Close()

	var gifts []*domain.GiftRecord
	for rows.Next() {
		var gift domain.GiftRecord
		err := rows.Scan(
			&gift.ID, &gift.SessionID, &gift.GiftID, &gift.GiftName, &gift.GiftIcon,
			&gift.UserID, &gift.UserName, &gift.AnchorID, &gift.AnchorName,
			&gift.Count, &gift.TotalCost, &gift.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan gift: %w", err)
		}
		gifts = append(gifts, &gift)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list gifts: %w", err)
	}
	return gifts, nil
}

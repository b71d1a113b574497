package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// GiftRecord is a single gift received during a session.
type GiftRecord struct {
	ID         uuid.UUID
	SessionID  uuid.UUID
	GiftID     string
	GiftName   string
	GiftIcon   string
	UserID     string
	UserName   string
	AnchorID   string
	AnchorName string
	Count      int64
	TotalCost  int64
	CreatedAt  time.Time
}

// GiftRepository persists gift records.
type GiftRepository interface {
	Record(ctx context.Context, gift *GiftRecord) error
	ListForSession(ctx context.Context, sessionID uuid.UUID) ([]*GiftRecord, error)
}

package repository

import (
	"context"
	"time"

	"github.com/mr1hm/quake-notify/internal/models"
)

type Filter struct {
	Limit        int
	Since        *time.Time
	Source       string
	MinMagnitude *float64
}

// EventRepository stores every event that passed the watermark filter, so
// the API can serve recent activity and operators can audit what was
// notified.
type EventRepository interface {
	Add(ctx context.Context, e *models.Event) error
	Exists(ctx context.Context, source, id string) (bool, error)
	ListEvents(ctx context.Context, opts Filter) ([]models.Event, error)
}

// WatermarkStore holds the per-source cursor used for dedup across
// polling runs. Set is a single-row upsert; re-applying the same value is
// a no-op.
type WatermarkStore interface {
	GetWatermark(ctx context.Context, source string) (int64, error)
	SetWatermark(ctx context.Context, source string, ts int64) error
}

// UserDirectory is the read side of user management plus the one write
// the notification core is allowed: clearing an invalid push token.
// Removing an already-absent token is a no-op.
type UserDirectory interface {
	ListNotifiable(ctx context.Context) ([]models.User, error)
	RemoveToken(ctx context.Context, userID string) error
	UpsertUser(ctx context.Context, u *models.User) error
}

package biz

import (
	"context"
	"time"

	"RateLane/internal/model"
)

// HistoryRepo defines the durable rate history.
// Following Kratos v2 DDD architecture, interfaces are defined in biz layer.
// Implementation is in data layer (data.HistoryRepo).
type HistoryRepo interface {
	// SaveRates records today's values for provider, replacing an earlier
	// reading of the same day.
	SaveRates(ctx context.Context, provider string, values map[string]float64, source string) error
	// Latest returns nil, nil when provider has no history.
	Latest(ctx context.Context, provider string) (*model.HistoryEntry, error)
	// Window returns entries since the given time, oldest first.
	Window(ctx context.Context, provider string, since time.Time) ([]model.HistoryEntry, error)
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// Package biz contains business logic layer implementations.
// It owns the fallback policy for rate snapshots, trend computation and
// the periodic refresh work.
package biz

import (
	"RateLane/internal/data"

	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewBCVUsecase,
	NewP2PUsecase,
	NewRefreshTask,
	// Bind data layer implementations to biz layer interfaces
	wire.Bind(new(HistoryRepo), new(*data.HistoryRepo)),
)

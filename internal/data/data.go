// Package data provides data access layer implementations.
// It owns the storage clients, the rate history repository and the
// upstream rate sources.
package data

import (
	"RateLane/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewData,
	NewRedisClient,
	NewCacheClient,
	NewMySQLClient,
	NewHistoryRepo,
	NewHealthMonitor,
	NewHTTPClient,
	NewBCVScraper,
	NewP2PScraper,
)

// Data contains all data layer dependencies.
type Data struct {
	// cache is the cache interface for repository use
	cache CacheClient
	// db is the MySQL handle for the history table
	db *gorm.DB
}

// NewData creates a new Data instance with all data layer dependencies.
// Redis connection failure does not prevent application startup (graceful degradation).
func NewData(_ *conf.Data, logger log.Logger, rdb *redis.Client, cache CacheClient, db *gorm.DB) (*Data, func(), error) {
	helper := log.NewHelper(logger)

	if rdb == nil {
		helper.Warn("Redis client is nil, latest-rate mirror will be unavailable")
	}

	d := &Data{
		cache: cache,
		db:    db,
	}

	cleanup := func() {
		helper.Info("closing the data resources")
		// Redis and MySQL are closed by their own cleanup functions
	}

	return d, cleanup, nil
}

// GetCache returns the cache client for repository use.
func (d *Data) GetCache() CacheClient {
	return d.cache
}

// GetDB returns the MySQL handle.
func (d *Data) GetDB() *gorm.DB {
	return d.db
}

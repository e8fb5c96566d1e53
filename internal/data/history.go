package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"RateLane/internal/conf"
	"RateLane/internal/model"
	pkgerrors "RateLane/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
	lru "github.com/hashicorp/golang-lru/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultWindowCacheSize = 64
	defaultLatestTTL       = 24 * time.Hour
)

// RateHistoryRecord is one provider reading per Caracas calendar day.
type RateHistoryRecord struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	Provider   string    `gorm:"type:varchar(16);not null;uniqueIndex:uk_provider_day,priority:1"`
	Day        string    `gorm:"type:char(10);not null;uniqueIndex:uk_provider_day,priority:2"`
	Rates      string    `gorm:"type:json;not null"`
	Source     string    `gorm:"type:varchar(64);not null"`
	RecordedAt time.Time `gorm:"not null;index:idx_recorded_at"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TableName specifies the table name for GORM.
func (RateHistoryRecord) TableName() string {
	return "rate_history"
}

func (r *RateHistoryRecord) toEntry() (model.HistoryEntry, error) {
	values := map[string]float64{}
	if err := json.Unmarshal([]byte(r.Rates), &values); err != nil {
		return model.HistoryEntry{}, fmt.Errorf("decode rates for %s/%s: %w", r.Provider, r.Day, err)
	}
	return model.HistoryEntry{
		Provider:  r.Provider,
		Day:       r.Day,
		Values:    values,
		Source:    r.Source,
		Timestamp: r.RecordedAt,
	}, nil
}

type windowEntry struct {
	entries   []model.HistoryEntry
	expiresAt time.Time
}

// HistoryRepo stores daily rate readings in MySQL, mirrors the newest entry
// per provider into Redis and memoizes window queries in an LRU.
type HistoryRepo struct {
	db        *gorm.DB
	cache     CacheClient
	latestTTL time.Duration
	windowTTL time.Duration

	// mu serializes saves with memo fills and purges. gen advances on every
	// write; a read only fills the memo or the mirror when gen did not move
	// while it queried MySQL.
	mu       sync.Mutex
	gen      uint64
	windows  *lru.Cache[string, windowEntry]
	mirrored map[string]struct{}

	now    func() time.Time
	logger *log.Helper
}

// NewHistoryRepo creates a HistoryRepo over the data layer handles.
func NewHistoryRepo(d *Data, c *conf.History, logger log.Logger) (*HistoryRepo, error) {
	size := defaultWindowCacheSize
	latestTTL := defaultLatestTTL
	var windowTTL time.Duration
	if c != nil {
		if c.WindowCacheSize > 0 {
			size = c.WindowCacheSize
		}
		if c.LatestTTL > 0 {
			latestTTL = c.LatestTTL
		}
		windowTTL = c.WindowCacheTTL
	}

	windows, err := lru.New[string, windowEntry](size)
	if err != nil {
		return nil, fmt.Errorf("create window cache: %w", err)
	}

	cache := d.GetCache()
	if cache == nil {
		cache = NewCacheClient(nil)
	}

	return &HistoryRepo{
		db:        d.GetDB(),
		cache:     cache,
		latestTTL: latestTTL,
		windowTTL: windowTTL,
		windows:   windows,
		mirrored:  make(map[string]struct{}),
		now:       time.Now,
		logger:    log.NewHelper(log.With(logger, "module", "data/history")),
	}, nil
}

// SaveRates upserts today's row for provider. Values are rounded to two
// decimals. The Redis mirror is refreshed and the provider's window memo is
// dropped.
func (r *HistoryRepo) SaveRates(ctx context.Context, provider string, values map[string]float64, source string) error {
	if len(values) == 0 {
		return fmt.Errorf("save rates for %s: no values", provider)
	}

	rounded := make(map[string]float64, len(values))
	for k, v := range values {
		rounded[k] = model.Round2(v)
	}
	payload, err := json.Marshal(rounded)
	if err != nil {
		return fmt.Errorf("encode rates for %s: %w", provider, err)
	}

	now := r.now()
	rec := RateHistoryRecord{
		Provider:   provider,
		Day:        model.DayOf(now),
		Rates:      string(payload),
		Source:     source,
		RecordedAt: now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "day"}},
		DoUpdates: clause.AssignmentColumns([]string{"rates", "source", "recorded_at", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return pkgerrors.ClassifyDBError(err)
	}

	r.gen++
	r.invalidateWindows(provider)

	entry := model.HistoryEntry{
		Provider:  provider,
		Day:       rec.Day,
		Values:    rounded,
		Source:    source,
		Timestamp: now,
	}
	r.mirrorLatest(ctx, entry)

	return nil
}

// Latest returns the newest entry for provider, or nil when there is none.
func (r *HistoryRepo) Latest(ctx context.Context, provider string) (*model.HistoryEntry, error) {
	key := BuildCacheKey(CacheKeyLatest, provider)

	var cached model.HistoryEntry
	err := r.cache.Get(ctx, key, &cached)
	switch {
	case err == nil:
		return &cached, nil
	case errors.Is(err, ErrCacheNotFound):
	default:
		r.logger.Debugw("msg", "latest mirror read failed, using MySQL", "provider", provider, "error", err)
	}

	gen := r.generation()

	var rec RateHistoryRecord
	err = r.db.WithContext(ctx).
		Where("provider = ?", provider).
		Order("recorded_at DESC").
		Take(&rec).Error
	if err != nil {
		if pkgerrors.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, pkgerrors.ClassifyDBError(err)
	}

	entry, err := rec.toEntry()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.gen == gen {
		r.mirrorLatest(ctx, entry)
	}
	r.mu.Unlock()
	return &entry, nil
}

// Window returns provider entries from the Caracas day of since onwards,
// oldest first.
func (r *HistoryRepo) Window(ctx context.Context, provider string, since time.Time) ([]model.HistoryEntry, error) {
	sinceDay := model.DayOf(since)
	key := provider + "|" + sinceDay

	if we, ok := r.windows.Get(key); ok {
		if r.windowTTL <= 0 || r.now().Before(we.expiresAt) {
			return slices.Clone(we.entries), nil
		}
		r.windows.Remove(key)
	}

	gen := r.generation()

	var recs []RateHistoryRecord
	err := r.db.WithContext(ctx).
		Where("provider = ? AND day >= ?", provider, sinceDay).
		Order("day ASC").
		Find(&recs).Error
	if err != nil {
		return nil, pkgerrors.ClassifyDBError(err)
	}

	entries := make([]model.HistoryEntry, 0, len(recs))
	for i := range recs {
		entry, err := recs[i].toEntry()
		if err != nil {
			r.logger.Warnw("msg", "skipping undecodable history row", "provider", provider, "day", recs[i].Day, "error", err)
			continue
		}
		entries = append(entries, entry)
	}

	r.mu.Lock()
	if r.gen == gen {
		r.windows.Add(key, windowEntry{entries: entries, expiresAt: r.now().Add(r.windowTTL)})
	}
	r.mu.Unlock()

	return slices.Clone(entries), nil
}

// Prune deletes rows recorded before olderThan and returns how many went.
func (r *HistoryRepo) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("recorded_at < ?", olderThan).
		Delete(&RateHistoryRecord{})
	if res.Error != nil {
		return 0, pkgerrors.ClassifyDBError(res.Error)
	}

	if res.RowsAffected > 0 {
		r.mu.Lock()
		r.gen++
		r.windows.Purge()
		// the mirrored row may be among the deleted ones
		for provider := range r.mirrored {
			key := BuildCacheKey(CacheKeyLatest, provider)
			if err := r.cache.Delete(ctx, key); err != nil {
				r.logger.Debugw("msg", "latest mirror delete failed", "provider", provider, "error", err)
				continue
			}
			delete(r.mirrored, provider)
		}
		r.mu.Unlock()
	}
	return res.RowsAffected, nil
}

func (r *HistoryRepo) generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen
}

// invalidateWindows drops memoized windows of provider. Caller holds mu.
func (r *HistoryRepo) invalidateWindows(provider string) {
	prefix := provider + "|"
	for _, key := range r.windows.Keys() {
		if strings.HasPrefix(key, prefix) {
			r.windows.Remove(key)
		}
	}
}

// mirrorLatest writes entry to Redis. Caller holds mu.
func (r *HistoryRepo) mirrorLatest(ctx context.Context, entry model.HistoryEntry) {
	key := BuildCacheKey(CacheKeyLatest, entry.Provider)
	if err := r.cache.Set(ctx, key, entry, r.latestTTL); err != nil {
		r.logger.Debugw("msg", "latest mirror write failed", "provider", entry.Provider, "error", err)
		return
	}
	r.mirrored[entry.Provider] = struct{}{}
}

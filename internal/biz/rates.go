package biz

import (
	"context"
	"sync"
	"time"

	"RateLane/internal/model"
	pkgerrors "RateLane/pkg/errors"
	pkglog "RateLane/pkg/log"
	"RateLane/pkg/metrics"
	"RateLane/pkg/scraper"

	"github.com/go-kratos/kratos/v2/log"
)

const defaultHistoryWriteTimeout = 5 * time.Second

// History window bounds in days.
const (
	DefaultHistoryDays = 30
	MaxHistoryDays     = 365
)

// ClampHistoryDays maps a requested day count into [1, MaxHistoryDays];
// zero or less selects DefaultHistoryDays.
func ClampHistoryDays(days int) int {
	switch {
	case days <= 0:
		return DefaultHistoryDays
	case days > MaxHistoryDays:
		return MaxHistoryDays
	default:
		return days
	}
}

// FallbackReason names the tier a degraded snapshot came from.
type FallbackReason string

const (
	FallbackNone    FallbackReason = ""
	FallbackCache   FallbackReason = "cache"
	FallbackHistory FallbackReason = "history"
	FallbackStatic  FallbackReason = "static"
)

// Snapshot is one complete, self-describing reading of a rate source.
type Snapshot[V any] struct {
	Rates          V              `json:"rates"`
	LastUpdated    time.Time      `json:"last_updated"`
	Source         string         `json:"source"`
	Cached         bool           `json:"cached"`
	Fallback       bool           `json:"fallback"`
	FallbackReason FallbackReason `json:"fallback_reason,omitempty"`
	// CacheAge is the age in seconds of a snapshot served from memory.
	CacheAge *int64 `json:"cache_age,omitempty"`
	// DataAge is the age in seconds of the underlying data on fallbacks.
	DataAge *int64 `json:"data_age,omitempty"`
}

// RateScraper is satisfied by *scraper.Scraper[V].
type RateScraper[V any] interface {
	Scrape(ctx context.Context) scraper.Result[V]
}

// UsecaseOption customises a RateUsecase.
type UsecaseOption func(*usecaseConfig)

type usecaseConfig struct {
	now          func() time.Time
	writeTimeout time.Duration
}

// WithClock replaces time.Now for TTL and age computations.
func WithClock(now func() time.Time) UsecaseOption {
	return func(c *usecaseConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// WithHistoryWriteTimeout bounds each background history write.
func WithHistoryWriteTimeout(d time.Duration) UsecaseOption {
	return func(c *usecaseConfig) {
		if d > 0 {
			c.writeTimeout = d
		}
	}
}

// RateUsecase turns a failure-prone scraper into a snapshot provider that
// always answers: live, then in-memory cache, then durable history, then
// the static constant.
type RateUsecase[V any] struct {
	spec    ProviderSpec[V]
	scraper RateScraper[V]
	history HistoryRepo
	metrics *metrics.RateMetrics
	cfg     usecaseConfig
	logger  *log.Helper
	events  *pkglog.LogHelper

	// mu guards the single last-writer-wins cache slot and closed.
	mu     sync.RWMutex
	cached *Snapshot[V]
	closed bool

	pending sync.WaitGroup
}

// NewRateUsecase creates a RateUsecase. history and m may be nil.
func NewRateUsecase[V any](spec ProviderSpec[V], s RateScraper[V], history HistoryRepo, m *metrics.RateMetrics, logger log.Logger, opts ...UsecaseOption) *RateUsecase[V] {
	cfg := usecaseConfig{now: time.Now, writeTimeout: defaultHistoryWriteTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	l := log.With(logger, "module", "biz/rates", "provider", spec.Name)
	return &RateUsecase[V]{
		spec:    spec,
		scraper: s,
		history: history,
		metrics: m,
		cfg:     cfg,
		logger:  log.NewHelper(l),
		events:  pkglog.NewLogHelper(l),
	}
}

// Name returns the provider name.
func (uc *RateUsecase[V]) Name() string {
	return uc.spec.Name
}

// FetchRates never fails. A live snapshot younger than the TTL is returned
// as is with Cached set and no scrape. Otherwise the scraper runs and, on
// failure, the fallback chain decides.
func (uc *RateUsecase[V]) FetchRates(ctx context.Context) Snapshot[V] {
	now := uc.cfg.now()

	if snap, ok := uc.fresh(now); ok {
		uc.metrics.ObserveSnapshot(uc.spec.Name, "cached")
		return snap
	}

	res := uc.scraper.Scrape(ctx)
	kind := ""
	if res.Err != nil {
		kind = res.Err.Kind.String()
	}
	uc.metrics.ObserveScrape(uc.spec.Name, res.Success, kind, res.ExecutionTime)
	uc.events.Scrape(uc.spec.Name, res.Success, res.ExecutionTime.Milliseconds(),
		"attempts", res.Attempts, "circuit_state", res.CircuitState.String())

	if res.Success {
		snap := Snapshot[V]{
			Rates:       res.Data,
			LastUpdated: now,
			Source:      uc.spec.Label,
		}
		uc.mu.Lock()
		uc.cached = &snap
		uc.mu.Unlock()

		uc.persist(snap)
		uc.metrics.ObserveSnapshot(uc.spec.Name, "live")
		return snap
	}

	return uc.fallback(ctx, res.Err, now)
}

func (uc *RateUsecase[V]) fresh(now time.Time) (Snapshot[V], bool) {
	uc.mu.RLock()
	defer uc.mu.RUnlock()

	if uc.cached == nil || now.Sub(uc.cached.LastUpdated) >= uc.spec.TTL {
		return Snapshot[V]{}, false
	}
	snap := *uc.cached
	snap.Cached = true
	snap.CacheAge = ageSeconds(now, snap.LastUpdated)
	return snap, true
}

func (uc *RateUsecase[V]) fallback(ctx context.Context, cause *scraper.Error, now time.Time) Snapshot[V] {
	var reason string
	if cause != nil {
		reason = cause.Error()
	}

	uc.mu.RLock()
	cached := uc.cached
	uc.mu.RUnlock()

	if cached != nil {
		snap := *cached
		snap.Cached = true
		snap.Fallback = true
		snap.FallbackReason = FallbackCache
		snap.Source = uc.spec.Label + " (cache)"
		snap.CacheAge = ageSeconds(now, cached.LastUpdated)
		snap.DataAge = snap.CacheAge
		uc.served(snap, reason)
		return snap
	}

	if snap, ok := uc.fromHistory(ctx, now); ok {
		uc.served(snap, reason)
		return snap
	}

	snap := Snapshot[V]{
		Rates:          uc.spec.Static,
		LastUpdated:    now,
		Source:         uc.spec.Label + " (static fallback)",
		Fallback:       true,
		FallbackReason: FallbackStatic,
	}
	uc.served(snap, reason)
	return snap
}

func (uc *RateUsecase[V]) fromHistory(ctx context.Context, now time.Time) (Snapshot[V], bool) {
	if uc.history == nil {
		return Snapshot[V]{}, false
	}

	entry, err := uc.history.Latest(ctx, uc.spec.Name)
	if err != nil {
		uc.historyFailed("history lookup failed", err)
		return Snapshot[V]{}, false
	}
	if entry == nil {
		return Snapshot[V]{}, false
	}

	rates, ok := uc.spec.FromHistory(entry.Values)
	if !ok {
		uc.logger.Warnw("msg", "history entry is incomplete", "day", entry.Day)
		return Snapshot[V]{}, false
	}

	return Snapshot[V]{
		Rates:          rates,
		LastUpdated:    entry.Timestamp,
		Source:         uc.spec.Label + " (history)",
		Fallback:       true,
		FallbackReason: FallbackHistory,
		DataAge:        ageSeconds(now, entry.Timestamp),
	}, true
}

func (uc *RateUsecase[V]) served(snap Snapshot[V], cause string) {
	uc.metrics.ObserveSnapshot(uc.spec.Name, string(snap.FallbackReason))
	uc.events.Fallback(uc.spec.Name, string(snap.FallbackReason), "source", snap.Source, "cause", cause)
}

// persist writes snap to history in the background; failures are logged only.
func (uc *RateUsecase[V]) persist(snap Snapshot[V]) {
	if uc.history == nil {
		return
	}

	values := uc.spec.ToHistory(snap.Rates)

	uc.mu.Lock()
	if uc.closed {
		uc.mu.Unlock()
		uc.logger.Warnw("msg", "history write dropped after flush", "day", model.DayOf(snap.LastUpdated))
		return
	}
	uc.pending.Add(1)
	uc.mu.Unlock()

	go func() {
		defer uc.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), uc.cfg.writeTimeout)
		defer cancel()

		err := uc.history.SaveRates(ctx, uc.spec.Name, values, snap.Source)
		uc.metrics.ObserveHistoryWrite(uc.spec.Name, err)
		if err != nil {
			uc.historyFailed("history write failed", err)
			return
		}
		uc.events.History("rates saved", "provider", uc.spec.Name)
	}()
}

// Trends returns per-period changes from history, or nil when history is
// unavailable.
func (uc *RateUsecase[V]) Trends(ctx context.Context) *model.Trends {
	if uc.history == nil {
		return nil
	}
	trends, err := computeTrends(ctx, uc.history, uc.spec.Name, uc.spec.Keys, uc.cfg.now())
	if err != nil {
		uc.historyFailed("trend computation failed", err)
		return nil
	}
	return &trends
}

// History returns the stored readings of the last days, oldest first, or
// nil when history is unavailable. days is clamped to [1, MaxHistoryDays].
func (uc *RateUsecase[V]) History(ctx context.Context, days int) []model.HistoryEntry {
	if uc.history == nil {
		return nil
	}
	days = ClampHistoryDays(days)
	since := uc.cfg.now().AddDate(0, 0, -days)
	entries, err := uc.history.Window(ctx, uc.spec.Name, since)
	if err != nil {
		uc.historyFailed("history window failed", err, "days", days)
		return nil
	}
	return entries
}

// historyFailed logs transient storage errors as warnings and anything
// else as errors.
func (uc *RateUsecase[V]) historyFailed(msg string, err error, kvs ...interface{}) {
	transient := pkgerrors.IsTransient(err)
	kvs = append([]interface{}{"msg", msg, "error", err, "transient", transient}, kvs...)
	if transient {
		uc.logger.Warnw(kvs...)
		return
	}
	uc.logger.Errorw(kvs...)
}

// CachedSnapshot returns the last live snapshot, if any, unannotated.
func (uc *RateUsecase[V]) CachedSnapshot() (Snapshot[V], bool) {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	if uc.cached == nil {
		return Snapshot[V]{}, false
	}
	return *uc.cached, true
}

// ClearCache empties the in-memory slot so the next call scrapes.
func (uc *RateUsecase[V]) ClearCache() {
	uc.mu.Lock()
	uc.cached = nil
	uc.mu.Unlock()
	uc.events.Cache("cache cleared", "provider", uc.spec.Name)
}

// Flush waits for background history writes, or for ctx. Writes requested
// after Flush are dropped.
func (uc *RateUsecase[V]) Flush(ctx context.Context) error {
	uc.mu.Lock()
	uc.closed = true
	uc.mu.Unlock()

	done := make(chan struct{})
	go func() {
		uc.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func ageSeconds(now, then time.Time) *int64 {
	age := int64(now.Sub(then) / time.Second)
	if age < 0 {
		age = 0
	}
	return &age
}

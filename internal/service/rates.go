// Package service adapts the rate usecases and the health monitor to the
// transport layer.
package service

import (
	"context"
	"sort"
	"time"

	"RateLane/internal/biz"
	"RateLane/internal/model"
	pkglog "RateLane/pkg/log"
	"RateLane/pkg/scraper"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(NewRatesService)

// Error reasons returned to clients.
const (
	ReasonSourceNotFound  = "SOURCE_NOT_FOUND"
	ReasonBreakerNotFound = "BREAKER_NOT_FOUND"
	ReasonInvalidDays     = "INVALID_DAYS"
)

// rateSource erases the value type of a RateUsecase.
type rateSource interface {
	fetch(ctx context.Context) interface{}
	trends(ctx context.Context) *model.Trends
	history(ctx context.Context, days int) []model.HistoryEntry
	clear()
}

type usecaseSource[V any] struct {
	uc *biz.RateUsecase[V]
}

func (s usecaseSource[V]) fetch(ctx context.Context) interface{} {
	return s.uc.FetchRates(ctx)
}

func (s usecaseSource[V]) trends(ctx context.Context) *model.Trends {
	return s.uc.Trends(ctx)
}

func (s usecaseSource[V]) history(ctx context.Context, days int) []model.HistoryEntry {
	return s.uc.History(ctx, days)
}

func (s usecaseSource[V]) clear() {
	s.uc.ClearCache()
}

// TrendsReply wraps the trends of one source. Trends is null when history
// is unavailable.
type TrendsReply struct {
	Source string        `json:"source"`
	Trends *model.Trends `json:"trends"`
}

// HealthReply is the aggregate health view.
type HealthReply struct {
	AllHealthy bool                            `json:"all_healthy"`
	Sources    map[string]scraper.HealthStatus `json:"sources"`
	Timestamp  time.Time                       `json:"timestamp"`
}

// BreakerReply reports the state of a breaker after an ops action.
type BreakerReply struct {
	Name    string                 `json:"name"`
	State   scraper.State          `json:"state"`
	Metrics scraper.BreakerMetrics `json:"metrics"`
}

// HistoryReply lists stored daily readings, oldest first. Entries is null
// when history is unavailable.
type HistoryReply struct {
	Source  string               `json:"source"`
	Days    int                  `json:"days"`
	Entries []model.HistoryEntry `json:"entries"`
}

// ClearCacheReply acknowledges a cache clear.
type ClearCacheReply struct {
	Source  string `json:"source"`
	Cleared bool   `json:"cleared"`
}

// RatesService serves snapshots, trends and source health.
type RatesService struct {
	sources map[string]rateSource
	monitor *scraper.HealthMonitor
	logger  *log.Helper
	events  *pkglog.LogHelper
}

// NewRatesService creates a RatesService over both providers.
func NewRatesService(
	bcv *biz.RateUsecase[model.BCVRates],
	p2p *biz.RateUsecase[model.P2PRates],
	monitor *scraper.HealthMonitor,
	logger log.Logger,
) *RatesService {
	l := log.With(logger, "module", "service/rates")
	return &RatesService{
		sources: map[string]rateSource{
			bcv.Name(): usecaseSource[model.BCVRates]{uc: bcv},
			p2p.Name(): usecaseSource[model.P2PRates]{uc: p2p},
		},
		monitor: monitor,
		logger:  log.NewHelper(l),
		events:  pkglog.NewLogHelper(l),
	}
}

// Sources returns the served source names in sorted order.
func (s *RatesService) Sources() []string {
	names := make([]string, 0, len(s.sources))
	for name := range s.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *RatesService) source(name string) (rateSource, error) {
	src, ok := s.sources[name]
	if !ok {
		return nil, errors.NotFound(ReasonSourceNotFound, "unknown rate source: "+name).
			WithMetadata(map[string]string{"source": name})
	}
	return src, nil
}

// GetRates returns the current snapshot of a source. It only fails for an
// unknown source.
func (s *RatesService) GetRates(ctx context.Context, name string) (interface{}, error) {
	src, err := s.source(name)
	if err != nil {
		return nil, err
	}
	return src.fetch(ctx), nil
}

// GetTrends returns the history trends of a source.
func (s *RatesService) GetTrends(ctx context.Context, name string) (*TrendsReply, error) {
	src, err := s.source(name)
	if err != nil {
		return nil, err
	}
	return &TrendsReply{Source: name, Trends: src.trends(ctx)}, nil
}

// GetHistory returns the stored readings of a source for the last days.
// days of zero selects the default window; larger values are capped.
func (s *RatesService) GetHistory(ctx context.Context, name string, days int) (*HistoryReply, error) {
	src, err := s.source(name)
	if err != nil {
		return nil, err
	}
	if days < 0 {
		return nil, errors.BadRequest(ReasonInvalidDays, "days must not be negative")
	}
	days = biz.ClampHistoryDays(days)
	return &HistoryReply{Source: name, Days: days, Entries: src.history(ctx, days)}, nil
}

// ClearCache drops the in-memory snapshot of a source.
func (s *RatesService) ClearCache(_ context.Context, name string) (*ClearCacheReply, error) {
	src, err := s.source(name)
	if err != nil {
		return nil, err
	}
	src.clear()
	return &ClearCacheReply{Source: name, Cleared: true}, nil
}

// GetHealth returns every registered scraper's status.
func (s *RatesService) GetHealth(_ context.Context) *HealthReply {
	statuses := s.monitor.AllHealthStatuses()
	all := true
	for _, st := range statuses {
		if !st.Healthy {
			all = false
			break
		}
	}
	return &HealthReply{
		AllHealthy: all,
		Sources:    statuses,
		Timestamp:  time.Now(),
	}
}

// GetSourceHealth returns one scraper's status.
func (s *RatesService) GetSourceHealth(_ context.Context, name string) (*scraper.HealthStatus, error) {
	st := s.monitor.HealthStatus(name)
	if st == nil {
		return nil, errors.NotFound(ReasonSourceNotFound, "no scraper registered as "+name).
			WithMetadata(map[string]string{"source": name})
	}
	return st, nil
}

// ResetBreaker forces a scraper's breaker back to CLOSED.
func (s *RatesService) ResetBreaker(_ context.Context, name string) (*BreakerReply, error) {
	cb, ok := s.monitor.Breaker(name)
	if !ok {
		return nil, errors.NotFound(ReasonBreakerNotFound, "no breaker registered as "+name).
			WithMetadata(map[string]string{"breaker": name})
	}

	before := cb.State()
	cb.Reset()
	s.events.Breaker("breaker reset by operator", "breaker", name, "previous_state", before.String())

	return &BreakerReply{Name: name, State: cb.State(), Metrics: cb.Metrics()}, nil
}

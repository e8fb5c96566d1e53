package biz

import (
	"time"

	"RateLane/internal/conf"
	"RateLane/internal/data"
	"RateLane/internal/model"
	"RateLane/pkg/metrics"
	"RateLane/pkg/scraper"

	"github.com/go-kratos/kratos/v2/log"
)

const (
	defaultBCVTTL = 5 * time.Minute
	defaultP2PTTL = 30 * time.Second
)

// Last-resort values served when live, cache and history all fail.
var (
	StaticBCVRates = model.BCVRates{USD: 189.00, EUR: 221.00}

	StaticP2PRates = p2pFromPrice(228.50)
)

// ProviderSpec describes what a RateUsecase needs to know about one upstream.
type ProviderSpec[V any] struct {
	// Name is the scraper, health and history key.
	Name string
	// Label is the human-readable source shown on snapshots.
	Label string
	// TTL is how long a live snapshot is served without scraping again.
	TTL time.Duration
	// Static is the complete last-resort value.
	Static V
	// Keys are the history value keys trends are computed for.
	Keys []string
	// ToHistory flattens a value into history keys.
	ToHistory func(V) map[string]float64
	// FromHistory rebuilds a complete value, or reports false when the
	// stored values are insufficient.
	FromHistory func(map[string]float64) (V, bool)
}

// BCVSpec describes the official rate.
func BCVSpec(ttl time.Duration) ProviderSpec[model.BCVRates] {
	if ttl <= 0 {
		ttl = defaultBCVTTL
	}
	return ProviderSpec[model.BCVRates]{
		Name:   data.SourceBCV,
		Label:  "BCV",
		TTL:    ttl,
		Static: StaticBCVRates,
		Keys:   []string{"usd", "eur"},
		ToHistory: func(r model.BCVRates) map[string]float64 {
			return map[string]float64{"usd": r.USD, "eur": r.EUR}
		},
		FromHistory: func(v map[string]float64) (model.BCVRates, bool) {
			usd, eur := v["usd"], v["eur"]
			if usd <= 0 || eur <= 0 {
				return model.BCVRates{}, false
			}
			return model.BCVRates{USD: usd, EUR: eur}, true
		},
	}
}

// P2PSpec describes the Binance P2P market. History keeps only the headline
// price, so a rebuilt value carries it on every price field.
func P2PSpec(ttl time.Duration) ProviderSpec[model.P2PRates] {
	if ttl <= 0 {
		ttl = defaultP2PTTL
	}
	return ProviderSpec[model.P2PRates]{
		Name:   data.SourceP2P,
		Label:  "Binance P2P",
		TTL:    ttl,
		Static: StaticP2PRates,
		Keys:   []string{"usd"},
		ToHistory: func(r model.P2PRates) map[string]float64 {
			return map[string]float64{"usd": r.USDTVES}
		},
		FromHistory: func(v map[string]float64) (model.P2PRates, bool) {
			usd := v["usd"]
			if usd <= 0 {
				return model.P2PRates{}, false
			}
			return p2pFromPrice(usd), true
		},
	}
}

func p2pFromPrice(price float64) model.P2PRates {
	stats := model.PriceStats{Min: price, Avg: price, Max: price}
	return model.P2PRates{USDTVES: price, Sell: stats, Buy: stats}
}

// NewBCVUsecase wires the official rate usecase.
func NewBCVUsecase(c *conf.Sources, h *conf.History, s *scraper.Scraper[model.BCVRates], repo HistoryRepo, m *metrics.RateMetrics, logger log.Logger) *RateUsecase[model.BCVRates] {
	var ttl time.Duration
	if c != nil && c.BCV != nil {
		ttl = c.BCV.SuccessTTL
	}
	return NewRateUsecase(BCVSpec(ttl), s, repo, m, logger, usecaseOptions(h)...)
}

// NewP2PUsecase wires the Binance P2P usecase.
func NewP2PUsecase(c *conf.Sources, h *conf.History, s *scraper.Scraper[model.P2PRates], repo HistoryRepo, m *metrics.RateMetrics, logger log.Logger) *RateUsecase[model.P2PRates] {
	var ttl time.Duration
	if c != nil && c.P2P != nil {
		ttl = c.P2P.SuccessTTL
	}
	return NewRateUsecase(P2PSpec(ttl), s, repo, m, logger, usecaseOptions(h)...)
}

func usecaseOptions(h *conf.History) []UsecaseOption {
	if h == nil {
		return nil
	}
	return []UsecaseOption{WithHistoryWriteTimeout(h.WriteTimeout)}
}

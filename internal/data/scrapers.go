package data

import (
	"fmt"
	"net/http"

	"RateLane/internal/conf"
	"RateLane/internal/model"
	"RateLane/pkg/scraper"
	"RateLane/pkg/transport"

	"github.com/go-kratos/kratos/v2/log"
)

// Scraper names double as health monitor keys and history providers.
const (
	SourceBCV = "bcv"
	SourceP2P = "p2p"
)

// NewHealthMonitor creates the monitor shared by every scraper.
func NewHealthMonitor(c *conf.Health) *scraper.HealthMonitor {
	var opts []scraper.HealthOption
	if c != nil {
		opts = append(opts,
			scraper.WithUnhealthyAfter(c.UnhealthyAfter),
			scraper.WithResponseWindow(c.ResponseWindow),
		)
	}
	return scraper.NewHealthMonitor(opts...)
}

// NewHTTPClient creates the outbound client shared by every source.
// Per-attempt deadlines come from the scraper, so the client keeps the
// transport default as a backstop.
func NewHTTPClient(c *conf.Transport) (*http.Client, error) {
	if c == nil {
		c = &conf.Transport{}
	}
	client, err := transport.NewHTTPClient(c.ProxyURL, c.UserAgent, 0)
	if err != nil {
		return nil, fmt.Errorf("build http client: %w", err)
	}
	return client, nil
}

// NewBCVScraper builds the official-rate scraper.
func NewBCVScraper(c *conf.Sources, client *http.Client, monitor *scraper.HealthMonitor, logger log.Logger) (*scraper.Scraper[model.BCVRates], error) {
	if c == nil || c.BCV == nil {
		return nil, fmt.Errorf("sources.bcv is not configured")
	}
	src := newBCVSource(client, c.BCV)
	return scraper.New[string, bcvParsed, model.BCVRates](scraperConfig(SourceBCV, &c.BCV.Source), src, monitor, logger), nil
}

// NewP2PScraper builds the Binance P2P scraper.
func NewP2PScraper(c *conf.Sources, client *http.Client, monitor *scraper.HealthMonitor, logger log.Logger) (*scraper.Scraper[model.P2PRates], error) {
	if c == nil || c.P2P == nil {
		return nil, fmt.Errorf("sources.p2p is not configured")
	}
	src := newP2PSource(client, c.P2P)
	return scraper.New[p2pBook, p2pParsed, model.P2PRates](scraperConfig(SourceP2P, &c.P2P.Source), src, monitor, logger), nil
}

func scraperConfig(name string, s *conf.Source) scraper.Config {
	cfg := scraper.Config{
		Name:          name,
		Timeout:       s.Timeout,
		MaxRetries:    s.MaxRetries,
		BaseDelay:     s.BaseDelay,
		MaxDelay:      s.MaxDelay,
		JitterPercent: uint64(max(s.JitterPercent, 0)),
		Breaker:       scraper.BreakerConfig{Name: name},
	}
	if s.Breaker != nil {
		cfg.Breaker.FailureThreshold = s.Breaker.FailureThreshold
		cfg.Breaker.Timeout = s.Breaker.Timeout
		cfg.Breaker.SuccessThreshold = s.Breaker.SuccessThreshold
	}
	return cfg
}

package service

import (
	"context"
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"RateLane/internal/biz"
	"RateLane/internal/model"
	"RateLane/pkg/scraper"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockScraper is a mock implementation of biz.RateScraper.
type MockScraper[V any] struct {
	mock.Mock
}

func (m *MockScraper[V]) Scrape(ctx context.Context) scraper.Result[V] {
	args := m.Called(ctx)
	return args.Get(0).(scraper.Result[V])
}

type testEnv struct {
	svc     *RatesService
	bcv     *MockScraper[model.BCVRates]
	p2p     *MockScraper[model.P2PRates]
	monitor *scraper.HealthMonitor
	bcvCB   *scraper.CircuitBreaker
}

// setupTestService creates a RatesService over mock scrapers and no history.
func setupTestService(t *testing.T) *testEnv {
	t.Helper()
	logger := log.DefaultLogger

	env := &testEnv{
		bcv:     new(MockScraper[model.BCVRates]),
		p2p:     new(MockScraper[model.P2PRates]),
		monitor: scraper.NewHealthMonitor(),
	}
	env.bcvCB = scraper.NewCircuitBreaker(scraper.BreakerConfig{Name: "bcv", FailureThreshold: 1, Timeout: time.Minute})
	env.monitor.RegisterScraper("bcv", env.bcvCB)
	env.monitor.RegisterScraper("p2p", scraper.NewCircuitBreaker(scraper.BreakerConfig{Name: "p2p", FailureThreshold: 3, Timeout: time.Minute}))

	bcv := biz.NewRateUsecase(biz.BCVSpec(0), env.bcv, nil, nil, logger)
	p2p := biz.NewRateUsecase(biz.P2PSpec(0), env.p2p, nil, nil, logger)
	env.svc = NewRatesService(bcv, p2p, env.monitor, logger)
	return env
}

func TestRatesService_GetRates(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	live := model.BCVRates{USD: 190.12, EUR: 222.34}
	env.bcv.On("Scrape", mock.Anything).Return(scraper.Result[model.BCVRates]{Success: true, Data: live}).Once()

	out, err := env.svc.GetRates(ctx, "bcv")
	require.NoError(t, err)
	snap, ok := out.(biz.Snapshot[model.BCVRates])
	require.True(t, ok)
	assert.Equal(t, live, snap.Rates)
	assert.Equal(t, "BCV", snap.Source)

	env.p2p.On("Scrape", mock.Anything).Return(scraper.Result[model.P2PRates]{
		Err: scraper.NewError(scraper.KindRateLimited, "HTTP 429"),
	}).Once()
	out, err = env.svc.GetRates(ctx, "p2p")
	require.NoError(t, err)
	p2pSnap := out.(biz.Snapshot[model.P2PRates])
	assert.True(t, p2pSnap.Fallback)
	assert.Equal(t, biz.FallbackStatic, p2pSnap.FallbackReason)

	_, err = env.svc.GetRates(ctx, "dolartoday")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, ReasonSourceNotFound, errors.Reason(err))
}

func TestRatesService_GetTrendsWithoutHistory(t *testing.T) {
	env := setupTestService(t)

	reply, err := env.svc.GetTrends(context.Background(), "bcv")
	require.NoError(t, err)
	assert.Equal(t, "bcv", reply.Source)
	assert.Nil(t, reply.Trends)

	_, err = env.svc.GetTrends(context.Background(), "unknown")
	assert.Equal(t, ReasonSourceNotFound, errors.Reason(err))
}

func TestRatesService_ClearCache(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	env.bcv.On("Scrape", mock.Anything).Return(scraper.Result[model.BCVRates]{Success: true, Data: model.BCVRates{USD: 1, EUR: 2}})

	_, _ = env.svc.GetRates(ctx, "bcv")
	_, _ = env.svc.GetRates(ctx, "bcv")
	env.bcv.AssertNumberOfCalls(t, "Scrape", 1)

	reply, err := env.svc.ClearCache(ctx, "bcv")
	require.NoError(t, err)
	assert.True(t, reply.Cleared)

	_, _ = env.svc.GetRates(ctx, "bcv")
	env.bcv.AssertNumberOfCalls(t, "Scrape", 2)
}

func TestRatesService_Health(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	reply := env.svc.GetHealth(ctx)
	assert.True(t, reply.AllHealthy)
	assert.Len(t, reply.Sources, 2)

	env.bcvCB.RecordFailure()
	reply = env.svc.GetHealth(ctx)
	assert.False(t, reply.AllHealthy)
	assert.False(t, reply.Sources["bcv"].Healthy)
	assert.True(t, reply.Sources["p2p"].Healthy)

	st, err := env.svc.GetSourceHealth(ctx, "bcv")
	require.NoError(t, err)
	assert.Equal(t, scraper.StateOpen, st.CircuitState)

	_, err = env.svc.GetSourceHealth(ctx, "nope")
	assert.True(t, errors.IsNotFound(err))
}

func TestRatesService_ResetBreaker(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	env.bcvCB.RecordFailure()
	require.Equal(t, scraper.StateOpen, env.bcvCB.State())

	reply, err := env.svc.ResetBreaker(ctx, "bcv")
	require.NoError(t, err)
	assert.Equal(t, scraper.StateClosed, reply.State)
	assert.Equal(t, scraper.StateClosed, env.bcvCB.State())
	assert.True(t, env.svc.GetHealth(ctx).AllHealthy)

	_, err = env.svc.ResetBreaker(ctx, "nope")
	assert.Equal(t, ReasonBreakerNotFound, errors.Reason(err))
}

func TestRatesService_Sources(t *testing.T) {
	env := setupTestService(t)
	assert.Equal(t, []string{"bcv", "p2p"}, env.svc.Sources())
}

func newTestHTTPServer(t *testing.T, svc *RatesService) *httptest.Server {
	t.Helper()
	srv := http.NewServer()
	RegisterRatesHTTPServer(srv, svc)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, method, url string, v interface{}) int {
	t.Helper()
	req, err := nethttp.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := nethttp.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	return resp.StatusCode
}

func TestRatesHTTP_Routes(t *testing.T) {
	env := setupTestService(t)
	ts := newTestHTTPServer(t, env.svc)
	env.bcv.On("Scrape", mock.Anything).Return(scraper.Result[model.BCVRates]{Success: true, Data: model.BCVRates{USD: 190.12, EUR: 222.34}})

	t.Run("rates", func(t *testing.T) {
		var body map[string]interface{}
		code := getJSON(t, nethttp.MethodGet, ts.URL+"/v1/rates/bcv", &body)
		assert.Equal(t, nethttp.StatusOK, code)
		assert.Equal(t, "BCV", body["source"])
		assert.Equal(t, false, body["fallback"])
		rates := body["rates"].(map[string]interface{})
		assert.Equal(t, 190.12, rates["usd"])
	})

	t.Run("unknown source", func(t *testing.T) {
		var body map[string]interface{}
		code := getJSON(t, nethttp.MethodGet, ts.URL+"/v1/rates/xyz", &body)
		assert.Equal(t, nethttp.StatusNotFound, code)
		assert.Equal(t, ReasonSourceNotFound, body["reason"])
	})

	t.Run("trends null without history", func(t *testing.T) {
		var body map[string]interface{}
		code := getJSON(t, nethttp.MethodGet, ts.URL+"/v1/rates/bcv/trends", &body)
		assert.Equal(t, nethttp.StatusOK, code)
		v, ok := body["trends"]
		assert.True(t, ok)
		assert.Nil(t, v)
	})

	t.Run("health 200 then 503", func(t *testing.T) {
		var body map[string]interface{}
		code := getJSON(t, nethttp.MethodGet, ts.URL+"/v1/health", &body)
		assert.Equal(t, nethttp.StatusOK, code)
		assert.Equal(t, true, body["all_healthy"])

		env.bcvCB.RecordFailure()
		body = nil
		code = getJSON(t, nethttp.MethodGet, ts.URL+"/v1/health", &body)
		assert.Equal(t, nethttp.StatusServiceUnavailable, code)
		assert.Equal(t, false, body["all_healthy"])
		sources := body["sources"].(map[string]interface{})
		assert.Equal(t, "OPEN", sources["bcv"].(map[string]interface{})["circuit_state"])
	})

	t.Run("breaker reset", func(t *testing.T) {
		var body map[string]interface{}
		code := getJSON(t, nethttp.MethodPost, ts.URL+"/v1/breakers/bcv/reset", &body)
		assert.Equal(t, nethttp.StatusOK, code)
		assert.Equal(t, "CLOSED", body["state"])

		var health map[string]interface{}
		code = getJSON(t, nethttp.MethodGet, ts.URL+"/v1/health/bcv", &health)
		assert.Equal(t, nethttp.StatusOK, code)
		assert.Equal(t, true, health["healthy"])
	})

	t.Run("cache clear", func(t *testing.T) {
		var body ClearCacheReply
		code := getJSON(t, nethttp.MethodDelete, ts.URL+"/v1/rates/p2p/cache", &body)
		assert.Equal(t, nethttp.StatusOK, code)
		assert.Equal(t, "p2p", body.Source)
	})

	t.Run("history", func(t *testing.T) {
		var body map[string]interface{}
		code := getJSON(t, nethttp.MethodGet, ts.URL+"/v1/rates/bcv/history?days=7", &body)
		assert.Equal(t, nethttp.StatusOK, code)
		assert.Equal(t, 7.0, body["days"])
		v, ok := body["entries"]
		assert.True(t, ok)
		assert.Nil(t, v)
	})

	t.Run("history rejects bad days", func(t *testing.T) {
		var body map[string]interface{}
		code := getJSON(t, nethttp.MethodGet, ts.URL+"/v1/rates/bcv/history?days=week", &body)
		assert.Equal(t, nethttp.StatusBadRequest, code)
		assert.Equal(t, ReasonInvalidDays, body["reason"])

		body = nil
		code = getJSON(t, nethttp.MethodGet, ts.URL+"/v1/rates/bcv/history?days=-1", &body)
		assert.Equal(t, nethttp.StatusBadRequest, code)
		assert.Equal(t, ReasonInvalidDays, body["reason"])
	})
}

// windowRepo serves a fixed history window.
type windowRepo struct {
	entries []model.HistoryEntry
	since   time.Time
}

func (r *windowRepo) SaveRates(context.Context, string, map[string]float64, string) error {
	return nil
}

func (r *windowRepo) Latest(context.Context, string) (*model.HistoryEntry, error) {
	return nil, nil
}

func (r *windowRepo) Window(_ context.Context, _ string, since time.Time) ([]model.HistoryEntry, error) {
	r.since = since
	return r.entries, nil
}

func (r *windowRepo) Prune(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func TestRatesService_GetHistory(t *testing.T) {
	now := time.Date(2025, 1, 15, 14, 0, 0, 0, time.UTC)
	repo := &windowRepo{entries: []model.HistoryEntry{
		{Provider: "p2p", Day: "2025-01-14", Values: map[string]float64{"usd": 229.5}},
		{Provider: "p2p", Day: "2025-01-15", Values: map[string]float64{"usd": 231}},
	}}
	logger := log.DefaultLogger
	bcv := biz.NewRateUsecase(biz.BCVSpec(0), new(MockScraper[model.BCVRates]), nil, nil, logger)
	p2p := biz.NewRateUsecase(biz.P2PSpec(0), new(MockScraper[model.P2PRates]), repo, nil, logger,
		biz.WithClock(func() time.Time { return now }))
	svc := NewRatesService(bcv, p2p, scraper.NewHealthMonitor(), logger)
	ctx := context.Background()

	reply, err := svc.GetHistory(ctx, "p2p", 0)
	require.NoError(t, err)
	assert.Equal(t, biz.DefaultHistoryDays, reply.Days)
	assert.Equal(t, repo.entries, reply.Entries)
	assert.Equal(t, now.AddDate(0, 0, -biz.DefaultHistoryDays), repo.since)

	reply, err = svc.GetHistory(ctx, "p2p", 5000)
	require.NoError(t, err)
	assert.Equal(t, biz.MaxHistoryDays, reply.Days)

	reply, err = svc.GetHistory(ctx, "bcv", 7)
	require.NoError(t, err)
	assert.Nil(t, reply.Entries)

	_, err = svc.GetHistory(ctx, "p2p", -1)
	assert.True(t, errors.IsBadRequest(err))

	_, err = svc.GetHistory(ctx, "ves", 7)
	assert.Equal(t, ReasonSourceNotFound, errors.Reason(err))
}

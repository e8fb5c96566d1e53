package service

import (
	"context"
	nethttp "net/http"
	"strconv"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/transport/http"
)

const (
	OperationRatesGetRates        = "/ratelane.v1.Rates/GetRates"
	OperationRatesGetTrends       = "/ratelane.v1.Rates/GetTrends"
	OperationRatesGetHistory      = "/ratelane.v1.Rates/GetHistory"
	OperationRatesClearCache      = "/ratelane.v1.Rates/ClearCache"
	OperationRatesGetHealth       = "/ratelane.v1.Rates/GetHealth"
	OperationRatesGetSourceHealth = "/ratelane.v1.Rates/GetSourceHealth"
	OperationRatesResetBreaker    = "/ratelane.v1.Rates/ResetBreaker"
)

// RegisterRatesHTTPServer mounts the rate routes on s.
func RegisterRatesHTTPServer(s *http.Server, srv *RatesService) {
	r := s.Route("/")
	r.GET("/v1/rates/{source}", ratesGetRatesHandler(srv))
	r.GET("/v1/rates/{source}/trends", ratesGetTrendsHandler(srv))
	r.GET("/v1/rates/{source}/history", ratesGetHistoryHandler(srv))
	r.DELETE("/v1/rates/{source}/cache", ratesClearCacheHandler(srv))
	r.GET("/v1/health", ratesGetHealthHandler(srv))
	r.GET("/v1/health/{name}", ratesGetSourceHealthHandler(srv))
	r.POST("/v1/breakers/{name}/reset", ratesResetBreakerHandler(srv))
}

func ratesGetRatesHandler(srv *RatesService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		source := ctx.Vars().Get("source")
		http.SetOperation(ctx, OperationRatesGetRates)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.GetRates(ctx, req.(string))
		})
		out, err := h(ctx, source)
		if err != nil {
			return err
		}
		return ctx.Result(nethttp.StatusOK, out)
	}
}

func ratesGetTrendsHandler(srv *RatesService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		source := ctx.Vars().Get("source")
		http.SetOperation(ctx, OperationRatesGetTrends)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.GetTrends(ctx, req.(string))
		})
		out, err := h(ctx, source)
		if err != nil {
			return err
		}
		return ctx.Result(nethttp.StatusOK, out)
	}
}

type historyRequest struct {
	Source string
	Days   int
}

func ratesGetHistoryHandler(srv *RatesService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		in := historyRequest{Source: ctx.Vars().Get("source")}
		if raw := ctx.Query().Get("days"); raw != "" {
			days, err := strconv.Atoi(raw)
			if err != nil {
				return errors.BadRequest(ReasonInvalidDays, "days must be an integer").
					WithMetadata(map[string]string{"days": raw})
			}
			in.Days = days
		}
		http.SetOperation(ctx, OperationRatesGetHistory)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			r := req.(historyRequest)
			return srv.GetHistory(ctx, r.Source, r.Days)
		})
		out, err := h(ctx, in)
		if err != nil {
			return err
		}
		return ctx.Result(nethttp.StatusOK, out)
	}
}

func ratesClearCacheHandler(srv *RatesService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		source := ctx.Vars().Get("source")
		http.SetOperation(ctx, OperationRatesClearCache)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.ClearCache(ctx, req.(string))
		})
		out, err := h(ctx, source)
		if err != nil {
			return err
		}
		return ctx.Result(nethttp.StatusOK, out)
	}
}

// The aggregate health route answers 503 while any source is unhealthy.
func ratesGetHealthHandler(srv *RatesService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		http.SetOperation(ctx, OperationRatesGetHealth)
		h := ctx.Middleware(func(ctx context.Context, _ interface{}) (interface{}, error) {
			return srv.GetHealth(ctx), nil
		})
		out, err := h(ctx, nil)
		if err != nil {
			return err
		}
		code := nethttp.StatusOK
		if reply, ok := out.(*HealthReply); ok && !reply.AllHealthy {
			code = nethttp.StatusServiceUnavailable
		}
		return ctx.Result(code, out)
	}
}

func ratesGetSourceHealthHandler(srv *RatesService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		name := ctx.Vars().Get("name")
		http.SetOperation(ctx, OperationRatesGetSourceHealth)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.GetSourceHealth(ctx, req.(string))
		})
		out, err := h(ctx, name)
		if err != nil {
			return err
		}
		return ctx.Result(nethttp.StatusOK, out)
	}
}

func ratesResetBreakerHandler(srv *RatesService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		name := ctx.Vars().Get("name")
		http.SetOperation(ctx, OperationRatesResetBreaker)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.ResetBreaker(ctx, req.(string))
		})
		out, err := h(ctx, name)
		if err != nil {
			return err
		}
		return ctx.Result(nethttp.StatusOK, out)
	}
}

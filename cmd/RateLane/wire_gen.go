//go:build !wireinject
// +build !wireinject

// This injector is maintained by hand; wire cannot resolve the generic
// usecase types. Keep it in step with the provider sets in wire.go.

package main

import (
	"RateLane/internal/biz"
	"RateLane/internal/conf"
	"RateLane/internal/data"
	"RateLane/internal/server"
	"RateLane/internal/service"
	"RateLane/pkg/metrics"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
)

// wireApp init kratos application.
func wireApp(confServer *conf.Server, confData *conf.Data, transport *conf.Transport, health *conf.Health, history *conf.History, jobs *conf.Jobs, sources *conf.Sources, logger log.Logger) (*kratos.App, func(), error) {
	client, cleanup, err := data.NewRedisClient(confData, logger)
	if err != nil {
		return nil, nil, err
	}
	cacheClient := data.NewCacheClient(client)
	db, cleanup2, err := data.NewMySQLClient(confData, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	dataData, cleanup3, err := data.NewData(confData, logger, client, cacheClient, db)
	if err != nil {
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	historyRepo, err := data.NewHistoryRepo(dataData, history, logger)
	if err != nil {
		cleanup3()
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	healthMonitor := data.NewHealthMonitor(health)
	httpClient, err := data.NewHTTPClient(transport)
	if err != nil {
		cleanup3()
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	scraperScraper, err := data.NewBCVScraper(sources, httpClient, healthMonitor, logger)
	if err != nil {
		cleanup3()
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	scraper2, err := data.NewP2PScraper(sources, httpClient, healthMonitor, logger)
	if err != nil {
		cleanup3()
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	registry := server.NewMetricsRegistry(healthMonitor)
	rateMetrics := metrics.NewRateMetrics(registry)
	rateUsecase := biz.NewBCVUsecase(sources, history, scraperScraper, historyRepo, rateMetrics, logger)
	bizRateUsecase := biz.NewP2PUsecase(sources, history, scraper2, historyRepo, rateMetrics, logger)
	ratesService := service.NewRatesService(rateUsecase, bizRateUsecase, healthMonitor, logger)
	httpServer := server.NewHTTPServer(confServer, ratesService, registry, logger)
	healthReporter := server.NewHealthReporter(healthMonitor, logger)
	grpcServer := server.NewGRPCServer(confServer, healthReporter)
	refreshTask := biz.NewRefreshTask(rateUsecase, bizRateUsecase, historyRepo, history, logger)
	mainJobs, err := newJobs(jobs, refreshTask, healthReporter, rateUsecase, bizRateUsecase, logger)
	if err != nil {
		cleanup3()
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	app := newApp(logger, grpcServer, httpServer, mainJobs)
	return app, func() {
		cleanup3()
		cleanup2()
		cleanup()
	}, nil
}

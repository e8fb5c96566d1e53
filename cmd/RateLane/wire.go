//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"RateLane/internal/biz"
	"RateLane/internal/conf"
	"RateLane/internal/data"
	"RateLane/internal/server"
	"RateLane/internal/service"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// wireApp init kratos application.
func wireApp(*conf.Server, *conf.Data, *conf.Transport, *conf.Health, *conf.History, *conf.Jobs, *conf.Sources, log.Logger) (*kratos.App, func(), error) {
	panic(wire.Build(
		data.ProviderSet,
		biz.ProviderSet,
		service.ProviderSet,
		server.ProviderSet,
		newJobs,
		newApp,
	))
}

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"RateLane/internal/biz"
	"RateLane/internal/conf"
	"RateLane/internal/model"
	"RateLane/internal/server"
	pkglog "RateLane/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

const (
	defaultRefreshSpec = "0 */1 * * * *"
	defaultPruneSpec   = "0 15 3 * * *"

	refreshTimeout = 2 * time.Minute
	pruneTimeout   = 10 * time.Minute
)

type flusher interface {
	Flush(ctx context.Context) error
}

// Jobs runs the cache warm-up and history prune on a seconds-enabled cron.
// It implements transport.Server so the app starts and stops it with the
// listeners.
type Jobs struct {
	cron     *cron.Cron
	task     *biz.RefreshTask
	reporter *server.HealthReporter
	flushers []flusher
	logger   *log.Helper
	events   *pkglog.LogHelper
}

func newJobs(
	c *conf.Jobs,
	task *biz.RefreshTask,
	reporter *server.HealthReporter,
	bcv *biz.RateUsecase[model.BCVRates],
	p2p *biz.RateUsecase[model.P2PRates],
	logger log.Logger,
) (*Jobs, error) {
	refreshSpec, pruneSpec := defaultRefreshSpec, defaultPruneSpec
	if c != nil {
		if c.RefreshSpec != "" {
			refreshSpec = c.RefreshSpec
		}
		if c.PruneSpec != "" {
			pruneSpec = c.PruneSpec
		}
	}

	l := log.With(logger, "module", "cmd/jobs")
	j := &Jobs{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		task:     task,
		reporter: reporter,
		flushers: []flusher{bcv, p2p},
		logger:   log.NewHelper(l),
		events:   pkglog.NewLogHelper(l),
	}

	if _, err := j.cron.AddFunc(refreshSpec, j.refresh); err != nil {
		return nil, fmt.Errorf("invalid jobs.refresh_spec %q: %w", refreshSpec, err)
	}
	if _, err := j.cron.AddFunc(pruneSpec, j.prune); err != nil {
		return nil, fmt.Errorf("invalid jobs.prune_spec %q: %w", pruneSpec, err)
	}
	j.events.Scheduler("jobs registered", "refresh_spec", refreshSpec, "prune_spec", pruneSpec)
	return j, nil
}

func (j *Jobs) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	j.task.WarmAll(ctx)
	j.reporter.Update()
}

func (j *Jobs) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
	defer cancel()

	if _, err := j.task.PruneHistory(ctx); err != nil {
		j.logger.Errorw("msg", "history prune job failed", "error", err)
	}
}

// Start warms the caches in the background and starts the schedule.
func (j *Jobs) Start(context.Context) error {
	go j.refresh()
	j.cron.Start()
	j.events.Startup("background jobs started")
	return nil
}

// Stop waits for running jobs and pending history writes, bounded by ctx.
func (j *Jobs) Stop(ctx context.Context) error {
	select {
	case <-j.cron.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	var errs []error
	for _, f := range j.flushers {
		if err := f.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	j.reporter.Shutdown()
	if err := errors.Join(errs...); err != nil {
		j.logger.Warnw("msg", "history writes still pending at shutdown", "error", err)
		return err
	}
	j.events.Success("background jobs stopped")
	return nil
}

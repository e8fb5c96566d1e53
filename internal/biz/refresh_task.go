package biz

import (
	"context"
	"fmt"
	"time"

	"RateLane/internal/conf"
	"RateLane/internal/model"
	pkgerrors "RateLane/pkg/errors"
	pkglog "RateLane/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/sync/errgroup"
)

const defaultRetention = 90 * 24 * time.Hour

// Refresher is one provider the warm-up job keeps fresh.
type Refresher interface {
	Name() string
	// Refresh fetches a snapshot and reports whether it was live or served
	// from a fallback tier.
	Refresh(ctx context.Context) (origin string)
}

// Refresh implements Refresher.
func (uc *RateUsecase[V]) Refresh(ctx context.Context) string {
	snap := uc.FetchRates(ctx)
	switch {
	case snap.Fallback:
		return string(snap.FallbackReason)
	case snap.Cached:
		return "cached"
	default:
		return "live"
	}
}

// RefreshTask runs the periodic background work: keeping every provider's
// cache warm and pruning old history.
type RefreshTask struct {
	providers []Refresher
	history   HistoryRepo
	retention time.Duration
	now       func() time.Time
	logger    *log.Helper
	events    *pkglog.LogHelper
}

// NewRefreshTask creates the background task over both providers.
func NewRefreshTask(
	bcv *RateUsecase[model.BCVRates],
	p2p *RateUsecase[model.P2PRates],
	history HistoryRepo,
	c *conf.History,
	logger log.Logger,
) *RefreshTask {
	retention := defaultRetention
	if c != nil && c.Retention > 0 {
		retention = c.Retention
	}
	l := log.With(logger, "module", "biz/refresh")
	return &RefreshTask{
		providers: []Refresher{bcv, p2p},
		history:   history,
		retention: retention,
		now:       time.Now,
		logger:    log.NewHelper(l),
		events:    pkglog.NewLogHelper(l),
	}
}

// WarmAll fetches every provider concurrently and returns the origin of
// each snapshot by provider name.
func (t *RefreshTask) WarmAll(ctx context.Context) map[string]string {
	origins := make([]string, len(t.providers))
	start := t.now()

	var g errgroup.Group
	for i, p := range t.providers {
		i, p := i, p
		g.Go(func() error {
			origins[i] = p.Refresh(ctx)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]string, len(t.providers))
	for i, p := range t.providers {
		out[p.Name()] = origins[i]
	}
	kvs := []interface{}{"duration_ms", t.now().Sub(start).Milliseconds()}
	for name, origin := range out {
		kvs = append(kvs, name, origin)
	}
	t.events.Scheduler("rates refreshed", kvs...)
	return out
}

// PruneHistory deletes history older than the retention window.
func (t *RefreshTask) PruneHistory(ctx context.Context) (int64, error) {
	if t.history == nil {
		return 0, nil
	}
	cutoff := t.now().Add(-t.retention)
	n, err := t.history.Prune(ctx, cutoff)
	if err != nil {
		if pkgerrors.IsTransient(err) {
			t.logger.Warnw("msg", "history prune deferred", "cutoff", cutoff, "error", err)
		} else {
			t.logger.Errorw("msg", "history prune failed", "cutoff", cutoff, "error", err)
		}
		return 0, fmt.Errorf("prune history: %w", err)
	}
	t.events.Scheduler("history pruned", "deleted", n, "cutoff", cutoff.Format(time.RFC3339))
	return n, nil
}

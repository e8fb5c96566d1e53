package biz

import (
	"context"
	"fmt"
	"math"
	"time"

	"RateLane/internal/model"
)

// stableThreshold is the absolute percentage change still reported as stable.
const stableThreshold = 0.1

var trendPeriods = []struct {
	name string
	days int
}{
	{"1d", 1},
	{"1w", 7},
	{"1m", 30},
}

// computeTrends compares the oldest and newest reading of each key over
// each look-back period. One extra day of history is read so a period
// always spans a full comparison.
func computeTrends(ctx context.Context, repo HistoryRepo, provider string, keys []string, now time.Time) (model.Trends, error) {
	out := make(model.Trends, len(trendPeriods))
	for _, p := range trendPeriods {
		since := now.AddDate(0, 0, -(p.days + 1))
		entries, err := repo.Window(ctx, provider, since)
		if err != nil {
			return nil, fmt.Errorf("history window %s: %w", p.name, err)
		}

		trends := make([]model.Trend, 0, len(keys))
		for _, key := range keys {
			trends = append(trends, trendFor(key, p.name, entries))
		}
		out[p.name] = trends
	}
	return out, nil
}

func trendFor(key, period string, entries []model.HistoryEntry) model.Trend {
	t := model.Trend{Key: key, Period: period, Direction: model.DirectionStable}

	var values []float64
	for _, e := range entries {
		if v, ok := e.Values[key]; ok && v > 0 {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return t
	}

	current := values[len(values)-1]
	t.Current = model.Round2(current)
	t.Previous = t.Current
	if len(values) < 2 {
		return t
	}

	previous := values[0]
	change := current - previous
	pct := change / previous * 100

	t.Previous = model.Round2(previous)
	t.Change = model.Round2(change)
	t.ChangePercent = model.Round2(pct)
	switch {
	case math.Abs(pct) <= stableThreshold:
	case change > 0:
		t.Direction = model.DirectionUp
	default:
		t.Direction = model.DirectionDown
	}
	return t
}

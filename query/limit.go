package query

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/caleheinzz25/realtime-energy-monitoring/reading"
	"github.com/caleheinzz25/realtime-energy-monitoring/timeseries"
)

// Default store query budget shared by all callers of a Service.
const (
	DefaultQueryRate  = rate.Limit(100)
	DefaultQueryBurst = 10
)

// limitedStore admits store queries through a token bucket so a burst of
// dashboard requests cannot flood the time-series backend. A query whose
// token would not arrive before ctx ends fails without reaching the store.
type limitedStore struct {
	timeseries.Store
	limiter *rate.Limiter
}

func (l limitedStore) Latest(ctx context.Context, panelID string) (reading.Reading, bool, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return reading.Reading{}, false, err
	}
	return l.Store.Latest(ctx, panelID)
}

func (l limitedStore) FirstInWindow(ctx context.Context, panelID string, start, end time.Time) (timeseries.Sample, bool, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return timeseries.Sample{}, false, err
	}
	return l.Store.FirstInWindow(ctx, panelID, start, end)
}

func (l limitedStore) LastInWindow(ctx context.Context, panelID string, start, end time.Time) (timeseries.Sample, bool, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return timeseries.Sample{}, false, err
	}
	return l.Store.LastInWindow(ctx, panelID, start, end)
}

func (l limitedStore) Aggregate(ctx context.Context, panelID string, lookback, width time.Duration) ([]timeseries.Bucket, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.Store.Aggregate(ctx, panelID, lookback, width)
}

func (l limitedStore) MonthlyDeltas(ctx context.Context, year, month int) ([]timeseries.PanelDelta, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.Store.MonthlyDeltas(ctx, year, month)
}

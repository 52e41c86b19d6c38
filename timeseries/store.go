package timeseries

import (
	"context"
	"time"

	"github.com/caleheinzz25/realtime-energy-monitoring/reading"
)

// LatestLookback bounds how far back Latest searches.
const LatestLookback = time.Hour

// Sample is one energy counter value.
type Sample struct {
	Time      time.Time
	EnergyKWh float64
}

// Bucket is the mean of the samples in one aggregation window. Time is the
// window end, clipped to the query range.
type Bucket struct {
	Time      time.Time
	EnergyKWh float64
	PowerKW   float64
}

// PanelDelta is the energy used by a panel over a calendar month.
type PanelDelta struct {
	PanelID  string
	TotalKWh float64
}

// Store persists Readings and answers the range queries behind usage and
// history. Write failures and query failures wrap errors.ErrStoreUnavailable.
type Store interface {
	// Write persists r durably before returning.
	Write(ctx context.Context, r reading.Reading) error

	// Latest returns the most recent Reading within LatestLookback.
	Latest(ctx context.Context, panelID string) (reading.Reading, bool, error)

	// FirstInWindow and LastInWindow return the earliest and latest energy
	// counter samples in [start, end].
	FirstInWindow(ctx context.Context, panelID string, start, end time.Time) (Sample, bool, error)
	LastInWindow(ctx context.Context, panelID string, start, end time.Time) (Sample, bool, error)

	// Aggregate returns per-window means of energy and power over the last
	// lookback. Empty windows are omitted.
	Aggregate(ctx context.Context, panelID string, lookback, width time.Duration) ([]Bucket, error)

	// MonthlyDeltas returns max(0, last-first) per panel with samples in the
	// month. Panels without samples are absent.
	MonthlyDeltas(ctx context.Context, year, month int) ([]PanelDelta, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close flushes buffered writes and releases the backend.
	Close() error
}

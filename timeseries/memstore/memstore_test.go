package memstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caleheinzz25/realtime-energy-monitoring/errors"
	"github.com/caleheinzz25/realtime-energy-monitoring/reading"
	"github.com/caleheinzz25/realtime-energy-monitoring/timeseries"
)

var now = time.Date(2025, 3, 14, 13, 47, 0, 0, time.UTC)

func newStore() *Store {
	return New(WithClock(func() time.Time { return now }), WithLocation(time.UTC))
}

func write(t *testing.T, s *Store, panelID string, ts time.Time, kwh, kw float64) {
	t.Helper()
	require.NoError(t, s.Write(context.Background(), reading.Reading{
		PanelID: panelID, Timestamp: ts, EnergyKWh: kwh, PowerKW: kw,
	}))
}

func TestLatest(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	_, ok, err := s.Latest(ctx, "P1")
	require.NoError(t, err)
	assert.False(t, ok)

	write(t, s, "P1", now.Add(-10*time.Minute), 10, 1)
	write(t, s, "P1", now.Add(-30*time.Minute), 9, 1)

	r, ok, err := s.Latest(ctx, "P1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10.0, r.EnergyKWh, "newest by timestamp, not by write order")

	old := newStore()
	write(t, old, "P1", now.Add(-2*time.Hour), 5, 1)
	_, ok, err = old.Latest(ctx, "P1")
	require.NoError(t, err)
	assert.False(t, ok, "readings older than the lookback are ignored")
}

func TestFirstAndLastInWindow(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	midnight := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)

	write(t, s, "P1", midnight.Add(-time.Minute), 99, 0)
	write(t, s, "P1", midnight.Add(5*time.Minute), 100, 0)
	write(t, s, "P1", midnight.Add(6*time.Hour), 112.5, 0)

	first, ok, err := s.FirstInWindow(ctx, "P1", midnight, now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 100.0, first.EnergyKWh)

	last, ok, err := s.LastInWindow(ctx, "P1", midnight, now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 112.5, last.EnergyKWh)

	_, ok, err = s.FirstInWindow(ctx, "P2", midnight, now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAggregate_MeanPerWindow(t *testing.T) {
	s := newStore()
	hour := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

	write(t, s, "P1", hour, 10, 2)
	write(t, s, "P1", hour.Add(30*time.Minute), 20, 4)

	buckets, err := s.Aggregate(context.Background(), "P1", 24*time.Hour, time.Hour)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, 15.0, buckets[0].EnergyKWh)
	assert.Equal(t, 3.0, buckets[0].PowerKW)
	// windows run from now-24h = 13:47 the day before, so 09:47 to 10:47 holds both
	assert.Equal(t, hour.Add(47*time.Minute), buckets[0].Time, "bucket is stamped with the window end")
}

func TestAggregate_SparseWindowsOmitted(t *testing.T) {
	s := newStore()

	write(t, s, "P1", time.Date(2025, 3, 14, 2, 10, 0, 0, time.UTC), 1, 1)
	write(t, s, "P1", time.Date(2025, 3, 14, 9, 10, 0, 0, time.UTC), 2, 1)

	buckets, err := s.Aggregate(context.Background(), "P1", 24*time.Hour, time.Hour)
	require.NoError(t, err)
	assert.Len(t, buckets, 2)
}

func TestAggregate_RangePolicySpacing(t *testing.T) {
	for _, token := range []string{"24h", "7d", "30d", "1y", "365d"} {
		t.Run(token, func(t *testing.T) {
			rng, err := timeseries.ParseRange(token)
			require.NoError(t, err)

			s := newStore()
			// hourly samples reaching past the lookback
			for ts := now.Add(-rng.Lookback - 48*time.Hour); !ts.After(now); ts = ts.Add(time.Hour) {
				write(t, s, "P1", ts, 1, 1)
			}

			buckets, err := s.Aggregate(context.Background(), "P1", rng.Lookback, rng.Width)
			require.NoError(t, err)
			require.NotEmpty(t, buckets)
			assert.LessOrEqual(t, len(buckets), rng.MaxBuckets())

			for i := 1; i < len(buckets)-1; i++ {
				assert.Equal(t, rng.Width, buckets[i].Time.Sub(buckets[i-1].Time), "bucket %d", i)
			}
			last := buckets[len(buckets)-1]
			assert.Equal(t, now, last.Time, "last window clipped to now")
			assert.False(t, buckets[0].Time.Before(now.Add(-rng.Lookback)))
			assert.Len(t, buckets, rng.MaxBuckets(), "every window holds an hourly sample")
		})
	}
}

func TestAggregate_LeadingWindowKeepsSamples(t *testing.T) {
	for _, token := range timeseries.RangeTokens() {
		rng, err := timeseries.ParseRange(token)
		require.NoError(t, err)

		for _, into := range []time.Duration{0, time.Minute, 3 * time.Minute, 59 * time.Minute} {
			t.Run(fmt.Sprintf("%s+%s", token, into), func(t *testing.T) {
				s := newStore()
				start := now.Add(-rng.Lookback)
				write(t, s, "P1", start.Add(into), 42, 2)

				buckets, err := s.Aggregate(context.Background(), "P1", rng.Lookback, rng.Width)
				require.NoError(t, err)
				require.Len(t, buckets, 1)
				assert.Equal(t, 42.0, buckets[0].EnergyKWh)
				assert.Equal(t, start.Add(rng.Width), buckets[0].Time)
			})
		}
	}
}

func TestAggregate_OutsideLookbackExcluded(t *testing.T) {
	s := newStore()
	write(t, s, "P1", now.Add(-time.Hour-time.Second), 1, 1)

	buckets, err := s.Aggregate(context.Background(), "P1", time.Hour, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, buckets)
}

func TestAggregate_InvalidWindow(t *testing.T) {
	_, err := newStore().Aggregate(context.Background(), "P1", 0, time.Hour)
	assert.True(t, errors.IsInvalid(err))
}

func TestMonthlyDeltas(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	march := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	// counter reset mid-month
	write(t, s, "PANEL_A", march.Add(time.Hour), 100, 0)
	write(t, s, "PANEL_A", march.Add(10*24*time.Hour), 80, 0)

	write(t, s, "PANEL_B", march, 50, 0)
	write(t, s, "PANEL_B", time.Date(2025, 3, 31, 23, 59, 59, 0, time.UTC), 75, 0)
	write(t, s, "PANEL_B", time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), 500, 0)

	write(t, s, "PANEL_C", time.Date(2025, 2, 20, 0, 0, 0, 0, time.UTC), 10, 0)

	deltas, err := s.MonthlyDeltas(ctx, 2025, 3)
	require.NoError(t, err)
	require.Len(t, deltas, 2)

	assert.Equal(t, timeseries.PanelDelta{PanelID: "PANEL_A", TotalKWh: 0}, deltas[0])
	assert.Equal(t, timeseries.PanelDelta{PanelID: "PANEL_B", TotalKWh: 25}, deltas[1])

	_, err = s.MonthlyDeltas(ctx, 2025, 13)
	assert.True(t, errors.IsInvalid(err))
}

func TestClose_RejectsWrites(t *testing.T) {
	s := newStore()
	require.NoError(t, s.Close())

	err := s.Write(context.Background(), reading.Reading{PanelID: "P1", Timestamp: now})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStoreUnavailable))
	assert.Error(t, s.Ping(context.Background()))
}

package freshness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caleheinzz25/realtime-energy-monitoring/metric"
	"github.com/caleheinzz25/realtime-energy-monitoring/reading"
	"github.com/caleheinzz25/realtime-energy-monitoring/usage"
)

func TestCache_PutGet(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	c, err := New(WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	_, ok := c.Get("PANEL_LANTAI_2")
	assert.False(t, ok)

	payloadTime := now.Add(-time.Hour)
	require.NoError(t, c.Put("PANEL_LANTAI_2", reading.Reading{EnergyKWh: 120, Timestamp: payloadTime}))

	entry, ok := c.Get("PANEL_LANTAI_2")
	require.True(t, ok)
	assert.Equal(t, "PANEL_LANTAI_2", entry.PanelID)
	assert.Equal(t, 120.0, entry.EnergyKWh)
	assert.True(t, entry.LastUpdate.Equal(now), "LastUpdate is install time, not payload time")
	assert.True(t, entry.Timestamp.Equal(payloadTime))
}

func TestCache_LastWriteWins(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	require.NoError(t, c.Put("P1", reading.Reading{EnergyKWh: 1}))
	require.NoError(t, c.Put("P1", reading.Reading{EnergyKWh: 2}))

	entry, ok := c.Get("P1")
	require.True(t, ok)
	assert.Equal(t, 2.0, entry.EnergyKWh)
	assert.Equal(t, 1, c.Len())
}

func TestCache_StaleEntriesRemain(t *testing.T) {
	start := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	c, err := New(WithClock(func() time.Time { return start }))
	require.NoError(t, err)
	require.NoError(t, c.Put("P1", reading.Reading{EnergyKWh: 5}))

	later := start.Add(usage.StalenessThreshold + time.Minute)
	entry, ok := c.Get("P1")
	require.True(t, ok, "stale entries are not evicted")
	assert.True(t, entry.Stale(later))
	assert.False(t, entry.Stale(start.Add(time.Minute)))
}

func TestCache_AllSorted(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	for _, id := range []string{"P3", "P1", "P2"} {
		require.NoError(t, c.Put(id, reading.Reading{}))
	}

	all := c.All()
	require.Len(t, all, 3)
	assert.Equal(t, "P1", all[0].PanelID)
	assert.Equal(t, "P2", all[1].PanelID)
	assert.Equal(t, "P3", all[2].PanelID)
}

func TestCache_EmptyPanelIDRejected(t *testing.T) {
	c, err := New()
	require.NoError(t, err)
	assert.Error(t, c.Put("", reading.Reading{}))
}

func TestCache_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	c, err := New(WithMetrics(registry))
	require.NoError(t, err)

	require.NoError(t, c.Put("P1", reading.Reading{}))
	_, _ = c.Get("P1")
	_, _ = c.Get("P2")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "energymon_cache_hits_total")
}

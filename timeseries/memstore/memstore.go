// Package memstore is an in-process timeseries.Store. It keeps every sample
// for the life of the process and mirrors the Flux query semantics of the
// InfluxDB store, so it backs unit tests and STORAGE_MODE=memory runs.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/caleheinzz25/realtime-energy-monitoring/errors"
	"github.com/caleheinzz25/realtime-energy-monitoring/reading"
	"github.com/caleheinzz25/realtime-energy-monitoring/timeseries"
)

// Store holds readings per panel sorted by timestamp.
type Store struct {
	mu       sync.RWMutex
	series   map[string][]reading.Reading
	clock    func() time.Time
	location *time.Location
	closed   bool
}

var _ timeseries.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used as "now" for lookback queries.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// WithLocation sets the zone calendar months are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.location = loc
		}
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		series:   make(map[string][]reading.Reading),
		clock:    time.Now,
		location: time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Write appends r, keeping the panel's series ordered by timestamp.
func (s *Store) Write(ctx context.Context, r reading.Reading) error {
	if err := ctx.Err(); err != nil {
		return errors.StoreUnavailable(err, "MemStore", "Write", "write reading")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.StoreUnavailable(fmt.Errorf("store closed"), "MemStore", "Write", "write reading")
	}

	series := s.series[r.PanelID]
	i := sort.Search(len(series), func(i int) bool { return series[i].Timestamp.After(r.Timestamp) })
	series = append(series, reading.Reading{})
	copy(series[i+1:], series[i:])
	series[i] = r
	s.series[r.PanelID] = series
	return nil
}

// Latest returns the newest reading within timeseries.LatestLookback.
func (s *Store) Latest(ctx context.Context, panelID string) (reading.Reading, bool, error) {
	now := s.clock()
	samples := s.window(panelID, now.Add(-timeseries.LatestLookback), now, true)
	if len(samples) == 0 {
		return reading.Reading{}, false, nil
	}
	return samples[len(samples)-1], true, nil
}

// FirstInWindow returns the earliest energy sample in [start, end].
func (s *Store) FirstInWindow(ctx context.Context, panelID string, start, end time.Time) (timeseries.Sample, bool, error) {
	samples := s.window(panelID, start, end, true)
	if len(samples) == 0 {
		return timeseries.Sample{}, false, nil
	}
	return sampleOf(samples[0]), true, nil
}

// LastInWindow returns the latest energy sample in [start, end].
func (s *Store) LastInWindow(ctx context.Context, panelID string, start, end time.Time) (timeseries.Sample, bool, error) {
	samples := s.window(panelID, start, end, true)
	if len(samples) == 0 {
		return timeseries.Sample{}, false, nil
	}
	return sampleOf(samples[len(samples)-1]), true, nil
}

// Aggregate averages energy and power per window, windows laid end to end
// from now-lookback.
func (s *Store) Aggregate(ctx context.Context, panelID string, lookback, width time.Duration) ([]timeseries.Bucket, error) {
	if lookback <= 0 || width <= 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: lookback %s width %s", errors.ErrInvalidRange, lookback, width),
			"MemStore", "Aggregate", "validate window")
	}

	now := s.clock()
	start := now.Add(-lookback)
	samples := s.window(panelID, start, now, false)

	var buckets []timeseries.Bucket
	var current time.Time
	var sumEnergy, sumPower float64
	var n int

	flush := func() {
		if n == 0 {
			return
		}
		stop := current.Add(width)
		if stop.After(now) {
			stop = now
		}
		buckets = append(buckets, timeseries.Bucket{
			Time:      stop,
			EnergyKWh: sumEnergy / float64(n),
			PowerKW:   sumPower / float64(n),
		})
		sumEnergy, sumPower, n = 0, 0, 0
	}

	for _, r := range samples {
		ws := timeseries.AnchoredWindowStart(start, r.Timestamp, width)
		if n > 0 && !ws.Equal(current) {
			flush()
		}
		current = ws
		sumEnergy += r.EnergyKWh
		sumPower += r.PowerKW
		n++
	}
	flush()

	return buckets, nil
}

// MonthlyDeltas computes max(0, last-first) per panel over the month.
func (s *Store) MonthlyDeltas(ctx context.Context, year, month int) ([]timeseries.PanelDelta, error) {
	start, end, err := timeseries.MonthBounds(year, month, s.location)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	panels := make([]string, 0, len(s.series))
	for id := range s.series {
		panels = append(panels, id)
	}
	s.mu.RUnlock()
	sort.Strings(panels)

	var deltas []timeseries.PanelDelta
	for _, id := range panels {
		samples := s.window(id, start, end, true)
		if len(samples) == 0 {
			continue
		}
		first := samples[0].EnergyKWh
		last := samples[len(samples)-1].EnergyKWh
		total := last - first
		if total < 0 {
			total = 0
		}
		deltas = append(deltas, timeseries.PanelDelta{PanelID: id, TotalKWh: total})
	}
	return deltas, nil
}

// Ping always succeeds while the store is open.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.StoreUnavailable(fmt.Errorf("store closed"), "MemStore", "Ping", "check store")
	}
	return nil
}

// Close marks the store closed. Later writes fail.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// window copies samples with start <= ts < end, or ts <= end when inclusive.
func (s *Store) window(panelID string, start, end time.Time, inclusive bool) []reading.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.series[panelID]
	lo := sort.Search(len(series), func(i int) bool { return !series[i].Timestamp.Before(start) })
	hi := sort.Search(len(series), func(i int) bool {
		if inclusive {
			return series[i].Timestamp.After(end)
		}
		return !series[i].Timestamp.Before(end)
	})
	if lo >= hi {
		return nil
	}
	out := make([]reading.Reading, hi-lo)
	copy(out, series[lo:hi])
	return out
}

func sampleOf(r reading.Reading) timeseries.Sample {
	return timeseries.Sample{Time: r.Timestamp, EnergyKWh: r.EnergyKWh}
}

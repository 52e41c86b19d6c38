// Package freshness keeps the most recent persisted Reading per panel.
package freshness

import (
	"sort"
	"time"

	"github.com/caleheinzz25/realtime-energy-monitoring/errors"
	"github.com/caleheinzz25/realtime-energy-monitoring/metric"
	"github.com/caleheinzz25/realtime-energy-monitoring/pkg/cache"
	"github.com/caleheinzz25/realtime-energy-monitoring/reading"
	"github.com/caleheinzz25/realtime-energy-monitoring/usage"
)

// Entry is a cached Reading plus the instant it was installed.
type Entry struct {
	reading.Reading
	LastUpdate time.Time
}

// Stale reports whether the entry is older than usage.StalenessThreshold.
func (e Entry) Stale(now time.Time) bool {
	return usage.IsStale(e.LastUpdate, now)
}

// Cache is a last-write-wins slot per panel. Entries are never evicted;
// staleness is judged at read time. One goroutine writes, any number read.
type Cache struct {
	entries cache.Cache[Entry]
	clock   func() time.Time
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	clock    func() time.Time
	registry *metric.MetricsRegistry
}

// WithClock overrides the clock used for LastUpdate.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithMetrics exports hit/miss/set counters under the "freshness" component.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(o *options) { o.registry = registry }
}

// New creates an empty cache.
func New(opts ...Option) (*Cache, error) {
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = time.Now
	}

	entries, err := cache.NewSimple[Entry](cache.WithMetrics[Entry](o.registry, "freshness"))
	if err != nil {
		return nil, errors.Wrap(err, "Cache", "New", "create entry store")
	}
	return &Cache{entries: entries, clock: o.clock}, nil
}

// Put installs r for its panel, stamping LastUpdate with the cache clock.
func (c *Cache) Put(panelID string, r reading.Reading) error {
	r.PanelID = panelID
	_, err := c.entries.Set(panelID, Entry{Reading: r, LastUpdate: c.clock()})
	return err
}

// Get returns the entry for a panel, if any.
func (c *Cache) Get(panelID string) (Entry, bool) {
	return c.entries.Get(panelID)
}

// All returns a snapshot of every entry ordered by panel id.
func (c *Cache) All() []Entry {
	snapshot := c.entries.Snapshot()
	out := make([]Entry, 0, len(snapshot))
	for _, entry := range snapshot {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PanelID < out[j].PanelID })
	return out
}

// Len returns the number of panels with a cached reading.
func (c *Cache) Len() int {
	return c.entries.Size()
}

// Stats exposes hit/miss counters.
func (c *Cache) Stats() cache.StatsSummary {
	return c.entries.Stats().Summary()
}

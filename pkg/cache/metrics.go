package cache

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/caleheinzz25/realtime-energy-monitoring/metric"
)

// cacheMetrics mirrors Statistics into Prometheus. Every series carries a
// constant component label set to the cache prefix.
type cacheMetrics struct {
	hits   prometheus.Counter
	misses prometheus.Counter
	sets   prometheus.Counter
	size   prometheus.Gauge
}

func newCacheMetrics(registry *metric.MetricsRegistry, prefix string) (*cacheMetrics, error) {
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{
			Namespace:   metric.Namespace,
			Subsystem:   "cache",
			Name:        name,
			Help:        help,
			ConstLabels: prometheus.Labels{"component": prefix},
		}
	}

	m := &cacheMetrics{
		hits:   prometheus.NewCounter(prometheus.CounterOpts(opts("hits_total", "Cache lookups that found an entry"))),
		misses: prometheus.NewCounter(prometheus.CounterOpts(opts("misses_total", "Cache lookups that found nothing"))),
		sets:   prometheus.NewCounter(prometheus.CounterOpts(opts("sets_total", "Cache writes"))),
		size:   prometheus.NewGauge(prometheus.GaugeOpts(opts("size", "Entries held by the cache"))),
	}

	for name, c := range map[string]prometheus.Counter{
		"cache_hits":   m.hits,
		"cache_misses": m.misses,
		"cache_sets":   m.sets,
	} {
		if err := registry.RegisterCounter(prefix, name, c); err != nil {
			return nil, err
		}
	}
	if err := registry.RegisterGauge(prefix, "cache_size", m.size); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *cacheMetrics) lookup(hit bool) {
	if hit {
		m.hits.Inc()
	} else {
		m.misses.Inc()
	}
}

func (m *cacheMetrics) set(size int) {
	m.sets.Inc()
	m.size.Set(float64(size))
}

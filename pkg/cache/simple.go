package cache

import (
	"maps"
	"sync"

	"github.com/caleheinzz25/realtime-energy-monitoring/errors"
)

// mapCache guards a map with an RWMutex; readers never block each other.
type mapCache[V any] struct {
	mu    sync.RWMutex
	items map[string]V

	stats   *Statistics
	metrics *cacheMetrics // nil without WithMetrics
}

func newMapCache[V any](opts *cacheOptions[V]) (*mapCache[V], error) {
	c := &mapCache[V]{
		items: make(map[string]V),
		stats: NewStatistics(),
	}
	if opts.metricsReg != nil {
		m, err := newCacheMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "cache", "NewSimple", "register metrics")
		}
		c.metrics = m
	}
	return c, nil
}

func (c *mapCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	value, ok := c.items[key]
	c.mu.RUnlock()

	c.stats.lookup(ok)
	if c.metrics != nil {
		c.metrics.lookup(ok)
	}
	return value, ok
}

func (c *mapCache[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	_, existed := c.items[key]
	c.items[key] = value
	size := len(c.items)
	c.mu.Unlock()

	c.stats.set(size)
	if c.metrics != nil {
		c.metrics.set(size)
	}
	return !existed, nil
}

func (c *mapCache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *mapCache[V]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.items))
	for key := range c.items {
		keys = append(keys, key)
	}
	return keys
}

func (c *mapCache[V]) Snapshot() map[string]V {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.items)
}

func (c *mapCache[V]) Stats() *Statistics {
	return c.stats
}

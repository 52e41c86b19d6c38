// Package cache provides a generic, thread-safe keyed cache.
//
// The only implementation is a map guarded by a sync.RWMutex. Nothing is ever
// removed: entries live for the life of the process. Statistics are always collected and can
// additionally be exported to Prometheus:
//
//	c, err := cache.NewSimple[freshness.Entry](
//	    cache.WithMetrics[freshness.Entry](registry, "freshness"),
//	)
//
// Keys must be non-empty; Set returns a classified invalid error
// otherwise. Snapshot returns a copy so callers can iterate without holding
// the lock.
package cache

// Package metric owns the Prometheus registry for the process.
//
// NewMetricsRegistry creates a private prometheus.Registry preloaded with the
// Go and process collectors and the core ingestion metrics (Metrics): messages
// received and processed by outcome, time-series write latency, query
// failures, registry update failures, connector state and reconnect attempts.
//
// Components that want their own metrics register them through the typed
// Register* methods, keyed by owner and metric name so a second registration
// under the same key fails with a classified invalid error:
//
//	if err := registry.RegisterCounter("freshness", "cache_hits", c); err != nil {
//	    return err
//	}
//
// Components accept a nil *MetricsRegistry and then skip metrics entirely.
//
// Server exposes /metrics (OpenMetrics enabled) and /health, the latter
// rendering a health.Status as JSON and answering 503 when it is unhealthy.
package metric

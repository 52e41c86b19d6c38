// Package health models component health for the /health endpoint.
//
// A Status is "healthy", "degraded" or "unhealthy". Aggregate folds a set of
// sub-statuses: any unhealthy child makes the parent unhealthy, otherwise any
// degraded child makes it degraded.
//
// Monitor collects statuses two ways. Long-running components push theirs
// with Update (the connector reports its state this way) and request-time
// dependencies register a CheckFunc that Check runs with a timeout:
//
//	mon := health.NewMonitor(2 * time.Second)
//	mon.Register("timeseries", store.Ping)
//	status := mon.Check(ctx, "energymon")
//
// Error messages are sanitized before they are stored so broker URLs,
// credentials and file paths are not exposed.
package health

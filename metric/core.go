package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Message outcome labels for MessagesProcessed.
const (
	StatusPersisted         = "persisted"
	StatusUnrecognizedRoute = "unrecognized_route"
	StatusDecodeFailure     = "decode_failure"
	StatusStoreUnavailable  = "store_unavailable"
)

// Metrics contains the process-level ingestion and query metrics
type Metrics struct {
	MessagesReceived   prometheus.Counter
	MessagesProcessed  *prometheus.CounterVec
	StoreWriteDuration prometheus.Histogram
	StoreQueryErrors   *prometheus.CounterVec
	RegistryErrors     prometheus.Counter

	ConnectorState    prometheus.Gauge
	ReconnectAttempts prometheus.Counter
	HealthCheckStatus *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		MessagesReceived: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "messages",
				Name:      "received_total",
				Help:      "Total number of telemetry messages handed to the connector",
			},
		),

		MessagesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "messages",
				Name:      "processed_total",
				Help:      "Telemetry messages by outcome",
			},
			[]string{"status"},
		),

		StoreWriteDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "store",
				Name:      "write_duration_seconds",
				Help:      "Time-series write latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),

		StoreQueryErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "store",
				Name:      "query_errors_total",
				Help:      "Failed time-series queries by operation",
			},
			[]string{"operation"},
		),

		RegistryErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "registry",
				Name:      "update_errors_total",
				Help:      "Failed panel registry last-seen updates",
			},
		),

		ConnectorState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "connector",
				Name:      "state",
				Help:      "Connector state (0=disconnected, 1=connecting, 2=connected, 3=subscribing, 4=subscribed, 5=reconnecting, 6=given_up)",
			},
		),

		ReconnectAttempts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "connector",
				Name:      "reconnect_attempts_total",
				Help:      "Total number of broker reconnect attempts",
			},
		),

		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "health",
				Name:      "status",
				Help:      "Health check status (0=unhealthy, 1=healthy)",
			},
			[]string{"component"},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.MessagesReceived,
		m.MessagesProcessed,
		m.StoreWriteDuration,
		m.StoreQueryErrors,
		m.RegistryErrors,
		m.ConnectorState,
		m.ReconnectAttempts,
		m.HealthCheckStatus,
	}
}

// RecordMessageReceived increments the received counter
func (m *Metrics) RecordMessageReceived() {
	m.MessagesReceived.Inc()
}

// RecordMessageProcessed increments the processed counter for an outcome
func (m *Metrics) RecordMessageProcessed(status string) {
	m.MessagesProcessed.WithLabelValues(status).Inc()
}

// RecordStoreWrite observes a time-series write latency
func (m *Metrics) RecordStoreWrite(duration time.Duration) {
	m.StoreWriteDuration.Observe(duration.Seconds())
}

// RecordStoreQueryError counts a failed query for the given operation
func (m *Metrics) RecordStoreQueryError(operation string) {
	m.StoreQueryErrors.WithLabelValues(operation).Inc()
}

// RecordRegistryError counts a failed registry update
func (m *Metrics) RecordRegistryError() {
	m.RegistryErrors.Inc()
}

// RecordConnectorState updates the connector state gauge
func (m *Metrics) RecordConnectorState(state int) {
	m.ConnectorState.Set(float64(state))
}

// RecordReconnectAttempt increments the reconnect counter
func (m *Metrics) RecordReconnectAttempt() {
	m.ReconnectAttempts.Inc()
}

// RecordHealthStatus updates health check status
func (m *Metrics) RecordHealthStatus(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.HealthCheckStatus.WithLabelValues(component).Set(value)
}

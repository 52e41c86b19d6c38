package metric

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caleheinzz25/realtime-energy-monitoring/health"
)

func TestServer_MetricsEndpoint(t *testing.T) {
	registry := NewMetricsRegistry()
	registry.CoreMetrics().RecordMessageReceived()

	srv := NewServer(0, "", registry, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "energymon_messages_received_total"))
}

func TestServer_HealthEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		status   health.Status
		wantCode int
	}{
		{"healthy", health.NewHealthy("energymon", "ok"), http.StatusOK},
		{"degraded", health.NewDegraded("energymon", "registry slow"), http.StatusOK},
		{"unhealthy", health.NewUnhealthy("energymon", "connector gave up"), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(0, "", NewMetricsRegistry(), func() health.Status { return tt.status })
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantCode, rec.Code)

			var got health.Status
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.status.Status, got.Status)
			assert.Equal(t, tt.status.Message, got.Message)
		})
	}
}

func TestServer_Defaults(t *testing.T) {
	srv := NewServer(0, "", NewMetricsRegistry(), nil)
	assert.Equal(t, "http://localhost:9090/metrics", srv.Address())
	assert.NoError(t, srv.Stop(), "stopping a server that never started is a no-op")
}

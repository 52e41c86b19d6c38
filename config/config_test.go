package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caleheinzz25/realtime-energy-monitoring/errors"
	"github.com/caleheinzz25/realtime-energy-monitoring/pkg/tlsutil"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// envLoader returns a loader reading env from a map instead of the process.
func envLoader(env map[string]string) *Loader {
	l := NewLoader()
	l.getenv = func(key string) string { return env[key] }
	return l
}

func TestDefaults_Valid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, TransportMQTT, cfg.Transport.Kind)
	assert.Equal(t, "tcp://localhost:1883", cfg.Transport.MQTT.BrokerURL)
	assert.Equal(t, "http://localhost:8086", cfg.Influx.URL)
	assert.Equal(t, "ravelware", cfg.Influx.Org)
	assert.Equal(t, "energy", cfg.Influx.Bucket)
	assert.Equal(t, int64(1500), cfg.CostPerKWh)
	assert.Equal(t, 5*time.Second, cfg.Connector.ReconnectInterval)
	assert.Equal(t, 10, cfg.Connector.MaxReconnectAttempts)
}

func TestLoader_DefaultsOnly(t *testing.T) {
	cfg, err := envLoader(nil).Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoader_LoadJSON(t *testing.T) {
	path := writeConfig(t, `{
		"transport": {"kind": "nats", "nats": {"url": "nats://broker:4222"}},
		"influx": {"bucket": "panels", "request_timeout": "3s"},
		"registry": {"backend": "sqlite", "sqlite_path": "/var/lib/energymon/panels.db"},
		"connector": {"reconnect_interval": "2s"},
		"shutdown_timeout": "30s",
		"cost_per_kwh": 1444
	}`)

	cfg, err := envLoader(nil).LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, TransportNATS, cfg.Transport.Kind)
	assert.Equal(t, "nats://broker:4222", cfg.Transport.NATS.URL)
	assert.Equal(t, "tcp://localhost:1883", cfg.Transport.MQTT.BrokerURL, "untouched keys keep defaults")
	assert.Equal(t, "panels", cfg.Influx.Bucket)
	assert.Equal(t, "ravelware", cfg.Influx.Org)
	assert.Equal(t, 3*time.Second, cfg.Influx.RequestTimeout)
	assert.Equal(t, RegistrySQLite, cfg.Registry.Backend)
	assert.Equal(t, 2*time.Second, cfg.Connector.ReconnectInterval)
	assert.Equal(t, 10, cfg.Connector.MaxReconnectAttempts)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, int64(1444), cfg.CostPerKWh)
}

func TestLoader_Layers(t *testing.T) {
	base := writeConfig(t, `{"storage": {"mode": "memory"}, "cost_per_kwh": 1000}`)
	override := writeConfig(t, `{"cost_per_kwh": 2000}`)

	l := envLoader(nil)
	l.AddLayer(base)
	l.AddLayer(override)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, StorageModeMemory, cfg.Storage.Mode)
	assert.Equal(t, int64(2000), cfg.CostPerKWh)
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `{"influx": {"url": "http://file:8086"}, "cost_per_kwh": 1000}`)

	cfg, err := envLoader(map[string]string{
		EnvInfluxURL:       "http://env:8086",
		EnvInfluxToken:     "secret-token",
		EnvMQTTBrokerURL:   "mqtt://broker:1883",
		EnvCostPerKWh:      " 1750 ",
		EnvRegistryBackend: "natskv",
		EnvNATSURL:         "nats://kv:4222",
		EnvMetricsPort:     "9100",
		EnvTimezone:        "UTC",
	}).LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "http://env:8086", cfg.Influx.URL)
	assert.Equal(t, "secret-token", cfg.Influx.Token)
	assert.Equal(t, "mqtt://broker:1883", cfg.Transport.MQTT.BrokerURL)
	assert.Equal(t, int64(1750), cfg.CostPerKWh)
	assert.Equal(t, RegistryNATSKV, cfg.Registry.Backend)
	assert.Equal(t, "nats://kv:4222", cfg.RegistryNATSURL())
	assert.Equal(t, 9100, cfg.Metrics.Port)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoader_BrokerTLS(t *testing.T) {
	path := writeConfig(t, `{"transport": {"tls": {"enabled": true, "min_version": "1.3", "ca_files": ["/etc/ssl/file-ca.pem"]}}}`)

	cfg, err := envLoader(nil).LoadFile(path)
	require.NoError(t, err)
	assert.True(t, cfg.Transport.TLS.Enabled)
	assert.Equal(t, "1.3", cfg.Transport.TLS.MinVersion)
	assert.Equal(t, []string{"/etc/ssl/file-ca.pem"}, cfg.Transport.TLS.CAFiles)

	cfg, err = envLoader(map[string]string{EnvBrokerTLSCAFile: "/etc/ssl/broker-ca.pem"}).Load()
	require.NoError(t, err)
	assert.True(t, cfg.Transport.TLS.Enabled)
	assert.Equal(t, []string{"/etc/ssl/broker-ca.pem"}, cfg.Transport.TLS.CAFiles)
}

func TestLoader_ProcessEnvironment(t *testing.T) {
	t.Setenv(EnvStorageMode, "memory")
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, StorageModeMemory, cfg.Storage.Mode)
}

func TestLoader_BadEnvNumber(t *testing.T) {
	_, err := envLoader(map[string]string{EnvCostPerKWh: "cheap"}).Load()
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)

	_, err = envLoader(map[string]string{EnvMetricsPort: "http"}).Load()
	require.Error(t, err)
}

func TestLoader_EnvNullByte(t *testing.T) {
	_, err := envLoader(map[string]string{EnvInfluxToken: "abc\x00def"}).Load()
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestLoader_BadFiles(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed", `{"transport": `},
		{"bad duration", `{"connector": {"reconnect_interval": "soon"}}`},
		{"too deep", `{"a":` + strings.Repeat("[", 20) + strings.Repeat("]", 20) + `}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := envLoader(nil).LoadFile(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}

	_, err := envLoader(nil).LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	yaml := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(yaml, []byte("a: b"), 0644))
	_, err = envLoader(nil).LoadFile(yaml)
	require.Error(t, err)
}

func TestLoader_ValidationCanBeDisabled(t *testing.T) {
	l := envLoader(map[string]string{EnvTransport: "carrier-pigeon"})
	_, err := l.Load()
	require.Error(t, err)

	l.EnableValidation(false)
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "carrier-pigeon", cfg.Transport.Kind)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown transport", func(c *Config) { c.Transport.Kind = "amqp" }},
		{"mqtt without broker", func(c *Config) { c.Transport.MQTT.BrokerURL = "" }},
		{"nats without url", func(c *Config) { c.Transport.Kind = TransportNATS; c.Transport.NATS.URL = "" }},
		{"unknown storage", func(c *Config) { c.Storage.Mode = "postgres" }},
		{"influx without org", func(c *Config) { c.Influx.Org = "" }},
		{"influx zero timeout", func(c *Config) { c.Influx.RequestTimeout = 0 }},
		{"sqlite without path", func(c *Config) { c.Registry.Backend = RegistrySQLite }},
		{"natskv bad bucket", func(c *Config) { c.Registry.Backend = RegistryNATSKV; c.Registry.Bucket = "energy.panels" }},
		{"unknown registry", func(c *Config) { c.Registry.Backend = "redis" }},
		{"zero reconnect interval", func(c *Config) { c.Connector.ReconnectInterval = 0 }},
		{"zero reconnect attempts", func(c *Config) { c.Connector.MaxReconnectAttempts = 0 }},
		{"zero rate", func(c *Config) { c.CostPerKWh = 0 }},
		{"zero shutdown timeout", func(c *Config) { c.ShutdownTimeout = 0 }},
		{"unknown timezone", func(c *Config) { c.Timezone = "Mars/Olympus_Mons" }},
		{"metrics port", func(c *Config) { c.Metrics.Port = 70000 }},
		{"metrics path", func(c *Config) { c.Metrics.Path = "metrics" }},
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
		{"tls cert without key", func(c *Config) { c.Transport.TLS = tlsutil.ClientConfig{Enabled: true, CertFile: "client.pem"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
		})
	}
}

func TestValidate_MemoryModeIgnoresInflux(t *testing.T) {
	cfg := Defaults()
	cfg.Storage.Mode = StorageModeMemory
	cfg.Influx = InfluxConfig{}
	cfg.Metrics.Enabled = false
	cfg.Metrics.Port = 0
	assert.NoError(t, cfg.Validate())
}

func TestString_RedactsSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Influx.Token = "influx-secret"
	cfg.Transport.MQTT.Password = "mqtt-secret"
	cfg.Transport.NATS.Token = "nats-secret"
	cfg.Transport.NATS.Password = "nats-password"

	s := cfg.String()
	assert.NotContains(t, s, "influx-secret")
	assert.NotContains(t, s, "mqtt-secret")
	assert.NotContains(t, s, "nats-secret")
	assert.NotContains(t, s, "nats-password")
	assert.Contains(t, s, redacted)
	assert.Equal(t, "influx-secret", cfg.Influx.Token, "original untouched")
}

func TestValidateJSONDepth(t *testing.T) {
	assert.NoError(t, validateJSONDepth([]byte(`{"a": "[[[[ in a string", "b": [1, {"c": 2}]}`)))
	assert.Error(t, validateJSONDepth([]byte(`{"a": [}`)))
	assert.Error(t, validateJSONDepth([]byte(`{"a": 1}}`)))
}

func TestCheckConfigPath(t *testing.T) {
	assert.NoError(t, checkConfigPath("configs/energymon.json"))
	assert.NoError(t, checkConfigPath("/etc/energymon/config.JSON"))
	assert.Error(t, checkConfigPath(""))
	assert.Error(t, checkConfigPath("config.yaml"))
	assert.Error(t, checkConfigPath("../outside.json"))
	assert.Error(t, checkConfigPath("configs/../../outside.json"))
	assert.Error(t, checkConfigPath(strings.Repeat("a", maxPathLen)+".json"))
}

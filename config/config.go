package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/caleheinzz25/realtime-energy-monitoring/errors"
	"github.com/caleheinzz25/realtime-energy-monitoring/pkg/tlsutil"
)

// Transport kinds
const (
	TransportMQTT = "mqtt"
	TransportNATS = "nats"
)

// Storage mode constants
const (
	StorageModeInflux = "influx" // InfluxDB 2.x (production)
	StorageModeMemory = "memory" // In-process store, lost on restart
)

// Registry backends
const (
	RegistryMemory = "memory"
	RegistrySQLite = "sqlite"
	RegistryNATSKV = "natskv"
)

const redacted = "***"

// Config is the complete process configuration.
type Config struct {
	Transport       TransportConfig `json:"transport"`
	Influx          InfluxConfig    `json:"influx"`
	Storage         StorageConfig   `json:"storage"`
	Registry        RegistryConfig  `json:"registry"`
	Connector       ConnectorConfig `json:"connector"`
	Metrics         MetricsConfig   `json:"metrics"`
	Log             LogConfig       `json:"log"`
	CostPerKWh      int64           `json:"cost_per_kwh"`
	Timezone        string          `json:"timezone,omitempty"` // IANA name; empty means local time
	ShutdownTimeout time.Duration   `json:"shutdown_timeout"`
}

// TransportConfig selects and configures the broker. TLS applies to
// whichever broker is selected and to the KV registry connection.
type TransportConfig struct {
	Kind string               `json:"kind"` // mqtt or nats
	MQTT MQTTConfig           `json:"mqtt"`
	NATS NATSConfig           `json:"nats"`
	TLS  tlsutil.ClientConfig `json:"tls"`
}

// MQTTConfig holds MQTT broker settings.
type MQTTConfig struct {
	BrokerURL      string `json:"broker_url"`
	ClientIDPrefix string `json:"client_id_prefix,omitempty"`
	Username       string `json:"username,omitempty"`
	Password       string `json:"password,omitempty"`
}

// NATSConfig holds NATS server settings. The KV registry uses the same
// server unless RegistryConfig.NATSURL is set.
type NATSConfig struct {
	URL      string `json:"url"`
	Token    string `json:"token,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
}

// InfluxConfig holds InfluxDB 2.x settings.
type InfluxConfig struct {
	URL            string        `json:"url"`
	Token          string        `json:"token,omitempty"`
	Org            string        `json:"org"`
	Bucket         string        `json:"bucket"`
	RequestTimeout time.Duration `json:"request_timeout"`
}

// StorageConfig selects the time-series backend.
type StorageConfig struct {
	Mode string `json:"mode"`
}

// RegistryConfig selects the panel registry backend.
type RegistryConfig struct {
	Backend    string `json:"backend"`
	SQLitePath string `json:"sqlite_path,omitempty"`
	NATSURL    string `json:"nats_url,omitempty"`
	Bucket     string `json:"bucket,omitempty"`
}

// ConnectorConfig holds the reconnect policy.
type ConnectorConfig struct {
	ReconnectInterval    time.Duration `json:"reconnect_interval"`
	MaxReconnectAttempts int           `json:"max_reconnect_attempts"`
}

// MetricsConfig configures the /metrics and /health server.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path"`
}

// LogConfig configures the process logger. File enables rotation.
type LogConfig struct {
	Level      string `json:"level"`
	Format     string `json:"format"`
	File       string `json:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() *Config {
	return &Config{
		Transport: TransportConfig{
			Kind: TransportMQTT,
			MQTT: MQTTConfig{
				BrokerURL:      "tcp://localhost:1883",
				ClientIDPrefix: "energy-monitor",
			},
			NATS: NATSConfig{URL: "nats://localhost:4222"},
		},
		Influx: InfluxConfig{
			URL:            "http://localhost:8086",
			Org:            "ravelware",
			Bucket:         "energy",
			RequestTimeout: 10 * time.Second,
		},
		Storage:  StorageConfig{Mode: StorageModeInflux},
		Registry: RegistryConfig{Backend: RegistryMemory, Bucket: "energy_panels"},
		Connector: ConnectorConfig{
			ReconnectInterval:    5 * time.Second,
			MaxReconnectAttempts: 10,
		},
		Metrics:         MetricsConfig{Enabled: true, Port: 9090, Path: "/metrics"},
		Log:             LogConfig{Level: "info", Format: "json"},
		CostPerKWh:      1500,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.Transport.Kind {
	case TransportMQTT:
		if c.Transport.MQTT.BrokerURL == "" {
			return invalid("transport.mqtt.broker_url is required")
		}
	case TransportNATS:
		if c.Transport.NATS.URL == "" {
			return invalid("transport.nats.url is required")
		}
	default:
		return invalid("transport.kind must be %q or %q, got %q", TransportMQTT, TransportNATS, c.Transport.Kind)
	}
	if err := c.Transport.TLS.Validate(); err != nil {
		return err
	}

	switch c.Storage.Mode {
	case StorageModeInflux:
		if c.Influx.URL == "" || c.Influx.Org == "" || c.Influx.Bucket == "" {
			return invalid("influx url, org and bucket are required in influx storage mode")
		}
		if c.Influx.RequestTimeout <= 0 {
			return invalid("influx.request_timeout must be positive")
		}
	case StorageModeMemory:
	default:
		return invalid("storage.mode must be %q or %q, got %q", StorageModeInflux, StorageModeMemory, c.Storage.Mode)
	}

	switch c.Registry.Backend {
	case RegistryMemory:
	case RegistrySQLite:
		if c.Registry.SQLitePath == "" {
			return invalid("registry.sqlite_path is required for the sqlite backend")
		}
	case RegistryNATSKV:
		if c.RegistryNATSURL() == "" {
			return invalid("a NATS url is required for the natskv registry")
		}
		if !isValidBucketName(c.Registry.Bucket) {
			return invalid("registry.bucket %q is not a valid KV bucket name", c.Registry.Bucket)
		}
	default:
		return invalid("registry.backend must be one of memory, sqlite, natskv, got %q", c.Registry.Backend)
	}

	if c.Connector.ReconnectInterval <= 0 {
		return invalid("connector.reconnect_interval must be positive")
	}
	if c.Connector.MaxReconnectAttempts <= 0 {
		return invalid("connector.max_reconnect_attempts must be positive")
	}
	if c.CostPerKWh <= 0 {
		return invalid("cost_per_kwh must be positive, got %d", c.CostPerKWh)
	}
	if c.ShutdownTimeout <= 0 {
		return invalid("shutdown_timeout must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
			return invalid("metrics.port %d out of range", c.Metrics.Port)
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return invalid("metrics.path must start with /")
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return invalid("log.format must be json or text, got %q", c.Log.Format)
	}

	return nil
}

// Location resolves Timezone. Empty means time.Local.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: timezone %q: %v", errors.ErrInvalidConfig, c.Timezone, err),
			"Config", "Location", "load timezone")
	}
	return loc, nil
}

// RegistryNATSURL is the NATS server for the KV registry.
func (c *Config) RegistryNATSURL() string {
	if c.Registry.NATSURL != "" {
		return c.Registry.NATSURL
	}
	return c.Transport.NATS.URL
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return Defaults()
	}
	copied := *c
	copied.Transport.TLS.CAFiles = append([]string(nil), c.Transport.TLS.CAFiles...)
	return &copied
}

// String renders the configuration as JSON with secrets redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Influx.Token != "" {
		safe.Influx.Token = redacted
	}
	if safe.Transport.MQTT.Password != "" {
		safe.Transport.MQTT.Password = redacted
	}
	if safe.Transport.NATS.Token != "" {
		safe.Transport.NATS.Token = redacted
	}
	if safe.Transport.NATS.Password != "" {
		safe.Transport.NATS.Password = redacted
	}
	data, err := json.Marshal(safe)
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

func invalid(format string, args ...any) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidConfig, fmt.Sprintf(format, args...)),
		"Config", "Validate", "validate configuration")
}

// isValidBucketName mirrors the JetStream KV bucket naming rule.
func isValidBucketName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-') {
			return false
		}
	}
	return true
}

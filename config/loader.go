package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caleheinzz25/realtime-energy-monitoring/errors"
)

// Environment variables read by Loader.
const (
	EnvTransport          = "TRANSPORT"
	EnvMQTTBrokerURL      = "MQTT_BROKER_URL"
	EnvMQTTUsername       = "MQTT_USERNAME"
	EnvMQTTPassword       = "MQTT_PASSWORD"
	EnvNATSURL            = "NATS_URL"
	EnvNATSToken          = "NATS_TOKEN"
	EnvNATSUser           = "NATS_USER"
	EnvNATSPassword       = "NATS_PASSWORD"
	EnvBrokerTLSCAFile    = "BROKER_TLS_CA_FILE"
	EnvInfluxURL          = "INFLUX_URL"
	EnvInfluxToken        = "INFLUX_TOKEN"
	EnvInfluxOrg          = "INFLUX_ORG"
	EnvInfluxBucket       = "INFLUX_BUCKET"
	EnvStorageMode        = "STORAGE_MODE"
	EnvRegistryBackend    = "REGISTRY_BACKEND"
	EnvRegistrySQLitePath = "REGISTRY_SQLITE_PATH"
	EnvRegistryNATSURL    = "REGISTRY_NATS_URL"
	EnvCostPerKWh         = "COST_PER_KWH"
	EnvTimezone           = "TIMEZONE"
	EnvMetricsPort        = "METRICS_PORT"
	EnvLogLevel           = "LOG_LEVEL"
	EnvLogFormat          = "LOG_FORMAT"
	EnvLogFile            = "LOG_FILE"
)

// durationFields are the JSON paths whose values may be written as
// duration strings such as "5s".
var durationFields = [][]string{
	{"influx", "request_timeout"},
	{"connector", "reconnect_interval"},
	{"shutdown_timeout"},
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	getenv     func(string) string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		layers:     []string{},
		validation: true,
		getenv:     os.Getenv,
	}
}

// AddLayer adds a configuration file layer
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges defaults, every file layer and the environment, in that order.
func (l *Loader) Load() (*Config, error) {
	cfg := Defaults()

	for _, path := range l.layers {
		rawConfig, err := l.loadRawJSON(path)
		if err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("failed to load %s: %w", path, err),
				"Loader", "Load", "read config layer")
		}
		cfg, err = mergeFromMap(cfg, rawConfig)
		if err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("failed to merge %s: %w", path, err),
				"Loader", "Load", "merge config layer")
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// loadRawJSON loads configuration from a JSON file as a map
func (l *Loader) loadRawJSON(path string) (map[string]any, error) {
	data, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}

	if err := validateJSONDepth(data); err != nil {
		return nil, fmt.Errorf("invalid JSON structure: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return nil, err
	}

	if err := parseDurations(rawConfig); err != nil {
		return nil, err
	}
	return rawConfig, nil
}

// mergeFromMap merges configuration from a raw map, only overriding fields
// present in the map
func mergeFromMap(base *Config, override map[string]any) (*Config, error) {
	if override == nil {
		return base, nil
	}

	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return nil, err
	}

	mergedJSON, err := json.Marshal(deepMergeMaps(baseMap, override))
	if err != nil {
		return nil, err
	}
	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// parseDurations converts duration strings to nanoseconds for json
// unmarshaling. Numbers are taken as nanoseconds already.
func parseDurations(data map[string]any) error {
	for _, path := range durationFields {
		parent := data
		for _, key := range path[:len(path)-1] {
			next, ok := parent[key].(map[string]any)
			if !ok {
				parent = nil
				break
			}
			parent = next
		}
		if parent == nil {
			continue
		}

		leaf := path[len(path)-1]
		s, ok := parent[leaf].(string)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("%s: %w", strings.Join(path, "."), err)
		}
		parent[leaf] = d.Nanoseconds()
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	strs := []struct {
		key string
		dst *string
	}{
		{EnvTransport, &cfg.Transport.Kind},
		{EnvMQTTBrokerURL, &cfg.Transport.MQTT.BrokerURL},
		{EnvMQTTUsername, &cfg.Transport.MQTT.Username},
		{EnvMQTTPassword, &cfg.Transport.MQTT.Password},
		{EnvNATSURL, &cfg.Transport.NATS.URL},
		{EnvNATSToken, &cfg.Transport.NATS.Token},
		{EnvNATSUser, &cfg.Transport.NATS.User},
		{EnvNATSPassword, &cfg.Transport.NATS.Password},
		{EnvInfluxURL, &cfg.Influx.URL},
		{EnvInfluxToken, &cfg.Influx.Token},
		{EnvInfluxOrg, &cfg.Influx.Org},
		{EnvInfluxBucket, &cfg.Influx.Bucket},
		{EnvStorageMode, &cfg.Storage.Mode},
		{EnvRegistryBackend, &cfg.Registry.Backend},
		{EnvRegistrySQLitePath, &cfg.Registry.SQLitePath},
		{EnvRegistryNATSURL, &cfg.Registry.NATSURL},
		{EnvTimezone, &cfg.Timezone},
		{EnvLogLevel, &cfg.Log.Level},
		{EnvLogFormat, &cfg.Log.Format},
		{EnvLogFile, &cfg.Log.File},
	}
	for _, s := range strs {
		val, err := l.env(s.key)
		if err != nil {
			return err
		}
		if val != "" {
			*s.dst = val
		}
	}

	// a CA file alone is enough to turn broker TLS on
	if val, err := l.env(EnvBrokerTLSCAFile); err != nil {
		return err
	} else if val != "" {
		cfg.Transport.TLS.Enabled = true
		cfg.Transport.TLS.CAFiles = []string{val}
	}

	if val, err := l.env(EnvCostPerKWh); err != nil {
		return err
	} else if val != "" {
		rate, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return envInvalid(EnvCostPerKWh, err)
		}
		cfg.CostPerKWh = rate
	}

	if val, err := l.env(EnvMetricsPort); err != nil {
		return err
	} else if val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return envInvalid(EnvMetricsPort, err)
		}
		cfg.Metrics.Port = port
	}

	return nil
}

func (l *Loader) env(key string) (string, error) {
	val := strings.TrimSpace(l.getenv(key))
	if err := checkEnvValue(key, val); err != nil {
		return "", errors.WrapInvalid(err, "Loader", "applyEnvOverrides", "validate "+key)
	}
	return val, nil
}

func envInvalid(key string, err error) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s: %v", errors.ErrInvalidConfig, key, err),
		"Loader", "applyEnvOverrides", "parse "+key)
}

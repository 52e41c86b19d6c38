// Package config loads the energy monitor's process configuration.
//
// Configuration is built in layers: built-in defaults, then any number of
// JSON files, then environment variables. Later layers override earlier ones
// field by field, so a file only needs the keys it changes.
//
// # Basic Usage
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/energymon.json")
//
//	cfg, err := loader.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Duration fields accept Go duration strings in JSON:
//
//	{
//	  "connector": {"reconnect_interval": "5s", "max_reconnect_attempts": 10},
//	  "shutdown_timeout": "15s"
//	}
//
// # Environment
//
// The variables of a deployment .env file override file values:
// TRANSPORT, MQTT_BROKER_URL, MQTT_USERNAME, MQTT_PASSWORD, NATS_URL,
// NATS_TOKEN, NATS_USER, NATS_PASSWORD, INFLUX_URL, INFLUX_TOKEN, INFLUX_ORG,
// INFLUX_BUCKET, STORAGE_MODE, REGISTRY_BACKEND, REGISTRY_SQLITE_PATH,
// COST_PER_KWH, TIMEZONE and the LOG_* and METRICS_PORT settings.
// BROKER_TLS_CA_FILE turns on broker TLS trusting that CA in addition to the
// system pool.
//
// # Validation
//
// Load validates by default and returns an invalid-class error wrapping
// errors.ErrInvalidConfig naming the first offending field. Config.String
// redacts tokens and passwords and is safe to log.
package config

// Package energymon is the realtime energy panel monitor: it ingests panel
// telemetry from a pub/sub broker, keeps the freshest reading per panel in
// memory, persists every reading to a time-series store and answers the
// usage and cost questions asked of that history.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│   Broker (MQTT DATA/PM/<panel>,     │
//	│          NATS DATA.PM.<panel>)      │
//	└─────────────────────────────────────┘
//	           ↓ transport.Transport
//	┌─────────────────────────────────────┐
//	│          connector                  │  Reconnect state machine,
//	│  route → decode → store → cache     │  single ordered loop
//	│        → registry last-seen         │
//	└─────────────────────────────────────┘
//	     ↓               ↓            ↓
//	 timeseries      freshness     registry
//	 (influx,        (latest       (memory, sqlite,
//	  memstore)       per panel)    NATS KV)
//	     ↑               ↑            ↑
//	┌─────────────────────────────────────┐
//	│            query                    │  Realtime, History,
//	│  usage & cost via usage.Calculator  │  TodayUsage, Monthly
//	└─────────────────────────────────────┘
//
// # Packages
//
//   - reading: the Reading type, the tolerant payload decoder and routing keys
//   - freshness: latest reading per panel, last-write-wins
//   - timeseries: the Store contract and range policy, with InfluxDB and
//     in-memory implementations
//   - usage: staleness, today's usage and cost rules
//   - registry: panel registry contract and its adapters
//   - transport: broker abstraction with MQTT and NATS implementations
//   - connector: the ingestion pipeline and its reconnect policy
//   - query: the read-side facade
//   - config, metric, health, errors, natsclient, pkg/*: shared infrastructure
//
// # Running
//
//	STORAGE_MODE=memory ./bin/energymon --log-format=text
//
// The process reads an optional .env file, then an optional JSON config file
// (-config), then the environment. See package config for the variables.
//
// # Failure Model
//
// Per-message faults (unknown routing key, bad payload, store write failure)
// drop that message, are logged and counted, and never stop ingestion.
// Connection faults move the connector to Reconnecting; after the configured
// number of failed attempts it gives up and reports a fatal error through
// /health. Query-side store failures degrade to empty results.
package energymon

// Package timeseries defines the Store contract for persisted Readings and
// the fixed policy mapping history ranges to aggregation buckets:
//
//	token           lookback  bucket
//	1h 6h 12h 24h   token     1h
//	7d              7d        6h
//	30d             30d       1d
//	1y 365d         365d      30d
//
// Windows are laid end to end from now-lookback, so every sample inside the
// lookback lands in a bucket and a range never yields more than
// lookback/width (rounded up) buckets. A bucket is stamped with its window
// end, clipped to now, matching Flux aggregateWindow with an offset.
// Two implementations live in sub-packages: influx (InfluxDB v2) and
// memstore (in-process, for tests and local runs).
package timeseries

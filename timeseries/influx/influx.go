// Package influx is the InfluxDB v2 implementation of timeseries.Store.
//
// Readings are written synchronously through the blocking write API as one
// energy_data point per reading, tagged with panelId. Range queries are Flux
// programs built in flux.go; aggregation windows start at now-lookback, the
// anchoring timeseries.AnchoredWindowStart describes, so both stores report
// identical buckets.
package influx

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/caleheinzz25/realtime-energy-monitoring/errors"
	"github.com/caleheinzz25/realtime-energy-monitoring/metric"
	"github.com/caleheinzz25/realtime-energy-monitoring/pkg/retry"
	"github.com/caleheinzz25/realtime-energy-monitoring/reading"
	"github.com/caleheinzz25/realtime-energy-monitoring/timeseries"
)

const component = "InfluxStore"

// Config selects the InfluxDB server and bucket.
type Config struct {
	URL            string
	Token          string
	Org            string
	Bucket         string
	RequestTimeout time.Duration
	// Location is the zone calendar months are evaluated in.
	Location *time.Location
}

// Deps are the optional collaborators of a Store.
type Deps struct {
	Logger  *slog.Logger
	Metrics *metric.Metrics
	Clock   func() time.Time
}

// Store talks to one InfluxDB org and bucket.
type Store struct {
	cfg     Config
	client  influxdb2.Client
	writer  api.WriteAPIBlocking
	querier api.QueryAPI
	logger  *slog.Logger
	metrics *metric.Metrics
	clock   func() time.Time
}

var _ timeseries.Store = (*Store)(nil)

// New creates a Store without contacting the server. Use Connect to also wait
// for the server to answer a ping.
func New(cfg Config, deps Deps) (*Store, error) {
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, component, "New", "validate url, org and bucket")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "influx-store")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	opts := influxdb2.DefaultOptions().
		SetHTTPRequestTimeout(uint(cfg.RequestTimeout / time.Second))
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	return &Store{
		cfg:     cfg,
		client:  client,
		writer:  client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		querier: client.QueryAPI(cfg.Org),
		logger:  logger,
		metrics: deps.Metrics,
		clock:   clock,
	}, nil
}

// Connect creates a Store and pings the server until it answers or the
// retry budget is spent.
func Connect(ctx context.Context, cfg Config, deps Deps, policy retry.Config) (*Store, error) {
	s, err := New(cfg, deps)
	if err != nil {
		return nil, err
	}
	if err := retry.Do(ctx, policy, func() error { return s.Ping(ctx) }); err != nil {
		s.client.Close()
		return nil, errors.StoreUnavailable(err, component, "Connect", "reach influxdb at "+cfg.URL)
	}
	s.logger.Info("Connected to InfluxDB", "url", cfg.URL, "org", cfg.Org, "bucket", cfg.Bucket)
	return s, nil
}

// Point converts r into its energy_data point.
func Point(r reading.Reading) *write.Point {
	fields := map[string]interface{}{
		FieldPowerKW:          r.PowerKW,
		FieldPowerKVA:         r.PowerKVA,
		FieldEnergyKWh:        r.EnergyKWh,
		FieldPowerFactor:      r.PowerFactor,
		FieldVoltageUnbalance: r.VoltageUnbalance,
		FieldCurrentUnbalance: r.CurrentUnbalance,
	}
	for i := range voltageFields {
		fields[voltageFields[i]] = r.Voltage[i]
		fields[currentFields[i]] = r.Current[i]
	}
	return influxdb2.NewPoint(Measurement, map[string]string{TagPanelID: r.PanelID}, fields, r.Timestamp)
}

// Write persists r and returns once the server acknowledged it.
func (s *Store) Write(ctx context.Context, r reading.Reading) error {
	if err := s.writer.WritePoint(ctx, Point(r)); err != nil {
		return errors.StoreUnavailable(err, component, "Write", "write point for "+r.PanelID)
	}
	return nil
}

// Latest returns the newest reading within timeseries.LatestLookback.
func (s *Store) Latest(ctx context.Context, panelID string) (reading.Reading, bool, error) {
	var latest reading.Reading
	found := false
	err := s.query(ctx, "Latest", latestQuery(s.cfg.Bucket, panelID, timeseries.LatestLookback), func(rec recordView) {
		if found && !rec.Time().After(latest.Timestamp) {
			return
		}
		latest = rec.reading(panelID)
		found = true
	})
	if err != nil {
		return reading.Reading{}, false, err
	}
	return latest, found, nil
}

// FirstInWindow returns the earliest energy sample in [start, end].
func (s *Store) FirstInWindow(ctx context.Context, panelID string, start, end time.Time) (timeseries.Sample, bool, error) {
	return s.edge(ctx, "FirstInWindow", edgeQuery(s.cfg.Bucket, panelID, start, end, "first"))
}

// LastInWindow returns the latest energy sample in [start, end].
func (s *Store) LastInWindow(ctx context.Context, panelID string, start, end time.Time) (timeseries.Sample, bool, error) {
	return s.edge(ctx, "LastInWindow", edgeQuery(s.cfg.Bucket, panelID, start, end, "last"))
}

func (s *Store) edge(ctx context.Context, method, flux string) (timeseries.Sample, bool, error) {
	var sample timeseries.Sample
	found := false
	err := s.query(ctx, method, flux, func(rec recordView) {
		sample = timeseries.Sample{Time: rec.Time(), EnergyKWh: floatValue(rec.Value())}
		found = true
	})
	if err != nil {
		return timeseries.Sample{}, false, err
	}
	return sample, found, nil
}

// Aggregate returns mean energy and power per window, windows laid end to end
// from now-lookback.
func (s *Store) Aggregate(ctx context.Context, panelID string, lookback, width time.Duration) ([]timeseries.Bucket, error) {
	if lookback <= 0 || width < time.Second {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: lookback %s width %s", errors.ErrInvalidRange, lookback, width),
			component, "Aggregate", "validate window")
	}

	now := s.clock()
	start := now.Add(-lookback)
	flux := aggregateQuery(s.cfg.Bucket, panelID, start, now, width)

	var buckets []timeseries.Bucket
	err := s.query(ctx, "Aggregate", flux, func(rec recordView) {
		buckets = append(buckets, timeseries.Bucket{
			Time:      rec.Time(),
			EnergyKWh: floatValue(rec.ValueByKey(FieldEnergyKWh)),
			PowerKW:   floatValue(rec.ValueByKey(FieldPowerKW)),
		})
	})
	if err != nil {
		return nil, err
	}
	return buckets, nil
}

// MonthlyDeltas computes max(0, last-first) per panel over the month.
func (s *Store) MonthlyDeltas(ctx context.Context, year, month int) ([]timeseries.PanelDelta, error) {
	start, end, err := timeseries.MonthBounds(year, month, s.cfg.Location)
	if err != nil {
		return nil, err
	}

	first := make(map[string]float64)
	last := make(map[string]float64)
	err = s.query(ctx, "MonthlyDeltas", monthlyQuery(s.cfg.Bucket, start, end), func(rec recordView) {
		id, _ := rec.ValueByKey(TagPanelID).(string)
		if id == "" {
			return
		}
		switch rec.Result() {
		case "first":
			first[id] = floatValue(rec.Value())
		case "last":
			last[id] = floatValue(rec.Value())
		}
	})
	if err != nil {
		return nil, err
	}
	return deltas(first, last), nil
}

// deltas pairs first and last values per panel, sorted by panel id.
func deltas(first, last map[string]float64) []timeseries.PanelDelta {
	ids := make([]string, 0, len(first))
	for id := range first {
		if _, ok := last[id]; ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	out := make([]timeseries.PanelDelta, 0, len(ids))
	for _, id := range ids {
		total := last[id] - first[id]
		if total < 0 {
			total = 0
		}
		out = append(out, timeseries.PanelDelta{PanelID: id, TotalKWh: total})
	}
	return out
}

// Ping reports whether the server answers.
func (s *Store) Ping(ctx context.Context) error {
	ok, err := s.client.Ping(ctx)
	if err != nil {
		return errors.StoreUnavailable(err, component, "Ping", "ping server")
	}
	if !ok {
		return errors.StoreUnavailable(fmt.Errorf("server not ready"), component, "Ping", "ping server")
	}
	return nil
}

// Close releases the HTTP client. The blocking writer has nothing buffered.
func (s *Store) Close() error {
	s.client.Close()
	return nil
}

// query runs flux and hands each record to fn.
func (s *Store) query(ctx context.Context, method, flux string, fn func(recordView)) error {
	result, err := s.querier.Query(ctx, flux)
	if err != nil {
		return s.queryFailed(err, method)
	}
	defer result.Close()

	for result.Next() {
		fn(recordView{result.Record()})
	}
	if err := result.Err(); err != nil {
		return s.queryFailed(err, method)
	}
	return nil
}

func (s *Store) queryFailed(err error, method string) error {
	if s.metrics != nil {
		s.metrics.RecordStoreQueryError(method)
	}
	s.logger.Debug("Flux query failed", "method", method, "error", err)
	return errors.StoreUnavailable(err, component, method, "run flux query")
}

// Package query answers the read-side questions asked of the monitor:
// realtime panel status, history charts, today's usage and monthly reports.
//
// Freshest data comes from the freshness cache; everything else from the
// time-series store. Store failures degrade to empty or zero results and are
// logged. Invalid input is returned as an invalid error.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/caleheinzz25/realtime-energy-monitoring/errors"
	"github.com/caleheinzz25/realtime-energy-monitoring/freshness"
	"github.com/caleheinzz25/realtime-energy-monitoring/metric"
	"github.com/caleheinzz25/realtime-energy-monitoring/registry"
	"github.com/caleheinzz25/realtime-energy-monitoring/timeseries"
	"github.com/caleheinzz25/realtime-energy-monitoring/usage"
)

const component = "QueryService"

// Currency is the unit of every cost the service reports.
const Currency = "IDR"

// Deps are the collaborators of a Service. Store, Cache and Registry are
// required.
type Deps struct {
	Store      timeseries.Store
	Cache      *freshness.Cache
	Registry   registry.Registry
	Calculator usage.Calculator
	Location   *time.Location
	Logger     *slog.Logger
	Metrics    *metric.Metrics
	Clock      func() time.Time
	// Limiter paces store queries. Nil means DefaultQueryRate with
	// DefaultQueryBurst.
	Limiter *rate.Limiter
}

// Service is the query facade.
type Service struct {
	store    timeseries.Store
	cache    *freshness.Cache
	registry registry.Registry
	calc     usage.Calculator
	location *time.Location
	logger   *slog.Logger
	metrics  *metric.Metrics
	clock    func() time.Time
}

// New creates a Service.
func New(deps Deps) (*Service, error) {
	if deps.Store == nil || deps.Cache == nil || deps.Registry == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, component, "New", "validate dependencies")
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(DefaultQueryRate, DefaultQueryBurst)
	}
	s := &Service{
		store:    limitedStore{Store: deps.Store, limiter: limiter},
		cache:    deps.Cache,
		registry: deps.Registry,
		calc:     deps.Calculator,
		location: deps.Location,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		clock:    deps.Clock,
	}
	if s.calc.Rate <= 0 {
		s.calc = usage.NewCalculator(s.calc.Rate)
	}
	if s.location == nil {
		s.location = time.Local
	}
	if s.logger == nil {
		s.logger = slog.Default().With("component", "query")
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s, nil
}

// Realtime returns a snapshot of every registered panel ordered by floor.
func (s *Service) Realtime(ctx context.Context) (Realtime, error) {
	now := s.clock()
	panels, err := s.registry.List(ctx)
	if err != nil {
		return Realtime{}, errors.Wrap(err, component, "Realtime", "list panels")
	}

	snapshots := make([]PanelSnapshot, len(panels))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range panels {
		i, p := i, p
		g.Go(func() error {
			snapshots[i] = s.snapshot(gctx, p, now)
			return nil
		})
	}
	_ = g.Wait()

	return Realtime{Panels: snapshots, Timestamp: now}, nil
}

// snapshot resolves the freshest reading for p: cache, then store, then the
// registry's last-seen time.
func (s *Service) snapshot(ctx context.Context, p registry.Panel, now time.Time) PanelSnapshot {
	snap := PanelSnapshot{PanelID: p.PanelID, Location: p.Location, Floor: p.Floor}

	if entry, ok := s.cache.Get(p.PanelID); ok {
		snap.Reading = entry.Reading
		snap.HasReading = true
		snap.LastUpdate = entry.LastUpdate
	} else if r, ok, err := s.store.Latest(ctx, p.PanelID); err != nil {
		s.queryFailed("latest", p.PanelID, err)
	} else if ok {
		snap.Reading = r
		snap.HasReading = true
		snap.LastUpdate = r.Timestamp
	}

	if !snap.HasReading {
		snap.Reading.PanelID = p.PanelID
		snap.LastUpdate = p.LastOnline
	}
	snap.Status = usage.StatusAt(snap.LastUpdate, now)
	snap.LastUpdateRelative = RelativeTime(snap.LastUpdate, now)
	return snap
}

// History aggregates a panel's energy over the named range.
func (s *Service) History(ctx context.Context, panelID, token string) (History, error) {
	if panelID == "" {
		return History{}, errors.WrapInvalid(errors.ErrInvalidData, component, "History", "validate panel id")
	}
	rng, err := timeseries.ParseRange(token)
	if err != nil {
		return History{}, err
	}

	h := History{PanelID: panelID, Range: rng.Token, Date: s.clock().In(s.location), Points: []HistoryPoint{}}
	buckets, err := s.store.Aggregate(ctx, panelID, rng.Lookback, rng.Width)
	if err != nil {
		s.queryFailed("aggregate", panelID, err)
		return h, nil
	}
	for _, b := range buckets {
		h.Points = append(h.Points, HistoryPoint{
			Time:      b.Time,
			EnergyKWh: usage.Round(b.EnergyKWh, 3),
			PowerKW:   b.PowerKW,
			Cost:      s.calc.Cost(b.EnergyKWh),
		})
	}
	return h, nil
}

// TodayUsage is the energy a panel used since local midnight.
func (s *Service) TodayUsage(ctx context.Context, panelID string) (TodayUsage, error) {
	if panelID == "" {
		return TodayUsage{}, errors.WrapInvalid(errors.ErrInvalidData, component, "TodayUsage", "validate panel id")
	}
	now := s.clock()

	var current float64
	if entry, ok := s.cache.Get(panelID); ok {
		current = entry.EnergyKWh
	}
	// A zero counter in the cache is treated as no data.
	if current == 0 {
		r, ok, err := s.store.Latest(ctx, panelID)
		switch {
		case err != nil:
			s.queryFailed("latest", panelID, err)
		case ok:
			current = r.EnergyKWh
		}
	}

	var midnight float64
	sample, ok, err := s.store.FirstInWindow(ctx, panelID, usage.Midnight(now, s.location), now)
	switch {
	case err != nil:
		s.queryFailed("first_in_window", panelID, err)
	case ok:
		midnight = sample.EnergyKWh
	}

	used := usage.TodayUsage(current, midnight)
	return TodayUsage{
		PanelID:     panelID,
		Date:        now.In(s.location).Format(time.DateOnly),
		UsageKWh:    used,
		Cost:        s.calc.Cost(used),
		Currency:    Currency,
		CurrentKWh:  usage.Round(current, 2),
		MidnightKWh: usage.Round(midnight, 2),
	}, nil
}

// Monthly reports per-panel and building energy for a calendar month.
// Registered panels without samples report zero.
func (s *Service) Monthly(ctx context.Context, year, month int) (MonthlyReport, error) {
	if month < 1 || month > 12 {
		return MonthlyReport{}, errors.WrapInvalid(
			fmt.Errorf("%w: month %d", errors.ErrInvalidRange, month),
			component, "Monthly", "validate month")
	}

	panels, err := s.registry.List(ctx)
	if err != nil {
		return MonthlyReport{}, errors.Wrap(err, component, "Monthly", "list panels")
	}

	totals := make(map[string]float64)
	deltas, err := s.store.MonthlyDeltas(ctx, year, month)
	if err != nil {
		s.queryFailed("monthly_deltas", "", err)
	}
	for _, d := range deltas {
		totals[d.PanelID] = d.TotalKWh
	}

	report := MonthlyReport{Year: year, Month: month, Currency: Currency, Panels: make([]PanelUsage, 0, len(panels))}
	var building float64
	for _, p := range panels {
		total := totals[p.PanelID]
		building += total
		report.Panels = append(report.Panels, PanelUsage{
			PanelID:   p.PanelID,
			Location:  p.Location,
			Floor:     p.Floor,
			TotalKWh:  usage.Round(total, 2),
			TotalCost: s.calc.Cost(total),
		})
	}
	report.BuildingTotal = UsageTotal{
		TotalKWh:  usage.Round(building, 2),
		TotalCost: s.calc.Cost(building),
	}
	return report, nil
}

func (s *Service) queryFailed(operation, panelID string, err error) {
	if s.metrics != nil {
		s.metrics.RecordStoreQueryError(operation)
	}
	s.logger.Warn("Store query failed, returning empty result",
		"operation", operation, "panel_id", panelID, "error", err)
}

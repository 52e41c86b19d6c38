package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/caleheinzz25/realtime-energy-monitoring/config"
	"github.com/caleheinzz25/realtime-energy-monitoring/connector"
	"github.com/caleheinzz25/realtime-energy-monitoring/freshness"
	"github.com/caleheinzz25/realtime-energy-monitoring/health"
	"github.com/caleheinzz25/realtime-energy-monitoring/metric"
	"github.com/caleheinzz25/realtime-energy-monitoring/natsclient"
	"github.com/caleheinzz25/realtime-energy-monitoring/pkg/retry"
	"github.com/caleheinzz25/realtime-energy-monitoring/pkg/tlsutil"
	"github.com/caleheinzz25/realtime-energy-monitoring/query"
	"github.com/caleheinzz25/realtime-energy-monitoring/reading"
	"github.com/caleheinzz25/realtime-energy-monitoring/registry"
	"github.com/caleheinzz25/realtime-energy-monitoring/timeseries"
	"github.com/caleheinzz25/realtime-energy-monitoring/timeseries/influx"
	"github.com/caleheinzz25/realtime-energy-monitoring/timeseries/memstore"
	"github.com/caleheinzz25/realtime-energy-monitoring/transport"
	"github.com/caleheinzz25/realtime-energy-monitoring/transport/mqtt"
	natstransport "github.com/caleheinzz25/realtime-energy-monitoring/transport/nats"
	"github.com/caleheinzz25/realtime-energy-monitoring/usage"
)

// app holds the wired process components.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	location *time.Location

	metrics   *metric.MetricsRegistry
	store     timeseries.Store
	registry  registry.Registry
	kvClient  *natsclient.Client
	cache     *freshness.Cache
	connector *connector.Connector
	query     *query.Service
	monitor   *health.Monitor
	server    *metric.Server
}

// buildApp wires every component without starting ingestion. On error the
// components created so far are closed.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (a *app, err error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	a = &app{
		cfg:      cfg,
		logger:   logger,
		location: loc,
		metrics:  metric.NewMetricsRegistry(),
	}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	if a.store, err = a.buildStore(ctx); err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}
	if a.registry, err = a.buildRegistry(ctx); err != nil {
		return nil, fmt.Errorf("create registry: %w", err)
	}
	if err = registry.Seed(ctx, a.registry, registry.DefaultPanels()); err != nil {
		return nil, fmt.Errorf("seed registry: %w", err)
	}
	if a.cache, err = freshness.New(freshness.WithMetrics(a.metrics)); err != nil {
		return nil, fmt.Errorf("create freshness cache: %w", err)
	}

	tr, route, filter, err := buildTransport(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}
	conn, err := connector.New(connector.Config{
		Route:                route,
		Filter:               filter,
		ReconnectInterval:    cfg.Connector.ReconnectInterval,
		MaxReconnectAttempts: cfg.Connector.MaxReconnectAttempts,
	}, connector.Deps{
		Transport: tr,
		Store:     a.store,
		Cache:     a.cache,
		Registry:  a.registry,
		Decoder:   reading.NewDecoder(reading.WithLocation(loc)),
		Logger:    logger.With("component", "connector"),
		Metrics:   a.metrics.CoreMetrics(),
	})
	if err != nil {
		return nil, fmt.Errorf("create connector: %w", err)
	}

	a.query, err = query.New(query.Deps{
		Store:      a.store,
		Cache:      a.cache,
		Registry:   a.registry,
		Calculator: usage.NewCalculator(cfg.CostPerKWh),
		Location:   loc,
		Logger:     logger.With("component", "query"),
		Metrics:    a.metrics.CoreMetrics(),
	})
	if err != nil {
		return nil, fmt.Errorf("create query service: %w", err)
	}

	a.monitor = health.NewMonitor(5 * time.Second)
	a.monitor.Register("store", a.store.Ping)
	a.monitor.Register("connector", func(context.Context) error { return a.connector.Healthy() })
	a.monitor.Register("registry", func(ctx context.Context) error {
		_, err := a.registry.List(ctx)
		return err
	})

	if cfg.Metrics.Enabled {
		a.server = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, a.metrics, a.health)
	}
	a.connector = conn
	return a, nil
}

func (a *app) buildStore(ctx context.Context) (timeseries.Store, error) {
	if a.cfg.Storage.Mode == config.StorageModeMemory {
		a.logger.Warn("Using in-memory time-series store, readings are lost on restart")
		return memstore.New(memstore.WithLocation(a.location)), nil
	}
	return influx.Connect(ctx, influx.Config{
		URL:            a.cfg.Influx.URL,
		Token:          a.cfg.Influx.Token,
		Org:            a.cfg.Influx.Org,
		Bucket:         a.cfg.Influx.Bucket,
		RequestTimeout: a.cfg.Influx.RequestTimeout,
		Location:       a.location,
	}, influx.Deps{
		Logger:  a.logger.With("component", "influx-store"),
		Metrics: a.metrics.CoreMetrics(),
	}, retry.Quick())
}

func (a *app) buildRegistry(ctx context.Context) (registry.Registry, error) {
	switch a.cfg.Registry.Backend {
	case config.RegistrySQLite:
		return registry.OpenSQLite(a.cfg.Registry.SQLitePath, a.logger.With("component", "sqlite-registry"))
	case config.RegistryNATSKV:
		tlsConfig, err := tlsutil.LoadClientTLSConfig(a.cfg.Transport.TLS)
		if err != nil {
			return nil, err
		}
		// Nothing redials the registry client, so the library reconnects forever.
		opts := append(natsOptions(a.cfg, tlsConfig),
			natsclient.WithLogger(a.logger.With("component", "kv-registry")),
			natsclient.WithName("energymon-registry"),
			natsclient.WithMaxReconnects(-1),
			natsclient.WithReconnectWait(a.cfg.Connector.ReconnectInterval))
		client, err := natsclient.NewClient(a.cfg.RegistryNATSURL(), opts...)
		if err != nil {
			return nil, err
		}
		a.kvClient = client
		if err := client.Connect(ctx); err != nil {
			return nil, err
		}
		return registry.OpenKV(ctx, client, a.cfg.Registry.Bucket)
	default:
		return registry.NewMemory(), nil
	}
}

// buildTransport returns the configured transport with the route and
// subscription filter matching its key syntax.
func buildTransport(cfg *config.Config, logger *slog.Logger) (transport.Transport, reading.Route, string, error) {
	tlsConfig, err := tlsutil.LoadClientTLSConfig(cfg.Transport.TLS)
	if err != nil {
		return nil, reading.Route{}, "", err
	}

	route := reading.DefaultRoute()
	switch cfg.Transport.Kind {
	case config.TransportNATS:
		route = route.WithSeparator(natstransport.Separator)
		opts := natsOptions(cfg, tlsConfig)
		tr, err := natstransport.New(cfg.Transport.NATS.URL, logger.With("component", "nats-transport"), opts...)
		if err != nil {
			return nil, reading.Route{}, "", err
		}
		return tr, route, route.Subscription(natstransport.Wildcard), nil
	default:
		tr, err := mqtt.New(mqtt.Config{
			BrokerURL:      cfg.Transport.MQTT.BrokerURL,
			ClientIDPrefix: cfg.Transport.MQTT.ClientIDPrefix,
			Username:       cfg.Transport.MQTT.Username,
			Password:       cfg.Transport.MQTT.Password,
			TLS:            tlsConfig,
		}, logger.With("component", "mqtt-transport"))
		if err != nil {
			return nil, reading.Route{}, "", err
		}
		return tr, route, route.Subscription(mqtt.Wildcard), nil
	}
}

// natsOptions carries the shared NATS credentials and TLS settings.
func natsOptions(cfg *config.Config, tlsConfig *tls.Config) []natsclient.ClientOption {
	var opts []natsclient.ClientOption
	if cfg.Transport.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.Transport.NATS.Token))
	}
	if cfg.Transport.NATS.User != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.Transport.NATS.User, cfg.Transport.NATS.Password))
	}
	if tlsConfig != nil {
		opts = append(opts, natsclient.WithTLSConfig(tlsConfig))
	}
	return opts
}

// health runs every registered check and exports the results as gauges.
func (a *app) health() health.Status {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status := a.monitor.Check(ctx, appName)
	core := a.metrics.CoreMetrics()
	for _, sub := range status.SubStatuses {
		core.RecordHealthStatus(sub.Component, sub.Healthy)
	}
	return status
}

// close releases what the connector does not own. Once buildApp succeeds the
// connector closes the store itself on Stop.
func (a *app) close(ctx context.Context) {
	if a.connector == nil && a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("Failed to close store", "error", err)
		}
	}
	if a.registry != nil {
		if err := a.registry.Close(); err != nil {
			a.logger.Warn("Failed to close registry", "error", err)
		}
	}
	if a.kvClient != nil {
		if err := a.kvClient.Close(ctx); err != nil {
			a.logger.Warn("Failed to close registry NATS connection", "error", err)
		}
	}
}

// Package connector owns the broker connection and the per-message ingestion
// pipeline: route, decode, persist, cache, register.
package connector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caleheinzz25/realtime-energy-monitoring/errors"
	"github.com/caleheinzz25/realtime-energy-monitoring/freshness"
	"github.com/caleheinzz25/realtime-energy-monitoring/metric"
	"github.com/caleheinzz25/realtime-energy-monitoring/pkg/retry"
	"github.com/caleheinzz25/realtime-energy-monitoring/reading"
	"github.com/caleheinzz25/realtime-energy-monitoring/registry"
	"github.com/caleheinzz25/realtime-energy-monitoring/timeseries"
	"github.com/caleheinzz25/realtime-energy-monitoring/transport"
	"github.com/caleheinzz25/realtime-energy-monitoring/usage"
)

const component = "Connector"

// Config holds connector settings.
type Config struct {
	// Route extracts panel ids from routing keys. Zero value means
	// reading.DefaultRoute().
	Route reading.Route

	// Filter is the transport subscription, e.g. DATA/PM/+ for MQTT.
	Filter string

	ReconnectInterval    time.Duration
	MaxReconnectAttempts int
}

// DefaultConfig returns the standard reconnect policy for the MQTT route.
func DefaultConfig() Config {
	route := reading.DefaultRoute()
	return Config{
		Route:                route,
		Filter:               route.Subscription("+"),
		ReconnectInterval:    5 * time.Second,
		MaxReconnectAttempts: 10,
	}
}

// Deps are the collaborators the connector drives. Transport, Store, Cache
// and Registry are required.
type Deps struct {
	Transport transport.Transport
	Store     timeseries.Store
	Cache     *freshness.Cache
	Registry  registry.Registry
	Decoder   *reading.Decoder
	Logger    *slog.Logger
	Metrics   *metric.Metrics
	Clock     func() time.Time
}

// Stats is a point-in-time view of connector activity.
type Stats struct {
	State             State
	Received          int64
	Persisted         int64
	UnrecognizedRoute int64
	DecodeFailures    int64
	StoreFailures     int64
	RegistryFailures  int64
	ReconnectAttempts int64
	LastActivity      time.Time
}

// Connector ingests telemetry from a Transport. Messages are handled one at
// a time in delivery order by a single loop goroutine, which is the only
// writer of the freshness cache.
type Connector struct {
	cfg       Config
	transport transport.Transport
	store     timeseries.Store
	cache     *freshness.Cache
	registry  registry.Registry
	decoder   *reading.Decoder
	logger    *slog.Logger
	metrics   *metric.Metrics
	clock     func() time.Time

	// Lifecycle management
	mu       sync.Mutex
	state    atomic.Int32
	running  atomic.Bool
	stopped  atomic.Bool
	shutdown chan struct{} // closed once by Stop
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	err      error

	messages chan transport.Message

	// Counters
	received          atomic.Int64
	persisted         atomic.Int64
	unrecognized      atomic.Int64
	decodeFailures    atomic.Int64
	storeFailures     atomic.Int64
	registryFailures  atomic.Int64
	reconnectAttempts atomic.Int64
	lastActivity      atomic.Value // time.Time
}

// New validates cfg and deps and returns a stopped connector.
func New(cfg Config, deps Deps) (*Connector, error) {
	if deps.Transport == nil || deps.Store == nil || deps.Cache == nil || deps.Registry == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, component, "New", "validate dependencies")
	}
	if cfg.Filter == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, component, "New", "validate subscription filter")
	}
	if cfg.Route == (reading.Route{}) {
		cfg.Route = reading.DefaultRoute()
	}
	defaults := DefaultConfig()
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = defaults.ReconnectInterval
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = defaults.MaxReconnectAttempts
	}

	c := &Connector{
		cfg:       cfg,
		transport: deps.Transport,
		store:     deps.Store,
		cache:     deps.Cache,
		registry:  deps.Registry,
		decoder:   deps.Decoder,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		clock:     deps.Clock,
		messages:  make(chan transport.Message),
		shutdown:  make(chan struct{}),
	}
	if c.decoder == nil {
		c.decoder = reading.NewDecoder()
	}
	if c.logger == nil {
		c.logger = slog.Default().With("component", "connector")
	}
	if c.clock == nil {
		c.clock = time.Now
	}
	c.setState(Disconnected)
	return c, nil
}

// Start connects, subscribes and starts the message loop. It is idempotent
// while the connector is live. A failed first connect is not returned: the
// connector moves to Reconnecting and keeps trying in the background.
// Start after GivenUp returns the terminal error; Start after Stop fails.
func (c *Connector) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped.Load() {
		c.mu.Unlock()
		return errors.WrapFatal(errors.ErrShuttingDown, component, "Start", "restart stopped connector")
	}
	if c.State() == GivenUp {
		err := c.err
		c.mu.Unlock()
		return err
	}
	if c.running.Load() || c.State().active() {
		c.mu.Unlock()
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running.Store(true)
	c.setState(Connecting)
	c.wg.Add(2)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		c.loop(runCtx)
	}()

	initialErr := c.establish(runCtx)
	if initialErr != nil {
		c.logger.Warn("Initial broker connection failed, reconnecting",
			"filter", c.cfg.Filter, "error", initialErr)
	}

	go func() {
		defer c.wg.Done()
		c.supervise(runCtx, initialErr)
	}()

	return nil
}

// Stop stops the loop, closes the transport and closes the store, flushing
// buffered writes.
func (c *Connector) Stop(timeout time.Duration) error {
	if !c.running.CompareAndSwap(true, false) {
		return nil
	}
	c.stopped.Store(true)

	c.mu.Lock()
	close(c.shutdown)
	c.cancel()
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	var errs []error
	select {
	case <-done:
	case <-time.After(timeout):
		errs = append(errs, errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			component, "Stop", "graceful shutdown"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := c.transport.Close(ctx); err != nil {
		errs = append(errs, errors.Wrap(err, component, "Stop", "close transport"))
	}
	if err := c.store.Close(); err != nil {
		errs = append(errs, errors.Wrap(err, component, "Stop", "close store"))
	}
	if c.State() != GivenUp {
		c.setState(Disconnected)
	}

	c.logger.Info("Connector stopped", "persisted", c.persisted.Load(), "received", c.received.Load())
	return errors.Join(errs...)
}

// State returns the current lifecycle state.
func (c *Connector) State() State {
	return State(c.state.Load())
}

// Err returns the terminal error once the connector has given up.
func (c *Connector) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Stats returns the activity counters.
func (c *Connector) Stats() Stats {
	last, _ := c.lastActivity.Load().(time.Time)
	return Stats{
		State:             c.State(),
		Received:          c.received.Load(),
		Persisted:         c.persisted.Load(),
		UnrecognizedRoute: c.unrecognized.Load(),
		DecodeFailures:    c.decodeFailures.Load(),
		StoreFailures:     c.storeFailures.Load(),
		RegistryFailures:  c.registryFailures.Load(),
		ReconnectAttempts: c.reconnectAttempts.Load(),
		LastActivity:      last,
	}
}

// Healthy reports whether the connector is subscribed.
func (c *Connector) Healthy() error {
	switch state := c.State(); state {
	case Subscribed:
		return nil
	case GivenUp:
		return c.Err()
	default:
		return errors.WrapTransient(fmt.Errorf("connector %s", state), component, "Healthy", "check state")
	}
}

func (c *Connector) setState(s State) {
	prev := State(c.state.Swap(int32(s)))
	if c.metrics != nil {
		c.metrics.RecordConnectorState(int(s))
	}
	if prev != s {
		c.logger.Debug("Connector state changed", "from", prev.String(), "to", s.String())
	}
}

// establish runs Connect then Subscribe on the transport.
func (c *Connector) establish(ctx context.Context) error {
	if err := c.transport.Connect(ctx); err != nil {
		return err
	}
	c.setState(Connected)

	c.setState(Subscribing)
	if err := c.transport.Subscribe(ctx, c.cfg.Filter, c.handoff); err != nil {
		return err
	}
	c.setState(Subscribed)
	c.logger.Info("Subscribed to telemetry", "filter", c.cfg.Filter)
	return nil
}

// handoff runs on the transport's delivery goroutine and blocks until the
// loop takes the message, so a slow pipeline holds back the broker.
func (c *Connector) handoff(m transport.Message) {
	select {
	case c.messages <- m:
	case <-c.shutdown:
	}
}

// supervise reconnects after every reported loss until the policy is
// exhausted or the connector stops.
func (c *Connector) supervise(ctx context.Context, initialErr error) {
	if initialErr != nil && !c.reconnect(ctx, initialErr) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-c.transport.Lost():
			c.logger.Warn("Broker connection lost", "error", err)
			if !c.reconnect(ctx, err) {
				return
			}
		}
	}
}

// reconnect retries establish on a fixed interval. It returns false when
// supervision should end.
func (c *Connector) reconnect(ctx context.Context, cause error) bool {
	c.setState(Reconnecting)

	policy := retry.Fixed(c.cfg.ReconnectInterval, c.cfg.MaxReconnectAttempts)
	policy.OnAttempt = func(attempt int, err error) {
		c.setState(Reconnecting)
		c.logger.Warn("Reconnect attempt failed",
			"attempt", attempt, "max_attempts", c.cfg.MaxReconnectAttempts, "error", err)
	}

	err := retry.Do(ctx, policy, func() error {
		c.reconnectAttempts.Add(1)
		if c.metrics != nil {
			c.metrics.RecordReconnectAttempt()
		}
		return c.establish(ctx)
	})
	if err == nil {
		c.logger.Info("Reconnected to broker", "attempts", c.reconnectAttempts.Load())
		return true
	}
	if ctx.Err() != nil {
		return false
	}

	terminal := errors.WrapFatal(fmt.Errorf("%w: %w", errors.ErrReconnectExhausted, err),
		component, "reconnect", fmt.Sprintf("reconnect after %d attempts", c.cfg.MaxReconnectAttempts))

	c.mu.Lock()
	c.err = terminal
	c.mu.Unlock()
	c.setState(GivenUp)

	c.logger.Error("Giving up on broker connection, restart required",
		"attempts", c.cfg.MaxReconnectAttempts, "cause", cause, "error", err)
	return false
}

func (c *Connector) loop(ctx context.Context) {
	// In-flight writes finish on shutdown so a persisted reading is always
	// cached and registered too.
	work := context.WithoutCancel(ctx)

	for {
		select {
		case <-c.shutdown:
			return
		case <-ctx.Done():
			return
		case m := <-c.messages:
			c.process(work, m)
		}
	}
}

// process runs one message through the pipeline. Every failure is local to
// the message.
func (c *Connector) process(ctx context.Context, m transport.Message) {
	c.received.Add(1)
	c.lastActivity.Store(c.clock())
	if c.metrics != nil {
		c.metrics.RecordMessageReceived()
	}

	panelID, err := c.cfg.Route.PanelID(m.Key)
	if err != nil {
		c.outcome(metric.StatusUnrecognizedRoute)
		c.logger.Warn("Dropping message on unrecognized route", "key", m.Key)
		c.unrecognized.Add(1)
		return
	}

	r, err := c.decoder.Decode(panelID, m.Payload)
	if err != nil {
		c.outcome(metric.StatusDecodeFailure)
		c.logger.Warn("Dropping undecodable payload", "panel_id", panelID, "error", err)
		c.decodeFailures.Add(1)
		return
	}

	start := time.Now()
	err = c.store.Write(ctx, r)
	if c.metrics != nil {
		c.metrics.RecordStoreWrite(time.Since(start))
	}
	if err != nil {
		c.outcome(metric.StatusStoreUnavailable)
		c.logger.Error("Dropping reading, store write failed", "panel_id", panelID, "error", err)
		c.storeFailures.Add(1)
		return
	}

	if err := c.cache.Put(panelID, r); err != nil {
		c.logger.Error("Cache update failed", "panel_id", panelID, "error", err)
	}

	if err := c.registry.UpdateLastSeen(ctx, panelID, usage.Online, c.clock()); err != nil {
		c.registryFailures.Add(1)
		if c.metrics != nil {
			c.metrics.RecordRegistryError()
		}
		c.logger.Warn("Registry update failed", "panel_id", panelID, "error", err)
	}

	c.outcome(metric.StatusPersisted)
	c.logger.Debug("Reading persisted", "panel_id", panelID, "energy_kwh", r.EnergyKWh, "power_kw", r.PowerKW)
	c.persisted.Add(1)
}

func (c *Connector) outcome(status string) {
	if c.metrics != nil {
		c.metrics.RecordMessageProcessed(status)
	}
}

// Package mqtt is the paho MQTT implementation of transport.Transport.
//
// Paho's auto-reconnect is disabled; a lost connection is reported on Lost and
// the connector dials again with Connect. Messages are delivered with QoS 1
// and in order, one at a time, so a slow handler back-pressures the broker.
package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/caleheinzz25/realtime-energy-monitoring/errors"
	"github.com/caleheinzz25/realtime-energy-monitoring/transport"
)

const component = "MQTTTransport"

// QoS is the subscription quality of service (at least once).
const QoS byte = 1

// Wildcard is the single-level MQTT topic wildcard.
const Wildcard = "+"

// Config holds the broker connection settings.
type Config struct {
	BrokerURL      string
	ClientIDPrefix string
	Username       string
	Password       string
	ConnectTimeout time.Duration
	KeepAlive      time.Duration
	// TLS is used for ssl:// brokers. Nil means plain TCP.
	TLS *tls.Config
}

// DefaultConfig returns the settings for a local broker.
func DefaultConfig() Config {
	return Config{
		BrokerURL:      "tcp://localhost:1883",
		ClientIDPrefix: "energy-monitor",
		ConnectTimeout: 10 * time.Second,
		KeepAlive:      60 * time.Second,
	}
}

// Transport wraps a paho client.
type Transport struct {
	cfg      Config
	clientID string
	logger   *slog.Logger
	lost     chan error

	mu     sync.Mutex
	client paho.Client
}

var _ transport.Transport = (*Transport)(nil)

// New creates a transport. Nothing is dialled until Connect.
func New(cfg Config, logger *slog.Logger) (*Transport, error) {
	if cfg.BrokerURL == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, component, "New", "validate broker url")
	}
	if cfg.ClientIDPrefix == "" {
		cfg.ClientIDPrefix = DefaultConfig().ClientIDPrefix
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConfig().ConnectTimeout
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = DefaultConfig().KeepAlive
	}
	cfg.BrokerURL = NormalizeBrokerURL(cfg.BrokerURL)

	if logger == nil {
		logger = slog.Default().With("component", "mqtt-transport")
	}

	t := &Transport{
		cfg:      cfg,
		clientID: cfg.ClientIDPrefix + "-" + strings.Split(uuid.NewString(), "-")[0],
		logger:   logger,
		lost:     make(chan error, 1),
	}
	t.client = paho.NewClient(t.clientOptions())
	return t, nil
}

// NormalizeBrokerURL rewrites the mqtt:// scheme to tcp:// and mqtts:// to
// ssl://, the schemes paho dials.
func NormalizeBrokerURL(url string) string {
	if rest, ok := strings.CutPrefix(url, "mqtt://"); ok {
		return "tcp://" + rest
	}
	if rest, ok := strings.CutPrefix(url, "mqtts://"); ok {
		return "ssl://" + rest
	}
	return url
}

// ClientID returns the MQTT client identifier.
func (t *Transport) ClientID() string {
	return t.clientID
}

func (t *Transport) clientOptions() *paho.ClientOptions {
	opts := paho.NewClientOptions().
		AddBroker(t.cfg.BrokerURL).
		SetClientID(t.clientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetOrderMatters(true).
		SetConnectTimeout(t.cfg.ConnectTimeout).
		SetKeepAlive(t.cfg.KeepAlive).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			t.logger.Warn("MQTT connection lost", "broker", t.cfg.BrokerURL, "error", err)
			transport.NotifyLost(t.lost, err)
		})
	if t.cfg.Username != "" {
		opts.SetUsername(t.cfg.Username)
		opts.SetPassword(t.cfg.Password)
	}
	if t.cfg.TLS != nil {
		opts.SetTLSConfig(t.cfg.TLS)
	}
	return opts
}

// Connect implements transport.Transport.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()

	if client.IsConnected() {
		return nil
	}
	if err := wait(ctx, client.Connect(), t.cfg.ConnectTimeout); err != nil {
		return errors.Transport(err, component, "Connect", "connect to "+t.cfg.BrokerURL)
	}
	t.logger.Info("Connected to MQTT broker", "broker", t.cfg.BrokerURL, "client_id", t.clientID)
	return nil
}

// Subscribe implements transport.Transport.
func (t *Transport) Subscribe(ctx context.Context, filter string, handler transport.Handler) error {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()

	token := client.Subscribe(filter, QoS, func(_ paho.Client, msg paho.Message) {
		handler(transport.Message{Key: msg.Topic(), Payload: msg.Payload()})
	})
	if err := wait(ctx, token, t.cfg.ConnectTimeout); err != nil {
		return errors.Transport(err, component, "Subscribe", "subscribe to "+filter)
	}
	t.logger.Info("Subscribed", "filter", filter, "qos", QoS)
	return nil
}

// Lost implements transport.Transport.
func (t *Transport) Lost() <-chan error {
	return t.lost
}

// Close implements transport.Transport.
func (t *Transport) Close(ctx context.Context) error {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()

	quiesce := uint(250)
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < 250*time.Millisecond {
			quiesce = uint(max(remaining, 0) / time.Millisecond)
		}
	}
	if client.IsConnectionOpen() {
		client.Disconnect(quiesce)
	}
	return nil
}

// wait blocks until token completes, ctx ends or timeout elapses.
func wait(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w after %s", errors.ErrConnectionTimeout, timeout)
	}
}

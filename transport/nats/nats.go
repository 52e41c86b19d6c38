// Package nats is the NATS implementation of transport.Transport, built on
// natsclient. Panels publish on DATA.PM.<panel id>.
package nats

import (
	"context"
	"log/slog"

	"github.com/caleheinzz25/realtime-energy-monitoring/errors"
	"github.com/caleheinzz25/realtime-energy-monitoring/natsclient"
	"github.com/caleheinzz25/realtime-energy-monitoring/transport"
)

// Wildcard is the single-token NATS subject wildcard.
const Wildcard = "*"

// Separator is the NATS subject token separator.
const Separator = "."

// Transport adapts a natsclient.Client. The client's own reconnects are
// disabled so every loss reaches the connector.
type Transport struct {
	client *natsclient.Client
	lost   chan error
	logger *slog.Logger
}

var _ transport.Transport = (*Transport)(nil)

// New creates a transport for url. opts are applied after the transport's
// own options, except that library reconnects stay disabled.
func New(url string, logger *slog.Logger, opts ...natsclient.ClientOption) (*Transport, error) {
	if url == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "NATSTransport", "New", "validate url")
	}
	if logger == nil {
		logger = slog.Default().With("component", "nats-transport")
	}

	t := &Transport{lost: make(chan error, 1), logger: logger}

	all := append([]natsclient.ClientOption{
		natsclient.WithLogger(logger),
		natsclient.WithName("energymon-ingest"),
	}, opts...)
	all = append(all,
		natsclient.WithMaxReconnects(0),
		natsclient.WithConnectionLostCallback(func(err error) {
			transport.NotifyLost(t.lost, err)
		}),
	)

	client, err := natsclient.NewClient(url, all...)
	if err != nil {
		return nil, err
	}
	t.client = client
	return t, nil
}

// Connect implements transport.Transport.
func (t *Transport) Connect(ctx context.Context) error {
	if t.client.IsHealthy() {
		return nil
	}
	return t.client.Connect(ctx)
}

// Subscribe implements transport.Transport. NATS invokes one subscription's
// callback sequentially, preserving delivery order.
func (t *Transport) Subscribe(ctx context.Context, filter string, handler transport.Handler) error {
	err := t.client.Subscribe(ctx, filter, func(_ context.Context, subject string, data []byte) {
		handler(transport.Message{Key: subject, Payload: data})
	})
	if err != nil {
		if errors.Is(err, natsclient.ErrNotConnected) {
			return errors.Transport(err, "NATSTransport", "Subscribe", "subscribe to "+filter)
		}
		return err
	}
	t.logger.Info("Subscribed", "subject", filter)
	return nil
}

// Lost implements transport.Transport.
func (t *Transport) Lost() <-chan error {
	return t.lost
}

// Close implements transport.Transport.
func (t *Transport) Close(ctx context.Context) error {
	return t.client.Close(ctx)
}

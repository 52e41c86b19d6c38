// Package transport defines the broker abstraction the ingestion connector
// consumes. Implementations live in transport/mqtt and transport/nats.
package transport

import "context"

// Message is one delivery from the broker: the routing key it arrived on
// and its raw payload.
type Message struct {
	Key     string
	Payload []byte
}

// Handler receives messages in broker delivery order. It may block; a
// blocked handler holds back further deliveries.
type Handler func(Message)

// Transport is a broker connection the connector drives. Library-level
// auto-reconnect must be off: after a loss is reported on Lost, the connector
// decides when to call Connect and Subscribe again.
type Transport interface {
	// Connect dials the broker. It may be called again after a loss.
	Connect(ctx context.Context) error

	// Subscribe registers handler for filter on the current connection.
	Subscribe(ctx context.Context, filter string, handler Handler) error

	// Lost reports connection losses that happen after Connect succeeded.
	Lost() <-chan error

	// Close disconnects for good.
	Close(ctx context.Context) error
}

// NotifyLost delivers err on ch without blocking. One pending loss is
// enough to trigger a reconnect, so extra reports are dropped.
func NotifyLost(ch chan error, err error) {
	select {
	case ch <- err:
	default:
	}
}

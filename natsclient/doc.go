// Package natsclient manages a single NATS connection for the NATS ingestion
// transport and the NATS KV panel registry.
//
// The client wraps nats.go with a connection status, context-aware Connect and
// a draining Close. Library reconnects are disabled by default: when the
// connection drops, the callback set with WithConnectionLostCallback fires and
// the owner (the ingestion connector, through transport/nats) paces its own
// reconnect attempts.
//
// # Basic Usage
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithConnectionLostCallback(func(err error) { lost <- err }))
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	err = client.Subscribe(ctx, "DATA.PM.*", func(ctx context.Context, subject string, data []byte) {
//	    // handle message
//	})
//
// # Key-Value
//
// KVStore adds compare-and-swap updates with retry on revision conflicts:
//
//	bucket, _ := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: "energy_panels"})
//	kv := client.NewKVStore(bucket)
//	err := kv.UpdateWithRetry(ctx, "PANEL_LANTAI_1", func(current []byte) ([]byte, error) {
//	    // decode, modify, encode
//	})
//
// # Testing
//
// NewTestClient starts a NATS container with testcontainers-go and returns a
// connected client; it is used by the integration tests of this package and of
// the registry and transport packages.
package natsclient

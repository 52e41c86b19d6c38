package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/caleheinzz25/realtime-energy-monitoring/errors"
	"github.com/caleheinzz25/realtime-energy-monitoring/natsclient"
	"github.com/caleheinzz25/realtime-energy-monitoring/usage"
)

// DefaultBucket is the KV bucket panels are stored in.
const DefaultBucket = "energy_panels"

// KV is a Registry stored in a NATS JetStream KV bucket, one JSON document
// per panel keyed by panel id.
type KV struct {
	store *natsclient.KVStore
}

var _ Registry = (*KV)(nil)

// OpenKV creates the bucket if needed and returns a registry on it.
func OpenKV(ctx context.Context, client *natsclient.Client, bucket string) (*KV, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	kv, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "energy panel registry",
		History:     1,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "KVRegistry", "Open", "open bucket "+bucket)
	}
	return &KV{store: client.NewKVStore(kv)}, nil
}

// NewKV wraps an existing KV store.
func NewKV(store *natsclient.KVStore) *KV {
	return &KV{store: store}
}

// UpdateLastSeen implements Registry.
func (r *KV) UpdateLastSeen(ctx context.Context, panelID string, status usage.Status, ts time.Time) error {
	err := r.store.UpdateWithRetry(ctx, panelID, func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, notFound("KVRegistry", panelID)
		}
		var p Panel
		if err := json.Unmarshal(current, &p); err != nil {
			return nil, errors.WrapInvalid(err, "KVRegistry", "UpdateLastSeen", "decode panel "+panelID)
		}
		p.Status = status
		p.LastOnline = ts
		return json.Marshal(p)
	})
	if err != nil {
		if errors.IsInvalid(err) {
			return err
		}
		return errors.WrapTransient(err, "KVRegistry", "UpdateLastSeen", "update panel "+panelID)
	}
	return nil
}

// List implements Registry.
func (r *KV) List(ctx context.Context) ([]Panel, error) {
	keys, err := r.store.Keys(ctx)
	if err != nil {
		return nil, errors.WrapTransient(err, "KVRegistry", "List", "list keys")
	}

	panels := make([]Panel, 0, len(keys))
	for _, key := range keys {
		entry, err := r.store.Get(ctx, key)
		if err != nil {
			if natsclient.IsKVNotFoundError(err) {
				continue
			}
			return nil, errors.WrapTransient(err, "KVRegistry", "List", "get panel "+key)
		}
		var p Panel
		if err := json.Unmarshal(entry.Value, &p); err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrInvalidData, err),
				"KVRegistry", "List", "decode panel "+key)
		}
		panels = append(panels, p)
	}

	sortPanels(panels)
	return panels, nil
}

// Ensure implements Registry.
func (r *KV) Ensure(ctx context.Context, p Panel) error {
	p, err := normalize(p)
	if err != nil {
		return err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return errors.WrapInvalid(err, "KVRegistry", "Ensure", "encode panel")
	}

	if _, err := r.store.Create(ctx, p.PanelID, data); err != nil && !errors.Is(err, natsclient.ErrKVKeyExists) {
		return errors.WrapTransient(err, "KVRegistry", "Ensure", "create panel "+p.PanelID)
	}
	return nil
}

// Close implements Registry. The NATS client is owned by the caller.
func (r *KV) Close() error { return nil }

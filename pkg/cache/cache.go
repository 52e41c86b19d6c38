package cache

import (
	"github.com/caleheinzz25/realtime-energy-monitoring/errors"
)

// Cache is a keyed store of values of type V. Entries are never evicted.
type Cache[V any] interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (V, bool)

	// Set installs value under key, replacing any previous value. It reports
	// whether the key was new.
	Set(key string, value V) (bool, error)

	Size() int
	Keys() []string

	// Snapshot returns a copy of every entry. Later writes do not affect it.
	Snapshot() map[string]V

	Stats() *Statistics
}

// NewSimple creates a map-backed cache.
func NewSimple[V any](options ...Option[V]) (Cache[V], error) {
	return newMapCache(applyOptions(options...))
}

func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "cache", "Set", "validate key")
	}
	return nil
}

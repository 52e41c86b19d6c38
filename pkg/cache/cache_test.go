package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caleheinzz25/realtime-energy-monitoring/errors"
)

func TestSimpleCache_BasicOperations(t *testing.T) {
	c, err := NewSimple[string]()
	require.NoError(t, err)

	_, exists := c.Get("key1")
	assert.False(t, exists)

	isNew, err := c.Set("key1", "value1")
	require.NoError(t, err)
	assert.True(t, isNew)

	value, exists := c.Get("key1")
	assert.True(t, exists)
	assert.Equal(t, "value1", value)

	isNew, err = c.Set("key1", "value1_updated")
	require.NoError(t, err)
	assert.False(t, isNew, "second set should update")

	value, _ = c.Get("key1")
	assert.Equal(t, "value1_updated", value)
	assert.Equal(t, 1, c.Size())
}

func TestSimpleCache_EmptyKeyRejected(t *testing.T) {
	c, err := NewSimple[int]()
	require.NoError(t, err)

	_, err = c.Set("", 1)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Equal(t, 0, c.Size())
}

func TestSimpleCache_SnapshotIsCopy(t *testing.T) {
	c, err := NewSimple[int]()
	require.NoError(t, err)

	_, _ = c.Set("a", 1)
	_, _ = c.Set("b", 2)

	snap := c.Snapshot()
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, snap)

	_, _ = c.Set("a", 10)
	assert.Equal(t, 1, snap["a"], "snapshot must not observe later writes")
	assert.ElementsMatch(t, []string{"a", "b"}, c.Keys())
}

func TestSimpleCache_Stats(t *testing.T) {
	c, err := NewSimple[string]()
	require.NoError(t, err)

	_, _ = c.Set("k", "v")
	_, _ = c.Get("k")
	_, _ = c.Get("missing")

	stats := c.Stats().Summary()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
	assert.Equal(t, int64(1), stats.CurrentSize)
	assert.Equal(t, int64(1), stats.MaxSize)
	assert.InDelta(t, 0.5, stats.HitRatio, 0.0001)
}

func TestSimpleCache_ConcurrentReadersSingleWriter(t *testing.T) {
	c, err := NewSimple[int]()
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_, _ = c.Set(fmt.Sprintf("panel-%d", i%10), i)
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				_, _ = c.Get(fmt.Sprintf("panel-%d", i%10))
				_ = c.Snapshot()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, c.Size())
	value, ok := c.Get("panel-9")
	assert.True(t, ok)
	assert.Equal(t, 999, value)
}

package registry

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caleheinzz25/realtime-energy-monitoring/errors"
	"github.com/caleheinzz25/realtime-energy-monitoring/usage"
)

// testRegistryContract exercises the behaviour every backend shares.
func testRegistryContract(t *testing.T, r Registry) {
	t.Helper()
	ctx := context.Background()

	panels := DefaultPanels()
	// seed out of floor order
	require.NoError(t, Seed(ctx, r, []Panel{panels[2], panels[0], panels[1]}))

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "PANEL_LANTAI_1", list[0].PanelID)
	assert.Equal(t, "PANEL_LANTAI_2", list[1].PanelID)
	assert.Equal(t, "PANEL_LANTAI_3", list[2].PanelID)
	assert.Equal(t, "Lantai 2 - Office", list[1].Location)
	assert.Equal(t, usage.Offline, list[0].Status)
	assert.True(t, list[0].LastOnline.IsZero())

	seen := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	require.NoError(t, r.UpdateLastSeen(ctx, "PANEL_LANTAI_2", usage.Online, seen))

	// Ensure does not overwrite an existing panel
	require.NoError(t, r.Ensure(ctx, Panel{PanelID: "PANEL_LANTAI_2", Location: "renamed", Floor: 9}))

	list, err = r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	p := list[1]
	assert.Equal(t, "PANEL_LANTAI_2", p.PanelID)
	assert.Equal(t, "Lantai 2 - Office", p.Location)
	assert.Equal(t, usage.Online, p.Status)
	assert.True(t, p.LastOnline.Equal(seen), "got %s", p.LastOnline)

	err = r.UpdateLastSeen(ctx, "PANEL_UNKNOWN", usage.Online, seen)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPanelNotFound))

	err = r.Ensure(ctx, Panel{})
	assert.True(t, errors.IsInvalid(err))
}

func TestMemory(t *testing.T) {
	testRegistryContract(t, NewMemory())
}

func TestNewMemory_Preloaded(t *testing.T) {
	r := NewMemory(DefaultPanels()...)
	list, err := r.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestSQLite(t *testing.T) {
	r, err := OpenSQLite(filepath.Join(t.TempDir(), "panels.db"), nil)
	require.NoError(t, err)
	defer r.Close()

	testRegistryContract(t, r)
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "panels.db")
	ctx := context.Background()

	r, err := OpenSQLite(path, nil)
	require.NoError(t, err)
	require.NoError(t, Seed(ctx, r, DefaultPanels()))
	require.NoError(t, r.Close())

	r, err = OpenSQLite(path, nil)
	require.NoError(t, err)
	defer r.Close()

	list, err := r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestSQLite_SerializedAccess(t *testing.T) {
	r, err := OpenSQLite(filepath.Join(t.TempDir(), "panels.db"), nil)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 1, r.db.Stats().MaxOpenConnections)

	ctx := context.Background()
	require.NoError(t, Seed(ctx, r, DefaultPanels()))

	seen := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i, p := range DefaultPanels() {
		wg.Add(2)
		go func(id string, ts time.Time) {
			defer wg.Done()
			errs <- r.UpdateLastSeen(ctx, id, usage.Online, ts)
		}(p.PanelID, seen.Add(time.Duration(i)*time.Minute))
		go func() {
			defer wg.Done()
			_, err := r.List(ctx)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	list, err := r.List(ctx)
	require.NoError(t, err)
	for _, p := range list {
		assert.Equal(t, usage.Online, p.Status, p.PanelID)
	}
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	_, err := OpenSQLite("", nil)
	assert.True(t, errors.IsInvalid(err))
}

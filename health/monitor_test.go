package health

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate(t *testing.T) {
	tests := []struct {
		name     string
		subs     []Status
		expected string
	}{
		{"no children", nil, "healthy"},
		{"all healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, "healthy"},
		{"one degraded", []Status{NewHealthy("a", ""), NewDegraded("b", "")}, "degraded"},
		{"unhealthy wins", []Status{NewDegraded("a", ""), NewUnhealthy("b", "")}, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("energymon", tt.subs)
			assert.Equal(t, tt.expected, got.Status)
			assert.Len(t, got.SubStatuses, len(tt.subs))
		})
	}
}

func TestMonitor_UpdateAndGet(t *testing.T) {
	m := NewMonitor(time.Second)

	m.Update("connector", Status{Status: "healthy", Healthy: true, Message: "subscribed"})

	got, ok := m.Get("connector")
	require.True(t, ok)
	assert.Equal(t, "connector", got.Component)
	assert.False(t, got.Timestamp.IsZero())

	_, ok = m.Get("missing")
	assert.False(t, ok)
}

func TestMonitor_CheckRunsRegisteredChecks(t *testing.T) {
	m := NewMonitor(time.Second)
	m.Update("connector", NewHealthy("connector", "subscribed"))
	m.Register("timeseries", func(ctx context.Context) error { return nil })
	m.Register("registry", func(ctx context.Context) error {
		return fmt.Errorf("database is locked")
	})

	status := m.Check(context.Background(), "energymon")

	assert.True(t, status.IsUnhealthy())
	require.Len(t, status.SubStatuses, 3)
	assert.Equal(t, "connector", status.SubStatuses[0].Component)
	assert.Equal(t, "registry", status.SubStatuses[1].Component)
	assert.True(t, status.SubStatuses[1].IsUnhealthy())
	assert.Equal(t, "timeseries", status.SubStatuses[2].Component)
}

func TestMonitor_CheckHonoursTimeout(t *testing.T) {
	m := NewMonitor(20 * time.Millisecond)
	m.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	status := m.Check(context.Background(), "energymon")

	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, status.IsUnhealthy())
}

func TestMonitor_ConcurrentAccess(t *testing.T) {
	m := NewMonitor(time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			name := fmt.Sprintf("component-%d", id)
			for j := 0; j < 50; j++ {
				m.Update(name, NewHealthy(name, "ok"))
				_ = m.AggregateHealth("energymon")
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, m.AggregateHealth("energymon").SubStatuses, 10)
}

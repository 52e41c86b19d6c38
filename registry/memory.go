package registry

import (
	"context"
	"sync"
	"time"

	"github.com/caleheinzz25/realtime-energy-monitoring/usage"
)

// Memory is a process-local Registry.
type Memory struct {
	mu     sync.RWMutex
	panels map[string]Panel
}

var _ Registry = (*Memory)(nil)

// NewMemory creates a registry holding panels.
func NewMemory(panels ...Panel) *Memory {
	m := &Memory{panels: make(map[string]Panel, len(panels))}
	for _, p := range panels {
		if p, err := normalize(p); err == nil {
			m.panels[p.PanelID] = p
		}
	}
	return m
}

// UpdateLastSeen implements Registry.
func (m *Memory) UpdateLastSeen(_ context.Context, panelID string, status usage.Status, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.panels[panelID]
	if !ok {
		return notFound("MemoryRegistry", panelID)
	}
	p.Status = status
	p.LastOnline = ts
	m.panels[panelID] = p
	return nil
}

// List implements Registry.
func (m *Memory) List(_ context.Context) ([]Panel, error) {
	m.mu.RLock()
	panels := make([]Panel, 0, len(m.panels))
	for _, p := range m.panels {
		panels = append(panels, p)
	}
	m.mu.RUnlock()

	sortPanels(panels)
	return panels, nil
}

// Ensure implements Registry.
func (m *Memory) Ensure(_ context.Context, p Panel) error {
	p, err := normalize(p)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.panels[p.PanelID]; !ok {
		m.panels[p.PanelID] = p
	}
	return nil
}

// Close implements Registry.
func (m *Memory) Close() error { return nil }

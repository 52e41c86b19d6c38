// Package registry holds the provisioned panels and their last-seen status.
//
// The ingestion connector marks a panel ONLINE after every persisted reading;
// the query facade lists panels to know which ones to report. Three backends
// implement Registry: Memory for tests and local runs, SQLite for a single
// node and KV for NATS JetStream deployments.
package registry

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/caleheinzz25/realtime-energy-monitoring/errors"
	"github.com/caleheinzz25/realtime-energy-monitoring/usage"
)

// Panel is a provisioned distribution panel.
type Panel struct {
	PanelID    string       `json:"panelId"`
	Location   string       `json:"location"`
	Floor      int          `json:"floor"`
	Status     usage.Status `json:"status"`
	LastOnline time.Time    `json:"lastOnline,omitempty"`
}

// Registry is the panel store consumed by the connector and the query facade.
type Registry interface {
	// UpdateLastSeen records status and the time the panel was last heard
	// from. Unknown panels yield errors.ErrPanelNotFound.
	UpdateLastSeen(ctx context.Context, panelID string, status usage.Status, ts time.Time) error

	// List returns every panel ordered by floor, then panel id.
	List(ctx context.Context) ([]Panel, error)

	// Ensure creates the panel if it does not exist. An existing panel is
	// left untouched.
	Ensure(ctx context.Context, p Panel) error

	Close() error
}

// DefaultPanels is the seed set used when no panels are configured.
func DefaultPanels() []Panel {
	return []Panel{
		{PanelID: "PANEL_LANTAI_1", Location: "Lantai 1 - Main", Floor: 1},
		{PanelID: "PANEL_LANTAI_2", Location: "Lantai 2 - Office", Floor: 2},
		{PanelID: "PANEL_LANTAI_3", Location: "Lantai 3 - Meeting", Floor: 3},
	}
}

// Seed ensures every panel exists.
func Seed(ctx context.Context, r Registry, panels []Panel) error {
	for _, p := range panels {
		if err := r.Ensure(ctx, p); err != nil {
			return errors.Wrap(err, "registry", "Seed", "ensure panel "+p.PanelID)
		}
	}
	return nil
}

// normalize validates p and fills the default status.
func normalize(p Panel) (Panel, error) {
	if p.PanelID == "" {
		return Panel{}, errors.WrapInvalid(errors.ErrInvalidData, "registry", "Ensure", "validate panel id")
	}
	if p.Status == "" {
		p.Status = usage.Offline
	}
	return p, nil
}

func sortPanels(panels []Panel) {
	sort.Slice(panels, func(i, j int) bool {
		if panels[i].Floor != panels[j].Floor {
			return panels[i].Floor < panels[j].Floor
		}
		return panels[i].PanelID < panels[j].PanelID
	})
}

func notFound(component, panelID string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrPanelNotFound, panelID),
		component, "UpdateLastSeen", "look up panel")
}

package query

import (
	"fmt"
	"time"

	"github.com/caleheinzz25/realtime-energy-monitoring/reading"
	"github.com/caleheinzz25/realtime-energy-monitoring/usage"
)

// Realtime is the status board for every registered panel.
type Realtime struct {
	Panels    []PanelSnapshot `json:"panels"`
	Timestamp time.Time       `json:"timestamp"`
}

// PanelSnapshot is the freshest known state of one panel. Without any
// reading the electrical values are zero and LastUpdate is the registry's
// last-seen time, possibly zero.
type PanelSnapshot struct {
	PanelID            string          `json:"pmCode"`
	Location           string          `json:"location"`
	Floor              int             `json:"floor"`
	Status             usage.Status    `json:"panelStatus"`
	LastUpdate         time.Time       `json:"lastUpdate"`
	LastUpdateRelative string          `json:"lastUpdateRelative"`
	HasReading         bool            `json:"hasReading"`
	Reading            reading.Reading `json:"reading"`
}

// History is a bucketed energy chart for one panel.
type History struct {
	PanelID string         `json:"pmCode"`
	Range   string         `json:"range"`
	Date    time.Time      `json:"date"`
	Points  []HistoryPoint `json:"points"`
}

// HistoryPoint is one chart bucket. EnergyKWh is rounded to 3 decimals;
// Cost is computed from the unrounded mean.
type HistoryPoint struct {
	Time      time.Time `json:"time"`
	EnergyKWh float64   `json:"energy"`
	PowerKW   float64   `json:"powerKW"`
	Cost      int64     `json:"cost"`
}

// TodayUsage is one panel's consumption since local midnight.
type TodayUsage struct {
	PanelID     string  `json:"panelCode"`
	Date        string  `json:"date"`
	UsageKWh    float64 `json:"todayUsageKWh"`
	Cost        int64   `json:"todayCost"`
	Currency    string  `json:"currency"`
	CurrentKWh  float64 `json:"currentKWh"`
	MidnightKWh float64 `json:"midnightKWh"`
}

// MonthlyReport is the per-panel and building consumption for a month.
type MonthlyReport struct {
	Year          int          `json:"year"`
	Month         int          `json:"month"`
	Currency      string       `json:"currency"`
	Panels        []PanelUsage `json:"panels"`
	BuildingTotal UsageTotal   `json:"buildingTotal"`
}

// PanelUsage is one panel's line in a MonthlyReport.
type PanelUsage struct {
	PanelID   string  `json:"panelCode"`
	Location  string  `json:"location"`
	Floor     int     `json:"floor"`
	TotalKWh  float64 `json:"totalKWh"`
	TotalCost int64   `json:"totalCost"`
}

// UsageTotal is the building line of a MonthlyReport. The building kWh is
// summed before rounding.
type UsageTotal struct {
	TotalKWh  float64 `json:"totalKWh"`
	TotalCost int64   `json:"totalCost"`
}

// RelativeTime renders the age of t as "42s ago", "5m ago", "3h ago" or
// "2d ago". A zero t is "Never".
func RelativeTime(t, now time.Time) string {
	if t.IsZero() {
		return "Never"
	}
	secs := int64(now.Sub(t) / time.Second)
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds ago", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm ago", secs/60)
	case secs < 86400:
		return fmt.Sprintf("%dh ago", secs/3600)
	default:
		return fmt.Sprintf("%dd ago", secs/86400)
	}
}

package reading

import "time"

// Phase indexes into Voltage and Current.
const (
	PhaseR = iota
	PhaseS
	PhaseT
	PhaseN
)

// Reading is one fully populated telemetry sample for a panel. Every Reading
// returned by a Decoder has all fields set; absent wire values become zero and
// an absent timestamp becomes the ingestion time.
type Reading struct {
	PanelID string `json:"panelId"`

	Voltage [4]float64 `json:"v"` // R, S, T, N
	Current [4]float64 `json:"i"` // R, S, T, N

	PowerKW   float64 `json:"kw"`
	PowerKVA  float64 `json:"kVA"`
	EnergyKWh float64 `json:"kWh"` // cumulative meter counter

	PowerFactor      float64 `json:"pf"`
	VoltageUnbalance float64 `json:"vunbal"`
	CurrentUnbalance float64 `json:"iunbal"`

	Timestamp time.Time `json:"time"`
}

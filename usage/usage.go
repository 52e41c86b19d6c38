// Package usage holds the pure usage, cost and online-status rules.
package usage

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// StalenessThreshold is how long a panel may stay silent before it is
// OFFLINE. The freshness cache and the status classification share it.
const StalenessThreshold = 5 * time.Minute

// DefaultRate is the tariff in currency units per kWh when none is configured.
const DefaultRate int64 = 1500

// Status is the online classification of a panel.
type Status string

const (
	Online  Status = "ONLINE"
	Offline Status = "OFFLINE"
)

// TodayUsage is the energy consumed since midnight, rounded to 2 decimals.
// A counter that went backwards (meter reset) yields 0, never a negative value.
func TodayUsage(currentKWh, midnightKWh float64) float64 {
	return math.Max(0, Round(currentKWh-midnightKWh, 2))
}

// Cost converts kWh into whole currency units, rounding half away from
// zero. Negative kWh costs nothing.
func Cost(kwh float64, rate int64) int64 {
	if kwh <= 0 || rate <= 0 || math.IsNaN(kwh) || math.IsInf(kwh, 0) {
		return 0
	}
	return decimal.NewFromFloat(kwh).Mul(decimal.NewFromInt(rate)).Round(0).IntPart()
}

// Calculator applies a fixed tariff.
type Calculator struct {
	Rate int64
}

// NewCalculator returns a Calculator, falling back to DefaultRate for rate <= 0.
func NewCalculator(rate int64) Calculator {
	if rate <= 0 {
		rate = DefaultRate
	}
	return Calculator{Rate: rate}
}

// Cost returns the cost of kwh at the calculator's rate.
func (c Calculator) Cost(kwh float64) int64 {
	return Cost(kwh, c.Rate)
}

// IsStale reports whether lastUpdate is at least StalenessThreshold before now.
// A zero lastUpdate is always stale.
func IsStale(lastUpdate, now time.Time) bool {
	if lastUpdate.IsZero() {
		return true
	}
	return now.Sub(lastUpdate) >= StalenessThreshold
}

// StatusAt classifies a panel whose last update was lastUpdate.
func StatusAt(lastUpdate, now time.Time) Status {
	if IsStale(lastUpdate, now) {
		return Offline
	}
	return Online
}

// Midnight returns the start of now's calendar day in loc.
func Midnight(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// Round rounds v half away from zero to the given number of decimal places.
// Rounding is done on the shortest decimal form of v, so 1.005 rounds to
// 1.01.
func Round(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(int32(places)).InexactFloat64()
}

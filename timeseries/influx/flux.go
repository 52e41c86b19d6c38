package influx

import (
	"fmt"
	"strings"
	"time"

	"github.com/caleheinzz25/realtime-energy-monitoring/timeseries"
)

// Measurement and field keys of the energy_data schema.
const (
	Measurement = "energy_data"
	TagPanelID  = "panelId"

	FieldEnergyKWh        = "energyKWh"
	FieldPowerKW          = "powerKW"
	FieldPowerKVA         = "powerKVA"
	FieldPowerFactor      = "powerFactor"
	FieldVoltageUnbalance = "voltageUnbalance"
	FieldCurrentUnbalance = "currentUnbalance"
)

var (
	voltageFields = [4]string{"voltage_r", "voltage_s", "voltage_t", "voltage_n"}
	currentFields = [4]string{"current_r", "current_s", "current_t", "current_n"}
)

var fluxEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "${", `\${`, "\n", `\n`, "\r", `\r`, "\t", `\t`)

// quote renders s as a Flux string literal.
func quote(s string) string {
	return `"` + fluxEscaper.Replace(s) + `"`
}

func fluxTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// fluxDuration renders d in seconds, or nanoseconds when d has a fraction.
func fluxDuration(d time.Duration) string {
	if d%time.Second != 0 {
		return fmt.Sprintf("%dns", int64(d))
	}
	return fmt.Sprintf("%ds", int64(d/time.Second))
}

func source(bucket string) string {
	return fmt.Sprintf("from(bucket: %s)", quote(bucket))
}

func panelFilter(panelID string) string {
	return fmt.Sprintf(`|> filter(fn: (r) => r._measurement == %s and r.%s == %s)`,
		quote(Measurement), TagPanelID, quote(panelID))
}

const pivot = `|> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")`

func latestQuery(bucket, panelID string, lookback time.Duration) string {
	return strings.Join([]string{
		source(bucket),
		fmt.Sprintf("|> range(start: -%s)", fluxDuration(lookback)),
		panelFilter(panelID),
		"|> last()",
		pivot,
	}, "\n  ")
}

// edgeQuery selects the first or last energy sample in [start, end]. Flux
// range stops are exclusive, so the stop is pushed one nanosecond past end.
func edgeQuery(bucket, panelID string, start, end time.Time, selector string) string {
	return strings.Join([]string{
		source(bucket),
		fmt.Sprintf("|> range(start: %s, stop: %s)", fluxTime(start), fluxTime(end.Add(time.Nanosecond))),
		panelFilter(panelID),
		fmt.Sprintf(`|> filter(fn: (r) => r._field == %s)`, quote(FieldEnergyKWh)),
		fmt.Sprintf("|> %s()", selector),
	}, "\n  ")
}

// aggregateQuery windows [start, stop) with windows anchored at start.
func aggregateQuery(bucket, panelID string, start, stop time.Time, width time.Duration) string {
	return strings.Join([]string{
		source(bucket),
		fmt.Sprintf("|> range(start: %s, stop: %s)", fluxTime(start), fluxTime(stop)),
		panelFilter(panelID),
		fmt.Sprintf(`|> filter(fn: (r) => r._field == %s or r._field == %s)`, quote(FieldEnergyKWh), quote(FieldPowerKW)),
		fmt.Sprintf("|> aggregateWindow(every: %s, offset: %s, fn: mean, createEmpty: false)",
			fluxDuration(width), fluxDuration(timeseries.WindowOffset(start, width))),
		pivot,
		`|> sort(columns: ["_time"])`,
	}, "\n  ")
}

// monthlyQuery yields the first and last energy sample per panel as two
// named results.
func monthlyQuery(bucket string, start, end time.Time) string {
	data := strings.Join([]string{
		"data = " + source(bucket),
		fmt.Sprintf("|> range(start: %s, stop: %s)", fluxTime(start), fluxTime(end.Add(time.Second))),
		fmt.Sprintf(`|> filter(fn: (r) => r._measurement == %s and r._field == %s)`, quote(Measurement), quote(FieldEnergyKWh)),
		fmt.Sprintf(`|> group(columns: [%s])`, quote(TagPanelID)),
	}, "\n  ")
	return data + "\n\n" +
		`data |> first() |> yield(name: "first")` + "\n" +
		`data |> last() |> yield(name: "last")`
}

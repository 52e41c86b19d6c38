package influx

import (
	"strconv"

	"github.com/influxdata/influxdb-client-go/v2/api/query"

	"github.com/caleheinzz25/realtime-energy-monitoring/reading"
)

type recordView struct {
	*query.FluxRecord
}

// reading rebuilds a Reading from a pivoted energy_data row.
func (rec recordView) reading(panelID string) reading.Reading {
	r := reading.Reading{
		PanelID:          panelID,
		PowerKW:          floatValue(rec.ValueByKey(FieldPowerKW)),
		PowerKVA:         floatValue(rec.ValueByKey(FieldPowerKVA)),
		EnergyKWh:        floatValue(rec.ValueByKey(FieldEnergyKWh)),
		PowerFactor:      floatValue(rec.ValueByKey(FieldPowerFactor)),
		VoltageUnbalance: floatValue(rec.ValueByKey(FieldVoltageUnbalance)),
		CurrentUnbalance: floatValue(rec.ValueByKey(FieldCurrentUnbalance)),
		Timestamp:        rec.Time(),
	}
	for i := range voltageFields {
		r.Voltage[i] = floatValue(rec.ValueByKey(voltageFields[i]))
		r.Current[i] = floatValue(rec.ValueByKey(currentFields[i]))
	}
	return r
}

// floatValue reads a Flux column value, treating anything non-numeric as 0.
func floatValue(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

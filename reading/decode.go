package reading

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/caleheinzz25/realtime-energy-monitoring/errors"
)

// StatusOK is the only envelope status accepted for ingestion.
const StatusOK = "OK"

// Wire timestamp layouts, tried in order. The first is the meter's native
// format and carries no zone, so it is read in the decoder's location.
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type payload struct {
	V      json.RawMessage `json:"v"`
	I      json.RawMessage `json:"i"`
	KW     json.RawMessage `json:"kw"`
	KVA    json.RawMessage `json:"kVA"`
	KWh    json.RawMessage `json:"kWh"`
	PF     json.RawMessage `json:"pf"`
	VUnbal json.RawMessage `json:"vunbal"`
	IUnbal json.RawMessage `json:"iunbal"`
	Time   json.RawMessage `json:"time"`
}

// Decoder turns raw envelopes into Readings.
type Decoder struct {
	location *time.Location
	now      func() time.Time
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithLocation sets the zone used for timestamps without an offset.
func WithLocation(loc *time.Location) DecoderOption {
	return func(d *Decoder) {
		if loc != nil {
			d.location = loc
		}
	}
}

// WithClock overrides the ingestion clock used for missing timestamps.
func WithClock(now func() time.Time) DecoderOption {
	return func(d *Decoder) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDecoder creates a decoder. Zone-less timestamps default to time.Local.
func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{location: time.Local, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var defaultDecoder = NewDecoder()

// Decode decodes raw with a decoder using the local zone and wall clock.
func Decode(panelID string, raw []byte) (Reading, error) {
	return defaultDecoder.Decode(panelID, raw)
}

// Decode validates the envelope and returns a fully populated Reading.
// Rejections wrap errors.ErrDecodeFailure and are classified invalid.
func (d *Decoder) Decode(panelID string, raw []byte) (Reading, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Reading{}, decodeFailure(fmt.Errorf("%w: %v", errors.ErrDecodeFailure, err), "parse envelope")
	}
	if env.Status != StatusOK {
		return Reading{}, decodeFailure(fmt.Errorf("%w: status %q", errors.ErrDecodeFailure, env.Status), "check status")
	}
	if isNull(env.Data) {
		return Reading{}, decodeFailure(fmt.Errorf("%w: missing data", errors.ErrDecodeFailure), "check data")
	}

	var p payload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return Reading{}, decodeFailure(fmt.Errorf("%w: %v", errors.ErrDecodeFailure, err), "parse data")
	}

	return Reading{
		PanelID:          panelID,
		Voltage:          phases(p.V),
		Current:          phases(p.I),
		PowerKW:          coerce(p.KW),
		PowerKVA:         coerce(p.KVA),
		EnergyKWh:        coerce(p.KWh),
		PowerFactor:      number(p.PF),
		VoltageUnbalance: number(p.VUnbal),
		CurrentUnbalance: number(p.IUnbal),
		Timestamp:        d.timestamp(p.Time),
	}, nil
}

func decodeFailure(err error, action string) error {
	return errors.WrapInvalid(err, "Decoder", "Decode", action)
}

func (d *Decoder) timestamp(raw json.RawMessage) time.Time {
	var s string
	if isNull(raw) || json.Unmarshal(raw, &s) != nil {
		return d.now()
	}
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(timeLayouts[0], s, d.location); err == nil {
		return t
	}
	for _, layout := range timeLayouts[1:] {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return d.now()
}

// phases accepts exactly four numbers; any other shape yields zeros.
func phases(raw json.RawMessage) [4]float64 {
	var out [4]float64
	if isNull(raw) {
		return out
	}
	var values []*float64
	if err := json.Unmarshal(raw, &values); err != nil || len(values) != 4 {
		return out
	}
	for i, v := range values {
		if v == nil {
			return [4]float64{}
		}
		out[i] = finite(*v)
	}
	return out
}

// coerce accepts a JSON number or a string with a leading numeric prefix
// ("12.5kW" reads as 12.5). Anything else is 0.
func coerce(raw json.RawMessage) float64 {
	if isNull(raw) {
		return 0
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return finite(parseFloatPrefix(s))
	}
	return number(raw)
}

// number accepts only a JSON number.
func number(raw json.RawMessage) float64 {
	if isNull(raw) {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0
	}
	return finite(f)
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// parseFloatPrefix parses the longest decimal literal at the start of s,
// after leading whitespace. It returns 0 when there is none.
func parseFloatPrefix(s string) float64 {
	s = strings.TrimLeft(s, " \t\n\r")
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := 0
	for end < len(s) && isDigit(s[end]) {
		end++
		digits++
	}
	if end < len(s) && s[end] == '.' {
		end++
		for end < len(s) && isDigit(s[end]) {
			end++
			digits++
		}
	}
	if digits == 0 {
		return 0
	}
	if end < len(s) && (s[end] == 'e' || s[end] == 'E') {
		exp := end + 1
		if exp < len(s) && (s[exp] == '+' || s[exp] == '-') {
			exp++
		}
		start := exp
		for exp < len(s) && isDigit(s[exp]) {
			exp++
		}
		if exp > start {
			end = exp
		}
	}
	f, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0
	}
	return f
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

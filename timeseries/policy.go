package timeseries

import (
	"fmt"
	"sort"
	"time"

	"github.com/caleheinzz25/realtime-energy-monitoring/errors"
)

const day = 24 * time.Hour

// Range is a named history window and the bucket width used to chart it.
type Range struct {
	Token    string
	Lookback time.Duration
	Width    time.Duration
}

// MaxBuckets is the upper bound on buckets Aggregate can return for r:
// lookback/width rounded up.
func (r Range) MaxBuckets() int {
	n := int(r.Lookback / r.Width)
	if r.Lookback%r.Width != 0 {
		n++
	}
	return n
}

var rangeTable = map[string]Range{
	"1h":   {Token: "1h", Lookback: time.Hour, Width: time.Hour},
	"6h":   {Token: "6h", Lookback: 6 * time.Hour, Width: time.Hour},
	"12h":  {Token: "12h", Lookback: 12 * time.Hour, Width: time.Hour},
	"24h":  {Token: "24h", Lookback: 24 * time.Hour, Width: time.Hour},
	"7d":   {Token: "7d", Lookback: 7 * day, Width: 6 * time.Hour},
	"30d":  {Token: "30d", Lookback: 30 * day, Width: day},
	"1y":   {Token: "1y", Lookback: 365 * day, Width: 30 * day},
	"365d": {Token: "365d", Lookback: 365 * day, Width: 30 * day},
}

// ParseRange maps a range token onto its lookback and bucket width.
func ParseRange(token string) (Range, error) {
	r, ok := rangeTable[token]
	if !ok {
		return Range{}, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrInvalidRange, token),
			"timeseries", "ParseRange", "look up range token")
	}
	return r, nil
}

// RangeTokens lists the accepted range tokens.
func RangeTokens() []string {
	tokens := make([]string, 0, len(rangeTable))
	for token := range rangeTable {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}

// MonthBounds returns the first instant and the last second of a calendar
// month in loc. Both ends are inclusive.
func MonthBounds(year, month int, loc *time.Location) (time.Time, time.Time, error) {
	if month < 1 || month > 12 {
		return time.Time{}, time.Time{}, errors.WrapInvalid(
			fmt.Errorf("%w: month %d", errors.ErrInvalidRange, month),
			"timeseries", "MonthBounds", "validate month")
	}
	if loc == nil {
		loc = time.Local
	}
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc)
	end := time.Date(year, time.Month(month)+1, 0, 23, 59, 59, 0, loc)
	return start, end, nil
}

// WindowStart aligns t down to a multiple of width since the Unix epoch,
// the alignment Flux uses for aggregateWindow.
func WindowStart(t time.Time, width time.Duration) time.Time {
	ns := t.UnixNano()
	w := int64(width)
	start := ns - ns%w
	if ns%w < 0 {
		start -= w
	}
	return time.Unix(0, start).In(t.Location())
}

// WindowOffset is how far windows laid end to end from anchor are shifted
// off the epoch grid. It is the offset Flux aggregateWindow takes.
func WindowOffset(anchor time.Time, width time.Duration) time.Duration {
	return anchor.Sub(WindowStart(anchor, width))
}

// AnchoredWindowStart returns the start of the window holding t when windows
// of width are laid end to end from anchor. Aggregation anchors at
// now-lookback, so the first window opens exactly at the lookback and the
// result has at most MaxBuckets windows.
func AnchoredWindowStart(anchor, t time.Time, width time.Duration) time.Time {
	d := t.Sub(anchor)
	n := d / width
	if d < 0 && d%width != 0 {
		n--
	}
	return anchor.Add(n * width)
}

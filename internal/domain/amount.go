package domain

import (
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// weiScale is the fixed-point scale of every subgraph amount (18 decimals).
var weiScale = decimal.New(1, 18)

// FromWei converts an 18-decimal fixed-point integer string into monetary
// units. Malformed, missing, or non-finite inputs return 0 rather than an
// error: indexer payloads occasionally carry garbage in amount fields and a
// single bad value must never abort a refresh cycle.
func FromWei(s string) float64 {
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	f, _ := d.Div(weiScale).Float64()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// ParseTimestamp parses a decimal seconds-since-epoch string. Returns 0 for
// anything unparseable.
func ParseTimestamp(s string) int64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Some indexers emit fractional timestamps; take the integer part.
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return int64(f)
	}
	return n
}

// ParsePrice parses a marginal price string and clamps it to [0,1]. The
// second return is false when the input was not a finite number.
func ParsePrice(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return Clamp01(f), true
}

// Clamp01 clamps v into [0,1].
func Clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}

// Round rounds v to the given number of decimal places, mapping non-finite
// values to 0 so JSON marshaling never sees NaN/Inf.
func Round(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	factor := math.Pow(10, float64(places))
	return math.Round(v*factor) / factor
}

// Package roundfmt is the single place that turns internal float64 math into
// the 3-fractional-digit, banker's-rounded decimals this repo promises at
// every output boundary. Nothing outside this package should call
// math.Round or format a float for a Suggestion, Metrics, or summary score.
package roundfmt

import "math"

// Digits is the fixed number of fractional digits every outbound decimal
// carries, per spec.md section 6 "Determinism rules governing external outputs".
const Digits = 3

const scale = 1000.0 // 10^Digits

// Round3 rounds v to 3 fractional digits using round-half-to-even (banker's
// rounding), so that repeated runs over the same input never drift based on
// platform-specific float formatting.
func Round3(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	scaled := v * scale
	floor := math.Floor(scaled)
	diff := scaled - floor
	var rounded float64
	switch {
	case diff < 0.5:
		rounded = floor
	case diff > 0.5:
		rounded = floor + 1
	default:
		// Exactly halfway: round to even.
		if math.Mod(floor, 2) == 0 {
			rounded = floor
		} else {
			rounded = floor + 1
		}
	}
	return rounded / scale
}

// Rat1000 represents a rational with a fixed denominator of 1000, as used for
// Suggestion.confidence, Suggestion.score, and related fields in the data
// model (spec.md section 3). Storing the scaled integer avoids accumulating
// float error across repeated merges (spec.md section 4.8 step 3).
type Rat1000 int64

// NewRat1000 builds a Rat1000 from a float64 by rounding to the nearest
// thousandth.
func NewRat1000(v float64) Rat1000 {
	return Rat1000(math.Round(Round3(v) * scale))
}

// Float returns the decimal value, already bounded to 3 fractional digits.
func (r Rat1000) Float() float64 {
	return float64(r) / scale
}

// Add returns the sum of two Rat1000 values, exact in the fixed-point domain.
func (r Rat1000) Add(o Rat1000) Rat1000 {
	return r + o
}

// Clamp01 clamps v into [0, 1], used for summary scores (spec.md section 6).
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ClampPct clamps v into [0, 100], used for est_reduction_pct.
func ClampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

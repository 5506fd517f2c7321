// Package chain derives per-strike analytics, chain statistics and the
// backend analysis payload from a scraped option chain.
//
// Every function here is pure: the same chain (and the same injected "now")
// always yields identical output. Numerical edge cases fail soft and return
// sentinel values instead of errors so one noisy row never blocks the rest
// of the chain.
package chain

import "math"

// Abramowitz & Stegun 26.2.17 coefficients.
const (
	cdfP  = 0.2316419
	cdfB1 = 0.319381530
	cdfB2 = -0.356563782
	cdfB3 = 1.781477937
	cdfB4 = -1.821255978
	cdfB5 = 1.330274429
	cdfC  = 0.39894228 // 1/sqrt(2*pi)
)

var nan = math.NaN()

// CumulativeNormal approximates the standard normal CDF.
// The approximation is evaluated on |x| and reflected, so
// CumulativeNormal(-x) == 1 - CumulativeNormal(x) for every finite x.
func CumulativeNormal(x float64) float64 {
	if math.IsNaN(x) {
		return 0.5
	}
	if math.IsInf(x, 1) {
		return 1
	}
	if math.IsInf(x, -1) {
		return 0
	}

	absX := math.Abs(x)
	t := 1.0 / (1.0 + cdfP*absX)
	poly := t * (cdfB1 + t*(cdfB2+t*(cdfB3+t*(cdfB4+t*cdfB5))))
	y := 1.0 - cdfC*math.Exp(-absX*absX/2.0)*poly

	y = clamp(y, 0, 1)
	if x >= 0 {
		return y
	}
	return 1.0 - y
}

// finite reports whether v is neither NaN nor infinite.
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// safeDiv returns a/b, or fallback when b is zero or the result is not finite.
func safeDiv(a, b, fallback float64) float64 {
	if b == 0 {
		return fallback
	}
	r := a / b
	if !finite(r) {
		return fallback
	}
	return r
}

// safeLog returns ln(x) and false when x is not a positive finite number.
func safeLog(x float64) (float64, bool) {
	if !finite(x) || x <= 0 {
		return 0, false
	}
	return math.Log(x), true
}

// safeSqrt returns sqrt(x) and false when x is negative or not finite.
func safeSqrt(x float64) (float64, bool) {
	if !finite(x) || x < 0 {
		return 0, false
	}
	return math.Sqrt(x), true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

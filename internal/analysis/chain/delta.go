package chain

import "option-analyzer/internal/models"

const (
	// RiskFreeRate is the fixed annual rate used in d1.
	RiskFreeRate = 0.04
	// DefaultIV is used when neither the contract nor its strike has an IV.
	DefaultIV = 30.0
	// DaysPerYear converts DTE to a year fraction.
	DaysPerYear = 365.0
)

// EstimateDelta approximates a contract's delta from the vendor IV.
//
// It never re-derives IV. Degenerate inputs (dte <= 0, iv <= 0, spot <= 0,
// non-finite spot or iv) and any numerical failure return the intrinsic
// fallback: 1/0 for calls, -1/0 for puts. The result is always finite,
// in [0, 1] for calls and [-1, 0] for puts.
func EstimateDelta(strike, spot float64, dte int, ivPct float64, typ models.ContractType) float64 {
	if dte <= 0 || ivPct <= 0 || spot <= 0 || !finite(ivPct) || !finite(spot) {
		return fallbackDelta(strike, spot, typ)
	}

	t := float64(dte) / DaysPerYear
	sigma := ivPct / 100

	logMoneyness, ok := safeLog(safeDiv(spot, strike, -1))
	if !ok {
		return fallbackDelta(strike, spot, typ)
	}
	sqrtT, ok := safeSqrt(t)
	if !ok {
		return fallbackDelta(strike, spot, typ)
	}

	d1 := safeDiv(logMoneyness+(RiskFreeRate+sigma*sigma/2)*t, sigma*sqrtT, nan)
	if !finite(d1) {
		return fallbackDelta(strike, spot, typ)
	}

	nd1 := CumulativeNormal(d1)
	var delta float64
	if typ == models.Put {
		delta = nd1 - 1
	} else {
		delta = nd1
	}
	if !finite(delta) {
		return fallbackDelta(strike, spot, typ)
	}
	return delta
}

// fallbackDelta is the intrinsic delta used when the model cannot run.
func fallbackDelta(strike, spot float64, typ models.ContractType) float64 {
	if typ == models.Put {
		if spot <= strike {
			return -1
		}
		return 0
	}
	if spot >= strike {
		return 1
	}
	return 0
}

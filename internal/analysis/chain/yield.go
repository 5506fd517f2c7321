package chain

// AnnualizedReturn scales premium/collateral to a 365-day year, in percent.
// Zero collateral or a non-positive DTE yields 0.
//
// The aggregator passes the strike as collateral (cash-secured put basis),
// not the underlying spot.
func AnnualizedReturn(premium, collateral float64, dte int) float64 {
	if collateral <= 0 || dte <= 0 {
		return 0
	}
	r := (premium / collateral) * (DaysPerYear / float64(dte)) * 100
	if !finite(r) {
		return 0
	}
	return r
}

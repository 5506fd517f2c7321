package chain

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"option-analyzer/internal/models"
)

// TopN bounds each ranked list in the analysis payload.
const TopN = 10

// BuildPayload reduces the chain to the bounded summary sent to the backend.
// Rankings are stable: ties keep input order.
func BuildPayload(chain *models.OptionChain, now time.Time) models.AnalysisPayload {
	if chain == nil {
		chain = &models.OptionChain{}
	}
	stats := ComputeStatistics(chain, now)

	byVolume := rankContracts(chain.Strikes, func(a, b models.OptionContract) bool {
		return a.Volume > b.Volume
	})
	byOI := rankContracts(chain.Strikes, func(a, b models.OptionContract) bool {
		return a.OpenInterest > b.OpenInterest
	})

	activity := make([]models.ActivityEntry, 0, len(byVolume))
	for _, c := range byVolume {
		activity = append(activity, models.ActivityEntry{
			Strike:       orZero(c.Strike),
			Volume:       c.Volume,
			OpenInterest: c.OpenInterest,
			IV:           orZero(c.ImpliedVolatility),
			Type:         c.Type,
			ITM:          c.InTheMoney,
		})
	}
	structure := make([]models.OpenInterestEntry, 0, len(byOI))
	for _, c := range byOI {
		structure = append(structure, models.OpenInterestEntry{
			Strike:       orZero(c.Strike),
			OpenInterest: c.OpenInterest,
			IV:           orZero(c.ImpliedVolatility),
			Type:         c.Type,
			ITM:          c.InTheMoney,
		})
	}

	return models.AnalysisPayload{
		Symbol:         chain.Symbol,
		SpotPrice:      orZero(chain.Price),
		ExpirationDate: chain.ExpirationDate,
		DTE:            stats.DTE,
		Summary: models.PayloadSummary{
			TotalVolume:  stats.TotalVolume,
			PutCallRatio: FormatRatio(stats.PCR),
			CallVolume:   stats.CallVolume,
			PutVolume:    stats.PutVolume,
		},
		TopActivity:           activity,
		OpenInterestStructure: structure,
	}
}

// FormatForAnalysis serializes BuildPayload as indented JSON.
func FormatForAnalysis(chain *models.OptionChain, now time.Time) (string, error) {
	data, err := json.MarshalIndent(BuildPayload(chain, now), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding analysis payload: %w", err)
	}
	return string(data), nil
}

// FormatRatio renders a ratio with exactly two decimals, rounding the exact
// binary value half up: 201.0/200 is 1.0049999... and renders "1.00".
func FormatRatio(v float64) string {
	return decimal.NewFromFloatWithExponent(orZero(v), -2).StringFixed(2)
}

// orZero maps NaN and infinities to 0 so the payload always encodes.
func orZero(v float64) float64 {
	if !finite(v) {
		return 0
	}
	return v
}

// rankContracts returns up to TopN contracts ordered by less, copying the
// input so the caller's slice is never reordered.
func rankContracts(contracts []models.OptionContract, less func(a, b models.OptionContract) bool) []models.OptionContract {
	ranked := make([]models.OptionContract, len(contracts))
	copy(ranked, contracts)
	sort.SliceStable(ranked, func(i, j int) bool {
		return less(ranked[i], ranked[j])
	})
	if len(ranked) > TopN {
		ranked = ranked[:TopN]
	}
	return ranked
}

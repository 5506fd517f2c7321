package chain

import (
	"time"

	"option-analyzer/internal/models"
)

// ComputeStatistics sums volume and OI by side in a single pass.
// PCR is put volume over call volume, 0 when there is no call volume.
func ComputeStatistics(chain *models.OptionChain, now time.Time) models.ChainStatistics {
	var stats models.ChainStatistics
	if chain == nil {
		return stats
	}

	for _, c := range chain.Strikes {
		stats.TotalVolume += c.Volume
		stats.TotalOI += c.OpenInterest
		switch c.Type {
		case models.Call:
			stats.CallVolume += c.Volume
		case models.Put:
			stats.PutVolume += c.Volume
		}
	}

	if stats.CallVolume > 0 {
		stats.PCR = float64(stats.PutVolume) / float64(stats.CallVolume)
	}
	stats.DTE = DaysToExpiration(chain.ExpirationDate, now)
	return stats
}

package chain

import (
	"math"
	"sort"
	"time"

	"option-analyzer/internal/models"
)

// strikeBucket accumulates the rows that share a strike.
type strikeBucket struct {
	agg           models.StrikeAggregate
	change        float64
	percentChange float64
	count         int
}

// AggregateByStrike merges call and put rows sharing a strike into one
// record per strike, sorted ascending by strike.
//
// Grouping uses exact float equality on the parsed strike. Per bucket:
// volume and OI are summed, ITM is OR-ed, price is the running max of
// LastPrice over both sides, change fields are averaged over the row count,
// and yield is recomputed from the current max price on every row.
//
// IV is a repeated two-point average: each nonzero IV is averaged with the
// bucket's current value. With three or more nonzero IVs this weights later
// rows more heavily than a true mean. That is the documented behaviour.
//
// Each row's delta uses its own IV, else the bucket IV, else DefaultIV, and
// overwrites the previous delta for the same side.
func AggregateByStrike(chain *models.OptionChain, now time.Time) []models.StrikeAggregate {
	if chain == nil || len(chain.Strikes) == 0 {
		return []models.StrikeAggregate{}
	}

	dte := DaysToExpiration(chain.ExpirationDate, now)
	index := make(map[float64]int, len(chain.Strikes))
	buckets := make([]*strikeBucket, 0, len(chain.Strikes))

	for _, c := range chain.Strikes {
		i, ok := index[c.Strike]
		if !ok {
			i = len(buckets)
			index[c.Strike] = i
			buckets = append(buckets, &strikeBucket{agg: models.StrikeAggregate{Strike: c.Strike}})
		}
		b := buckets[i]

		b.agg.Volume += c.Volume
		b.agg.OpenInterest += c.OpenInterest
		if c.InTheMoney {
			b.agg.InTheMoney = true
		}
		b.agg.Price = math.Max(b.agg.Price, c.LastPrice)

		if c.ImpliedVolatility > 0 {
			if b.agg.IV > 0 {
				b.agg.IV = (b.agg.IV + c.ImpliedVolatility) / 2
			} else {
				b.agg.IV = c.ImpliedVolatility
			}
		}

		b.change += c.Change
		b.percentChange += c.PercentChange
		b.count++

		iv := effectiveIV(c.ImpliedVolatility, b.agg.IV)
		if c.Type == models.Call {
			b.agg.HasCall = true
			b.agg.CallDelta = EstimateDelta(c.Strike, chain.Price, dte, iv, models.Call)
		} else {
			b.agg.HasPut = true
			b.agg.PutDelta = EstimateDelta(c.Strike, chain.Price, dte, iv, models.Put)
		}

		b.agg.Yield = AnnualizedReturn(b.agg.Price, c.Strike, dte)
	}

	out := make([]models.StrikeAggregate, len(buckets))
	for i, b := range buckets {
		agg := b.agg
		if b.count > 0 {
			agg.Change = b.change / float64(b.count)
			agg.PercentChange = b.percentChange / float64(b.count)
		}
		out[i] = agg
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Strike < out[j].Strike
	})
	return out
}

// effectiveIV picks the contract IV, then the strike's averaged IV, then DefaultIV.
func effectiveIV(contractIV, strikeIV float64) float64 {
	if contractIV != 0 && !math.IsNaN(contractIV) {
		return contractIV
	}
	if strikeIV != 0 && !math.IsNaN(strikeIV) {
		return strikeIV
	}
	return DefaultIV
}

package chain

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"option-analyzer/internal/models"
)

var testNow = time.Date(2024, 12, 1, 15, 30, 0, 0, time.UTC)

func contract(strike float64, typ models.ContractType, last float64, vol, oi int64, iv float64) models.OptionContract {
	return models.OptionContract{
		Strike:            strike,
		Type:              typ,
		LastPrice:         last,
		Volume:            vol,
		OpenInterest:      oi,
		ImpliedVolatility: iv,
	}
}

func testChain(strikes ...models.OptionContract) *models.OptionChain {
	return &models.OptionChain{
		Symbol:         "AAPL",
		Price:          100,
		ExpirationDate: "Dec 20, 2024",
		Strikes:        strikes,
		Timestamp:      testNow.UnixMilli(),
	}
}

// contractGen generates rows on a small strike grid so buckets collide.
func contractGen() gopter.Gen {
	return gen.Struct(reflect.TypeOf(models.OptionContract{}), map[string]gopter.Gen{
		"Strike":            gen.IntRange(1, 20).Map(func(i int) float64 { return float64(i) * 5 }),
		"LastPrice":         gen.Float64Range(0, 50),
		"Change":            gen.Float64Range(-5, 5),
		"PercentChange":     gen.Float64Range(-50, 50),
		"Volume":            gen.Int64Range(0, 100000),
		"OpenInterest":      gen.Int64Range(0, 100000),
		"ImpliedVolatility": gen.Float64Range(0, 200),
		"Type":              gen.OneConstOf(models.Call, models.Put),
		"InTheMoney":        gen.Bool(),
	})
}

// Property: aggregation is deterministic, sorted and conserves totals.
func TestProperty_AggregateByStrike(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("repeated aggregation is identical", prop.ForAll(
		func(rows []models.OptionContract) bool {
			c := testChain(rows...)
			return reflect.DeepEqual(AggregateByStrike(c, testNow), AggregateByStrike(c, testNow))
		},
		gen.SliceOf(contractGen()),
	))

	properties.Property("output is strictly ascending by strike", prop.ForAll(
		func(rows []models.OptionContract) bool {
			out := AggregateByStrike(testChain(rows...), testNow)
			for i := 1; i < len(out); i++ {
				if out[i-1].Strike >= out[i].Strike {
					return false
				}
			}
			return true
		},
		gen.SliceOf(contractGen()),
	))

	properties.Property("volume and OI totals are conserved", prop.ForAll(
		func(rows []models.OptionContract) bool {
			c := testChain(rows...)
			stats := ComputeStatistics(c, testNow)
			var vol, oi int64
			for _, a := range AggregateByStrike(c, testNow) {
				vol += a.Volume
				oi += a.OpenInterest
			}
			return vol == stats.TotalVolume && oi == stats.TotalOI
		},
		gen.SliceOf(contractGen()),
	))

	properties.Property("deltas are bounded and finite", prop.ForAll(
		func(rows []models.OptionContract) bool {
			for _, a := range AggregateByStrike(testChain(rows...), testNow) {
				if !finite(a.CallDelta) || a.CallDelta < 0 || a.CallDelta > 1 {
					return false
				}
				if !finite(a.PutDelta) || a.PutDelta < -1 || a.PutDelta > 0 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(contractGen()),
	))

	properties.TestingRun(t)
}

func TestAggregateByStrikeOrdering(t *testing.T) {
	c := testChain(
		contract(110, models.Call, 1, 10, 10, 30),
		contract(90, models.Call, 12, 10, 10, 30),
		contract(100, models.Put, 4, 10, 10, 30),
	)
	out := AggregateByStrike(c, testNow)

	var got []float64
	for _, a := range out {
		got = append(got, a.Strike)
	}
	if want := []float64{90, 100, 110}; !reflect.DeepEqual(got, want) {
		t.Fatalf("strikes = %v, want %v", got, want)
	}
}

func TestAggregateByStrikeMergesSides(t *testing.T) {
	call := contract(100, models.Call, 3.5, 120, 1000, 25)
	call.Change, call.PercentChange = 0.5, 10
	put := contract(100, models.Put, 4.25, 80, 500, 35)
	put.Change, put.PercentChange = -0.25, -4
	put.InTheMoney = true

	out := AggregateByStrike(testChain(call, put), testNow)
	if len(out) != 1 {
		t.Fatalf("got %d aggregates, want 1", len(out))
	}
	a := out[0]

	if !a.HasCall || !a.HasPut {
		t.Errorf("HasCall=%v HasPut=%v, want both true", a.HasCall, a.HasPut)
	}
	if a.Volume != 200 {
		t.Errorf("Volume = %d, want 200", a.Volume)
	}
	if a.OpenInterest != 1500 {
		t.Errorf("OpenInterest = %d, want 1500", a.OpenInterest)
	}
	if !a.InTheMoney {
		t.Error("InTheMoney = false, want true when any row is ITM")
	}
	if a.Price != 4.25 {
		t.Errorf("Price = %v, want max last price 4.25", a.Price)
	}
	if a.IV != 30 {
		t.Errorf("IV = %v, want 30", a.IV)
	}
	if math.Abs(a.Change-0.125) > 1e-12 || math.Abs(a.PercentChange-3) > 1e-12 {
		t.Errorf("Change=%v PercentChange=%v, want 0.125 and 3", a.Change, a.PercentChange)
	}
	if a.CallDelta <= 0 || a.CallDelta >= 1 {
		t.Errorf("CallDelta = %v, want in (0,1)", a.CallDelta)
	}
	if a.PutDelta >= 0 || a.PutDelta <= -1 {
		t.Errorf("PutDelta = %v, want in (-1,0)", a.PutDelta)
	}

	// 19 DTE, strike as collateral, final max premium.
	wantYield := AnnualizedReturn(4.25, 100, 19)
	if math.Abs(a.Yield-wantYield) > 1e-9 {
		t.Errorf("Yield = %v, want %v", a.Yield, wantYield)
	}
}

// The IV is averaged two points at a time, so three rows are not a true mean.
func TestAggregateByStrikeRunningIVApproximation(t *testing.T) {
	out := AggregateByStrike(testChain(
		contract(100, models.Call, 1, 1, 1, 10),
		contract(100, models.Put, 1, 1, 1, 20),
		contract(100, models.Call, 1, 1, 1, 40),
	), testNow)

	// ((10 + 20) / 2 + 40) / 2 = 27.5, not (10 + 20 + 40) / 3.
	if out[0].IV != 27.5 {
		t.Errorf("IV = %v, want 27.5", out[0].IV)
	}
}

func TestAggregateByStrikeEffectiveIV(t *testing.T) {
	// The put row has no IV and borrows the strike's averaged IV from the call.
	withBorrowed := AggregateByStrike(testChain(
		contract(105, models.Call, 1, 1, 1, 40),
		contract(105, models.Put, 1, 1, 1, 0),
	), testNow)[0]
	want := EstimateDelta(105, 100, 19, 40, models.Put)
	if withBorrowed.PutDelta != want {
		t.Errorf("PutDelta = %v, want %v (strike IV)", withBorrowed.PutDelta, want)
	}

	// No IV anywhere at the strike falls back to the default.
	withDefault := AggregateByStrike(testChain(
		contract(105, models.Put, 1, 1, 1, 0),
	), testNow)[0]
	want = EstimateDelta(105, 100, 19, DefaultIV, models.Put)
	if withDefault.PutDelta != want {
		t.Errorf("PutDelta = %v, want %v (default IV)", withDefault.PutDelta, want)
	}
	if withDefault.IV != 0 {
		t.Errorf("IV = %v, want 0 when no row reports IV", withDefault.IV)
	}
}

func TestAggregateByStrikeSameSideLastWriterWins(t *testing.T) {
	out := AggregateByStrike(testChain(
		contract(100, models.Call, 1, 1, 1, 10),
		contract(100, models.Call, 1, 1, 1, 90),
	), testNow)
	if len(out) != 1 {
		t.Fatalf("got %d aggregates, want 1", len(out))
	}
	// The second row sees its own IV (90), not the averaged 50.
	want := EstimateDelta(100, 100, 19, 90, models.Call)
	if out[0].CallDelta != want {
		t.Errorf("CallDelta = %v, want %v", out[0].CallDelta, want)
	}
}

func TestAggregateByStrikeEmpty(t *testing.T) {
	out := AggregateByStrike(testChain(), testNow)
	if out == nil || len(out) != 0 {
		t.Errorf("got %v, want empty non-nil slice", out)
	}
	if out := AggregateByStrike(nil, testNow); len(out) != 0 {
		t.Errorf("nil chain: got %v, want empty", out)
	}
}

func TestAggregateByStrikeExpiredChain(t *testing.T) {
	c := testChain(contract(90, models.Call, 11, 1, 1, 30), contract(110, models.Put, 9, 1, 1, 30))
	c.ExpirationDate = "Nov 1, 2024"

	out := AggregateByStrike(c, testNow)
	if out[0].CallDelta != 1 || out[1].PutDelta != -1 {
		t.Errorf("expired deltas = %v/%v, want intrinsic 1/-1", out[0].CallDelta, out[1].PutDelta)
	}
	if out[0].Yield != 0 || out[1].Yield != 0 {
		t.Error("expired chain should have zero yield")
	}
}

func TestAggregateDoesNotMutateInput(t *testing.T) {
	rows := []models.OptionContract{
		contract(110, models.Call, 1, 5, 1, 30),
		contract(90, models.Put, 2, 9, 1, 30),
	}
	c := testChain(rows...)
	before := append([]models.OptionContract(nil), c.Strikes...)

	AggregateByStrike(c, testNow)
	BuildPayload(c, testNow)

	if !reflect.DeepEqual(before, c.Strikes) {
		t.Error("input chain was modified")
	}
}

package chain

import (
	"fmt"
	"time"

	apperrors "option-analyzer/internal/errors"
	"option-analyzer/internal/models"
)

// Clock returns the current instant. Tests inject a fixed one.
type Clock func() time.Time

// FixedClock always returns t.
func FixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

// Engine binds the date-dependent analytics to a clock.
type Engine struct {
	clock Clock
}

// NewEngine creates an engine using the wall clock.
func NewEngine() *Engine {
	return NewEngineWithClock(time.Now)
}

// NewEngineWithClock creates an engine with an injected clock.
func NewEngineWithClock(clock Clock) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{clock: clock}
}

// Now returns the engine's current instant.
func (e *Engine) Now() time.Time {
	return e.clock()
}

// DaysToExpiration is DaysToExpiration at the engine's now.
func (e *Engine) DaysToExpiration(text string) int {
	return DaysToExpiration(text, e.clock())
}

// Aggregate is AggregateByStrike at the engine's now.
func (e *Engine) Aggregate(c *models.OptionChain) []models.StrikeAggregate {
	return AggregateByStrike(c, e.clock())
}

// Statistics is ComputeStatistics at the engine's now.
func (e *Engine) Statistics(c *models.OptionChain) models.ChainStatistics {
	return ComputeStatistics(c, e.clock())
}

// Payload is BuildPayload at the engine's now.
func (e *Engine) Payload(c *models.OptionChain) models.AnalysisPayload {
	return BuildPayload(c, e.clock())
}

// Pin builds the candidate for one side of strike. The strike must be in the
// chain and the chain must quote that side there.
func (e *Engine) Pin(c *models.OptionChain, strike float64, typ models.ContractType) (models.Candidate, error) {
	now := e.clock()
	for _, agg := range AggregateByStrike(c, now) {
		if agg.Strike != strike {
			continue
		}
		if (typ == models.Call && !agg.HasCall) || (typ == models.Put && !agg.HasPut) {
			return models.Candidate{}, fmt.Errorf("no %s quoted at strike %v: %w", typ, strike, apperrors.ErrInvalidContract)
		}
		return NewCandidate(c, agg, typ, now), nil
	}
	return models.Candidate{}, fmt.Errorf("strike %v: %w", strike, apperrors.ErrNotFound)
}

// FormatForAnalysis is FormatForAnalysis at the engine's now.
func (e *Engine) FormatForAnalysis(c *models.OptionChain) (string, error) {
	return FormatForAnalysis(c, e.clock())
}

// Report bundles everything derived from one snapshot.
type Report struct {
	Symbol     string                   `json:"symbol"`
	Expiration string                   `json:"expirationDate"`
	Spot       float64                  `json:"spotPrice"`
	Statistics models.ChainStatistics   `json:"statistics"`
	Strikes    []models.StrikeAggregate `json:"strikes"`
	Payload    models.AnalysisPayload   `json:"payload"`
}

// Analyze derives the full report from one clock reading so the aggregates,
// statistics and payload agree on DTE.
func (e *Engine) Analyze(c *models.OptionChain) Report {
	if c == nil {
		c = &models.OptionChain{}
	}
	now := e.clock()
	return Report{
		Symbol:     c.Symbol,
		Expiration: c.ExpirationDate,
		Spot:       orZero(c.Price),
		Statistics: ComputeStatistics(c, now),
		Strikes:    AggregateByStrike(c, now),
		Payload:    BuildPayload(c, now),
	}
}

package models

import "time"

// WatchlistItem is a saved chain snapshot with its optional analysis.
type WatchlistItem struct {
	ID             string          `json:"id"`
	Timestamp      time.Time       `json:"timestamp"`
	Symbol         string          `json:"symbol" validate:"required"`
	ExpirationDate string          `json:"expirationDate"`
	Price          float64         `json:"price" validate:"gte=0"`
	Valuation      *float64        `json:"valuation,omitempty"`
	Analysis       *OptionAnalysis `json:"analysis,omitempty"`
	Chain          *OptionChain    `json:"collectedData,omitempty"`
	URL            string          `json:"url,omitempty"`
}

// Candidate is a single pinned contract in the candidate pool.
type Candidate struct {
	ID              string       `json:"id"`
	Symbol          string       `json:"symbol" validate:"required"`
	ExpirationDate  string       `json:"expirationDate" validate:"required"`
	Strike          float64      `json:"strike" validate:"gt=0"`
	Type            ContractType `json:"type" validate:"oneof=call put"`
	Delta           float64      `json:"delta"`
	OptionPrice     float64      `json:"optionPrice"`
	UnderlyingPrice float64      `json:"underlyingPrice"`
	AnnualizedYield float64      `json:"annualizedYield"`
	URL             string       `json:"url,omitempty"`
	Timestamp       time.Time    `json:"timestamp"`
}

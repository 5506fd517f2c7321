package models

// ContractType is the side of an option contract.
type ContractType string

const (
	Call ContractType = "call"
	Put  ContractType = "put"
)

// Valid reports whether t is call or put.
func (t ContractType) Valid() bool {
	return t == Call || t == Put
}

// OptionContract is one row of the scraped option table.
// Rows are built once per scrape and never mutated by the analytics code.
type OptionContract struct {
	Strike            float64      `json:"strike" validate:"gt=0"`
	ContractName      string       `json:"contractName"`
	LastPrice         float64      `json:"lastPrice"`
	Bid               float64      `json:"bid"`
	Ask               float64      `json:"ask"`
	Change            float64      `json:"change"`
	PercentChange     float64      `json:"percentChange"`
	Volume            int64        `json:"volume" validate:"gte=0"`
	OpenInterest      int64        `json:"openInterest" validate:"gte=0"`
	ImpliedVolatility float64      `json:"impliedVolatility"` // percent, 35.2 means 35.2%
	Type              ContractType `json:"type" validate:"oneof=call put"`
	InTheMoney        bool         `json:"inTheMoney"`
}

// OptionChain is a snapshot of one underlying/expiration pair.
type OptionChain struct {
	Symbol         string           `json:"symbol" validate:"required"`
	Price          float64          `json:"price" validate:"gte=0"`
	ExpirationDate string           `json:"expirationDate"`
	Strikes        []OptionContract `json:"strikes" validate:"dive"`
	Valuation      *float64         `json:"valuation,omitempty"`
	Timestamp      int64            `json:"timestamp"`
}

// StrikeAggregate is the merged call/put view of a single strike.
type StrikeAggregate struct {
	Strike        float64 `json:"strike"`
	Volume        int64   `json:"volume"`
	OpenInterest  int64   `json:"oi"`
	Price         float64 `json:"price"` // max last price across rows, chart height
	IV            float64 `json:"iv"`
	InTheMoney    bool    `json:"inTheMoney"`
	HasCall       bool    `json:"hasCall"`
	HasPut        bool    `json:"hasPut"`
	CallDelta     float64 `json:"callDelta"`
	PutDelta      float64 `json:"putDelta"`
	Change        float64 `json:"change"`
	PercentChange float64 `json:"percentChange"`
	Yield         float64 `json:"yield"` // annualized, percent
}

// ChainStatistics holds chain-wide totals.
type ChainStatistics struct {
	TotalVolume int64   `json:"totalVolume"`
	TotalOI     int64   `json:"totalOI"`
	CallVolume  int64   `json:"callVolume"`
	PutVolume   int64   `json:"putVolume"`
	PCR         float64 `json:"pcr"`
	DTE         int     `json:"dte"`
}

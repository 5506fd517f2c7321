package models

// Sentiment is the backend's overall read of the chain.
type Sentiment string

const (
	Bullish Sentiment = "bullish"
	Bearish Sentiment = "bearish"
	Neutral Sentiment = "neutral"
)

// SupportResistance is the backend's support/resistance estimate.
type SupportResistance struct {
	Support    float64 `json:"support"`
	Resistance float64 `json:"resistance"`
	Reason     string  `json:"reason"`
}

// OptionAnalysis is the structured result returned by the generative-text backend.
type OptionAnalysis struct {
	Sentiment          Sentiment         `json:"sentiment"`
	Summary            string            `json:"summary"`
	KeyObservations    []string          `json:"keyObservations"`
	TradingSuggestions []string          `json:"tradingSuggestions"`
	SupportResistance  SupportResistance `json:"supportResistance"`
}

// AnalysisPayload is the bounded summary sent to the backend.
type AnalysisPayload struct {
	Symbol                string              `json:"symbol"`
	SpotPrice             float64             `json:"spotPrice"`
	ExpirationDate        string              `json:"expirationDate"`
	DTE                   int                 `json:"dte"`
	Summary               PayloadSummary      `json:"summary"`
	TopActivity           []ActivityEntry     `json:"topActivity"`
	OpenInterestStructure []OpenInterestEntry `json:"openInterestStructure"`
}

// PayloadSummary carries the chain totals in the payload.
type PayloadSummary struct {
	TotalVolume  int64  `json:"totalVolume"`
	PutCallRatio string `json:"putCallRatio"`
	CallVolume   int64  `json:"callVolume"`
	PutVolume    int64  `json:"putVolume"`
}

// ActivityEntry is a contract ranked by volume.
type ActivityEntry struct {
	Strike       float64      `json:"strike"`
	Volume       int64        `json:"volume"`
	OpenInterest int64        `json:"oi"`
	IV           float64      `json:"iv"`
	Type         ContractType `json:"type"`
	ITM          bool         `json:"itm"`
}

// OpenInterestEntry is a contract ranked by open interest.
type OpenInterestEntry struct {
	Strike       float64      `json:"strike"`
	OpenInterest int64        `json:"oi"`
	IV           float64      `json:"iv"`
	Type         ContractType `json:"type"`
	ITM          bool         `json:"itm"`
}

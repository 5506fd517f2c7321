package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"option-analyzer/internal/analysis/chain"
	apperrors "option-analyzer/internal/errors"
	"option-analyzer/internal/models"
)

// Column headers of the options table on the quote page.
const (
	ColContractName = "Contract Name"
	ColStrike       = "Strike"
	ColLastPrice    = "Last Price"
	ColBid          = "Bid"
	ColAsk          = "Ask"
	ColChange       = "Change"
	ColPctChange    = "% Change"
	ColVolume       = "Volume"
	ColOpenInterest = "Open Interest"
	ColIV           = "Implied Volatility"
)

// ScrapedRow is one table row as text keyed by column header. ITM is nil
// when the page gave no in-the-money marker.
type ScrapedRow struct {
	Cells map[string]string `json:"cells"`
	ITM   *bool             `json:"inTheMoney,omitempty"`
}

// ScrapedTable is the loosely typed output of the page scraper. Symbol may
// be left empty when URL is the quote page it was read from.
type ScrapedTable struct {
	Symbol         string       `json:"symbol"`
	URL            string       `json:"url"`
	Price          float64      `json:"price"`
	ExpirationDate string       `json:"expirationDate"`
	Rows           []ScrapedRow `json:"rows"`
	Timestamp      int64        `json:"timestamp"`
}

// DecodeScraped reads one scraped table document and converts it.
func DecodeScraped(r io.Reader) (*models.OptionChain, error) {
	var t ScrapedTable
	if err := json.NewDecoder(r).Decode(&t); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedChain, err)
	}
	return FromScrapedTable(t)
}

// ParseNumber parses a table cell such as "1,234.56", "+0.25" or "35.20%".
// Empty cells, "-" and anything unparseable become 0.
func ParseNumber(text string) float64 {
	text = strings.TrimSpace(text)
	if text == "" || text == "-" {
		return 0
	}
	r := strings.NewReplacer(",", "", "+", "", "%", "")
	v, err := strconv.ParseFloat(r.Replace(text), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// FromScrapedTable converts scraped text rows into a validated chain.
// Rows whose contract name cannot be decoded default to calls. Rows without
// an ITM marker are classified by moneyness against the table's spot price.
func FromScrapedTable(t ScrapedTable) (*models.OptionChain, error) {
	symbol := t.Symbol
	if symbol == "" {
		symbol = chain.ParseQuoteURL(t.URL).Symbol
	}

	c := &models.OptionChain{
		Symbol:         symbol,
		Price:          t.Price,
		ExpirationDate: t.ExpirationDate,
		Strikes:        make([]models.OptionContract, 0, len(t.Rows)),
		Timestamp:      t.Timestamp,
	}

	for _, row := range t.Rows {
		cell := func(col string) string { return row.Cells[col] }

		name := strings.TrimSpace(cell(ColContractName))
		typ := models.Call
		if parsed, ok := chain.ParseContractName(name); ok {
			typ = parsed.Type
		}
		strike := ParseNumber(cell(ColStrike))

		var itm bool
		if row.ITM != nil {
			itm = *row.ITM
		} else if typ == models.Call {
			itm = t.Price > strike
		} else {
			itm = t.Price < strike
		}

		c.Strikes = append(c.Strikes, models.OptionContract{
			Strike:            strike,
			ContractName:      name,
			LastPrice:         ParseNumber(cell(ColLastPrice)),
			Bid:               ParseNumber(cell(ColBid)),
			Ask:               ParseNumber(cell(ColAsk)),
			Change:            ParseNumber(cell(ColChange)),
			PercentChange:     ParseNumber(cell(ColPctChange)),
			Volume:            int64(ParseNumber(cell(ColVolume))),
			OpenInterest:      int64(ParseNumber(cell(ColOpenInterest))),
			ImpliedVolatility: ParseNumber(cell(ColIV)),
			Type:              typ,
			InTheMoney:        itm,
		})
	}

	Normalize(c)
	if err := Validate(c); err != nil {
		return nil, err
	}
	return c, nil
}

package chain

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"option-analyzer/internal/models"
)

// ContractName is a decoded OCC-style contract symbol.
type ContractName struct {
	Root       string
	Expiration time.Time
	Type       models.ContractType
	Strike     float64
}

// ROOT + YYMMDD + C|P + strike*1000 zero-padded to 8 digits.
var contractNameRe = regexp.MustCompile(`^([A-Za-z.]+)(\d{6})([CP])(\d{8})$`)

// ParseContractName decodes a symbol such as "AAPL241220C00150000".
func ParseContractName(name string) (ContractName, bool) {
	m := contractNameRe.FindStringSubmatch(strings.TrimSpace(name))
	if m == nil {
		return ContractName{}, false
	}

	exp, err := time.Parse("060102", m[2])
	if err != nil {
		return ContractName{}, false
	}
	milli, err := strconv.ParseInt(m[4], 10, 64)
	if err != nil {
		return ContractName{}, false
	}

	typ := models.Call
	if m[3] == "P" {
		typ = models.Put
	}
	return ContractName{
		Root:       strings.ToUpper(m[1]),
		Expiration: exp,
		Type:       typ,
		Strike:     float64(milli) / 1000,
	}, true
}

// QuoteURL holds what an options page URL tells us about the chain.
type QuoteURL struct {
	Symbol string
	Date   string
}

var quotePathRe = regexp.MustCompile(`/quote/([^/]+)/options`)

// ParseQuoteURL extracts the symbol from a /quote/<SYM>/options path and the
// optional date query parameter. Invalid URLs yield an empty result.
func ParseQuoteURL(raw string) QuoteURL {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return QuoteURL{}
	}
	var out QuoteURL
	if m := quotePathRe.FindStringSubmatch(u.Path); m != nil {
		if sym, err := url.PathUnescape(m[1]); err == nil {
			out.Symbol = strings.ToUpper(sym)
		}
	}
	out.Date = u.Query().Get("date")
	return out
}

// NewCandidate builds a candidate-pool entry for one side of a strike.
func NewCandidate(chain *models.OptionChain, agg models.StrikeAggregate, typ models.ContractType, now time.Time) models.Candidate {
	delta := agg.CallDelta
	if typ == models.Put {
		delta = agg.PutDelta
	}
	return models.Candidate{
		Symbol:          chain.Symbol,
		ExpirationDate:  chain.ExpirationDate,
		Strike:          agg.Strike,
		Type:            typ,
		Delta:           delta,
		OptionPrice:     agg.Price,
		UnderlyingPrice: chain.Price,
		AnnualizedYield: agg.Yield,
		Timestamp:       now,
	}
}

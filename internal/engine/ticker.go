package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultQuoteSuffix is the settlement currency stripped from linear symbols.
const DefaultQuoteSuffix = "USDT"

// Number holds a numeric field exactly as the feed sent it. The feed may
// encode prices as JSON strings or JSON numbers; both decode into Number.
type Number string

// UnmarshalJSON accepts "1.23", 1.23 and null.
func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*n = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = Number(s)
	default:
		*n = Number(data)
	}
	return nil
}

// Ticker is one symbol of a market snapshot.
type Ticker struct {
	Symbol      string `json:"symbol"`
	MarkPrice   Number `json:"markPrice"`
	IndexPrice  Number `json:"indexPrice"`
	FundingRate Number `json:"fundingRate"`
}

// MalformedTickerError marks a single snapshot item that could not be used.
// Detect reports these but never lets them abort a batch.
type MalformedTickerError struct {
	Symbol string
	Field  string
	Err    error
}

func (e *MalformedTickerError) Error() string {
	return fmt.Sprintf("ticker %s: field %s: %v", e.Symbol, e.Field, e.Err)
}

func (e *MalformedTickerError) Unwrap() error { return e.Err }

type parsedTicker struct {
	token   string
	quote   string
	mark    decimal.Decimal
	index   decimal.Decimal
	funding decimal.Decimal
}

// SplitSymbol derives the base token and quote from a linear symbol. A symbol
// without the suffix, or consisting only of it, is returned whole.
func SplitSymbol(symbol, suffix string) (token, quote string) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	suffix = strings.ToUpper(suffix)
	if suffix != "" && len(symbol) > len(suffix) && strings.HasSuffix(symbol, suffix) {
		return symbol[:len(symbol)-len(suffix)], suffix
	}
	return symbol, ""
}

func parseTicker(t Ticker, suffix string) (parsedTicker, error) {
	if strings.TrimSpace(t.Symbol) == "" {
		return parsedTicker{}, &MalformedTickerError{Symbol: t.Symbol, Field: "symbol", Err: errEmpty}
	}

	mark, err := parseField(t.Symbol, "markPrice", t.MarkPrice)
	if err != nil {
		return parsedTicker{}, err
	}
	index, err := parseField(t.Symbol, "indexPrice", t.IndexPrice)
	if err != nil {
		return parsedTicker{}, err
	}
	funding, err := parseField(t.Symbol, "fundingRate", t.FundingRate)
	if err != nil {
		return parsedTicker{}, err
	}

	token, quote := SplitSymbol(t.Symbol, suffix)
	return parsedTicker{token: token, quote: quote, mark: mark, index: index, funding: funding}, nil
}

func parseField(symbol, field string, raw Number) (decimal.Decimal, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return decimal.Decimal{}, &MalformedTickerError{Symbol: symbol, Field: field, Err: errEmpty}
	}
	value, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Decimal{}, &MalformedTickerError{Symbol: symbol, Field: field, Err: err}
	}
	return value, nil
}

package engine

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Allowlist selects which tokens appear in the raw price table.
type Allowlist struct {
	all    bool
	tokens map[string]struct{}
}

// NewAllowlist builds an allowlist; "*" or "all" selects every token.
func NewAllowlist(tokens []string) Allowlist {
	a := Allowlist{tokens: make(map[string]struct{}, len(tokens))}
	for _, token := range tokens {
		norm := strings.ToUpper(strings.TrimSpace(token))
		switch norm {
		case "":
			continue
		case "*", "ALL":
			a.all = true
		default:
			a.tokens[norm] = struct{}{}
		}
	}
	return a
}

// Allows reports whether token is displayed.
func (a Allowlist) Allows(token string) bool {
	if a.all {
		return true
	}
	_, ok := a.tokens[strings.ToUpper(token)]
	return ok
}

// Empty reports whether nothing would be displayed.
func (a Allowlist) Empty() bool {
	return !a.all && len(a.tokens) == 0
}

// PriceRow is one line of the raw price display.
type PriceRow struct {
	Token      string
	MarkPrice  decimal.Decimal
	IndexPrice decimal.Decimal
	Quote      string
}

// DisplayRows lists parseable tickers selected by the allowlist in snapshot
// order, independent of any threshold.
func DisplayRows(tickers []Ticker, allow Allowlist, quoteSuffix string) []PriceRow {
	rows := make([]PriceRow, 0)
	if allow.Empty() {
		return rows
	}
	for _, t := range tickers {
		p, err := parseTicker(t, quoteSuffix)
		if err != nil || !allow.Allows(p.token) {
			continue
		}
		rows = append(rows, PriceRow{
			Token:      p.token,
			MarkPrice:  p.mark,
			IndexPrice: p.index,
			Quote:      p.quote,
		})
	}
	return rows
}

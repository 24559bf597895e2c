// Package engine turns a ticker snapshot and a venue index into ranked basis
// arbitrage candidates, venue opportunities and alert-eligible entries. All
// functions here are pure; I/O lives with the callers.
package engine

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"
)

var (
	errEmpty    = errors.New("missing value")
	errZeroMark = errors.New("mark price is zero")

	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Options configure Detect.
type Options struct {
	// DeviationThreshold is the minimum abs(deviation) in percent, exclusive.
	DeviationThreshold decimal.Decimal
	// QuoteSuffix is stripped from symbols to obtain the base token.
	QuoteSuffix string
}

// Candidate is a token whose index/mark deviation exceeds the global threshold.
type Candidate struct {
	Token          string
	Quote          string
	DeviationPct   decimal.Decimal
	FundingRatePct decimal.Decimal
	IndexPrice     decimal.Decimal
	MarkPrice      decimal.Decimal
}

// Pair renders the TOKEN_QUOTE label shown to operators.
func (c Candidate) Pair() string {
	if c.Quote == "" {
		return c.Token
	}
	return c.Token + "_" + c.Quote
}

// Deviation returns (index/mark - 1) * 100. The caller guarantees mark != 0.
func Deviation(index, mark decimal.Decimal) decimal.Decimal {
	return index.Div(mark).Sub(one).Mul(hundred)
}

// Detect computes deviation and funding rate per ticker and keeps those with
// abs(deviation) strictly above the threshold, ordered by descending
// abs(deviation) with ties in snapshot order. Malformed tickers, including a
// zero mark price, are skipped and reported in the second return value.
func Detect(tickers []Ticker, opts Options) ([]Candidate, []error) {
	candidates := make([]Candidate, 0)
	var skipped []error

	for _, t := range tickers {
		p, err := parseTicker(t, opts.QuoteSuffix)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		if p.mark.IsZero() {
			skipped = append(skipped, &MalformedTickerError{Symbol: t.Symbol, Field: "markPrice", Err: errZeroMark})
			continue
		}

		deviation := Deviation(p.index, p.mark)
		if !deviation.Abs().GreaterThan(opts.DeviationThreshold) {
			continue
		}

		candidates = append(candidates, Candidate{
			Token:          p.token,
			Quote:          p.quote,
			DeviationPct:   deviation,
			FundingRatePct: p.funding.Mul(hundred),
			IndexPrice:     p.index,
			MarkPrice:      p.mark,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].DeviationPct.Abs().GreaterThan(candidates[j].DeviationPct.Abs())
	})
	return candidates, skipped
}

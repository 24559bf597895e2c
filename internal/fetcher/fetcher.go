// Package fetcher pulls the perpetual ticker snapshot the detector works on.
package fetcher

import (
	"context"

	"perp-basis-alerts/internal/engine"
)

// TickerFetcher retrieves one snapshot of linear perpetual tickers.
type TickerFetcher interface {
	FetchTickers(ctx context.Context) ([]engine.Ticker, error)
}

// Static serves a fixed snapshot. Useful for dry runs and tests.
type Static struct {
	Tickers []engine.Ticker
	Err     error
}

func (s Static) FetchTickers(context.Context) ([]engine.Ticker, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return append([]engine.Ticker(nil), s.Tickers...), nil
}

var _ TickerFetcher = Static{}

package engine

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perp-basis-alerts/internal/registry"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func opts(threshold string) Options {
	return Options{DeviationThreshold: dec(threshold), QuoteSuffix: DefaultQuoteSuffix}
}

func tickerOf(symbol, mark, index, funding string) Ticker {
	return Ticker{Symbol: symbol, MarkPrice: Number(mark), IndexPrice: Number(index), FundingRate: Number(funding)}
}

func TestDeviationMatchesFloatFormula(t *testing.T) {
	pairs := [][2]float64{
		{100, 101},
		{3, 7},
		{0.000123, 0.000124},
		{45000.5, 44990.1},
		{1.2345, 1.2344},
		{250, 0},
	}
	for _, p := range pairs {
		mark, index := p[0], p[1]
		got := Deviation(decimal.NewFromFloat(index), decimal.NewFromFloat(mark)).InexactFloat64()
		want := (index/mark - 1) * 100
		assert.InDelta(t, want, got, 1e-9, "mark=%v index=%v", mark, index)
	}
}

func TestDetectExampleCandidate(t *testing.T) {
	candidates, skipped := Detect([]Ticker{tickerOf("FOOUSDT", "100", "101", "0.0001")}, opts("0.4"))

	require.Empty(t, skipped)
	require.Len(t, candidates, 1)
	c := candidates[0]
	assert.Equal(t, "FOO", c.Token)
	assert.Equal(t, "FOO_USDT", c.Pair())
	assert.Equal(t, "1.00", c.DeviationPct.StringFixed(2))
	assert.Equal(t, "0.01", c.FundingRatePct.StringFixed(2))
	assert.True(t, c.IndexPrice.Equal(dec("101")))
	assert.True(t, c.MarkPrice.Equal(dec("100")))
}

func TestDetectThresholdIsExclusive(t *testing.T) {
	candidates, _ := Detect([]Ticker{
		tickerOf("EDGEUSDT", "100", "100.4", "0"),
		tickerOf("OVERUSDT", "100", "100.41", "0"),
	}, opts("0.4"))

	require.Len(t, candidates, 1)
	assert.Equal(t, "OVER", candidates[0].Token)
}

func TestDetectSkipsMalformedWithoutAffectingOthers(t *testing.T) {
	tickers := []Ticker{
		tickerOf("ZEROUSDT", "0", "1", "0"),
		tickerOf("GOODUSDT", "10", "11", "0.001"),
		tickerOf("NANUSDT", "abc", "1", "0"),
		{Symbol: "MISSINGUSDT", MarkPrice: "1", IndexPrice: "2"},
		tickerOf("", "1", "2", "0"),
	}

	candidates, skipped := Detect(tickers, opts("0.4"))

	require.Len(t, candidates, 1)
	assert.Equal(t, "GOOD", candidates[0].Token)
	require.Len(t, skipped, 4)
	for _, err := range skipped {
		var malformed *MalformedTickerError
		assert.True(t, errors.As(err, &malformed), "unexpected error type %T", err)
	}
	assert.ErrorIs(t, skipped[0], errZeroMark)
}

func TestDetectOrdersByMagnitudeStable(t *testing.T) {
	tickers := []Ticker{
		tickerOf("AUSDT", "100", "101", "0"),   // +1
		tickerOf("BUSDT", "100", "97", "0"),    // -3
		tickerOf("CUSDT", "100", "99", "0"),    // -1, ties with A
		tickerOf("DUSDT", "100", "102", "0"),   // +2
		tickerOf("EUSDT", "100", "101", "0"),   // +1, ties with A and C
		tickerOf("FUSDT", "100", "100.1", "0"), // below threshold
	}

	candidates, _ := Detect(tickers, opts("0.4"))

	tokens := make([]string, 0, len(candidates))
	for _, c := range candidates {
		tokens = append(tokens, c.Token)
	}
	assert.Equal(t, []string{"B", "D", "A", "C", "E"}, tokens)
	assert.True(t, candidates[1].DeviationPct.IsPositive())
	assert.True(t, candidates[0].DeviationPct.IsNegative())
}

func TestSplitSymbol(t *testing.T) {
	cases := []struct{ symbol, token, quote string }{
		{"btcusdt", "BTC", "USDT"},
		{"BTCPERP", "BTCPERP", ""},
		{"USDT", "USDT", ""},
		{"1000PEPEUSDT", "1000PEPE", "USDT"},
	}
	for _, c := range cases {
		token, quote := SplitSymbol(c.symbol, DefaultQuoteSuffix)
		assert.Equal(t, c.token, token, c.symbol)
		assert.Equal(t, c.quote, quote, c.symbol)
	}
}

func TestTickerDecodesStringsAndNumbers(t *testing.T) {
	var tickers []Ticker
	raw := `[{"symbol":"FOOUSDT","markPrice":"100","indexPrice":101,"fundingRate":null}]`
	require.NoError(t, json.Unmarshal([]byte(raw), &tickers))
	require.Len(t, tickers, 1)
	assert.Equal(t, Number("100"), tickers[0].MarkPrice)
	assert.Equal(t, Number("101"), tickers[0].IndexPrice)
	assert.Equal(t, Number(""), tickers[0].FundingRate)

	_, skipped := Detect(tickers, opts("0.4"))
	require.Len(t, skipped, 1)
	assert.Contains(t, skipped[0].Error(), "fundingRate")
}

func testIndex(t *testing.T) registry.Index {
	t.Helper()
	idx, err := registry.Build([]registry.Descriptor{
		{Platform: "X", Type: "contract", Pairs: []string{"FOO", "BAR"}},
		{Platform: "Y", Type: "lending", Pairs: []string{"FOO"}},
	})
	require.NoError(t, err)
	return idx
}

func TestMatchEmitsOnePerVenue(t *testing.T) {
	candidates := []Candidate{
		{Token: "FOO", Quote: "USDT", DeviationPct: dec("2"), FundingRatePct: dec("0.01")},
		{Token: "NOPE", Quote: "USDT", DeviationPct: dec("5")},
		{Token: "BAR", Quote: "USDT", DeviationPct: dec("-1.5")},
	}

	opps := Match(candidates, testIndex(t))

	require.Len(t, opps, 3)
	for _, o := range opps {
		assert.NotEqual(t, "NOPE", o.Token)
	}
	assert.Equal(t, "X", opps[0].Platform)
	assert.Equal(t, registry.VenueContract, opps[0].VenueType)
	assert.Equal(t, "Y", opps[1].Platform)
	assert.Equal(t, registry.VenueLending, opps[1].VenueType)
	assert.Equal(t, "BAR_USDT", opps[2].Pair)
}

func TestMatchSecondaryOrderByFunding(t *testing.T) {
	idx, err := registry.Build([]registry.Descriptor{
		{Platform: "X", Type: "contract", Pairs: []string{"A", "B", "C"}},
	})
	require.NoError(t, err)

	candidates := []Candidate{
		{Token: "A", DeviationPct: dec("1"), FundingRatePct: dec("0.01")},
		{Token: "B", DeviationPct: dec("-1"), FundingRatePct: dec("-0.5")},
		{Token: "C", DeviationPct: dec("1"), FundingRatePct: dec("0.01")},
	}

	opps := Match(candidates, idx)

	require.Len(t, opps, 3)
	assert.Equal(t, []string{"B", "A", "C"}, []string{opps[0].Token, opps[1].Token, opps[2].Token})
}

func TestMatchEmptyIndex(t *testing.T) {
	opps := Match([]Candidate{{Token: "FOO", DeviationPct: dec("3")}}, registry.Index{})
	assert.Empty(t, opps)
	assert.NotNil(t, opps)
}

func TestAlertEligibleThresholdsPerType(t *testing.T) {
	thresholds := Thresholds{Contract: dec("1"), Lending: dec("3")}
	opps := []Opportunity{
		{Pair: "FOO_USDT", Token: "FOO", DeviationPct: dec("-1"), FundingRatePct: dec("0.01"), VenueType: registry.VenueContract, Platform: "X"},
		{Pair: "FOO_USDT", Token: "FOO", DeviationPct: dec("-1"), FundingRatePct: dec("0.01"), VenueType: registry.VenueLending, Platform: "Y"},
		{Pair: "BAR_USDT", Token: "BAR", DeviationPct: dec("3"), VenueType: registry.VenueLending, Platform: "Y"},
	}

	alerts := AlertEligible(opps, thresholds)

	require.Len(t, alerts, 2)
	assert.Equal(t, "FOO", alerts[0].Token)
	assert.Equal(t, "套利机会：FOO_USDT 偏离率:1.00% 资金费率:0.01% 平台:X", alerts[0].Message)
	assert.Equal(t, "BAR", alerts[1].Token)
}

func TestDisplayRows(t *testing.T) {
	tickers := []Ticker{
		tickerOf("BTCUSDT", "100", "100", "0"),
		tickerOf("ETHUSDT", "10", "10", "0"),
		tickerOf("BADUSDT", "", "10", "0"),
	}

	assert.Empty(t, DisplayRows(tickers, NewAllowlist(nil), DefaultQuoteSuffix))

	rows := DisplayRows(tickers, NewAllowlist([]string{"eth"}), DefaultQuoteSuffix)
	require.Len(t, rows, 1)
	assert.Equal(t, "ETH", rows[0].Token)
	assert.Equal(t, "USDT", rows[0].Quote)

	assert.Len(t, DisplayRows(tickers, NewAllowlist([]string{"*"}), DefaultQuoteSuffix), 2)
}

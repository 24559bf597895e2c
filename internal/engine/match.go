package engine

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"perp-basis-alerts/internal/registry"
)

// Opportunity is a candidate matched to one registry venue.
type Opportunity struct {
	Pair           string
	Token          string
	DeviationPct   decimal.Decimal
	FundingRatePct decimal.Decimal
	VenueType      registry.VenueType
	Platform       string
}

// Match expands every candidate into one opportunity per venue offering its
// token. Candidates with no venue produce nothing. The result is ordered by
// descending abs(deviation), then descending abs(funding rate), stable.
func Match(candidates []Candidate, idx registry.Index) []Opportunity {
	opps := make([]Opportunity, 0)
	for _, c := range candidates {
		for _, venue := range idx.Lookup(c.Token) {
			opps = append(opps, Opportunity{
				Pair:           c.Pair(),
				Token:          c.Token,
				DeviationPct:   c.DeviationPct,
				FundingRatePct: c.FundingRatePct,
				VenueType:      venue.Type,
				Platform:       venue.Platform,
			})
		}
	}

	sort.SliceStable(opps, func(i, j int) bool {
		di, dj := opps[i].DeviationPct.Abs(), opps[j].DeviationPct.Abs()
		if !di.Equal(dj) {
			return di.GreaterThan(dj)
		}
		return opps[i].FundingRatePct.Abs().GreaterThan(opps[j].FundingRatePct.Abs())
	})
	return opps
}

// Thresholds are the per-venue-type minimum abs(deviation) for alerting.
type Thresholds struct {
	Contract decimal.Decimal
	Lending  decimal.Decimal
}

// For returns the threshold for a venue type.
func (t Thresholds) For(kind registry.VenueType) decimal.Decimal {
	if kind == registry.VenueContract {
		return t.Contract
	}
	return t.Lending
}

// Alert is an alert-eligible opportunity reduced to what deduplication needs.
type Alert struct {
	Token       string
	Message     string
	Opportunity Opportunity
}

// AlertEligible keeps opportunities whose abs(deviation) meets their venue
// type's threshold, preserving order, and renders the alert message.
func AlertEligible(opps []Opportunity, thresholds Thresholds) []Alert {
	alerts := make([]Alert, 0)
	for _, o := range opps {
		if o.DeviationPct.Abs().LessThan(thresholds.For(o.VenueType)) {
			continue
		}
		alerts = append(alerts, Alert{
			Token:       o.Token,
			Message:     AlertMessage(o),
			Opportunity: o,
		})
	}
	return alerts
}

// AlertMessage renders the operator alert line for an opportunity.
func AlertMessage(o Opportunity) string {
	return fmt.Sprintf("套利机会：%s 偏离率:%s%% 资金费率:%s%% 平台:%s",
		o.Pair,
		o.DeviationPct.Abs().StringFixed(2),
		o.FundingRatePct.StringFixed(2),
		o.Platform,
	)
}

package report

import (
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"

	chart "github.com/wcharczuk/go-chart/v2"

	"perp-basis-alerts/internal/engine"
)

// ErrNothingToExport is returned when a snapshot yields no candidates.
var ErrNothingToExport = errors.New("no candidates to export")

// LimitCandidates keeps the highest ranked max candidates.
func LimitCandidates(candidates []engine.Candidate, max int) []engine.Candidate {
	if max <= 0 || len(candidates) <= max {
		return candidates
	}
	return candidates[:max]
}

// WriteCandidatesCSV writes ranked candidates with their matched venues.
func WriteCandidatesCSV(path string, candidates []engine.Candidate, opps []engine.Opportunity) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	venues := make(map[string][]string, len(opps))
	for _, o := range opps {
		venues[o.Token] = append(venues[o.Token], o.Platform+"("+o.VenueType.String()+")")
	}

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"token", "quote", "deviation_pct", "funding_rate_pct", "index_price", "mark_price", "venues"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, c := range candidates {
		record := []string{
			c.Token,
			c.Quote,
			c.DeviationPct.StringFixed(4),
			c.FundingRatePct.StringFixed(4),
			c.IndexPrice.String(),
			c.MarkPrice.String(),
			strings.Join(venues[c.Token], ";"),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteCandidatesPNG renders candidate deviations as a bar chart.
func WriteCandidatesPNG(path string, candidates []engine.Candidate) error {
	if len(candidates) == 0 {
		return ErrNothingToExport
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	bars := make([]chart.Value, len(candidates))
	lo, hi := 0.0, 0.0
	for i, c := range candidates {
		v := c.DeviationPct.InexactFloat64()
		bars[i] = chart.Value{Label: c.Token, Value: v}
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	if lo == hi {
		hi = lo + 1
	}

	graph := chart.BarChart{
		Title:  "Index/mark deviation (%)",
		Width:  max(1024, 60*len(bars)+160),
		Height: 720,
		Background: chart.Style{
			Padding: chart.Box{Top: 40},
		},
		BarWidth:     40,
		UseBaseValue: true,
		BaseValue:    0,
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: lo, Max: hi},
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.2f")
			},
		},
		Bars: bars,
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Package report renders polling results as console tables and exports them
// as CSV or PNG files.
package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"perp-basis-alerts/internal/dedup"
	"perp-basis-alerts/internal/engine"
)

const separator = "=================================================="

// Printer writes the cycle tables to a terminal.
type Printer struct {
	out io.Writer
	now func() time.Time
}

// NewPrinter returns a Printer writing to out.
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out, now: time.Now}
}

func (p *Printer) stamp() string {
	return p.now().Format("15:04:05")
}

func (p *Printer) table() *tabwriter.Writer {
	return tabwriter.NewWriter(p.out, 0, 4, 2, ' ', tabwriter.AlignRight)
}

// Prices prints the allowlisted raw prices.
func (p *Printer) Prices(rows []engine.PriceRow) {
	fmt.Fprintf(p.out, "\n[%s] 主力合约数据:\n", p.stamp())
	if len(rows) == 0 {
		fmt.Fprintln(p.out, "无显示配置的合约")
		return
	}
	w := p.table()
	fmt.Fprintln(w, "代币\t标记价格\t指数价格\t结算\t")
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", row.Token, row.MarkPrice.String(), row.IndexPrice.String(), row.Quote)
	}
	w.Flush()
}

// Candidates prints every symbol above the deviation threshold.
func (p *Printer) Candidates(candidates []engine.Candidate) {
	fmt.Fprintf(p.out, "\n[%s] 检测到%d个套利机会:\n", p.stamp(), len(candidates))
	if len(candidates) == 0 {
		return
	}
	w := p.table()
	fmt.Fprintln(w, "代币\t价格偏离\t资金费率\t指数价\t标记价\t")
	for _, c := range candidates {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n",
			c.Token,
			c.DeviationPct.StringFixed(2),
			c.FundingRatePct.StringFixed(2),
			c.IndexPrice.StringFixed(2),
			c.MarkPrice.StringFixed(2),
		)
	}
	w.Flush()
}

// Opportunities prints candidates joined with their venues.
func (p *Printer) Opportunities(opps []engine.Opportunity) {
	fmt.Fprintf(p.out, "\n[%s] 可操作平台:\n", p.stamp())
	if len(opps) == 0 {
		return
	}
	w := p.table()
	fmt.Fprintln(w, "交易对\t偏离率\t资金费\t类型\t平台\t")
	for _, o := range opps {
		fmt.Fprintf(w, "%s\t%s%%\t%s%%\t%s\t%s\t\n",
			o.Pair,
			o.DeviationPct.StringFixed(2),
			o.FundingRatePct.StringFixed(2),
			o.VenueType.Label(),
			o.Platform,
		)
	}
	w.Flush()
}

// Alerts prints the new alerts of a cycle, or why there are none.
func (p *Printer) Alerts(fresh []dedup.Record, eligible int) {
	fmt.Fprintf(p.out, "\n[%s] 套利机会提醒:\n", p.stamp())
	switch {
	case len(fresh) > 0:
		for _, rec := range fresh {
			fmt.Fprintf(p.out, "🔔 NEW: %s\n", rec.Message)
		}
	case eligible > 0:
		fmt.Fprintln(p.out, "已有记录的机会不重复提醒")
	default:
		fmt.Fprintln(p.out, "当前无符合条件的机会")
	}
}

// NextCheck prints the separator and the time of the next cycle.
func (p *Printer) NextCheck(next time.Time) {
	fmt.Fprintf(p.out, "\n%s\n下次检测于 %s\n", separator, next.Format("15:04:05"))
}

// Records prints the alert record store.
func (p *Printer) Records(records []dedup.Record) {
	if len(records) == 0 {
		fmt.Fprintln(p.out, "no alert records")
		return
	}
	w := tabwriter.NewWriter(p.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "Token\tAlerted (local)\tMessage")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\n",
			rec.Token,
			time.Unix(rec.Timestamp, 0).Format(time.DateTime),
			sanitizeInline(rec.Message),
		)
	}
	w.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}

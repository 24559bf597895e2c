// Package metrics exposes polling-cycle instrumentation over Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the detector.
type Metrics struct {
	Registry *prometheus.Registry

	CyclesTotal      prometheus.Counter
	CycleSeconds     prometheus.Histogram
	Tickers          prometheus.Gauge
	Candidates       prometheus.Gauge
	Opportunities    prometheus.Gauge
	AlertsNew        prometheus.Counter
	SkippedTickers   prometheus.Counter
	ErrorsTotal      *prometheus.CounterVec
	LastCycleUnixSec prometheus.Gauge
}

// New creates the metrics and registers them on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		CyclesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "basiswatch_cycles_total",
			Help: "Total number of polling cycles executed",
		}),
		CycleSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "basiswatch_cycle_duration_seconds",
			Help:    "Wall time of one polling cycle",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		Tickers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "basiswatch_snapshot_tickers",
			Help: "Tickers in the most recent snapshot",
		}),
		Candidates: factory.NewGauge(prometheus.GaugeOpts{
			Name: "basiswatch_candidates",
			Help: "Symbols above the deviation threshold in the most recent cycle",
		}),
		Opportunities: factory.NewGauge(prometheus.GaugeOpts{
			Name: "basiswatch_opportunities",
			Help: "Venue opportunities in the most recent cycle",
		}),
		AlertsNew: factory.NewCounter(prometheus.CounterOpts{
			Name: "basiswatch_alerts_new_total",
			Help: "Tokens alerted for the first time",
		}),
		SkippedTickers: factory.NewCounter(prometheus.CounterOpts{
			Name: "basiswatch_skipped_tickers_total",
			Help: "Malformed tickers skipped by the detector",
		}),
		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "basiswatch_errors_total",
			Help: "Errors by component",
		}, []string{"component"}),
		LastCycleUnixSec: factory.NewGauge(prometheus.GaugeOpts{
			Name: "basiswatch_last_cycle_timestamp_seconds",
			Help: "Unix time the most recent cycle finished",
		}),
	}
}

// CycleStats summarises one polling cycle.
type CycleStats struct {
	Duration      time.Duration
	Tickers       int
	Skipped       int
	Candidates    int
	Opportunities int
	NewAlerts     int
}

// ObserveCycle records one finished cycle. Safe on a nil receiver.
func (m *Metrics) ObserveCycle(s CycleStats) {
	if m == nil {
		return
	}
	m.CyclesTotal.Inc()
	m.CycleSeconds.Observe(s.Duration.Seconds())
	m.Tickers.Set(float64(s.Tickers))
	m.Candidates.Set(float64(s.Candidates))
	m.Opportunities.Set(float64(s.Opportunities))
	m.AlertsNew.Add(float64(s.NewAlerts))
	m.SkippedTickers.Add(float64(s.Skipped))
	m.LastCycleUnixSec.SetToCurrentTime()
}

// RecordError increments the error counter. Safe on a nil receiver.
func (m *Metrics) RecordError(component string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(component).Inc()
}

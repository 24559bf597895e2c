// Package service runs one polling cycle end to end: snapshot, detection,
// venue matching, deduplication, persistence, presentation and notification.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"perp-basis-alerts/internal/alerting"
	"perp-basis-alerts/internal/config"
	"perp-basis-alerts/internal/dedup"
	"perp-basis-alerts/internal/engine"
	"perp-basis-alerts/internal/fetcher"
	"perp-basis-alerts/internal/metrics"
	"perp-basis-alerts/internal/registry"
	"perp-basis-alerts/internal/report"
	"perp-basis-alerts/internal/scheduler"
	"perp-basis-alerts/internal/storage"
)

// Deps are the collaborators of a Service. Fetcher and Store are required.
type Deps struct {
	Scheduler *scheduler.Scheduler
	Fetcher   fetcher.TickerFetcher
	Index     registry.Index
	Store     *dedup.Store
	Notifier  alerting.Notifier
	Printer   *report.Printer
	Metrics   *metrics.Metrics
	Locker    storage.AdvisoryLocker
}

// CycleResult is everything one polling cycle observed and produced.
type CycleResult struct {
	ID            string
	Tickers       int
	Skipped       int
	Display       []engine.PriceRow
	Candidates    []engine.Candidate
	Opportunities []engine.Opportunity
	Eligible      []engine.Alert
	NewAlerts     []dedup.Record
	// LockSkipped is set when another instance held the advisory lock.
	LockSkipped bool
}

// Service orchestrates fetching, detection, deduplication, and alerting.
type Service struct {
	deps   Deps
	logger zerolog.Logger

	detect        engine.Options
	thresholds    engine.Thresholds
	allow         engine.Allowlist
	alertsOn      bool
	notifyTimeout time.Duration
	lockKey       int64
}

// New constructs the monitoring service.
func New(cfg *config.Config, deps Deps, logger zerolog.Logger) *Service {
	quote := cfg.Detection.QuoteSuffix
	if quote == "" {
		quote = engine.DefaultQuoteSuffix
	}
	timeout := cfg.Alerting.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Service{
		deps:   deps,
		logger: logger.With().Str("component", "service").Logger(),
		detect: engine.Options{
			DeviationThreshold: decimal.NewFromFloat(cfg.Detection.DeviationThresholdPct),
			QuoteSuffix:        quote,
		},
		thresholds: engine.Thresholds{
			Contract: decimal.NewFromFloat(cfg.Detection.ContractAlertThresholdPct),
			Lending:  decimal.NewFromFloat(cfg.Detection.LendingAlertThresholdPct),
		},
		allow:         engine.NewAllowlist(cfg.Display.Allowlist),
		alertsOn:      cfg.Alerting.Enabled,
		notifyTimeout: timeout,
		lockKey:       cfg.Scheduler.AdvisoryLockKey,
	}
}

// DisableNotifications turns off delivery for the lifetime of the service.
// New alerts are still recorded and printed.
func (s *Service) DisableNotifications() { s.alertsOn = false }

// Run begins the polling loop.
func (s *Service) Run(ctx context.Context) error {
	if s.deps.Scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.deps.Scheduler.Run(ctx, func(ctx context.Context, _ time.Time) error {
		_, err := s.RunCycle(ctx)
		return err
	})
}

// RunCycle executes one polling cycle. A failed fetch counts as an empty
// snapshot. If ctx is cancelled before persistence the store is not written
// and ctx's error is returned.
func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	result := CycleResult{ID: uuid.NewString()}
	log := s.logger.With().Str("cycle", result.ID).Logger()

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		s.deps.Metrics.RecordError("lock")
		return result, err
	}
	if !proceed {
		log.Debug().Msg("skip cycle because advisory lock held elsewhere")
		result.LockSkipped = true
		return result, nil
	}
	if unlock != nil {
		defer unlock()
	}

	started := time.Now()

	tickers, err := s.deps.Fetcher.FetchTickers(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		log.Warn().Err(err).Msg("ticker fetch failed; treating snapshot as empty")
		s.deps.Metrics.RecordError("fetcher")
		tickers = nil
	}
	result.Tickers = len(tickers)

	result.Display = engine.DisplayRows(tickers, s.allow, s.detect.QuoteSuffix)

	candidates, skipped := engine.Detect(tickers, s.detect)
	result.Candidates = candidates
	result.Skipped = len(skipped)
	for _, skipErr := range skipped {
		var malformed *engine.MalformedTickerError
		if errors.As(skipErr, &malformed) {
			log.Debug().Str("symbol", malformed.Symbol).Err(skipErr).Msg("ticker skipped")
		}
	}

	result.Opportunities = engine.Match(candidates, s.deps.Index)
	result.Eligible = engine.AlertEligible(result.Opportunities, s.thresholds)
	result.NewAlerts = s.deps.Store.FilterNew(result.Eligible)

	if ctx.Err() != nil {
		return result, ctx.Err()
	}

	if len(result.NewAlerts) > 0 {
		if err := s.deps.Store.Save(ctx); err != nil {
			var storeErr *dedup.StoreError
			if errors.As(err, &storeErr) {
				log.Error().Err(err).Str("backend", storeErr.Backend).Msg("failed to persist alert records")
			} else {
				log.Error().Err(err).Msg("failed to persist alert records")
			}
			s.deps.Metrics.RecordError("dedup")
		}
	}

	s.present(result)
	s.notify(ctx, log, result.NewAlerts)

	log.Info().
		Int("tickers", result.Tickers).
		Int("skipped", result.Skipped).
		Int("candidates", len(result.Candidates)).
		Int("opportunities", len(result.Opportunities)).
		Int("eligible", len(result.Eligible)).
		Int("new_alerts", len(result.NewAlerts)).
		Dur("elapsed", time.Since(started)).
		Msg("cycle complete")

	s.deps.Metrics.ObserveCycle(metrics.CycleStats{
		Duration:      time.Since(started),
		Tickers:       result.Tickers,
		Skipped:       result.Skipped,
		Candidates:    len(result.Candidates),
		Opportunities: len(result.Opportunities),
		NewAlerts:     len(result.NewAlerts),
	})

	return result, nil
}

func (s *Service) present(result CycleResult) {
	p := s.deps.Printer
	if p == nil {
		return
	}
	p.Prices(result.Display)
	p.Candidates(result.Candidates)
	p.Opportunities(result.Opportunities)
	p.Alerts(result.NewAlerts, len(result.Eligible))
}

func (s *Service) notify(ctx context.Context, log zerolog.Logger, fresh []dedup.Record) {
	if !s.alertsOn || s.deps.Notifier == nil {
		return
	}
	for _, rec := range fresh {
		notifyCtx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
		err := s.deps.Notifier.Notify(notifyCtx, alerting.Notification{Token: rec.Token, Message: rec.Message})
		cancel()
		if err != nil {
			log.Error().Err(err).Str("token", rec.Token).Msg("failed to dispatch alert")
			s.deps.Metrics.RecordError("alerting")
		}
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.deps.Locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.deps.Locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

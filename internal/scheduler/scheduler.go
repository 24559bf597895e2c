// Package scheduler drives the polling loop with an elapsed-time compensated
// sleep between ticks.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked once per polling cycle.
type TickFunc func(ctx context.Context, started time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	MinSleep     time.Duration
	StartupDelay time.Duration
	// MaxTicks stops the loop after that many ticks; zero runs until cancelled.
	MaxTicks int
	// OnSleep is told when the next tick will start.
	OnSleep func(next time.Time)
}

// Scheduler drives sequential execution of polling cycles.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	if opts.MinSleep <= 0 {
		opts.MinSleep = time.Second
	}
	return &Scheduler{
		opts:   opts,
		logger: logger.With().Str("component", "scheduler").Logger(),
		now:    time.Now,
	}
}

// SleepFor returns how long to wait after a tick that took elapsed:
// max(interval - elapsed, floor).
func SleepFor(interval, elapsed, floor time.Duration) time.Duration {
	wait := interval - elapsed
	if wait < floor {
		return floor
	}
	return wait
}

// Run blocks, invoking tick back to back with compensated sleeps, until ctx is
// cancelled or MaxTicks is reached. Cancellation is a clean exit and returns nil.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		if !s.sleep(ctx, s.opts.StartupDelay) {
			return nil
		}
	}

	for n := 1; ; n++ {
		if ctx.Err() != nil {
			return nil
		}

		started := s.now()
		s.logger.Debug().Int("tick", n).Msg("executing scheduled tick")
		if err := tick(ctx, started); err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return nil
			}
			s.logger.Error().Err(err).Int("tick", n).Msg("tick execution failed")
		}

		if s.opts.MaxTicks > 0 && n >= s.opts.MaxTicks {
			return nil
		}

		elapsed := s.now().Sub(started)
		wait := SleepFor(s.opts.Interval, elapsed, s.opts.MinSleep)
		next := s.now().Add(wait)
		s.logger.Debug().Dur("elapsed", elapsed).Time("next_tick", next).Msg("waiting for next tick")
		if s.opts.OnSleep != nil {
			s.opts.OnSleep(next)
		}

		if !s.sleep(ctx, wait) {
			return nil
		}
	}
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

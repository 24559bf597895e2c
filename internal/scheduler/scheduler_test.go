package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSleepFor(t *testing.T) {
	cases := []struct {
		interval, elapsed, floor, want time.Duration
	}{
		{5 * time.Second, 2 * time.Second, time.Second, 3 * time.Second},
		{5 * time.Second, 4500 * time.Millisecond, time.Second, time.Second},
		{5 * time.Second, 9 * time.Second, time.Second, time.Second},
		{5 * time.Second, 0, time.Second, 5 * time.Second},
	}
	for _, c := range cases {
		if got := SleepFor(c.interval, c.elapsed, c.floor); got != c.want {
			t.Fatalf("SleepFor(%s, %s, %s) = %s, 期望 %s", c.interval, c.elapsed, c.floor, got, c.want)
		}
	}
}

func TestRunStopsAfterMaxTicks(t *testing.T) {
	var ticks int
	var sleeps []time.Time
	s := New(Options{
		Interval: 5 * time.Millisecond,
		MinSleep: time.Millisecond,
		MaxTicks: 3,
		OnSleep:  func(next time.Time) { sleeps = append(sleeps, next) },
	}, zerolog.Nop())

	err := s.Run(context.Background(), func(context.Context, time.Time) error {
		ticks++
		if ticks == 2 {
			return errors.New("tick failed")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run 不应返回错误: %v", err)
	}
	if ticks != 3 {
		t.Fatalf("应执行 3 次, 实际 %d", ticks)
	}
	if len(sleeps) != 2 {
		t.Fatalf("最后一次之后不应再等待, 实际等待 %d 次", len(sleeps))
	}
}

func TestRunExitsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(Options{Interval: time.Hour, MinSleep: time.Hour}, zerolog.Nop())

	done := make(chan error, 1)
	ticks := 0
	go func() {
		done <- s.Run(ctx, func(context.Context, time.Time) error {
			ticks++
			cancel()
			return nil
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("取消后应正常退出, 实际 %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("取消后应立即放弃等待")
	}
	if ticks != 1 {
		t.Fatalf("应只执行 1 次, 实际 %d", ticks)
	}
}

func TestRunCancelledDuringStartupDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New(Options{Interval: time.Second, StartupDelay: time.Hour}, zerolog.Nop())

	called := false
	if err := s.Run(ctx, func(context.Context, time.Time) error {
		called = true
		return nil
	}); err != nil {
		t.Fatalf("Run 不应返回错误: %v", err)
	}
	if called {
		t.Fatal("启动延迟期间取消不应执行 tick")
	}
}

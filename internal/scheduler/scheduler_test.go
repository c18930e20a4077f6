package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/clock"
)

func waitFor(t *testing.T, ch <-chan time.Time) time.Time {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for job execution")
		return time.Time{}
	}
}

func TestScheduler_Every(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New()

	ran := make(chan time.Time, 10)
	var failures atomic.Int32
	s.Every("tick", 10*time.Millisecond, func(_ context.Context, now time.Time) error {
		ran <- now
		return nil
	})
	s.Every("broken", 10*time.Millisecond, func(context.Context, time.Time) error {
		failures.Add(1)
		panic("boom")
	})
	s.Start(ctx)

	waitFor(t, ran)
	waitFor(t, ran)

	cancel()
	s.Wait()
	assert.Greater(t, failures.Load(), int32(1), "a panicking job keeps being scheduled")
}

func TestScheduler_DailyFiresAtMidnight(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	midnight := clock.NextMidnight(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	start := time.Now()
	s := New()
	s.SetClock(func() time.Time {
		return midnight.Add(-50 * time.Millisecond).Add(time.Since(start))
	})

	ran := make(chan time.Time, 1)
	s.Daily("daily", func(_ context.Context, now time.Time) error {
		ran <- now
		return errors.New("logged, not fatal")
	})
	s.Start(ctx)

	got := waitFor(t, ran)
	assert.WithinDuration(t, midnight, got, earlyFire)

	cancel()
	s.Wait()
}

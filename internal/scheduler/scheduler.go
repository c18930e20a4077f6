// Package scheduler runs the bot's periodic sweeps and the midnight job.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/metrics"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/clock"
)

// Job is one unit of scheduled work. now is the time the run was triggered.
type Job func(ctx context.Context, now time.Time) error

// earlyFire is how far before midnight a timer may wake without being
// treated as early.
const earlyFire = time.Second

type entry struct {
	name     string
	interval time.Duration // zero for the daily job
	job      Job
}

// Scheduler manages scheduled jobs
type Scheduler struct {
	now     func() time.Time
	entries []entry
	wg      sync.WaitGroup
}

// New creates a new scheduler
func New() *Scheduler {
	return &Scheduler{now: time.Now}
}

// SetClock replaces the wall clock. Call before Start.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Every registers a job to run at a fixed interval.
func (s *Scheduler) Every(name string, interval time.Duration, job Job) {
	s.entries = append(s.entries, entry{name: name, interval: interval, job: job})
}

// Daily registers a job to run at every UTC+7 midnight.
func (s *Scheduler) Daily(name string, job Job) {
	s.entries = append(s.entries, entry{name: name, job: job})
}

// Start launches every registered job. They stop when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	for _, e := range s.entries {
		s.wg.Add(1)
		if e.interval > 0 {
			go s.loop(ctx, e)
		} else {
			go s.daily(ctx, e)
		}
	}
	log.Info().Int("jobs", len(s.entries)).Msg("Scheduler started")
}

// Wait blocks until every job goroutine has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, e entry) {
	defer s.wg.Done()
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.run(ctx, e)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) daily(ctx context.Context, e entry) {
	defer s.wg.Done()
	next := clock.NextMidnight(s.now())
	for ; ; next = clock.NextMidnight(next) {
		log.Info().Str("job", e.name).Time("next_run_at", next).Msg("Daily job scheduled")

		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}

		// a timer that fires early is re-armed for the remainder
		for rem := next.Sub(s.now()); rem > earlyFire; rem = next.Sub(s.now()) {
			timer.Reset(rem)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}
		s.run(ctx, e)
	}
}

// run executes one job, recovering panics so a bad sweep never stops the loop.
func (s *Scheduler) run(ctx context.Context, e entry) {
	defer func() {
		if r := recover(); r != nil {
			metrics.SweepErrors.WithLabelValues(e.name).Inc()
			log.Error().Str("job", e.name).Interface("panic", r).Msg("Scheduled job panicked")
		}
	}()

	if err := e.job(ctx, s.now()); err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.SweepErrors.WithLabelValues(e.name).Inc()
		log.Error().Err(err).Str("job", e.name).Msg("Scheduled job failed")
	}
}

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/metrics"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/model"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/clock"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/db"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/repository"
)

// Daily job rates
const (
	DailyInterestPercent  = 20
	ManualInterestPercent = 10
)

// taxBrackets are upper wealth bounds (exclusive) and their rate in percent.
var taxBrackets = []struct {
	below int64
	rate  int64
}{
	{500, 0},
	{1000, 5},
	{2500, 10},
	{5000, 15},
}

const topTaxRate = 20

// TaxRate returns the daily wealth tax rate in percent.
func TaxRate(wealth int64) int64 {
	for _, b := range taxBrackets {
		if wealth < b.below {
			return b.rate
		}
	}
	return topTaxRate
}

// WealthTax is the daily tax owed on wealth.
func WealthTax(wealth int64) int64 {
	return wealth * TaxRate(wealth) / 100
}

// DailyReport summarizes one run of the daily job.
type DailyReport struct {
	Day          time.Time
	AlreadyRan   bool // the counter reset was already done for Day
	Reset        int64
	Interest     int64
	Taxed        int
	TaxCollected int64
	Failed       int
}

// Changed reports whether the run touched any balance.
func (r *DailyReport) Changed() bool {
	return !r.AlreadyRan || r.Taxed > 0 || r.Interest > 0 || r.Failed > 0
}

// DailyService runs the midnight reset, stash interest and wealth tax.
type DailyService struct {
	pool     db.TxRunner
	users    *repository.UserRepository
	settings *repository.SettingsRepository
}

// NewDailyService creates a new DailyService instance.
func NewDailyService(
	pool db.TxRunner,
	users *repository.UserRepository,
	settings *repository.SettingsRepository,
) *DailyService {
	return &DailyService{pool: pool, users: users, settings: settings}
}

func dayKey(t time.Time) int64 {
	y, m, d := clock.Day(t).Date()
	return int64(y*10000 + int(m)*100 + d)
}

// Run executes the daily job for the calendar day containing now. The reset
// happens once per day; each user is settled in their own transaction and
// marked, so a second run only retries users that failed before.
func (s *DailyService) Run(ctx context.Context, now time.Time) (*DailyReport, error) {
	day := clock.DateOnly(now)
	rep := &DailyReport{Day: day}

	reset, ran, err := s.resetOnce(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("daily job failed: %w", err)
	}
	rep.Reset, rep.AlreadyRan = reset, ran

	ids, err := s.users.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("daily job failed: %w", err)
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		interest, tax, charged, err := s.settleUser(ctx, id, day)
		if err != nil {
			rep.Failed++
			metrics.SweepErrors.WithLabelValues("daily").Inc()
			log.Error().Err(err).Int64("user_id", id).Msg("Daily settlement failed for user")
			continue
		}
		rep.Interest += interest
		if charged && tax > 0 {
			rep.Taxed++
			rep.TaxCollected += tax
		}
	}

	if !rep.Changed() {
		log.Info().Time("day", day).Msg("Daily job already ran")
		return rep, nil
	}
	metrics.Tax("wealth", rep.TaxCollected)
	log.Info().
		Time("day", day).
		Int64("reset", rep.Reset).
		Int64("interest", rep.Interest).
		Int("taxed", rep.Taxed).
		Int64("tax", rep.TaxCollected).
		Int("failed", rep.Failed).
		Msg("Daily job finished")
	return rep, nil
}

// resetOnce clears the cumulative counters unless that already happened today.
func (s *DailyService) resetOnce(ctx context.Context, now time.Time) (reset int64, ran bool, err error) {
	err = s.pool.InTx(ctx, func(tx pgx.Tx) error {
		settings := s.settings.WithTx(tx)
		// AddInt with 0 creates the row and locks it for the rest of the tx
		last, err := settings.AddInt(ctx, repository.SettingLastDailyRun, 0)
		if err != nil {
			return err
		}
		if last == dayKey(now) {
			ran = true
			return nil
		}
		if reset, err = s.users.WithTx(tx).ResetCumulative(ctx); err != nil {
			return err
		}
		return settings.SetInt(ctx, repository.SettingLastDailyRun, dayKey(now))
	})
	return reset, ran, err
}

// settleUser pays interest and charges the wealth tax for one user. A user
// already marked for day is skipped.
func (s *DailyService) settleUser(ctx context.Context, userID int64, day time.Time) (interest, tax int64, charged bool, err error) {
	err = s.pool.InTx(ctx, func(tx pgx.Tx) error {
		users := s.users.WithTx(tx)
		u, err := users.GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if u.LastRichTaxDate != nil && u.LastRichTaxDate.Equal(day) {
			return nil
		}

		interest = u.StashedPoints * DailyInterestPercent / 100
		if interest > 0 {
			if _, err := users.Apply(ctx, userID, model.LedgerDelta{Points: interest}); err != nil {
				return err
			}
		}

		tax = WealthTax(u.Wealth() + interest)
		if charged, err = users.ChargeDailyTax(ctx, userID, tax, day); err != nil {
			return err
		}
		if !charged || tax == 0 {
			return nil
		}
		return s.settings.WithTx(tx).AddTax(ctx, tax)
	})
	if err != nil {
		return 0, 0, false, err
	}
	return interest, tax, charged, nil
}

// RunInterest pays ManualInterestPercent on every stash without the reset or tax.
func (s *DailyService) RunInterest(ctx context.Context) (int64, error) {
	paid, err := s.users.PayStashInterest(ctx, ManualInterestPercent)
	if err != nil {
		return 0, err
	}
	log.Info().Int64("interest", paid).Msg("Stash interest paid")
	return paid, nil
}

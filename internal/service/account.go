// Package service provides the economy operations that sit outside the games:
// earning, transfers, the role shop, airdrops and the daily job.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/model"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/clock"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/db"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/rng"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/repository"
)

// Earning constants
const (
	WelcomeBonus    = 1000 // first message ever, or first of the day
	MessageReward   = 100
	MessageCooldown = 15 * time.Second
	DailyEarnCap    = 2500
	PoorThreshold   = 500
	PoorCritChance  = 0.20
	RichThreshold   = 1500
	RichMissChance  = 0.50
	BoosterChance   = 0.50
	StashLimit      = 10000
)

// Common errors for account operations.
var (
	ErrStashFull  = errors.New("stash limit reached")
	ErrStashEmpty = errors.New("not enough stashed points")
)

// Earning is what one chat message paid.
type Earning struct {
	Amount      int64
	Welcome     bool // the user was created by this message
	FirstOfDay  bool
	Crit        bool
	Booster     bool
	DailyEarned int64
}

// AccountService handles balances, chat earning and the stash.
type AccountService struct {
	pool  db.TxRunner
	users *repository.UserRepository
	src   rng.Source
}

// NewAccountService creates a new AccountService instance.
func NewAccountService(pool db.TxRunner, users *repository.UserRepository, src rng.Source) *AccountService {
	return &AccountService{
		pool:  pool,
		users: users,
		src:   src,
	}
}

// Welcome grants the joining bonus to a member seen for the first time.
func (s *AccountService) Welcome(ctx context.Context, userID int64) (bool, error) {
	created, err := s.users.Create(ctx, userID, WelcomeBonus)
	if err != nil {
		return false, err
	}
	if created {
		log.Info().Int64("user_id", userID).Msg("Welcome bonus granted")
	}
	return created, nil
}

// Earn credits a chat message. A nil Earning means the message paid nothing
// and was not recorded (cooldown or daily cap).
func (s *AccountService) Earn(ctx context.Context, userID int64, booster bool, now time.Time) (*Earning, error) {
	day := clock.DateOnly(now)
	var e *Earning

	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		users := s.users.WithTx(tx)

		created, err := users.Create(ctx, userID, WelcomeBonus)
		if err != nil {
			return err
		}
		if created {
			// the welcome bonus does not count toward the daily cap
			e = &Earning{Amount: WelcomeBonus, Welcome: true, FirstOfDay: true}
			return users.RecordEarning(ctx, userID, 0, 0, day, now)
		}

		u, err := users.GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		amount, first, ok := baseReward(u, now)
		if !ok {
			return nil
		}
		earned := u.DailyEarned
		if first || u.DailyEarnedDate == nil || u.DailyEarnedDate.Before(day) {
			earned = 0
		}
		if earned >= DailyEarnCap {
			return nil
		}
		amount = min(amount, DailyEarnCap-earned)

		next := &Earning{FirstOfDay: first, DailyEarned: earned + amount}
		paid := s.applyLuck(u.Points, amount, next)
		if paid > 0 && booster && rng.Chance(s.src, BoosterChance) {
			paid += paid / 2
			next.Booster = true
		}
		next.Amount = paid
		e = next
		return users.RecordEarning(ctx, userID, paid, next.DailyEarned, day, now)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record earning: %w", err)
	}
	return e, nil
}

// baseReward picks the reward before luck. ok is false inside the cooldown.
func baseReward(u *model.User, now time.Time) (amount int64, first, ok bool) {
	if u.LastMessageAt == nil || !clock.SameDay(*u.LastMessageAt, now) {
		return WelcomeBonus, true, true
	}
	if now.Sub(*u.LastMessageAt) < MessageCooldown {
		return 0, false, false
	}
	return MessageReward, false, true
}

// applyLuck doubles poor users' rewards sometimes and zeroes rich users'
// rewards half the time. Zeroed rewards still count toward the cap.
func (s *AccountService) applyLuck(points, amount int64, e *Earning) int64 {
	switch {
	case points < PoorThreshold:
		if rng.Chance(s.src, PoorCritChance) {
			e.Crit = true
			return amount * 2
		}
	case points >= RichThreshold:
		if rng.Chance(s.src, RichMissChance) {
			return 0
		}
	}
	return amount
}

// Account returns a user's ledger row, or an empty row for unknown users.
func (s *AccountService) Account(ctx context.Context, userID int64) (*model.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return &model.User{UserID: userID}, nil
	}
	return u, err
}

// Grant mints amount into userID's balance.
func (s *AccountService) Grant(ctx context.Context, userID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	var balance int64
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		users := s.users.WithTx(tx)
		if _, err := users.Create(ctx, userID, 0); err != nil {
			return err
		}
		var err error
		balance, err = users.AddPoints(ctx, userID, amount)
		return err
	})
	if err != nil {
		return 0, err
	}
	log.Info().Int64("user_id", userID).Int64("amount", amount).Msg("Points granted")
	return balance, nil
}

// Revoke removes up to amount from userID without going below zero and
// returns how much was removed.
func (s *AccountService) Revoke(ctx context.Context, userID, amount int64) (removed, balance int64, err error) {
	if amount <= 0 {
		return 0, 0, ErrInvalidAmount
	}
	err = s.pool.InTx(ctx, func(tx pgx.Tx) error {
		users := s.users.WithTx(tx)
		u, err := users.GetForUpdate(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		balance = max(0, u.Points-amount)
		removed = u.Points - balance
		return users.SetPoints(ctx, userID, balance)
	})
	if err != nil {
		return 0, 0, err
	}
	log.Info().Int64("user_id", userID).Int64("removed", removed).Msg("Points revoked")
	return removed, balance, nil
}

// Deposit moves points into the stash, which holds at most StashLimit.
func (s *AccountService) Deposit(ctx context.Context, userID, amount int64) (*model.User, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	var out *model.User
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		users := s.users.WithTx(tx)
		u, err := users.GetForUpdate(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return ErrInsufficientBalance
			}
			return err
		}
		if u.Points < amount {
			return fmt.Errorf("%w: you have %d", ErrInsufficientBalance, u.Points)
		}
		if u.StashedPoints+amount > StashLimit {
			return fmt.Errorf("%w: you can deposit %d more", ErrStashFull, StashLimit-u.StashedPoints)
		}
		out, err = users.Stash(ctx, userID, amount, StashLimit)
		return err
	})
	return out, err
}

// Withdraw moves points out of the stash.
func (s *AccountService) Withdraw(ctx context.Context, userID, amount int64) (*model.User, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	u, err := s.users.Stash(ctx, userID, -amount, StashLimit)
	if errors.Is(err, repository.ErrInsufficientPoints) || errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrStashEmpty
	}
	return u, err
}

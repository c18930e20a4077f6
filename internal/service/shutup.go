package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/metrics"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/model"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/db"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/rng"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/repository"
)

// Shutup limits
const (
	ShutupMaxMinutes = 5
	ShutupMaxMessage = 200
)

// Shutup errors
var (
	ErrNotRicher      = errors.New("you must have more points than your target")
	ErrNothingToSpend = errors.New("not enough points to spend")
	ErrModerator      = errors.New("moderators cannot use or be targeted by this")
	ErrTargetIsBot    = errors.New("cannot target a bot")
)

// ShutupRequest describes a timeout purchase. The caller reports platform state.
type ShutupRequest struct {
	AttackerID    int64
	TargetID      int64
	AttackerIsMod bool
	TargetIsMod   bool
	TargetIsBot   bool
}

// ShutupResult is what the attacker paid and the timeout they bought.
type ShutupResult struct {
	Lost     int64
	ToTax    int64
	ToTarget int64
	Timeout  time.Duration
	Balance  int64
}

// ShutupService sells timeouts against poorer users.
type ShutupService struct {
	pool     db.TxRunner
	users    *repository.UserRepository
	settings *repository.SettingsRepository
	src      rng.Source
}

// NewShutupService creates a new ShutupService instance.
func NewShutupService(
	pool db.TxRunner,
	users *repository.UserRepository,
	settings *repository.SettingsRepository,
	src rng.Source,
) *ShutupService {
	return &ShutupService{pool: pool, users: users, settings: settings, src: src}
}

// Shutup charges half the attacker's balance. Half of that goes to the tax
// pool and the rest to the target. The caller applies the timeout.
func (s *ShutupService) Shutup(ctx context.Context, req ShutupRequest) (*ShutupResult, error) {
	switch {
	case req.AttackerID == req.TargetID:
		return nil, ErrSelfTransfer
	case req.TargetIsBot:
		return nil, ErrTargetIsBot
	case req.AttackerIsMod || req.TargetIsMod:
		return nil, ErrModerator
	}

	res := &ShutupResult{}
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		users := s.users.WithTx(tx)
		if _, err := users.Create(ctx, req.TargetID, 0); err != nil {
			return err
		}
		attacker, err := users.GetForUpdate(ctx, req.AttackerID)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return ErrNothingToSpend
			}
			return err
		}
		target, err := users.GetForUpdate(ctx, req.TargetID)
		if err != nil {
			return err
		}
		if attacker.Points <= target.Points {
			return fmt.Errorf("%w: you have %d, they have %d", ErrNotRicher, attacker.Points, target.Points)
		}

		res.Lost = attacker.Points / 2
		if res.Lost <= 0 {
			return ErrNothingToSpend
		}
		res.ToTax = res.Lost / 2
		res.ToTarget = res.Lost - res.ToTax

		res.Balance, err = users.AddPoints(ctx, req.AttackerID, -res.Lost)
		if err != nil {
			return err
		}
		if _, err := users.Apply(ctx, req.TargetID, model.LedgerDelta{Points: res.ToTarget}); err != nil {
			return err
		}
		return s.settings.WithTx(tx).AddTax(ctx, res.ToTax)
	})
	if err != nil {
		return nil, err
	}

	res.Timeout = time.Duration(1+s.src.IntN(ShutupMaxMinutes)) * time.Minute
	metrics.Tax("shutup", res.ToTax)
	log.Info().
		Int64("user_id", req.AttackerID).
		Int64("target_id", req.TargetID).
		Int64("amount", res.Lost).
		Dur("timeout", res.Timeout).
		Msg("Shutup purchased")
	return res, nil
}

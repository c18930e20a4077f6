package attack

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/effect"
)

// Defensive effect prices and durations. Purchase costs leave the economy.
const (
	DodgeCost          = 50
	DodgeDuration      = 5 * time.Minute
	DodgeCooldown      = 15 * time.Minute
	DodgeAttackLockout = 5 * time.Minute // no dodge right after attacking

	ShieldCost     = 500
	ShieldDuration = 15 * time.Minute
	ShieldCooldown = 30 * time.Minute

	CounterCost     = 1000
	CounterDuration = 15 * time.Minute
	CounterCooldown = 30 * time.Minute
)

// ErrEffectActive is returned when buying an effect that is still running.
var ErrEffectActive = errors.New("effect already active")

// Purchase is a bought defensive effect.
type Purchase struct {
	Cost      int64
	Duration  time.Duration
	Remaining int64 // buyer's balance afterwards
}

// Dodge buys a one-shot dodge. Its cooldown is persisted so restarts do not reset it.
func (s *Service) Dodge(ctx context.Context, userID int64, now time.Time) (*Purchase, error) {
	if active, _ := s.dodge.Active(userID, now); active {
		return nil, ErrEffectActive
	}
	if err := s.dodgeLockout.Check(userID, now); err != nil {
		return nil, err
	}

	unlock, err := s.userLock.TryLockAll(userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	p := &Purchase{Cost: DodgeCost, Duration: DodgeDuration}
	err = s.pool.InTx(ctx, func(tx pgx.Tx) error {
		users := s.users.WithTx(tx)
		u, err := users.GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if u.DodgeCooldownAt != nil {
			if until := u.DodgeCooldownAt.Add(DodgeCooldown); now.Before(until) {
				return &effect.CooldownError{Action: "dodge", Remaining: until.Sub(now)}
			}
		}
		if u.Points < DodgeCost {
			return ErrInsufficientFunds
		}
		if p.Remaining, err = users.Debit(ctx, userID, DodgeCost); err != nil {
			return err
		}
		return users.SetDodgeCooldown(ctx, userID, now)
	})
	if err != nil {
		return nil, err
	}

	s.dodge.Set(userID, now, DodgeDuration)
	log.Info().Int64("user_id", userID).Msg("Dodge activated")
	return p, nil
}

// Shield buys a shield that cuts successful steals to a quarter off.
func (s *Service) Shield(ctx context.Context, userID int64, now time.Time) (*Purchase, error) {
	if active, _ := s.shield.Active(userID, now); active {
		return nil, ErrEffectActive
	}
	if err := s.shieldCD.Check(userID, now); err != nil {
		return nil, err
	}

	remaining, err := s.buy(ctx, userID, ShieldCost)
	if err != nil {
		return nil, err
	}

	s.shield.Set(userID, now, ShieldDuration)
	s.shieldCD.Start(userID, now)
	log.Info().Int64("user_id", userID).Msg("Shield activated")
	return &Purchase{Cost: ShieldCost, Duration: ShieldDuration, Remaining: remaining}, nil
}

// Counter buys a counter against attackerID: that attacker's regular attacks
// on userID succeed at a fixed low chance.
func (s *Service) Counter(ctx context.Context, userID, attackerID int64, now time.Time) (*Purchase, error) {
	if userID == attackerID {
		return nil, ErrSelfTarget
	}
	if err := s.counterCD.Check(userID, now); err != nil {
		return nil, err
	}

	remaining, err := s.buy(ctx, userID, CounterCost)
	if err != nil {
		return nil, err
	}

	s.counter.Set(CounterKey{Holder: userID, Attacker: attackerID}, now, CounterDuration)
	s.counterCD.Start(userID, now)
	log.Info().Int64("user_id", userID).Int64("target_id", attackerID).Msg("Counter activated")
	return &Purchase{Cost: CounterCost, Duration: CounterDuration, Remaining: remaining}, nil
}

func (s *Service) buy(ctx context.Context, userID, cost int64) (int64, error) {
	unlock, err := s.userLock.TryLockAll(userID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	remaining, err := s.users.Debit(ctx, userID, cost)
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

// Effects summarises what protects userID right now.
type Effects struct {
	Dodge  time.Duration
	Shield time.Duration
}

// ActiveEffects reports remaining dodge and shield time for userID.
func (s *Service) ActiveEffects(userID int64, now time.Time) Effects {
	_, d := s.dodge.Active(userID, now)
	_, sh := s.shield.Active(userID, now)
	return Effects{Dodge: d, Shield: sh}
}

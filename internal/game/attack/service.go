package attack

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/effect"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/metrics"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/model"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/db"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/lock"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/rng"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/repository"
)

// Command limits and timings.
const (
	MinStake        = 25
	DefaultStake    = 50
	MinPierceStake  = 100
	MaxPierceStake  = 200
	MinBegStake     = 50
	MaxBegStake     = 500
	ProtectedFine   = -1000 // balance set on anyone attacking a protected user
	HistoryWindow   = 24 * time.Hour
	HistoryLimit    = 25
	AttackCooldown  = 20 * time.Second
	BegCooldown     = 60 * time.Second
	MinMultiTimes   = 2
	MaxMultiTimes   = 30
	MultiCooldown   = 5 * time.Minute
	MultiDelay      = 30 * time.Second
	MultiFastDelay  = 10 * time.Second
	MaxCeasefireMin = 60
)

// Errors for the attack family.
var (
	ErrSelfTarget        = errors.New("cannot target yourself")
	ErrInvalidStake      = errors.New("stake out of range")
	ErrInsufficientFunds = errors.New("not enough points for this stake")
	ErrTargetTooPoor     = errors.New("target does not have enough points")
	ErrTargetLossCap     = errors.New("target already lost the daily maximum")
	ErrGainCap           = errors.New("daily attack gain limit reached")
	ErrProtectedTarget   = errors.New("target is protected")
	ErrCeasefire         = errors.New("ceasefire is active in this channel")
	ErrInvalidTimes      = errors.New("number of attacks out of range")
	ErrInvalidDuration   = errors.New("duration out of range")
)

// CounterKey identifies a counter held by Holder against Attacker.
type CounterKey struct {
	Holder   int64
	Attacker int64
}

// Request is a single wager.
type Request struct {
	AttackerID int64
	TargetID   int64
	Amount     int64
	ChannelID  string
	Now        time.Time
}

// Result is a committed wager.
type Result struct {
	Outcome        Outcome
	AttackerPoints int64
	TargetPoints   int64
}

// Service runs wagers against the ledger.
type Service struct {
	pool     db.TxRunner
	users    *repository.UserRepository
	settings *repository.SettingsRepository
	history  *repository.AttackHistoryRepository
	userLock *lock.UserLock
	src      rng.Source

	// In-memory state (resets on restart)
	dodge        *effect.Registry[int64]
	shield       *effect.Registry[int64]
	counter      *effect.Registry[CounterKey]
	ceasefire    *effect.Registry[string]
	dodgeLockout *effect.Cooldown[int64]
	attackCD     *effect.Cooldown[int64]
	multiCD      *effect.Cooldown[int64]
	begCD        *effect.Cooldown[int64]
	shieldCD     *effect.Cooldown[int64]
	counterCD    *effect.Cooldown[int64]

	protected func(userID int64) bool
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewService creates a new attack Service.
func NewService(
	pool db.TxRunner,
	users *repository.UserRepository,
	settings *repository.SettingsRepository,
	history *repository.AttackHistoryRepository,
	userLock *lock.UserLock,
	src rng.Source,
) *Service {
	return &Service{
		pool:         pool,
		users:        users,
		settings:     settings,
		history:      history,
		userLock:     userLock,
		src:          src,
		dodge:        effect.NewRegistry[int64](effect.DefaultCapacity, time.Hour),
		shield:       effect.NewRegistry[int64](effect.DefaultCapacity, time.Hour),
		counter:      effect.NewRegistry[CounterKey](effect.DefaultCapacity, time.Hour),
		ceasefire:    effect.NewRegistry[string](effect.DefaultCapacity, 2*time.Hour),
		dodgeLockout: effect.NewCooldown[int64]("dodge after attacking", DodgeAttackLockout),
		attackCD:     effect.NewCooldown[int64]("attack", AttackCooldown),
		multiCD:      effect.NewCooldown[int64]("multiattack", MultiCooldown),
		begCD:        effect.NewCooldown[int64]("beg attack", BegCooldown),
		shieldCD:     effect.NewCooldown[int64]("shield", ShieldCooldown),
		counterCD:    effect.NewCooldown[int64]("counter", CounterCooldown),
		protected:    func(int64) bool { return false },
		now:          time.Now,
		sleep:        sleepCtx,
	}
}

// SetProtected installs the check for users nobody may attack.
func (s *Service) SetProtected(fn func(userID int64) bool) {
	s.protected = fn
}

// SetClock replaces the time source and the wait used between multiattack hits.
func (s *Service) SetClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) {
	s.now = now
	s.sleep = sleep
}

// Attack resolves a regular attack.
func (s *Service) Attack(ctx context.Context, req Request) (*Result, error) {
	if req.Amount < MinStake {
		return nil, fmt.Errorf("%w: minimum is %d", ErrInvalidStake, MinStake)
	}
	if err := s.precheck(ctx, req); err != nil {
		return nil, err
	}
	if err := s.attackCD.Check(req.AttackerID, req.Now); err != nil {
		return nil, err
	}

	res, err := s.resolve(ctx, KindAttack, req)
	if err != nil {
		return nil, err
	}
	s.attackCD.Start(req.AttackerID, req.Now)
	return res, nil
}

// Pierce resolves a pierce: it only lands while the target holds a dodge.
func (s *Service) Pierce(ctx context.Context, req Request) (*Result, error) {
	if req.Amount < MinPierceStake || req.Amount > MaxPierceStake {
		return nil, fmt.Errorf("%w: pierce must be %d-%d", ErrInvalidStake, MinPierceStake, MaxPierceStake)
	}
	if err := s.precheck(ctx, req); err != nil {
		return nil, err
	}
	if err := s.attackCD.Check(req.AttackerID, req.Now); err != nil {
		return nil, err
	}

	res, err := s.resolve(ctx, KindPierce, req)
	if err != nil {
		return nil, err
	}
	s.attackCD.Start(req.AttackerID, req.Now)
	return res, nil
}

// BegAttack resolves an attack on a beggar from the beg panel.
func (s *Service) BegAttack(ctx context.Context, req Request) (*Result, error) {
	if req.Amount < MinBegStake || req.Amount > MaxBegStake {
		return nil, fmt.Errorf("%w: beg attack must be %d-%d", ErrInvalidStake, MinBegStake, MaxBegStake)
	}
	if err := s.precheck(ctx, req); err != nil {
		return nil, err
	}
	if err := s.begCD.Check(req.AttackerID, req.Now); err != nil {
		return nil, err
	}

	res, err := s.resolve(ctx, KindBeg, req)
	if err != nil {
		return nil, err
	}
	s.begCD.Start(req.AttackerID, req.Now)
	return res, nil
}

// precheck applies rules shared by every wager before any balance is read.
func (s *Service) precheck(ctx context.Context, req Request) error {
	if req.AttackerID == req.TargetID {
		return ErrSelfTarget
	}
	if req.ChannelID != "" {
		if active, _ := s.ceasefire.Active(req.ChannelID, req.Now); active {
			return ErrCeasefire
		}
	}
	if s.protected(req.TargetID) {
		if err := s.users.SetPoints(ctx, req.AttackerID, ProtectedFine); err != nil {
			return fmt.Errorf("failed to fine attacker: %w", err)
		}
		log.Warn().
			Int64("user_id", req.AttackerID).
			Int64("target_id", req.TargetID).
			Msg("Attack on protected user, balance reset")
		return ErrProtectedTarget
	}
	return nil
}

// resolve locks both users, rolls and applies the outcome in one transaction.
func (s *Service) resolve(ctx context.Context, kind Kind, req Request) (*Result, error) {
	unlock, err := s.userLock.TryLockAll(req.AttackerID, req.TargetID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		res            Result
		dodgeConsumed  bool
		dodgeRemaining time.Duration
	)

	err = s.pool.InTx(ctx, func(tx pgx.Tx) error {
		users := s.users.WithTx(tx)

		attacker, err := users.GetForUpdate(ctx, req.AttackerID)
		if err != nil {
			return err
		}
		target, err := users.GetForUpdate(ctx, req.TargetID)
		if err != nil {
			return err
		}

		switch {
		case attacker.Points < req.Amount:
			return ErrInsufficientFunds
		case target.Points < req.Amount:
			return ErrTargetTooPoor
		case target.CumulativeDefenseLosses >= DailyLossCap:
			return ErrTargetLossCap
		case attacker.CumulativeAttackGains >= DailyGainCap:
			return ErrGainCap
		}

		var active bool
		active, dodgeRemaining = s.dodge.Active(req.TargetID, req.Now)
		if active {
			dodgeConsumed = s.dodge.Consume(req.TargetID, req.Now)
		}
		shielded, _ := s.shield.Active(req.TargetID, req.Now)
		countered := false
		if kind == KindAttack {
			countered, _ = s.counter.Active(CounterKey{Holder: req.TargetID, Attacker: req.AttackerID}, req.Now)
		}

		out := Resolve(Input{
			Kind:           kind,
			Stake:          req.Amount,
			AttackerGains:  attacker.CumulativeAttackGains,
			DefenderPoints: target.Points,
			Dodge:          dodgeConsumed,
			Shield:         shielded,
			Countered:      countered,
		}, s.src)

		if res.AttackerPoints, err = users.Apply(ctx, req.AttackerID, out.Attacker); err != nil {
			return err
		}
		if res.TargetPoints, err = users.Apply(ctx, req.TargetID, out.Defender); err != nil {
			return err
		}
		if err := s.settings.WithTx(tx).AddTax(ctx, out.Tax); err != nil {
			return err
		}

		out.Record.AttackerID = req.AttackerID
		out.Record.TargetID = req.TargetID
		out.Record.CreatedAt = req.Now
		if err := s.history.WithTx(tx).Create(ctx, &out.Record); err != nil {
			return err
		}

		res.Outcome = out
		return nil
	})
	if err != nil {
		if dodgeConsumed {
			s.dodge.Set(req.TargetID, req.Now, dodgeRemaining)
		}
		return nil, err
	}

	s.dodgeLockout.Start(req.AttackerID, req.Now)
	metrics.Wager(kind.String(), res.Outcome.Success)
	metrics.Tax(kind.String(), res.Outcome.Tax)

	log.Info().
		Str("kind", kind.String()).
		Int64("user_id", req.AttackerID).
		Int64("target_id", req.TargetID).
		Int64("amount", res.Outcome.Stake).
		Bool("success", res.Outcome.Success).
		Bool("dodged", res.Outcome.Dodged).
		Int64("net", res.Outcome.Net()).
		Int64("tax", res.Outcome.Tax).
		Msg("Wager resolved")

	return &res, nil
}

// History returns attacks against userID within the last day.
func (s *Service) History(ctx context.Context, userID int64, now time.Time) ([]model.AttackRecord, error) {
	return s.history.ListAgainst(ctx, userID, now.Add(-HistoryWindow), HistoryLimit)
}

// Ceasefire blocks wagers in channelID for the given number of minutes.
func (s *Service) Ceasefire(channelID string, minutes int, now time.Time) error {
	if minutes < 1 || minutes > MaxCeasefireMin {
		return fmt.Errorf("%w: 1-%d minutes", ErrInvalidDuration, MaxCeasefireMin)
	}
	s.ceasefire.Set(channelID, now, time.Duration(minutes)*time.Minute)
	log.Info().Str("channel_id", channelID).Int("minutes", minutes).Msg("Ceasefire started")
	return nil
}

// EndCeasefire lifts a ceasefire early.
func (s *Service) EndCeasefire(channelID string) {
	s.ceasefire.Remove(channelID)
}

// CeasefireActive reports whether channelID is under a ceasefire.
func (s *Service) CeasefireActive(channelID string, now time.Time) (bool, time.Duration) {
	return s.ceasefire.Active(channelID, now)
}

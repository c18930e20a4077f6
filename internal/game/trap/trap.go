// Package trap implements channel-scoped trigger-word traps.
package trap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/effect"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/metrics"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/model"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/db"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/lock"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/repository"
)

// Constants for trap configuration
const (
	MinTriggerLen     = 5
	MaxTriggerLen     = 50
	MinCost           = 10
	MaxCost           = 500
	DefaultCost       = 40
	TTL               = 15 * time.Minute
	CreatorCooldown   = 30 * time.Minute
	TriggerMultiplier = 5  // victim pays creator cost×5
	CounterMultiplier = 10 // a correct counter takes cost×10 from the creator
	CounterTaxPercent = 10
	CheckCost         = 100
	PenaltyDuration   = 24 * time.Hour
)

// Errors for the trap engine
var (
	ErrInvalidTrigger    = errors.New("trigger must be 5-50 characters")
	ErrInvalidCost       = errors.New("cost out of range")
	ErrInsufficientFunds = errors.New("not enough points")
	ErrNoTrap            = errors.New("no trap with that trigger")
	ErrOwnTrap           = errors.New("cannot counter your own trap")
)

// Trap is an armed trigger phrase.
type Trap struct {
	ChannelID string
	Trigger   string // as typed by the creator
	CreatorID int64
	Cost      int64
	CreatedAt time.Time
}

func (t *Trap) expired(now time.Time) bool {
	return !now.Before(t.CreatedAt.Add(TTL))
}

// SetResult reports what Set did.
type SetResult struct {
	Rearmed   bool  // an identical trigger was already armed; nothing was charged
	Cost      int64 // requested cost, charged only when the trap is new
	Remaining int64
}

// Trigger is a fired trap.
type Trigger struct {
	Trap     Trap
	VictimID int64
	Amount   int64 // moved from victim to creator; zero on the penalty path
	Penalty  bool  // victim could not pay and gets the penalty role
}

// CounterResult is a settled counter attempt.
type CounterResult struct {
	Trap        Trap
	Gained      int64
	Tax         int64
	CreatorLost int64
}

// Engine keeps armed traps in memory and settles triggers against the ledger.
type Engine struct {
	mu    sync.RWMutex
	traps map[string][]*Trap // channel id -> traps in arming order

	pool          db.TxRunner
	users         *repository.UserRepository
	settings      *repository.SettingsRepository
	roles         *repository.RoleRepository
	userLock      *lock.UserLock
	cooldown      *effect.Cooldown[int64]
	penaltyRoleID string
}

// NewEngine creates a trap engine. penaltyRoleID may be empty, in which case
// unpaid triggers only remove the trap.
func NewEngine(
	pool db.TxRunner,
	users *repository.UserRepository,
	settings *repository.SettingsRepository,
	roles *repository.RoleRepository,
	userLock *lock.UserLock,
	penaltyRoleID string,
) *Engine {
	return &Engine{
		traps:         make(map[string][]*Trap),
		pool:          pool,
		users:         users,
		settings:      settings,
		roles:         roles,
		userLock:      userLock,
		cooldown:      effect.NewCooldown[int64]("trap", CreatorCooldown),
		penaltyRoleID: penaltyRoleID,
	}
}

// PenaltyRoleID returns the role applied to victims who cannot pay.
func (e *Engine) PenaltyRoleID() string {
	return e.penaltyRoleID
}

// Set arms a trap. Re-arming a trigger already armed in the channel
// (case-insensitive) charges nothing and leaves the existing trap as it is,
// but still starts the creator cooldown so the two cases look the same.
func (e *Engine) Set(ctx context.Context, creatorID int64, channelID, trigger string, cost int64, now time.Time) (*SetResult, error) {
	trigger = strings.TrimSpace(trigger)
	if n := utf8.RuneCountInString(trigger); n < MinTriggerLen || n > MaxTriggerLen {
		return nil, ErrInvalidTrigger
	}
	if cost < MinCost || cost > MaxCost {
		return nil, fmt.Errorf("%w: %d-%d", ErrInvalidCost, MinCost, MaxCost)
	}
	if err := e.cooldown.Check(creatorID, now); err != nil {
		return nil, err
	}

	points, err := e.users.Points(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	if points < cost {
		return nil, ErrInsufficientFunds
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.findLocked(channelID, now, func(t *Trap) bool { return strings.EqualFold(t.Trigger, trigger) }) >= 0 {
		e.cooldown.Start(creatorID, now)
		return &SetResult{Rearmed: true, Cost: cost, Remaining: points}, nil
	}

	remaining, err := e.users.Debit(ctx, creatorID, cost)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientPoints) {
			return nil, ErrInsufficientFunds
		}
		return nil, err
	}

	e.traps[channelID] = append(e.traps[channelID], &Trap{
		ChannelID: channelID,
		Trigger:   trigger,
		CreatorID: creatorID,
		Cost:      cost,
		CreatedAt: now,
	})
	e.cooldown.Start(creatorID, now)

	log.Info().
		Int64("user_id", creatorID).
		Str("channel_id", channelID).
		Int64("cost", cost).
		Msg("Trap armed")

	return &SetResult{Cost: cost, Remaining: remaining}, nil
}

// findLocked returns the index of the first live trap in channelID matching fn.
// Callers hold e.mu.
func (e *Engine) findLocked(channelID string, now time.Time, fn func(*Trap) bool) int {
	for i, t := range e.traps[channelID] {
		if !t.expired(now) && fn(t) {
			return i
		}
	}
	return -1
}

// takeLocked removes and returns the trap at index i. Callers hold e.mu.
func (e *Engine) takeLocked(channelID string, i int) *Trap {
	list := e.traps[channelID]
	t := list[i]
	list = append(list[:i:i], list[i+1:]...)
	if len(list) == 0 {
		delete(e.traps, channelID)
	} else {
		e.traps[channelID] = list
	}
	return t
}

// restore puts a claimed trap back after a failed settlement.
func (e *Engine) restore(t *Trap) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.traps[t.ChannelID] = append(e.traps[t.ChannelID], t)
}

// OnMessage fires at most one trap whose trigger appears in content. It
// returns nil when nothing fired.
func (e *Engine) OnMessage(ctx context.Context, authorID int64, channelID, content string, now time.Time) (*Trigger, error) {
	e.mu.RLock()
	_, armed := e.traps[channelID]
	e.mu.RUnlock()
	if !armed {
		return nil, nil
	}

	lower := strings.ToLower(content)

	e.mu.Lock()
	e.pruneChannelLocked(channelID, now)
	i := e.findLocked(channelID, now, func(t *Trap) bool {
		return t.CreatorID != authorID && strings.Contains(lower, strings.ToLower(t.Trigger))
	})
	if i < 0 {
		e.mu.Unlock()
		return nil, nil
	}
	t := e.takeLocked(channelID, i)
	e.mu.Unlock()

	unlock := e.userLock.LockAll(authorID, t.CreatorID)
	defer unlock()

	res := &Trigger{Trap: *t, VictimID: authorID}
	loss := TriggerMultiplier * t.Cost

	err := e.pool.InTx(ctx, func(tx pgx.Tx) error {
		users := e.users.WithTx(tx)

		var balance int64
		victim, err := users.GetForUpdate(ctx, authorID)
		switch {
		case err == nil:
			balance = victim.Points
		case errors.Is(err, repository.ErrUserNotFound):
		default:
			return err
		}

		if balance < loss {
			res.Penalty = true
			if e.penaltyRoleID == "" {
				return nil
			}
			return e.roles.WithTx(tx).GrantTemp(ctx, authorID, e.penaltyRoleID, now.Add(PenaltyDuration))
		}

		if _, err := users.Apply(ctx, authorID, model.LedgerDelta{Points: -loss}); err != nil {
			return err
		}
		if _, err := users.Apply(ctx, t.CreatorID, model.LedgerDelta{
			Points: loss,
			Profit: model.Profit{Trap: loss},
		}); err != nil {
			return err
		}
		res.Amount = loss
		return nil
	})
	if err != nil {
		e.restore(t)
		return nil, fmt.Errorf("failed to settle trap: %w", err)
	}

	log.Info().
		Int64("user_id", authorID).
		Int64("creator_id", t.CreatorID).
		Str("channel_id", channelID).
		Int64("amount", res.Amount).
		Bool("penalty", res.Penalty).
		Msg("Trap triggered")

	return res, nil
}

// Counter lets a challenger guess a trap's exact trigger. The cost is paid
// up front and kept unless the guess names the challenger's own trap.
func (e *Engine) Counter(ctx context.Context, challengerID int64, channelID, guess string, cost int64, now time.Time) (*CounterResult, error) {
	guess = strings.TrimSpace(guess)
	if n := utf8.RuneCountInString(guess); n < MinTriggerLen || n > MaxTriggerLen {
		return nil, ErrInvalidTrigger
	}
	if cost < MinCost || cost > MaxCost {
		return nil, fmt.Errorf("%w: %d-%d", ErrInvalidCost, MinCost, MaxCost)
	}

	if _, err := e.users.Debit(ctx, challengerID, cost); err != nil {
		if errors.Is(err, repository.ErrInsufficientPoints) {
			return nil, ErrInsufficientFunds
		}
		return nil, err
	}

	e.mu.Lock()
	i := e.findLocked(channelID, now, func(t *Trap) bool { return t.Trigger == guess })
	if i < 0 {
		e.mu.Unlock()
		return nil, ErrNoTrap
	}
	if e.traps[channelID][i].CreatorID == challengerID {
		e.mu.Unlock()
		if _, err := e.users.AddPoints(ctx, challengerID, cost); err != nil {
			return nil, fmt.Errorf("failed to refund counter: %w", err)
		}
		return nil, ErrOwnTrap
	}
	t := e.takeLocked(channelID, i)
	e.mu.Unlock()

	gain := CounterMultiplier * cost
	tax := gain * CounterTaxPercent / 100
	res := &CounterResult{Trap: *t, Gained: gain - tax, Tax: tax, CreatorLost: gain}

	unlock := e.userLock.LockAll(challengerID, t.CreatorID)
	defer unlock()

	err := e.pool.InTx(ctx, func(tx pgx.Tx) error {
		users := e.users.WithTx(tx)
		if _, err := users.Apply(ctx, challengerID, model.LedgerDelta{Points: res.Gained}); err != nil {
			return err
		}
		// the creator may go negative
		if _, err := users.Apply(ctx, t.CreatorID, model.LedgerDelta{
			Points: -gain,
			Profit: model.Profit{Trap: -gain},
		}); err != nil {
			return err
		}
		return e.settings.WithTx(tx).AddTax(ctx, tax)
	})
	if err != nil {
		e.restore(t)
		return nil, fmt.Errorf("failed to settle counter: %w", err)
	}

	metrics.Tax("trap", tax)
	log.Info().
		Int64("user_id", challengerID).
		Int64("creator_id", t.CreatorID).
		Int64("gained", res.Gained).
		Int64("tax", tax).
		Msg("Trap countered")

	return res, nil
}

// Check charges userID CheckCost and returns how many traps are armed in channelID.
func (e *Engine) Check(ctx context.Context, userID int64, channelID string, now time.Time) (int, error) {
	if _, err := e.users.Debit(ctx, userID, CheckCost); err != nil {
		if errors.Is(err, repository.ErrInsufficientPoints) {
			return 0, ErrInsufficientFunds
		}
		return 0, err
	}
	return e.Count(channelID, now), nil
}

// Count returns the number of live traps in channelID.
func (e *Engine) Count(channelID string, now time.Time) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := 0
	for _, t := range e.traps[channelID] {
		if !t.expired(now) {
			n++
		}
	}
	return n
}

func (e *Engine) pruneChannelLocked(channelID string, now time.Time) int {
	list := e.traps[channelID]
	kept := list[:0]
	for _, t := range list {
		if !t.expired(now) {
			kept = append(kept, t)
		}
	}
	removed := len(list) - len(kept)
	if len(kept) == 0 {
		delete(e.traps, channelID)
	} else {
		e.traps[channelID] = kept
	}
	return removed
}

// Prune drops expired traps everywhere and returns how many were removed.
// Expired traps pay nothing.
func (e *Engine) Prune(now time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	removed := 0
	for channelID := range e.traps {
		removed += e.pruneChannelLocked(channelID, now)
	}
	return removed
}

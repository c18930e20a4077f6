// Package lottery implements the two-number shared-pool lottery.
package lottery

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/metrics"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/model"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/db"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/lock"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/rng"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/repository"
)

// Constants for lottery configuration
const (
	MinNumber     = 0
	MaxNumber     = 99
	TicketPrice   = 100
	MaxTickets    = 10 // per user per draw
	TaxPercent    = 10 // taken from each half that has winners
	ResetFloor    = 5000
	WinningTotal  = 2
	numberOptions = MaxNumber - MinNumber + 1
)

// Errors for the lottery
var (
	ErrInvalidNumber     = errors.New("numbers must be 0-99")
	ErrNoNumbers         = errors.New("pick at least one number")
	ErrTicketLimit       = errors.New("ticket limit reached")
	ErrInsufficientFunds = errors.New("not enough points")
	ErrNoEntries         = errors.New("no lottery tickets have been purchased")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

// Purchase is a completed ticket purchase.
type Purchase struct {
	Numbers   []int
	Cost      int64
	Held      int // tickets held after the purchase
	Pool      int64
	Remaining int64
}

// Prize is one half of the pool.
type Prize struct {
	Number    int
	Amount    int64   // the half before tax
	Tax       int64
	Winners   []int64 // one entry per winning ticket
	PerWinner int64
}

// Draw is a settled draw.
type Draw struct {
	Pool    int64
	Prizes  [WinningTotal]Prize
	Dust    int64 // split remainders and an odd pool point, sent to the tax pool
	NewPool int64
}

// Paid reports whether any half had winners.
func (d *Draw) Paid() bool {
	for _, p := range d.Prizes {
		if len(p.Winners) > 0 {
			return true
		}
	}
	return false
}

// Status is a user's view of the current draw.
type Status struct {
	Pool    int64
	Numbers []int
}

// Settle computes a draw over pool for the two winning numbers. It does not
// touch the ledger.
func Settle(pool int64, numbers [WinningTotal]int, entries []model.LotteryEntry) Draw {
	d := Draw{Pool: pool}
	half := pool / 2
	var unclaimed int64

	for i, n := range numbers {
		p := Prize{Number: n, Amount: half}
		for _, e := range entries {
			if e.Number == n {
				p.Winners = append(p.Winners, e.UserID)
			}
		}
		if len(p.Winners) == 0 {
			unclaimed += half
		} else {
			p.Tax = half * TaxPercent / 100
			net := half - p.Tax
			p.PerWinner = net / int64(len(p.Winners))
			d.Dust += net - p.PerWinner*int64(len(p.Winners))
		}
		d.Prizes[i] = p
	}

	d.NewPool = pool
	if d.Paid() {
		d.Dust += pool % 2
		d.NewPool = ResetFloor + unclaimed
	}
	return d
}

// Service sells tickets and runs draws.
type Service struct {
	pool     db.TxRunner
	users    *repository.UserRepository
	settings *repository.SettingsRepository
	entries  *repository.LotteryRepository
	userLock *lock.UserLock
	src      rng.Source
}

// NewService creates a new lottery Service.
func NewService(
	pool db.TxRunner,
	users *repository.UserRepository,
	settings *repository.SettingsRepository,
	entries *repository.LotteryRepository,
	userLock *lock.UserLock,
	src rng.Source,
) *Service {
	return &Service{
		pool:     pool,
		users:    users,
		settings: settings,
		entries:  entries,
		userLock: userLock,
		src:      src,
	}
}

// Buy purchases one ticket per number.
func (s *Service) Buy(ctx context.Context, userID int64, numbers []int) (*Purchase, error) {
	if len(numbers) == 0 {
		return nil, ErrNoNumbers
	}
	for _, n := range numbers {
		if n < MinNumber || n > MaxNumber {
			return nil, ErrInvalidNumber
		}
	}
	return s.buy(ctx, userID, len(numbers), func(int) []int { return numbers })
}

// BuyRandom purchases count tickets on distinct random numbers.
func (s *Service) BuyRandom(ctx context.Context, userID int64, count int) (*Purchase, error) {
	if count < 1 || count > MaxTickets {
		return nil, fmt.Errorf("%w: buy 1-%d", ErrTicketLimit, MaxTickets)
	}
	return s.buy(ctx, userID, count, func(n int) []int {
		picked := rng.Distinct(s.src, numberOptions, n)
		for i := range picked {
			picked[i] += MinNumber
		}
		return picked
	})
}

// buy runs a purchase of want tickets; pick chooses the numbers.
func (s *Service) buy(ctx context.Context, userID int64, want int, pick func(n int) []int) (*Purchase, error) {
	unlock := s.userLock.LockAll(userID)
	defer unlock()

	var p Purchase
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		users := s.users.WithTx(tx)
		entries := s.entries.WithTx(tx)

		u, err := users.GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		held, err := entries.CountForUser(ctx, userID)
		if err != nil {
			return err
		}
		if held+want > MaxTickets {
			return fmt.Errorf("%w: you hold %d of %d", ErrTicketLimit, held, MaxTickets)
		}

		p.Numbers = pick(want)
		p.Cost = int64(len(p.Numbers)) * TicketPrice
		if u.Points < p.Cost {
			return ErrInsufficientFunds
		}

		if p.Remaining, err = users.Apply(ctx, userID, model.LedgerDelta{Points: -p.Cost}); err != nil {
			return err
		}
		if err := entries.Insert(ctx, userID, p.Numbers); err != nil {
			return err
		}
		if p.Pool, err = s.settings.WithTx(tx).AddInt(ctx, repository.SettingLotteryPool, p.Cost); err != nil {
			return err
		}
		p.Held = held + len(p.Numbers)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("user_id", userID).
		Ints("numbers", p.Numbers).
		Int64("pool", p.Pool).
		Msg("Lottery tickets bought")

	return &p, nil
}

// Draw picks two distinct numbers, pays each half to its ticket holders and
// clears every ticket.
func (s *Service) Draw(ctx context.Context) (*Draw, error) {
	var d Draw
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		entries := s.entries.WithTx(tx)
		settings := s.settings.WithTx(tx)
		users := s.users.WithTx(tx)

		// Adding zero row-locks the pool, so purchases racing the draw wait
		// and their tickets carry over to the next one.
		pool, err := settings.AddInt(ctx, repository.SettingLotteryPool, 0)
		if err != nil {
			return err
		}
		all, err := entries.All(ctx)
		if err != nil {
			return err
		}
		if len(all) == 0 {
			return ErrNoEntries
		}

		picked := rng.Distinct(s.src, numberOptions, WinningTotal)
		d = Settle(pool, [WinningTotal]int{picked[0] + MinNumber, picked[1] + MinNumber}, all)

		var tax int64
		for _, p := range d.Prizes {
			tax += p.Tax
			for _, id := range p.Winners {
				if _, err := users.Apply(ctx, id, model.LedgerDelta{Points: p.PerWinner}); err != nil {
					return fmt.Errorf("failed to pay winner %d: %w", id, err)
				}
			}
		}
		if err := settings.AddTax(ctx, tax+d.Dust); err != nil {
			return err
		}
		if err := settings.SetInt(ctx, repository.SettingLotteryPool, d.NewPool); err != nil {
			return err
		}
		return entries.Clear(ctx)
	})
	if err != nil {
		return nil, err
	}

	metrics.Tax("lottery", d.Prizes[0].Tax+d.Prizes[1].Tax+d.Dust)
	log.Info().
		Int("number_1", d.Prizes[0].Number).
		Int("number_2", d.Prizes[1].Number).
		Int64("pool", d.Pool).
		Int64("new_pool", d.NewPool).
		Bool("paid", d.Paid()).
		Msg("Lottery drawn")

	return &d, nil
}

// Status returns the pool and userID's numbers.
func (s *Service) Status(ctx context.Context, userID int64) (*Status, error) {
	pool, err := s.Pool(ctx)
	if err != nil {
		return nil, err
	}
	numbers, err := s.entries.NumbersForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	slices.Sort(numbers)
	return &Status{Pool: pool, Numbers: numbers}, nil
}

// Pool returns the current prize pool.
func (s *Service) Pool(ctx context.Context) (int64, error) {
	return s.settings.GetInt(ctx, repository.SettingLotteryPool, ResetFloor)
}

// AddPrize adds minted points to the pool.
func (s *Service) AddPrize(ctx context.Context, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	pool, err := s.settings.AddInt(ctx, repository.SettingLotteryPool, amount)
	if err != nil {
		return 0, err
	}
	log.Info().Int64("amount", amount).Int64("pool", pool).Msg("Lottery prize added")
	return pool, nil
}

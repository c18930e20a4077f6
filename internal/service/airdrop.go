package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/db"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/rng"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/repository"
)

// Airdrop limits
const (
	AirdropMaxAmount  = 10000
	AirdropMaxUsers   = 100
	airdropCapacity   = 1000
	airdropTTL        = 24 * time.Hour
	airdropPoorWealth = 1000
	airdropMidWealth  = 3000
)

// Airdrop errors
var (
	ErrAlreadyClaimed  = errors.New("already claimed this airdrop")
	ErrAirdropEnded    = errors.New("airdrop has ended")
	ErrInvalidAirdrop  = errors.New("invalid airdrop parameters")
	ErrEmptyTaxPool    = errors.New("tax pool is empty")
	ErrNoRecipients    = errors.New("no eligible recipients")
	ErrAirdropTooSmall = errors.New("airdrop too small to split")
)

// ClaimOutcome is the multiplier a claimer rolled.
type ClaimOutcome string

// Claim outcomes
const (
	ClaimDouble  ClaimOutcome = "double"
	ClaimNormal  ClaimOutcome = "normal"
	ClaimHalf    ClaimOutcome = "half"
	ClaimNothing ClaimOutcome = "nothing"
)

// Claim is one user's share of a reaction airdrop.
type Claim struct {
	Outcome   ClaimOutcome
	Amount    int64
	Balance   int64
	Claimed   int
	MaxUsers  int
	Finished  bool
	CreatorID int64
}

type airdrop struct {
	creatorID int64
	amount    int64
	maxUsers  int
	claimed   map[int64]bool
}

// TaxDrop is the outcome of distributing the tax pool.
type TaxDrop struct {
	Amount     int64
	PerUser    int64
	Recipients int
	PoolLeft   int64
}

// AirdropService runs reaction airdrops and tax pool giveaways.
type AirdropService struct {
	pool     db.TxRunner
	users    *repository.UserRepository
	settings *repository.SettingsRepository
	src      rng.Source

	mu    sync.Mutex
	drops *expirable.LRU[string, *airdrop]
}

// NewAirdropService creates a new AirdropService instance.
func NewAirdropService(
	pool db.TxRunner,
	users *repository.UserRepository,
	settings *repository.SettingsRepository,
	src rng.Source,
) *AirdropService {
	return &AirdropService{
		pool:     pool,
		users:    users,
		settings: settings,
		src:      src,
		drops:    expirable.NewLRU[string, *airdrop](airdropCapacity, nil, airdropTTL),
	}
}

// Start registers messageID as an open airdrop.
func (s *AirdropService) Start(messageID string, creatorID, amount int64, maxUsers int) error {
	if amount < 1 || amount > AirdropMaxAmount || maxUsers < 1 || maxUsers > AirdropMaxUsers {
		return ErrInvalidAirdrop
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drops.Add(messageID, &airdrop{
		creatorID: creatorID,
		amount:    amount,
		maxUsers:  maxUsers,
		claimed:   make(map[int64]bool),
	})
	log.Info().Str("message_id", messageID).Int64("amount", amount).Int("max_users", maxUsers).Msg("Airdrop started")
	return nil
}

// Open reports whether messageID is a running airdrop.
func (s *AirdropService) Open(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drops.Contains(messageID)
}

// Claim pays userID's share of the airdrop on messageID. It returns nil with
// no error when messageID is not an airdrop.
func (s *AirdropService) Claim(ctx context.Context, messageID string, userID int64) (*Claim, error) {
	s.mu.Lock()
	d, ok := s.drops.Get(messageID)
	if !ok {
		s.mu.Unlock()
		return nil, nil
	}
	if d.claimed[userID] {
		s.mu.Unlock()
		return nil, ErrAlreadyClaimed
	}
	if len(d.claimed) >= d.maxUsers {
		s.mu.Unlock()
		return nil, ErrAirdropEnded
	}
	d.claimed[userID] = true
	c := &Claim{Claimed: len(d.claimed), MaxUsers: d.maxUsers, CreatorID: d.creatorID}
	if c.Claimed >= d.maxUsers {
		c.Finished = true
		s.drops.Remove(messageID)
	}
	s.mu.Unlock()

	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		users := s.users.WithTx(tx)
		if _, err := users.Create(ctx, userID, 0); err != nil {
			return err
		}
		u, err := users.GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		c.Outcome, c.Amount = rollClaim(s.src, u.Wealth(), d.amount)
		c.Balance, err = users.AddPoints(ctx, userID, c.Amount)
		return err
	})
	if err != nil {
		s.release(messageID, d, userID)
		return nil, err
	}

	log.Info().
		Str("message_id", messageID).
		Int64("user_id", userID).
		Str("outcome", string(c.Outcome)).
		Int64("amount", c.Amount).
		Msg("Airdrop claimed")
	return c, nil
}

func (s *AirdropService) release(messageID string, d *airdrop, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(d.claimed, userID)
	if !s.drops.Contains(messageID) {
		s.drops.Add(messageID, d)
	}
}

// rollClaim favours poorer users.
func rollClaim(src rng.Source, wealth, amount int64) (ClaimOutcome, int64) {
	roll := src.Float64()
	switch {
	case wealth < airdropPoorWealth:
		if roll < 0.75 {
			return ClaimDouble, amount * 2
		}
		return ClaimNormal, amount
	case wealth < airdropMidWealth:
		if roll < 0.20 {
			return ClaimDouble, amount * 2
		}
		return ClaimNormal, amount
	}
	switch {
	case roll < 0.02:
		return ClaimDouble, amount * 2
	case roll < 0.10:
		return ClaimNormal, amount
	case roll < 0.50:
		return ClaimHalf, amount / 2
	}
	return ClaimNothing, 0
}

// DistributeTax splits percent of the tax pool evenly among every user with
// a positive balance. The undivisible remainder stays in the pool.
func (s *AirdropService) DistributeTax(ctx context.Context, percent int64) (*TaxDrop, error) {
	if percent < 1 || percent > 100 {
		return nil, ErrInvalidAirdrop
	}
	drop := &TaxDrop{}
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		settings := s.settings.WithTx(tx)
		users := s.users.WithTx(tx)

		// lock the pool row for the whole distribution
		pool, err := settings.AddInt(ctx, repository.SettingTaxPool, 0)
		if err != nil {
			return err
		}
		if pool <= 0 {
			return ErrEmptyTaxPool
		}
		ids, err := users.ListPositiveIDs(ctx)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return ErrNoRecipients
		}

		share := pool * percent / 100
		drop.PerUser = share / int64(len(ids))
		if drop.PerUser <= 0 {
			return ErrAirdropTooSmall
		}
		drop.Recipients = len(ids)
		drop.Amount = drop.PerUser * int64(len(ids))

		for _, id := range ids {
			if _, err := users.AddPoints(ctx, id, drop.PerUser); err != nil {
				return err
			}
		}
		drop.PoolLeft, err = settings.AddInt(ctx, repository.SettingTaxPool, -drop.Amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info().Int64("amount", drop.Amount).Int("recipients", drop.Recipients).Msg("Tax pool distributed")
	return drop, nil
}

// TaxPool returns the undistributed tax.
func (s *AirdropService) TaxPool(ctx context.Context) (int64, error) {
	return s.settings.TaxPool(ctx)
}

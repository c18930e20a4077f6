package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/model"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/db"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/repository"
)

// Shop service errors
var (
	ErrRoleNotForSale    = errors.New("role is not for sale")
	ErrAlreadyHasRole    = errors.New("target already has this role")
	ErrLacksRole         = errors.New("target does not have this role")
	ErrTargetIsModerator = errors.New("cannot target a moderator")
	ErrInvalidPrice      = errors.New("price must be positive")
)

// RemoveRoleCost is charged for stripping a purchased role from someone.
const RemoveRoleCost = 1500

// RolePurchase is the outcome of buying a role.
type RolePurchase struct {
	RoleID    string
	Price     int64
	Balance   int64
	ExpiresAt time.Time
}

// BuyRequest describes a role purchase, for the buyer or as a gift.
// The caller reports the target's platform state.
type BuyRequest struct {
	BuyerID       int64
	TargetID      int64
	RoleID        string
	TargetIsMod   bool
	TargetHasRole bool
	Now           time.Time
}

// RevokeFunc removes a role on the platform.
type RevokeFunc func(ctx context.Context, r model.TempRole) error

// ShopService sells time-limited roles.
type ShopService struct {
	pool     db.TxRunner
	users    *repository.UserRepository
	roles    *repository.RoleRepository
	duration time.Duration
}

// NewShopService creates a new ShopService instance
func NewShopService(
	pool db.TxRunner,
	users *repository.UserRepository,
	roles *repository.RoleRepository,
	duration time.Duration,
) *ShopService {
	return &ShopService{
		pool:     pool,
		users:    users,
		roles:    roles,
		duration: duration,
	}
}

// Duration is how long a purchased role lasts.
func (s *ShopService) Duration() time.Duration {
	return s.duration
}

// Seed stocks the shop from configuration when it is empty.
func (s *ShopService) Seed(ctx context.Context, prices map[string]int64) error {
	n, err := s.roles.SeedShop(ctx, prices)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Info().Int("roles", n).Msg("Role shop seeded")
	}
	return nil
}

// List returns the roles for sale.
func (s *ShopService) List(ctx context.Context) ([]model.ShopRole, error) {
	return s.roles.ListShop(ctx)
}

// Buy charges the buyer and records a temporary grant for the target.
// The caller adds the platform role after Buy succeeds.
func (s *ShopService) Buy(ctx context.Context, req BuyRequest) (*RolePurchase, error) {
	if req.TargetIsMod {
		return nil, ErrTargetIsModerator
	}
	if req.TargetHasRole {
		return nil, ErrAlreadyHasRole
	}

	p := &RolePurchase{RoleID: req.RoleID, ExpiresAt: req.Now.Add(s.duration)}
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		roles := s.roles.WithTx(tx)
		price, err := roles.ShopPrice(ctx, req.RoleID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrRoleNotForSale
			}
			return err
		}
		p.Price = price

		p.Balance, err = s.debit(ctx, tx, req.BuyerID, price)
		if err != nil {
			return err
		}
		return roles.GrantTemp(ctx, req.TargetID, req.RoleID, p.ExpiresAt)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("user_id", req.BuyerID).
		Int64("target_id", req.TargetID).
		Str("role_id", req.RoleID).
		Int64("amount", p.Price).
		Msg("Role purchased")
	return p, nil
}

// RemoveRole charges RemoveRoleCost to strip a role from the target.
// The caller removes the platform role after RemoveRole succeeds.
func (s *ShopService) RemoveRole(ctx context.Context, buyerID, targetID int64, roleID string, targetHasRole bool) (int64, error) {
	if !targetHasRole {
		return 0, ErrLacksRole
	}
	var balance int64
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		balance, err = s.debit(ctx, tx, buyerID, RemoveRoleCost)
		if err != nil {
			return err
		}
		return s.roles.WithTx(tx).RevokeTemp(ctx, targetID, roleID)
	})
	if err != nil {
		return 0, err
	}
	log.Info().Int64("user_id", buyerID).Int64("target_id", targetID).Str("role_id", roleID).Msg("Role removed")
	return balance, nil
}

func (s *ShopService) debit(ctx context.Context, tx pgx.Tx, userID, amount int64) (int64, error) {
	balance, err := s.users.WithTx(tx).Debit(ctx, userID, amount)
	if errors.Is(err, repository.ErrInsufficientPoints) || errors.Is(err, repository.ErrUserNotFound) {
		return 0, fmt.Errorf("%w: need %d", ErrInsufficientBalance, amount)
	}
	return balance, err
}

// AddToShop puts roleID on sale. Members already holding the role get a
// grant so the expiry sweep eventually removes it.
func (s *ShopService) AddToShop(ctx context.Context, roleID string, price int64, holders []int64, now time.Time) error {
	if price <= 0 {
		return ErrInvalidPrice
	}
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		roles := s.roles.WithTx(tx)
		if err := roles.UpsertShop(ctx, roleID, price); err != nil {
			return err
		}
		expires := now.Add(s.duration)
		for _, id := range holders {
			if err := roles.GrantTemp(ctx, id, roleID, expires); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Info().Str("role_id", roleID).Int64("price", price).Int("holders", len(holders)).Msg("Role added to shop")
	return nil
}

// RemoveFromShop takes roleID off sale. Existing grants still expire.
func (s *ShopService) RemoveFromShop(ctx context.Context, roleID string) error {
	err := s.roles.DeleteShop(ctx, roleID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrRoleNotForSale
	}
	return err
}

// SetPrice changes the price of a role already on sale.
func (s *ShopService) SetPrice(ctx context.Context, roleID string, price int64) error {
	if price <= 0 {
		return ErrInvalidPrice
	}
	err := s.roles.UpdateShopPrice(ctx, roleID, price)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrRoleNotForSale
	}
	return err
}

// Grants lists a user's active temporary roles.
func (s *ShopService) Grants(ctx context.Context, userID int64) ([]model.TempRole, error) {
	return s.roles.ListForUser(ctx, userID)
}

// ExpireDue revokes every grant past its expiry. A grant whose platform
// revoke fails is kept and retried on the next sweep.
func (s *ShopService) ExpireDue(ctx context.Context, now time.Time, revoke RevokeFunc) (int, error) {
	due, err := s.roles.ListExpired(ctx, now)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, r := range due {
		if err := revoke(ctx, r); err != nil {
			log.Warn().Err(err).Int64("user_id", r.UserID).Str("role_id", r.RoleID).Msg("Failed to remove expired role")
			continue
		}
		if err := s.roles.RevokeTemp(ctx, r.UserID, r.RoleID); err != nil {
			log.Error().Err(err).Int64("user_id", r.UserID).Str("role_id", r.RoleID).Msg("Failed to delete role grant")
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Msg("Expired roles removed")
	}
	return removed, nil
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/model"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/db"
)

// RoleRepository handles the role shop and time-limited role grants.
type RoleRepository struct {
	q db.Querier
}

// NewRoleRepository creates a new RoleRepository instance.
func NewRoleRepository(q db.Querier) *RoleRepository {
	return &RoleRepository{q: q}
}

// WithTx returns a repository bound to tx.
func (r *RoleRepository) WithTx(tx db.Querier) *RoleRepository {
	return &RoleRepository{q: tx}
}

// ========== Shop Roles ==========

// ListShop returns every purchasable role, cheapest first.
func (r *RoleRepository) ListShop(ctx context.Context) ([]model.ShopRole, error) {
	rows, err := r.q.Query(ctx, `SELECT role_id, price FROM shop_roles ORDER BY price, role_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list shop roles: %w", err)
	}
	roles, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.ShopRole])
	if err != nil {
		return nil, fmt.Errorf("failed to scan shop roles: %w", err)
	}
	return roles, nil
}

// ShopPrice returns the price of roleID. Returns ErrNotFound if it is not for sale.
func (r *RoleRepository) ShopPrice(ctx context.Context, roleID string) (int64, error) {
	var price int64
	err := r.q.QueryRow(ctx, `SELECT price FROM shop_roles WHERE role_id = $1`, roleID).Scan(&price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to get shop price: %w", err)
	}
	return price, nil
}

// UpsertShop adds roleID or changes its price.
func (r *RoleRepository) UpsertShop(ctx context.Context, roleID string, price int64) error {
	const query = `
		INSERT INTO shop_roles (role_id, price) VALUES ($1, $2)
		ON CONFLICT (role_id) DO UPDATE SET price = EXCLUDED.price
	`
	if _, err := r.q.Exec(ctx, query, roleID, price); err != nil {
		return fmt.Errorf("failed to upsert shop role: %w", err)
	}
	return nil
}

// UpdateShopPrice changes the price of an existing role.
func (r *RoleRepository) UpdateShopPrice(ctx context.Context, roleID string, price int64) error {
	tag, err := r.q.Exec(ctx, `UPDATE shop_roles SET price = $2 WHERE role_id = $1`, roleID, price)
	if err != nil {
		return fmt.Errorf("failed to update shop price: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteShop removes roleID from the shop.
func (r *RoleRepository) DeleteShop(ctx context.Context, roleID string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM shop_roles WHERE role_id = $1`, roleID)
	if err != nil {
		return fmt.Errorf("failed to delete shop role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SeedShop inserts prices only when the shop is empty and returns how many were added.
func (r *RoleRepository) SeedShop(ctx context.Context, prices map[string]int64) (int, error) {
	var count int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM shop_roles`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count shop roles: %w", err)
	}
	if count > 0 {
		return 0, nil
	}
	for roleID, price := range prices {
		if err := r.UpsertShop(ctx, roleID, price); err != nil {
			return 0, err
		}
	}
	return len(prices), nil
}

// ========== Temp Roles ==========

// GrantTemp records a role grant until expiresAt, extending an existing grant.
func (r *RoleRepository) GrantTemp(ctx context.Context, userID int64, roleID string, expiresAt time.Time) error {
	const query = `
		INSERT INTO temp_roles (user_id, role_id, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, role_id) DO UPDATE SET expires_at = EXCLUDED.expires_at
	`
	if _, err := r.q.Exec(ctx, query, userID, roleID, expiresAt); err != nil {
		return fmt.Errorf("failed to grant temp role: %w", err)
	}
	return nil
}

// RevokeTemp removes a grant record.
func (r *RoleRepository) RevokeTemp(ctx context.Context, userID int64, roleID string) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM temp_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID); err != nil {
		return fmt.Errorf("failed to revoke temp role: %w", err)
	}
	return nil
}

// ListExpired returns grants whose expiry is at or before now.
func (r *RoleRepository) ListExpired(ctx context.Context, now time.Time) ([]model.TempRole, error) {
	const query = `
		SELECT user_id, role_id, expires_at FROM temp_roles
		WHERE expires_at <= $1
		ORDER BY expires_at
	`
	rows, err := r.q.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired roles: %w", err)
	}
	roles, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.TempRole])
	if err != nil {
		return nil, fmt.Errorf("failed to scan expired roles: %w", err)
	}
	return roles, nil
}

// ListForUser returns a user's active grants, soonest expiry first.
func (r *RoleRepository) ListForUser(ctx context.Context, userID int64) ([]model.TempRole, error) {
	const query = `
		SELECT user_id, role_id, expires_at FROM temp_roles
		WHERE user_id = $1
		ORDER BY expires_at
	`
	rows, err := r.q.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user roles: %w", err)
	}
	roles, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.TempRole])
	if err != nil {
		return nil, fmt.Errorf("failed to scan user roles: %w", err)
	}
	return roles, nil
}

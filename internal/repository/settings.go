package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/db"
)

// Setting keys stored in bot_settings.
const (
	SettingTaxPool        = "tax_pool"
	SettingLotteryPool    = "lottery_pool"
	SettingPredictionCost = "prediction_cost"
	SettingLastDailyRun   = "last_daily_run"
)

// SettingsRepository stores global scalars as text key/value rows.
type SettingsRepository struct {
	q db.Querier
}

// NewSettingsRepository creates a new SettingsRepository instance.
func NewSettingsRepository(q db.Querier) *SettingsRepository {
	return &SettingsRepository{q: q}
}

// WithTx returns a repository bound to tx.
func (r *SettingsRepository) WithTx(tx db.Querier) *SettingsRepository {
	return &SettingsRepository{q: tx}
}

// GetInt returns the integer stored under key, or fallback if unset.
func (r *SettingsRepository) GetInt(ctx context.Context, key string, fallback int64) (int64, error) {
	const query = `SELECT value FROM bot_settings WHERE key = $1`

	var raw string
	if err := r.q.QueryRow(ctx, query, key).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fallback, nil
		}
		return 0, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("setting %s is not an integer: %w", key, err)
	}
	return v, nil
}

// SetInt stores v under key.
func (r *SettingsRepository) SetInt(ctx context.Context, key string, v int64) error {
	const query = `
		INSERT INTO bot_settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`
	if _, err := r.q.Exec(ctx, query, key, strconv.FormatInt(v, 10)); err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// AddInt atomically adds delta to key (treating unset as zero) and returns the new value.
func (r *SettingsRepository) AddInt(ctx context.Context, key string, delta int64) (int64, error) {
	const query = `
		INSERT INTO bot_settings (key, value) VALUES ($1, $2::BIGINT::TEXT)
		ON CONFLICT (key) DO UPDATE
			SET value = (bot_settings.value::BIGINT + $2::BIGINT)::TEXT
		RETURNING value::BIGINT
	`
	var v int64
	if err := r.q.QueryRow(ctx, query, key, delta).Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to add to setting %s: %w", key, err)
	}
	return v, nil
}

// AddTax credits the global tax pool. Zero and negative amounts are ignored.
func (r *SettingsRepository) AddTax(ctx context.Context, amount int64) error {
	if amount <= 0 {
		return nil
	}
	_, err := r.AddInt(ctx, SettingTaxPool, amount)
	return err
}

// TaxPool returns the current tax pool.
func (r *SettingsRepository) TaxPool(ctx context.Context) (int64, error) {
	return r.GetInt(ctx, SettingTaxPool, 0)
}

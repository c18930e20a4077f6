// Package repository provides data access layer implementations.
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

// Common errors for repository operations.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrNotFound           = errors.New("record not found")
	ErrInsufficientPoints = errors.New("insufficient points")
)

const userColumns = `
	user_id, points, total_sent, total_received, daily_earned, daily_earned_date,
	last_message_at, cumulative_attack_gains, cumulative_defense_losses, stashed_points,
	profit_attack, profit_defense, profit_dodge, profit_pierce, profit_beg, profit_trap,
	profit_prediction, profit_guildwar,
	attack_attempts_low, attack_attempts_high, attack_wins_low, attack_wins_high,
	last_rich_tax_date, dodge_cooldown_at, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.UserID, &u.Points, &u.TotalSent, &u.TotalReceived, &u.DailyEarned, &u.DailyEarnedDate,
		&u.LastMessageAt, &u.CumulativeAttackGains, &u.CumulativeDefenseLosses, &u.StashedPoints,
		&u.Profit.Attack, &u.Profit.Defense, &u.Profit.Dodge, &u.Profit.Pierce, &u.Profit.Beg, &u.Profit.Trap,
		&u.Profit.Prediction, &u.Profit.GuildWar,
		&u.Stats.AttemptsLow, &u.Stats.AttemptsHigh, &u.Stats.WinsLow, &u.Stats.WinsHigh,
		&u.LastRichTaxDate, &u.DodgeCooldownAt, &u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UserRepository handles ledger persistence.
type UserRepository struct {
	q db.Querier
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(q db.Querier) *UserRepository {
	return &UserRepository{q: q}
}

// WithTx returns a repository bound to tx.
func (r *UserRepository) WithTx(tx db.Querier) *UserRepository {
	return &UserRepository{q: tx}
}

// Create inserts a user with the given opening balance. created is false when
// the user already existed, in which case nothing changes.
func (r *UserRepository) Create(ctx context.Context, userID, openingPoints int64) (bool, error) {
	const query = `
		INSERT INTO users (user_id, points, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO NOTHING
	`
	tag, err := r.q.Exec(ctx, query, userID, openingPoints)
	if err != nil {
		return false, fmt.Errorf("failed to create user: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetByID retrieves a user.
// Returns ErrUserNotFound if the user does not exist.
func (r *UserRepository) GetByID(ctx context.Context, userID int64) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`

	u, err := scanUser(r.q.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetForUpdate retrieves a user and row-locks it until the transaction ends.
// Only meaningful on a tx-bound repository.
func (r *UserRepository) GetForUpdate(ctx context.Context, userID int64) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1 FOR UPDATE`

	u, err := scanUser(r.q.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to lock user: %w", err)
	}
	return u, nil
}

// GetOrCreate retrieves a user, creating one with zero points if missing.
func (r *UserRepository) GetOrCreate(ctx context.Context, userID int64) (*model.User, error) {
	if _, err := r.Create(ctx, userID, 0); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, userID)
}

// Points returns a user's balance.
func (r *UserRepository) Points(ctx context.Context, userID int64) (int64, error) {
	const query = `SELECT points FROM users WHERE user_id = $1`

	var points int64
	if err := r.q.QueryRow(ctx, query, userID).Scan(&points); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to get points: %w", err)
	}
	return points, nil
}

// AddPoints adds delta (possibly negative) to a user's balance and returns the new balance.
func (r *UserRepository) AddPoints(ctx context.Context, userID, delta int64) (int64, error) {
	const query = `
		UPDATE users SET points = points + $2
		WHERE user_id = $1
		RETURNING points
	`
	var points int64
	if err := r.q.QueryRow(ctx, query, userID, delta).Scan(&points); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to update points: %w", err)
	}
	return points, nil
}

// SetPoints sets a user's balance to an exact value.
func (r *UserRepository) SetPoints(ctx context.Context, userID, points int64) error {
	const query = `UPDATE users SET points = $2 WHERE user_id = $1`

	tag, err := r.q.Exec(ctx, query, userID, points)
	if err != nil {
		return fmt.Errorf("failed to set points: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Debit subtracts amount only if the balance covers it.
// Returns ErrInsufficientPoints otherwise.
func (r *UserRepository) Debit(ctx context.Context, userID, amount int64) (int64, error) {
	const query = `
		UPDATE users SET points = points - $2
		WHERE user_id = $1 AND points >= $2
		RETURNING points
	`
	var points int64
	err := r.q.QueryRow(ctx, query, userID, amount).Scan(&points)
	if err == nil {
		return points, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("failed to debit points: %w", err)
	}
	if _, err := r.Points(ctx, userID); err != nil {
		return 0, err
	}
	return 0, ErrInsufficientPoints
}

// Apply adds every field of d to the user's row in one statement and returns the new balance.
func (r *UserRepository) Apply(ctx context.Context, userID int64, d model.LedgerDelta) (int64, error) {
	const query = `
		UPDATE users SET
			points = points + $2,
			total_sent = total_sent + $3,
			total_received = total_received + $4,
			cumulative_attack_gains = cumulative_attack_gains + $5,
			cumulative_defense_losses = cumulative_defense_losses + $6,
			profit_attack = profit_attack + $7,
			profit_defense = profit_defense + $8,
			profit_dodge = profit_dodge + $9,
			profit_pierce = profit_pierce + $10,
			profit_beg = profit_beg + $11,
			profit_trap = profit_trap + $12,
			profit_prediction = profit_prediction + $13,
			profit_guildwar = profit_guildwar + $14,
			attack_attempts_low = attack_attempts_low + $15,
			attack_attempts_high = attack_attempts_high + $16,
			attack_wins_low = attack_wins_low + $17,
			attack_wins_high = attack_wins_high + $18
		WHERE user_id = $1
		RETURNING points
	`
	var points int64
	err := r.q.QueryRow(ctx, query, userID,
		d.Points, d.TotalSent, d.TotalReceived, d.CumulativeAttackGains, d.CumulativeDefenseLosses,
		d.Profit.Attack, d.Profit.Defense, d.Profit.Dodge, d.Profit.Pierce, d.Profit.Beg,
		d.Profit.Trap, d.Profit.Prediction, d.Profit.GuildWar,
		d.Stats.AttemptsLow, d.Stats.AttemptsHigh, d.Stats.WinsLow, d.Stats.WinsHigh,
	).Scan(&points)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to apply ledger delta: %w", err)
	}
	return points, nil
}

// RecordEarning credits chat earnings and stores the day's running total.
// dailyEarned is the new total for day, not an increment.
func (r *UserRepository) RecordEarning(ctx context.Context, userID, amount, dailyEarned int64, day, at time.Time) error {
	const query = `
		UPDATE users SET
			points = points + $2,
			daily_earned = $3,
			daily_earned_date = $4,
			last_message_at = $5
		WHERE user_id = $1
	`
	tag, err := r.q.Exec(ctx, query, userID, amount, dailyEarned, day, at)
	if err != nil {
		return fmt.Errorf("failed to record earning: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetDodgeCooldown persists when the user last bought a dodge.
func (r *UserRepository) SetDodgeCooldown(ctx context.Context, userID int64, at time.Time) error {
	const query = `UPDATE users SET dodge_cooldown_at = $2 WHERE user_id = $1`

	if _, err := r.q.Exec(ctx, query, userID, at); err != nil {
		return fmt.Errorf("failed to set dodge cooldown: %w", err)
	}
	return nil
}

// Stash moves amount from points into the stash (negative amount withdraws).
// The stash may not exceed limit nor drop below zero, and points must cover a deposit.
func (r *UserRepository) Stash(ctx context.Context, userID, amount, limit int64) (*model.User, error) {
	query := `
		UPDATE users SET
			points = points - $2,
			stashed_points = stashed_points + $2
		WHERE user_id = $1
		  AND points - $2 >= 0
		  AND stashed_points + $2 BETWEEN 0 AND $3
		RETURNING ` + userColumns

	u, err := scanUser(r.q.QueryRow(ctx, query, userID, amount, limit))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, err := r.Points(ctx, userID); err != nil {
				return nil, err
			}
			return nil, ErrInsufficientPoints
		}
		return nil, fmt.Errorf("failed to move stash: %w", err)
	}
	return u, nil
}

// ListIDs returns every user id.
func (r *UserRepository) ListIDs(ctx context.Context) ([]int64, error) {
	return r.collectIDs(ctx, `SELECT user_id FROM users ORDER BY user_id`)
}

// ListPositiveIDs returns ids of users whose points are above zero.
func (r *UserRepository) ListPositiveIDs(ctx context.Context) ([]int64, error) {
	return r.collectIDs(ctx, `SELECT user_id FROM users WHERE points > 0 ORDER BY user_id`)
}

func (r *UserRepository) collectIDs(ctx context.Context, query string) ([]int64, error) {
	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to scan user ids: %w", err)
	}
	return ids, nil
}

// ResetCumulative zeroes the per-day attack counters for everyone.
func (r *UserRepository) ResetCumulative(ctx context.Context) (int64, error) {
	const query = `
		UPDATE users SET cumulative_attack_gains = 0, cumulative_defense_losses = 0
		WHERE cumulative_attack_gains <> 0 OR cumulative_defense_losses <> 0
	`
	tag, err := r.q.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to reset cumulative counters: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PayStashInterest credits floor(stash*percent/100) to every user with a stash
// and returns the total paid.
func (r *UserRepository) PayStashInterest(ctx context.Context, percent int64) (int64, error) {
	const query = `
		WITH paid AS (
			UPDATE users SET points = points + (stashed_points * $1 / 100)
			WHERE stashed_points * $1 / 100 > 0
			RETURNING stashed_points * $1 / 100 AS interest
		)
		SELECT COALESCE(SUM(interest), 0)::BIGINT FROM paid
	`
	var total int64
	if err := r.q.QueryRow(ctx, query, percent).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to pay stash interest: %w", err)
	}
	return total, nil
}

// ChargeDailyTax debits tax and marks the user taxed for day. Users already
// marked for day are left alone and ok is false.
func (r *UserRepository) ChargeDailyTax(ctx context.Context, userID, tax int64, day time.Time) (bool, error) {
	const query = `
		UPDATE users SET points = points - $2, last_rich_tax_date = $3
		WHERE user_id = $1 AND (last_rich_tax_date IS NULL OR last_rich_tax_date <> $3)
	`
	tag, err := r.q.Exec(ctx, query, userID, tax, day)
	if err != nil {
		return false, fmt.Errorf("failed to charge daily tax: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ========== Rankings ==========

// TopByPoints returns the richest users.
func (r *UserRepository) TopByPoints(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	return r.top(ctx, `SELECT user_id, points FROM users ORDER BY points DESC, user_id LIMIT $1`, limit)
}

// TopSenders returns users ranked by lifetime points sent.
func (r *UserRepository) TopSenders(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	return r.top(ctx, `SELECT user_id, total_sent FROM users WHERE total_sent > 0 ORDER BY total_sent DESC, user_id LIMIT $1`, limit)
}

// TopReceivers returns users ranked by lifetime points received.
func (r *UserRepository) TopReceivers(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	return r.top(ctx, `SELECT user_id, total_received FROM users WHERE total_received > 0 ORDER BY total_received DESC, user_id LIMIT $1`, limit)
}

func (r *UserRepository) top(ctx context.Context, query string, limit int) ([]model.LeaderboardEntry, error) {
	rows, err := r.q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []model.LeaderboardEntry
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Value); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leaderboard: %w", err)
	}
	return entries, nil
}

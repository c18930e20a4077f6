package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/model"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/db"
)

// LotteryRepository persists tickets between draws.
type LotteryRepository struct {
	q db.Querier
}

// NewLotteryRepository creates a new LotteryRepository instance.
func NewLotteryRepository(q db.Querier) *LotteryRepository {
	return &LotteryRepository{q: q}
}

// WithTx returns a repository bound to tx.
func (r *LotteryRepository) WithTx(tx db.Querier) *LotteryRepository {
	return &LotteryRepository{q: tx}
}

// CountForUser returns how many tickets userID holds.
func (r *LotteryRepository) CountForUser(ctx context.Context, userID int64) (int, error) {
	var n int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM lottery_entries WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tickets: %w", err)
	}
	return n, nil
}

// NumbersForUser returns userID's ticket numbers in purchase order.
func (r *LotteryRepository) NumbersForUser(ctx context.Context, userID int64) ([]int, error) {
	rows, err := r.q.Query(ctx, `SELECT number FROM lottery_entries WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tickets: %w", err)
	}
	numbers, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return nil, fmt.Errorf("failed to scan tickets: %w", err)
	}
	return numbers, nil
}

// Insert adds one ticket per number.
func (r *LotteryRepository) Insert(ctx context.Context, userID int64, numbers []int) error {
	const query = `
		INSERT INTO lottery_entries (user_id, number, created_at)
		SELECT $1, unnest($2::INT[]), NOW()
	`
	if _, err := r.q.Exec(ctx, query, userID, numbers); err != nil {
		return fmt.Errorf("failed to insert tickets: %w", err)
	}
	return nil
}

// All returns every ticket, oldest first.
func (r *LotteryRepository) All(ctx context.Context) ([]model.LotteryEntry, error) {
	rows, err := r.q.Query(ctx, `SELECT id, user_id, number, created_at FROM lottery_entries ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	entries, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.LotteryEntry])
	if err != nil {
		return nil, fmt.Errorf("failed to scan tickets: %w", err)
	}
	return entries, nil
}

// Clear removes every ticket.
func (r *LotteryRepository) Clear(ctx context.Context) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM lottery_entries`); err != nil {
		return fmt.Errorf("failed to clear tickets: %w", err)
	}
	return nil
}

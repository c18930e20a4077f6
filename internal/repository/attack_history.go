package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/model"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/db"
)

// AttackHistoryRepository handles the attack audit log.
type AttackHistoryRepository struct {
	q db.Querier
}

// NewAttackHistoryRepository creates a new AttackHistoryRepository instance.
func NewAttackHistoryRepository(q db.Querier) *AttackHistoryRepository {
	return &AttackHistoryRepository{q: q}
}

// WithTx returns a repository bound to tx.
func (r *AttackHistoryRepository) WithTx(tx db.Querier) *AttackHistoryRepository {
	return &AttackHistoryRepository{q: tx}
}

// Create appends one outcome. CreatedAt is taken from rec.
func (r *AttackHistoryRepository) Create(ctx context.Context, rec *model.AttackRecord) error {
	const query = `
		INSERT INTO attack_history
			(attacker_id, target_id, attack_type, amount, success, points_gained, points_lost, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err := r.q.QueryRow(ctx, query,
		rec.AttackerID, rec.TargetID, rec.AttackType, rec.Amount,
		rec.Success, rec.PointsGained, rec.PointsLost, rec.CreatedAt,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("failed to record attack: %w", err)
	}
	return nil
}

// ListAgainst returns attacks on targetID since the given time, newest first.
func (r *AttackHistoryRepository) ListAgainst(ctx context.Context, targetID int64, since time.Time, limit int) ([]model.AttackRecord, error) {
	const query = `
		SELECT id, attacker_id, target_id, attack_type, amount, success, points_gained, points_lost, created_at
		FROM attack_history
		WHERE target_id = $1 AND created_at >= $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`
	rows, err := r.q.Query(ctx, query, targetID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get attack history: %w", err)
	}
	records, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.AttackRecord])
	if err != nil {
		return nil, fmt.Errorf("failed to scan attack history: %w", err)
	}
	return records, nil
}

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

// PredictionRepository handles predictions, their choices and bets.
type PredictionRepository struct {
	q db.Querier
}

// NewPredictionRepository creates a new PredictionRepository instance.
func NewPredictionRepository(q db.Querier) *PredictionRepository {
	return &PredictionRepository{q: q}
}

// WithTx returns a repository bound to tx.
func (r *PredictionRepository) WithTx(tx db.Querier) *PredictionRepository {
	return &PredictionRepository{q: tx}
}

const predictionColumns = `id, title, creator_id, creator_was_mod, cost, status, winning_choice, created_at, ends_at, channel_id, message_id`

func scanPrediction(row pgx.Row) (*model.Prediction, error) {
	var p model.Prediction
	err := row.Scan(&p.ID, &p.Title, &p.CreatorID, &p.CreatorWasMod, &p.Cost, &p.Status,
		&p.WinningChoice, &p.CreatedAt, &p.EndsAt, &p.ChannelID, &p.MessageID)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts p with its choices and fills in p.ID.
func (r *PredictionRepository) Create(ctx context.Context, p *model.Prediction) error {
	const query = `
		INSERT INTO predictions (title, creator_id, creator_was_mod, cost, status, created_at, ends_at, channel_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err := r.q.QueryRow(ctx, query, p.Title, p.CreatorID, p.CreatorWasMod, p.Cost, p.Status,
		p.CreatedAt, p.EndsAt, p.ChannelID).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to create prediction: %w", err)
	}

	for i := range p.Choices {
		p.Choices[i].PredictionID = p.ID
		_, err := r.q.Exec(ctx,
			`INSERT INTO prediction_choices (prediction_id, choice_number, choice_text) VALUES ($1, $2, $3)`,
			p.ID, p.Choices[i].Number, p.Choices[i].Text)
		if err != nil {
			return fmt.Errorf("failed to create prediction choice: %w", err)
		}
	}
	return nil
}

// GetByID returns a prediction with its choices. Returns ErrNotFound if missing.
func (r *PredictionRepository) GetByID(ctx context.Context, id int64) (*model.Prediction, error) {
	return r.get(ctx, `SELECT `+predictionColumns+` FROM predictions WHERE id = $1`, id)
}

// GetForUpdate is GetByID with a row lock held until the transaction ends.
func (r *PredictionRepository) GetForUpdate(ctx context.Context, id int64) (*model.Prediction, error) {
	return r.get(ctx, `SELECT `+predictionColumns+` FROM predictions WHERE id = $1 FOR UPDATE`, id)
}

func (r *PredictionRepository) get(ctx context.Context, query string, id int64) (*model.Prediction, error) {
	p, err := scanPrediction(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}

	rows, err := r.q.Query(ctx,
		`SELECT prediction_id, choice_number, choice_text FROM prediction_choices WHERE prediction_id = $1 ORDER BY choice_number`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction choices: %w", err)
	}
	p.Choices, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.PredictionChoice])
	if err != nil {
		return nil, fmt.Errorf("failed to scan prediction choices: %w", err)
	}
	return p, nil
}

// CountByStatus returns how many predictions are in status.
func (r *PredictionRepository) CountByStatus(ctx context.Context, status model.PredictionStatus) (int, error) {
	var n int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM predictions WHERE status = $1`, status).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count predictions: %w", err)
	}
	return n, nil
}

// ListByStatus returns ids of predictions in any of statuses, newest first.
func (r *PredictionRepository) ListByStatus(ctx context.Context, statuses ...model.PredictionStatus) ([]int64, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	rows, err := r.q.Query(ctx, `SELECT id FROM predictions WHERE status = ANY($1) ORDER BY id DESC`, names)
	if err != nil {
		return nil, fmt.Errorf("failed to list predictions: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to scan prediction ids: %w", err)
	}
	return ids, nil
}

// LockExpired moves every betting prediction whose deadline has passed to
// locked and returns their ids.
func (r *PredictionRepository) LockExpired(ctx context.Context, now time.Time) ([]int64, error) {
	const query = `
		UPDATE predictions SET status = 'locked'
		WHERE status = 'betting' AND ends_at <= $1
		RETURNING id
	`
	rows, err := r.q.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to lock expired predictions: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to scan locked predictions: %w", err)
	}
	return ids, nil
}

// SetStatus updates status and winning choice together.
func (r *PredictionRepository) SetStatus(ctx context.Context, id int64, status model.PredictionStatus, winningChoice *int) error {
	tag, err := r.q.Exec(ctx, `UPDATE predictions SET status = $2, winning_choice = $3 WHERE id = $1`, id, status, winningChoice)
	if err != nil {
		return fmt.Errorf("failed to update prediction status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetMessage records where the prediction is displayed.
func (r *PredictionRepository) SetMessage(ctx context.Context, id int64, channelID, messageID string) error {
	_, err := r.q.Exec(ctx, `UPDATE predictions SET channel_id = $2, message_id = $3 WHERE id = $1`, id, channelID, messageID)
	if err != nil {
		return fmt.Errorf("failed to set prediction message: %w", err)
	}
	return nil
}

// AddBet accumulates amount onto the user's stake for choice.
func (r *PredictionRepository) AddBet(ctx context.Context, predictionID, userID int64, choice int, amount int64) (int64, error) {
	const query = `
		INSERT INTO prediction_bets (prediction_id, user_id, choice_number, amount)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (prediction_id, user_id, choice_number)
		DO UPDATE SET amount = prediction_bets.amount + EXCLUDED.amount
		RETURNING amount
	`
	var total int64
	if err := r.q.QueryRow(ctx, query, predictionID, userID, choice, amount).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to place bet: %w", err)
	}
	return total, nil
}

// Bets returns every stake on a prediction.
func (r *PredictionRepository) Bets(ctx context.Context, predictionID int64) ([]model.PredictionBet, error) {
	const query = `
		SELECT prediction_id, user_id, choice_number, amount FROM prediction_bets
		WHERE prediction_id = $1
		ORDER BY choice_number, user_id
	`
	rows, err := r.q.Query(ctx, query, predictionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bets: %w", err)
	}
	bets, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.PredictionBet])
	if err != nil {
		return nil, fmt.Errorf("failed to scan bets: %w", err)
	}
	return bets, nil
}

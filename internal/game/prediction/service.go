package prediction

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/metrics"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/model"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/db"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/repository"
)

// Constants for prediction configuration
const (
	MinChoices     = 2
	MaxChoices     = 5
	MaxTitleLen    = 100
	MaxChoiceLen   = 50
	MinDuration    = 1 * time.Minute
	MaxDuration    = 150 * time.Minute
	MaxOpenBetting = 5
)

// Errors for the prediction market
var (
	ErrNotFound          = errors.New("prediction not found")
	ErrInvalidTitle      = errors.New("title must be 1-100 characters")
	ErrInvalidChoices    = errors.New("predictions need 2-5 choices of 1-50 characters")
	ErrInvalidDuration   = errors.New("duration must be 1-150 minutes")
	ErrTooManyOpen       = errors.New("too many predictions are open for betting")
	ErrInsufficientFunds = errors.New("not enough points")
	ErrNotBetting        = errors.New("prediction is not accepting bets")
	ErrBettingClosed     = errors.New("betting time has ended")
	ErrOwnPrediction     = errors.New("cannot bet on your own prediction")
	ErrInvalidChoice     = errors.New("invalid choice")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrForbidden         = errors.New("only the creator or a moderator can do this")
	ErrInvalidState      = errors.New("prediction cannot do that in its current state")
)

// CreateRequest describes a new prediction.
type CreateRequest struct {
	Creator   model.Actor
	Title     string
	Choices   []string
	Duration  time.Duration
	ChannelID string
	Now       time.Time
}

// BetResult is a placed bet.
type BetResult struct {
	Prediction *model.Prediction
	Choice     int
	Stake      int64 // the user's total on Choice after this bet
	Remaining  int64
}

// Summary is a prediction with its pool per choice.
type Summary struct {
	Prediction *model.Prediction
	Pools      map[int]int64
	Bettors    map[int]int
	Total      int64
}

// Service runs predictions against the ledger.
type Service struct {
	pool        db.TxRunner
	users       *repository.UserRepository
	settings    *repository.SettingsRepository
	predictions *repository.PredictionRepository
	defaultCost int64
}

// NewService creates a new prediction Service. defaultCost applies until a
// moderator sets one.
func NewService(
	pool db.TxRunner,
	users *repository.UserRepository,
	settings *repository.SettingsRepository,
	predictions *repository.PredictionRepository,
	defaultCost int64,
) *Service {
	return &Service{
		pool:        pool,
		users:       users,
		settings:    settings,
		predictions: predictions,
		defaultCost: defaultCost,
	}
}

// Cost returns the current creation cost.
func (s *Service) Cost(ctx context.Context) (int64, error) {
	return s.settings.GetInt(ctx, repository.SettingPredictionCost, s.defaultCost)
}

// SetCost changes the creation cost.
func (s *Service) SetCost(ctx context.Context, cost int64) error {
	if cost < 0 {
		return ErrInvalidAmount
	}
	return s.settings.SetInt(ctx, repository.SettingPredictionCost, cost)
}

func validateCreate(req CreateRequest) error {
	title := strings.TrimSpace(req.Title)
	if title == "" || utf8.RuneCountInString(title) > MaxTitleLen {
		return ErrInvalidTitle
	}
	if len(req.Choices) < MinChoices || len(req.Choices) > MaxChoices {
		return ErrInvalidChoices
	}
	for _, c := range req.Choices {
		c = strings.TrimSpace(c)
		if c == "" || utf8.RuneCountInString(c) > MaxChoiceLen {
			return ErrInvalidChoices
		}
	}
	if req.Duration < MinDuration || req.Duration > MaxDuration {
		return ErrInvalidDuration
	}
	return nil
}

// Create opens a prediction for betting. Moderators create for free.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*model.Prediction, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	p := &model.Prediction{
		Title:         strings.TrimSpace(req.Title),
		CreatorID:     req.Creator.UserID,
		CreatorWasMod: req.Creator.IsMod,
		Status:        model.PredictionBetting,
		CreatedAt:     req.Now,
		EndsAt:        req.Now.Add(req.Duration),
		ChannelID:     req.ChannelID,
	}
	for i, c := range req.Choices {
		p.Choices = append(p.Choices, model.PredictionChoice{Number: i + 1, Text: strings.TrimSpace(c)})
	}

	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		preds := s.predictions.WithTx(tx)
		open, err := preds.CountByStatus(ctx, model.PredictionBetting)
		if err != nil {
			return err
		}
		if open >= MaxOpenBetting {
			return ErrTooManyOpen
		}

		if !req.Creator.IsMod {
			cost, err := s.settings.WithTx(tx).GetInt(ctx, repository.SettingPredictionCost, s.defaultCost)
			if err != nil {
				return err
			}
			if cost > 0 {
				if _, err := s.users.WithTx(tx).Debit(ctx, req.Creator.UserID, cost); err != nil {
					if errors.Is(err, repository.ErrInsufficientPoints) {
						return fmt.Errorf("%w: creating costs %d", ErrInsufficientFunds, cost)
					}
					return err
				}
			}
			p.Cost = cost
		}
		return preds.Create(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("prediction_id", p.ID).
		Int64("user_id", p.CreatorID).
		Int64("cost", p.Cost).
		Msg("Prediction created")

	return p, nil
}

// SetMessage records where the prediction is displayed.
func (s *Service) SetMessage(ctx context.Context, id int64, channelID, messageID string) error {
	return s.predictions.SetMessage(ctx, id, channelID, messageID)
}

// PlaceBet stakes amount on choice, adding to any earlier stake on it.
func (s *Service) PlaceBet(ctx context.Context, id int64, bettor model.Actor, choice int, amount int64, now time.Time) (*BetResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	res := &BetResult{Choice: choice}
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		p, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if p.Status != model.PredictionBetting {
			return ErrNotBetting
		}
		if !now.Before(p.EndsAt) {
			return ErrBettingClosed
		}
		if p.CreatorID == bettor.UserID && !bettor.IsMod {
			return ErrOwnPrediction
		}
		if !hasChoice(p, choice) {
			return ErrInvalidChoice
		}

		remaining, err := s.users.WithTx(tx).Debit(ctx, bettor.UserID, amount)
		if err != nil {
			if errors.Is(err, repository.ErrInsufficientPoints) {
				return ErrInsufficientFunds
			}
			return err
		}
		stake, err := s.predictions.WithTx(tx).AddBet(ctx, id, bettor.UserID, choice, amount)
		if err != nil {
			return err
		}
		res.Prediction, res.Stake, res.Remaining = p, stake, remaining
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("prediction_id", id).
		Int64("user_id", bettor.UserID).
		Int("choice", choice).
		Int64("amount", amount).
		Msg("Prediction bet placed")

	return res, nil
}

func hasChoice(p *model.Prediction, choice int) bool {
	return slices.ContainsFunc(p.Choices, func(c model.PredictionChoice) bool { return c.Number == choice })
}

// get loads and row-locks a prediction inside tx.
func (s *Service) get(ctx context.Context, tx pgx.Tx, id int64) (*model.Prediction, error) {
	p, err := s.predictions.WithTx(tx).GetForUpdate(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	return p, err
}

// Lock closes betting early.
func (s *Service) Lock(ctx context.Context, id int64, actor model.Actor) (*model.Prediction, error) {
	var p *model.Prediction
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		if p, err = s.get(ctx, tx, id); err != nil {
			return err
		}
		if !actor.CanManage(p.CreatorID) {
			return ErrForbidden
		}
		if p.Status != model.PredictionBetting {
			return ErrNotBetting
		}
		p.Status = model.PredictionLocked
		return s.predictions.WithTx(tx).SetStatus(ctx, id, model.PredictionLocked, nil)
	})
	if err != nil {
		return nil, err
	}
	log.Info().Int64("prediction_id", id).Msg("Prediction locked")
	return p, nil
}

// LockExpired locks every prediction whose betting window has passed.
func (s *Service) LockExpired(ctx context.Context, now time.Time) ([]int64, error) {
	ids, err := s.predictions.LockExpired(ctx, now)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		log.Info().Ints64("prediction_ids", ids).Msg("Predictions auto-locked")
	}
	return ids, nil
}

// Resolve pays out on winner.
func (s *Service) Resolve(ctx context.Context, id int64, actor model.Actor, winner int) (*Settlement, error) {
	var st Settlement
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		p, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if !actor.CanManage(p.CreatorID) {
			return ErrForbidden
		}
		if p.Status != model.PredictionBetting && p.Status != model.PredictionLocked {
			return ErrInvalidState
		}
		if !hasChoice(p, winner) {
			return ErrInvalidChoice
		}

		bets, err := s.predictions.WithTx(tx).Bets(ctx, id)
		if err != nil {
			return err
		}
		st = Settle(bets, winner)
		if err := s.applyAll(ctx, tx, ledgerDeltas(bets, st)); err != nil {
			return err
		}
		if err := s.settings.WithTx(tx).AddTax(ctx, st.Tax); err != nil {
			return err
		}
		return s.predictions.WithTx(tx).SetStatus(ctx, id, model.PredictionResolved, &winner)
	})
	if err != nil {
		return nil, err
	}

	metrics.Tax("prediction", st.Tax)
	log.Info().
		Int64("prediction_id", id).
		Int("winner", winner).
		Int64("total", st.Total).
		Int64("paid", st.Paid).
		Int64("tax", st.Tax).
		Msg("Prediction resolved")

	return &st, nil
}

// reverse takes back what resolving p paid. Callers hold the row lock.
func (s *Service) reverse(ctx context.Context, tx pgx.Tx, p *model.Prediction, bets []model.PredictionBet) (Settlement, error) {
	if p.WinningChoice == nil {
		return Settlement{}, ErrInvalidState
	}
	st := Settle(bets, *p.WinningChoice)
	deltas := ledgerDeltas(bets, st)
	for id, d := range deltas {
		deltas[id] = negate(d)
	}
	if err := s.applyAll(ctx, tx, deltas); err != nil {
		return st, err
	}
	if st.Tax > 0 {
		if _, err := s.settings.WithTx(tx).AddInt(ctx, repository.SettingTaxPool, -st.Tax); err != nil {
			return st, err
		}
	}
	return st, nil
}

// Undo reverts a resolution and returns the prediction to locked.
func (s *Service) Undo(ctx context.Context, id int64) (*Settlement, error) {
	var st Settlement
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		p, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if p.Status != model.PredictionResolved {
			return ErrInvalidState
		}
		bets, err := s.predictions.WithTx(tx).Bets(ctx, id)
		if err != nil {
			return err
		}
		if st, err = s.reverse(ctx, tx, p, bets); err != nil {
			return err
		}
		return s.predictions.WithTx(tx).SetStatus(ctx, id, model.PredictionLocked, nil)
	})
	if err != nil {
		return nil, err
	}
	log.Info().Int64("prediction_id", id).Int64("reverted", st.Paid).Msg("Prediction undone")
	return &st, nil
}

// Refund is what cancelling returned.
type Refund struct {
	Bets        int
	Amount      int64
	CreatorCost int64
}

// Cancel refunds every stake and the creation cost, reverting a resolution first.
func (s *Service) Cancel(ctx context.Context, id int64) (*Refund, error) {
	var r Refund
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		p, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if p.Status == model.PredictionCancelled {
			return ErrInvalidState
		}
		bets, err := s.predictions.WithTx(tx).Bets(ctx, id)
		if err != nil {
			return err
		}
		if p.Status == model.PredictionResolved {
			if _, err := s.reverse(ctx, tx, p, bets); err != nil {
				return err
			}
		}

		refunds := make(map[int64]model.LedgerDelta)
		for _, b := range bets {
			refunds[b.UserID] = refunds[b.UserID].Add(model.LedgerDelta{Points: b.Amount})
			r.Amount += b.Amount
		}
		r.Bets = len(bets)
		if !p.CreatorWasMod && p.Cost > 0 {
			refunds[p.CreatorID] = refunds[p.CreatorID].Add(model.LedgerDelta{Points: p.Cost})
			r.CreatorCost = p.Cost
		}
		if err := s.applyAll(ctx, tx, refunds); err != nil {
			return err
		}
		return s.predictions.WithTx(tx).SetStatus(ctx, id, model.PredictionCancelled, nil)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("prediction_id", id).
		Int("bets", r.Bets).
		Int64("refunded", r.Amount).
		Msg("Prediction cancelled")

	return &r, nil
}

// applyAll applies deltas in user id order.
func (s *Service) applyAll(ctx context.Context, tx pgx.Tx, deltas map[int64]model.LedgerDelta) error {
	users := s.users.WithTx(tx)
	for _, id := range slices.Sorted(maps.Keys(deltas)) {
		d := deltas[id]
		if d.IsZero() {
			continue
		}
		if _, err := users.Apply(ctx, id, d); err != nil {
			return fmt.Errorf("failed to apply payout to %d: %w", id, err)
		}
	}
	return nil
}

// Summary returns a prediction with its pools.
func (s *Service) Summary(ctx context.Context, id int64) (*Summary, error) {
	p, err := s.predictions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	bets, err := s.predictions.Bets(ctx, id)
	if err != nil {
		return nil, err
	}
	sum := &Summary{Prediction: p, Pools: make(map[int]int64), Bettors: make(map[int]int)}
	for _, b := range bets {
		sum.Pools[b.ChoiceNumber] += b.Amount
		sum.Bettors[b.ChoiceNumber]++
		sum.Total += b.Amount
	}
	return sum, nil
}

// Active returns summaries of predictions that are betting or locked.
func (s *Service) Active(ctx context.Context) ([]*Summary, error) {
	ids, err := s.predictions.ListByStatus(ctx, model.PredictionBetting, model.PredictionLocked)
	if err != nil {
		return nil, err
	}
	out := make([]*Summary, 0, len(ids))
	for _, id := range ids {
		sum, err := s.Summary(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, nil
}

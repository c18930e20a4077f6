package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/metrics"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/model"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/db"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/repository"
)

// Transfer-related errors.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid amount: must be positive")
	ErrSelfTransfer        = errors.New("cannot transfer to self")
	ErrUserNotFound        = errors.New("user not found")
)

// TransferTaxPercent is withheld from every sendpoint transfer.
const TransferTaxPercent = 10

// Transfer is the outcome of moving points between two users.
type Transfer struct {
	Sent          int64
	Received      int64
	Tax           int64
	SenderBalance int64
}

// TransferService handles user-to-user transfers.
type TransferService struct {
	pool     db.TxRunner
	users    *repository.UserRepository
	settings *repository.SettingsRepository
}

// NewTransferService creates a new TransferService instance.
func NewTransferService(
	pool db.TxRunner,
	users *repository.UserRepository,
	settings *repository.SettingsRepository,
) *TransferService {
	return &TransferService{
		pool:     pool,
		users:    users,
		settings: settings,
	}
}

// Send transfers amount from fromID to toID, withholding TransferTaxPercent
// for the tax pool. The receiver is created if unknown.
func (s *TransferService) Send(ctx context.Context, fromID, toID, amount int64) (*Transfer, error) {
	received := amount * (100 - TransferTaxPercent) / 100
	t, err := s.move(ctx, fromID, toID, amount, received)
	if err != nil {
		return nil, err
	}
	log.Info().
		Int64("user_id", fromID).
		Int64("target_id", toID).
		Int64("amount", amount).
		Int64("tax", t.Tax).
		Msg("Points sent")
	return t, nil
}

// Give transfers amount untaxed. Used when answering a beg.
func (s *TransferService) Give(ctx context.Context, fromID, toID, amount int64) (*Transfer, error) {
	t, err := s.move(ctx, fromID, toID, amount, amount)
	if err != nil {
		return nil, err
	}
	log.Info().
		Int64("user_id", fromID).
		Int64("target_id", toID).
		Int64("amount", amount).
		Msg("Points given")
	return t, nil
}

func (s *TransferService) move(ctx context.Context, fromID, toID, amount, received int64) (*Transfer, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if fromID == toID {
		return nil, ErrSelfTransfer
	}

	t := &Transfer{Sent: amount, Received: received, Tax: amount - received}
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		users := s.users.WithTx(tx)
		if _, err := users.Create(ctx, toID, 0); err != nil {
			return err
		}

		// lock both rows in id order
		first, second := min(fromID, toID), max(fromID, toID)
		rows := make(map[int64]*model.User, 2)
		for _, id := range []int64{first, second} {
			u, err := users.GetForUpdate(ctx, id)
			if err != nil {
				if errors.Is(err, repository.ErrUserNotFound) {
					return ErrUserNotFound
				}
				return err
			}
			rows[id] = u
		}
		if rows[fromID].Points < amount {
			return fmt.Errorf("%w: you have %d", ErrInsufficientBalance, rows[fromID].Points)
		}

		var err error
		t.SenderBalance, err = users.Apply(ctx, fromID, model.LedgerDelta{Points: -amount, TotalSent: amount})
		if err != nil {
			return fmt.Errorf("failed to debit sender: %w", err)
		}
		if _, err := users.Apply(ctx, toID, model.LedgerDelta{Points: received, TotalReceived: received}); err != nil {
			return fmt.Errorf("failed to credit receiver: %w", err)
		}
		if t.Tax > 0 {
			return s.settings.WithTx(tx).AddTax(ctx, t.Tax)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.Tax("transfer", t.Tax)
	return t, nil
}

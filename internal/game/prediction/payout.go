// Package prediction implements the parimutuel prediction market.
package prediction

import "github.com/LCKYN/fifatargrean-discord-bot-v2/internal/model"

// PayoutPercent is the share of their proportional cut winners keep; the rest is tax.
const PayoutPercent = 90

// Payout is what one winning bet receives.
type Payout struct {
	UserID int64
	Bet    int64
	Amount int64
}

// Settlement is the result of resolving on one choice.
type Settlement struct {
	Winner     int
	Total      int64 // every stake on every choice
	WinnerPool int64 // stakes on Winner
	Payouts    []Payout
	Paid       int64
	Tax        int64 // Total - Paid
}

// Settle splits the total pool across winning bets. Each winner gets
// floor(floor(bet*total/winnerPool) * 90%). Everything not paid out is tax,
// including the whole pool when nobody picked the winner.
func Settle(bets []model.PredictionBet, winner int) Settlement {
	s := Settlement{Winner: winner}
	for _, b := range bets {
		s.Total += b.Amount
		if b.ChoiceNumber == winner {
			s.WinnerPool += b.Amount
		}
	}

	if s.WinnerPool > 0 {
		for _, b := range bets {
			if b.ChoiceNumber != winner {
				continue
			}
			raw := b.Amount * s.Total / s.WinnerPool
			amount := raw * PayoutPercent / 100
			s.Payouts = append(s.Payouts, Payout{UserID: b.UserID, Bet: b.Amount, Amount: amount})
			s.Paid += amount
		}
	}

	s.Tax = s.Total - s.Paid
	return s
}

// ledgerDeltas returns the per-bet ledger changes for paying s. Losing bets
// only move profit, their stake was taken when they were placed.
func ledgerDeltas(bets []model.PredictionBet, s Settlement) map[int64]model.LedgerDelta {
	out := make(map[int64]model.LedgerDelta)
	add := func(id int64, d model.LedgerDelta) {
		out[id] = out[id].Add(d)
	}
	for _, b := range bets {
		if b.ChoiceNumber != s.Winner {
			add(b.UserID, model.LedgerDelta{Profit: model.Profit{Prediction: -b.Amount}})
		}
	}
	for _, p := range s.Payouts {
		add(p.UserID, model.LedgerDelta{
			Points: p.Amount,
			Profit: model.Profit{Prediction: p.Amount - p.Bet},
		})
	}
	return out
}

func negate(d model.LedgerDelta) model.LedgerDelta {
	return model.LedgerDelta{
		Points: -d.Points,
		Profit: model.Profit{Prediction: -d.Profit.Prediction},
	}
}

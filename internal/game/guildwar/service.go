package guildwar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/metrics"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/model"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/db"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/rng"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/repository"
)

// Constants for guild war configuration
const (
	MinEntry       = 10
	MaxEntry       = 500
	MaxNameLen     = 100
	MaxTeamNameLen = 50
	TaxPercent     = 5
)

// Errors for guild wars
var (
	ErrNotFound          = errors.New("war not found")
	ErrInvalidName       = errors.New("war and team names must not be empty or too long")
	ErrInvalidEntry      = errors.New("entry cost must be between 10 and 500")
	ErrInvalidTeam       = errors.New("team must be 1 or 2")
	ErrNotRecruiting     = errors.New("this war is not accepting changes")
	ErrAlreadyOnTeam     = errors.New("you're already in this team")
	ErrNotMember         = errors.New("you are not in this war")
	ErrInsufficientFunds = errors.New("not enough points to join")
	ErrForbidden         = errors.New("only the creator or a moderator can do this")
	ErrEmptyTeam         = errors.New("both teams need at least 1 member to start")
	ErrInvalidState      = errors.New("war cannot do that in its current state")
)

// CreateRequest describes a new war.
type CreateRequest struct {
	CreatorID int64
	Name      string
	Team1     string
	Team2     string
	EntryCost int64
	ChannelID string
	Now       time.Time
}

// JoinResult is the outcome of pressing a team button.
type JoinResult struct {
	War       *model.GuildWar
	Team      int
	Switched  bool
	Charged   int64
	Remaining int64
}

// Roster is a war with its members per team.
type Roster struct {
	War   *model.GuildWar
	Teams [2][]model.WarMember
}

// Pool sums every stake.
func (r *Roster) Pool() int64 {
	var total int64
	for _, team := range r.Teams {
		for _, m := range team {
			total += m.PointsBet
		}
	}
	return total
}

// Payout is how a finished war's pool was split.
type Payout struct {
	Total     int64
	Tax       int64 // includes the split remainder
	PerWinner int64
	Winners   []int64
}

// Result is a started and settled war.
type Result struct {
	War    *model.GuildWar
	Battle *Battle
	Payout Payout
}

// Refund is what cancelling returned.
type Refund struct {
	Members int
	Amount  int64
}

// Service runs guild wars against the ledger.
type Service struct {
	pool     db.TxRunner
	users    *repository.UserRepository
	settings *repository.SettingsRepository
	wars     *repository.GuildWarRepository
	src      rng.Source
}

// NewService creates a new guild war Service.
func NewService(
	pool db.TxRunner,
	users *repository.UserRepository,
	settings *repository.SettingsRepository,
	wars *repository.GuildWarRepository,
	src rng.Source,
) *Service {
	return &Service{
		pool:     pool,
		users:    users,
		settings: settings,
		wars:     wars,
		src:      src,
	}
}

func validName(s string, limit int) bool {
	s = strings.TrimSpace(s)
	return s != "" && utf8.RuneCountInString(s) <= limit
}

// Create opens a war for recruiting.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*model.GuildWar, error) {
	if !validName(req.Name, MaxNameLen) || !validName(req.Team1, MaxTeamNameLen) || !validName(req.Team2, MaxTeamNameLen) {
		return nil, ErrInvalidName
	}
	if req.EntryCost < MinEntry || req.EntryCost > MaxEntry {
		return nil, ErrInvalidEntry
	}

	w := &model.GuildWar{
		CreatorID: req.CreatorID,
		Name:      strings.TrimSpace(req.Name),
		Team1Name: strings.TrimSpace(req.Team1),
		Team2Name: strings.TrimSpace(req.Team2),
		EntryCost: req.EntryCost,
		Status:    model.WarRecruiting,
		ChannelID: req.ChannelID,
		CreatedAt: req.Now,
	}
	if err := s.wars.Create(ctx, w); err != nil {
		return nil, err
	}

	log.Info().
		Int64("war_id", w.ID).
		Int64("user_id", w.CreatorID).
		Int64("entry_cost", w.EntryCost).
		Msg("Guild war created")

	return w, nil
}

// SetMessage records the recruiting message and battle thread.
func (s *Service) SetMessage(ctx context.Context, id int64, channelID, messageID, threadID string) error {
	return s.wars.SetMessage(ctx, id, channelID, messageID, threadID)
}

func (s *Service) get(ctx context.Context, tx pgx.Tx, id int64) (*model.GuildWar, error) {
	w, err := s.wars.WithTx(tx).GetForUpdate(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	return w, err
}

// Join puts userID on team, charging the entry cost on first join.
// Switching teams keeps the original stake.
func (s *Service) Join(ctx context.Context, id, userID int64, team int) (*JoinResult, error) {
	if team != 1 && team != 2 {
		return nil, ErrInvalidTeam
	}

	res := &JoinResult{Team: team}
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		w, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if w.Status != model.WarRecruiting {
			return ErrNotRecruiting
		}
		res.War = w

		wars := s.wars.WithTx(tx)
		m, err := wars.Member(ctx, id, userID)
		switch {
		case err == nil:
			if m.Team == team {
				return ErrAlreadyOnTeam
			}
			res.Switched = true
			return wars.SetMemberTeam(ctx, id, userID, team)
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}

		remaining, err := s.users.WithTx(tx).Debit(ctx, userID, w.EntryCost)
		if err != nil {
			if errors.Is(err, repository.ErrInsufficientPoints) || errors.Is(err, repository.ErrUserNotFound) {
				return fmt.Errorf("%w: entry is %d", ErrInsufficientFunds, w.EntryCost)
			}
			return err
		}
		res.Charged, res.Remaining = w.EntryCost, remaining
		return wars.AddMember(ctx, model.WarMember{WarID: id, UserID: userID, Team: team, PointsBet: w.EntryCost})
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("war_id", id).
		Int64("user_id", userID).
		Int("team", team).
		Bool("switched", res.Switched).
		Msg("Guild war joined")

	return res, nil
}

// Leave removes userID from the war and refunds their stake.
func (s *Service) Leave(ctx context.Context, id, userID int64) (int64, error) {
	var refund int64
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		w, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if w.Status != model.WarRecruiting {
			return ErrNotRecruiting
		}
		wars := s.wars.WithTx(tx)
		m, err := wars.Member(ctx, id, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrNotMember
			}
			return err
		}
		if _, err := s.users.WithTx(tx).AddPoints(ctx, userID, m.PointsBet); err != nil {
			return err
		}
		refund = m.PointsBet
		return wars.RemoveMember(ctx, id, userID)
	})
	if err != nil {
		return 0, err
	}

	log.Info().Int64("war_id", id).Int64("user_id", userID).Int64("refund", refund).Msg("Guild war left")
	return refund, nil
}

// Roster returns the war and its teams.
func (s *Service) Roster(ctx context.Context, id int64) (*Roster, error) {
	w, err := s.wars.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	members, err := s.wars.Members(ctx, id)
	if err != nil {
		return nil, err
	}
	return newRoster(w, members), nil
}

func newRoster(w *model.GuildWar, members []model.WarMember) *Roster {
	r := &Roster{War: w}
	for _, m := range members {
		if m.Team == 1 || m.Team == 2 {
			r.Teams[m.Team-1] = append(r.Teams[m.Team-1], m)
		}
	}
	return r
}

// Split taxes the pool and divides the rest evenly among the winning team.
func Split(r *Roster, winner int) Payout {
	p := Payout{Total: r.Pool()}
	for _, m := range r.Teams[winner-1] {
		p.Winners = append(p.Winners, m.UserID)
	}
	p.Tax = p.Total * TaxPercent / 100
	prize := p.Total - p.Tax
	if n := int64(len(p.Winners)); n > 0 {
		p.PerWinner = prize / n
		p.Tax += prize - p.PerWinner*n
	} else {
		p.Tax = p.Total
	}
	return p
}

// Start closes recruiting, runs the battle and pays the winning team. The
// war stays in_progress if the payout fails, so it can still be cancelled.
func (s *Service) Start(ctx context.Context, id int64, actor model.Actor) (*Result, error) {
	var roster *Roster
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		w, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if !actor.CanManage(w.CreatorID) {
			return ErrForbidden
		}
		if w.Status != model.WarRecruiting {
			return ErrInvalidState
		}
		members, err := s.wars.WithTx(tx).Members(ctx, id)
		if err != nil {
			return err
		}
		roster = newRoster(w, members)
		if len(roster.Teams[0]) == 0 || len(roster.Teams[1]) == 0 {
			return ErrEmptyTeam
		}
		w.Status = model.WarInProgress
		return s.wars.WithTx(tx).SetStatus(ctx, id, model.WarInProgress, nil)
	})
	if err != nil {
		return nil, err
	}

	var teams [2][]int64
	for i, team := range roster.Teams {
		for _, m := range team {
			teams[i] = append(teams[i], m.UserID)
		}
	}
	battle := Simulate(teams, s.src)
	payout := Split(roster, battle.Winner)

	err = s.pool.InTx(ctx, func(tx pgx.Tx) error {
		w, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if w.Status != model.WarInProgress {
			return ErrInvalidState
		}
		users := s.users.WithTx(tx)
		for i, team := range roster.Teams {
			for _, m := range team {
				d := model.LedgerDelta{Profit: model.Profit{GuildWar: -m.PointsBet}}
				if i+1 == battle.Winner {
					d = model.LedgerDelta{
						Points: payout.PerWinner,
						Profit: model.Profit{GuildWar: payout.PerWinner - m.PointsBet},
					}
				}
				if _, err := users.Apply(ctx, m.UserID, d); err != nil {
					return fmt.Errorf("failed to pay war member %d: %w", m.UserID, err)
				}
			}
		}
		if err := s.settings.WithTx(tx).AddTax(ctx, payout.Tax); err != nil {
			return err
		}
		winner := battle.Winner
		return s.wars.WithTx(tx).SetStatus(ctx, id, model.WarFinished, &winner)
	})
	if err != nil {
		log.Error().Err(err).Int64("war_id", id).Msg("Guild war payout failed")
		return nil, err
	}

	roster.War.Status = model.WarFinished
	roster.War.WinningTeam = &battle.Winner
	metrics.Tax("guildwar", payout.Tax)

	log.Info().
		Int64("war_id", id).
		Int("winner", battle.Winner).
		Int("rounds", len(battle.Rounds)).
		Int64("pool", payout.Total).
		Int64("per_winner", payout.PerWinner).
		Msg("Guild war finished")

	return &Result{War: roster.War, Battle: battle, Payout: payout}, nil
}

// Cancel refunds every member. Finished wars cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, id int64, actor model.Actor) (*Refund, error) {
	var r Refund
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		w, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if !actor.CanManage(w.CreatorID) {
			return ErrForbidden
		}
		if w.Status != model.WarRecruiting && w.Status != model.WarInProgress {
			return ErrInvalidState
		}
		members, err := s.wars.WithTx(tx).Members(ctx, id)
		if err != nil {
			return err
		}
		users := s.users.WithTx(tx)
		for _, m := range members {
			if _, err := users.AddPoints(ctx, m.UserID, m.PointsBet); err != nil {
				return fmt.Errorf("failed to refund war member %d: %w", m.UserID, err)
			}
			r.Amount += m.PointsBet
		}
		r.Members = len(members)
		return s.wars.WithTx(tx).SetStatus(ctx, id, model.WarCancelled, nil)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Int64("war_id", id).Int("members", r.Members).Int64("refunded", r.Amount).Msg("Guild war cancelled")
	return &r, nil
}

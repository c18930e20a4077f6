package service

import (
	"context"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/model"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/repository"
)

// Leaderboard sizes
const (
	LeaderboardSize = 10
	leaderboardPad  = 25 // extra rows fetched to backfill excluded users
)

// TransferBoard ranks lifetime senders and receivers.
type TransferBoard struct {
	Senders   []model.LeaderboardEntry
	Receivers []model.LeaderboardEntry
}

// Profile is everything the profile card shows.
type Profile struct {
	User  *model.User
	Roles []model.TempRole
}

// WinRate returns wins/attempts as a percentage, zero with no attempts.
func WinRate(wins, attempts int64) float64 {
	if attempts == 0 {
		return 0
	}
	return float64(wins) * 100 / float64(attempts)
}

// RankingService handles ranking and leaderboard operations.
type RankingService struct {
	users *repository.UserRepository
	roles *repository.RoleRepository
}

// NewRankingService creates a new RankingService instance.
func NewRankingService(users *repository.UserRepository, roles *repository.RoleRepository) *RankingService {
	return &RankingService{users: users, roles: roles}
}

// TopUsers returns the richest users, skipping those exclude reports true for.
func (s *RankingService) TopUsers(ctx context.Context, exclude func(userID int64) bool) ([]model.LeaderboardEntry, error) {
	entries, err := s.users.TopByPoints(ctx, LeaderboardSize+leaderboardPad)
	if err != nil {
		return nil, err
	}
	out := make([]model.LeaderboardEntry, 0, LeaderboardSize)
	for _, e := range entries {
		if exclude != nil && exclude(e.UserID) {
			continue
		}
		out = append(out, e)
		if len(out) == LeaderboardSize {
			break
		}
	}
	return out, nil
}

// Transfers returns the top senders and receivers.
func (s *RankingService) Transfers(ctx context.Context) (*TransferBoard, error) {
	senders, err := s.users.TopSenders(ctx, LeaderboardSize)
	if err != nil {
		return nil, err
	}
	receivers, err := s.users.TopReceivers(ctx, LeaderboardSize)
	if err != nil {
		return nil, err
	}
	return &TransferBoard{Senders: senders, Receivers: receivers}, nil
}

// Profile loads a user's ledger row and active role grants.
func (s *RankingService) Profile(ctx context.Context, userID int64) (*Profile, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	roles, err := s.roles.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Profile{User: u, Roles: roles}, nil
}

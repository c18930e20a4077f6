package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/model"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/db"
)

// GuildWarRepository handles guild wars and their members.
type GuildWarRepository struct {
	q db.Querier
}

// NewGuildWarRepository creates a new GuildWarRepository instance.
func NewGuildWarRepository(q db.Querier) *GuildWarRepository {
	return &GuildWarRepository{q: q}
}

// WithTx returns a repository bound to tx.
func (r *GuildWarRepository) WithTx(tx db.Querier) *GuildWarRepository {
	return &GuildWarRepository{q: tx}
}

const warColumns = `id, creator_id, war_name, team1_name, team2_name, entry_cost, status, winning_team, channel_id, thread_id, message_id, created_at`

// Create inserts w and fills in w.ID.
func (r *GuildWarRepository) Create(ctx context.Context, w *model.GuildWar) error {
	const query = `
		INSERT INTO guild_wars (creator_id, war_name, team1_name, team2_name, entry_cost, status, channel_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err := r.q.QueryRow(ctx, query, w.CreatorID, w.Name, w.Team1Name, w.Team2Name,
		w.EntryCost, w.Status, w.ChannelID, w.CreatedAt).Scan(&w.ID)
	if err != nil {
		return fmt.Errorf("failed to create guild war: %w", err)
	}
	return nil
}

// GetByID returns a war. Returns ErrNotFound if missing.
func (r *GuildWarRepository) GetByID(ctx context.Context, id int64) (*model.GuildWar, error) {
	return r.get(ctx, `SELECT `+warColumns+` FROM guild_wars WHERE id = $1`, id)
}

// GetForUpdate is GetByID with a row lock held until the transaction ends.
func (r *GuildWarRepository) GetForUpdate(ctx context.Context, id int64) (*model.GuildWar, error) {
	return r.get(ctx, `SELECT `+warColumns+` FROM guild_wars WHERE id = $1 FOR UPDATE`, id)
}

func (r *GuildWarRepository) get(ctx context.Context, query string, id int64) (*model.GuildWar, error) {
	rows, err := r.q.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get guild war: %w", err)
	}
	w, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[model.GuildWar])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan guild war: %w", err)
	}
	return w, nil
}

// SetStatus updates status and winning team together.
func (r *GuildWarRepository) SetStatus(ctx context.Context, id int64, status model.WarStatus, winningTeam *int) error {
	tag, err := r.q.Exec(ctx, `UPDATE guild_wars SET status = $2, winning_team = $3 WHERE id = $1`, id, status, winningTeam)
	if err != nil {
		return fmt.Errorf("failed to update guild war status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetMessage records the recruiting message and battle thread.
func (r *GuildWarRepository) SetMessage(ctx context.Context, id int64, channelID, messageID, threadID string) error {
	_, err := r.q.Exec(ctx,
		`UPDATE guild_wars SET channel_id = $2, message_id = $3, thread_id = $4 WHERE id = $1`,
		id, channelID, messageID, threadID)
	if err != nil {
		return fmt.Errorf("failed to set guild war message: %w", err)
	}
	return nil
}

// ========== Members ==========

// Members returns every member of a war ordered by team then user.
func (r *GuildWarRepository) Members(ctx context.Context, warID int64) ([]model.WarMember, error) {
	const query = `
		SELECT war_id, user_id, team_number, points_bet FROM guild_war_members
		WHERE war_id = $1
		ORDER BY team_number, user_id
	`
	rows, err := r.q.Query(ctx, query, warID)
	if err != nil {
		return nil, fmt.Errorf("failed to get guild war members: %w", err)
	}
	members, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.WarMember])
	if err != nil {
		return nil, fmt.Errorf("failed to scan guild war members: %w", err)
	}
	return members, nil
}

// Member returns one membership. Returns ErrNotFound if the user has not joined.
func (r *GuildWarRepository) Member(ctx context.Context, warID, userID int64) (*model.WarMember, error) {
	const query = `
		SELECT war_id, user_id, team_number, points_bet FROM guild_war_members
		WHERE war_id = $1 AND user_id = $2
	`
	rows, err := r.q.Query(ctx, query, warID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get guild war member: %w", err)
	}
	m, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[model.WarMember])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan guild war member: %w", err)
	}
	return m, nil
}

// AddMember inserts a membership.
func (r *GuildWarRepository) AddMember(ctx context.Context, m model.WarMember) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO guild_war_members (war_id, user_id, team_number, points_bet) VALUES ($1, $2, $3, $4)`,
		m.WarID, m.UserID, m.Team, m.PointsBet)
	if err != nil {
		return fmt.Errorf("failed to add guild war member: %w", err)
	}
	return nil
}

// SetMemberTeam moves a member to team, keeping their stake.
func (r *GuildWarRepository) SetMemberTeam(ctx context.Context, warID, userID int64, team int) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE guild_war_members SET team_number = $3 WHERE war_id = $1 AND user_id = $2`,
		warID, userID, team)
	if err != nil {
		return fmt.Errorf("failed to switch guild war team: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveMember deletes a membership.
func (r *GuildWarRepository) RemoveMember(ctx context.Context, warID, userID int64) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM guild_war_members WHERE war_id = $1 AND user_id = $2`, warID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove guild war member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/config"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/game/attack"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/model"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/repository"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/service"
)

// RankingHandler handles leaderboards and profiles.
type RankingHandler struct {
	base
	rankings *service.RankingService
}

// NewRankingHandler creates a new RankingHandler.
func NewRankingHandler(cfg *config.Config, rankings *service.RankingService) *RankingHandler {
	return &RankingHandler{base: base{cfg: cfg}, rankings: rankings}
}

// Commands implements Module.
func (h *RankingHandler) Commands() []Command {
	return []Command{
		{
			Def: &discordgo.ApplicationCommand{
				Name:        "leaderboard",
				Description: "The richest members",
			},
			Handle: h.HandleLeaderboard,
		},
		{
			Def: &discordgo.ApplicationCommand{
				Name:        "transferboard",
				Description: "Top senders and receivers of points",
			},
			Handle: h.HandleTransfers,
		},
		{
			Def: &discordgo.ApplicationCommand{
				Name:        "profile",
				Description: "Show a member's stats",
				Options: []*discordgo.ApplicationCommandOption{{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "Whose profile to show",
				}},
			},
			Handle: h.HandleProfile,
		},
	}
}

// Components implements Module.
func (h *RankingHandler) Components() []Component { return nil }

// HandleLeaderboard handles /leaderboard. Moderators are left out; members
// missing from the state cache are kept.
func (h *RankingHandler) HandleLeaderboard(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	entries, err := h.rankings.TopUsers(ctx, func(userID int64) bool {
		m, err := s.State.Member(i.GuildID, snowflake(userID))
		return err == nil && h.isMod(m)
	})
	if err != nil {
		return err
	}
	return replyEmbed(s, i, h.leaderboard("🏆 Leaderboard", entries))
}

// HandleTransfers handles /transferboard.
func (h *RankingHandler) HandleTransfers(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	board, err := h.rankings.Transfers(ctx)
	if err != nil {
		return err
	}
	return respond(s, i, &discordgo.InteractionResponseData{
		Embeds: []*discordgo.MessageEmbed{
			h.leaderboard("📤 Top senders", board.Senders),
			h.leaderboard("📥 Top receivers", board.Receivers),
		},
	})
}

// HandleProfile handles /profile.
func (h *RankingHandler) HandleProfile(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	userID, _, _ := commandOptions(i).UserID(i, "user")
	if userID == 0 {
		userID = invokerID(i)
	}
	p, err := h.rankings.Profile(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return replyEphemeral(s, i, fmt.Sprintf("%s has no %s yet.", mention(userID), h.cfg.Economy.PointName))
	}
	if err != nil {
		return err
	}
	return replyEmbed(s, i, h.profileEmbed(p))
}

func (h *RankingHandler) profileEmbed(p *service.Profile) *discordgo.MessageEmbed {
	u := p.User
	st := u.Stats
	fields := []*discordgo.MessageEmbedField{
		{Name: "Points", Value: h.points(u.Points), Inline: true},
		{Name: "Stash", Value: h.points(u.StashedPoints), Inline: true},
		{Name: "Sent / Received", Value: h.points(u.TotalSent) + " / " + h.points(u.TotalReceived), Inline: true},
		{
			Name: "Attack win rate",
			Value: fmt.Sprintf("≤%d: %s (%d/%d)\n>%d: %s (%d/%d)",
				attack.HighStakeThreshold, percent(service.WinRate(st.WinsLow, st.AttemptsLow)/100), st.WinsLow, st.AttemptsLow,
				attack.HighStakeThreshold, percent(service.WinRate(st.WinsHigh, st.AttemptsHigh)/100), st.WinsHigh, st.AttemptsHigh),
		},
		{Name: "Profit", Value: h.profitLines(u.Profit)},
	}
	if len(p.Roles) > 0 {
		var sb strings.Builder
		for _, r := range p.Roles {
			fmt.Fprintf(&sb, "<@&%s> expires %s\n", r.RoleID, relative(r.ExpiresAt))
		}
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Shop roles", Value: sb.String()})
	}
	return &discordgo.MessageEmbed{
		Title:       "📇 Profile",
		Description: mention(u.UserID),
		Color:       colorBlue,
		Fields:      fields,
	}
}

func (h *RankingHandler) profitLines(pr model.Profit) string {
	rows := []struct {
		name  string
		value int64
	}{
		{"Attack", pr.Attack},
		{"Defense", pr.Defense},
		{"Dodge", pr.Dodge},
		{"Pierce", pr.Pierce},
		{"Beg", pr.Beg},
		{"Trap", pr.Trap},
		{"Prediction", pr.Prediction},
		{"Guild war", pr.GuildWar},
	}
	var sb strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&sb, "%s: %s\n", r.name, signed(r.value))
	}
	fmt.Fprintf(&sb, "**Total: %s**", signed(pr.Total()))
	return sb.String()
}

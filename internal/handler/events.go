package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/config"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/service"
)

// Events handles gateway events that are not interactions.
type Events struct {
	base
	accounts *service.AccountService
	traps    *TrapHandler
	airdrops *AirdropHandler
}

// NewEvents creates the gateway event handlers.
func NewEvents(cfg *config.Config, accounts *service.AccountService, traps *TrapHandler, airdrops *AirdropHandler) *Events {
	return &Events{base: base{cfg: cfg}, accounts: accounts, traps: traps, airdrops: airdrops}
}

// MessageCreate fires traps first, then pays chat earnings.
func (e *Events) MessageCreate(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) error {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return nil
	}
	if _, err := e.traps.HandleMessage(ctx, s, m); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("channel_id", m.ChannelID).Msg("Trap check failed")
	}

	userID, err := parseID(m.Author.ID)
	if err != nil {
		return nil
	}
	booster := m.Member != nil && config.HasRole(m.Member.Roles, e.cfg.Discord.BoosterRoleID)
	earning, err := e.accounts.Earn(ctx, userID, booster, time.Now())
	if err != nil || earning == nil {
		return err
	}

	logger := zerolog.Ctx(ctx).Debug().Int64("user_id", userID).Int64("amount", earning.Amount)
	if earning.Crit || earning.Booster {
		logger = logger.Bool("crit", earning.Crit).Bool("booster", earning.Booster)
	}
	logger.Msg("Chat earning")

	if earning.Welcome {
		e.welcome(ctx, s, userID)
	}
	return nil
}

// MessageReactionAdd routes reactions to airdrops.
func (e *Events) MessageReactionAdd(ctx context.Context, s *discordgo.Session, r *discordgo.MessageReactionAdd) error {
	if r.Member != nil && r.Member.User != nil && r.Member.User.Bot {
		return nil
	}
	return e.airdrops.HandleReaction(ctx, s, r)
}

// GuildMemberAdd grants the welcome bonus to members never seen before.
func (e *Events) GuildMemberAdd(ctx context.Context, s *discordgo.Session, m *discordgo.GuildMemberAdd) error {
	if m.User == nil || m.User.Bot {
		return nil
	}
	userID, err := parseID(m.User.ID)
	if err != nil {
		return nil
	}
	created, err := e.accounts.Welcome(ctx, userID)
	if err != nil || !created {
		return err
	}
	e.welcome(ctx, s, userID)
	return nil
}

func (e *Events) welcome(ctx context.Context, s *discordgo.Session, userID int64) {
	channelID := e.cfg.Discord.BotChannelID
	if channelID == "" {
		return
	}
	_, err := s.ChannelMessageSendEmbed(channelID, &discordgo.MessageEmbed{
		Title:       "🎉 Welcome Bonus!",
		Description: fmt.Sprintf("Welcome %s! You received **%s** as a welcome gift!", mention(userID), e.points(service.WelcomeBonus)),
		Color:       colorGreen,
	})
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int64("user_id", userID).Msg("Failed to send welcome message")
	}
}

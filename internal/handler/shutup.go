package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/config"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/effect"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/service"
)

// ShutupHandler handles /shutup.
type ShutupHandler struct {
	base
	shutups *service.ShutupService
}

// NewShutupHandler creates a new ShutupHandler.
func NewShutupHandler(cfg *config.Config, shutups *service.ShutupService) *ShutupHandler {
	return &ShutupHandler{base: base{cfg: cfg}, shutups: shutups}
}

// Commands implements Module.
func (h *ShutupHandler) Commands() []Command {
	return []Command{{
		Def: &discordgo.ApplicationCommand{
			Name:        "shutup",
			Description: "Spend half your points to time out someone poorer",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "Who to silence",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "message",
					Description: "Something to say to them",
					Required:    true,
					MaxLength:   service.ShutupMaxMessage,
				},
			},
		},
		Handle: h.HandleShutup,
	}}
}

// Components implements Module.
func (h *ShutupHandler) Components() []Component { return nil }

// HandleShutup charges the attacker and then times out the target.
func (h *ShutupHandler) HandleShutup(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	opts := commandOptions(i)
	targetID, user, member := opts.UserID(i, "user")
	attackerID := invokerID(i)

	res, err := h.shutups.Shutup(ctx, service.ShutupRequest{
		AttackerID:    attackerID,
		TargetID:      targetID,
		AttackerIsMod: h.isMod(i.Member),
		TargetIsMod:   h.isMod(member),
		TargetIsBot:   user != nil && user.Bot,
	})
	if err != nil {
		return err
	}

	// the points are already settled, a failed timeout is only logged
	until := time.Now().Add(res.Timeout)
	if err := s.GuildMemberTimeout(i.GuildID, snowflake(targetID), &until); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int64("target_id", targetID).Msg("Failed to apply shutup timeout")
	}

	return respond(s, i, &discordgo.InteractionResponseData{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "🤐 Shut up!",
			Description: fmt.Sprintf("%s silenced %s for %s\n> %s", mention(attackerID), mention(targetID), effect.FormatRemaining(res.Timeout), opts.String("message")),
			Color:       colorPurple,
			Fields: []*discordgo.MessageEmbedField{
				{Name: "Paid", Value: h.points(res.Lost), Inline: true},
				{Name: "To target", Value: h.points(res.ToTarget), Inline: true},
				{Name: "Tax", Value: h.points(res.ToTax), Inline: true},
			},
		}},
	})
}

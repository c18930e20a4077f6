package handler

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/config"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/service"
)

// Claim reactions. The choice is cosmetic, the payout depends on wealth.
var airdropReactions = []string{"🤑", "💸", "💰"}

var airdropOutcomeText = map[service.ClaimOutcome]string{
	service.ClaimDouble:  "✨ **JACKPOT!** Got **%s** (x2)!",
	service.ClaimNormal:  "💰 Got **%s**!",
	service.ClaimHalf:    "📉 Got **%s** (÷2)!",
	service.ClaimNothing: "💀 **OH NO!** Got **nothing**%.0s! Better luck next time!",
}

// AirdropHandler starts reaction airdrops and pays out claims.
type AirdropHandler struct {
	base
	airdrops *service.AirdropService
}

// NewAirdropHandler creates a new AirdropHandler.
func NewAirdropHandler(cfg *config.Config, airdrops *service.AirdropService) *AirdropHandler {
	return &AirdropHandler{base: base{cfg: cfg}, airdrops: airdrops}
}

// Commands implements Module.
func (h *AirdropHandler) Commands() []Command {
	minOne := 1.0
	return []Command{{
		Def: modCommand("airdrop", "Start an airdrop members claim by reacting",
			&discordgo.ApplicationCommandOption{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "amount",
				Description: "Base reward (default 100)",
				MinValue:    &minOne,
				MaxValue:    service.AirdropMaxAmount,
			},
			&discordgo.ApplicationCommandOption{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "max_users",
				Description: "How many members can claim (default 5)",
				MinValue:    &minOne,
				MaxValue:    service.AirdropMaxUsers,
			},
		),
		Handle:    h.HandleAirdrop,
		Moderator: true,
	}}
}

// Components implements Module.
func (h *AirdropHandler) Components() []Component { return nil }

// HandleAirdrop posts the airdrop message and registers it for claims.
func (h *AirdropHandler) HandleAirdrop(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	opts := commandOptions(i)
	amount := opts.Int("amount", 100)
	maxUsers := int(opts.Int("max_users", 5))

	embed := &discordgo.MessageEmbed{
		Title: "💸 AIRDROP!",
		Description: fmt.Sprintf("Pick your luck by reacting! **%s** base reward\n\n"+
			"🤑 **CRIT** - double points (x2)\n💸 **NORMAL** - full reward (x1)\n💰 **HALF** - half reward (÷2)\n\n"+
			"⚠️ First **%d** members only!", h.points(amount), maxUsers),
		Color:  colorGold,
		Footer: &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("0/%d claimed", maxUsers)},
	}
	msg, err := s.ChannelMessageSendEmbed(i.ChannelID, embed)
	if err != nil {
		return fmt.Errorf("failed to post airdrop: %w", err)
	}
	if err := h.airdrops.Start(msg.ID, invokerID(i), amount, maxUsers); err != nil {
		_ = s.ChannelMessageDelete(i.ChannelID, msg.ID)
		return err
	}
	if err := replyEphemeral(s, i, "✅ Airdrop started."); err != nil {
		return err
	}
	for _, emoji := range airdropReactions {
		if err := s.MessageReactionAdd(i.ChannelID, msg.ID, emoji); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("emoji", emoji).Msg("Failed to add airdrop reaction")
		}
	}
	return nil
}

// HandleReaction pays a claim when r is a reaction on an open airdrop.
func (h *AirdropHandler) HandleReaction(ctx context.Context, s *discordgo.Session, r *discordgo.MessageReactionAdd) error {
	if s.State.User != nil && r.UserID == s.State.User.ID {
		return nil
	}
	if !slices.Contains(airdropReactions, r.Emoji.Name) || !h.airdrops.Open(r.MessageID) {
		return nil
	}
	userID, err := parseID(r.UserID)
	if err != nil {
		return nil
	}

	claim, err := h.airdrops.Claim(ctx, r.MessageID, userID)
	switch {
	case errors.Is(err, service.ErrAlreadyClaimed), errors.Is(err, service.ErrAirdropEnded):
		return nil
	case err != nil:
		return err
	case claim == nil:
		return nil
	}

	text := fmt.Sprintf("%s reacted with %s...\n", mention(userID), r.Emoji.Name) +
		fmt.Sprintf(airdropOutcomeText[claim.Outcome], h.points(claim.Amount)) +
		fmt.Sprintf(" [%d/%d]", claim.Claimed, claim.MaxUsers)
	if _, err := s.ChannelMessageSend(r.ChannelID, text); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to announce airdrop claim")
	}

	if claim.Finished {
		if _, err := s.ChannelMessageSend(r.ChannelID, "🏁 The airdrop is over, every reward has been claimed!"); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to announce airdrop end")
		}
	}
	return nil
}


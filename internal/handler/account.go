package handler

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/config"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/service"
)

// AccountHandler handles balance and stash commands.
type AccountHandler struct {
	base
	accounts *service.AccountService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(cfg *config.Config, accounts *service.AccountService) *AccountHandler {
	return &AccountHandler{base: base{cfg: cfg}, accounts: accounts}
}

// Commands implements Module.
func (h *AccountHandler) Commands() []Command {
	minAmount := 1.0
	amount := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        "amount",
		Description: "How many points",
		Required:    true,
		MinValue:    &minAmount,
	}
	return []Command{
		{
			Def: &discordgo.ApplicationCommand{
				Name:        "points",
				Description: "Show your balance or someone else's",
				Options: []*discordgo.ApplicationCommandOption{{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "Whose balance to show",
				}},
			},
			Handle: h.HandlePoints,
		},
		{
			Def: &discordgo.ApplicationCommand{
				Name:        "stash",
				Description: "Keep points safe from attacks",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "deposit",
						Description: fmt.Sprintf("Move points into your stash (max %d)", service.StashLimit),
						Options:     []*discordgo.ApplicationCommandOption{amount},
					},
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "withdraw",
						Description: "Take points out of your stash",
						Options:     []*discordgo.ApplicationCommandOption{amount},
					},
				},
			},
			Handle: h.HandleStash,
		},
	}
}

// Components implements Module.
func (h *AccountHandler) Components() []Component { return nil }

// HandlePoints handles /points.
func (h *AccountHandler) HandlePoints(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	opts := commandOptions(i)
	userID, _, _ := opts.UserID(i, "user")
	if userID == 0 {
		userID = invokerID(i)
	}

	u, err := h.accounts.Account(ctx, userID)
	if err != nil {
		return err
	}

	desc := fmt.Sprintf("%s has **%s**", mention(userID), h.points(u.Points))
	if u.StashedPoints > 0 {
		desc += fmt.Sprintf("\n🔒 Stashed: %s", h.points(u.StashedPoints))
	}
	if u.Points < 0 {
		desc += "\n⚠️ This balance is in debt."
	}
	return replyEmbed(s, i, &discordgo.MessageEmbed{
		Title:       "💰 Balance",
		Description: desc,
		Color:       colorGold,
	})
}

// HandleStash handles /stash deposit and /stash withdraw.
func (h *AccountHandler) HandleStash(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	opts := commandOptions(i)
	userID := invokerID(i)
	amount := opts.Int("amount", 0)

	switch opts.sub {
	case "deposit":
		u, err := h.accounts.Deposit(ctx, userID, amount)
		if err != nil {
			return err
		}
		return replyEphemeral(s, i, fmt.Sprintf("🔒 Stashed %s. Stash: %s / %s, wallet: %s",
			h.points(amount), h.points(u.StashedPoints), h.points(service.StashLimit), h.points(u.Points)))
	case "withdraw":
		u, err := h.accounts.Withdraw(ctx, userID, amount)
		if err != nil {
			return err
		}
		return replyEphemeral(s, i, fmt.Sprintf("🔓 Withdrew %s. Stash: %s, wallet: %s",
			h.points(amount), h.points(u.StashedPoints), h.points(u.Points)))
	}
	return ErrInvalidInput
}

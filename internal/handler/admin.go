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

// AdminHandler handles moderator economy commands.
type AdminHandler struct {
	base
	accounts *service.AccountService
	airdrops *service.AirdropService
	daily    *service.DailyService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(cfg *config.Config, accounts *service.AccountService, airdrops *service.AirdropService, daily *service.DailyService) *AdminHandler {
	return &AdminHandler{base: base{cfg: cfg}, accounts: accounts, airdrops: airdrops, daily: daily}
}

func modCommand(name, desc string, opts ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:                     name,
		Description:              desc,
		DefaultMemberPermissions: &modPermission,
		Options:                  opts,
	}
}

// Commands implements Module.
func (h *AdminHandler) Commands() []Command {
	minAmount, minPercent := 1.0, 1.0
	amount := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        "amount",
		Description: "Number of points",
		Required:    true,
		MinValue:    &minAmount,
	}
	return []Command{
		{
			Def:       modCommand("addpoint", "Give points to a member", targetOption("Who receives the points"), amount),
			Handle:    h.HandleAdd,
			Moderator: true,
		},
		{
			Def:       modCommand("removepoint", "Take points from a member", targetOption("Who loses the points"), amount),
			Handle:    h.HandleRemove,
			Moderator: true,
		},
		{
			Def:       modCommand("showtax", "Show the tax pool"),
			Handle:    h.HandleShowTax,
			Moderator: true,
		},
		{
			Def: modCommand("taxairdrop", "Split part of the tax pool among everyone with points",
				&discordgo.ApplicationCommandOption{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "percent",
					Description: "Share of the pool to give away",
					Required:    true,
					MinValue:    &minPercent,
					MaxValue:    100,
				}),
			Handle:    h.HandleTaxAirdrop,
			Moderator: true,
		},
		{
			Def:       modCommand("rundaily", "Run today's reset, interest and wealth tax now"),
			Handle:    h.HandleRunDaily,
			Moderator: true,
		},
		{
			Def:       modCommand("runinterest", fmt.Sprintf("Pay %d%% interest on every stash", service.ManualInterestPercent)),
			Handle:    h.HandleRunInterest,
			Moderator: true,
		},
	}
}

// Components implements Module.
func (h *AdminHandler) Components() []Component { return nil }

// HandleAdd handles /addpoint.
func (h *AdminHandler) HandleAdd(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	opts := commandOptions(i)
	target, _, _ := opts.UserID(i, "user")
	amount := opts.Int("amount", 0)

	balance, err := h.accounts.Grant(ctx, target, amount)
	if err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Int64("user_id", invokerID(i)).Int64("target_id", target).Int64("amount", amount).Msg("Moderator added points")
	return reply(s, i, fmt.Sprintf("✅ Added %s to %s. New balance: %s", h.points(amount), mention(target), h.points(balance)))
}

// HandleRemove handles /removepoint.
func (h *AdminHandler) HandleRemove(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	opts := commandOptions(i)
	target, _, _ := opts.UserID(i, "user")

	removed, balance, err := h.accounts.Revoke(ctx, target, opts.Int("amount", 0))
	if err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Int64("user_id", invokerID(i)).Int64("target_id", target).Int64("amount", removed).Msg("Moderator removed points")
	return reply(s, i, fmt.Sprintf("✅ Removed %s from %s. New balance: %s", h.points(removed), mention(target), h.points(balance)))
}

// HandleShowTax handles /showtax.
func (h *AdminHandler) HandleShowTax(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	pool, err := h.airdrops.TaxPool(ctx)
	if err != nil {
		return err
	}
	return replyEphemeral(s, i, "🏦 Tax pool: "+h.points(pool))
}

// HandleTaxAirdrop handles /taxairdrop.
func (h *AdminHandler) HandleTaxAirdrop(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	drop, err := h.airdrops.DistributeTax(ctx, commandOptions(i).Int("percent", 0))
	if err != nil {
		return err
	}
	return replyEmbed(s, i, &discordgo.MessageEmbed{
		Title:       "🏦 Tax airdrop!",
		Description: fmt.Sprintf("%s from the tax pool went to %d members.", h.points(drop.Amount), drop.Recipients),
		Color:       colorGold,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Each", Value: h.points(drop.PerUser), Inline: true},
			{Name: "Pool left", Value: h.points(drop.PoolLeft), Inline: true},
		},
	})
}

// HandleRunDaily handles /rundaily. A day that already ran is reported, not repeated.
func (h *AdminHandler) HandleRunDaily(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	if err := deferResponse(s, i, true); err != nil {
		return err
	}
	report, err := h.daily.Run(ctx, time.Now())
	if err != nil {
		return err
	}
	day := report.Day.Format(time.DateOnly)
	if !report.Changed() {
		return editResponse(s, i, fmt.Sprintf("📅 The daily job already ran for %s.", day))
	}
	msg := fmt.Sprintf("📅 Daily job for %s: %d counters reset, %s interest paid, %d members taxed for %s.",
		day, report.Reset, h.points(report.Interest), report.Taxed, h.points(report.TaxCollected))
	if report.Failed > 0 {
		msg += fmt.Sprintf("\n⚠️ %d members failed and will be retried on the next run.", report.Failed)
	}
	return editResponse(s, i, msg)
}

// HandleRunInterest handles /runinterest.
func (h *AdminHandler) HandleRunInterest(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	paid, err := h.daily.RunInterest(ctx)
	if err != nil {
		return err
	}
	return reply(s, i, fmt.Sprintf("🏦 Paid %s of stash interest.", h.points(paid)))
}

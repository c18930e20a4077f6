package handler

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/config"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/service"
)

// TransferHandler handles /sendpoint.
type TransferHandler struct {
	base
	transfers *service.TransferService
}

// NewTransferHandler creates a new TransferHandler.
func NewTransferHandler(cfg *config.Config, transfers *service.TransferService) *TransferHandler {
	return &TransferHandler{base: base{cfg: cfg}, transfers: transfers}
}

// Commands implements Module.
func (h *TransferHandler) Commands() []Command {
	minAmount := 1.0
	return []Command{{
		Def: &discordgo.ApplicationCommand{
			Name:        "sendpoint",
			Description: fmt.Sprintf("Send points to another member (%d%% tax)", service.TransferTaxPercent),
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "Who receives the points",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "amount",
					Description: "How many points to send",
					Required:    true,
					MinValue:    &minAmount,
				},
			},
		},
		Handle: h.HandleSend,
	}}
}

// Components implements Module.
func (h *TransferHandler) Components() []Component { return nil }

// HandleSend handles /sendpoint.
func (h *TransferHandler) HandleSend(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	opts := commandOptions(i)
	to, user, _ := opts.UserID(i, "user")
	if user != nil && user.Bot {
		return service.ErrTargetIsBot
	}
	from := invokerID(i)

	res, err := h.transfers.Send(ctx, from, to, opts.Int("amount", 0))
	if err != nil {
		return err
	}

	zerolog.Ctx(ctx).Info().
		Int64("user_id", from).
		Int64("target_id", to).
		Int64("amount", res.Sent).
		Msg("Points sent")

	return reply(s, i, fmt.Sprintf("💸 %s sent %s to %s (%s tax). Your balance: %s",
		mention(from), h.points(res.Received), mention(to), h.points(res.Tax), h.points(res.SenderBalance)))
}

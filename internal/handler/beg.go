package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/config"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/game/attack"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/service"
)

// Beg custom id prefixes. Buttons are beg_<beggar>_<action>, modals are
// begmodal_create and begmodal_<give|attack>_<beggar>.
const (
	prefixBeg      = "beg_"
	prefixBegModal = "begmodal_"
	begCreateModal = prefixBegModal + "create"
)

// BegHandler handles beg requests and the buttons under them.
type BegHandler struct {
	base
	accounts  *service.AccountService
	transfers *service.TransferService
	attacks   *attack.Service
}

// NewBegHandler creates a new BegHandler.
func NewBegHandler(cfg *config.Config, accounts *service.AccountService, transfers *service.TransferService, attacks *attack.Service) *BegHandler {
	return &BegHandler{base: base{cfg: cfg}, accounts: accounts, transfers: transfers, attacks: attacks}
}

// Commands implements Module.
func (h *BegHandler) Commands() []Command {
	return []Command{{
		Def: &discordgo.ApplicationCommand{
			Name:        "beg",
			Description: "Ask the server for points",
		},
		Handle: h.HandleBeg,
	}}
}

// Components implements Module.
func (h *BegHandler) Components() []Component {
	return []Component{
		{Prefix: prefixBeg, Handle: h.HandleButton},
		{Prefix: prefixBegModal, Handle: h.HandleModal},
	}
}

// HandleBeg opens the beg request modal.
func (h *BegHandler) HandleBeg(_ context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	return showModal(s, i, begCreateModal, "Create Beg Request",
		textInput{id: "beg_title", label: "Beg Title", placeholder: "Enter your beg title", maxLen: 100},
		textInput{id: "beg_text", label: "Beg Message", placeholder: "Why do you need points?", paragraph: true, maxLen: 1000},
	)
}

func begButtons(beggarID int64) []discordgo.MessageComponent {
	id := fmt.Sprintf("%s%d_", prefixBeg, beggarID)
	return []discordgo.MessageComponent{discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		button("Check Points", "🔍", id+"check", discordgo.SecondaryButton),
		button("Give Points", "💰", id+"give", discordgo.SuccessButton),
		button("Attack", "⚔️", id+"attack", discordgo.DangerButton),
		button("Stop Beg", "🛑", id+"stop", discordgo.SecondaryButton),
	}}}
}

// HandleModal handles the create, give and attack modals.
func (h *BegHandler) HandleModal(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	customID := i.ModalSubmitData().CustomID
	if customID == begCreateModal {
		return h.create(ctx, s, i)
	}

	parts := customIDParts(customID, prefixBegModal)
	if len(parts) != 2 {
		return ErrInvalidInput
	}
	beggarID, err := parseID(parts[1])
	if err != nil {
		return ErrInvalidInput
	}
	amount, err := parseAmount(modalValues(i)["amount"])
	if err != nil {
		return err
	}

	switch parts[0] {
	case "give":
		return h.give(ctx, s, i, beggarID, amount)
	case "attack":
		return h.attack(ctx, s, i, beggarID, amount)
	}
	return ErrInvalidInput
}

func (h *BegHandler) create(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	values := modalValues(i)
	in := BegInput{Title: values["beg_title"], Message: values["beg_text"]}
	if err := validateInput(in); err != nil {
		return err
	}

	user := invoker(i)
	beggarID := invokerID(i)
	embed := &discordgo.MessageEmbed{
		Title:       "🙏 " + in.Title,
		Description: in.Message,
		Color:       colorGold,
		Author:      &discordgo.MessageEmbedAuthor{Name: user.GlobalName, IconURL: user.AvatarURL("")},
		Footer:      &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Beggar ID: %d", beggarID)},
	}
	if embed.Author.Name == "" {
		embed.Author.Name = user.Username
	}

	channelID := h.cfg.Discord.BegChannelID
	if channelID == "" {
		channelID = i.ChannelID
	}
	if _, err := s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: begButtons(beggarID),
	}); err != nil {
		return fmt.Errorf("failed to post beg: %w", err)
	}

	zerolog.Ctx(ctx).Info().Int64("user_id", beggarID).Str("channel_id", channelID).Msg("Beg posted")
	return replyEphemeral(s, i, fmt.Sprintf("✅ Your beg request has been posted in <#%s>!", channelID))
}

// HandleButton handles the check, give, attack and stop buttons.
func (h *BegHandler) HandleButton(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	parts := customIDParts(i.MessageComponentData().CustomID, prefixBeg)
	if len(parts) != 2 {
		return ErrInvalidInput
	}
	beggarID, err := parseID(parts[0])
	if err != nil {
		return ErrInvalidInput
	}
	userID := invokerID(i)

	switch parts[1] {
	case "check":
		u, err := h.accounts.Account(ctx, beggarID)
		if err != nil {
			return err
		}
		return replyEphemeral(s, i, fmt.Sprintf("🔍 %s currently has **%s**", mention(beggarID), h.points(u.Points)))

	case "give":
		if userID == beggarID {
			return service.ErrSelfTransfer
		}
		return showModal(s, i, fmt.Sprintf("%sgive_%d", prefixBegModal, beggarID), "Give Points",
			textInput{id: "amount", label: "Amount to Give", placeholder: "Enter amount of points", maxLen: 10})

	case "attack":
		if userID == beggarID {
			return attack.ErrSelfTarget
		}
		return showModal(s, i, fmt.Sprintf("%sattack_%d", prefixBegModal, beggarID), "Attack Beggar",
			textInput{
				id:          "amount",
				label:       "Attack Amount",
				placeholder: fmt.Sprintf("Enter amount to risk (%d-%d)", attack.MinBegStake, attack.MaxBegStake),
				maxLen:      10,
			})

	case "stop":
		if userID != beggarID {
			return fmt.Errorf("%w: only the beggar can stop this request", ErrInvalidInput)
		}
		return h.stop(s, i)
	}
	return ErrInvalidInput
}

func (h *BegHandler) stop(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	embed := &discordgo.MessageEmbed{Title: "🛑 Beg request [CLOSED]"}
	if len(i.Message.Embeds) > 0 {
		embed = i.Message.Embeds[0]
		embed.Title = "🛑 " + strings.TrimPrefix(embed.Title, "🙏 ") + " [CLOSED]"
	}
	embed.Color = colorGrey
	if err := updateMessage(s, i, embed, disabled(i.Message.Components)); err != nil {
		return err
	}
	_, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: mention(invokerID(i)) + " has closed their beg request.",
	})
	return err
}

func (h *BegHandler) give(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, beggarID, amount int64) error {
	giverID := invokerID(i)
	if _, err := h.transfers.Give(ctx, giverID, beggarID, amount); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Int64("user_id", giverID).Int64("target_id", beggarID).Int64("amount", amount).Msg("Beg answered")
	return reply(s, i, fmt.Sprintf("💰 %s gave **%s** to %s!", mention(giverID), h.points(amount), mention(beggarID)))
}

func (h *BegHandler) attack(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, beggarID, amount int64) error {
	attackerID := invokerID(i)
	res, err := h.attacks.BegAttack(ctx, attack.Request{
		AttackerID: attackerID,
		TargetID:   beggarID,
		Amount:     amount,
		ChannelID:  i.ChannelID,
		Now:        time.Now(),
	})
	if err != nil {
		return err
	}
	return replyEmbed(s, i, h.outcomeEmbed(attackerID, beggarID, res))
}

package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/config"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/game/prediction"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/model"
)

// Prediction custom ids. Bet buttons are pred_bet_<id>_<choice> and open
// pred_betmodal_<id>_<choice>.
const (
	prefixPredictionBet      = "pred_bet_"
	prefixPredictionBetModal = "pred_betmodal_"
	predictionCreateModal    = "pred_create"
)

// PredictionHandler handles the prediction market.
type PredictionHandler struct {
	base
	predictions *prediction.Service
}

// NewPredictionHandler creates a new PredictionHandler.
func NewPredictionHandler(cfg *config.Config, predictions *prediction.Service) *PredictionHandler {
	return &PredictionHandler{base: base{cfg: cfg}, predictions: predictions}
}

func predictionIDOption() *discordgo.ApplicationCommandOption {
	minID := 1.0
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        "id",
		Description: "Prediction number",
		Required:    true,
		MinValue:    &minID,
	}
}

// Commands implements Module.
func (h *PredictionHandler) Commands() []Command {
	minChoice, minCost := 1.0, 0.0
	return []Command{
		{
			Def: &discordgo.ApplicationCommand{
				Name:        "predict",
				Description: "Open a prediction members can bet on",
			},
			Handle: h.HandleCreate,
		},
		{
			Def: &discordgo.ApplicationCommand{
				Name:        "predictions",
				Description: "List open predictions",
			},
			Handle: h.HandleList,
		},
		{
			Def: &discordgo.ApplicationCommand{
				Name:        "predictlock",
				Description: "Close betting on your prediction",
				Options:     []*discordgo.ApplicationCommandOption{predictionIDOption()},
			},
			Handle: h.HandleLock,
		},
		{
			Def: &discordgo.ApplicationCommand{
				Name:        "predictresolve",
				Description: "Pay out your prediction on the winning choice",
				Options: []*discordgo.ApplicationCommandOption{
					predictionIDOption(),
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "choice",
						Description: "Winning choice number",
						Required:    true,
						MinValue:    &minChoice,
						MaxValue:    prediction.MaxChoices,
					},
				},
			},
			Handle: h.HandleResolve,
		},
		{
			Def:       modCommand("predictundo", "Revert a resolved prediction", predictionIDOption()),
			Handle:    h.HandleUndo,
			Moderator: true,
		},
		{
			Def:       modCommand("predictcancel", "Cancel a prediction and refund every bet", predictionIDOption()),
			Handle:    h.HandleCancel,
			Moderator: true,
		},
		{
			Def: modCommand("predictioncost", "Set what members pay to open a prediction", &discordgo.ApplicationCommandOption{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "cost",
				Description: "Points charged per prediction",
				Required:    true,
				MinValue:    &minCost,
			}),
			Handle:    h.HandleSetCost,
			Moderator: true,
		},
	}
}

// Components implements Module.
func (h *PredictionHandler) Components() []Component {
	return []Component{
		{Prefix: prefixPredictionBet, Handle: h.HandleBetButton},
		{Prefix: prefixPredictionBetModal, Handle: h.HandleBetModal},
		{Prefix: predictionCreateModal, Handle: h.HandleCreateModal},
	}
}

func (h *PredictionHandler) actor(i *discordgo.InteractionCreate) model.Actor {
	return model.Actor{UserID: invokerID(i), IsMod: h.isMod(i.Member)}
}

// HandleCreate opens the create modal.
func (h *PredictionHandler) HandleCreate(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	cost, err := h.predictions.Cost(ctx)
	if err != nil {
		return err
	}
	title := "Create Prediction"
	if !h.isMod(i.Member) && cost > 0 {
		title = printer.Sprintf("Create Prediction (costs %d)", cost)
	}
	return showModal(s, i, predictionCreateModal, title,
		textInput{id: "title", label: "Question", placeholder: "Who wins tonight?", maxLen: prediction.MaxTitleLen},
		textInput{id: "choices", label: "Choices, one per line", placeholder: "Team A\nTeam B", paragraph: true, maxLen: 300},
		textInput{id: "minutes", label: "Betting minutes (1-150)", placeholder: "10", value: "10", maxLen: 3},
	)
}

// HandleCreateModal creates the prediction and posts its betting message.
func (h *PredictionHandler) HandleCreateModal(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	v := modalValues(i)
	in, err := parsePredictionInput(v["title"], v["choices"], v["minutes"])
	if err != nil {
		return err
	}
	p, err := h.predictions.Create(ctx, prediction.CreateRequest{
		Creator:   h.actor(i),
		Title:     in.Title,
		Choices:   in.Choices,
		Duration:  time.Duration(in.Minutes) * time.Minute,
		ChannelID: i.ChannelID,
		Now:       time.Now(),
	})
	if err != nil {
		return err
	}

	sum := &prediction.Summary{Prediction: p, Pools: map[int]int64{}, Bettors: map[int]int{}}
	if err := replyEmbed(s, i, h.predictionEmbed(sum), predictionButtons(p)...); err != nil {
		return err
	}
	msg, err := s.InteractionResponse(i.Interaction)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int64("prediction_id", p.ID).Msg("Failed to read prediction message")
		return nil
	}
	if err := h.predictions.SetMessage(ctx, p.ID, msg.ChannelID, msg.ID); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("prediction_id", p.ID).Msg("Failed to store prediction message")
	}
	return nil
}

// predictionTarget reads "<id>_<choice>" after prefix.
func predictionTarget(customID, prefix string) (int64, int, error) {
	parts := customIDParts(customID, prefix)
	if len(parts) != 2 {
		return 0, 0, ErrInvalidInput
	}
	id, err := parseID(parts[0])
	if err != nil {
		return 0, 0, ErrInvalidInput
	}
	choice, err := parseID(parts[1])
	if err != nil {
		return 0, 0, ErrInvalidInput
	}
	return id, int(choice), nil
}

// HandleBetButton opens the stake modal for one choice.
func (h *PredictionHandler) HandleBetButton(_ context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	id, choice, err := predictionTarget(i.MessageComponentData().CustomID, prefixPredictionBet)
	if err != nil {
		return err
	}
	return showModal(s, i, fmt.Sprintf("%s%d_%d", prefixPredictionBetModal, id, choice), fmt.Sprintf("Bet on choice %d", choice),
		textInput{id: "amount", label: "Amount to bet", placeholder: "Enter amount of points", maxLen: 10})
}

// HandleBetModal places the bet and refreshes the pools.
func (h *PredictionHandler) HandleBetModal(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	id, choice, err := predictionTarget(i.ModalSubmitData().CustomID, prefixPredictionBetModal)
	if err != nil {
		return err
	}
	amount, err := parseAmount(modalValues(i)["amount"])
	if err != nil {
		return err
	}
	res, err := h.predictions.PlaceBet(ctx, id, h.actor(i), choice, amount, time.Now())
	if err != nil {
		return err
	}
	if err := replyEphemeral(s, i, fmt.Sprintf("🎲 You now have %s on choice %d of **%s**. Balance: %s",
		h.points(res.Stake), choice, res.Prediction.Title, h.points(res.Remaining))); err != nil {
		return err
	}
	h.refresh(ctx, s, id)
	return nil
}

// HandleList handles /predictions.
func (h *PredictionHandler) HandleList(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	active, err := h.predictions.Active(ctx)
	if err != nil {
		return err
	}
	if len(active) == 0 {
		return replyEphemeral(s, i, "🔮 There are no open predictions.")
	}
	embeds := make([]*discordgo.MessageEmbed, 0, len(active))
	for n, sum := range active {
		if n == 10 {
			break
		}
		embeds = append(embeds, h.predictionEmbed(sum))
	}
	return respond(s, i, &discordgo.InteractionResponseData{Embeds: embeds, Flags: discordgo.MessageFlagsEphemeral})
}

// HandleLock handles /predictlock.
func (h *PredictionHandler) HandleLock(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	id := commandOptions(i).Int("id", 0)
	p, err := h.predictions.Lock(ctx, id, h.actor(i))
	if err != nil {
		return err
	}
	if err := reply(s, i, fmt.Sprintf("🔒 Betting on **%s** is closed.", p.Title)); err != nil {
		return err
	}
	h.refresh(ctx, s, id)
	return nil
}

// HandleResolve handles /predictresolve.
func (h *PredictionHandler) HandleResolve(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	opts := commandOptions(i)
	id := opts.Int("id", 0)
	st, err := h.predictions.Resolve(ctx, id, h.actor(i), int(opts.Int("choice", 0)))
	if err != nil {
		return err
	}
	sum := h.refresh(ctx, s, id)
	if sum == nil {
		return reply(s, i, fmt.Sprintf("🏆 Prediction #%d resolved. Paid %s, tax %s.", id, h.points(st.Paid), h.points(st.Tax)))
	}
	return reply(s, i, truncate(h.settlementText(sum.Prediction, st)))
}

// HandleUndo handles /predictundo.
func (h *PredictionHandler) HandleUndo(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	id := commandOptions(i).Int("id", 0)
	st, err := h.predictions.Undo(ctx, id)
	if err != nil {
		return err
	}
	if err := reply(s, i, fmt.Sprintf("↩️ Prediction #%d is unresolved again, %s was taken back from %d winner(s).",
		id, h.points(st.Paid), len(st.Payouts))); err != nil {
		return err
	}
	h.refresh(ctx, s, id)
	return nil
}

// HandleCancel handles /predictcancel.
func (h *PredictionHandler) HandleCancel(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	id := commandOptions(i).Int("id", 0)
	r, err := h.predictions.Cancel(ctx, id)
	if err != nil {
		return err
	}
	msg := fmt.Sprintf("🚫 Prediction #%d cancelled, %d bet(s) totalling %s refunded.", id, r.Bets, h.points(r.Amount))
	if r.CreatorCost > 0 {
		msg += " The creator got " + h.points(r.CreatorCost) + " back."
	}
	if err := reply(s, i, msg); err != nil {
		return err
	}
	h.refresh(ctx, s, id)
	return nil
}

// HandleSetCost handles /predictioncost.
func (h *PredictionHandler) HandleSetCost(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	cost := commandOptions(i).Int("cost", 0)
	if err := h.predictions.SetCost(ctx, cost); err != nil {
		return err
	}
	return replyEphemeral(s, i, "🔮 Opening a prediction now costs "+h.points(cost))
}

// refresh redraws the prediction's betting message and returns its summary.
// Failures are logged; the ledger is already settled.
func (h *PredictionHandler) refresh(ctx context.Context, s *discordgo.Session, id int64) *prediction.Summary {
	logger := zerolog.Ctx(ctx)
	sum, err := h.predictions.Summary(ctx, id)
	if err != nil {
		logger.Warn().Err(err).Int64("prediction_id", id).Msg("Failed to load prediction")
		return nil
	}
	p := sum.Prediction
	if p.MessageID == "" {
		return sum
	}
	edit := discordgo.NewMessageEdit(p.ChannelID, p.MessageID).SetEmbed(h.predictionEmbed(sum))
	components := predictionButtons(p)
	edit.Components = &components
	if _, err := s.ChannelMessageEditComplex(edit); err != nil {
		logger.Warn().Err(err).Int64("prediction_id", id).Msg("Failed to update prediction message")
	}
	return sum
}

// LockJob returns the scheduled job that locks predictions whose betting
// window has passed and redraws them.
func (h *PredictionHandler) LockJob(s *discordgo.Session) func(ctx context.Context, now time.Time) error {
	return func(ctx context.Context, now time.Time) error {
		ids, err := h.predictions.LockExpired(ctx, now)
		if err != nil {
			return err
		}
		ctx = log.Logger.WithContext(ctx)
		for _, id := range ids {
			h.refresh(ctx, s, id)
		}
		return nil
	}
}

func truncate(s string) string {
	if len(s) <= maxMessageLen {
		return s
	}
	cut := strings.LastIndex(s[:maxMessageLen], "\n")
	if cut <= 0 {
		cut = maxMessageLen
	}
	return s[:cut] + "\n…"
}

package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/config"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/game/lottery"
)

// Lottery panel custom ids.
const (
	lotteryBuyButton    = "lottery_buy"
	lotteryStatusButton = "lottery_status"
	lotteryBuyModal     = "lottery_modal"
)

// LotteryHandler handles ticket sales, the lottery panel and draws.
type LotteryHandler struct {
	base
	lottery *lottery.Service
}

// NewLotteryHandler creates a new LotteryHandler.
func NewLotteryHandler(cfg *config.Config, svc *lottery.Service) *LotteryHandler {
	return &LotteryHandler{base: base{cfg: cfg}, lottery: svc}
}

// Commands implements Module.
func (h *LotteryHandler) Commands() []Command {
	minOne := 1.0
	return []Command{
		{
			Def: &discordgo.ApplicationCommand{
				Name:        "buylottery",
				Description: fmt.Sprintf("Buy tickets at %d points each", lottery.TicketPrice),
				Options: []*discordgo.ApplicationCommandOption{{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "numbers",
					Description: fmt.Sprintf("Numbers %d-%d separated by spaces or commas", lottery.MinNumber, lottery.MaxNumber),
					Required:    true,
				}},
			},
			Handle: h.HandleBuy,
		},
		{
			Def: &discordgo.ApplicationCommand{
				Name:        "lotteryrandom",
				Description: "Buy tickets on random numbers",
				Options: []*discordgo.ApplicationCommandOption{{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "count",
					Description: "How many tickets",
					Required:    true,
					MinValue:    &minOne,
					MaxValue:    lottery.MaxTickets,
				}},
			},
			Handle: h.HandleBuyRandom,
		},
		{
			Def: &discordgo.ApplicationCommand{
				Name:        "lotterystatus",
				Description: "Show the prize pool and your tickets",
			},
			Handle: h.HandleStatus,
		},
		{
			Def:       modCommand("lotterypanel", "Post the lottery panel in this channel"),
			Handle:    h.HandlePanel,
			Moderator: true,
		},
		{
			Def:       modCommand("drawlottery", "Draw the winning numbers"),
			Handle:    h.HandleDraw,
			Moderator: true,
		},
		{
			Def: modCommand("addlottery", "Add points to the prize pool", &discordgo.ApplicationCommandOption{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "amount",
				Description: "Points to add",
				Required:    true,
				MinValue:    &minOne,
			}),
			Handle:    h.HandleAddPrize,
			Moderator: true,
		},
	}
}

// Components implements Module.
func (h *LotteryHandler) Components() []Component {
	return []Component{
		{Prefix: lotteryBuyButton, Handle: h.HandleBuyButton},
		{Prefix: lotteryStatusButton, Handle: h.HandleStatus},
		{Prefix: lotteryBuyModal, Handle: h.HandleBuyModal},
	}
}

func (h *LotteryHandler) buy(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, raw string) error {
	if err := requireChannel(i, h.cfg.Discord.LotteryChannelID); err != nil {
		return err
	}
	numbers, err := parseLotteryNumbers(raw)
	if err != nil {
		return err
	}
	p, err := h.lottery.Buy(ctx, invokerID(i), numbers)
	if err != nil {
		return err
	}
	return h.purchaseReply(ctx, s, i, p)
}

func (h *LotteryHandler) purchaseReply(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, p *lottery.Purchase) error {
	zerolog.Ctx(ctx).Info().Int64("user_id", invokerID(i)).Ints("numbers", p.Numbers).Msg("Lottery tickets bought")
	return replyEphemeral(s, i, fmt.Sprintf("🎟️ Bought %d ticket(s): %s for %s. You hold %d/%d. Pool: %s. Balance: %s",
		len(p.Numbers), formatNumbers(p.Numbers), h.points(p.Cost), p.Held, lottery.MaxTickets, h.points(p.Pool), h.points(p.Remaining)))
}

// HandleBuy handles /buylottery.
func (h *LotteryHandler) HandleBuy(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	return h.buy(ctx, s, i, commandOptions(i).String("numbers"))
}

// HandleBuyRandom handles /lotteryrandom.
func (h *LotteryHandler) HandleBuyRandom(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	if err := requireChannel(i, h.cfg.Discord.LotteryChannelID); err != nil {
		return err
	}
	p, err := h.lottery.BuyRandom(ctx, invokerID(i), int(commandOptions(i).Int("count", 1)))
	if err != nil {
		return err
	}
	return h.purchaseReply(ctx, s, i, p)
}

// HandleBuyButton opens the ticket modal from the panel.
func (h *LotteryHandler) HandleBuyButton(_ context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	return showModal(s, i, lotteryBuyModal, "Buy Lottery Tickets", textInput{
		id:          "numbers",
		label:       fmt.Sprintf("Numbers (%d-%d)", lottery.MinNumber, lottery.MaxNumber),
		placeholder: "e.g. 7 42 99",
		maxLen:      60,
	})
}

// HandleBuyModal buys the numbers typed into the panel modal.
func (h *LotteryHandler) HandleBuyModal(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	return h.buy(ctx, s, i, modalValues(i)["numbers"])
}

// HandleStatus shows the pool and the invoker's numbers.
func (h *LotteryHandler) HandleStatus(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	st, err := h.lottery.Status(ctx, invokerID(i))
	if err != nil {
		return err
	}
	mine := "none"
	if len(st.Numbers) > 0 {
		mine = formatNumbers(st.Numbers)
	}
	return replyEphemeral(s, i, fmt.Sprintf("🎰 Prize pool: **%s**\n🎟️ Your numbers (%d/%d): %s",
		h.points(st.Pool), len(st.Numbers), lottery.MaxTickets, mine))
}

// HandlePanel posts the buy and status buttons.
func (h *LotteryHandler) HandlePanel(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	pool, err := h.lottery.Pool(ctx)
	if err != nil {
		return err
	}
	embed := &discordgo.MessageEmbed{
		Title: "🎰 Lottery",
		Description: fmt.Sprintf("Pick numbers from %d to %d at %s per ticket, up to %d tickets per draw.\n"+
			"Two numbers are drawn and each takes half the pool, split among its tickets.\n\nCurrent pool: **%s**",
			lottery.MinNumber, lottery.MaxNumber, h.points(lottery.TicketPrice), lottery.MaxTickets, h.points(pool)),
		Color: colorPurple,
	}
	return replyEmbed(s, i, embed, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		button("Buy Tickets", "🎟️", lotteryBuyButton, discordgo.PrimaryButton),
		button("My Tickets", "📋", lotteryStatusButton, discordgo.SecondaryButton),
	}})
}

// HandleDraw handles /drawlottery.
func (h *LotteryHandler) HandleDraw(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	d, err := h.lottery.Draw(ctx)
	if err != nil {
		return err
	}
	return replyEmbed(s, i, h.drawEmbed(d))
}

// HandleAddPrize handles /addlottery.
func (h *LotteryHandler) HandleAddPrize(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	pool, err := h.lottery.AddPrize(ctx, commandOptions(i).Int("amount", 0))
	if err != nil {
		return err
	}
	return reply(s, i, "🎰 The prize pool is now **"+h.points(pool)+"**")
}

func (h *LotteryHandler) drawEmbed(d *lottery.Draw) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title: "🎰 Lottery draw",
		Description: fmt.Sprintf("Winning numbers: **%02d** and **%02d**\nPool: %s",
			d.Prizes[0].Number, d.Prizes[1].Number, h.points(d.Pool)),
		Color: colorPurple,
	}
	for _, p := range d.Prizes {
		value := "No winners, the half rolls over."
		if len(p.Winners) > 0 {
			var sb strings.Builder
			for _, w := range p.Winners {
				sb.WriteString(mention(w) + " ")
			}
			fmt.Fprintf(&sb, "\n%s each (%s tax)", h.points(p.PerWinner), h.points(p.Tax))
			value = sb.String()
		}
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("%02d · %s", p.Number, h.points(p.Amount)),
			Value: value,
		})
	}
	e.Footer = &discordgo.MessageEmbedFooter{Text: "Next pool: " + h.points(d.NewPool)}
	return e
}

func formatNumbers(numbers []int) string {
	parts := make([]string, len(numbers))
	for n, v := range numbers {
		parts[n] = fmt.Sprintf("%02d", v)
	}
	return strings.Join(parts, " ")
}

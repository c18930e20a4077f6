package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/config"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/game/trap"
)

// TrapHandler handles trap commands and fires traps on chat messages.
type TrapHandler struct {
	base
	traps *trap.Engine
}

// NewTrapHandler creates a new TrapHandler.
func NewTrapHandler(cfg *config.Config, traps *trap.Engine) *TrapHandler {
	return &TrapHandler{base: base{cfg: cfg}, traps: traps}
}

func triggerOption(desc string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "trigger",
		Description: desc,
		Required:    true,
		MinLength:   ptr(trap.MinTriggerLen),
		MaxLength:   trap.MaxTriggerLen,
	}
}

func trapCostOption() *discordgo.ApplicationCommandOption {
	minCost := float64(trap.MinCost)
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        "cost",
		Description: fmt.Sprintf("Points to put in (default %d)", trap.DefaultCost),
		MinValue:    &minCost,
		MaxValue:    trap.MaxCost,
	}
}

func ptr[T any](v T) *T { return &v }

// Commands implements Module.
func (h *TrapHandler) Commands() []Command {
	return []Command{
		{
			Def: &discordgo.ApplicationCommand{
				Name:        "trap",
				Description: fmt.Sprintf("Hide a trigger phrase here, whoever says it pays you %dx the cost", trap.TriggerMultiplier),
				Options:     []*discordgo.ApplicationCommandOption{triggerOption("Phrase that springs the trap"), trapCostOption()},
			},
			Handle: h.HandleSet,
		},
		{
			Def: &discordgo.ApplicationCommand{
				Name:        "countertrap",
				Description: fmt.Sprintf("Guess a trap's exact phrase to take %dx the cost from its owner", trap.CounterMultiplier),
				Options:     []*discordgo.ApplicationCommandOption{triggerOption("Your guess"), trapCostOption()},
			},
			Handle: h.HandleCounter,
		},
		{
			Def: &discordgo.ApplicationCommand{
				Name:        "checktrap",
				Description: fmt.Sprintf("Count the traps in this channel (%d points)", trap.CheckCost),
			},
			Handle: h.HandleCheck,
		},
	}
}

// Components implements Module.
func (h *TrapHandler) Components() []Component { return nil }

// HandleSet handles /trap. The reply is ephemeral so the phrase stays secret.
func (h *TrapHandler) HandleSet(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	opts := commandOptions(i)
	trigger := opts.String("trigger")
	res, err := h.traps.Set(ctx, invokerID(i), i.ChannelID, trigger, opts.Int("cost", trap.DefaultCost), time.Now())
	if err != nil {
		return err
	}
	return replyEphemeral(s, i, h.armedReply(trigger, res))
}

// armedReply must not reveal whether res re-armed someone else's trap.
func (h *TrapHandler) armedReply(trigger string, res *trap.SetResult) string {
	return fmt.Sprintf("💣 Trap set! (-%s) Anyone who types `%s` in this channel within %d minutes will lose %s to you.",
		h.points(res.Cost), trigger, int(trap.TTL.Minutes()), h.points(res.Cost*trap.TriggerMultiplier))
}

// HandleCounter handles /countertrap.
func (h *TrapHandler) HandleCounter(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	opts := commandOptions(i)
	userID := invokerID(i)
	res, err := h.traps.Counter(ctx, userID, i.ChannelID, opts.String("trigger"), opts.Int("cost", trap.DefaultCost), time.Now())
	if err != nil {
		return err
	}
	return reply(s, i, fmt.Sprintf("🎯 %s disarmed %s's trap `%s` and took %s (%s tax).",
		mention(userID), mention(res.Trap.CreatorID), res.Trap.Trigger, h.points(res.Gained), h.points(res.Tax)))
}

// HandleCheck handles /checktrap.
func (h *TrapHandler) HandleCheck(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	n, err := h.traps.Check(ctx, invokerID(i), i.ChannelID, time.Now())
	if err != nil {
		return err
	}
	return replyEphemeral(s, i, fmt.Sprintf("🔎 There are %d trap(s) armed in this channel.", n))
}

// HandleMessage fires a trap hidden in m, if any, and reports whether one fired.
func (h *TrapHandler) HandleMessage(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) (bool, error) {
	authorID, err := parseID(m.Author.ID)
	if err != nil {
		return false, nil
	}
	t, err := h.traps.OnMessage(ctx, authorID, m.ChannelID, m.Content, time.Now())
	if err != nil || t == nil {
		return false, err
	}

	var text string
	if t.Penalty {
		text = fmt.Sprintf("🪤 %s walked into %s's trap `%s` and could not pay. Enjoy the penalty!",
			mention(authorID), mention(t.Trap.CreatorID), t.Trap.Trigger)
		if role := h.traps.PenaltyRoleID(); role != "" {
			if err := s.GuildMemberRoleAdd(m.GuildID, m.Author.ID, role); err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Int64("user_id", authorID).Msg("Failed to add penalty role")
			}
		}
	} else {
		text = fmt.Sprintf("🪤 %s walked into %s's trap `%s` and paid %s!",
			mention(authorID), mention(t.Trap.CreatorID), t.Trap.Trigger, h.points(t.Amount))
	}
	if _, err := s.ChannelMessageSendReply(m.ChannelID, text, m.Reference()); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to announce trap")
	}
	return true, nil
}

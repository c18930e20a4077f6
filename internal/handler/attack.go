package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/config"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/effect"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/game/attack"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/model"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/service"
)

// AttackHandler handles the attack family, defensive effects and ceasefires.
type AttackHandler struct {
	base
	attacks *attack.Service
	// bg outlives single interactions; multiattack series run on it.
	bg context.Context
}

// NewAttackHandler creates a new AttackHandler.
func NewAttackHandler(bg context.Context, cfg *config.Config, attacks *attack.Service) *AttackHandler {
	return &AttackHandler{base: base{cfg: cfg}, attacks: attacks, bg: bg}
}

func targetOption(desc string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        "user",
		Description: desc,
		Required:    true,
	}
}

func stakeOption(min, max float64, required bool) *discordgo.ApplicationCommandOption {
	opt := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        "amount",
		Description: "Points to risk",
		Required:    required,
		MinValue:    &min,
	}
	if max > 0 {
		opt.MaxValue = max
	}
	return opt
}

// Commands implements Module.
func (h *AttackHandler) Commands() []Command {
	minTimes := float64(attack.MinMultiTimes)
	minMinutes := 1.0
	return []Command{
		{
			Def: &discordgo.ApplicationCommand{
				Name:        "attack",
				Description: "Try to steal points from someone",
				Options: []*discordgo.ApplicationCommandOption{
					targetOption("Who to attack"),
					stakeOption(attack.MinStake, 0, false),
				},
			},
			Handle: h.HandleAttack,
		},
		{
			Def: &discordgo.ApplicationCommand{
				Name:        "multiattack",
				Description: "Attack the same target several times in a row",
				Options: []*discordgo.ApplicationCommandOption{
					targetOption("Who to attack"),
					stakeOption(attack.MinStake, 0, true),
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "times",
						Description: "Number of attacks",
						Required:    true,
						MinValue:    &minTimes,
						MaxValue:    attack.MaxMultiTimes,
					},
				},
			},
			Handle: h.HandleMultiAttack,
		},
		{
			Def: &discordgo.ApplicationCommand{
				Name:        "pierce",
				Description: fmt.Sprintf("Only lands through a dodge, and then takes %dx the stake", attack.PierceMultiplier),
				Options: []*discordgo.ApplicationCommandOption{
					targetOption("Who to pierce"),
					stakeOption(attack.MinPierceStake, attack.MaxPierceStake, true),
				},
			},
			Handle: h.HandlePierce,
		},
		{
			Def: &discordgo.ApplicationCommand{
				Name:        "dodge",
				Description: fmt.Sprintf("Dodge the next attack (%d points)", attack.DodgeCost),
			},
			Handle: h.HandleDodge,
		},
		{
			Def: &discordgo.ApplicationCommand{
				Name:        "shield",
				Description: fmt.Sprintf("Keep part of what attackers steal (%d points)", attack.ShieldCost),
			},
			Handle: h.HandleShield,
		},
		{
			Def: &discordgo.ApplicationCommand{
				Name:        "counter",
				Description: fmt.Sprintf("Make one attacker's attacks on you nearly fail (%d points)", attack.CounterCost),
				Options: []*discordgo.ApplicationCommandOption{
					targetOption("The attacker to counter"),
				},
			},
			Handle: h.HandleCounter,
		},
		{
			Def: &discordgo.ApplicationCommand{
				Name:        "effects",
				Description: "Show your active dodge and shield",
			},
			Handle: h.HandleEffects,
		},
		{
			Def: &discordgo.ApplicationCommand{
				Name:        "attackhistory",
				Description: "Who attacked you in the last 24 hours",
			},
			Handle: h.HandleHistory,
		},
		{
			Def: &discordgo.ApplicationCommand{
				Name:                     "ceasefire",
				Description:              "Block attacks in this channel for a while",
				DefaultMemberPermissions: &modPermission,
				Options: []*discordgo.ApplicationCommandOption{{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "minutes",
					Description: "How long the ceasefire lasts",
					Required:    true,
					MinValue:    &minMinutes,
					MaxValue:    attack.MaxCeasefireMin,
				}},
			},
			Handle:    h.HandleCeasefire,
			Moderator: true,
		},
		{
			Def: &discordgo.ApplicationCommand{
				Name:                     "endceasefire",
				Description:              "Lift the ceasefire in this channel",
				DefaultMemberPermissions: &modPermission,
			},
			Handle:    h.HandleEndCeasefire,
			Moderator: true,
		},
	}
}

// Components implements Module.
func (h *AttackHandler) Components() []Component { return nil }

// wagerRequest reads the target and stake shared by the attack commands.
func (h *AttackHandler) wagerRequest(i *discordgo.InteractionCreate, defaultStake int64) (attack.Request, error) {
	if err := requireChannel(i, h.cfg.Discord.AttackChannelID); err != nil {
		return attack.Request{}, err
	}
	opts := commandOptions(i)
	target, user, _ := opts.UserID(i, "user")
	if user != nil && user.Bot {
		return attack.Request{}, service.ErrTargetIsBot
	}
	return attack.Request{
		AttackerID: invokerID(i),
		TargetID:   target,
		Amount:     opts.Int("amount", defaultStake),
		ChannelID:  i.ChannelID,
		Now:        time.Now(),
	}, nil
}

// HandleAttack handles /attack.
func (h *AttackHandler) HandleAttack(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	req, err := h.wagerRequest(i, attack.DefaultStake)
	if err != nil {
		return err
	}
	res, err := h.attacks.Attack(ctx, req)
	if err != nil {
		return err
	}
	return replyEmbed(s, i, h.outcomeEmbed(req.AttackerID, req.TargetID, res))
}

// HandlePierce handles /pierce.
func (h *AttackHandler) HandlePierce(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	req, err := h.wagerRequest(i, attack.MinPierceStake)
	if err != nil {
		return err
	}
	res, err := h.attacks.Pierce(ctx, req)
	if err != nil {
		return err
	}
	return replyEmbed(s, i, h.outcomeEmbed(req.AttackerID, req.TargetID, res))
}

// HandleMultiAttack starts a series and reports each hit in the channel as it lands.
func (h *AttackHandler) HandleMultiAttack(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	req, err := h.wagerRequest(i, attack.DefaultStake)
	if err != nil {
		return err
	}
	times := int(commandOptions(i).Int("times", 0))
	fast := i.Member != nil && config.HasRole(i.Member.Roles, h.cfg.Discord.FastAttackRoleID)
	multi := attack.MultiRequest{Request: req, Times: times, Fast: fast}

	// the first hit can wait out a skipped target, so acknowledge up front
	if err := deferResponse(s, i, false); err != nil {
		return err
	}
	logger := zerolog.Ctx(ctx)
	bg := logger.WithContext(h.bg)

	go func() {
		var announced bool
		announce := func() {
			if announced {
				return
			}
			announced = true
			msg := fmt.Sprintf("⚔️ %s starts %d attacks on %s, staking %s each!",
				mention(req.AttackerID), times, mention(req.TargetID), h.points(req.Amount))
			if err := editResponse(s, i, msg); err != nil {
				logger.Warn().Err(err).Msg("Failed to announce multiattack")
			}
		}
		sum, err := h.attacks.MultiAttack(bg, multi, func(n int, res *attack.Result) {
			announce()
			if _, err := s.ChannelMessageSend(i.ChannelID, h.hitLine(n, times, res)); err != nil {
				logger.Warn().Err(err).Msg("Failed to post multiattack hit")
			}
		})
		if err != nil {
			msg, expected := Describe(err)
			if !expected {
				logger.Error().Err(err).Msg("Multiattack failed")
			}
			if err := editResponse(s, i, msg); err != nil {
				logger.Warn().Err(err).Msg("Failed to report multiattack error")
			}
			return
		}
		announce()
		if _, err := s.ChannelMessageSendEmbed(i.ChannelID, h.multiSummaryEmbed(req.AttackerID, req.TargetID, sum)); err != nil {
			logger.Warn().Err(err).Msg("Failed to post multiattack summary")
		}
	}()
	return nil
}

func (h *AttackHandler) purchaseReply(s *discordgo.Session, i *discordgo.InteractionCreate, what string, p *attack.Purchase) error {
	return reply(s, i, fmt.Sprintf("%s %s is active for %s (cost %s, balance %s)",
		what, mention(invokerID(i)), effect.FormatRemaining(p.Duration), h.points(p.Cost), h.points(p.Remaining)))
}

// HandleDodge handles /dodge.
func (h *AttackHandler) HandleDodge(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	p, err := h.attacks.Dodge(ctx, invokerID(i), time.Now())
	if err != nil {
		return err
	}
	return h.purchaseReply(s, i, "💨 Dodge for", p)
}

// HandleShield handles /shield.
func (h *AttackHandler) HandleShield(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	p, err := h.attacks.Shield(ctx, invokerID(i), time.Now())
	if err != nil {
		return err
	}
	return h.purchaseReply(s, i, "🛡️ Shield for", p)
}

// HandleCounter handles /counter.
func (h *AttackHandler) HandleCounter(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	attacker, _, _ := commandOptions(i).UserID(i, "user")
	p, err := h.attacks.Counter(ctx, invokerID(i), attacker, time.Now())
	if err != nil {
		return err
	}
	return replyEphemeral(s, i, fmt.Sprintf("🔄 Counter against %s is ready for %s (cost %s, balance %s)",
		mention(attacker), effect.FormatRemaining(p.Duration), h.points(p.Cost), h.points(p.Remaining)))
}

// HandleEffects handles /effects.
func (h *AttackHandler) HandleEffects(_ context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	now := time.Now()
	fx := h.attacks.ActiveEffects(invokerID(i), now)

	var lines []string
	if fx.Dodge > 0 {
		lines = append(lines, "💨 Dodge: "+effect.FormatRemaining(fx.Dodge))
	}
	if fx.Shield > 0 {
		lines = append(lines, "🛡️ Shield: "+effect.FormatRemaining(fx.Shield))
	}
	if active, left := h.attacks.CeasefireActive(i.ChannelID, now); active {
		lines = append(lines, "🕊️ Ceasefire in this channel: "+effect.FormatRemaining(left))
	}
	if len(lines) == 0 {
		lines = append(lines, "Nothing is protecting you right now.")
	}
	return replyEphemeral(s, i, strings.Join(lines, "\n"))
}

// HandleHistory handles /attackhistory.
func (h *AttackHandler) HandleHistory(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	records, err := h.attacks.History(ctx, invokerID(i), time.Now())
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return replyEphemeral(s, i, "🕊️ Nobody attacked you in the last 24 hours.")
	}

	var sb strings.Builder
	for _, r := range records {
		result := "❌ failed"
		if r.Success {
			result = fmt.Sprintf("✅ took %s", h.points(r.PointsLost))
		} else if r.AttackType == model.AttackTypeDodge {
			result = "💨 dodged"
		}
		fmt.Fprintf(&sb, "%s %s (%s, %s) %s\n", relative(r.CreatedAt), mention(r.AttackerID), r.AttackType, h.points(r.Amount), result)
	}
	return respond(s, i, &discordgo.InteractionResponseData{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "📜 Attacks against you",
			Description: sb.String(),
			Color:       colorBlue,
		}},
		Flags: discordgo.MessageFlagsEphemeral,
	})
}

// HandleCeasefire handles /ceasefire.
func (h *AttackHandler) HandleCeasefire(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	minutes := int(commandOptions(i).Int("minutes", 0))
	if err := h.attacks.Ceasefire(i.ChannelID, minutes, time.Now()); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Str("channel_id", i.ChannelID).Int("minutes", minutes).Msg("Ceasefire declared")
	return reply(s, i, fmt.Sprintf("🕊️ Ceasefire! No attacks in this channel for %d minute(s).", minutes))
}

// HandleEndCeasefire handles /endceasefire.
func (h *AttackHandler) HandleEndCeasefire(_ context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	h.attacks.EndCeasefire(i.ChannelID)
	return reply(s, i, "⚔️ The ceasefire is over.")
}

package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/config"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/game/guildwar"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/model"
)

// Guild war buttons are guildwar_<id>_team1|team2|leave.
const prefixGuildWar = "guildwar_"

// battleArchiveMinutes is how long an idle battle thread stays open.
const battleArchiveMinutes = 60

// GuildWarHandler handles guild war recruiting and battles.
type GuildWarHandler struct {
	base
	wars *guildwar.Service
}

// NewGuildWarHandler creates a new GuildWarHandler.
func NewGuildWarHandler(cfg *config.Config, wars *guildwar.Service) *GuildWarHandler {
	return &GuildWarHandler{base: base{cfg: cfg}, wars: wars}
}

func warIDOption() *discordgo.ApplicationCommandOption {
	minID := 1.0
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        "id",
		Description: "War number",
		Required:    true,
		MinValue:    &minID,
	}
}

func nameOption(name, desc string, maxLen int) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        name,
		Description: desc,
		Required:    true,
		MaxLength:   maxLen,
	}
}

// Commands implements Module.
func (h *GuildWarHandler) Commands() []Command {
	minEntry := float64(guildwar.MinEntry)
	return []Command{
		{
			Def: &discordgo.ApplicationCommand{
				Name:        "guildwar",
				Description: "Start recruiting two teams for a battle",
				Options: []*discordgo.ApplicationCommandOption{
					nameOption("name", "Name of the war", guildwar.MaxNameLen),
					nameOption("team1", "First team", guildwar.MaxTeamNameLen),
					nameOption("team2", "Second team", guildwar.MaxTeamNameLen),
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "entry",
						Description: "Points each fighter puts in",
						Required:    true,
						MinValue:    &minEntry,
						MaxValue:    guildwar.MaxEntry,
					},
				},
			},
			Handle: h.HandleCreate,
		},
		{
			Def: &discordgo.ApplicationCommand{
				Name:        "startwar",
				Description: "Close recruiting and fight",
				Options:     []*discordgo.ApplicationCommandOption{warIDOption()},
			},
			Handle: h.HandleStart,
		},
		{
			Def: &discordgo.ApplicationCommand{
				Name:        "cancelwar",
				Description: "Cancel a war and refund every fighter",
				Options:     []*discordgo.ApplicationCommandOption{warIDOption()},
			},
			Handle: h.HandleCancel,
		},
	}
}

// Components implements Module.
func (h *GuildWarHandler) Components() []Component {
	return []Component{{Prefix: prefixGuildWar, Handle: h.HandleButton}}
}

func (h *GuildWarHandler) actor(i *discordgo.InteractionCreate) model.Actor {
	return model.Actor{UserID: invokerID(i), IsMod: h.isMod(i.Member)}
}

// HandleCreate handles /guildwar.
func (h *GuildWarHandler) HandleCreate(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	if err := requireChannel(i, h.cfg.Discord.GuildWarChannelID); err != nil {
		return err
	}
	opts := commandOptions(i)
	w, err := h.wars.Create(ctx, guildwar.CreateRequest{
		CreatorID: invokerID(i),
		Name:      opts.String("name"),
		Team1:     opts.String("team1"),
		Team2:     opts.String("team2"),
		EntryCost: opts.Int("entry", 0),
		ChannelID: i.ChannelID,
		Now:       time.Now(),
	})
	if err != nil {
		return err
	}

	roster := &guildwar.Roster{War: w}
	if err := replyEmbed(s, i, h.warEmbed(roster), warButtons(w)...); err != nil {
		return err
	}
	msg, err := s.InteractionResponse(i.Interaction)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int64("war_id", w.ID).Msg("Failed to read war message")
		return nil
	}
	if err := h.wars.SetMessage(ctx, w.ID, msg.ChannelID, msg.ID, ""); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("war_id", w.ID).Msg("Failed to store war message")
	}
	return nil
}

// HandleButton handles join, switch and leave.
func (h *GuildWarHandler) HandleButton(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	parts := customIDParts(i.MessageComponentData().CustomID, prefixGuildWar)
	if len(parts) != 2 {
		return ErrInvalidInput
	}
	id, err := parseID(parts[0])
	if err != nil {
		return ErrInvalidInput
	}
	userID := invokerID(i)

	var notice string
	switch parts[1] {
	case "team1", "team2":
		team := 1
		if parts[1] == "team2" {
			team = 2
		}
		res, err := h.wars.Join(ctx, id, userID, team)
		if err != nil {
			return err
		}
		if res.Switched {
			notice = fmt.Sprintf("🔁 You switched to **%s**.", res.War.TeamName(team))
		} else {
			notice = fmt.Sprintf("⚔️ You joined **%s** for %s. Balance: %s",
				res.War.TeamName(team), h.points(res.Charged), h.points(res.Remaining))
		}
	case "leave":
		refund, err := h.wars.Leave(ctx, id, userID)
		if err != nil {
			return err
		}
		notice = fmt.Sprintf("🚪 You left the war and got %s back.", h.points(refund))
	default:
		return ErrInvalidInput
	}

	roster, err := h.wars.Roster(ctx, id)
	if err != nil {
		return err
	}
	if err := updateMessage(s, i, h.warEmbed(roster), warButtons(roster.War)); err != nil {
		return err
	}
	_, err = s.FollowupMessageCreate(i.Interaction, false, &discordgo.WebhookParams{
		Content: notice,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
	return err
}

// HandleStart handles /startwar. The battle log goes to a thread under the
// recruiting message.
func (h *GuildWarHandler) HandleStart(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	if err := deferResponse(s, i, false); err != nil {
		return err
	}
	id := commandOptions(i).Int("id", 0)
	res, err := h.wars.Start(ctx, id, h.actor(i))
	if err != nil {
		return err
	}
	w := res.War
	logger := zerolog.Ctx(ctx)

	roster := h.refresh(ctx, s, id)

	logChannel := w.ChannelID
	if w.MessageID != "" {
		thread, err := s.MessageThreadStart(w.ChannelID, w.MessageID, truncateName("⚔️ "+w.Name), battleArchiveMinutes)
		if err != nil {
			logger.Warn().Err(err).Int64("war_id", id).Msg("Failed to open battle thread")
		} else {
			logChannel = thread.ID
			if err := h.wars.SetMessage(ctx, id, w.ChannelID, w.MessageID, thread.ID); err != nil {
				logger.Warn().Err(err).Int64("war_id", id).Msg("Failed to store battle thread")
			}
		}
	}
	if logChannel == "" {
		logChannel = i.ChannelID
	}

	for _, chunk := range battleLog(w, res.Battle) {
		if _, err := s.ChannelMessageSend(logChannel, chunk); err != nil {
			logger.Warn().Err(err).Int64("war_id", id).Msg("Failed to post battle log")
			break
		}
	}
	if logChannel != w.ChannelID && logChannel != i.ChannelID {
		archived := true
		if _, err := s.ChannelEdit(logChannel, &discordgo.ChannelEdit{Archived: &archived}); err != nil {
			logger.Warn().Err(err).Int64("war_id", id).Msg("Failed to archive battle thread")
		}
	}

	embed := h.payoutEmbed(w, res.Payout)
	if roster != nil {
		embed.Description += fmt.Sprintf("\n%d vs %d fighters", len(roster.Teams[0]), len(roster.Teams[1]))
	}
	return editResponse(s, i, "", embed)
}

// HandleCancel handles /cancelwar.
func (h *GuildWarHandler) HandleCancel(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	id := commandOptions(i).Int("id", 0)
	r, err := h.wars.Cancel(ctx, id, h.actor(i))
	if err != nil {
		return err
	}
	if err := reply(s, i, fmt.Sprintf("🚫 War #%d cancelled, %s refunded to %d fighter(s).", id, h.points(r.Amount), r.Members)); err != nil {
		return err
	}
	h.refresh(ctx, s, id)
	return nil
}

func (h *GuildWarHandler) payoutEmbed(w *model.GuildWar, p guildwar.Payout) *discordgo.MessageEmbed {
	winners := "Nobody survived to collect."
	if len(p.Winners) > 0 {
		winners = ""
		for _, id := range p.Winners {
			winners += mention(id) + " "
		}
	}
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("🏆 %s: %s wins!", w.Name, w.TeamName(derefTeam(w.WinningTeam))),
		Description: fmt.Sprintf("Pool %s, tax %s.", h.points(p.Total), h.points(p.Tax)),
		Color:       colorGreen,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Each winner gets " + h.points(p.PerWinner), Value: winners},
		},
	}
}

// refresh redraws the recruiting message. Failures are only logged.
func (h *GuildWarHandler) refresh(ctx context.Context, s *discordgo.Session, id int64) *guildwar.Roster {
	logger := zerolog.Ctx(ctx)
	roster, err := h.wars.Roster(ctx, id)
	if err != nil {
		logger.Warn().Err(err).Int64("war_id", id).Msg("Failed to load war")
		return nil
	}
	w := roster.War
	if w.MessageID == "" {
		return roster
	}
	edit := discordgo.NewMessageEdit(w.ChannelID, w.MessageID).SetEmbed(h.warEmbed(roster))
	components := warButtons(w)
	edit.Components = &components
	if _, err := s.ChannelMessageEditComplex(edit); err != nil {
		logger.Warn().Err(err).Int64("war_id", id).Msg("Failed to update war message")
	}
	return roster
}

// truncateName fits a thread name into Discord's 100 character limit.
func truncateName(name string) string {
	r := []rune(name)
	if len(r) > 100 {
		return string(r[:100])
	}
	return name
}

package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/config"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/handler"
)

// interactionTimeout bounds the work done for one interaction.
const interactionTimeout = 30 * time.Second

const intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsMessageContent |
	discordgo.IntentsGuildMessageReactions |
	discordgo.IntentsGuildMembers

// Bot wraps the Discord session with the command registry and gateway events.
type Bot struct {
	Session  *discordgo.Session
	cfg      *config.Config
	registry *Registry
	events   *handler.Events
	ctx      context.Context
}

// New creates a Bot serving modules. ctx bounds the bot's lifetime.
func New(ctx context.Context, cfg *config.Config, events *handler.Events, modules ...handler.Module) (*Bot, error) {
	if cfg.Discord.Token == "" {
		return nil, fmt.Errorf("discord token is required")
	}
	s, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	s.Identify.Intents = intents
	s.StateEnabled = true

	registry := NewRegistry(&cfg.Discord, handler.ReportError)
	for _, m := range modules {
		if err := registry.Add(m); err != nil {
			return nil, err
		}
	}

	b := &Bot{Session: s, cfg: cfg, registry: registry, events: events, ctx: ctx}
	s.AddHandler(b.ready)
	s.AddHandler(b.interactionCreate)
	s.AddHandler(b.messageCreate)
	s.AddHandler(b.messageReactionAdd)
	s.AddHandler(b.guildMemberAdd)
	return b, nil
}

// Start opens the gateway and publishes the slash commands.
func (b *Bot) Start() error {
	log.Info().Msg("Starting bot...")
	if err := b.Session.Open(); err != nil {
		return fmt.Errorf("failed to open gateway: %w", err)
	}
	appID := b.cfg.Discord.AppID
	if appID == "" && b.Session.State.User != nil {
		appID = b.Session.State.User.ID
	}
	ctx := log.Logger.WithContext(b.ctx)
	if err := b.registry.RegisterCommands(ctx, b.Session, appID, b.cfg.Discord.GuildID, b.cfg.Discord.ForceCommandUpdate); err != nil {
		return err
	}
	return nil
}

// Stop closes the gateway.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	if err := b.Session.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close gateway")
	}
}

func (b *Bot) ready(s *discordgo.Session, r *discordgo.Ready) {
	log.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("Bot is ready")
}

func (b *Bot) interactionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(b.ctx, interactionTimeout)
	defer cancel()
	b.registry.Dispatch(log.Logger.WithContext(ctx), s, i)
}

func (b *Bot) inGuild(guildID string) bool {
	return guildID != "" && (b.cfg.Discord.GuildID == "" || guildID == b.cfg.Discord.GuildID)
}

func (b *Bot) messageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if !b.inGuild(m.GuildID) {
		return
	}
	b.runEvent("message_create", func(ctx context.Context) error {
		return b.events.MessageCreate(ctx, s, m)
	})
}

func (b *Bot) messageReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if !b.inGuild(r.GuildID) {
		return
	}
	b.runEvent("reaction_add", func(ctx context.Context) error {
		return b.events.MessageReactionAdd(ctx, s, r)
	})
}

func (b *Bot) guildMemberAdd(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if !b.inGuild(m.GuildID) {
		return
	}
	b.runEvent("member_add", func(ctx context.Context) error {
		return b.events.GuildMemberAdd(ctx, s, m)
	})
}

// runEvent runs fn with an event scoped logger and recovers panics.
func (b *Bot) runEvent(name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(b.ctx, interactionTimeout)
	defer cancel()
	logger := log.With().Str("event", name).Logger()
	ctx = logger.WithContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Recovered from panic in event handler")
		}
	}()
	if err := fn(ctx); err != nil && b.ctx.Err() == nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Event handler failed")
	}
}

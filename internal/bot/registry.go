package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/config"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/handler"
)

type componentRoute struct {
	prefix string
	handle handler.HandlerFunc
}

// Registry holds slash command definitions and routes interactions to their
// wrapped handlers.
type Registry struct {
	cfg        *config.DiscordConfig
	report     Reporter
	defs       []*discordgo.ApplicationCommand
	commands   map[string]handler.HandlerFunc
	components []componentRoute
}

// NewRegistry creates an empty registry. Failed interactions are passed to report.
func NewRegistry(cfg *config.DiscordConfig, report Reporter) *Registry {
	return &Registry{
		cfg:      cfg,
		report:   report,
		commands: make(map[string]handler.HandlerFunc),
	}
}

// Add registers every command and component of m.
func (r *Registry) Add(m handler.Module) error {
	for _, c := range m.Commands() {
		name := c.Def.Name
		if _, dup := r.commands[name]; dup {
			return fmt.Errorf("duplicate command %q", name)
		}
		var mw []Middleware
		if c.Moderator {
			mw = append(mw, RequireModerator(r.cfg))
		}
		r.commands[name] = r.wrap(name, c.Handle, mw...)
		r.defs = append(r.defs, c.Def)
	}
	for _, c := range m.Components() {
		for _, existing := range r.components {
			if existing.prefix == c.Prefix {
				return fmt.Errorf("duplicate component prefix %q", c.Prefix)
			}
		}
		r.components = append(r.components, componentRoute{
			prefix: c.Prefix,
			handle: r.wrap(strings.TrimSuffix(c.Prefix, "_"), c.Handle),
		})
	}
	// longest prefix wins
	sort.SliceStable(r.components, func(a, b int) bool {
		return len(r.components[a].prefix) > len(r.components[b].prefix)
	})
	return nil
}

func (r *Registry) wrap(name string, h handler.HandlerFunc, extra ...Middleware) handler.HandlerFunc {
	chain := []Middleware{
		Errors(r.report),
		Recovery(),
		GuildOnly(r.cfg.GuildID),
		Logging(name),
		Metrics(name),
	}
	return Chain(h, append(chain, extra...)...)
}

// Definitions returns the slash commands to publish.
func (r *Registry) Definitions() []*discordgo.ApplicationCommand {
	return r.defs
}

// route finds the handler for an interaction.
func (r *Registry) route(i *discordgo.InteractionCreate) (string, handler.HandlerFunc) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		name := i.ApplicationCommandData().Name
		return name, r.commands[name]
	case discordgo.InteractionMessageComponent:
		id := i.MessageComponentData().CustomID
		return id, r.component(id)
	case discordgo.InteractionModalSubmit:
		id := i.ModalSubmitData().CustomID
		return id, r.component(id)
	}
	return "", nil
}

func (r *Registry) component(customID string) handler.HandlerFunc {
	for _, c := range r.components {
		if strings.HasPrefix(customID, c.prefix) {
			return c.handle
		}
	}
	return nil
}

// Dispatch runs the handler for i. Unknown interactions are dropped.
func (r *Registry) Dispatch(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	id, h := r.route(i)
	if h == nil {
		zerolog.Ctx(ctx).Debug().Str("id", id).Int("type", int(i.Type)).Msg("Unhandled interaction")
		return
	}
	// handler errors are reported by the Errors middleware
	_ = h(ctx, s, i)
}

// RegisterCommands publishes the slash commands to the guild. Unless force is
// set, nothing is sent when Discord already has the same definitions.
func (r *Registry) RegisterCommands(ctx context.Context, s *discordgo.Session, appID, guildID string, force bool) error {
	logger := zerolog.Ctx(ctx)
	desired := r.Definitions()

	if !force {
		existing, err := s.ApplicationCommands(appID, guildID)
		if err != nil {
			return fmt.Errorf("failed to fetch existing commands: %w", err)
		}
		if commandsEqual(existing, desired) {
			logger.Info().Int("count", len(existing)).Msg("Commands unchanged, skipping registration")
			return nil
		}
		logger.Info().Int("existing", len(existing)).Int("desired", len(desired)).Msg("Commands changed, updating")
	} else {
		logger.Info().Int("count", len(desired)).Msg("Force update enabled, replacing all commands")
	}

	if _, err := s.ApplicationCommandBulkOverwrite(appID, guildID, desired); err != nil {
		return fmt.Errorf("failed to overwrite commands: %w", err)
	}
	logger.Info().Int("count", len(desired)).Msg("Commands registered")
	return nil
}

func commandsEqual(existing, desired []*discordgo.ApplicationCommand) bool {
	if len(existing) != len(desired) {
		return false
	}
	byName := make(map[string]*discordgo.ApplicationCommand, len(existing))
	for _, c := range existing {
		byName[c.Name] = c
	}
	for _, d := range desired {
		e, ok := byName[d.Name]
		if !ok || !commandEqual(e, d) {
			return false
		}
	}
	return true
}

func commandEqual(a, b *discordgo.ApplicationCommand) bool {
	if a.Name != b.Name || a.Description != b.Description {
		return false
	}
	if (a.DefaultMemberPermissions == nil) != (b.DefaultMemberPermissions == nil) {
		return false
	}
	if a.DefaultMemberPermissions != nil && *a.DefaultMemberPermissions != *b.DefaultMemberPermissions {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for n := range a.Options {
		if !optionEqual(a.Options[n], b.Options[n]) {
			return false
		}
	}
	return true
}

func optionEqual(a, b *discordgo.ApplicationCommandOption) bool {
	if a.Type != b.Type || a.Name != b.Name || a.Description != b.Description || a.Required != b.Required {
		return false
	}
	if a.MaxValue != b.MaxValue || a.MaxLength != b.MaxLength {
		return false
	}
	if !ptrEqual(a.MinValue, b.MinValue) || !ptrEqual(a.MinLength, b.MinLength) {
		return false
	}
	if len(a.Choices) != len(b.Choices) {
		return false
	}
	for n := range a.Choices {
		if a.Choices[n].Name != b.Choices[n].Name || fmt.Sprint(a.Choices[n].Value) != fmt.Sprint(b.Choices[n].Value) {
			return false
		}
	}
	return true
}

func ptrEqual[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

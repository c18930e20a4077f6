package bot

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/config"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/handler"
)

const testGuild = "100"

type fakeModule struct {
	commands   []handler.Command
	components []handler.Component
}

func (m fakeModule) Commands() []handler.Command     { return m.commands }
func (m fakeModule) Components() []handler.Component { return m.components }

type capture struct {
	errs []error
}

func (c *capture) report(_ *discordgo.Session, _ *discordgo.InteractionCreate, err error) {
	c.errs = append(c.errs, err)
}

func slash(name string, roles ...string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:    discordgo.InteractionApplicationCommand,
		GuildID: testGuild,
		Member:  &discordgo.Member{User: &discordgo.User{ID: "1"}, Roles: roles},
		Data:    discordgo.ApplicationCommandInteractionData{Name: name},
	}}
}

func click(customID string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:    discordgo.InteractionMessageComponent,
		GuildID: testGuild,
		Member:  &discordgo.Member{User: &discordgo.User{ID: "1"}},
		Data:    discordgo.MessageComponentInteractionData{CustomID: customID},
	}}
}

func newTestRegistry(t *testing.T, modRole string, modules ...handler.Module) (*Registry, *capture) {
	t.Helper()
	c := &capture{}
	r := NewRegistry(&config.DiscordConfig{GuildID: testGuild, ModRoleID: modRole}, c.report)
	for _, m := range modules {
		require.NoError(t, r.Add(m))
	}
	return r, c
}

func command(name string, mod bool, h handler.HandlerFunc) handler.Command {
	return handler.Command{Def: &discordgo.ApplicationCommand{Name: name}, Handle: h, Moderator: mod}
}

func TestRequireModeratorProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		modRole := rapid.StringMatching(`[0-9]{5,8}`).Draw(t, "modRole")
		roles := rapid.SliceOf(rapid.StringMatching(`[0-9]{5,8}`)).Draw(t, "roles")

		ran := false
		c := &capture{}
		r := NewRegistry(&config.DiscordConfig{GuildID: testGuild, ModRoleID: modRole}, c.report)
		if err := r.Add(fakeModule{commands: []handler.Command{
			command("mod", true, func(context.Context, *discordgo.Session, *discordgo.InteractionCreate) error {
				ran = true
				return nil
			}),
		}}); err != nil {
			t.Fatal(err)
		}

		r.Dispatch(context.Background(), nil, slash("mod", roles...))

		isMod := false
		for _, role := range roles {
			if role == modRole {
				isMod = true
			}
		}
		if ran != isMod {
			t.Fatalf("roles=%v mod=%s ran=%v", roles, modRole, ran)
		}
		if !isMod && (len(c.errs) != 1 || !errors.Is(c.errs[0], handler.ErrNotModerator)) {
			t.Fatalf("expected one ErrNotModerator report, got %v", c.errs)
		}
	})
}

func TestComponentRoutingLongestPrefixProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		prefixes := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-c]{1,4}_`), 1, 8, rapid.ID[string]).Draw(t, "prefixes")
		suffix := rapid.StringMatching(`[0-9]{0,3}`).Draw(t, "suffix")
		target := rapid.SampledFrom(prefixes).Draw(t, "target")
		customID := target + suffix

		var hit string
		var components []handler.Component
		for _, p := range prefixes {
			components = append(components, handler.Component{
				Prefix: p,
				Handle: func(context.Context, *discordgo.Session, *discordgo.InteractionCreate) error {
					hit = p
					return nil
				},
			})
		}
		c := &capture{}
		r := NewRegistry(&config.DiscordConfig{GuildID: testGuild}, c.report)
		if err := r.Add(fakeModule{components: components}); err != nil {
			t.Fatal(err)
		}

		r.Dispatch(context.Background(), nil, click(customID))

		want := ""
		for _, p := range prefixes {
			if strings.HasPrefix(customID, p) && len(p) > len(want) {
				want = p
			}
		}
		if hit != want {
			t.Fatalf("customID=%q prefixes=%v hit=%q want=%q", customID, prefixes, hit, want)
		}
	})
}

func TestErrorsAreReportedOnce(t *testing.T) {
	boom := errors.New("boom")
	r, c := newTestRegistry(t, "", fakeModule{commands: []handler.Command{
		command("fail", false, func(context.Context, *discordgo.Session, *discordgo.InteractionCreate) error {
			return boom
		}),
		command("ok", false, func(context.Context, *discordgo.Session, *discordgo.InteractionCreate) error {
			return nil
		}),
	}})

	r.Dispatch(context.Background(), nil, slash("ok"))
	assert.Empty(t, c.errs)

	r.Dispatch(context.Background(), nil, slash("fail"))
	require.Len(t, c.errs, 1)
	assert.ErrorIs(t, c.errs[0], boom)
}

func TestPanicBecomesReportedError(t *testing.T) {
	r, c := newTestRegistry(t, "", fakeModule{commands: []handler.Command{
		command("panic", false, func(context.Context, *discordgo.Session, *discordgo.InteractionCreate) error {
			panic("nil map")
		}),
	}})

	assert.NotPanics(t, func() { r.Dispatch(context.Background(), nil, slash("panic")) })
	require.Len(t, c.errs, 1)
	msg, expected := handler.Describe(c.errs[0])
	assert.False(t, expected)
	assert.Contains(t, msg, "Something went wrong")
}

func TestLoggerIsInContext(t *testing.T) {
	var got context.Context
	r, _ := newTestRegistry(t, "", fakeModule{commands: []handler.Command{
		command("ctx", false, func(ctx context.Context, _ *discordgo.Session, _ *discordgo.InteractionCreate) error {
			got = ctx
			return nil
		}),
	}})

	r.Dispatch(context.Background(), nil, slash("ctx"))
	require.NotNil(t, got)
	assert.NotEqual(t, zerolog.Disabled, zerolog.Ctx(got).GetLevel())
}

func TestOtherGuildsAreIgnored(t *testing.T) {
	ran := 0
	r, c := newTestRegistry(t, "", fakeModule{commands: []handler.Command{
		command("x", false, func(context.Context, *discordgo.Session, *discordgo.InteractionCreate) error {
			ran++
			return nil
		}),
	}})

	other := slash("x")
	other.GuildID = "999"
	r.Dispatch(context.Background(), nil, other)

	dm := slash("x")
	dm.GuildID = ""
	r.Dispatch(context.Background(), nil, dm)

	r.Dispatch(context.Background(), nil, slash("x"))
	assert.Equal(t, 1, ran)
	assert.Empty(t, c.errs)
}

func TestUnknownInteractionIsDropped(t *testing.T) {
	r, c := newTestRegistry(t, "")
	assert.NotPanics(t, func() {
		r.Dispatch(context.Background(), nil, slash("missing"))
		r.Dispatch(context.Background(), nil, click("nothing_1"))
	})
	assert.Empty(t, c.errs)
}

func TestDuplicatesAreRejected(t *testing.T) {
	noop := func(context.Context, *discordgo.Session, *discordgo.InteractionCreate) error { return nil }
	r, _ := newTestRegistry(t, "", fakeModule{
		commands:   []handler.Command{command("a", false, noop)},
		components: []handler.Component{{Prefix: "a_", Handle: noop}},
	})

	assert.Error(t, r.Add(fakeModule{commands: []handler.Command{command("a", false, noop)}}))
	assert.Error(t, r.Add(fakeModule{components: []handler.Component{{Prefix: "a_", Handle: noop}}}))
	assert.Len(t, r.Definitions(), 1)
}

func TestCommandsEqual(t *testing.T) {
	perm := int64(discordgo.PermissionModerateMembers)
	minOne := 1.0
	build := func() []*discordgo.ApplicationCommand {
		return []*discordgo.ApplicationCommand{
			{Name: "attack", Description: "Attack", Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "stake", Description: "Stake", MinValue: &minOne, MaxValue: 200},
			}},
			{Name: "ceasefire", Description: "Stop attacks", DefaultMemberPermissions: &perm},
		}
	}

	a, b := build(), build()
	assert.True(t, commandsEqual(a, b))

	// order does not matter
	assert.True(t, commandsEqual(a, []*discordgo.ApplicationCommand{b[1], b[0]}))

	b[0].Options[0].MaxValue = 500
	assert.False(t, commandsEqual(a, b))

	b = build()
	b[1].DefaultMemberPermissions = nil
	assert.False(t, commandsEqual(a, b))

	assert.False(t, commandsEqual(a, build()[:1]))
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next handler.HandlerFunc) handler.HandlerFunc {
			return func(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
				order = append(order, name)
				return next(ctx, s, i)
			}
		}
	}
	h := Chain(func(context.Context, *discordgo.Session, *discordgo.InteractionCreate) error {
		order = append(order, "handler")
		return nil
	}, mark("outer"), mark("inner"))

	require.NoError(t, h(context.Background(), nil, slash("x")))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

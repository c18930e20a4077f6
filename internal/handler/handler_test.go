package handler

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/config"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/effect"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/game/attack"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/game/guildwar"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/game/trap"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/model"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/service"
)

func testBase() base {
	return base{cfg: &config.Config{Economy: config.EconomyConfig{PointName: "point"}}}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		want     string
		expected bool
	}{
		{"sentinel", service.ErrInsufficientBalance, "❌ Insufficient balance", true},
		{"wrapped keeps sentinel text", fmt.Errorf("transfer 1->2: %w", attack.ErrSelfTarget), "❌ Cannot target yourself", true},
		{"detail after sentinel", fmt.Errorf("%w, use <#5>", ErrWrongChannel), "❌ This command cannot be used in this channel, use <#5>", true},
		{"cooldown", &effect.CooldownError{Action: "attack", Remaining: 65 * time.Second}, "⏰ Attack on cooldown: 1m 5s remaining", true},
		{"validation", &ValidationError{Field: "amount", Reason: "must be greater than 0"}, "❌ Amount must be greater than 0", true},
		{"unknown", errors.New("connection reset"), genericError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, expected := Describe(tt.err)
			assert.Equal(t, tt.want, msg)
			assert.Equal(t, tt.expected, expected)
		})
	}
}

func TestCustomIDParts(t *testing.T) {
	assert.Equal(t, []string{"12", "team1"}, customIDParts("guildwar_12_team1", prefixGuildWar))
	assert.Nil(t, customIDParts("guildwar_", prefixGuildWar))
}

func TestPredictionTarget(t *testing.T) {
	id, choice, err := predictionTarget("pred_bet_42_3", prefixPredictionBet)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, 3, choice)

	for _, bad := range []string{"pred_bet_42", "pred_bet_x_1", "pred_bet_1_y", "pred_bet_1_2_3"} {
		_, _, err := predictionTarget(bad, prefixPredictionBet)
		assert.ErrorIs(t, err, ErrInvalidInput, bad)
	}
}

func TestDisabled(t *testing.T) {
	local := []discordgo.MessageComponent{discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		button("Give", "", "beg_1_give", discordgo.SuccessButton),
	}}}
	received := []discordgo.MessageComponent{&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		&discordgo.Button{Label: "Attack", CustomID: "beg_1_attack"},
	}}}

	for _, rows := range [][]discordgo.MessageComponent{local, received} {
		out := disabled(rows)
		require.Len(t, out, 1)
		row, ok := out[0].(discordgo.ActionsRow)
		require.True(t, ok)
		require.Len(t, row.Components, 1)
		b, ok := row.Components[0].(discordgo.Button)
		require.True(t, ok)
		assert.True(t, b.Disabled)
	}

	// the source rows are left untouched
	assert.False(t, received[0].(*discordgo.ActionsRow).Components[0].(*discordgo.Button).Disabled)
}

func TestPointsFormatting(t *testing.T) {
	b := testBase()
	assert.Equal(t, "1,234,567 point", b.points(1234567))
	assert.Equal(t, "-50 point", b.points(-50))
	assert.Equal(t, "+1,000", signed(1000))
	assert.Equal(t, "-3", signed(-3))
	assert.Equal(t, "35%", percent(0.35))
}

func TestRequireChannel(t *testing.T) {
	i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{ChannelID: "1"}}
	assert.NoError(t, requireChannel(i, ""))
	assert.NoError(t, requireChannel(i, "1"))
	assert.ErrorIs(t, requireChannel(i, "2"), ErrWrongChannel)
}

func TestFormatNumbers(t *testing.T) {
	assert.Equal(t, "07 42 00", formatNumbers([]int{7, 42, 0}))
	assert.Equal(t, "", formatNumbers(nil))
}

func TestTruncate(t *testing.T) {
	short := "hello"
	assert.Equal(t, short, truncate(short))

	long := strings.Repeat("line of text\n", 400)
	out := truncate(long)
	assert.LessOrEqual(t, len(out), maxMessageLen+len("\n…"))
	assert.True(t, strings.HasSuffix(out, "\n…"))
	assert.True(t, strings.HasPrefix(long, strings.TrimSuffix(out, "\n…")))
}

func TestLeaderboard(t *testing.T) {
	e := testBase().leaderboard("Top", []model.LeaderboardEntry{
		{UserID: 1, Value: 900}, {UserID: 2, Value: 800}, {UserID: 3, Value: 700}, {UserID: 4, Value: 600},
	})
	lines := strings.Split(strings.TrimSpace(e.Description), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "🥇 <@1>"))
	assert.True(t, strings.HasPrefix(lines[3], "` 4.` <@4>"))
	assert.Contains(t, lines[0], "900 point")
}

func TestOutcomeEmbed(t *testing.T) {
	b := testBase()
	res := &attack.Result{
		Outcome: attack.Outcome{
			Kind:     attack.KindAttack,
			Success:  true,
			Chance:   0.35,
			Stake:    100,
			Attacker: model.LedgerDelta{Points: 95},
			Defender: model.LedgerDelta{Points: -100},
			Tax:      5,
		},
		AttackerPoints: 1095,
		TargetPoints:   400,
	}
	e := b.outcomeEmbed(1, 2, res)
	assert.Equal(t, "⚔️ Attack succeeded!", e.Title)
	assert.Equal(t, colorGreen, e.Color)
	assert.Contains(t, e.Description, "**Chance:** 35%")
	assert.Contains(t, e.Description, "<@1> +95 (now 1,095 point)")
	assert.Contains(t, e.Description, "Tax: 5 point")

	res.Outcome.Success = false
	res.Outcome.Dodged = true
	e = b.outcomeEmbed(1, 2, res)
	assert.Equal(t, colorRed, e.Color)
	assert.NotContains(t, e.Description, "Chance")
}

func TestBattleLogChunks(t *testing.T) {
	w := &model.GuildWar{Name: "Clash", Team1Name: "Red", Team2Name: "Blue"}
	battle := &guildwar.Battle{Winner: 2}
	for n := 1; n <= 60; n++ {
		r := guildwar.Round{Number: n}
		for k := 0; k < 4; k++ {
			r.Events = append(r.Events, guildwar.Event{
				Kind: guildwar.EventClash, Actor: 111111111111111111, Target: 222222222222222222,
				TargetDamage: 12, ActorDamage: 8, ActorHP: 50, TargetHP: 40,
			})
		}
		battle.Rounds = append(battle.Rounds, r)
	}

	chunks := battleLog(w, battle)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), maxMessageLen)
	}
	joined := strings.Join(chunks, "")
	assert.Contains(t, joined, "**Round 1**")
	assert.Contains(t, joined, "**Round 60**")
	assert.True(t, strings.HasSuffix(chunks[len(chunks)-1], "🏆 **Blue wins the war!**\n"))
}

func TestEventLine(t *testing.T) {
	assert.Equal(t, "💀 <@5> is defeated", eventLine(guildwar.Event{Kind: guildwar.EventDefeated, Actor: 5}))
	assert.Contains(t, eventLine(guildwar.Event{Kind: guildwar.EventClash, Actor: 1, Target: 2, TargetDamage: 9, Crit: true}), "deals 9 **CRIT!**")
}

func TestTrapArmedReplyHidesExistingTrap(t *testing.T) {
	h := &TrapHandler{base: testBase()}
	fresh := h.armedReply("banana split", &trap.SetResult{Cost: 40, Remaining: 960})
	rearmed := h.armedReply("banana split", &trap.SetResult{Rearmed: true, Cost: 40, Remaining: 1000})

	assert.Equal(t, fresh, rearmed)
	assert.Contains(t, fresh, "(-40 point)")
	assert.Contains(t, fresh, "200 point")
	assert.NotContains(t, fresh, "960")
}

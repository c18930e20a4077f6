package handler

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/game/attack"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/game/guildwar"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/game/prediction"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/model"
)

// maxMessageLen leaves headroom under Discord's 2000 character limit.
const maxMessageLen = 1900

func percent(p float64) string {
	return fmt.Sprintf("%.0f%%", p*100)
}

func signed(n int64) string {
	return printer.Sprintf("%+d", n)
}

func relative(t time.Time) string {
	return fmt.Sprintf("<t:%d:R>", t.Unix())
}

// outcomeEmbed renders one resolved wager.
func (b base) outcomeEmbed(attackerID, targetID int64, res *attack.Result) *discordgo.MessageEmbed {
	o := res.Outcome
	e := &discordgo.MessageEmbed{Color: colorRed}

	switch {
	case o.Success && o.Kind == attack.KindPierce:
		e.Title, e.Color = "🗡️ Pierce landed through the dodge!", colorGreen
	case o.Success && o.Kind == attack.KindBeg:
		e.Title, e.Color = "😈 Robbed the beggar!", colorGreen
	case o.Success:
		e.Title, e.Color = "⚔️ Attack succeeded!", colorGreen
	case o.Kind == attack.KindPierce:
		e.Title = "🗡️ Pierce missed, there was no dodge"
	case o.Dodged:
		e.Title = "💨 Dodged! The attacker pays double"
	case o.Kind == attack.KindBeg:
		e.Title = "🙏 The beggar fought back"
	default:
		e.Title = "🛡️ Attack failed"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s ➜ %s\n", mention(attackerID), mention(targetID))
	fmt.Fprintf(&sb, "**Stake:** %s", b.points(o.Stake))
	if o.Kind != attack.KindPierce && !o.Dodged {
		fmt.Fprintf(&sb, " · **Chance:** %s", percent(o.Chance))
	}
	sb.WriteString("\n")
	if o.Countered {
		sb.WriteString("🔄 The target had a counter ready\n")
	}
	if o.Shielded && o.Success {
		sb.WriteString("🛡️ A shield absorbed part of the hit\n")
	}
	fmt.Fprintf(&sb, "%s %s (now %s)\n", mention(attackerID), signed(o.Attacker.Points), b.points(res.AttackerPoints))
	fmt.Fprintf(&sb, "%s %s (now %s)", mention(targetID), signed(o.Defender.Points), b.points(res.TargetPoints))
	if o.Tax > 0 {
		fmt.Fprintf(&sb, "\n🏦 Tax: %s", b.points(o.Tax))
	}
	e.Description = sb.String()
	return e
}

// hitLine is one attack of a multiattack series.
func (b base) hitLine(n, total int, res *attack.Result) string {
	o := res.Outcome
	var what string
	switch {
	case o.Success:
		what = "✅ hit"
	case o.Dodged:
		what = "💨 dodged"
	default:
		what = "❌ missed"
	}
	return fmt.Sprintf("`%d/%d` %s %s (now %s)", n, total, what, signed(o.Net()), b.points(res.AttackerPoints))
}

func (b base) multiSummaryEmbed(attackerID, targetID int64, sum *attack.MultiSummary) *discordgo.MessageEmbed {
	color := colorGreen
	if sum.Net() < 0 {
		color = colorRed
	}
	desc := fmt.Sprintf("%s ➜ %s\n**Attempted:** %d · **Hits:** %d · **Misses:** %d · **Dodged:** %d · **Countered:** %d\n**Net:** %s",
		mention(attackerID), mention(targetID),
		sum.Attempted, sum.Successful, sum.Failed, sum.Dodged, sum.Countered, signed(sum.Net()))
	if sum.StoppedBy != nil {
		msg, _ := Describe(sum.StoppedBy)
		desc += "\nStopped early: " + msg
	}
	return &discordgo.MessageEmbed{Title: "⚔️ Multiattack finished", Description: desc, Color: color}
}

// leaderboard renders ranked entries, one per line.
func (b base) leaderboard(title string, entries []model.LeaderboardEntry) *discordgo.MessageEmbed {
	var sb strings.Builder
	for n, entry := range entries {
		medal := fmt.Sprintf("`%2d.`", n+1)
		switch n {
		case 0:
			medal = "🥇"
		case 1:
			medal = "🥈"
		case 2:
			medal = "🥉"
		}
		fmt.Fprintf(&sb, "%s %s · %s\n", medal, mention(entry.UserID), b.points(entry.Value))
	}
	if len(entries) == 0 {
		sb.WriteString("Nobody here yet.")
	}
	return &discordgo.MessageEmbed{Title: title, Description: sb.String(), Color: colorGold}
}

// predictionEmbed shows a market with its pools.
func (b base) predictionEmbed(sum *prediction.Summary) *discordgo.MessageEmbed {
	p := sum.Prediction
	e := &discordgo.MessageEmbed{
		Title:  "🔮 " + p.Title,
		Color:  colorPurple,
		Footer: &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Prediction #%d", p.ID)},
	}
	var status string
	switch p.Status {
	case model.PredictionBetting:
		status = "🟢 Betting closes " + relative(p.EndsAt)
	case model.PredictionLocked:
		status, e.Color = "🔒 Betting is locked, waiting for the result", colorGrey
	case model.PredictionResolved:
		status, e.Color = "✅ Resolved", colorGreen
	case model.PredictionCancelled:
		status, e.Color = "🚫 Cancelled, every bet was refunded", colorRed
	}
	e.Description = fmt.Sprintf("Created by %s\n%s\n**Total pool:** %s", mention(p.CreatorID), status, b.points(sum.Total))

	for _, c := range p.Choices {
		name := fmt.Sprintf("%d. %s", c.Number, c.Text)
		if p.WinningChoice != nil && *p.WinningChoice == c.Number {
			name = "🏆 " + name
		}
		value := fmt.Sprintf("%s · %d bettor(s)", b.points(sum.Pools[c.Number]), sum.Bettors[c.Number])
		if sum.Total > 0 && sum.Pools[c.Number] > 0 {
			value += fmt.Sprintf(" · pays %.2fx", float64(sum.Total)/float64(sum.Pools[c.Number]))
		}
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: name, Value: value})
	}
	return e
}

// predictionButtons is one bet button per choice while betting is open.
func predictionButtons(p *model.Prediction) []discordgo.MessageComponent {
	if p.Status != model.PredictionBetting {
		return []discordgo.MessageComponent{}
	}
	buttons := make([]discordgo.MessageComponent, 0, len(p.Choices))
	for _, c := range p.Choices {
		label := fmt.Sprintf("%d. %s", c.Number, c.Text)
		if len(label) > 80 {
			label = label[:80]
		}
		buttons = append(buttons, button(label, "", fmt.Sprintf("%s%d_%d", prefixPredictionBet, p.ID, c.Number), discordgo.PrimaryButton))
	}
	return []discordgo.MessageComponent{discordgo.ActionsRow{Components: buttons}}
}

func (b base) settlementText(p *model.Prediction, s *prediction.Settlement) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🏆 **%s** resolved, winning choice **%d**.\n", p.Title, s.Winner)
	if len(s.Payouts) == 0 {
		fmt.Fprintf(&sb, "Nobody picked the winner, %s goes to the tax pool.", b.points(s.Tax))
		return sb.String()
	}
	for _, pay := range s.Payouts {
		fmt.Fprintf(&sb, "%s bet %s, won %s\n", mention(pay.UserID), b.points(pay.Bet), b.points(pay.Amount))
	}
	fmt.Fprintf(&sb, "🏦 Tax: %s", b.points(s.Tax))
	return sb.String()
}

// warEmbed shows the recruiting roster.
func (b base) warEmbed(r *guildwar.Roster) *discordgo.MessageEmbed {
	w := r.War
	e := &discordgo.MessageEmbed{
		Title:  "⚔️ " + w.Name,
		Color:  colorBlue,
		Footer: &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("War #%d", w.ID)},
	}
	var status string
	switch w.Status {
	case model.WarRecruiting:
		status = "📣 Recruiting, pick a side"
	case model.WarInProgress:
		status, e.Color = "🔥 Battle in progress", colorRed
	case model.WarFinished:
		status, e.Color = fmt.Sprintf("🏆 %s won", w.TeamName(derefTeam(w.WinningTeam))), colorGreen
	case model.WarCancelled:
		status, e.Color = "🚫 Cancelled, entries were refunded", colorGrey
	}
	e.Description = fmt.Sprintf("Created by %s\n%s\n**Entry:** %s · **Pool:** %s",
		mention(w.CreatorID), status, b.points(w.EntryCost), b.points(r.Pool()))

	for team := 1; team <= 2; team++ {
		members := r.Teams[team-1]
		names := make([]string, 0, len(members))
		for _, m := range members {
			names = append(names, mention(m.UserID))
		}
		value := "Nobody yet"
		if len(names) > 0 {
			value = strings.Join(names, "\n")
		}
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:   fmt.Sprintf("%s (%d)", w.TeamName(team), len(members)),
			Value:  value,
			Inline: true,
		})
	}
	return e
}

func derefTeam(t *int) int {
	if t == nil {
		return 0
	}
	return *t
}

func warButtons(w *model.GuildWar) []discordgo.MessageComponent {
	if w.Status != model.WarRecruiting {
		return []discordgo.MessageComponent{}
	}
	id := fmt.Sprintf("%s%d_", prefixGuildWar, w.ID)
	return []discordgo.MessageComponent{discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		button("Join "+w.Team1Name, "🔴", id+"team1", discordgo.DangerButton),
		button("Join "+w.Team2Name, "🔵", id+"team2", discordgo.PrimaryButton),
		button("Leave", "🚪", id+"leave", discordgo.SecondaryButton),
	}}}
}

var effectText = map[guildwar.Effect]string{
	guildwar.EffectRetreat:    "🏃 %s retreats",
	guildwar.EffectRunAway:    "💨 %s tries to run away",
	guildwar.EffectDodge:      "🌀 %s gets ready to dodge",
	guildwar.EffectPowerUp:    "💪 %s powers up",
	guildwar.EffectShield:     "🛡️ %s raises a shield",
	guildwar.EffectFocus:      "🎯 %s focuses",
	guildwar.EffectHeal:       "💚 %s heals",
	guildwar.EffectBerserk:    "😡 %s goes berserk",
	guildwar.EffectWeaken:     "😵 %s feels weak",
	guildwar.EffectVulnerable: "💔 %s is left vulnerable",
	guildwar.EffectStun:       "⚡ %s is stunned",
}

func crit(c bool) string {
	if c {
		return " **CRIT!**"
	}
	return ""
}

// eventLine renders one battle log event.
func eventLine(ev guildwar.Event) string {
	a, t := mention(ev.Actor), mention(ev.Target)
	switch ev.Kind {
	case guildwar.EventStatus:
		line := fmt.Sprintf(effectText[ev.Effect], a)
		if ev.HPBefore != ev.ActorHP {
			line += fmt.Sprintf(" (HP %d ➜ %d)", ev.HPBefore, ev.ActorHP)
		}
		return line
	case guildwar.EventPerfectStrike:
		return fmt.Sprintf("✨ %s lands a **PERFECT STRIKE** on %s!", a, t)
	case guildwar.EventDodged:
		return fmt.Sprintf("🌀 %s dodges the attack from %s", t, a)
	case guildwar.EventStunnedHit:
		return fmt.Sprintf("⚡ %s hits the stunned %s for %d%s (HP %d)", a, t, ev.TargetDamage, crit(ev.Crit), ev.TargetHP)
	case guildwar.EventDefended:
		return fmt.Sprintf("🛡️ %s blocks %s, takes %d and repels %d (HP %d / %d)", t, a, ev.TargetDamage, ev.ActorDamage, ev.TargetHP, ev.ActorHP)
	case guildwar.EventClash:
		return fmt.Sprintf("⚔️ %s clashes with %s: deals %d%s, takes %d%s (HP %d / %d)",
			a, t, ev.TargetDamage, crit(ev.Crit), ev.ActorDamage, crit(ev.TargetCrit), ev.ActorHP, ev.TargetHP)
	case guildwar.EventStandoff:
		return fmt.Sprintf("😐 %s and %s size each other up", a, t)
	case guildwar.EventDefensiveStance:
		return fmt.Sprintf("🛡️ %s takes a defensive stance", a)
	case guildwar.EventDefeated:
		return fmt.Sprintf("💀 %s is defeated", a)
	}
	return ""
}

// battleLog splits the battle into messages that fit the length limit.
func battleLog(w *model.GuildWar, b *guildwar.Battle) []string {
	var chunks []string
	var cur strings.Builder
	add := func(block string) {
		if cur.Len()+len(block) > maxMessageLen && cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		cur.WriteString(block)
	}

	for _, r := range b.Rounds {
		var sb strings.Builder
		fmt.Fprintf(&sb, "**Round %d**\n", r.Number)
		for _, ev := range r.Events {
			sb.WriteString(eventLine(ev))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
		add(sb.String())
	}
	if sd := b.SuddenDeath; sd != nil {
		add(fmt.Sprintf("☠️ **Everyone fell!** Sudden death between %s and %s... %s survives!\n",
			mention(sd.Fighters[0]), mention(sd.Fighters[1]), mention(sd.Fighters[sd.Winner-1])))
	}
	add(fmt.Sprintf("🏆 **%s wins the war!**\n", w.TeamName(b.Winner)))
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

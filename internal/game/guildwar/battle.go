// Package guildwar implements two-team guild wars: recruiting with pooled
// entry fees and a round-based battle simulator.
package guildwar

import (
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/rng"
)

// Battle constants
const (
	StartHP          = 100
	MaxRounds        = 30
	EventChance      = 0.30
	AttackChance     = 0.60
	BaseDamage       = 50
	CritChance       = 0.10
	CritMultiplier   = 1.5
	PerfectChance    = 0.02
	DodgeChance      = 0.50
	DefendedDamage   = 10 // taken by a defender
	RepelledDamage   = 30 // taken by whoever attacks a defender
	DamageVariance   = 0.20
	HealAmount       = 25
	SuddenDeathCoin  = 0.50
	weakenPower      = -10
	powerUpPower     = 20
	berserkPower     = 25
	berserkVuln      = 25
	shieldPercent    = 40
	focusCritPercent = 20
	vulnPercent      = 30
)

// Effect is a status phase event. A player who gets one sits out combat for
// the round.
type Effect string

// Status effects, each equally likely.
const (
	EffectRetreat    Effect = "retreat"
	EffectRunAway    Effect = "run_away"
	EffectDodge      Effect = "dodge"
	EffectPowerUp    Effect = "power_up"
	EffectShield     Effect = "shield"
	EffectFocus      Effect = "focus"
	EffectHeal       Effect = "heal"
	EffectBerserk    Effect = "berserk"
	EffectWeaken     Effect = "weaken"
	EffectVulnerable Effect = "vulnerable"
	EffectStun       Effect = "stun"
)

var effects = []Effect{
	EffectRetreat, EffectRunAway, EffectDodge, EffectPowerUp, EffectShield, EffectFocus,
	EffectHeal, EffectBerserk, EffectWeaken, EffectVulnerable, EffectStun,
}

// EventKind classifies a battle log line.
type EventKind int

// Battle log events.
const (
	EventStatus EventKind = iota
	EventPerfectStrike
	EventDodged
	EventStunnedHit
	EventDefended
	EventClash
	EventStandoff // target was busy with a status effect
	EventDefensiveStance
	EventDefeated
)

// Event is one line of the battle log. HP values are after the event.
type Event struct {
	Kind         EventKind
	Actor        int64
	Target       int64
	Effect       Effect
	ActorDamage  int
	TargetDamage int
	Crit         bool
	TargetCrit   bool
	ActorHP      int
	TargetHP     int
	HPBefore     int // actor HP before a status effect
}

// Round is the log of one round.
type Round struct {
	Number int
	Events []Event
}

// Fighter is a player's final state.
type Fighter struct {
	UserID int64
	Team   int
	HP     int
}

// SuddenDeath records the tiebreak after a mutual wipe.
type SuddenDeath struct {
	Fighters [2]int64
	Winner   int
}

// Battle is a finished simulation.
type Battle struct {
	Rounds      []Round
	Winner      int
	SuddenDeath *SuddenDeath
	Fighters    []Fighter
}

// Survivors returns the winning team's living fighters.
func (b *Battle) Survivors() []Fighter {
	var out []Fighter
	for _, f := range b.Fighters {
		if f.Team == b.Winner && f.HP > 0 {
			out = append(out, f)
		}
	}
	return out
}

type action int

const (
	actAttack action = iota
	actDefend
	actBusy
	actStunned
)

type player struct {
	id     int64
	team   int
	hp     int
	forced bool
	dodge  bool
	power  int
	shield int
	crit   int
	vuln   int
	act    action
}

func (p *player) clearMods() {
	p.power, p.shield, p.crit, p.vuln = 0, 0, 0, 0
}

func (p *player) hit(dmg int) {
	p.hp = max(p.hp-dmg, 0)
}

type sim struct {
	src     rng.Source
	players []*player
}

func (s *sim) alive(team int) []*player {
	var out []*player
	for _, p := range s.players {
		if p.hp > 0 && (team == 0 || p.team == team) {
			out = append(out, p)
		}
	}
	return out
}

func (s *sim) vary(dmg int) int {
	v := -DamageVariance + 2*DamageVariance*s.src.Float64()
	return int(float64(dmg) * (1 + v))
}

func scale(dmg, percent int) int {
	return int(float64(dmg) * (1 + float64(percent)/100))
}

func (s *sim) rollDamage(p *player) (int, bool) {
	dmg := BaseDamage + p.power
	crit := rng.Chance(s.src, CritChance+float64(p.crit)/100)
	if crit {
		dmg = int(float64(dmg) * CritMultiplier)
	}
	return dmg, crit
}

// Simulate runs a battle between teams[0] (team 1) and teams[1] (team 2).
// Both teams must be non-empty.
func Simulate(teams [2][]int64, src rng.Source) *Battle {
	s := &sim{src: src}
	for i, ids := range teams {
		for _, id := range ids {
			s.players = append(s.players, &player{id: id, team: i + 1, hp: StartHP})
		}
	}

	b := &Battle{}
	for n := 1; n <= MaxRounds && len(s.alive(1)) > 0 && len(s.alive(2)) > 0; n++ {
		b.Rounds = append(b.Rounds, s.round(n))
	}

	t1, t2 := len(s.alive(1)), len(s.alive(2))
	switch {
	case t1 == 0 && t2 == 0:
		sd := &SuddenDeath{Fighters: [2]int64{rng.Pick(src, teams[0]), rng.Pick(src, teams[1])}}
		sd.Winner = 2
		if rng.Chance(src, SuddenDeathCoin) {
			sd.Winner = 1
		}
		for _, p := range s.players {
			if p.id == sd.Fighters[sd.Winner-1] && p.team == sd.Winner {
				p.hp = 1
			}
		}
		b.SuddenDeath, b.Winner = sd, sd.Winner
	case t1 > t2:
		b.Winner = 1
	default:
		b.Winner = 2
	}

	for _, p := range s.players {
		b.Fighters = append(b.Fighters, Fighter{UserID: p.id, Team: p.team, HP: p.hp})
	}
	return b
}

func (s *sim) round(n int) Round {
	r := Round{Number: n}
	alive := s.alive(0)

	for _, p := range alive {
		if rng.Chance(s.src, EventChance) {
			e := rng.Pick(s.src, effects)
			r.Events = append(r.Events, s.applyEffect(p, e))
			continue
		}
		p.clearMods()
		switch {
		case p.forced:
			p.act, p.forced = actAttack, false
		case rng.Chance(s.src, AttackChance):
			p.act = actAttack
		default:
			p.act, p.forced = actDefend, true
		}
	}

	done := make(map[int64]bool)
	for _, p := range alive {
		if done[p.id] || p.hp <= 0 || p.act == actBusy || p.act == actStunned {
			continue
		}
		if p.act == actDefend {
			r.Events = append(r.Events, Event{Kind: EventDefensiveStance, Actor: p.id, ActorHP: p.hp})
			done[p.id] = true
			continue
		}

		enemy := 3 - p.team
		var targets []*player
		for _, e := range s.alive(enemy) {
			if !done[e.id] {
				targets = append(targets, e)
			}
		}
		if len(targets) == 0 {
			continue
		}
		t := rng.Pick(s.src, targets)
		r.Events = append(r.Events, s.attack(p, t)...)
		done[p.id], done[t.id] = true, true
	}
	return r
}

func (s *sim) applyEffect(p *player, e Effect) Event {
	ev := Event{Kind: EventStatus, Actor: p.id, Effect: e, HPBefore: p.hp}
	p.act = actBusy
	switch e {
	case EffectRetreat, EffectRunAway:
		p.hp /= 2
	case EffectWeaken:
		p.power = weakenPower
	case EffectVulnerable:
		p.vuln = vulnPercent
	case EffectStun:
		p.act = actStunned
	case EffectDodge:
		p.dodge = true
	case EffectPowerUp:
		p.power = powerUpPower
	case EffectShield:
		p.shield = shieldPercent
	case EffectFocus:
		p.crit = focusCritPercent
	case EffectHeal:
		p.hp = min(StartHP, p.hp+HealAmount)
	case EffectBerserk:
		p.power, p.vuln = berserkPower, berserkVuln
	}
	ev.ActorHP = p.hp
	return ev
}

func (s *sim) attack(a, t *player) []Event {
	if rng.Chance(s.src, PerfectChance) {
		t.hp = 0
		return []Event{
			{Kind: EventPerfectStrike, Actor: a.id, Target: t.id, ActorHP: a.hp},
			{Kind: EventDefeated, Actor: t.id},
		}
	}
	if t.dodge && rng.Chance(s.src, DodgeChance) {
		t.dodge = false
		return []Event{{Kind: EventDodged, Actor: a.id, Target: t.id, ActorHP: a.hp, TargetHP: t.hp}}
	}
	t.dodge = false

	dmg, crit := s.rollDamage(a)
	ev := Event{Actor: a.id, Target: t.id, Crit: crit}

	switch t.act {
	case actStunned:
		ev.Kind = EventStunnedHit
		ev.TargetDamage = s.vary(dmg)
		t.hit(ev.TargetDamage)
		ev.ActorHP, ev.TargetHP = a.hp, t.hp
		out := []Event{ev}
		if t.hp == 0 {
			out = append(out, Event{Kind: EventDefeated, Actor: t.id})
		}
		return out

	case actDefend:
		ev.Kind = EventDefended
		td, ad := DefendedDamage, RepelledDamage
		if t.shield > 0 {
			td = scale(td, -t.shield)
		}
		if t.vuln > 0 {
			td = scale(td, t.vuln)
		}
		if a.vuln > 0 {
			ad = scale(ad, a.vuln)
		}
		ev.TargetDamage, ev.ActorDamage = s.vary(td), s.vary(ad)

	case actAttack:
		ev.Kind = EventClash
		back, backCrit := s.rollDamage(t)
		ev.TargetCrit = backCrit
		td, ad := dmg, back
		if t.shield > 0 {
			td = scale(td, -t.shield)
		}
		if a.shield > 0 {
			ad = scale(ad, -a.shield)
		}
		if t.vuln > 0 {
			td = scale(td, t.vuln)
		}
		if a.vuln > 0 {
			ad = scale(ad, a.vuln)
		}
		ev.TargetDamage, ev.ActorDamage = s.vary(td), s.vary(ad)

	default:
		ev.Kind = EventStandoff
	}

	t.hit(ev.TargetDamage)
	a.hit(ev.ActorDamage)
	ev.ActorHP, ev.TargetHP = a.hp, t.hp
	out := []Event{ev}
	if t.hp == 0 {
		out = append(out, Event{Kind: EventDefeated, Actor: t.id})
	}
	if a.hp == 0 {
		out = append(out, Event{Kind: EventDefeated, Actor: a.id})
	}
	a.clearMods()
	t.clearMods()
	return out
}

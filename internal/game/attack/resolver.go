// Package attack implements the wager resolver shared by attack, multiattack,
// pierce and beg-attack, plus the defensive effects that modify it.
package attack

import (
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/model"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/rng"
)

// Resolver constants.
const (
	BaseChance        = 0.45
	RichBonus         = 0.15  // defender above RichThreshold
	VeryRichBonus     = 0.10  // defender above VeryRichThreshold, stacks with RichBonus
	CounterChance     = 0.20  // overrides every other modifier
	BegRichBonus      = 0.20  // beggar above BegRichThreshold
	BegPoorPenalty    = 0.20  // beggar below BegPoorThreshold
	RichThreshold     = 3000
	VeryRichThreshold = 10000
	BegRichThreshold  = 1500
	BegPoorThreshold  = 500

	TaxPercent          = 5
	VeryRichStealBonus  = 10 // extra percent stolen from a defender above VeryRichThreshold
	ShieldKeepPercent   = 75
	DodgeLossMultiplier = 2
	PierceMultiplier    = 10
	HighStakeThreshold  = 100 // stakes above this count in the high stats bucket

	DailyGainCap = 100000 // cumulative_attack_gains
	DailyLossCap = 100000 // cumulative_defense_losses
)

// Kind selects the resolver variant.
type Kind int

const (
	KindAttack Kind = iota
	KindPierce
	KindBeg
)

func (k Kind) String() string {
	switch k {
	case KindPierce:
		return "pierce"
	case KindBeg:
		return "beg"
	default:
		return "attack"
	}
}

// Input is everything the resolver needs to know about one wager.
type Input struct {
	Kind           Kind
	Stake          int64
	AttackerGains  int64 // attacker's cumulative_attack_gains today
	DefenderPoints int64
	Dodge          bool // defender held a dodge, already consumed by the caller
	Shield         bool
	Countered      bool // defender holds a counter against this attacker
}

// Outcome is the fully computed result. Applying Attacker, Defender and Tax
// together conserves attacker+defender+tax pool.
type Outcome struct {
	Kind      Kind
	Success   bool
	Dodged    bool
	Countered bool
	Shielded  bool
	Chance    float64
	Stake     int64 // stake after the daily gain clamp
	Attacker  model.LedgerDelta
	Defender  model.LedgerDelta
	Tax       int64
	Record    model.AttackRecord
}

// Net is the attacker's balance change.
func (o *Outcome) Net() int64 {
	return o.Attacker.Points
}

// taxOf returns the integer tax on amount.
func taxOf(amount int64, percent int64) int64 {
	return amount * percent / 100
}

// SuccessChance returns the win probability for in, ignoring a forced dodge.
func SuccessChance(in Input) float64 {
	var p float64
	switch {
	case in.Kind == KindBeg:
		p = BaseChance
		if in.DefenderPoints > BegRichThreshold {
			p += BegRichBonus
		}
		if in.DefenderPoints < BegPoorThreshold {
			p -= BegPoorPenalty
		}
	case in.Countered:
		p = CounterChance
	default:
		p = BaseChance
		if in.DefenderPoints > RichThreshold {
			p += RichBonus
		}
		if in.DefenderPoints > VeryRichThreshold {
			p += VeryRichBonus
		}
	}
	return max(0, min(1, p))
}

// ClampStake limits stake to what the attacker may still gain today. Only a
// successful regular attack is clamped; a losing attacker pays the full stake.
func ClampStake(stake, gains int64) int64 {
	return max(0, min(stake, DailyGainCap-gains))
}

func statsFor(stake int64, won bool) model.AttackStats {
	var s model.AttackStats
	if stake > HighStakeThreshold {
		s.AttemptsHigh = 1
		if won {
			s.WinsHigh = 1
		}
	} else {
		s.AttemptsLow = 1
		if won {
			s.WinsLow = 1
		}
	}
	return s
}

// Resolve decides a wager and computes every balance change.
func Resolve(in Input, src rng.Source) Outcome {
	out := Outcome{Kind: in.Kind, Countered: in.Countered, Shielded: in.Shield}
	out.Stake = in.Stake

	switch in.Kind {
	case KindPierce:
		// A pierce only lands through a dodge.
		out.Chance = 0
		if in.Dodge {
			out.Chance = 1
		}
		out.Success = in.Dodge
		out.Dodged = in.Dodge
	default:
		if in.Dodge {
			out.Dodged = true
			out.Chance = 0
		} else {
			out.Chance = SuccessChance(in)
			out.Success = rng.Chance(src, out.Chance)
		}
	}

	switch in.Kind {
	case KindPierce:
		resolvePierce(&out, in)
	case KindBeg:
		resolveBeg(&out, in)
	default:
		resolveAttack(&out, in)
	}
	out.Record.Success = out.Success
	return out
}

func resolveAttack(out *Outcome, in Input) {
	out.Record.AttackType = model.AttackTypeRegular
	out.Attacker.Stats = statsFor(out.Stake, out.Success)

	switch {
	case out.Success:
		out.Stake = ClampStake(out.Stake, in.AttackerGains)
		steal := out.Stake
		if in.DefenderPoints > VeryRichThreshold {
			steal += taxOf(out.Stake, VeryRichStealBonus)
		}
		if in.Shield {
			steal = steal * ShieldKeepPercent / 100
		}
		tax := taxOf(steal, TaxPercent)
		gain := steal - tax

		out.Tax = tax
		out.Attacker.Points = gain
		out.Attacker.CumulativeAttackGains = steal
		out.Attacker.Profit.Attack = gain
		out.Defender.Points = -steal
		out.Defender.CumulativeDefenseLosses = steal
		out.Record.Amount = out.Stake
		out.Record.PointsGained = gain
		out.Record.PointsLost = steal

	case out.Dodged:
		loss := DodgeLossMultiplier * out.Stake
		tax := taxOf(loss, TaxPercent)
		net := loss - tax

		out.Tax = tax
		out.Attacker.Points = -loss
		out.Attacker.CumulativeAttackGains = -out.Stake
		out.Defender.Points = net
		out.Defender.Profit.Dodge = net
		out.Defender.CumulativeDefenseLosses = -net
		out.Record.AttackType = model.AttackTypeDodge
		out.Record.Amount = out.Stake
		out.Record.PointsLost = loss

	default:
		tax := taxOf(out.Stake, TaxPercent)
		net := out.Stake - tax

		out.Tax = tax
		out.Attacker.Points = -out.Stake
		out.Attacker.CumulativeAttackGains = -out.Stake
		out.Defender.Points = net
		out.Defender.Profit.Defense = net
		out.Defender.CumulativeDefenseLosses = -net
		out.Record.Amount = out.Stake
		out.Record.PointsLost = out.Stake
	}
}

func resolvePierce(out *Outcome, in Input) {
	out.Record.AttackType = model.AttackTypePierce
	out.Record.Amount = out.Stake
	out.Attacker.Stats = statsFor(out.Stake, out.Success)

	if out.Success {
		total := PierceMultiplier * out.Stake
		tax := taxOf(total, TaxPercent)
		gain := total - tax

		out.Tax = tax
		out.Attacker.Points = gain
		out.Attacker.CumulativeAttackGains = total
		out.Attacker.Profit.Pierce = gain
		out.Defender.Points = -total
		out.Defender.CumulativeDefenseLosses = total
		out.Record.PointsGained = gain
		out.Record.PointsLost = total
		return
	}

	tax := taxOf(out.Stake, TaxPercent)
	net := out.Stake - tax

	out.Tax = tax
	out.Attacker.Points = -out.Stake
	out.Attacker.CumulativeAttackGains = -out.Stake
	out.Defender.Points = net
	out.Defender.Profit.Pierce = net
	out.Defender.CumulativeDefenseLosses = -net
	out.Record.PointsLost = out.Stake
}

func resolveBeg(out *Outcome, in Input) {
	out.Record.AttackType = model.AttackTypeBeg
	out.Record.Amount = out.Stake
	out.Attacker.Stats = statsFor(out.Stake, out.Success)

	if out.Success {
		steal := out.Stake
		if in.Shield {
			steal = steal * ShieldKeepPercent / 100
		}
		tax := taxOf(steal, TaxPercent)
		gain := steal - tax

		out.Tax = tax
		out.Attacker.Points = gain
		out.Attacker.CumulativeAttackGains = steal
		out.Attacker.Profit.Beg = gain
		out.Defender.Points = -steal
		out.Defender.CumulativeDefenseLosses = steal
		out.Record.PointsGained = gain
		out.Record.PointsLost = steal
		return
	}

	// A failed beg-attack pays the beggar the whole stake, untaxed.
	out.Attacker.Points = -out.Stake
	out.Attacker.CumulativeAttackGains = -out.Stake
	out.Defender.Points = out.Stake
	out.Defender.Profit.Beg = out.Stake
	out.Record.PointsLost = out.Stake
}

package attack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/model"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/rng"
)

func win() rng.Source  { return &rng.Scripted{Floats: []float64{0}} }
func lose() rng.Source { return &rng.Scripted{Floats: []float64{0.999}} }

func TestSuccessChance(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want float64
	}{
		{"base", Input{DefenderPoints: 1000}, 0.45},
		{"rich", Input{DefenderPoints: 3001}, 0.60},
		{"at rich threshold", Input{DefenderPoints: 3000}, 0.45},
		{"very rich", Input{DefenderPoints: 10001}, 0.70},
		{"countered", Input{DefenderPoints: 20000, Countered: true}, 0.20},
		{"beg rich", Input{Kind: KindBeg, DefenderPoints: 1501}, 0.65},
		{"beg poor", Input{Kind: KindBeg, DefenderPoints: 499}, 0.25},
		{"beg ignores counter", Input{Kind: KindBeg, DefenderPoints: 1000, Countered: true}, 0.45},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, SuccessChance(tt.in), 1e-9)
		})
	}
}

func TestResolve_AttackSuccess(t *testing.T) {
	out := Resolve(Input{Stake: 100, DefenderPoints: 1000}, win())

	require.True(t, out.Success)
	assert.Equal(t, int64(95), out.Attacker.Points)
	assert.Equal(t, int64(-100), out.Defender.Points)
	assert.Equal(t, int64(5), out.Tax)
	assert.Equal(t, int64(100), out.Attacker.CumulativeAttackGains)
	assert.Equal(t, int64(100), out.Defender.CumulativeDefenseLosses)
	assert.Equal(t, int64(1), out.Attacker.Stats.AttemptsLow)
	assert.Equal(t, int64(1), out.Attacker.Stats.WinsLow)
	assert.Equal(t, model.AttackTypeRegular, out.Record.AttackType)
}

func TestResolve_AttackFailure(t *testing.T) {
	out := Resolve(Input{Stake: 200, DefenderPoints: 1000}, lose())

	require.False(t, out.Success)
	assert.Equal(t, int64(-200), out.Attacker.Points)
	assert.Equal(t, int64(190), out.Defender.Points)
	assert.Equal(t, int64(10), out.Tax)
	assert.Equal(t, int64(190), out.Defender.Profit.Defense)
	assert.Equal(t, int64(1), out.Attacker.Stats.AttemptsHigh)
	assert.Zero(t, out.Attacker.Stats.WinsHigh)
}

func TestResolve_VeryRichBonusAndShield(t *testing.T) {
	out := Resolve(Input{Stake: 1000, DefenderPoints: 20000, Shield: true}, win())

	// 1000 + 10% = 1100, shield keeps 75% -> 825, tax 41
	require.True(t, out.Success)
	assert.Equal(t, int64(-825), out.Defender.Points)
	assert.Equal(t, int64(41), out.Tax)
	assert.Equal(t, int64(784), out.Attacker.Points)
}

func TestResolve_Dodge(t *testing.T) {
	out := Resolve(Input{Stake: 100, DefenderPoints: 1000, Dodge: true}, win())

	assert.False(t, out.Success)
	assert.True(t, out.Dodged)
	assert.Equal(t, int64(-200), out.Attacker.Points)
	assert.Equal(t, int64(190), out.Defender.Points)
	assert.Equal(t, int64(10), out.Tax)
	assert.Equal(t, model.AttackTypeDodge, out.Record.AttackType)
}

func TestResolve_Pierce(t *testing.T) {
	t.Run("through dodge", func(t *testing.T) {
		out := Resolve(Input{Kind: KindPierce, Stake: 100, DefenderPoints: 500, Dodge: true}, lose())
		require.True(t, out.Success)
		assert.Equal(t, int64(950), out.Attacker.Points)
		assert.Equal(t, int64(-1000), out.Defender.Points)
		assert.Equal(t, int64(50), out.Tax)
	})
	t.Run("no dodge", func(t *testing.T) {
		out := Resolve(Input{Kind: KindPierce, Stake: 100, DefenderPoints: 500}, win())
		require.False(t, out.Success)
		assert.Equal(t, int64(-100), out.Attacker.Points)
		assert.Equal(t, int64(95), out.Defender.Points)
	})
}

func TestResolve_BegFailurePaysFullStake(t *testing.T) {
	out := Resolve(Input{Kind: KindBeg, Stake: 300, DefenderPoints: 1000}, lose())

	require.False(t, out.Success)
	assert.Equal(t, int64(-300), out.Attacker.Points)
	assert.Equal(t, int64(300), out.Defender.Points)
	assert.Zero(t, out.Tax)
	assert.Equal(t, model.AttackTypeBeg, out.Record.AttackType)
}

func TestResolve_GainCapClampsOnlyWins(t *testing.T) {
	in := Input{Stake: 500, AttackerGains: DailyGainCap - 300, DefenderPoints: 1000}

	won := Resolve(in, win())
	require.True(t, won.Success)
	assert.Equal(t, int64(300), won.Stake)
	assert.Equal(t, int64(-300), won.Defender.Points)

	lost := Resolve(in, lose())
	require.False(t, lost.Success)
	assert.Equal(t, int64(500), lost.Stake)
	assert.Equal(t, int64(-500), lost.Attacker.Points)
	assert.Equal(t, int64(475), lost.Defender.Points)
}

func TestClampStake(t *testing.T) {
	assert.Equal(t, int64(500), ClampStake(500, 0))
	assert.Equal(t, int64(300), ClampStake(500, DailyGainCap-300))
	assert.Equal(t, int64(0), ClampStake(500, DailyGainCap))
}

// TestResolveConservationProperty checks that no wager creates or destroys
// points: attacker + defender + tax always nets to zero.
func TestResolveConservationProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := Input{
			Kind:           Kind(rapid.IntRange(0, 2).Draw(t, "kind")),
			Stake:          rapid.Int64Range(MinStake, 5000).Draw(t, "stake"),
			AttackerGains:  rapid.Int64Range(0, DailyGainCap-1).Draw(t, "gains"),
			DefenderPoints: rapid.Int64Range(0, 50000).Draw(t, "defender"),
			Dodge:          rapid.Bool().Draw(t, "dodge"),
			Shield:         rapid.Bool().Draw(t, "shield"),
			Countered:      rapid.Bool().Draw(t, "countered"),
		}
		src := &rng.Scripted{Floats: []float64{rapid.Float64Range(0, 0.999).Draw(t, "roll")}}

		out := Resolve(in, src)

		if sum := out.Attacker.Points + out.Defender.Points + out.Tax; sum != 0 {
			t.Fatalf("points not conserved: attacker %d defender %d tax %d",
				out.Attacker.Points, out.Defender.Points, out.Tax)
		}
		if out.Tax < 0 {
			t.Fatalf("negative tax %d", out.Tax)
		}
		if out.Stake > in.Stake {
			t.Fatalf("stake %d above wager %d", out.Stake, in.Stake)
		}
		if in.Kind == KindAttack && out.Success && in.AttackerGains+out.Stake > DailyGainCap {
			t.Fatalf("stake %d not clamped (gains %d)", out.Stake, in.AttackerGains)
		}
		if in.Kind == KindAttack && !out.Success && !out.Dodged && out.Attacker.Points != -in.Stake {
			t.Fatalf("failed attack lost %d, wagered %d", -out.Attacker.Points, in.Stake)
		}
		if in.Kind == KindAttack && in.Dodge && out.Success {
			t.Fatal("regular attack succeeded through a dodge")
		}
	})
}

package attack

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/effect"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/db"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/dbtest"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/lock"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/rng"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/repository"
)

type fixture struct {
	svc      *Service
	pool     *db.Pool
	users    *repository.UserRepository
	settings *repository.SettingsRepository
}

func newFixture(t *testing.T, src rng.Source) *fixture {
	pool := dbtest.Setup(t)
	users := repository.NewUserRepository(pool)
	settings := repository.NewSettingsRepository(pool)
	svc := NewService(pool, users, settings, repository.NewAttackHistoryRepository(pool), lock.NewUserLock(), src)
	return &fixture{svc: svc, pool: pool, users: users, settings: settings}
}

func (f *fixture) points(t *testing.T, id int64) int64 {
	p, err := f.users.Points(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (f *fixture) taxPool(t *testing.T) int64 {
	p, err := f.settings.TaxPool(context.Background())
	require.NoError(t, err)
	return p
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestService_AttackSuccess(t *testing.T) {
	f := newFixture(t, &rng.Scripted{Floats: []float64{0.1}})
	ctx := context.Background()
	dbtest.SeedUser(t, f.pool, 1, 1000)
	dbtest.SeedUser(t, f.pool, 2, 1000)
	taxBefore := f.taxPool(t)

	res, err := f.svc.Attack(ctx, Request{AttackerID: 1, TargetID: 2, Amount: 100, Now: t0})
	require.NoError(t, err)
	assert.True(t, res.Outcome.Success)

	assert.Equal(t, int64(1095), f.points(t, 1))
	assert.Equal(t, int64(900), f.points(t, 2))
	assert.Equal(t, taxBefore+5, f.taxPool(t))

	history, err := f.svc.History(ctx, 2, t0.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(95), history[0].PointsGained)
}

func TestService_AttackCooldown(t *testing.T) {
	f := newFixture(t, rng.Seeded(1))
	ctx := context.Background()
	dbtest.SeedUser(t, f.pool, 1, 5000)
	dbtest.SeedUser(t, f.pool, 2, 5000)

	_, err := f.svc.Attack(ctx, Request{AttackerID: 1, TargetID: 2, Amount: 50, Now: t0})
	require.NoError(t, err)

	_, err = f.svc.Attack(ctx, Request{AttackerID: 1, TargetID: 2, Amount: 50, Now: t0.Add(5 * time.Second)})
	require.ErrorIs(t, err, effect.ErrOnCooldown)
	assert.Contains(t, err.Error(), "15s remaining")

	_, err = f.svc.Attack(ctx, Request{AttackerID: 1, TargetID: 2, Amount: 50, Now: t0.Add(AttackCooldown)})
	require.NoError(t, err)
}

func TestService_AttackValidation(t *testing.T) {
	f := newFixture(t, rng.Seeded(1))
	ctx := context.Background()
	dbtest.SeedUser(t, f.pool, 1, 100)
	dbtest.SeedUser(t, f.pool, 2, 30)

	_, err := f.svc.Attack(ctx, Request{AttackerID: 1, TargetID: 1, Amount: 50, Now: t0})
	assert.ErrorIs(t, err, ErrSelfTarget)

	_, err = f.svc.Attack(ctx, Request{AttackerID: 1, TargetID: 2, Amount: 10, Now: t0})
	assert.ErrorIs(t, err, ErrInvalidStake)

	_, err = f.svc.Attack(ctx, Request{AttackerID: 1, TargetID: 2, Amount: 500, Now: t0})
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = f.svc.Attack(ctx, Request{AttackerID: 1, TargetID: 2, Amount: 50, Now: t0})
	assert.ErrorIs(t, err, ErrTargetTooPoor)

	// failed validation leaves no cooldown behind
	dbtest.SeedUser(t, f.pool, 2, 1000)
	_, err = f.svc.Attack(ctx, Request{AttackerID: 1, TargetID: 2, Amount: 50, Now: t0})
	assert.NoError(t, err)
}

func TestService_ProtectedTargetFinesAttacker(t *testing.T) {
	f := newFixture(t, rng.Seeded(1))
	ctx := context.Background()
	dbtest.SeedUser(t, f.pool, 1, 5000)
	dbtest.SeedUser(t, f.pool, 99, 5000)
	f.svc.SetProtected(func(id int64) bool { return id == 99 })

	_, err := f.svc.Attack(ctx, Request{AttackerID: 1, TargetID: 99, Amount: 50, Now: t0})
	require.ErrorIs(t, err, ErrProtectedTarget)
	assert.Equal(t, int64(ProtectedFine), f.points(t, 1))
	assert.Equal(t, int64(5000), f.points(t, 99))
}

func TestService_DodgeConsumedOnce(t *testing.T) {
	f := newFixture(t, &rng.Scripted{Floats: []float64{0, 0}})
	ctx := context.Background()
	dbtest.SeedUser(t, f.pool, 1, 1000)
	dbtest.SeedUser(t, f.pool, 2, 1000)

	_, err := f.svc.Dodge(ctx, 2, t0)
	require.NoError(t, err)
	assert.Equal(t, int64(950), f.points(t, 2))

	res, err := f.svc.Attack(ctx, Request{AttackerID: 1, TargetID: 2, Amount: 100, Now: t0.Add(time.Second)})
	require.NoError(t, err)
	assert.True(t, res.Outcome.Dodged)
	assert.Equal(t, int64(800), f.points(t, 1))
	assert.Equal(t, int64(1140), f.points(t, 2))

	// dodge is gone, the forced roll now lands
	res, err = f.svc.Attack(ctx, Request{AttackerID: 1, TargetID: 2, Amount: 100, Now: t0.Add(AttackCooldown + time.Second)})
	require.NoError(t, err)
	assert.True(t, res.Outcome.Success)
	assert.False(t, res.Outcome.Dodged)
}

func TestService_DodgeCooldownAndLockout(t *testing.T) {
	f := newFixture(t, rng.Seeded(1))
	ctx := context.Background()
	dbtest.SeedUser(t, f.pool, 1, 1000)
	dbtest.SeedUser(t, f.pool, 2, 1000)

	_, err := f.svc.Dodge(ctx, 2, t0)
	require.NoError(t, err)

	_, err = f.svc.Dodge(ctx, 2, t0.Add(time.Minute))
	assert.ErrorIs(t, err, ErrEffectActive)

	// expired but still cooling down (persisted)
	_, err = f.svc.Dodge(ctx, 2, t0.Add(DodgeDuration+time.Minute))
	assert.ErrorIs(t, err, effect.ErrOnCooldown)

	_, err = f.svc.Attack(ctx, Request{AttackerID: 1, TargetID: 2, Amount: 50, Now: t0.Add(time.Hour)})
	require.NoError(t, err)
	_, err = f.svc.Dodge(ctx, 1, t0.Add(time.Hour+time.Minute))
	assert.ErrorIs(t, err, effect.ErrOnCooldown)
}

func TestService_ShieldReducesSteal(t *testing.T) {
	f := newFixture(t, &rng.Scripted{Floats: []float64{0}})
	ctx := context.Background()
	dbtest.SeedUser(t, f.pool, 1, 1000)
	dbtest.SeedUser(t, f.pool, 2, 1500)

	_, err := f.svc.Shield(ctx, 2, t0)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), f.points(t, 2))

	res, err := f.svc.Attack(ctx, Request{AttackerID: 1, TargetID: 2, Amount: 100, Now: t0.Add(time.Minute)})
	require.NoError(t, err)
	assert.True(t, res.Outcome.Shielded)
	assert.Equal(t, int64(925), f.points(t, 2))
	assert.Equal(t, int64(1072), f.points(t, 1))
}

func TestService_CounterForcesLowChance(t *testing.T) {
	// 0.3 would win at base chance but loses against a counter
	f := newFixture(t, &rng.Scripted{Floats: []float64{0.3}})
	ctx := context.Background()
	dbtest.SeedUser(t, f.pool, 1, 1000)
	dbtest.SeedUser(t, f.pool, 2, 2000)

	_, err := f.svc.Counter(ctx, 2, 2, t0)
	assert.ErrorIs(t, err, ErrSelfTarget)

	_, err = f.svc.Counter(ctx, 2, 1, t0)
	require.NoError(t, err)

	res, err := f.svc.Attack(ctx, Request{AttackerID: 1, TargetID: 2, Amount: 100, Now: t0.Add(time.Minute)})
	require.NoError(t, err)
	assert.True(t, res.Outcome.Countered)
	assert.False(t, res.Outcome.Success)
	assert.InDelta(t, CounterChance, res.Outcome.Chance, 1e-9)
}

func TestService_GainCap(t *testing.T) {
	f := newFixture(t, rng.Seeded(1))
	ctx := context.Background()
	dbtest.SeedUser(t, f.pool, 1, 1000)
	dbtest.SeedUser(t, f.pool, 2, 1000)
	_, err := f.pool.Exec(ctx, `UPDATE users SET cumulative_attack_gains = $1 WHERE user_id = 1`, DailyGainCap)
	require.NoError(t, err)

	_, err = f.svc.Attack(ctx, Request{AttackerID: 1, TargetID: 2, Amount: 100, Now: t0})
	assert.ErrorIs(t, err, ErrGainCap)
	assert.Equal(t, int64(1000), f.points(t, 1))
}

func TestService_Ceasefire(t *testing.T) {
	f := newFixture(t, rng.Seeded(1))
	ctx := context.Background()
	dbtest.SeedUser(t, f.pool, 1, 1000)
	dbtest.SeedUser(t, f.pool, 2, 1000)

	require.ErrorIs(t, f.svc.Ceasefire("c1", 0, t0), ErrInvalidDuration)
	require.NoError(t, f.svc.Ceasefire("c1", 10, t0))

	_, err := f.svc.Attack(ctx, Request{AttackerID: 1, TargetID: 2, Amount: 50, ChannelID: "c1", Now: t0.Add(time.Minute)})
	assert.ErrorIs(t, err, ErrCeasefire)

	_, err = f.svc.Attack(ctx, Request{AttackerID: 1, TargetID: 2, Amount: 50, ChannelID: "c2", Now: t0.Add(time.Minute)})
	assert.NoError(t, err)
}

func TestService_MultiAttack(t *testing.T) {
	f := newFixture(t, &rng.Scripted{Floats: []float64{0, 0.999, 0}})
	ctx := context.Background()
	dbtest.SeedUser(t, f.pool, 1, 1000)
	dbtest.SeedUser(t, f.pool, 2, 1000)

	now := t0
	var waits []time.Duration
	f.svc.SetClock(func() time.Time { return now }, func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		now = now.Add(d)
		return nil
	})

	hits := 0
	sum, err := f.svc.MultiAttack(ctx, MultiRequest{
		Request: Request{AttackerID: 1, TargetID: 2, Amount: 100, Now: t0},
		Times:   3,
		Fast:    true,
	}, func(int, *Result) { hits++ })
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Attempted)
	assert.Equal(t, 2, sum.Successful)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, int64(190), sum.Gained)
	assert.Equal(t, int64(100), sum.Lost)
	assert.Equal(t, int64(90), sum.Net())
	assert.Equal(t, 3, hits)
	assert.Equal(t, []time.Duration{MultiFastDelay, MultiFastDelay}, waits)
	assert.Equal(t, int64(1090), f.points(t, 1))

	_, err = f.svc.MultiAttack(ctx, MultiRequest{
		Request: Request{AttackerID: 1, TargetID: 2, Amount: 100, Now: t0.Add(time.Minute)},
		Times:   2,
	}, nil)
	assert.ErrorIs(t, err, effect.ErrOnCooldown)
}

func TestService_MultiAttackCancelled(t *testing.T) {
	f := newFixture(t, rng.Seeded(1))
	dbtest.SeedUser(t, f.pool, 1, 1000)
	dbtest.SeedUser(t, f.pool, 2, 1000)

	ctx, cancel := context.WithCancel(context.Background())
	f.svc.SetClock(func() time.Time { return t0 }, func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	})

	sum, err := f.svc.MultiAttack(ctx, MultiRequest{
		Request: Request{AttackerID: 1, TargetID: 2, Amount: 50, Now: t0},
		Times:   5,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Attempted)
	assert.ErrorIs(t, sum.StoppedBy, context.Canceled)
}

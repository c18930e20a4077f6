package trap

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
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/repository"
)

const penaltyRole = "penalty"

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*Engine, *db.Pool) {
	pool := dbtest.Setup(t)
	e := NewEngine(pool,
		repository.NewUserRepository(pool),
		repository.NewSettingsRepository(pool),
		repository.NewRoleRepository(pool),
		lock.NewUserLock(),
		penaltyRole,
	)
	return e, pool
}

func points(t *testing.T, pool *db.Pool, id int64) int64 {
	p, err := repository.NewUserRepository(pool).Points(context.Background(), id)
	require.NoError(t, err)
	return p
}

// arm places a trap directly, bypassing charges.
func arm(e *Engine, channelID, trigger string, creator, cost int64, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.traps[channelID] = append(e.traps[channelID], &Trap{
		ChannelID: channelID, Trigger: trigger, CreatorID: creator, Cost: cost, CreatedAt: at,
	})
}

func TestCountAndPrune(t *testing.T) {
	e := NewEngine(nil, nil, nil, nil, lock.NewUserLock(), "")
	arm(e, "c1", "hello world", 1, 40, t0)
	arm(e, "c1", "second one", 1, 40, t0.Add(10*time.Minute))
	arm(e, "c2", "other channel", 2, 40, t0)

	assert.Equal(t, 2, e.Count("c1", t0.Add(time.Minute)))
	assert.Equal(t, 1, e.Count("c1", t0.Add(TTL)))

	removed := e.Prune(t0.Add(TTL))
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, e.Count("c1", t0.Add(TTL)))
	assert.Equal(t, 0, e.Count("c2", t0.Add(TTL)))
}

func TestOnMessage_NoMatchNeedsNoLedger(t *testing.T) {
	e := NewEngine(nil, nil, nil, nil, lock.NewUserLock(), "")
	arm(e, "c1", "secret phrase", 1, 40, t0)

	got, err := e.OnMessage(context.Background(), 2, "c1", "nothing to see", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Nil(t, got)

	// the creator never triggers their own trap
	got, err = e.OnMessage(context.Background(), 1, "c1", "my SECRET PHRASE", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = e.OnMessage(context.Background(), 2, "empty", "secret phrase", t0)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSet_Validation(t *testing.T) {
	e := NewEngine(nil, nil, nil, nil, lock.NewUserLock(), "")
	ctx := context.Background()

	_, err := e.Set(ctx, 1, "c1", "abcd", 40, t0)
	assert.ErrorIs(t, err, ErrInvalidTrigger)

	_, err = e.Set(ctx, 1, "c1", "abcde", 5, t0)
	assert.ErrorIs(t, err, ErrInvalidCost)

	_, err = e.Set(ctx, 1, "c1", "abcde", 501, t0)
	assert.ErrorIs(t, err, ErrInvalidCost)
}

func TestSet_ChargesOnceAndCooldown(t *testing.T) {
	e, pool := newTestEngine(t)
	ctx := context.Background()
	dbtest.SeedUser(t, pool, 1, 1000)
	dbtest.SeedUser(t, pool, 2, 1000)

	res, err := e.Set(ctx, 1, "c1", "Banana Split", 40, t0)
	require.NoError(t, err)
	assert.False(t, res.Rearmed)
	assert.Equal(t, int64(960), points(t, pool, 1))

	_, err = e.Set(ctx, 1, "c1", "other words", 40, t0.Add(time.Minute))
	assert.ErrorIs(t, err, effect.ErrOnCooldown)

	// a different creator re-arming the same trigger is not charged
	res, err = e.Set(ctx, 2, "c1", "banana split", 40, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, res.Rearmed)
	assert.Equal(t, int64(40), res.Cost)
	assert.Equal(t, int64(1000), points(t, pool, 2))
	assert.Equal(t, 1, e.Count("c1", t0.Add(time.Minute)))

	// re-arming starts the cooldown just like a fresh trap
	_, err = e.Set(ctx, 2, "c1", "guessing again", 40, t0.Add(2*time.Minute))
	assert.ErrorIs(t, err, effect.ErrOnCooldown)
}

func TestOnMessage_Transfer(t *testing.T) {
	e, pool := newTestEngine(t)
	ctx := context.Background()
	dbtest.SeedUser(t, pool, 1, 0)
	dbtest.SeedUser(t, pool, 2, 200)
	arm(e, "c1", "boom time", 1, 40, t0)

	got, err := e.OnMessage(ctx, 2, "c1", "is it BOOM TIME yet?", t0.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Penalty)
	assert.Equal(t, int64(200), got.Amount)

	assert.Equal(t, int64(0), points(t, pool, 2))
	assert.Equal(t, int64(200), points(t, pool, 1))
	assert.Equal(t, 0, e.Count("c1", t0.Add(time.Minute)))

	u, err := repository.NewUserRepository(pool).GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(200), u.Profit.Trap)
}

func TestOnMessage_PenaltyBelowFiveTimesCost(t *testing.T) {
	e, pool := newTestEngine(t)
	ctx := context.Background()
	dbtest.SeedUser(t, pool, 1, 0)
	dbtest.SeedUser(t, pool, 2, 199)
	arm(e, "c1", "boom time", 1, 40, t0)

	got, err := e.OnMessage(ctx, 2, "c1", "boom time", t0.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Penalty)
	assert.Zero(t, got.Amount)
	assert.Equal(t, int64(199), points(t, pool, 2))
	assert.Equal(t, int64(0), points(t, pool, 1))

	expired, err := repository.NewRoleRepository(pool).ListExpired(ctx, t0.Add(PenaltyDuration+time.Hour))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, penaltyRole, expired[0].RoleID)
	assert.Equal(t, 0, e.Count("c1", t0.Add(time.Minute)))
}

func TestOnMessage_ExpiredTrapPaysNothing(t *testing.T) {
	e, pool := newTestEngine(t)
	dbtest.SeedUser(t, pool, 2, 1000)
	arm(e, "c1", "boom time", 1, 40, t0)

	got, err := e.OnMessage(context.Background(), 2, "c1", "boom time", t0.Add(TTL))
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, int64(1000), points(t, pool, 2))
}

func TestCounter(t *testing.T) {
	e, pool := newTestEngine(t)
	ctx := context.Background()
	dbtest.SeedUser(t, pool, 1, 100)
	dbtest.SeedUser(t, pool, 3, 1000)
	arm(e, "c1", "Exact Words", 1, 40, t0)

	// case-sensitive miss costs the fee
	_, err := e.Counter(ctx, 3, "c1", "exact words", 50, t0.Add(time.Minute))
	require.ErrorIs(t, err, ErrNoTrap)
	assert.Equal(t, int64(950), points(t, pool, 3))

	// own trap is refunded
	_, err = e.Counter(ctx, 1, "c1", "Exact Words", 50, t0.Add(time.Minute))
	require.ErrorIs(t, err, ErrOwnTrap)
	assert.Equal(t, int64(100), points(t, pool, 1))

	res, err := e.Counter(ctx, 3, "c1", "Exact Words", 50, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(450), res.Gained)
	assert.Equal(t, int64(50), res.Tax)
	assert.Equal(t, int64(950-50+450), points(t, pool, 3))
	assert.Equal(t, int64(100-500), points(t, pool, 1))
	assert.Equal(t, 0, e.Count("c1", t0.Add(time.Minute)))

	tax, err := repository.NewSettingsRepository(pool).TaxPool(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(50), tax)
}

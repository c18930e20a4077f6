package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/model"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/clock"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/db"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/dbtest"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/rng"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/repository"
)

// 19:00 in UTC+7
var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type env struct {
	pool     *db.Pool
	users    *repository.UserRepository
	settings *repository.SettingsRepository
	roles    *repository.RoleRepository
}

func newEnv(t *testing.T) *env {
	pool := dbtest.Setup(t)
	return &env{
		pool:     pool,
		users:    repository.NewUserRepository(pool),
		settings: repository.NewSettingsRepository(pool),
		roles:    repository.NewRoleRepository(pool),
	}
}

func (e *env) user(t *testing.T, id int64) *model.User {
	u, err := e.users.GetByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func (e *env) tax(t *testing.T) int64 {
	v, err := e.settings.TaxPool(context.Background())
	require.NoError(t, err)
	return v
}

func TestAccountService_Earn(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := NewAccountService(e.pool, e.users, &rng.Scripted{Floats: []float64{0.1}})

	got, err := svc.Earn(ctx, 1, false, t0)
	require.NoError(t, err)
	assert.True(t, got.Welcome)
	assert.Equal(t, int64(WelcomeBonus), got.Amount)

	got, err = svc.Earn(ctx, 1, false, t0.Add(5*time.Second))
	require.NoError(t, err)
	assert.Nil(t, got, "inside cooldown")

	// balance 1000 rolls no luck; booster roll 0.1 hits
	got, err = svc.Earn(ctx, 1, true, t0.Add(20*time.Second))
	require.NoError(t, err)
	assert.True(t, got.Booster)
	assert.Equal(t, int64(150), got.Amount)
	assert.Equal(t, int64(100), got.DailyEarned)
	assert.Equal(t, int64(1150), e.user(t, 1).Points)

	next := t0.Add(24 * time.Hour)
	got, err = svc.Earn(ctx, 1, false, next)
	require.NoError(t, err)
	assert.True(t, got.FirstOfDay)
	assert.Equal(t, int64(WelcomeBonus), got.Amount)
	assert.Equal(t, int64(WelcomeBonus), got.DailyEarned)

	// rich now; the exhausted script rolls 0 and the reward is lost
	got, err = svc.Earn(ctx, 1, false, next.Add(20*time.Second))
	require.NoError(t, err)
	assert.Zero(t, got.Amount)
	assert.Equal(t, int64(1100), got.DailyEarned)
	assert.Equal(t, int64(2150), e.user(t, 1).Points)
}

func TestAccountService_EarnDailyCap(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := NewAccountService(e.pool, e.users, &rng.Scripted{})

	dbtest.SeedUser(t, e.pool, 2, 1000)
	require.NoError(t, e.users.RecordEarning(ctx, 2, 0, DailyEarnCap-50, clock.DateOnly(t0), t0))

	got, err := svc.Earn(ctx, 2, false, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.Amount)
	assert.Equal(t, int64(DailyEarnCap), got.DailyEarned)

	got, err = svc.Earn(ctx, 2, false, t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, int64(1050), e.user(t, 2).Points)
}

func TestAccountService_PoorCrit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := NewAccountService(e.pool, e.users, &rng.Scripted{Floats: []float64{0.1}})

	dbtest.SeedUser(t, e.pool, 3, 100)
	require.NoError(t, e.users.RecordEarning(ctx, 3, 0, 0, clock.DateOnly(t0), t0))

	got, err := svc.Earn(ctx, 3, false, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, got.Crit)
	assert.Equal(t, int64(200), got.Amount)
	assert.Equal(t, int64(100), got.DailyEarned)
}

func TestAccountService_Welcome(t *testing.T) {
	e := newEnv(t)
	svc := NewAccountService(e.pool, e.users, rng.Seeded(1))

	created, err := svc.Welcome(context.Background(), 4)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.Welcome(context.Background(), 4)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(WelcomeBonus), e.user(t, 4).Points)
}

func TestAccountService_Stash(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := NewAccountService(e.pool, e.users, rng.Seeded(1))
	dbtest.SeedUser(t, e.pool, 1, 12000)

	_, err := svc.Deposit(ctx, 1, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = svc.Deposit(ctx, 1, StashLimit+1)
	assert.ErrorIs(t, err, ErrStashFull)

	u, err := svc.Deposit(ctx, 1, 6000)
	require.NoError(t, err)
	assert.Equal(t, int64(6000), u.StashedPoints)
	assert.Equal(t, int64(6000), u.Points)

	_, err = svc.Deposit(ctx, 1, 5000)
	assert.ErrorIs(t, err, ErrStashFull)
	_, err = svc.Deposit(ctx, 2, 10)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = svc.Withdraw(ctx, 1, 7000)
	assert.ErrorIs(t, err, ErrStashEmpty)

	u, err = svc.Withdraw(ctx, 1, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), u.StashedPoints)
	assert.Equal(t, int64(7000), u.Points)
}

func TestAccountService_GrantRevoke(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := NewAccountService(e.pool, e.users, rng.Seeded(1))

	balance, err := svc.Grant(ctx, 9, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance)

	removed, balance, err := svc.Revoke(ctx, 9, 800)
	require.NoError(t, err)
	assert.Equal(t, int64(500), removed)
	assert.Zero(t, balance)

	_, _, err = svc.Revoke(ctx, 10, 1)
	assert.ErrorIs(t, err, ErrUserNotFound)

	u, err := svc.Account(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, u.Points)
}

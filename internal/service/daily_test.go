package service

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/model"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/dbtest"
)

func TestTaxRate(t *testing.T) {
	cases := []struct {
		wealth int64
		rate   int64
	}{
		{-50, 0}, {0, 0}, {499, 0}, {500, 5}, {999, 5}, {1000, 10},
		{2499, 10}, {2500, 15}, {4999, 15}, {5000, 20}, {1000000, 20},
	}
	for _, c := range cases {
		assert.Equal(t, c.rate, TaxRate(c.wealth), "wealth %d", c.wealth)
	}
	assert.Equal(t, int64(480), WealthTax(3200))
}

// TestWealthTaxBoundedProperty checks the tax never exceeds a fifth of wealth.
func TestWealthTaxBoundedProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		w := rapid.Int64Range(0, 1<<40).Draw(t, "wealth")
		tax := WealthTax(w)
		if tax < 0 || tax > w/5 {
			t.Fatalf("tax %d on wealth %d", tax, w)
		}
	})
}

func TestDailyService_Run(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := NewDailyService(e.pool, e.users, e.settings)

	dbtest.SeedUser(t, e.pool, 1, 400)
	dbtest.SeedUser(t, e.pool, 2, 3000)
	_, err := e.users.Stash(ctx, 2, 1000, StashLimit)
	require.NoError(t, err)
	_, err = e.users.Apply(ctx, 2, model.LedgerDelta{CumulativeAttackGains: 700, CumulativeDefenseLosses: 50})
	require.NoError(t, err)

	rep, err := svc.Run(ctx, t0)
	require.NoError(t, err)
	assert.False(t, rep.AlreadyRan)
	assert.Equal(t, int64(1), rep.Reset)
	assert.Equal(t, int64(200), rep.Interest)
	assert.Equal(t, 1, rep.Taxed)
	// 2000 + 200 interest + 1000 stash = 3200 at 15%
	assert.Equal(t, int64(480), rep.TaxCollected)

	rich := e.user(t, 2)
	assert.Equal(t, int64(1720), rich.Points)
	assert.Zero(t, rich.CumulativeAttackGains)
	assert.Zero(t, rich.CumulativeDefenseLosses)
	assert.Equal(t, int64(400), e.user(t, 1).Points)
	assert.NotNil(t, e.user(t, 1).LastRichTaxDate, "rate zero users are still marked")
	assert.Equal(t, int64(480), e.tax(t))

	rep, err = svc.Run(ctx, t0.Add(3*time.Hour))
	require.NoError(t, err)
	assert.True(t, rep.AlreadyRan)
	assert.Equal(t, int64(1720), e.user(t, 2).Points)
	assert.Equal(t, int64(480), e.tax(t))

	// 1720 + 200 + 1000 = 2920 at 15%
	_, err = svc.Run(ctx, t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1720+200-438), e.user(t, 2).Points)
	assert.Equal(t, int64(480+438), e.tax(t))
}

func TestDailyService_RunIsolatesFailingUsers(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := NewDailyService(e.pool, e.users, e.settings)

	dbtest.SeedUser(t, e.pool, 1, 3000)
	dbtest.SeedUser(t, e.pool, 2, 2000)
	dbtest.SeedUser(t, e.pool, 3, 1000)
	_, err := e.users.Stash(ctx, 2, 1000, StashLimit)
	require.NoError(t, err)
	// paying interest pushes this row past bigint
	require.NoError(t, e.users.SetPoints(ctx, 2, math.MaxInt64-50))

	rep, err := svc.Run(ctx, t0)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 2, rep.Taxed)
	assert.Equal(t, int64(450+100), rep.TaxCollected)
	assert.Equal(t, int64(2550), e.user(t, 1).Points)
	assert.Equal(t, int64(900), e.user(t, 3).Points)
	assert.Equal(t, int64(550), e.tax(t))

	stuck := e.user(t, 2)
	assert.Equal(t, int64(math.MaxInt64-50), stuck.Points)
	assert.Nil(t, stuck.LastRichTaxDate)

	// 0 + 200 interest + 1000 stash = 1200 at 10%
	require.NoError(t, e.users.SetPoints(ctx, 2, 0))
	rep, err = svc.Run(ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, rep.AlreadyRan)
	assert.Zero(t, rep.Failed)
	assert.Equal(t, 1, rep.Taxed)
	assert.Equal(t, int64(80), e.user(t, 2).Points)
	assert.Equal(t, int64(2550), e.user(t, 1).Points)
	assert.Equal(t, int64(550+120), e.tax(t))
}

func TestDailyService_RunInterest(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := NewDailyService(e.pool, e.users, e.settings)

	dbtest.SeedUser(t, e.pool, 1, 1500)
	_, err := e.users.Stash(ctx, 1, 1000, StashLimit)
	require.NoError(t, err)

	paid, err := svc.RunInterest(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(100), paid)
	assert.Equal(t, int64(600), e.user(t, 1).Points)
}

package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/dbtest"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/rng"
)

func TestRollClaim(t *testing.T) {
	cases := []struct {
		wealth  int64
		roll    float64
		outcome ClaimOutcome
		amount  int64
	}{
		{0, 0.74, ClaimDouble, 200},
		{999, 0.75, ClaimNormal, 100},
		{1000, 0.19, ClaimDouble, 200},
		{2999, 0.5, ClaimNormal, 100},
		{3000, 0.01, ClaimDouble, 200},
		{3000, 0.05, ClaimNormal, 100},
		{5000, 0.3, ClaimHalf, 50},
		{5000, 0.5, ClaimNothing, 0},
	}
	for _, c := range cases {
		outcome, amount := rollClaim(&rng.Scripted{Floats: []float64{c.roll}}, c.wealth, 100)
		assert.Equal(t, c.outcome, outcome, "wealth %d roll %v", c.wealth, c.roll)
		assert.Equal(t, c.amount, amount, "wealth %d roll %v", c.wealth, c.roll)
	}
}

func TestAirdropService_Claim(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := NewAirdropService(e.pool, e.users, e.settings, &rng.Scripted{Floats: []float64{0.5, 0.9}})
	dbtest.SeedUser(t, e.pool, 2, 5000)

	assert.ErrorIs(t, svc.Start("m1", 99, 0, 5), ErrInvalidAirdrop)
	assert.ErrorIs(t, svc.Start("m1", 99, 100, AirdropMaxUsers+1), ErrInvalidAirdrop)
	require.NoError(t, svc.Start("m1", 99, 100, 2))
	assert.True(t, svc.Open("m1"))

	c, err := svc.Claim(ctx, "other", 1)
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = svc.Claim(ctx, "m1", 1)
	require.NoError(t, err)
	assert.Equal(t, ClaimDouble, c.Outcome)
	assert.Equal(t, int64(200), c.Balance)
	assert.False(t, c.Finished)

	_, err = svc.Claim(ctx, "m1", 1)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)

	c, err = svc.Claim(ctx, "m1", 2)
	require.NoError(t, err)
	assert.Equal(t, ClaimNothing, c.Outcome)
	assert.True(t, c.Finished)
	assert.False(t, svc.Open("m1"))

	c, err = svc.Claim(ctx, "m1", 3)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestAirdropService_DistributeTax(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := NewAirdropService(e.pool, e.users, e.settings, rng.Seeded(1))

	_, err := svc.DistributeTax(ctx, 100)
	assert.ErrorIs(t, err, ErrEmptyTaxPool)
	_, err = svc.DistributeTax(ctx, 0)
	assert.ErrorIs(t, err, ErrInvalidAirdrop)

	dbtest.SeedUser(t, e.pool, 1, 200)
	dbtest.SeedUser(t, e.pool, 2, 100)
	dbtest.SeedUser(t, e.pool, 3, 0)
	require.NoError(t, e.settings.AddTax(ctx, 101))

	d, err := svc.DistributeTax(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Recipients)
	assert.Equal(t, int64(50), d.PerUser)
	assert.Equal(t, int64(100), d.Amount)
	assert.Equal(t, int64(1), d.PoolLeft)
	assert.Equal(t, int64(250), e.user(t, 1).Points)
	assert.Zero(t, e.user(t, 3).Points)

	_, err = svc.DistributeTax(ctx, 100)
	assert.ErrorIs(t, err, ErrAirdropTooSmall)
}

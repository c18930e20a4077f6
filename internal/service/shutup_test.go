package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/dbtest"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/rng"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/repository"
)

func TestShutupService(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := NewShutupService(e.pool, e.users, e.settings, &rng.Scripted{Ints: []int{2}})
	dbtest.SeedUser(t, e.pool, 1, 1001)
	dbtest.SeedUser(t, e.pool, 2, 200)

	for _, c := range []struct {
		req  ShutupRequest
		want error
	}{
		{ShutupRequest{AttackerID: 1, TargetID: 1}, ErrSelfTransfer},
		{ShutupRequest{AttackerID: 1, TargetID: 2, TargetIsBot: true}, ErrTargetIsBot},
		{ShutupRequest{AttackerID: 1, TargetID: 2, TargetIsMod: true}, ErrModerator},
		{ShutupRequest{AttackerID: 1, TargetID: 2, AttackerIsMod: true}, ErrModerator},
		{ShutupRequest{AttackerID: 2, TargetID: 1}, ErrNotRicher},
	} {
		_, err := svc.Shutup(ctx, c.req)
		assert.ErrorIs(t, err, c.want)
	}

	res, err := svc.Shutup(ctx, ShutupRequest{AttackerID: 1, TargetID: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(500), res.Lost)
	assert.Equal(t, int64(250), res.ToTax)
	assert.Equal(t, int64(250), res.ToTarget)
	assert.Equal(t, 3*time.Minute, res.Timeout)
	assert.Equal(t, int64(501), res.Balance)

	assert.Equal(t, int64(450), e.user(t, 2).Points)
	assert.Equal(t, int64(250), e.tax(t))
}

func TestShutupService_NothingToSpend(t *testing.T) {
	e := newEnv(t)
	svc := NewShutupService(e.pool, e.users, e.settings, rng.Seeded(1))
	dbtest.SeedUser(t, e.pool, 1, 1)

	_, err := svc.Shutup(context.Background(), ShutupRequest{AttackerID: 1, TargetID: 2})
	assert.ErrorIs(t, err, ErrNothingToSpend)
}

func TestRankingService(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := NewRankingService(e.users, e.roles)
	transfers := NewTransferService(e.pool, e.users, e.settings)

	for id := int64(1); id <= 12; id++ {
		dbtest.SeedUser(t, e.pool, id, id*100)
	}
	_, err := transfers.Give(ctx, 12, 1, 100)
	require.NoError(t, err)

	top, err := svc.TopUsers(ctx, func(id int64) bool { return id == 11 })
	require.NoError(t, err)
	require.Len(t, top, LeaderboardSize)
	assert.Equal(t, int64(12), top[0].UserID)
	for _, entry := range top {
		assert.NotEqual(t, int64(11), entry.UserID)
	}

	board, err := svc.Transfers(ctx)
	require.NoError(t, err)
	require.Len(t, board.Senders, 1)
	assert.Equal(t, int64(12), board.Senders[0].UserID)
	assert.Equal(t, int64(1), board.Receivers[0].UserID)

	p, err := svc.Profile(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(200), p.User.Points)
	assert.Empty(t, p.Roles)

	_, err = svc.Profile(ctx, 99)
	assert.True(t, errors.Is(err, repository.ErrUserNotFound))

	assert.Equal(t, 50.0, WinRate(1, 2))
	assert.Zero(t, WinRate(0, 0))
}

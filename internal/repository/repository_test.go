package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/model"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/dbtest"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestUserRepository_CreateAndPoints(t *testing.T) {
	pool := dbtest.Setup(t)
	ctx := context.Background()
	repo := NewUserRepository(pool)

	created, err := repo.Create(ctx, 1, 100)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Create(ctx, 1, 999)
	require.NoError(t, err)
	assert.False(t, created, "second create must not reset the balance")

	points, err := repo.Points(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(100), points)

	_, err = repo.GetByID(ctx, 42)
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = repo.AddPoints(ctx, 42, 5)
	assert.ErrorIs(t, err, ErrUserNotFound)

	u, err := repo.GetOrCreate(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(0), u.Points)
}

func TestUserRepository_Debit(t *testing.T) {
	pool := dbtest.Setup(t)
	ctx := context.Background()
	repo := NewUserRepository(pool)
	dbtest.SeedUser(t, pool, 1, 50)

	_, err := repo.Debit(ctx, 1, 51)
	assert.ErrorIs(t, err, ErrInsufficientPoints)

	left, err := repo.Debit(ctx, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(0), left)

	_, err = repo.Debit(ctx, 2, 1)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepository_ApplyLedgerDelta(t *testing.T) {
	pool := dbtest.Setup(t)
	ctx := context.Background()
	repo := NewUserRepository(pool)
	dbtest.SeedUser(t, pool, 1, 1000)

	d := model.LedgerDelta{
		Points:                -200,
		TotalSent:             200,
		CumulativeAttackGains: 30,
		Profit:                model.Profit{Attack: -200, Trap: 15},
		Stats:                 model.AttackStats{AttemptsHigh: 1},
	}
	points, err := repo.Apply(ctx, 1, d)
	require.NoError(t, err)
	assert.Equal(t, int64(800), points)

	u, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(200), u.TotalSent)
	assert.Equal(t, int64(30), u.CumulativeAttackGains)
	assert.Equal(t, int64(-200), u.Profit.Attack)
	assert.Equal(t, int64(15), u.Profit.Trap)
	assert.Equal(t, int64(1), u.Stats.AttemptsHigh)
}

// TestUserRepository_StashProperty checks that deposits and withdrawals never
// create or destroy points and keep the stash inside its bounds.
func TestUserRepository_StashProperty(t *testing.T) {
	pool := dbtest.Setup(t)
	ctx := context.Background()
	repo := NewUserRepository(pool)
	const limit = 1000

	var next int64
	rapid.Check(t, func(rt *rapid.T) {
		next++
		userID := next
		start := rapid.Int64Range(0, 3000).Draw(rt, "start")
		dbtest.SeedUser(t, pool, userID, start)

		moves := rapid.SliceOfN(rapid.Int64Range(-1500, 1500), 1, 10).Draw(rt, "moves")
		for _, amount := range moves {
			before, err := repo.GetByID(ctx, userID)
			if err != nil {
				rt.Fatal(err)
			}
			after, err := repo.Stash(ctx, userID, amount, limit)
			valid := before.Points-amount >= 0 && before.StashedPoints+amount >= 0 && before.StashedPoints+amount <= limit
			if valid != (err == nil) {
				rt.Fatalf("amount=%d before=%d/%d err=%v", amount, before.Points, before.StashedPoints, err)
			}
			if err != nil {
				continue
			}
			if after.Points+after.StashedPoints != start {
				rt.Fatalf("total changed: %d+%d != %d", after.Points, after.StashedPoints, start)
			}
		}
	})
}

func TestUserRepository_DailyJobs(t *testing.T) {
	pool := dbtest.Setup(t)
	ctx := context.Background()
	repo := NewUserRepository(pool)
	dbtest.SeedUser(t, pool, 1, 0)
	dbtest.SeedUser(t, pool, 2, 0)

	_, err := pool.Exec(ctx, `UPDATE users SET stashed_points = 1000, cumulative_attack_gains = 5 WHERE user_id = 1`)
	require.NoError(t, err)

	paid, err := repo.PayStashInterest(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), paid)

	reset, err := repo.ResetCumulative(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reset)

	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	ok, err := repo.ChargeDailyTax(ctx, 2, 10, day)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.ChargeDailyTax(ctx, 2, 10, day)
	require.NoError(t, err)
	assert.False(t, ok, "a user is taxed at most once per day")

	points, err := repo.Points(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(-10), points)
}

func TestUserRepository_Leaderboards(t *testing.T) {
	pool := dbtest.Setup(t)
	ctx := context.Background()
	repo := NewUserRepository(pool)
	dbtest.SeedUser(t, pool, 1, 300)
	dbtest.SeedUser(t, pool, 2, 500)
	dbtest.SeedUser(t, pool, 3, 500)
	_, err := repo.Apply(ctx, 3, model.LedgerDelta{TotalSent: 40})
	require.NoError(t, err)

	top, err := repo.TopByPoints(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []model.LeaderboardEntry{{UserID: 2, Value: 500}, {UserID: 3, Value: 500}}, top)

	senders, err := repo.TopSenders(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []model.LeaderboardEntry{{UserID: 3, Value: 40}}, senders)

	receivers, err := repo.TopReceivers(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, receivers)
}

func TestSettingsRepository(t *testing.T) {
	pool := dbtest.Setup(t)
	ctx := context.Background()
	repo := NewSettingsRepository(pool)

	v, err := repo.GetInt(ctx, "missing", 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	v, err = repo.AddInt(ctx, "counter", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)
	v, err = repo.AddInt(ctx, "counter", -2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	require.NoError(t, repo.AddTax(ctx, 25))
	require.NoError(t, repo.AddTax(ctx, -5))
	pool25, err := repo.TaxPool(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(25), pool25)

	lottery, err := repo.GetInt(ctx, SettingLotteryPool, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), lottery, "migration seeds the lottery pool")
}

func TestRoleRepository(t *testing.T) {
	pool := dbtest.Setup(t)
	ctx := context.Background()
	repo := NewRoleRepository(pool)

	n, err := repo.SeedShop(ctx, map[string]int64{"a": 100, "b": 200})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = repo.SeedShop(ctx, map[string]int64{"c": 300})
	require.NoError(t, err)
	assert.Zero(t, n, "seeding only fills an empty shop")

	price, err := repo.ShopPrice(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(200), price)

	require.NoError(t, repo.GrantTemp(ctx, 1, "a", t0))
	require.NoError(t, repo.GrantTemp(ctx, 1, "a", t0.Add(time.Hour)))
	require.NoError(t, repo.GrantTemp(ctx, 2, "b", t0.Add(-time.Minute)))

	expired, err := repo.ListExpired(ctx, t0)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, int64(2), expired[0].UserID)

	mine, err := repo.ListForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.True(t, mine[0].ExpiresAt.Equal(t0.Add(time.Hour)), "regrant extends the expiry")

	require.NoError(t, repo.RevokeTemp(ctx, 2, "b"))
	expired, err = repo.ListExpired(ctx, t0)
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestLotteryRepository(t *testing.T) {
	pool := dbtest.Setup(t)
	ctx := context.Background()
	repo := NewLotteryRepository(pool)

	require.NoError(t, repo.Insert(ctx, 1, []int{7, 42}))
	require.NoError(t, repo.Insert(ctx, 2, []int{7}))

	n, err := repo.CountForUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	numbers, err := repo.NumbersForUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{7, 42}, numbers)

	all, err := repo.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, repo.Clear(ctx))
	all, err = repo.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestPredictionRepository(t *testing.T) {
	pool := dbtest.Setup(t)
	ctx := context.Background()
	repo := NewPredictionRepository(pool)

	p := &model.Prediction{
		Title:     "Who wins?",
		CreatorID: 1,
		Cost:      100,
		Status:    model.PredictionBetting,
		CreatedAt: t0,
		EndsAt:    t0.Add(5 * time.Minute),
		Choices:   []model.PredictionChoice{{Number: 1, Text: "Red"}, {Number: 2, Text: "Blue"}},
	}
	require.NoError(t, repo.Create(ctx, p))
	require.NotZero(t, p.ID)

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Who wins?", got.Title)
	assert.Len(t, got.Choices, 2)

	total, err := repo.AddBet(ctx, p.ID, 2, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(50), total)
	total, err = repo.AddBet(ctx, p.ID, 2, 1, 25)
	require.NoError(t, err)
	assert.Equal(t, int64(75), total, "bets on the same choice accumulate")

	ids, err := repo.LockExpired(ctx, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, ids)
	ids, err = repo.LockExpired(ctx, t0.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []int64{p.ID}, ids)

	_, err = repo.GetByID(ctx, p.ID+100)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGuildWarRepository(t *testing.T) {
	pool := dbtest.Setup(t)
	ctx := context.Background()
	repo := NewGuildWarRepository(pool)

	w := &model.GuildWar{CreatorID: 1, Name: "Clash", Team1Name: "Red", Team2Name: "Blue", EntryCost: 100, Status: model.WarRecruiting, CreatedAt: t0}
	require.NoError(t, repo.Create(ctx, w))

	require.NoError(t, repo.AddMember(ctx, model.WarMember{WarID: w.ID, UserID: 2, Team: 1, PointsBet: 100}))
	require.NoError(t, repo.AddMember(ctx, model.WarMember{WarID: w.ID, UserID: 3, Team: 2, PointsBet: 100}))
	require.NoError(t, repo.SetMemberTeam(ctx, w.ID, 3, 1))

	members, err := repo.Members(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	for _, m := range members {
		assert.Equal(t, 1, m.Team)
	}

	require.NoError(t, repo.RemoveMember(ctx, w.ID, 2))
	_, err = repo.Member(ctx, w.ID, 2)
	assert.ErrorIs(t, err, ErrNotFound)

	team := 1
	require.NoError(t, repo.SetStatus(ctx, w.ID, model.WarFinished, &team))
	got, err := repo.GetByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WarFinished, got.Status)
	require.NotNil(t, got.WinningTeam)
	assert.Equal(t, 1, *got.WinningTeam)
}

func TestAttackHistoryRepository(t *testing.T) {
	pool := dbtest.Setup(t)
	ctx := context.Background()
	repo := NewAttackHistoryRepository(pool)

	for n, at := range []time.Time{t0.Add(-2 * time.Hour), t0.Add(-time.Minute), t0} {
		require.NoError(t, repo.Create(ctx, &model.AttackRecord{
			AttackerID: int64(10 + n), TargetID: 1, AttackType: model.AttackTypeRegular,
			Amount: 50, Success: n%2 == 0, CreatedAt: at,
		}))
	}

	recent, err := repo.ListAgainst(ctx, 1, t0.Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, int64(12), recent[0].AttackerID, "newest first")
}

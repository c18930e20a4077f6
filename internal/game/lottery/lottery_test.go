package lottery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/model"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/db"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/dbtest"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/lock"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/rng"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/repository"
)

func entry(user int64, number int) model.LotteryEntry {
	return model.LotteryEntry{UserID: user, Number: number}
}

func TestSettle_OneHalfWon(t *testing.T) {
	d := Settle(5200, [2]int{7, 42}, []model.LotteryEntry{entry(1, 7), entry(2, 7), entry(3, 50)})

	assert.True(t, d.Paid())
	assert.Equal(t, int64(260), d.Prizes[0].Tax)
	assert.Equal(t, int64(1170), d.Prizes[0].PerWinner)
	assert.Equal(t, []int64{1, 2}, d.Prizes[0].Winners)
	assert.Empty(t, d.Prizes[1].Winners)
	assert.Equal(t, int64(7600), d.NewPool)
	assert.Zero(t, d.Dust)
}

func TestSettle_NoWinnersKeepsPool(t *testing.T) {
	d := Settle(5200, [2]int{7, 42}, []model.LotteryEntry{entry(1, 8)})

	assert.False(t, d.Paid())
	assert.Equal(t, int64(5200), d.NewPool)
	assert.Zero(t, d.Prizes[0].Tax)
	assert.Zero(t, d.Prizes[1].Tax)
}

func TestSettle_BothHalvesWonWithDust(t *testing.T) {
	d := Settle(6001, [2]int{1, 2}, []model.LotteryEntry{entry(1, 1), entry(2, 1), entry(3, 1), entry(4, 2)})

	// half 3000, tax 300, 2700 / 3 = 900 each
	assert.Equal(t, int64(900), d.Prizes[0].PerWinner)
	assert.Equal(t, int64(2700), d.Prizes[1].PerWinner)
	assert.Equal(t, int64(ResetFloor), d.NewPool)
	assert.Equal(t, int64(1), d.Dust)
}

func TestSettle_OddPoolPointIsNotCarried(t *testing.T) {
	d := Settle(5201, [2]int{1, 2}, []model.LotteryEntry{entry(1, 1)})

	// half 2600: 260 tax, 2340 to the winner, 2600 carried, the odd point to tax
	assert.Equal(t, int64(2340), d.Prizes[0].PerWinner)
	assert.Equal(t, int64(ResetFloor+2600), d.NewPool)
	assert.Equal(t, int64(1), d.Dust)
}

// TestSettleConservationProperty checks that a paid draw distributes exactly
// the pool across winners, tax, dust and carry-over.
func TestSettleConservationProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		pool := rapid.Int64Range(0, 1_000_000).Draw(t, "pool")
		numbers := rapid.SliceOfNDistinct(rapid.IntRange(0, 99), 2, 2, rapid.ID[int]).Draw(t, "numbers")
		picks := rapid.SliceOfN(rapid.IntRange(0, 99), 1, 40).Draw(t, "picks")

		entries := make([]model.LotteryEntry, len(picks))
		for i, n := range picks {
			entries[i] = entry(int64(i%7+1), n)
		}

		d := Settle(pool, [2]int{numbers[0], numbers[1]}, entries)
		if !d.Paid() {
			if d.NewPool != pool {
				t.Fatalf("pool changed without winners: %d -> %d", pool, d.NewPool)
			}
			return
		}

		var out, unclaimed int64
		for _, p := range d.Prizes {
			out += p.Tax + p.PerWinner*int64(len(p.Winners))
			if len(p.Winners) == 0 {
				unclaimed += p.Amount
			}
		}
		if d.NewPool != ResetFloor+unclaimed {
			t.Fatalf("new pool %d, want floor plus unclaimed %d", d.NewPool, unclaimed)
		}
		out += d.Dust + d.NewPool - ResetFloor
		if out != pool {
			t.Fatalf("pool %d distributed as %d", pool, out)
		}
	})
}

func newTestService(t *testing.T, src rng.Source) (*Service, *db.Pool) {
	pool := dbtest.Setup(t)
	svc := NewService(pool,
		repository.NewUserRepository(pool),
		repository.NewSettingsRepository(pool),
		repository.NewLotteryRepository(pool),
		lock.NewUserLock(),
		src,
	)
	return svc, pool
}

func TestBuy(t *testing.T) {
	svc, pool := newTestService(t, rng.Seeded(1))
	ctx := context.Background()
	dbtest.SeedUser(t, pool, 1, 2000)

	_, err := svc.Buy(ctx, 1, []int{100})
	assert.ErrorIs(t, err, ErrInvalidNumber)

	_, err = svc.Buy(ctx, 1, nil)
	assert.ErrorIs(t, err, ErrNoNumbers)

	p, err := svc.Buy(ctx, 1, []int{10, 12, 15})
	require.NoError(t, err)
	assert.Equal(t, int64(300), p.Cost)
	assert.Equal(t, int64(1700), p.Remaining)
	assert.Equal(t, int64(5300), p.Pool)
	assert.Equal(t, 3, p.Held)

	_, err = svc.Buy(ctx, 1, []int{1, 2, 3, 4, 5, 6, 7, 8})
	assert.ErrorIs(t, err, ErrTicketLimit)

	p, err = svc.BuyRandom(ctx, 1, 7)
	require.NoError(t, err)
	assert.Len(t, p.Numbers, 7)
	assert.Equal(t, 10, p.Held)

	st, err := svc.Status(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, st.Numbers, 10)
	assert.Equal(t, int64(6000), st.Pool)
}

func TestBuy_InsufficientFunds(t *testing.T) {
	svc, pool := newTestService(t, rng.Seeded(1))
	dbtest.SeedUser(t, pool, 1, 150)

	_, err := svc.Buy(context.Background(), 1, []int{1, 2})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestDraw(t *testing.T) {
	// Distinct(100, 2) with these ints selects 7 then 42
	svc, pool := newTestService(t, &rng.Scripted{Ints: []int{7, 41}})
	ctx := context.Background()
	dbtest.SeedUser(t, pool, 1, 1000)
	dbtest.SeedUser(t, pool, 2, 1000)

	_, err := svc.Draw(ctx)
	require.ErrorIs(t, err, ErrNoEntries)

	_, err = svc.Buy(ctx, 1, []int{7})
	require.NoError(t, err)
	_, err = svc.Buy(ctx, 2, []int{7})
	require.NoError(t, err)

	d, err := svc.Draw(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, d.Prizes[0].Number)
	assert.Equal(t, 42, d.Prizes[1].Number)
	assert.Equal(t, int64(5200), d.Pool)
	assert.Equal(t, int64(1170), d.Prizes[0].PerWinner)

	users := repository.NewUserRepository(pool)
	for _, id := range []int64{1, 2} {
		pts, err := users.Points(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(1000-100+1170), pts)
	}

	newPool, err := svc.Pool(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7600), newPool)

	tax, err := repository.NewSettingsRepository(pool).TaxPool(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(260), tax)

	st, err := svc.Status(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, st.Numbers)
}

func TestAddPrize(t *testing.T) {
	svc, _ := newTestService(t, rng.Seeded(1))

	_, err := svc.AddPrize(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	p, err := svc.AddPrize(context.Background(), 250)
	require.NoError(t, err)
	assert.Equal(t, int64(5250), p)
}

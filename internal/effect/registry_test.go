package effect

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestRegistry_ExpiresAgainstNow(t *testing.T) {
	r := NewRegistry[int64](10, time.Hour)
	r.Set(1, t0, 5*time.Minute)

	active, remaining := r.Active(1, t0.Add(4*time.Minute))
	assert.True(t, active)
	assert.Equal(t, time.Minute, remaining)

	active, _ = r.Active(1, t0.Add(5*time.Minute))
	assert.False(t, active, "expiry instant is inactive")
	assert.Equal(t, 0, r.Len(), "expired entry dropped on access")
}

func TestRegistry_ConsumeOnce(t *testing.T) {
	r := NewRegistry[int64](10, time.Hour)
	r.Set(9, t0, time.Minute)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Consume(9, t0) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestRegistry_CompositeKey(t *testing.T) {
	type pair struct{ holder, attacker int64 }
	r := NewRegistry[pair](10, time.Hour)
	r.Set(pair{1, 2}, t0, time.Minute)

	active, _ := r.Active(pair{1, 2}, t0)
	assert.True(t, active)
	active, _ = r.Active(pair{1, 3}, t0)
	assert.False(t, active)
}

func TestRegistryActiveProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ttl := time.Duration(rapid.Int64Range(1, 3600).Draw(t, "ttlSec")) * time.Second
		offset := time.Duration(rapid.Int64Range(-10, 7200).Draw(t, "offsetSec")) * time.Second

		r := NewRegistry[string](0, 3*time.Hour)
		r.Set("k", t0, ttl)
		active, remaining := r.Active("k", t0.Add(offset))

		if want := offset < ttl; active != want {
			t.Fatalf("active = %v at offset %v ttl %v", active, offset, ttl)
		}
		if active && remaining != ttl-offset {
			t.Fatalf("remaining = %v, want %v", remaining, ttl-offset)
		}
	})
}

func TestCooldown(t *testing.T) {
	c := NewCooldown[int64]("attack", 20*time.Second)
	require.NoError(t, c.Check(1, t0))

	c.Start(1, t0)
	err := c.Check(1, t0.Add(5*time.Second))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOnCooldown)

	var cdErr *CooldownError
	require.ErrorAs(t, err, &cdErr)
	assert.Equal(t, 15*time.Second, cdErr.Remaining)
	assert.Equal(t, "attack on cooldown: 15s remaining", err.Error())

	assert.NoError(t, c.Check(1, t0.Add(20*time.Second)))
	assert.NoError(t, c.Check(2, t0.Add(5*time.Second)))
}

func TestFormatRemaining(t *testing.T) {
	assert.Equal(t, "1s", FormatRemaining(200*time.Millisecond))
	assert.Equal(t, "59s", FormatRemaining(59*time.Second))
	assert.Equal(t, "4m 3s", FormatRemaining(4*time.Minute+3*time.Second))
}

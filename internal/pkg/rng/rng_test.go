package rng

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestDistinctProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 200).Draw(t, "n")
		k := rapid.IntRange(0, 250).Draw(t, "k")
		seed := rapid.Uint64().Draw(t, "seed")

		got := Distinct(Seeded(seed), n, k)

		want := min(k, n)
		if len(got) != want {
			t.Fatalf("len = %d, want %d", len(got), want)
		}
		seen := make(map[int]bool)
		for _, v := range got {
			if v < 0 || v >= n {
				t.Fatalf("value %d out of [0,%d)", v, n)
			}
			if seen[v] {
				t.Fatalf("duplicate %d", v)
			}
			seen[v] = true
		}
	})
}

func TestRangeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		lo := rapid.IntRange(-100, 100).Draw(t, "lo")
		hi := rapid.IntRange(lo, lo+100).Draw(t, "hi")
		v := Range(Seeded(rapid.Uint64().Draw(t, "seed")), lo, hi)
		if v < lo || v > hi {
			t.Fatalf("%d not in [%d,%d]", v, lo, hi)
		}
	})
}

func TestScripted(t *testing.T) {
	s := &Scripted{Floats: []float64{0.1, 0.9}, Ints: []int{7, 12}}

	assert.True(t, Chance(s, 0.45))
	assert.False(t, Chance(s, 0.45))
	assert.Equal(t, 0.0, s.Float64())

	assert.Equal(t, 7, s.IntN(10))
	assert.Equal(t, 2, s.IntN(10))
	assert.Equal(t, 0, s.IntN(10))
}

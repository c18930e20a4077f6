// Package rng provides the random source shared by every wager so tests can
// force outcomes.
package rng

import "math/rand/v2"

// Source is the subset of *rand.Rand the games use.
type Source interface {
	// Float64 returns a value in [0.0, 1.0).
	Float64() float64
	// IntN returns a value in [0, n). It panics if n <= 0.
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }
func (globalSource) IntN(n int) int   { return rand.IntN(n) }

// Default returns a source backed by the runtime-seeded global generator.
func Default() Source {
	return globalSource{}
}

// Seeded returns a deterministic source.
func Seeded(seed uint64) Source {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Chance reports whether a roll lands under p.
func Chance(src Source, p float64) bool {
	return src.Float64() < p
}

// Range returns a value in [lo, hi].
func Range(src Source, lo, hi int) int {
	return lo + src.IntN(hi-lo+1)
}

// Pick returns a uniformly chosen element of items, which must be non-empty.
func Pick[T any](src Source, items []T) T {
	return items[src.IntN(len(items))]
}

// Distinct returns k distinct values from [0, n) in draw order.
func Distinct(src Source, n, k int) []int {
	if k > n {
		k = n
	}
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + src.IntN(n-i)
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm[:k]
}

// Scripted replays fixed values, for tests. Floats and ints are consumed from
// separate queues; an exhausted queue returns zero.
type Scripted struct {
	Floats []float64
	Ints   []int
}

// Float64 returns the next scripted float.
func (s *Scripted) Float64() float64 {
	if len(s.Floats) == 0 {
		return 0
	}
	f := s.Floats[0]
	s.Floats = s.Floats[1:]
	return f
}

// IntN returns the next scripted int modulo n.
func (s *Scripted) IntN(n int) int {
	if len(s.Ints) == 0 {
		return 0
	}
	v := s.Ints[0]
	s.Ints = s.Ints[1:]
	return v % n
}

// Package effect holds process-local expiring flags: defensive buffs,
// channel ceasefires and command cooldowns.
//
// Entries are bounded by an LRU with a wall-clock ceiling so abandoned keys are
// eventually dropped, but activity is always decided against the caller's now.
package effect

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultCapacity bounds each registry.
const DefaultCapacity = 10000

// Registry maps a key to the instant its effect ends.
type Registry[K comparable] struct {
	mu  sync.Mutex
	lru *expirable.LRU[K, time.Time]
}

// NewRegistry creates a registry. ceiling must exceed the longest ttl ever set.
func NewRegistry[K comparable](capacity int, ceiling time.Duration) *Registry[K] {
	return &Registry[K]{
		lru: expirable.NewLRU[K, time.Time](capacity, nil, ceiling),
	}
}

// Set activates key until now+ttl, replacing any previous expiry.
func (r *Registry[K]) Set(key K, now time.Time, ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lru.Add(key, now.Add(ttl))
}

// Active reports whether key is active at now and how long it has left.
// Expired entries are dropped on access.
func (r *Registry[K]) Active(key K, now time.Time) (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeLocked(key, now)
}

func (r *Registry[K]) activeLocked(key K, now time.Time) (bool, time.Duration) {
	until, ok := r.lru.Peek(key)
	if !ok {
		return false, 0
	}
	if !now.Before(until) {
		r.lru.Remove(key)
		return false, 0
	}
	return true, until.Sub(now)
}

// Consume removes key and reports whether it was active. Exactly one of any
// number of concurrent callers observes true.
func (r *Registry[K]) Consume(key K, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	active, _ := r.activeLocked(key, now)
	if active {
		r.lru.Remove(key)
	}
	return active
}

// Remove drops key.
func (r *Registry[K]) Remove(key K) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lru.Remove(key)
}

// Len returns the number of stored entries, expired or not.
func (r *Registry[K]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lru.Len()
}

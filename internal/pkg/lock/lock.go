// Package lock provides user-level locking for concurrent balance operations.
// Wagers, traps and lottery purchases touch several users at once, so the
// multi-user helpers always acquire in ascending user id order.
package lock

import (
	"slices"
	"sync"
)

// userMutex wraps a mutex with reference counting for cleanup.
type userMutex struct {
	mu       sync.Mutex
	refCount int
}

// UserLock serializes balance-changing operations per user within the process.
// Multi-user operations take every participant's lock in ascending id order.
type UserLock struct {
	locks sync.Map // map[int64]*userMutex
	pool  sync.Pool
}

// NewUserLock creates a new UserLock instance.
func NewUserLock() *UserLock {
	return &UserLock{
		pool: sync.Pool{
			New: func() any {
				return &userMutex{}
			},
		},
	}
}

// getLock retrieves or creates a mutex for the given user ID.
func (ul *UserLock) getLock(userID int64) *userMutex {
	// Try to load existing lock
	if v, ok := ul.locks.Load(userID); ok {
		return v.(*userMutex)
	}

	// Create new lock from pool
	newLock := ul.pool.Get().(*userMutex)
	newLock.refCount = 0

	// Store or load existing (handles race condition)
	actual, loaded := ul.locks.LoadOrStore(userID, newLock)
	if loaded {
		// Another goroutine created the lock first, return ours to pool
		ul.pool.Put(newLock)
	}
	return actual.(*userMutex)
}

// Lock acquires the lock for a user.
// This should be called before any balance-modifying operation.
func (ul *UserLock) Lock(userID int64) {
	lock := ul.getLock(userID)
	lock.mu.Lock()
	lock.refCount++
}

// Unlock releases the lock for a user.
// This should be called after balance-modifying operations complete.
func (ul *UserLock) Unlock(userID int64) {
	if v, ok := ul.locks.Load(userID); ok {
		lock := v.(*userMutex)
		lock.refCount--
		lock.mu.Unlock()
	}
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired, false otherwise.
func (ul *UserLock) TryLock(userID int64) bool {
	lock := ul.getLock(userID)
	if lock.mu.TryLock() {
		lock.refCount++
		return true
	}
	return false
}

// orderedUnique sorts ids ascending and drops duplicates.
func orderedUnique(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

// LockAll blocks until every user's lock is held and returns the release func.
// Locks are taken in ascending id order, so two operations over the same
// users can never deadlock. Duplicate ids are locked once.
func (ul *UserLock) LockAll(ids ...int64) func() {
	ordered := orderedUnique(ids)
	for _, id := range ordered {
		ul.Lock(id)
	}
	return func() {
		// Release in reverse acquisition order
		for i := len(ordered) - 1; i >= 0; i-- {
			ul.Unlock(ordered[i])
		}
	}
}

// TryLockAll acquires every user's lock without blocking, in the same order
// as LockAll. Returns the release func on success. On failure nothing stays
// held and ErrBusy is returned.
func (ul *UserLock) TryLockAll(ids ...int64) (func(), error) {
	ordered := orderedUnique(ids)
	for i, id := range ordered {
		if !ul.TryLock(id) {
			// Roll back the locks taken so far
			for j := i - 1; j >= 0; j-- {
				ul.Unlock(ordered[j])
			}
			return nil, ErrBusy
		}
	}
	return func() {
		for i := len(ordered) - 1; i >= 0; i-- {
			ul.Unlock(ordered[i])
		}
	}, nil
}

// WithLocks executes fn while holding the locks of all ids.
// This is a convenience method that ensures proper lock/unlock.
func (ul *UserLock) WithLocks(ids []int64, fn func() error) error {
	unlock := ul.LockAll(ids...)
	defer unlock()
	return fn()
}

// IsLocked checks if a user currently has an active lock.
// Note: This is a point-in-time check and may change immediately after.
func (ul *UserLock) IsLocked(userID int64) bool {
	if v, ok := ul.locks.Load(userID); ok {
		lock := v.(*userMutex)
		// Try to acquire and immediately release to check if locked
		if lock.mu.TryLock() {
			lock.mu.Unlock()
			return false
		}
		return true
	}
	return false
}

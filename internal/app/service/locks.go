package service

import (
	"sync"
)

const defaultLockCapacity = 1024

// LockRegistry hands out one mutex per leaderboard so that a write and its
// rank recomputation are serialized against other writers to the same
// board. Entries are created lazily; to keep the arena from growing without
// bound, idle (unreferenced) locks are evicted once the capacity is hit.
type LockRegistry struct {
	mu       sync.Mutex
	capacity int
	locks    map[string]*boardLock
}

type boardLock struct {
	mu   sync.Mutex
	refs int
}

func NewLockRegistry(capacity int) *LockRegistry {
	if capacity <= 0 {
		capacity = defaultLockCapacity
	}
	return &LockRegistry{
		capacity: capacity,
		locks:    make(map[string]*boardLock),
	}
}

// Lock blocks until the per-leaderboard lock is held and returns the
// release function.
func (r *LockRegistry) Lock(leaderboardID string) (unlock func()) {
	r.mu.Lock()
	l, ok := r.locks[leaderboardID]
	if !ok {
		if len(r.locks) >= r.capacity {
			r.evictIdleLocked()
		}
		l = &boardLock{}
		r.locks[leaderboardID] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.mu.Lock()
		l.refs--
		r.mu.Unlock()
	}
}

// evictIdleLocked removes one unreferenced lock; caller holds r.mu.
// If every lock is in use the map is allowed to grow past capacity.
func (r *LockRegistry) evictIdleLocked() {
	for id, l := range r.locks {
		if l.refs == 0 {
			delete(r.locks, id)
			return
		}
	}
}

func (r *LockRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}

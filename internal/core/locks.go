package core

import "sync"

// lockRegistry serializes actions per party. Locks are created lazily on
// first use and evicted when the party is deleted; actions on different
// parties proceed in parallel.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[string]*sync.Mutex)}
}

func (r *lockRegistry) acquire(partyID string) *sync.Mutex {
	r.mu.Lock()
	lock, ok := r.locks[partyID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[partyID] = lock
	}
	r.mu.Unlock()

	lock.Lock()
	return lock
}

// evict drops the party's lock entry. The caller still holds the lock; a
// later acquire simply creates a fresh mutex.
func (r *lockRegistry) evict(partyID string) {
	r.mu.Lock()
	delete(r.locks, partyID)
	r.mu.Unlock()
}

func (r *lockRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}

package service

import (
	"sync"

	"github.com/wanderapp/places-importer/internal/entity"
)

// identityLocks serializes the read-merge-write of one store row per
// identity. No cross-identity synchronization: each identity gets its own
// mutex, created on first use.
type identityLocks struct {
	mu    sync.Mutex
	locks map[entity.Identity]*sync.Mutex
}

func newIdentityLocks() *identityLocks {
	return &identityLocks{locks: make(map[entity.Identity]*sync.Mutex)}
}

// acquire blocks until the identity's lock is held and returns the
// release function.
func (l *identityLocks) acquire(id entity.Identity) func() {
	l.mu.Lock()
	lock, ok := l.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[id] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

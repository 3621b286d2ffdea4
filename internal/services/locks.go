package services

import "sync"

// attemptLocks serializes mutating operations on a single attempt. Save,
// submit, and anti-cheat logEvent all take the same lock so a termination
// decision cannot be bypassed by a save racing in the same instant. Different
// attempts never contend.
type attemptLocks struct {
	mu    sync.Mutex
	locks map[uint]*attemptLock
}

type attemptLock struct {
	mu   sync.Mutex
	refs int
}

func newAttemptLocks() *attemptLocks {
	return &attemptLocks{locks: make(map[uint]*attemptLock)}
}

// Lock acquires the per-attempt mutex. The returned func releases it and
// drops the map entry once no goroutine holds or awaits the lock.
func (al *attemptLocks) Lock(attemptID uint) func() {
	al.mu.Lock()
	l, ok := al.locks[attemptID]
	if !ok {
		l = &attemptLock{}
		al.locks[attemptID] = l
	}
	l.refs++
	al.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		al.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(al.locks, attemptID)
		}
		al.mu.Unlock()
	}
}

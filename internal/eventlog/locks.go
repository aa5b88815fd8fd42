package eventlog

import "sync"

// fingerprintLocks serializes publishes that share a content hash so
// the dedup check and the metadata write behave as one unit within
// this process. Entries are reference-counted and removed when the
// last holder releases, keeping the map bounded by in-flight work.
type fingerprintLocks struct {
	mu    sync.Mutex
	locks map[string]*fingerprintLock
}

type fingerprintLock struct {
	mu   sync.Mutex
	refs int
}

func newFingerprintLocks() *fingerprintLocks {
	return &fingerprintLocks{locks: make(map[string]*fingerprintLock)}
}

// lock acquires the mutex for key and returns its release func.
func (l *fingerprintLocks) lock(key string) func() {
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &fingerprintLock{}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

package conversation

import "sync"

// keyLock serializes conversation turns per phone number so two
// near-simultaneous inbound messages cannot interleave a read-modify-write
// on the same state record. Different phones proceed in parallel.
type keyLock struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{locks: make(map[string]*entry)}
}

// Lock acquires the key's mutex, creating it on first use.
func (k *keyLock) Lock(key string) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the key's mutex and drops the entry once no goroutine
// holds or waits on it, so the map does not grow unbounded.
func (k *keyLock) Unlock(key string) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if ok {
		e.refs--
		if e.refs <= 0 {
			delete(k.locks, key)
		}
	}
	k.mu.Unlock()

	if ok {
		e.mu.Unlock()
	}
}

// Package lock provides a per-key mutex used to serialise mutations of a
// single review session while leaving other sessions unaffected.
package lock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Keyed hands out one mutex per key; idle keys are released.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewKeyed creates a keyed lock.
func NewKeyed() *Keyed {
	return &Keyed{entries: map[string]*entry{}}
}

// Lock acquires the mutex for key and returns its release function.
func (k *Keyed) Lock(key string) (unlock func()) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}

// Len returns the number of keys currently held or awaited.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

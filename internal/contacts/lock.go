package contacts

import "sync"

type pairKey struct{ low, high int }

func keyFor(a, b int) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a, b}
}

// pairLocks serializes transitions per unordered user pair. Entries are dropped once no
// goroutine holds or waits for them.
type pairLocks struct {
	mu      sync.Mutex
	entries map[pairKey]*pairEntry
}

type pairEntry struct {
	mu   sync.Mutex
	refs int
}

func newPairLocks() *pairLocks {
	return &pairLocks{entries: make(map[pairKey]*pairEntry)}
}

func (l *pairLocks) lock(a, b int) func() {
	k := keyFor(a, b)
	l.mu.Lock()
	e, ok := l.entries[k]
	if !ok {
		e = &pairEntry{}
		l.entries[k] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, k)
		}
		l.mu.Unlock()
	}
}

func (l *pairLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

package gatekeeper

import (
	"sort"
	"sync"
)

// symbolLocks serializes decisions per symbol. Locks are taken in sorted order
// so two change sets touching overlapping symbols cannot deadlock.
type symbolLocks struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func newSymbolLocks() *symbolLocks {
	return &symbolLocks{locks: make(map[string]*refLock)}
}

func (l *symbolLocks) acquire(names []string) (release func()) {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	held := make([]string, 0, len(sorted))
	for i, name := range sorted {
		if i > 0 && sorted[i-1] == name {
			continue
		}
		l.mu.Lock()
		lk, ok := l.locks[name]
		if !ok {
			lk = &refLock{}
			l.locks[name] = lk
		}
		lk.refs++
		l.mu.Unlock()

		lk.Lock()
		held = append(held, name)
	}

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i := len(held) - 1; i >= 0; i-- {
			lk := l.locks[held[i]]
			lk.Unlock()
			lk.refs--
			if lk.refs == 0 {
				delete(l.locks, held[i])
			}
		}
	}
}

package rating

import (
	"sort"
	"sync"
)

// keyLocker hands out one mutex per key and drops it once nobody holds or
// waits on it.
type keyLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocker() *keyLocker {
	return &keyLocker{locks: make(map[string]*keyLock)}
}

// Lock acquires every key in lexical order and returns the release func.
// Duplicate keys are locked once.
func (l *keyLocker) Lock(keys ...string) func() {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	held := make([]string, 0, len(sorted))
	for i, k := range sorted {
		if i > 0 && sorted[i-1] == k {
			continue
		}
		l.acquire(k).Lock()
		held = append(held, k)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.release(held[i])
		}
	}
}

func (l *keyLocker) acquire(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{}
		l.locks[key] = kl
	}
	kl.refs++
	return &kl.mu
}

func (l *keyLocker) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl := l.locks[key]
	kl.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// poolLocks gives each pool a RWMutex: results take the read side,
// recalculation the write side.
type poolLocks struct {
	mu    sync.Mutex
	pools map[string]*sync.RWMutex
	// all is write-locked by recalculations spanning every pool.
	all sync.RWMutex
}

func newPoolLocks() *poolLocks {
	return &poolLocks{pools: make(map[string]*sync.RWMutex)}
}

func (p *poolLocks) get(pool string) *sync.RWMutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.pools[pool]
	if !ok {
		l = &sync.RWMutex{}
		p.pools[pool] = l
	}
	return l
}

func (p *poolLocks) RLock(pool string) func() {
	p.all.RLock()
	l := p.get(pool)
	l.RLock()
	return func() {
		l.RUnlock()
		p.all.RUnlock()
	}
}

// Lock is exclusive for pool, or for every pool when pool is empty.
func (p *poolLocks) Lock(pool string) func() {
	if pool == "" {
		p.all.Lock()
		return p.all.Unlock
	}
	p.all.RLock()
	l := p.get(pool)
	l.Lock()
	return func() {
		l.Unlock()
		p.all.RUnlock()
	}
}

package escrow

import "sync"

// keyLocks hands out one mutex per game id. Entries are dropped once nobody
// holds or waits for them.
type keyLocks struct {
	mu    sync.Mutex
	locks map[uint64]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[uint64]*keyLock)}
}

func (k *keyLocks) lock(id uint64) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &keyLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}

package challenge

import (
	"context"
	"path/filepath"
	"sync"
)

// Locks hands out one mutex per workdir. Entries are dropped when no
// holder or waiter remains.
type Locks struct {
	mu    sync.Mutex
	locks map[string]*workdirLock
}

type workdirLock struct {
	ch   chan struct{}
	refs int
}

// NewLocks creates an empty lock set.
func NewLocks() *Locks {
	return &Locks{locks: make(map[string]*workdirLock)}
}

// Lock blocks until the workdir is free or ctx is done. The returned
// function releases the lock.
func (l *Locks) Lock(ctx context.Context, workdir string) (func(), error) {
	key := filepath.Clean(workdir)

	l.mu.Lock()
	wl, ok := l.locks[key]
	if !ok {
		wl = &workdirLock{ch: make(chan struct{}, 1)}
		l.locks[key] = wl
	}
	wl.refs++
	l.mu.Unlock()

	select {
	case wl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, wl, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, wl, true) })
	}, nil
}

func (l *Locks) release(key string, wl *workdirLock, held bool) {
	if held {
		<-wl.ch
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	wl.refs--
	if wl.refs == 0 {
		delete(l.locks, key)
	}
}

// Len returns the number of workdirs currently locked or awaited.
func (l *Locks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// Package lock serialises writers of a shared artifact path.
package lock

import (
	"context"
	"sync"
)

// Release gives up a held lock.
type Release func(ctx context.Context) error

// Locker grants exclusive access to a named resource.
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
	Close() error
}

// LocalLocker serialises holders within one process.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocalLocker constructs an in-process Locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]chan struct{})}
}

func (l *LocalLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

// Acquire blocks until key is free or ctx is done.
func (l *LocalLocker) Acquire(ctx context.Context, key string) (Release, error) {
	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func(context.Context) error {
		once.Do(func() { <-ch })
		return nil
	}, nil
}

// Close is a no-op.
func (l *LocalLocker) Close() error { return nil }

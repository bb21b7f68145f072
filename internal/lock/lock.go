// Package lock serialises state-changing operations on a single convention.
// LocalLocker covers a single process; RedisLocker uses the RedLock algorithm
// so several server instances can share the same database.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotAcquired is returned when the lock could not be taken in time.
var ErrNotAcquired = errors.New("lock: not acquired")

// Locker runs fn while holding the lock named key.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func() error) error
}

// ConventionKey is the lock name guarding a convention and its children
// records (avenants, budgets).
func ConventionKey(id uint) string {
	return fmt.Sprintf("lock:convention:%d", id)
}

// LocalLocker is an in-process keyed mutex. Waiting honours ctx.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch      chan struct{}
	waiters int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: map[string]*slot{}}
}

func (l *LocalLocker) acquire(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.waiters++
	return s
}

func (l *LocalLocker) release(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.waiters--
	if s.waiters == 0 {
		delete(l.slots, key)
	}
}

// WithLock blocks until key is free or ctx is done.
func (l *LocalLocker) WithLock(ctx context.Context, key string, fn func() error) error {
	s := l.acquire(key)
	defer l.release(key, s)

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
	}
	defer func() { <-s.ch }()
	return fn()
}

// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package mint

import (
	"context"
	"sync"
)

// Locker provides best-effort mutual exclusion keyed by string. Recovery
// sweeps, user-triggered acceleration and queue draining all use a
// per-order key so only one of them orchestrates an order at a time.
type Locker interface {
	// WithLock runs fn under the key's lock. Returns ErrLockHeld without
	// running fn when the lock is taken.
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// MemoryLocker is an in-process Locker. A distributed backend can replace
// it behind the same interface when the service runs in multiple replicas.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemoryLocker is a constructor for MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]struct{})}
}

// WithLock implements Locker.
func (l *MemoryLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	if _, taken := l.held[key]; taken {
		l.mu.Unlock()
		return ErrLockHeld
	}

	l.held[key] = struct{}{}
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}()

	return fn(ctx)
}

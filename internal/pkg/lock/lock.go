// Package lock provides keyed mutual exclusion.
// Game sessions are serialized by game ID and group sessions by chat ID.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockTimeout is returned when a lock cannot be acquired in time.
var ErrLockTimeout = errors.New("lock acquisition timeout")

// entry is one key's mutex. refs counts the holder plus every waiter; the
// entry leaves the map when it drops to zero, so keys that are never reused
// (game IDs) do not accumulate.
type entry struct {
	mu   sync.Mutex
	refs int
}

// KeyLock hands out one mutex per key.
type KeyLock[K comparable] struct {
	mu      sync.Mutex
	entries map[K]*entry
}

// New creates an empty KeyLock.
func New[K comparable]() *KeyLock[K] {
	return &KeyLock[K]{entries: make(map[K]*entry)}
}

func (kl *KeyLock[K]) acquire(key K) *entry {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	e, ok := kl.entries[key]
	if !ok {
		e = &entry{}
		kl.entries[key] = e
	}
	e.refs++
	return e
}

func (kl *KeyLock[K]) release(key K, e *entry) {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(kl.entries, key)
	}
}

// Lock blocks until the lock for key is held.
func (kl *KeyLock[K]) Lock(key K) {
	kl.acquire(key).mu.Lock()
}

// Unlock releases the lock for key. Unlocking a key that is not held is a
// no-op.
func (kl *KeyLock[K]) Unlock(key K) {
	kl.mu.Lock()
	e, ok := kl.entries[key]
	kl.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Unlock()
	kl.release(key, e)
}

// LockWithTimeout waits at most timeout (or until ctx is done) for the lock.
func (kl *KeyLock[K]) LockWithTimeout(ctx context.Context, key K, timeout time.Duration) bool {
	e := kl.acquire(key)

	done := make(chan struct{})
	go func() {
		e.mu.Lock()
		close(done)
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-done:
		return true
	case <-timeoutCtx.Done():
		// the waiter still gets the mutex eventually; hand it straight back
		go func() {
			<-done
			e.mu.Unlock()
			kl.release(key, e)
		}()
		return false
	}
}

// WithLockContext runs fn while holding the lock for key, waiting at most
// timeout for it.
func (kl *KeyLock[K]) WithLockContext(ctx context.Context, key K, timeout time.Duration, fn func() error) error {
	if !kl.LockWithTimeout(ctx, key, timeout) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrLockTimeout
	}
	defer kl.Unlock(key)

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fn()
	}
}

// Len is the number of keys currently held or waited on.
func (kl *KeyLock[K]) Len() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.entries)
}

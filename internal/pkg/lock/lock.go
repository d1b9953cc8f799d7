// Package lock provides keyed in-process locks used to serialize work on
// a single entity, such as one poller per payment order.
package lock

import "sync"

// keyMutex is a one-slot semaphore with a reference count so idle keys can
// be dropped from the map.
type keyMutex struct {
	ch       chan struct{}
	refCount int
}

// KeyedLock provides one mutex per key.
type KeyedLock[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*keyMutex
}

// New creates an empty KeyedLock.
func New[K comparable]() *KeyedLock[K] {
	return &KeyedLock[K]{locks: make(map[K]*keyMutex)}
}

// acquire returns the mutex for key and pins it in the map.
func (l *KeyedLock[K]) acquire(key K) *keyMutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.locks[key]
	if !ok {
		m = &keyMutex{ch: make(chan struct{}, 1)}
		l.locks[key] = m
	}
	m.refCount++
	return m
}

// release unpins the mutex and drops it once nobody holds or waits for it.
func (l *KeyedLock[K]) release(key K, m *keyMutex) {
	l.mu.Lock()
	defer l.mu.Unlock()

	m.refCount--
	if m.refCount == 0 {
		delete(l.locks, key)
	}
}

// TryLock acquires the lock for key without blocking.
// Returns true if the lock was acquired, false otherwise.
func (l *KeyedLock[K]) TryLock(key K) bool {
	m := l.acquire(key)
	select {
	case m.ch <- struct{}{}:
		return true
	default:
		l.release(key, m)
		return false
	}
}

// Unlock releases the lock for key. Unlocking a key that is not held is a
// no-op.
func (l *KeyedLock[K]) Unlock(key K) {
	l.mu.Lock()
	m, ok := l.locks[key]
	l.mu.Unlock()
	if !ok {
		return
	}

	select {
	case <-m.ch:
		l.release(key, m)
	default:
	}
}

// IsLocked reports whether key is currently held.
// This is a point-in-time check and may change immediately after.
func (l *KeyedLock[K]) IsLocked(key K) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.locks[key]
	return ok && len(m.ch) > 0
}

// Len returns the number of keys currently tracked.
func (l *KeyedLock[K]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

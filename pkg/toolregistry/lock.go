package toolregistry

import (
	"context"
	"sync"
)

// KeyedLock is a default in-process LockProvider: one mutex per key,
// created on first use. Suitable for a single-process embedder; a
// multi-process deployment would swap in a provider backed by flock or a
// distributed lock service instead.
type KeyedLock struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewKeyedLock constructs an empty KeyedLock.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{locks: make(map[string]*sync.Mutex)}
}

// Lock implements LockProvider. It never blocks past ctx cancellation in
// spirit — but sync.Mutex has no cancelable Lock, so a stuck holder still
// blocks; the sandbox layer is expected to bound handler runtime instead.
func (k *KeyedLock) Lock(_ context.Context, key string) (func(), error) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock, nil
}

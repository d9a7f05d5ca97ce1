package sync_

import "sync"

type Mutexer[T any] interface {
	// Locked runs a function with the lock acquired, giving it access to the inner value.
	Locked(f func(*T) error) error
	// Get returns a copy of the inner value.
	Get() T
	// Swap overwrites the inner value, returning the previous inner value.
	Swap(value T) T
}

type Mutexed[T any] struct {
	mu    sync.Mutex
	value T
}

func NewMutexed[T any](value T) *Mutexed[T] {
	return &Mutexed[T]{value: value}
}

func (m *Mutexed[T]) Locked(f func(*T) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return f(&m.value)
}

func (m *Mutexed[T]) Get() T {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value
}

func (m *Mutexed[T]) Swap(value T) T {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.value
	m.value = value
	return old
}

type RWMutexed[T any] struct {
	mu    sync.RWMutex
	value T
}

func NewRWMutexed[T any](value T) *RWMutexed[T] {
	return &RWMutexed[T]{value: value}
}

func (m *RWMutexed[T]) Locked(f func(*T) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return f(&m.value)
}

// RLocked is like Locked, but only acquires the read lock; f must not modify the value.
func (m *RWMutexed[T]) RLocked(f func(T) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return f(m.value)
}

func (m *RWMutexed[T]) Get() T {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.value
}

func (m *RWMutexed[T]) Swap(value T) T {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.value
	m.value = value
	return old
}

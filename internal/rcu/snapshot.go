package rcu

import (
	"sync/atomic"
)

// Snapshot publishes an immutable value through an atomic pointer.
// Readers never block; a writer builds a complete replacement and swaps it in,
// so a reader holding the result of Load sees either the old or the new value
// and never a partially built one.
type Snapshot[T any] struct {
	ptr atomic.Pointer[T]
}

// NewSnapshot returns a snapshot holding init.
func NewSnapshot[T any](init *T) *Snapshot[T] {
	s := &Snapshot[T]{}
	s.ptr.Store(init)
	return s
}

// Load returns the current value. Callers must treat it as read-only.
func (s *Snapshot[T]) Load() *T {
	return s.ptr.Load()
}

// Replace publishes next. next must not be mutated afterwards.
func (s *Snapshot[T]) Replace(next *T) {
	s.ptr.Store(next)
}

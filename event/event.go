package event

import (
	"sync"
	"sync/atomic"
)

// Event is an ordered list of listeners for values of type T.
// The zero value is ready to use. Event is safe for concurrent use.
type Event[T any] struct {
	mu   sync.Mutex
	subs []*Subscription[T]
}

// Subscription is the handle returned when a listener is added.
type Subscription[T any] struct {
	ev     *Event[T]
	fn     func(T)
	once   bool
	active atomic.Bool
}

// Subscribe adds a listener that stays attached until Unsubscribe.
func (e *Event[T]) Subscribe(fn func(T)) *Subscription[T] {
	return e.add(fn, false)
}

// Once adds a listener that is invoked for at most one value.
// It is detached before fn runs.
func (e *Event[T]) Once(fn func(T)) *Subscription[T] {
	return e.add(fn, true)
}

func (e *Event[T]) add(fn func(T), once bool) *Subscription[T] {
	s := &Subscription[T]{ev: e, fn: fn, once: once}
	s.active.Store(true)

	e.mu.Lock()
	e.subs = append(e.subs, s)
	e.mu.Unlock()

	return s
}

// Emit delivers v to every listener attached when Emit was called, in
// registration order, and returns how many were invoked.
func (e *Event[T]) Emit(v T) int {
	e.mu.Lock()
	snapshot := append([]*Subscription[T](nil), e.subs...)
	e.mu.Unlock()

	n := 0

	for _, s := range snapshot {
		if s.once {
			if !s.active.CompareAndSwap(true, false) {
				continue
			}

			e.remove(s)
		} else if !s.active.Load() {
			continue
		}

		s.fn(v)
		n++
	}

	return n
}

// Len reports the number of attached listeners.
func (e *Event[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.subs)
}

// Clear detaches every listener.
func (e *Event[T]) Clear() {
	e.mu.Lock()
	subs := e.subs
	e.subs = nil
	e.mu.Unlock()

	for _, s := range subs {
		s.active.Store(false)
	}
}

func (e *Event[T]) remove(s *Subscription[T]) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, cur := range e.subs {
		if cur == s {
			e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
			return
		}
	}
}

// Unsubscribe detaches the listener. It reports whether this call removed it;
// repeated calls are no-ops.
func (s *Subscription[T]) Unsubscribe() bool {
	if s == nil || !s.active.CompareAndSwap(true, false) {
		return false
	}

	s.ev.remove(s)

	return true
}

// Active reports whether the listener is still attached.
func (s *Subscription[T]) Active() bool {
	return s != nil && s.active.Load()
}

// Package stream provides a multicast current-value channel. Every consumer
// gets its own unbounded backlog and late consumers are seeded with the most
// recent value.
package stream

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var (
	// ErrStopped is returned to waiters once the stream has been stopped.
	ErrStopped = errors.New("stream: stopped")
	// ErrClosed is returned from a consumer that was closed by its owner.
	ErrClosed = errors.New("stream: consumer closed")
)

// Stream multicasts pushed values to every live consumer.
type Stream[T any] struct {
	mu         sync.Mutex
	current    T
	hasCurrent bool
	stopped    bool
	consumers  map[*Consumer[T]]struct{}
	waiters    []chan T
	observers  map[int]func(T)
	stopHooks  map[int]func()
	nextID     int
}

// New returns an empty stream with no current value.
func New[T any]() *Stream[T] {
	return &Stream[T]{
		consumers: map[*Consumer[T]]struct{}{},
		observers: map[int]func(T){},
		stopHooks: map[int]func(){},
	}
}

// Push records v as the current value and delivers it to every consumer. It
// reports false when the stream is already stopped.
func (s *Stream[T]) Push(v T) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	s.current = v
	s.hasCurrent = true
	for c := range s.consumers {
		c.deliver(v)
	}
	waiters := s.waiters
	s.waiters = nil
	observers := s.sortedObservers()
	s.mu.Unlock()

	for _, ch := range waiters {
		ch <- v
	}
	for _, fn := range observers {
		fn(v)
	}
	return true
}

// Subscribe returns a new consumer. When the stream already has a current
// value the consumer observes it first.
func (s *Stream[T]) Subscribe() *Consumer[T] {
	c := &Consumer[T]{stream: s, notify: make(chan struct{}, 1)}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		c.stopped = true
		return c
	}
	if s.hasCurrent {
		c.backlog = append(c.backlog, s.current)
	}
	s.consumers[c] = struct{}{}
	return c
}

// Current returns the most recent value, if any.
func (s *Stream[T]) Current() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.hasCurrent
}

// WaitCurrent returns the current value, waiting for the first push when the
// stream is still empty.
func (s *Stream[T]) WaitCurrent(ctx context.Context) (T, error) {
	s.mu.Lock()
	if s.hasCurrent {
		v := s.current
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()
	return s.Next(ctx)
}

// Next waits for the next value pushed after the call.
func (s *Stream[T]) Next(ctx context.Context) (T, error) {
	var zero T
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return zero, ErrStopped
	}
	ch := make(chan T, 1)
	s.waiters = append(s.waiters, ch)
	s.mu.Unlock()

	select {
	case v, ok := <-ch:
		if !ok {
			return zero, ErrStopped
		}
		return v, nil
	case <-ctx.Done():
		s.dropWaiter(ch)
		return zero, ctx.Err()
	}
}

// OnNext registers fn to run after every push, in registration order. The
// returned func unregisters it.
func (s *Stream[T]) OnNext(fn func(T)) func() {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// OnStop registers fn to run once when the stream stops. If the stream has
// already stopped fn runs immediately.
func (s *Stream[T]) OnStop(fn func()) func() {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		fn()
		return func() {}
	}
	id := s.nextID
	s.nextID++
	s.stopHooks[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.stopHooks, id)
		s.mu.Unlock()
	}
}

// Stop ends delivery and releases parked waiters. It reports whether this call
// performed the stop.
func (s *Stream[T]) Stop() bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	s.stopped = true
	for c := range s.consumers {
		c.markStopped()
	}
	s.consumers = map[*Consumer[T]]struct{}{}
	waiters := s.waiters
	s.waiters = nil
	hooks := make([]func(), 0, len(s.stopHooks))
	for _, id := range sortedKeys(s.stopHooks) {
		hooks = append(hooks, s.stopHooks[id])
	}
	s.stopHooks = map[int]func(){}
	s.observers = map[int]func(T){}
	s.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
	for _, fn := range hooks {
		fn()
	}
	return true
}

// Stopped reports whether Stop has been called.
func (s *Stream[T]) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Stream[T]) detach(c *Consumer[T]) {
	s.mu.Lock()
	delete(s.consumers, c)
	s.mu.Unlock()
}

func (s *Stream[T]) dropWaiter(target chan T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, ch := range s.waiters {
		if ch == target {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return
		}
	}
}

func (s *Stream[T]) sortedObservers() []func(T) {
	if len(s.observers) == 0 {
		return nil
	}
	out := make([]func(T), 0, len(s.observers))
	for _, id := range sortedKeys(s.observers) {
		out = append(out, s.observers[id])
	}
	return out
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

package chatclient

import (
	"context"
	"sync"
	"time"
)

// Observable is the read side of a Subject.
type Observable[T any] interface {
	// Value returns the latest value.
	Value() T
	// Subscribe calls fn with the latest value right away and then with every
	// new value, in write order. fn must not write to or subscribe on the same
	// subject. The returned func removes the subscription and is idempotent.
	Subscribe(fn func(T)) (unsubscribe func())
}

type subscriber[T any] struct {
	id uint64
	fn func(T)
}

// Subject holds the latest value of one piece of state and replays it to
// subscribers. Writes go through the unexported next so only this package
// can change session state.
type Subject[T any] struct {
	emitMu sync.Mutex // serializes writes and fan-out

	mu     sync.RWMutex
	value  T
	subs   []subscriber[T]
	nextID uint64
}

// NewSubject creates a subject holding initial.
func NewSubject[T any](initial T) *Subject[T] {
	return &Subject[T]{value: initial}
}

// Value returns the latest value.
func (s *Subject[T]) Value() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Subscribe implements Observable.
func (s *Subject[T]) Subscribe(fn func(T)) func() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber[T]{id: id, fn: fn})
	v := s.value
	s.mu.Unlock()

	fn(v)

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

func (s *Subject[T]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub.id == id {
			subs := make([]subscriber[T], 0, len(s.subs)-1)
			subs = append(subs, s.subs[:i]...)
			s.subs = append(subs, s.subs[i+1:]...)
			return
		}
	}
}

func (s *Subject[T]) next(v T) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	s.value = v
	subs := s.subs
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(v)
	}
}

func (s *Subject[T]) close() {
	s.mu.Lock()
	s.subs = nil
	s.mu.Unlock()
}

// ============================================================================
// Waiting on a value
// ============================================================================

// WaitFor resolves the first time obs holds a value accepted by match,
// including its current value. It rejects with ErrTimeout after timeout (when
// positive), with ctx's error when ctx ends, and with context.Canceled when the
// returned unsubscribe func is called first. The subscription is released as
// soon as the promise settles; calling unsubscribe afterwards is a no-op.
func WaitFor[T any](ctx context.Context, obs Observable[T], match func(T) bool, timeout time.Duration) (*Promise[T], func()) {
	p := newPromise[T]()
	cancel := make(chan struct{})
	var cancelOnce sync.Once
	unsubscribe := func() { cancelOnce.Do(func() { close(cancel) }) }

	release := obs.Subscribe(func(v T) {
		if match(v) {
			p.resolve(v)
		}
	})

	go func() {
		defer release()

		var timerC <-chan time.Time
		if timeout > 0 {
			t := time.NewTimer(timeout)
			defer t.Stop()
			timerC = t.C
		}

		select {
		case <-p.done:
		case <-timerC:
			p.reject(ErrTimeout)
		case <-ctx.Done():
			p.reject(ctx.Err())
		case <-cancel:
			p.reject(context.Canceled)
		}
	}()
	return p, unsubscribe
}

// WaitForValue is WaitFor matching a single expected value.
func WaitForValue[T comparable](ctx context.Context, obs Observable[T], want T, timeout time.Duration) (*Promise[T], func()) {
	return WaitFor(ctx, obs, func(v T) bool { return v == want }, timeout)
}

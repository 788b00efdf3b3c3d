package chatclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ============================================================================
// Promise
// ============================================================================

type promiseState int32

const (
	statePending promiseState = iota
	stateResolved
	stateRejected
)

var (
	errNilFunc    = errors.New("promise: nil function")
	errNilPromise = errors.New("promise: nil promise")
	errNilReject  = errors.New("promise: rejected without an error")
)

// Promise is the handle of an asynchronous computation whose status can be read
// at any time without waiting on it.
//
// The pending/resolved/rejected flags change exactly once, on the first
// settlement, and are never reverted.
type Promise[T any] struct {
	done  chan struct{}
	once  sync.Once
	state atomic.Int32
	value T
	err   error
}

func newPromise[T any]() *Promise[T] {
	return &Promise[T]{done: make(chan struct{})}
}

// settle records the outcome. It reports whether this call settled the promise.
func (p *Promise[T]) settle(v T, err error) bool {
	settled := false
	p.once.Do(func() {
		p.value, p.err = v, err
		if err != nil {
			p.state.Store(int32(stateRejected))
		} else {
			p.state.Store(int32(stateResolved))
		}
		close(p.done)
		settled = true
	})
	return settled
}

func (p *Promise[T]) resolve(v T) bool { return p.settle(v, nil) }

func (p *Promise[T]) reject(err error) bool {
	if err == nil {
		err = errNilReject
	}
	var zero T
	return p.settle(zero, err)
}

// Pending reports whether the promise has not settled yet.
func (p *Promise[T]) Pending() bool { return promiseState(p.state.Load()) == statePending }

// Resolved reports whether the promise settled with a value.
func (p *Promise[T]) Resolved() bool { return promiseState(p.state.Load()) == stateResolved }

// Rejected reports whether the promise settled with an error.
func (p *Promise[T]) Rejected() bool { return promiseState(p.state.Load()) == stateRejected }

// Done returns a channel closed once the promise settles.
func (p *Promise[T]) Done() <-chan struct{} { return p.done }

// Wait blocks until the promise settles.
func (p *Promise[T]) Wait() (T, error) {
	<-p.done
	return p.value, p.err
}

// Await blocks until the promise settles or ctx is done. A cancelled ctx does
// not affect the promise itself.
func (p *Promise[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Err returns the rejection error, or nil while pending or when resolved.
func (p *Promise[T]) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// PanicError wraps a value recovered from a panicking promise body.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("promise: panic: %v", e.Value)
}

func recoverInto[T any](p *Promise[T]) {
	if r := recover(); r != nil {
		p.reject(&PanicError{Value: r})
	}
}

// ============================================================================
// Constructors
// ============================================================================

// Go runs fn on a new goroutine and tracks its outcome.
func Go[T any](fn func() (T, error)) *Promise[T] {
	p := newPromise[T]()
	if fn == nil {
		p.reject(errNilFunc)
		return p
	}
	go func() {
		defer recoverInto(p)
		v, err := fn()
		p.settle(v, err)
	}()
	return p
}

// New runs executor synchronously with resolve and reject callbacks, which may
// be invoked later from any goroutine. Only the first call counts. A panic in
// executor rejects the promise instead of propagating.
func New[T any](executor func(resolve func(T), reject func(error))) *Promise[T] {
	p := newPromise[T]()
	if executor == nil {
		p.reject(errNilFunc)
		return p
	}
	func() {
		defer recoverInto(p)
		executor(func(v T) { p.resolve(v) }, func(err error) { p.reject(err) })
	}()
	return p
}

// Resolve returns an already resolved promise.
func Resolve[T any](v T) *Promise[T] {
	p := newPromise[T]()
	p.resolve(v)
	return p
}

// Reject returns an already rejected promise.
func Reject[T any](err error) *Promise[T] {
	p := newPromise[T]()
	p.reject(err)
	return p
}

// Delay resolves with v after d.
func Delay[T any](d time.Duration, v T) *Promise[T] {
	p := newPromise[T]()
	time.AfterFunc(d, func() { p.resolve(v) })
	return p
}

// Map derives a promise from the resolved value of p. Rejections pass through.
func Map[T, U any](p *Promise[T], fn func(T) (U, error)) *Promise[U] {
	if p == nil {
		return Reject[U](errNilPromise)
	}
	return Go(func() (U, error) {
		v, err := p.Wait()
		if err != nil {
			var zero U
			return zero, err
		}
		return fn(v)
	})
}

// ============================================================================
// Aggregates
// ============================================================================

// All resolves with every value in order once all promises resolve, or rejects
// with the first rejection. An empty input resolves immediately.
func All[T any](ps ...*Promise[T]) *Promise[[]T] {
	out := newPromise[[]T]()
	if len(ps) == 0 {
		out.resolve([]T{})
		return out
	}

	var (
		mu        sync.Mutex
		remaining = len(ps)
		values    = make([]T, len(ps))
	)
	for i, p := range ps {
		if p == nil {
			out.reject(errNilPromise)
			return out
		}
		go func(i int, p *Promise[T]) {
			v, err := p.Wait()
			if err != nil {
				out.reject(err)
				return
			}
			mu.Lock()
			values[i] = v
			remaining--
			last := remaining == 0
			mu.Unlock()
			if last {
				out.resolve(values)
			}
		}(i, p)
	}
	return out
}

// Race settles with whichever promise settles first. An empty input never settles.
func Race[T any](ps ...*Promise[T]) *Promise[T] {
	out := newPromise[T]()
	for _, p := range ps {
		if p == nil {
			out.reject(errNilPromise)
			return out
		}
		go func(p *Promise[T]) {
			v, err := p.Wait()
			out.settle(v, err)
		}(p)
	}
	return out
}

// ============================================================================
// Timeout
// ============================================================================

// Timed is a promise raced against a timer.
//
// Timer rejects with ErrTimeout only when it fires while Inner is still
// pending; once Inner settles first, Timer resolves. Whichever side settles
// Timer also settles Promise, so checking Timer tells a timeout apart from
// any other failure.
type Timed[T any] struct {
	*Promise[T]

	Inner *Promise[T]
	Timer *Promise[struct{}]
}

// TimedOut reports whether the call lost the race against its timer.
func (t *Timed[T]) TimedOut() bool { return t.Timer.Rejected() }

// Timeout races p against a timer of duration d. A non-positive d disables the
// timer; Timer then resolves together with p.
func Timeout[T any](p *Promise[T], d time.Duration) *Timed[T] {
	if p == nil {
		p = Reject[T](errNilPromise)
	}
	t := &Timed[T]{
		Promise: newPromise[T](),
		Inner:   p,
		Timer:   newPromise[struct{}](),
	}

	var timer *time.Timer
	if d > 0 {
		timer = time.AfterFunc(d, func() {
			if p.Pending() && t.Timer.reject(ErrTimeout) {
				t.Promise.reject(ErrTimeout)
			}
		})
	}

	go func() {
		v, err := p.Wait()
		if timer != nil {
			timer.Stop()
		}
		if t.Timer.resolve(struct{}{}) {
			t.Promise.settle(v, err)
		}
	}()
	return t
}

// TimeoutAll combines ps with All and races the result against d.
func TimeoutAll[T any](d time.Duration, ps ...*Promise[T]) *Timed[[]T] {
	return Timeout(All(ps...), d)
}

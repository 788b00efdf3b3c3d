package chatclient

import (
	"sync"
)

// Coalescer delivers only the outcome of the most recently submitted promise
// among overlapping submissions.
//
// Every Submit takes the next id from a monotonic sequence and appends it to
// the live list. When a submission settles it is accepted only if its id is
// still the last live id; accepting empties the list. Anything else is stale:
// its returned promise never settles, unless the coalescer was built with
// WithSuperseded, in which case it rejects with ErrSuperseded.
type Coalescer[T any] struct {
	mu         sync.Mutex
	seq        uint64
	live       []uint64
	superseded bool
}

// CoalescerOption configures a Coalescer.
type CoalescerOption func(*coalescerOptions)

type coalescerOptions struct {
	superseded bool
}

// WithSuperseded makes stale submissions reject with ErrSuperseded instead of
// staying pending forever.
func WithSuperseded() CoalescerOption {
	return func(o *coalescerOptions) { o.superseded = true }
}

// NewCoalescer creates an empty coalescer.
func NewCoalescer[T any](opts ...CoalescerOption) *Coalescer[T] {
	var o coalescerOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &Coalescer[T]{superseded: o.superseded}
}

// Submit registers p as the latest submission and returns the promise through
// which its outcome is delivered, if it wins.
//
// A nil p fails immediately and removes only its own id from the live list,
// leaving earlier submissions eligible. This differs from normal settlement,
// which empties the whole list.
func (c *Coalescer[T]) Submit(p *Promise[T]) *Promise[T] {
	c.mu.Lock()
	c.seq++
	id := c.seq
	c.live = append(c.live, id)
	c.mu.Unlock()

	out := newPromise[T]()
	if p == nil {
		c.drop(id)
		out.reject(errNilPromise)
		return out
	}

	go func() {
		v, err := p.Wait()
		if !c.accept(id) {
			if c.superseded {
				out.reject(ErrSuperseded)
			}
			return
		}
		out.settle(v, err)
	}()
	return out
}

// Pending returns the number of live submissions that can still win.
func (c *Coalescer[T]) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.live)
}

func (c *Coalescer[T]) accept(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := len(c.live); n == 0 || c.live[n-1] != id {
		return false
	}
	c.live = c.live[:0]
	return true
}

func (c *Coalescer[T]) drop(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, v := range c.live {
		if v == id {
			c.live = append(c.live[:i], c.live[i+1:]...)
			return
		}
	}
}

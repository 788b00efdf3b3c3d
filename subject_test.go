package chatclient

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjectReplaysLatest(t *testing.T) {
	s := NewSubject(1)
	s.next(2)

	var got []int
	unsub := s.Subscribe(func(v int) { got = append(got, v) })
	s.next(3)
	unsub()
	unsub()
	s.next(4)

	assert.Equal(t, []int{2, 3}, got)
	assert.Equal(t, 4, s.Value())
}

func TestSubjectWriteOrder(t *testing.T) {
	s := NewSubject(0)

	var mu sync.Mutex
	var got []int
	s.Subscribe(func(v int) {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
	})
	for i := 1; i <= 50; i++ {
		s.next(i)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 51)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestSubjectClose(t *testing.T) {
	s := NewSubject("a")
	calls := 0
	s.Subscribe(func(string) { calls++ })
	s.close()
	s.next("b")

	assert.Equal(t, 1, calls)
	assert.Equal(t, "b", s.Value())
}

func TestWaitForCurrentValue(t *testing.T) {
	s := NewSubject(true)
	p, _ := WaitForValue(context.Background(), s, true, time.Second)

	v, err := p.Wait()
	require.NoError(t, err)
	assert.True(t, v)
}

func TestWaitForLaterValue(t *testing.T) {
	s := NewSubject(0)
	p, _ := WaitFor(context.Background(), s, func(v int) bool { return v >= 3 }, time.Second)

	for i := 1; i <= 5; i++ {
		s.next(i)
	}
	v, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	assert.Eventually(t, func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return len(s.subs) == 0
	}, time.Second, 5*time.Millisecond, "subscription released once settled")
}

func TestWaitForTimeout(t *testing.T) {
	s := NewSubject(false)
	p, _ := WaitForValue(context.Background(), s, true, 20*time.Millisecond)

	_, err := p.Wait()
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestWaitForUnsubscribe(t *testing.T) {
	s := NewSubject(false)
	p, unsubscribe := WaitForValue(context.Background(), s, true, 0)
	unsubscribe()

	_, err := p.Wait()
	assert.ErrorIs(t, err, context.Canceled)
	unsubscribe()
}

func TestWaitForContext(t *testing.T) {
	s := NewSubject(false)
	ctx, cancel := context.WithCancel(context.Background())
	p, _ := WaitForValue(ctx, s, true, 0)
	cancel()

	_, err := p.Wait()
	assert.ErrorIs(t, err, context.Canceled)
}

package chatclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Promise
// ============================================================================

func TestPromiseGoResolves(t *testing.T) {
	p := Go(func() (int, error) { return 42, nil })

	v, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.True(t, p.Resolved())
	assert.False(t, p.Pending())
	assert.False(t, p.Rejected())
	assert.NoError(t, p.Err())
}

func TestPromiseGoRejects(t *testing.T) {
	boom := errors.New("boom")
	p := Go(func() (int, error) { return 0, boom })

	_, err := p.Wait()
	assert.ErrorIs(t, err, boom)
	assert.True(t, p.Rejected())
	assert.ErrorIs(t, p.Err(), boom)
}

func TestPromisePanicRejects(t *testing.T) {
	p := Go(func() (int, error) { panic("kaboom") })

	_, err := p.Wait()
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "kaboom", pe.Value)
}

func TestPromisePendingFlags(t *testing.T) {
	release := make(chan struct{})
	p := Go(func() (string, error) {
		<-release
		return "done", nil
	})

	assert.True(t, p.Pending())
	assert.NoError(t, p.Err())
	close(release)

	v, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, "done", v)
}

func TestPromiseNewFirstSettlementWins(t *testing.T) {
	p := New(func(resolve func(int), reject func(error)) {
		resolve(1)
		resolve(2)
		reject(errors.New("late"))
	})

	v, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.True(t, p.Resolved())
}

func TestPromiseNewAsyncResolve(t *testing.T) {
	p := New(func(resolve func(string), _ func(error)) {
		go func() {
			time.Sleep(10 * time.Millisecond)
			resolve("later")
		}()
	})
	assert.True(t, p.Pending())

	v, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, "later", v)
}

func TestPromiseRejectNilError(t *testing.T) {
	p := Reject[int](nil)
	assert.True(t, p.Rejected())
	assert.Error(t, p.Err())
}

func TestPromiseNilFunc(t *testing.T) {
	assert.True(t, Go[int](nil).Rejected())
	assert.True(t, New[int](nil).Rejected())
}

func TestPromiseAwaitContext(t *testing.T) {
	p := newPromise[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, p.Pending(), "cancelled await leaves the promise alone")
}

func TestMap(t *testing.T) {
	p := Map(Resolve(21), func(v int) (int, error) { return v * 2, nil })
	v, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	boom := errors.New("boom")
	called := false
	q := Map(Reject[int](boom), func(v int) (int, error) {
		called = true
		return v, nil
	})
	_, err = q.Wait()
	assert.ErrorIs(t, err, boom)
	assert.False(t, called)
}

// ============================================================================
// Aggregates
// ============================================================================

func TestAllKeepsOrder(t *testing.T) {
	p := All(
		Delay(30*time.Millisecond, "a"),
		Delay(10*time.Millisecond, "b"),
		Resolve("c"),
	)
	v, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, v)
}

func TestAllRejectsOnFirstFailure(t *testing.T) {
	boom := errors.New("boom")
	p := All(Delay(time.Second, 1), Reject[int](boom))

	_, err := p.Wait()
	assert.ErrorIs(t, err, boom)
}

func TestAllEmpty(t *testing.T) {
	v, err := All[int]().Wait()
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestRace(t *testing.T) {
	p := Race(Delay(200*time.Millisecond, "slow"), Delay(10*time.Millisecond, "fast"))
	v, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, "fast", v)
}

// ============================================================================
// Timeout
// ============================================================================

func TestTimeoutFires(t *testing.T) {
	inner := newPromise[int]()
	timed := Timeout(inner, 20*time.Millisecond)

	_, err := timed.Wait()
	assert.ErrorIs(t, err, ErrTimeout)
	assert.True(t, IsTimeout(err))
	assert.True(t, timed.TimedOut())
	assert.True(t, timed.Timer.Rejected())
	assert.True(t, inner.Pending(), "timer does not settle the inner promise")
}

func TestTimeoutInnerWins(t *testing.T) {
	timed := Timeout(Delay(5*time.Millisecond, "ok"), time.Second)

	v, err := timed.Wait()
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	_, err = timed.Timer.Wait()
	assert.NoError(t, err)
	assert.False(t, timed.TimedOut())
}

func TestTimeoutInnerRejectionIsNotTimeout(t *testing.T) {
	boom := errors.New("boom")
	timed := Timeout(Reject[int](boom), time.Second)

	_, err := timed.Wait()
	assert.ErrorIs(t, err, boom)
	_, _ = timed.Timer.Wait()
	assert.False(t, timed.TimedOut())
}

func TestTimeoutOutcomeMatchesTimer(t *testing.T) {
	for i := 0; i < 200; i++ {
		timed := Timeout(Delay(time.Millisecond, i), time.Millisecond)
		v, err := timed.Wait()
		if timed.TimedOut() {
			require.ErrorIs(t, err, ErrTimeout, "run %d", i)
			continue
		}
		require.NoError(t, err, "run %d", i)
		require.Equal(t, i, v)
		require.True(t, timed.Timer.Resolved())
	}
}

func TestTimeoutDisabled(t *testing.T) {
	timed := Timeout(Delay(30*time.Millisecond, 7), 0)
	v, err := timed.Wait()
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestTimeoutAll(t *testing.T) {
	timed := TimeoutAll(20*time.Millisecond, Resolve(1), newPromise[int]())
	_, err := timed.Wait()
	assert.ErrorIs(t, err, ErrTimeout)
	assert.True(t, timed.TimedOut())
}

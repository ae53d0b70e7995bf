package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startLoop(t *testing.T) *Loop {
	t.Helper()
	l := NewLoop(16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	require.Eventually(t, l.Running, time.Second, time.Millisecond)
	return l
}

func TestLoopRunsTasksInOrder(t *testing.T) {
	l := startLoop(t)

	var got []int
	for i := 0; i < 10; i++ {
		i := i
		require.NoError(t, l.Post(func() { got = append(got, i) }))
	}
	require.NoError(t, l.Call(context.Background(), func() {}))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestLoopSurvivesPanics(t *testing.T) {
	l := startLoop(t)

	require.NoError(t, l.Post(func() { panic("boom") }))
	ran := false
	require.NoError(t, l.Call(context.Background(), func() { ran = true }))
	assert.True(t, ran)
}

func TestLoopIdleHooks(t *testing.T) {
	l := NewLoop(16)

	var mu sync.Mutex
	var trace []string
	record := func(s string) func() {
		return func() {
			mu.Lock()
			defer mu.Unlock()
			trace = append(trace, s)
		}
	}
	l.OnIdle(record("idle"))

	// Queued before Serve so both tasks land in the same batch
	require.NoError(t, l.Post(record("a")))
	require.NoError(t, l.Post(record("b")))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Serve(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(trace) == 3
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "idle"}, trace)
}

func TestLoopClose(t *testing.T) {
	l := NewLoop(1)
	l.Close()
	l.Close()

	assert.ErrorIs(t, l.Post(func() {}), ErrLoopClosed)
	assert.ErrorIs(t, l.Call(context.Background(), func() {}), ErrLoopClosed)
	assert.NoError(t, l.Serve(context.Background()))
}

func TestLoopCallHonoursContext(t *testing.T) {
	l := NewLoop(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// Nothing serves the loop, so the call can only end through ctx
	err := l.Call(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoopAfterFunc(t *testing.T) {
	t.Run("fires on the loop", func(t *testing.T) {
		l := startLoop(t)
		fired := make(chan struct{})
		l.AfterFunc(5*time.Millisecond, func() { close(fired) })

		select {
		case <-fired:
		case <-time.After(time.Second):
			t.Fatal("timer did not fire")
		}
	})

	t.Run("stop before firing", func(t *testing.T) {
		l := startLoop(t)
		fired := make(chan struct{}, 1)
		timer := l.AfterFunc(50*time.Millisecond, func() { fired <- struct{}{} })

		assert.True(t, timer.Stop())
		assert.False(t, timer.Stop(), "second stop reports nothing to cancel")

		time.Sleep(100 * time.Millisecond)
		require.NoError(t, l.Call(context.Background(), func() {}))
		assert.Empty(t, fired)
	})

	t.Run("stop while queued", func(t *testing.T) {
		l := NewLoop(4)
		fired := false
		timer := l.AfterFunc(time.Millisecond, func() { fired = true })

		// The runtime timer posts the callback, but the loop is not serving yet
		require.Eventually(t, func() bool { return len(l.tasks) == 1 }, time.Second, time.Millisecond)
		assert.True(t, timer.Stop())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = l.Serve(ctx) }()
		require.NoError(t, l.Call(ctx, func() {}))
		assert.False(t, fired)
	})

	t.Run("stop after firing", func(t *testing.T) {
		l := startLoop(t)
		done := make(chan struct{})
		timer := l.AfterFunc(time.Millisecond, func() { close(done) })
		<-done
		assert.False(t, timer.Stop())
	})
}

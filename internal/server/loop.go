package server

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bnema/waycore/internal/input"
	"github.com/bnema/waycore/internal/logger"
)

// ErrLoopClosed is returned when work is posted to a closed loop.
var ErrLoopClosed = errors.New("reactor loop closed")

// Loop is the reactor: a single goroutine running every piece of protocol
// and input work in the order it was posted.
type Loop struct {
	tasks  chan func()
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	idle   []func()
	active atomic.Bool
}

var _ input.Scheduler = (*Loop)(nil)

// NewLoop creates a loop with room for queue pending tasks.
func NewLoop(queue int) *Loop {
	if queue < 1 {
		queue = 1
	}
	return &Loop{
		tasks:  make(chan func(), queue),
		closed: make(chan struct{}),
	}
}

func (l *Loop) String() string {
	return "reactor"
}

// Post queues fn to run on the loop. It blocks while the queue is full and
// fails once the loop is closed.
func (l *Loop) Post(fn func()) error {
	select {
	case <-l.closed:
		return ErrLoopClosed
	default:
	}
	select {
	case l.tasks <- fn:
		return nil
	case <-l.closed:
		return ErrLoopClosed
	}
}

// Call runs fn on the loop and waits for it to finish.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := l.Post(func() {
		defer close(done)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.closed:
		return ErrLoopClosed
	}
}

// OnIdle registers fn to run on the loop each time the queue drains.
func (l *Loop) OnIdle(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.idle = append(l.idle, fn)
}

// Running reports whether Serve is currently processing tasks.
func (l *Loop) Running() bool {
	return l.active.Load()
}

// Close stops accepting work. Tasks still queued are dropped.
func (l *Loop) Close() {
	l.once.Do(func() { close(l.closed) })
}

// Serve runs tasks until ctx is cancelled or the loop is closed.
func (l *Loop) Serve(ctx context.Context) error {
	l.active.Store(true)
	defer l.active.Store(false)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.closed:
			return nil
		case fn := <-l.tasks:
			l.run(fn)
		drain:
			for {
				select {
				case fn := <-l.tasks:
					l.run(fn)
				default:
					break drain
				}
			}
			l.runIdle()
		}
	}
}

// run executes one task. A panicking task is logged and the loop carries on.
func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[REACTOR] task panicked: %v\n%s", r, debug.Stack())
		}
	}()
	fn()
}

func (l *Loop) runIdle() {
	l.mu.Lock()
	idle := append([]func(){}, l.idle...)
	l.mu.Unlock()
	for _, fn := range idle {
		l.run(fn)
	}
}

// AfterFunc runs fn on the loop once d has elapsed.
func (l *Loop) AfterFunc(d time.Duration, fn func()) input.Timer {
	t := &loopTimer{}
	t.timer = time.AfterFunc(d, func() {
		err := l.Post(func() {
			if t.cancelled.Load() {
				return
			}
			t.fired.Store(true)
			fn()
		})
		if err != nil {
			logger.Debugf("[REACTOR] timer dropped: %v", err)
		}
	})
	return t
}

// loopTimer can still be cancelled after the runtime timer fired, as long
// as the callback has not run on the loop yet.
type loopTimer struct {
	timer     *time.Timer
	cancelled atomic.Bool
	fired     atomic.Bool
}

func (t *loopTimer) Stop() bool {
	t.timer.Stop()
	if t.fired.Load() {
		return false
	}
	return !t.cancelled.Swap(true)
}

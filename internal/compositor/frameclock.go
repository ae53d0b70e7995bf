package compositor

import (
	"time"

	"github.com/bnema/waycore/internal/input"
)

// FrameClock presents the scene at the output refresh rate, standing in
// for a renderer's vblank.
type FrameClock struct {
	c        *Compositor
	sched    input.Scheduler
	interval time.Duration
	timer    input.Timer
	stopped  bool
}

// StartFrameClock starts presenting on sched, which must run callbacks on
// the reactor.
func (c *Compositor) StartFrameClock(sched input.Scheduler) *FrameClock {
	refresh := c.output.RefreshMHz
	if refresh <= 0 {
		refresh = 60000
	}
	f := &FrameClock{
		c:        c,
		sched:    sched,
		interval: time.Duration(int64(time.Second) * 1000 / int64(refresh)),
	}
	f.timer = sched.AfterFunc(f.interval, f.tick)
	return f
}

// Interval returns the time between frames.
func (f *FrameClock) Interval() time.Duration {
	return f.interval
}

func (f *FrameClock) tick() {
	if f.stopped {
		return
	}
	f.c.Present()
	f.timer = f.sched.AfterFunc(f.interval, f.tick)
}

// Stop cancels the next frame. It must run on the reactor.
func (f *FrameClock) Stop() {
	f.stopped = true
	if f.timer != nil {
		f.timer.Stop()
	}
}

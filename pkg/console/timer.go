package console

import (
	"sort"
	"sync"
	"time"
)

// Clock schedules the decoder's disambiguation timeouts. The session uses
// the real clock; tests and trace replay substitute a SimClock so timing
// behavior is reproduced without sleeping.
type Clock interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a cancellable pending timeout. Stop reports whether the call
// prevented the callback from running.
type Timer interface {
	Stop() bool
}

type sysClock struct{}

func (sysClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// SystemClock returns the wall clock.
func SystemClock() Clock {
	return sysClock{}
}

// SimClock is a manually advanced clock. Advance moves simulated time
// forward and fires due timers in deadline order on the calling goroutine.
type SimClock struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*simTimer
}

type simTimer struct {
	clock    *SimClock
	deadline time.Duration
	seq      int
	fn       func()
	stopped  bool
	fired    bool
}

// NewSimClock returns a simulated clock starting at zero.
func NewSimClock() *SimClock {
	return &SimClock{}
}

// AfterFunc registers fn to fire once simulated time has advanced by d.
func (c *SimClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &simTimer{clock: c, deadline: c.now + d, seq: c.seq, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves simulated time forward by d, firing every timer whose
// deadline is reached, in deadline order.
func (c *SimClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()

	for {
		t := c.nextDue(target)
		if t == nil {
			break
		}
		t.fn()
	}

	c.mu.Lock()
	c.now = target
	c.mu.Unlock()
}

// nextDue pops the earliest unexpired timer with deadline <= target, also
// advancing now to its deadline so callbacks observe consistent time.
func (c *SimClock) nextDue(target time.Duration) *simTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	sort.SliceStable(c.timers, func(i, j int) bool {
		if c.timers[i].deadline != c.timers[j].deadline {
			return c.timers[i].deadline < c.timers[j].deadline
		}
		return c.timers[i].seq < c.timers[j].seq
	})
	for _, t := range c.timers {
		if t.stopped || t.fired {
			continue
		}
		if t.deadline > target {
			break
		}
		t.fired = true
		if t.deadline > c.now {
			c.now = t.deadline
		}
		return t
	}
	return nil
}

func (t *simTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

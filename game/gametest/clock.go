package gametest

import (
	"sync"
	"time"
)

// Clock is a fake periodic scheduler whose time moves only through Advance.
type Clock struct {
	mu    sync.Mutex
	now   time.Duration
	tasks []*task
}

type task struct {
	every   time.Duration
	next    time.Duration
	f       func()
	stopped bool
}

// Every schedules f to run every d of fake time.
func (c *Clock) Every(d time.Duration, f func()) (stop func()) {
	if d <= 0 {
		panic("gametest: non-positive interval")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &task{every: d, next: c.now + d, f: f}
	c.tasks = append(c.tasks, t)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		t.stopped = true
	}
}

// Advance moves time forward by d, running due tasks in deadline order on the
// calling goroutine.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	end := c.now + d
	for {
		var t *task
		for _, u := range c.tasks {
			if u.stopped || u.next > end {
				continue
			}
			if t == nil || u.next < t.next {
				t = u
			}
		}
		if t == nil {
			break
		}
		c.now = t.next
		t.next += t.every
		c.mu.Unlock()
		t.f()
		c.mu.Lock()
	}
	c.now = end
	c.mu.Unlock()
}

// Active returns the number of scheduled tasks that have not been stopped.
func (c *Clock) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.tasks {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Intervals returns the periods of the active tasks in scheduling order.
func (c *Clock) Intervals() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var r []time.Duration
	for _, t := range c.tasks {
		if !t.stopped {
			r = append(r, t.every)
		}
	}
	return r
}

// Package sim provides the discrete-event simulation clock. Virtual time
// advances by draining a priority queue of armed timers; every actor in a run
// executes on the clock's goroutine, one event at a time.
package sim

import (
	"sync"
	"time"

	"github.com/emirpasic/gods/trees/binaryheap"
)

// Task is a timer continuation, invoked with the virtual time it fired at.
type Task func(now time.Time)

type timer struct {
	at  time.Time
	seq uint64
	fn  Task
}

// byWakeInstant orders timers by wake instant, breaking ties by arming order
// so same-instant events run FIFO.
func byWakeInstant(a, b interface{}) int {
	ta, tb := a.(*timer), b.(*timer)
	switch {
	case ta.at.Before(tb.at):
		return -1
	case ta.at.After(tb.at):
		return 1
	case ta.seq < tb.seq:
		return -1
	case ta.seq > tb.seq:
		return 1
	}
	return 0
}

// Clock owns virtual time and the timer wheel. Arming is safe from any
// goroutine; Run drains events on the calling goroutine.
type Clock struct {
	mu    sync.Mutex
	now   time.Time
	queue *binaryheap.Heap
	seq   uint64
}

// New creates a clock starting at the given virtual instant.
func New(start time.Time) *Clock {
	return &Clock{
		now:   start,
		queue: binaryheap.NewWith(byWakeInstant),
	}
}

// Now returns the current virtual time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// At arms fn to run at the given virtual instant. Instants in the past run at
// the current time, after already-queued events for that instant.
func (c *Clock) At(at time.Time, fn Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if at.Before(c.now) {
		at = c.now
	}
	c.seq++
	c.queue.Push(&timer{at: at, seq: c.seq, fn: fn})
}

// After arms fn to run d after the current virtual time.
func (c *Clock) After(d time.Duration, fn Task) {
	c.At(c.Now().Add(d), fn)
}

// Step runs the earliest armed timer, advancing virtual time to its wake
// instant. It returns false when no timer is armed.
func (c *Clock) Step() bool {
	c.mu.Lock()
	v, ok := c.queue.Pop()
	if !ok {
		c.mu.Unlock()
		return false
	}
	t := v.(*timer)
	if t.at.After(c.now) {
		c.now = t.at
	}
	now := c.now
	c.mu.Unlock()

	t.fn(now)
	return true
}

// RunUntil drains events up to and including the given instant. Events armed
// past the horizon stay queued.
func (c *Clock) RunUntil(end time.Time) {
	for {
		c.mu.Lock()
		v, ok := c.queue.Peek()
		if !ok || v.(*timer).at.After(end) {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
		c.Step()
	}
}

// Run drains every armed event, including ones armed while draining.
func (c *Clock) Run() {
	for c.Step() {
	}
}

// NextWake returns the earliest armed wake instant, or false when no timer
// is armed.
func (c *Clock) NextWake() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.queue.Peek()
	if !ok {
		return time.Time{}, false
	}
	return v.(*timer).at, true
}

// Pending returns the number of armed timers.
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Size()
}

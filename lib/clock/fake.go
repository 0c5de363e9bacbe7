// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"slices"
	"sync"
	"time"
)

// Fake returns a FakeClock initialized to initial. FakeClock is safe
// for concurrent use.
func Fake(initial time.Time) *FakeClock {
	clock := &FakeClock{current: initial}
	clock.changed = sync.NewCond(&clock.mu)
	return clock
}

// FakeClock is a deterministic Clock. Time advances only when Advance
// is called. Do not call Advance from within an AfterFunc callback.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	pending []*fakeTimer
	changed *sync.Cond

	// sequence breaks deadline ties in registration order.
	sequence uint64
}

type fakeTimer struct {
	deadline time.Time
	sequence uint64

	// Exactly one of channel or callback is set.
	channel  chan time.Time
	callback func()
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// After returns a channel that receives once the clock has advanced by d.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	channel := make(chan time.Time, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if d <= 0 {
		channel <- c.current
		return channel
	}
	c.addLocked(&fakeTimer{deadline: c.current.Add(d), channel: channel})
	return channel
}

// AfterFunc registers f to run during the Advance call that reaches
// now+d. If d <= 0, f runs before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &fakeTimer{deadline: c.current.Add(d), callback: f}
	c.addLocked(timer)
	return &Timer{stop: func() bool { return c.remove(timer) }}
}

func (c *FakeClock) addLocked(timer *fakeTimer) {
	c.sequence++
	timer.sequence = c.sequence
	c.pending = append(c.pending, timer)
	c.changed.Broadcast()
}

func (c *FakeClock) remove(timer *fakeTimer) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	index := slices.Index(c.pending, timer)
	if index < 0 {
		return false
	}
	c.pending = slices.Delete(c.pending, index, index+1)
	return true
}

// Advance moves the clock forward by d and fires every timer whose
// deadline is at or before the new time, in deadline order. Timers
// registered by callbacks during Advance fire too if they fall inside
// the window.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.current.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.popExpiredLocked(target)
		if next == nil {
			c.current = target
			c.mu.Unlock()
			return
		}
		// Time observed by the callback is the timer's own deadline.
		if next.deadline.After(c.current) {
			c.current = next.deadline
		}
		now := c.current
		c.mu.Unlock()

		if next.callback != nil {
			next.callback()
		} else {
			select {
			case next.channel <- now:
			default:
			}
		}
	}
}

func (c *FakeClock) popExpiredLocked(target time.Time) *fakeTimer {
	best := -1
	for i, timer := range c.pending {
		if timer.deadline.After(target) {
			continue
		}
		if best < 0 || timer.deadline.Before(c.pending[best].deadline) ||
			(timer.deadline.Equal(c.pending[best].deadline) && timer.sequence < c.pending[best].sequence) {
			best = i
		}
	}
	if best < 0 {
		return nil
	}
	timer := c.pending[best]
	c.pending = slices.Delete(c.pending, best, best+1)
	return timer
}

// WaitForTimers blocks until at least n timers are pending.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.pending) < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of registered timers that have not
// fired or been stopped.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

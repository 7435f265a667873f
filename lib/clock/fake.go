// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"slices"
	"sync"
	"time"
)

// Fake returns a FakeClock standing at start. Time moves only when
// Advance is called.
func Fake(start time.Time) *FakeClock {
	fake := &FakeClock{now: start}
	fake.changed = sync.NewCond(&fake.mu)
	return fake
}

// FakeClock is a Clock under test control. It is safe for concurrent
// use. AfterFunc callbacks run synchronously inside Advance, so a
// callback must not call Advance or Sleep on the same clock.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*alarm
	changed *sync.Cond
}

// alarm is one registered After, Sleep, AfterFunc or ticker.
type alarm struct {
	due      time.Time
	deliver  chan time.Time // nil for AfterFunc
	callback func()         // nil unless AfterFunc
	every    time.Duration  // non-zero for tickers
	done     bool           // fired (one-shot) or stopped
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After registers a one-shot delivery d from now.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	deliver := make(chan time.Time, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if d <= 0 {
		deliver <- c.now
		return deliver
	}
	c.registerLocked(&alarm{due: c.now.Add(d), deliver: deliver})
	return deliver
}

// AfterFunc registers f to run inside the Advance call that crosses
// d. A non-positive d runs f before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stop: func() bool { return false }}
	}
	c.mu.Lock()
	entry := &alarm{due: c.now.Add(d), callback: f}
	c.registerLocked(entry)
	c.mu.Unlock()
	return &Timer{stop: func() bool { return c.cancel(entry) }}
}

// NewTicker registers a repeating alarm.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker interval")
	}
	deliver := make(chan time.Time, 1)
	c.mu.Lock()
	entry := &alarm{due: c.now.Add(d), deliver: deliver, every: d}
	c.registerLocked(entry)
	c.mu.Unlock()
	return &Ticker{C: deliver, stop: func() { c.cancel(entry) }}
}

// Sleep blocks until the clock is advanced past d.
func (c *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-c.After(d)
}

// Advance moves time forward by d and fires every alarm that falls due,
// earliest first. Tickers fire once per elapsed interval; deliveries to
// a full channel are dropped.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now
	c.mu.Unlock()

	for {
		due := c.takeDue(target)
		if len(due) == 0 {
			return
		}
		for _, entry := range due {
			if entry.callback != nil {
				entry.callback()
				continue
			}
			select {
			case entry.deliver <- target:
			default:
			}
		}
	}
}

// takeDue removes due alarms from the pending list, re-arms tickers,
// and returns the alarms to fire in due order.
func (c *FakeClock) takeDue(target time.Time) []*alarm {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due, kept []*alarm
	for _, entry := range c.pending {
		switch {
		case entry.done:
		case entry.due.After(target):
			kept = append(kept, entry)
		default:
			due = append(due, entry)
		}
	}
	slices.SortStableFunc(due, func(a, b *alarm) int { return a.due.Compare(b.due) })

	for _, entry := range due {
		if entry.every > 0 {
			entry.due = entry.due.Add(entry.every)
			kept = append(kept, entry)
		} else {
			entry.done = true
		}
	}
	c.pending = kept
	return due
}

func (c *FakeClock) cancel(entry *alarm) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry.done {
		return false
	}
	entry.done = true
	return true
}

func (c *FakeClock) registerLocked(entry *alarm) {
	c.pending = append(c.pending, entry)
	c.changed.Broadcast()
}

// WaitForTimers blocks until at least n alarms are pending.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pendingLocked() < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of armed alarms.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked()
}

func (c *FakeClock) pendingLocked() int {
	count := 0
	for _, entry := range c.pending {
		if !entry.done {
			count++
		}
	}
	return count
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"slices"
	"sync"
	"time"
)

// Fake returns a FakeClock standing still at initial.
func Fake(initial time.Time) *FakeClock {
	fake := &FakeClock{now: initial}
	fake.armed = sync.NewCond(&fake.mu)
	return fake
}

// FakeClock is a Clock that only moves when told to. Safe for
// concurrent use. Do not call Sleep or Advance from inside an AfterFunc
// callback.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	seq     uint64
	pending []*fakeTimer

	// armed is signalled whenever pending changes.
	armed *sync.Cond
}

// fakeTimer is one After channel or AfterFunc callback. Timers with
// equal deadlines fire in the order they were armed.
type fakeTimer struct {
	deadline time.Time
	seq      uint64
	channel  chan time.Time
	callback func()
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.now
	} else {
		c.armLocked(&fakeTimer{deadline: c.now.Add(d), channel: channel})
	}
	return channel
}

func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stopFunc: func() bool { return false }}
	}

	c.mu.Lock()
	timer := &fakeTimer{deadline: c.now.Add(d), callback: f}
	c.armLocked(timer)
	c.mu.Unlock()

	return &Timer{stopFunc: func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.disarmLocked(timer)
	}}
}

func (c *FakeClock) Sleep(d time.Duration) {
	if d > 0 {
		<-c.After(d)
	}
}

// Advance moves the clock forward by d. Timers due within the window
// fire one at a time in deadline order, with Now reading each timer's
// deadline while it fires. Timers armed by a callback fire in the same
// call when they fall inside the window.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		timer := c.popDueLocked(target)
		if timer == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = timer.deadline
		c.mu.Unlock()

		if timer.callback != nil {
			timer.callback()
		} else {
			timer.channel <- timer.deadline
		}
	}
}

// AdvanceTo moves the clock to instant. Instants in the past are a
// no-op.
func (c *FakeClock) AdvanceTo(instant time.Time) {
	if d := instant.Sub(c.Now()); d > 0 {
		c.Advance(d)
	}
}

// WaitForTimers blocks until at least n timers are pending. Tests use
// it to let another goroutine arm its timer before advancing.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.pending) < n {
		c.armed.Wait()
	}
}

// PendingCount returns the number of armed timers.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// NextDeadline returns the earliest pending deadline, if any.
func (c *FakeClock) NextDeadline() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return time.Time{}, false
	}
	return c.pending[0].deadline, true
}

// armLocked inserts timer keeping pending sorted by (deadline, seq).
func (c *FakeClock) armLocked(timer *fakeTimer) {
	c.seq++
	timer.seq = c.seq
	index, _ := slices.BinarySearchFunc(c.pending, timer, compareTimers)
	c.pending = slices.Insert(c.pending, index, timer)
	c.armed.Broadcast()
}

func (c *FakeClock) disarmLocked(timer *fakeTimer) bool {
	index := slices.Index(c.pending, timer)
	if index < 0 {
		return false
	}
	c.pending = slices.Delete(c.pending, index, index+1)
	c.armed.Broadcast()
	return true
}

func (c *FakeClock) popDueLocked(target time.Time) *fakeTimer {
	if len(c.pending) == 0 || c.pending[0].deadline.After(target) {
		return nil
	}
	timer := c.pending[0]
	c.pending = slices.Delete(c.pending, 0, 1)
	c.armed.Broadcast()
	return timer
}

func compareTimers(a, b *fakeTimer) int {
	if order := a.deadline.Compare(b.deadline); order != 0 {
		return order
	}
	switch {
	case a.seq < b.seq:
		return -1
	case a.seq > b.seq:
		return 1
	}
	return 0
}

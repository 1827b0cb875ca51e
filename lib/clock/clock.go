// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the time source handed to every component that waits.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives once d has elapsed. If
	// d <= 0 the channel is ready immediately.
	After(d time.Duration) <-chan time.Time

	// AfterFunc calls f once d has elapsed. If d <= 0, f runs
	// immediately: in a new goroutine for Real, synchronously for Fake.
	AfterFunc(d time.Duration, f func()) *Timer

	// Sleep blocks for at least d.
	Sleep(d time.Duration)
}

// Timer is a pending AfterFunc call.
type Timer struct {
	stopFunc func() bool
}

// Stop cancels the pending call. It returns false if the call already
// ran or was stopped before.
func (t *Timer) Stop() bool { return t.stopFunc() }

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	timer := time.AfterFunc(d, f)
	return &Timer{stopFunc: timer.Stop}
}

func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

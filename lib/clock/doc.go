// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source so report schedules
// and retry loops can be tested without waiting on the wall clock.
//
// Production code holds a [Clock] and calls it instead of time.Now,
// time.After, time.AfterFunc or time.Sleep. [Real] forwards to the time
// package. [Fake] starts at a fixed instant and moves only when a test
// calls [FakeClock.Advance] or [FakeClock.AdvanceTo]:
//
//	fake := clock.Fake(time.Date(2026, 3, 10, 18, 0, 0, 0, moscow))
//	scheduler := schedule.New(schedule.Config{Clock: fake, ...})
//	scheduler.Start(ctx)
//	fake.WaitForTimers(2)   // daily and monthly timers armed
//	fake.Advance(time.Hour) // the 19:00 report fires synchronously
//
// AfterFunc callbacks on a FakeClock run synchronously inside Advance,
// in deadline order. A callback may arm new timers; those that are
// already due fire within the same Advance.
package clock

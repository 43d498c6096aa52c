// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package clock

import (
	"sync"
	"time"
)

// FakeClock is a deterministic Clock for tests.
//
// # Description
//
// Time only moves when Advance is called. Pending waiters (After
// channels and AfterFunc callbacks) fire in deadline order on the
// goroutine calling Advance, with Now() set to each waiter's deadline
// at the moment it fires. Callbacks may schedule further timers; a
// newly scheduled timer whose deadline falls inside the window still
// being advanced fires within the same Advance call.
//
// # Thread Safety
//
// Safe for concurrent use. Callbacks run without the internal lock
// held, so they may call back into the clock freely.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*fakeWaiter
}

type fakeWaiter struct {
	deadline time.Time
	ch       chan time.Time // After waiters
	fn       func()         // AfterFunc waiters
	fired    bool
	stopped  bool
}

// Fake creates a FakeClock starting at the given instant.
//
// # Inputs
//
//   - initial: The starting value of Now(). Tests typically use a fixed
//     instant so timestamps are reproducible.
//
// # Outputs
//
//   - *FakeClock: Ready to use; no background goroutines are started.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{now: initial}
}

var _ Clock = (*FakeClock)(nil)

// Now returns the simulated current time.
func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// After returns a channel that receives the simulated time once Advance
// moves past d.
func (f *FakeClock) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	w := &fakeWaiter{
		deadline: f.now.Add(d),
		ch:       make(chan time.Time, 1),
	}
	f.waiters = append(f.waiters, w)
	return w.ch
}

// AfterFunc schedules fn to run when Advance moves past d.
//
// The returned Timer supports Stop and Reset; Reset re-activates a
// timer that has already fired, matching time.Timer behavior.
func (f *FakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	w := &fakeWaiter{
		deadline: f.now.Add(d),
		fn:       fn,
	}
	f.waiters = append(f.waiters, w)
	return &fakeTimer{clock: f, w: w}
}

// Sleep blocks until another goroutine advances the clock past d.
func (f *FakeClock) Sleep(d time.Duration) {
	<-f.After(d)
}

// Advance moves the simulated clock forward by d, firing every pending
// waiter whose deadline falls within the window.
//
// # Description
//
// Waiters fire one at a time in deadline order. AfterFunc callbacks run
// synchronously on the calling goroutine, so by the time Advance
// returns every due callback has completed. After channels receive
// their deadline (buffered, never blocking).
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)

	for {
		w := f.nextDueLocked(target)
		if w == nil {
			f.now = target
			f.mu.Unlock()
			return
		}

		if w.deadline.After(f.now) {
			f.now = w.deadline
		}
		w.fired = true
		fn, ch, at := w.fn, w.ch, f.now
		f.mu.Unlock()

		if fn != nil {
			fn()
		} else if ch != nil {
			ch <- at
		}

		f.mu.Lock()
	}
}

// nextDueLocked returns the pending waiter with the earliest deadline
// at or before target, or nil. Caller holds f.mu.
func (f *FakeClock) nextDueLocked(target time.Time) *fakeWaiter {
	var due *fakeWaiter
	for _, w := range f.waiters {
		if w.fired || w.stopped || w.deadline.After(target) {
			continue
		}
		if due == nil || w.deadline.Before(due.deadline) {
			due = w
		}
	}
	return due
}

// PendingTimers reports how many waiters are armed and not yet fired.
//
// Useful for asserting that a debounced component armed (or cancelled)
// its timer as expected.
func (f *FakeClock) PendingTimers() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, w := range f.waiters {
		if !w.fired && !w.stopped {
			n++
		}
	}
	return n
}

// -----------------------------------------------------------------------------
// Fake timer handle
// -----------------------------------------------------------------------------

type fakeTimer struct {
	clock *FakeClock
	w     *fakeWaiter
}

// Stop cancels the pending timer, reporting whether it was still armed.
func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	pending := !t.w.fired && !t.w.stopped
	t.w.stopped = true
	return pending
}

// Reset re-arms the timer d past the current simulated time, reporting
// whether it was still pending beforehand.
func (t *fakeTimer) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	pending := !t.w.fired && !t.w.stopped
	t.w.deadline = t.clock.now.Add(d)
	t.w.fired = false
	t.w.stopped = false
	return pending
}

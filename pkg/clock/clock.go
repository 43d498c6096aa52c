// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package clock abstracts wall-clock time behind an injectable interface.
//
// # Description
//
// Components that schedule delayed work (coalescing timers, lock expiry,
// debounced reloads) take a Clock instead of calling the time package
// directly. Production code uses System(); tests use Fake() and drive
// time forward deterministically with Advance, so no test ever sleeps.
//
// # Basic Usage
//
//	clk := clock.System()
//	t := clk.AfterFunc(300*time.Millisecond, flush)
//	...
//	t.Reset(300 * time.Millisecond) // re-arm the idle window
//
// # Thread Safety
//
// All implementations are safe for concurrent use.
package clock

import "time"

// Clock provides the current time and cancellable delayed execution.
//
// # Description
//
// The interface mirrors the subset of the time package the services
// actually use. AfterFunc returns a Timer so callers can cancel or
// re-arm pending work without caring whether time is real or simulated.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d has
	// elapsed.
	After(d time.Duration) <-chan time.Time

	// AfterFunc schedules fn to run once d has elapsed and returns a
	// Timer that can stop or re-arm it.
	AfterFunc(d time.Duration, fn func()) Timer

	// Sleep blocks until d has elapsed.
	Sleep(d time.Duration)
}

// Timer is a cancellable, re-armable delayed task handle.
//
// Stop and Reset follow time.Timer semantics: both report whether the
// timer was still pending when called.
type Timer interface {
	Stop() bool
	Reset(d time.Duration) bool
}

// -----------------------------------------------------------------------------
// System clock
// -----------------------------------------------------------------------------

// System returns the real wall-clock implementation.
//
// The returned value is stateless and shared; it is safe to call System
// from anywhere rather than threading a single instance around.
func System() Clock {
	return systemClock{}
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

func (systemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return systemTimer{t: time.AfterFunc(d, fn)}
}

func (systemClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

type systemTimer struct {
	t *time.Timer
}

func (s systemTimer) Stop() bool {
	return s.t.Stop()
}

func (s systemTimer) Reset(d time.Duration) bool {
	return s.t.Reset(d)
}

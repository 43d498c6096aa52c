// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package persist

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianCanvas/services/canvas/store"
)

// Fanout broadcasts event batches to per-canvas subscribers.
//
// # Description
//
// Each subscription gets its own queue and delivery goroutine. Publish
// appends to every matching queue and returns immediately; batches
// reach each subscriber in publish order. Subscriber panics are
// recovered so one bad consumer cannot take down delivery for the
// rest.
//
// Both Service implementations embed a Fanout for their broadcast
// half.
//
// # Thread Safety
//
// Safe for concurrent use.
type Fanout struct {
	mu     sync.Mutex
	subs   map[string]map[string]*subscription
	log    *slog.Logger
	closed bool
}

// NewFanout creates an empty fanout. A nil logger falls back to
// slog.Default().
func NewFanout(log *slog.Logger) *Fanout {
	if log == nil {
		log = slog.Default()
	}
	return &Fanout{
		subs: make(map[string]map[string]*subscription),
		log:  log,
	}
}

// Subscribe registers a subscriber for the canvas and returns its
// subscription ID.
func (f *Fanout) Subscribe(canvasID string, fn Subscriber) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	sub := newSubscription(fn, f.log)
	if f.closed {
		sub.close()
		return sub.id
	}

	byID, ok := f.subs[canvasID]
	if !ok {
		byID = make(map[string]*subscription)
		f.subs[canvasID] = byID
	}
	byID[sub.id] = sub
	go sub.run()
	return sub.id
}

// Unsubscribe removes a subscription. Returns true if it existed.
func (f *Fanout) Unsubscribe(canvasID, id string) bool {
	f.mu.Lock()
	byID, ok := f.subs[canvasID]
	if !ok {
		f.mu.Unlock()
		return false
	}
	sub, ok := byID[id]
	if !ok {
		f.mu.Unlock()
		return false
	}
	delete(byID, id)
	if len(byID) == 0 {
		delete(f.subs, canvasID)
	}
	f.mu.Unlock()

	sub.close()
	return true
}

// Publish queues the batch for every subscriber of the canvas. Events
// are cloned per subscriber boundary upstream; the batch itself must
// not be mutated after publishing.
func (f *Fanout) Publish(canvasID string, events []store.Event) {
	if len(events) == 0 {
		return
	}

	f.mu.Lock()
	byID := f.subs[canvasID]
	targets := make([]*subscription, 0, len(byID))
	for _, sub := range byID {
		targets = append(targets, sub)
	}
	f.mu.Unlock()

	for _, sub := range targets {
		sub.enqueue(events)
	}
}

// SubscriberCount returns the number of active subscriptions for the
// canvas.
func (f *Fanout) SubscriberCount(canvasID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[canvasID])
}

// Close tears down every subscription. Queued batches are drained to
// their subscribers before their goroutines exit.
func (f *Fanout) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	var all []*subscription
	for _, byID := range f.subs {
		for _, sub := range byID {
			all = append(all, sub)
		}
	}
	f.subs = make(map[string]map[string]*subscription)
	f.mu.Unlock()

	for _, sub := range all {
		sub.close()
	}
}

// -----------------------------------------------------------------------------
// subscription
// -----------------------------------------------------------------------------

// subscription is one subscriber's FIFO delivery queue.
type subscription struct {
	id     string
	fn     Subscriber
	log    *slog.Logger
	mu     sync.Mutex
	cond   *sync.Cond
	queue  [][]store.Event
	closed bool
	done   chan struct{}
}

func newSubscription(fn Subscriber, log *slog.Logger) *subscription {
	s := &subscription{
		id:   uuid.NewString(),
		fn:   fn,
		log:  log,
		done: make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *subscription) enqueue(events []store.Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, events)
	s.mu.Unlock()
	s.cond.Signal()
}

// run delivers queued batches until closed and drained.
func (s *subscription) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 && s.closed {
			s.mu.Unlock()
			return
		}
		batch := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.deliver(batch)
	}
}

func (s *subscription) deliver(events []store.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("persist subscriber panicked",
				"subscription_id", s.id,
				"events", len(events),
				"panic", r,
			)
		}
	}()
	s.fn(events)
}

// close stops the subscription after the queue drains. Safe to call
// more than once; only blocks until the delivery goroutine exits when
// one was started.
func (s *subscription) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

// ringStack is a fixed-capacity LIFO backed by a circular buffer.
//
// # Description
//
// Push adds on top; when the stack is full the OLDEST entry is
// silently evicted, which is exactly the bound an undo stack wants:
// deep history falls off the bottom while recent commands stay
// poppable. Pop and Peek work on the newest entry.
//
// # Thread Safety
//
// NOT safe for concurrent use; the owning Manager synchronizes.
type ringStack[T any] struct {
	data     []T
	head     int // next write position
	count    int
	capacity int
}

// newRingStack creates a stack bounded at the given capacity.
// Capacities below 1 fall back to 100.
func newRingStack[T any](capacity int) *ringStack[T] {
	if capacity < 1 {
		capacity = 100
	}
	return &ringStack[T]{
		data:     make([]T, capacity),
		capacity: capacity,
	}
}

// Push adds an item on top of the stack, evicting the oldest entry
// when the stack is already full.
func (s *ringStack[T]) Push(item T) {
	s.data[s.head] = item
	s.head = (s.head + 1) % s.capacity
	if s.count < s.capacity {
		s.count++
	}
}

// Pop removes and returns the newest item. Returns the zero value and
// false when the stack is empty.
func (s *ringStack[T]) Pop() (T, bool) {
	var zero T
	if s.count == 0 {
		return zero, false
	}
	s.head = (s.head - 1 + s.capacity) % s.capacity
	item := s.data[s.head]
	s.data[s.head] = zero
	s.count--
	return item, true
}

// Peek returns the newest item without removing it.
func (s *ringStack[T]) Peek() (T, bool) {
	var zero T
	if s.count == 0 {
		return zero, false
	}
	idx := (s.head - 1 + s.capacity) % s.capacity
	return s.data[idx], true
}

// Len returns the number of items on the stack.
func (s *ringStack[T]) Len() int {
	return s.count
}

// Cap returns the fixed capacity.
func (s *ringStack[T]) Cap() int {
	return s.capacity
}

// IsEmpty returns true when the stack holds no items.
func (s *ringStack[T]) IsEmpty() bool {
	return s.count == 0
}

// Clear removes all items and zeroes the buffer so held references
// can be collected.
func (s *ringStack[T]) Clear() {
	var zero T
	for i := range s.data {
		s.data[i] = zero
	}
	s.head = 0
	s.count = 0
}

// Slice returns the items oldest first. The slice is a copy.
func (s *ringStack[T]) Slice() []T {
	out := make([]T, 0, s.count)
	start := (s.head - s.count + s.capacity) % s.capacity
	for i := 0; i < s.count; i++ {
		out = append(out, s.data[(start+i)%s.capacity])
	}
	return out
}

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

import "testing"

func TestRingStackPushPop(t *testing.T) {
	s := newRingStack[string](4)

	if !s.IsEmpty() {
		t.Error("new stack should be empty")
	}
	if _, ok := s.Pop(); ok {
		t.Error("pop on empty stack should return false")
	}

	s.Push("a")
	s.Push("b")
	s.Push("c")

	if s.Len() != 3 {
		t.Errorf("expected len 3, got %d", s.Len())
	}

	// LIFO: newest out first.
	for _, want := range []string{"c", "b", "a"} {
		got, ok := s.Pop()
		if !ok {
			t.Fatalf("expected to pop %q, stack empty", want)
		}
		if got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}

	if !s.IsEmpty() {
		t.Error("stack should be empty after popping everything")
	}
}

func TestRingStackEvictsOldestWhenFull(t *testing.T) {
	s := newRingStack[int](3)

	for i := 1; i <= 5; i++ {
		s.Push(i)
	}

	if s.Len() != 3 {
		t.Fatalf("expected len capped at 3, got %d", s.Len())
	}

	// 1 and 2 fell off the bottom; 5, 4, 3 remain poppable.
	for _, want := range []int{5, 4, 3} {
		got, ok := s.Pop()
		if !ok || got != want {
			t.Errorf("expected %d (ok), got %d (%v)", want, got, ok)
		}
	}
}

func TestRingStackPeek(t *testing.T) {
	s := newRingStack[string](2)

	if _, ok := s.Peek(); ok {
		t.Error("peek on empty stack should return false")
	}

	s.Push("x")
	s.Push("y")

	got, ok := s.Peek()
	if !ok || got != "y" {
		t.Errorf("expected peek to return y, got %q (%v)", got, ok)
	}
	if s.Len() != 2 {
		t.Error("peek should not remove items")
	}
}

func TestRingStackSliceOrder(t *testing.T) {
	s := newRingStack[int](3)
	for i := 1; i <= 5; i++ {
		s.Push(i)
	}

	got := s.Slice()
	want := []int{3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("slice[%d]: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestRingStackClear(t *testing.T) {
	s := newRingStack[*Command](2)
	s.Push(&Command{ID: "one"})
	s.Push(&Command{ID: "two"})

	s.Clear()

	if !s.IsEmpty() {
		t.Error("stack should be empty after clear")
	}
	if _, ok := s.Pop(); ok {
		t.Error("pop after clear should return false")
	}

	// Reusable after clear.
	s.Push(&Command{ID: "three"})
	cmd, ok := s.Pop()
	if !ok || cmd.ID != "three" {
		t.Error("stack should be usable after clear")
	}
}

func TestRingStackCapacityFallback(t *testing.T) {
	s := newRingStack[int](0)
	if s.Cap() != 100 {
		t.Errorf("expected fallback capacity 100, got %d", s.Cap())
	}

	s = newRingStack[int](-5)
	if s.Cap() != 100 {
		t.Errorf("expected fallback capacity 100 for negative input, got %d", s.Cap())
	}
}

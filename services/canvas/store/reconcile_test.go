// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"testing"

	"github.com/AleutianAI/AleutianCanvas/services/canvas/shape"
)

func TestApplyEvents_IdempotentAdd(t *testing.T) {
	s := NewStore()
	sh := testShape("s1", shape.KindRectangle)

	applied := s.ApplyEvents(Batch{Added(sh), Added(sh)})
	if applied != 1 {
		t.Errorf("applied = %d, want 1", applied)
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d after duplicate add, want 1", s.Len())
	}

	// Re-delivery of the whole batch is also a no-op.
	if applied := s.ApplyEvents(Batch{Added(sh), Added(sh)}); applied != 0 {
		t.Errorf("re-delivered batch applied %d events", applied)
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d after re-delivery, want 1", s.Len())
	}
}

func TestApplyEvents_DuplicateSuppressionUnderBatching(t *testing.T) {
	s := NewStore()
	x := testShape("x", shape.KindRectangle)
	y := testShape("y", shape.KindCircle)

	s.ApplyEvents(Batch{Added(x), Added(y), Added(x)})

	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want exactly the two distinct shapes", s.Len())
	}
	if !s.Has("x") || !s.Has("y") {
		t.Fatal("expected both x and y present")
	}
}

func TestApplyEvents_ModifiedReplacesWholesale(t *testing.T) {
	s := NewStore()
	orig := testShape("s1", shape.KindText)
	orig.Bold = true
	s.ApplyEvents(Batch{Added(orig)})

	replacement := testShape("s1", shape.KindText)
	replacement.Text = "rewritten"
	// Bold deliberately absent: the incoming snapshot is authoritative,
	// not merged.
	s.ApplyEvents(Batch{Modified(replacement)})

	got, _ := s.Get("s1")
	if got.Text != "rewritten" {
		t.Errorf("Text = %q, want rewritten", got.Text)
	}
	if got.Bold {
		t.Error("Bold survived wholesale replacement; modified must not merge")
	}
}

func TestApplyEvents_ModifiedUnknownIsNoop(t *testing.T) {
	s := NewStore()
	ghost := testShape("ghost", shape.KindCircle)

	if applied := s.ApplyEvents(Batch{Modified(ghost)}); applied != 0 {
		t.Errorf("applied = %d for unknown-id modify", applied)
	}
	if s.Len() != 0 {
		t.Error("unknown-id modify materialized a shape")
	}
}

func TestApplyEvents_RemovedPurgesSelection(t *testing.T) {
	s := NewStore()
	sh := testShape("s1", shape.KindRectangle)
	s.ApplyEvents(Batch{Added(sh)})
	s.Selection().Add("s1")

	applied := s.ApplyEvents(Batch{Removed(sh)})
	if applied != 1 {
		t.Errorf("applied = %d, want 1", applied)
	}
	if s.Has("s1") || s.Selection().Has("s1") {
		t.Error("shape or selection entry survived removal")
	}

	// Unknown removal stays silent and still scrubs any stale selection.
	s.Selection().Add("stale")
	if applied := s.ApplyEvents(Batch{Removed(testShape("stale", shape.KindRectangle))}); applied != 0 {
		t.Errorf("applied = %d for unknown-id removal", applied)
	}
	if s.Selection().Has("stale") {
		t.Error("stale selection entry survived unknown-id removal")
	}
}

func TestApplyEvents_InOrderWithinBatch(t *testing.T) {
	s := NewStore()
	sh := testShape("s1", shape.KindRectangle)
	moved := sh
	moved.X = 500

	s.ApplyEvents(Batch{Added(sh), Modified(moved), Removed(sh), Added(sh)})

	// added, then modified, then removed, then re-added: final state is
	// the original snapshot, present exactly once.
	got, ok := s.Get("s1")
	if !ok || s.Len() != 1 {
		t.Fatalf("final state wrong: ok=%v len=%d", ok, s.Len())
	}
	if got.X != sh.X {
		t.Errorf("X = %v, want the re-added snapshot's %v", got.X, sh.X)
	}
}

func TestApplyEvents_LastEventWins(t *testing.T) {
	s := NewStore()
	sh := testShape("s1", shape.KindRectangle)
	s.ApplyEvents(Batch{Added(sh)})

	newer := sh
	newer.X = 100
	newer.LastModifiedAt = 2000

	older := sh
	older.X = 900
	older.LastModifiedAt = 1000

	// Delivery order decides, not timestamps: the older-stamped event
	// processed last determines final state.
	s.ApplyEvents(Batch{Modified(newer), Modified(older)})

	got, _ := s.Get("s1")
	if got.X != 900 {
		t.Errorf("X = %v, want last-delivered 900", got.X)
	}
}

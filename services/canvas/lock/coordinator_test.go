// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lock

import (
	"errors"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianCanvas/pkg/clock"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/shape"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/store"
)

// ===== Test helpers =====

func newTestCoordinator(t *testing.T) (*Coordinator, *store.Store, *clock.FakeClock) {
	t.Helper()

	st := store.NewStore()
	clk := clock.Fake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	cfg := DefaultConfig()
	cfg.Clock = clk

	c, err := NewCoordinator(st, cfg)
	if err != nil {
		t.Fatalf("NewCoordinator failed: %v", err)
	}
	return c, st, clk
}

func addShape(t *testing.T, st *store.Store, id string) {
	t.Helper()
	s := shape.New(shape.KindRectangle, "seed", 1000)
	s.ID = id
	s.Width, s.Height = 10, 10
	st.Upsert(s)
}

// ===== Acquire =====

func TestAcquireUnlockedShape(t *testing.T) {
	c, st, clk := newTestCoordinator(t)
	addShape(t, st, "s1")

	ok, err := c.Acquire("s1", "alice")
	if err != nil || !ok {
		t.Fatalf("expected grant on unlocked shape, got %v, %v", ok, err)
	}

	s, _ := st.Get("s1")
	if s.LockedBy != "alice" {
		t.Errorf("expected lockedBy alice, got %q", s.LockedBy)
	}
	if s.LockedAt != clk.Now().UnixMilli() {
		t.Errorf("expected lockedAt stamped from the clock, got %d", s.LockedAt)
	}
}

func TestAcquireIsReentrantForHolder(t *testing.T) {
	c, st, clk := newTestCoordinator(t)
	addShape(t, st, "s1")

	if ok, _ := c.Acquire("s1", "alice"); !ok {
		t.Fatal("initial acquire should succeed")
	}
	first, _ := st.Get("s1")

	clk.Advance(5 * time.Second)

	ok, err := c.Acquire("s1", "alice")
	if err != nil || !ok {
		t.Fatalf("holder re-acquire should succeed, got %v, %v", ok, err)
	}

	// Re-acquire refreshes the lease.
	refreshed, _ := st.Get("s1")
	if refreshed.LockedAt <= first.LockedAt {
		t.Error("re-acquire should refresh lockedAt")
	}
}

func TestAcquireContendedShapeFailsWithoutError(t *testing.T) {
	c, st, _ := newTestCoordinator(t)
	addShape(t, st, "s1")

	if ok, _ := c.Acquire("s1", "alice"); !ok {
		t.Fatal("initial acquire should succeed")
	}

	ok, err := c.Acquire("s1", "bob")
	if err != nil {
		t.Fatalf("contention is not an error, got %v", err)
	}
	if ok {
		t.Error("live lock held by alice should refuse bob")
	}

	s, _ := st.Get("s1")
	if s.LockedBy != "alice" {
		t.Errorf("refused acquire must not change the holder, got %q", s.LockedBy)
	}
}

func TestAcquireTakesOverExpiredLock(t *testing.T) {
	c, st, clk := newTestCoordinator(t)
	addShape(t, st, "s1")

	if ok, _ := c.Acquire("s1", "alice"); !ok {
		t.Fatal("initial acquire should succeed")
	}

	// Exactly at the TTL the lock still holds; one tick past it, it
	// is up for grabs.
	clk.Advance(DefaultTTL)
	if ok, _ := c.Acquire("s1", "bob"); ok {
		t.Error("lock at exactly TTL age should still hold")
	}

	clk.Advance(time.Millisecond)
	ok, err := c.Acquire("s1", "bob")
	if err != nil || !ok {
		t.Fatalf("expired lock should be claimable, got %v, %v", ok, err)
	}

	s, _ := st.Get("s1")
	if s.LockedBy != "bob" {
		t.Errorf("takeover should install the new holder, got %q", s.LockedBy)
	}
}

func TestAcquireUnknownShape(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	ok, err := c.Acquire("ghost", "alice")
	if ok {
		t.Error("unknown shape must not grant")
	}
	if !errors.Is(err, ErrShapeNotFound) {
		t.Errorf("expected ErrShapeNotFound, got %v", err)
	}
}

func TestAcquireRequiresActor(t *testing.T) {
	c, st, _ := newTestCoordinator(t)
	addShape(t, st, "s1")

	if _, err := c.Acquire("s1", ""); !errors.Is(err, ErrActorRequired) {
		t.Errorf("expected ErrActorRequired, got %v", err)
	}
}

// ===== Release =====

func TestReleaseByHolder(t *testing.T) {
	c, st, _ := newTestCoordinator(t)
	addShape(t, st, "s1")

	if ok, _ := c.Acquire("s1", "alice"); !ok {
		t.Fatal("acquire should succeed")
	}
	if !c.Release("s1", "alice") {
		t.Fatal("holder release should clear the lock")
	}

	s, _ := st.Get("s1")
	if s.LockedBy != "" || s.LockedAt != 0 {
		t.Errorf("release should clear lock fields, got %q at %d", s.LockedBy, s.LockedAt)
	}

	// Now anyone can take it.
	if ok, _ := c.Acquire("s1", "bob"); !ok {
		t.Error("released shape should be lockable by another actor")
	}
}

func TestReleaseByNonHolderIsNoOp(t *testing.T) {
	c, st, _ := newTestCoordinator(t)
	addShape(t, st, "s1")

	if ok, _ := c.Acquire("s1", "alice"); !ok {
		t.Fatal("acquire should succeed")
	}
	if c.Release("s1", "bob") {
		t.Error("non-holder release should not clear the lock")
	}

	s, _ := st.Get("s1")
	if s.LockedBy != "alice" {
		t.Errorf("lock should still belong to alice, got %q", s.LockedBy)
	}
}

func TestReleaseUnknownShapeIsNoOp(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	if c.Release("ghost", "alice") {
		t.Error("releasing an unknown shape should be a no-op")
	}
}

func TestForceReleaseIgnoresHolder(t *testing.T) {
	c, st, _ := newTestCoordinator(t)
	addShape(t, st, "s1")

	if ok, _ := c.Acquire("s1", "alice"); !ok {
		t.Fatal("acquire should succeed")
	}
	if !c.ForceRelease("s1") {
		t.Fatal("force release should clear any holder")
	}

	s, _ := st.Get("s1")
	if s.LockedBy != "" {
		t.Errorf("expected lock cleared, got %q", s.LockedBy)
	}

	if c.ForceRelease("s1") {
		t.Error("force release on an unlocked shape should report false")
	}
}

func TestReleaseAllHeldBy(t *testing.T) {
	c, st, _ := newTestCoordinator(t)
	for _, id := range []string{"a", "b", "c"} {
		addShape(t, st, id)
	}

	mustAcquire := func(id, actor string) {
		t.Helper()
		if ok, err := c.Acquire(id, actor); err != nil || !ok {
			t.Fatalf("acquire %s for %s failed: %v, %v", id, actor, ok, err)
		}
	}
	mustAcquire("a", "alice")
	mustAcquire("b", "bob")
	mustAcquire("c", "alice")

	released := c.ReleaseAllHeldBy("alice")
	if len(released) != 2 {
		t.Fatalf("expected 2 locks released, got %d", len(released))
	}

	if holder, held := c.Holder("b"); !held || holder != "bob" {
		t.Error("bob's lock should survive alice's cleanup")
	}
	if _, held := c.Holder("a"); held {
		t.Error("alice's locks should be gone")
	}
}

// ===== Expiry and inspection =====

func TestIsExpired(t *testing.T) {
	c, _, clk := newTestCoordinator(t)

	if !c.IsExpired(0) {
		t.Error("zero timestamp should count as expired")
	}

	now := clk.Now().UnixMilli()
	if c.IsExpired(now) {
		t.Error("a fresh timestamp should not be expired")
	}

	clk.Advance(DefaultTTL)
	if c.IsExpired(now) {
		t.Error("age equal to TTL should not be expired yet")
	}

	clk.Advance(time.Millisecond)
	if !c.IsExpired(now) {
		t.Error("age past TTL should be expired")
	}
}

func TestHolderHidesExpiredLocks(t *testing.T) {
	c, st, clk := newTestCoordinator(t)
	addShape(t, st, "s1")

	if ok, _ := c.Acquire("s1", "alice"); !ok {
		t.Fatal("acquire should succeed")
	}

	if holder, held := c.Holder("s1"); !held || holder != "alice" {
		t.Errorf("expected alice to hold the lock, got %q (%v)", holder, held)
	}

	clk.Advance(DefaultTTL + time.Millisecond)

	if _, held := c.Holder("s1"); held {
		t.Error("expired lock should report no holder")
	}
}

func TestCanEdit(t *testing.T) {
	c, st, clk := newTestCoordinator(t)
	addShape(t, st, "s1")

	if !c.CanEdit("s1", "bob") {
		t.Error("anyone can edit an unlocked shape")
	}

	if ok, _ := c.Acquire("s1", "alice"); !ok {
		t.Fatal("acquire should succeed")
	}
	if !c.CanEdit("s1", "alice") {
		t.Error("the holder can edit")
	}
	if c.CanEdit("s1", "bob") {
		t.Error("a live lock gates other actors")
	}

	clk.Advance(DefaultTTL + time.Millisecond)
	if !c.CanEdit("s1", "bob") {
		t.Error("an expired lock no longer gates anyone")
	}
}

// ===== Configuration =====

func TestNewCoordinatorValidation(t *testing.T) {
	st := store.NewStore()

	if _, err := NewCoordinator(nil, DefaultConfig()); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for nil store, got %v", err)
	}

	cfg := DefaultConfig()
	cfg.TTL = -time.Second
	if _, err := NewCoordinator(st, cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for negative TTL, got %v", err)
	}

	c, err := NewCoordinator(st, Config{})
	if err != nil {
		t.Fatalf("zero config should fall back to defaults: %v", err)
	}
	if c.TTL() != DefaultTTL {
		t.Errorf("expected default TTL %s, got %s", DefaultTTL, c.TTL())
	}
}

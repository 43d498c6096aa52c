// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package canvas

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianCanvas/pkg/clock"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/history"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/persist"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/shape"
)

// ===== Test helpers =====

var testEpoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, actor string, svc persist.Service, clk clock.Clock) *Engine {
	t.Helper()

	e, err := NewEngine(context.Background(), EngineConfig{
		Actor:    actor,
		CanvasID: "board",
		Persist:  svc,
		Clock:    clk,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func rect(x, y float64) shape.Shape {
	return shape.Shape{
		Kind:   shape.KindRectangle,
		X:      x,
		Y:      y,
		Width:  100,
		Height: 50,
		Color:  "#336699",
	}
}

func fptr(v float64) *float64 { return &v }

// ===== Construction =====

func TestNewEngineValidation(t *testing.T) {
	svc := persist.NewMemory()
	defer svc.Close()

	_, err := NewEngine(context.Background(), EngineConfig{CanvasID: "board", Persist: svc})
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewEngine(context.Background(), EngineConfig{Actor: "alice", Persist: svc})
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewEngine(context.Background(), EngineConfig{Actor: "alice", CanvasID: "board"})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewEngineSeedsFromPersist(t *testing.T) {
	svc := persist.NewMemory()
	defer svc.Close()
	ctx := context.Background()

	seeded := shape.New(shape.KindCircle, "earlier-user", 1000)
	seeded.Radius = 30
	require.NoError(t, svc.CreateShape(ctx, "board", seeded))

	e := newTestEngine(t, "alice", svc, clock.Fake(testEpoch))

	shapes := e.Shapes()
	require.Len(t, shapes, 1)
	require.Equal(t, seeded.ID, shapes[0].ID)

	// Pre-existing work is not this actor's to undo.
	require.False(t, e.CanUndo())
}

// ===== Create / update / delete round trips =====

func TestCreateShapeStampsAndPersists(t *testing.T) {
	svc := persist.NewMemory()
	defer svc.Close()
	clk := clock.Fake(testEpoch)
	e := newTestEngine(t, "alice", svc, clk)

	created, err := e.CreateShape(context.Background(), rect(10, 20))
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, "alice", created.CreatedBy)
	require.Equal(t, clk.Now().UnixMilli(), created.CreatedAt)
	require.Empty(t, created.LockedBy)

	stored, err := svc.FetchAllShapes(context.Background(), "board")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, created, stored[0])

	require.True(t, e.CanUndo())
}

func TestCreateShapeRejectsInvalidGeometry(t *testing.T) {
	svc := persist.NewMemory()
	defer svc.Close()
	e := newTestEngine(t, "alice", svc, clock.Fake(testEpoch))

	bad := rect(0, 0)
	bad.Width = 0

	_, err := e.CreateShape(context.Background(), bad)
	require.ErrorIs(t, err, shape.ErrInvalidShape)
	require.Empty(t, e.Shapes())
	require.False(t, e.CanUndo())
}

func TestUpdateShapeRecordsOnlyTouchedFields(t *testing.T) {
	svc := persist.NewMemory()
	defer svc.Close()
	e := newTestEngine(t, "alice", svc, clock.Fake(testEpoch))
	ctx := context.Background()

	created, err := e.CreateShape(ctx, rect(100, 0))
	require.NoError(t, err)

	require.NoError(t, e.UpdateShape(ctx, created.ID, shape.Patch{X: fptr(200)}, "move"))

	got, ok := e.Shape(created.ID)
	require.True(t, ok)
	require.Equal(t, 200.0, got.X)

	// Undo restores x and leaves everything else alone.
	require.NoError(t, e.Undo(ctx))
	got, _ = e.Shape(created.ID)
	require.Equal(t, 100.0, got.X)
	require.Equal(t, created.Color, got.Color)
	require.Equal(t, created.Width, got.Width)

	// And the persisted copy agrees.
	stored, err := svc.FetchAllShapes(ctx, "board")
	require.NoError(t, err)
	require.Equal(t, 100.0, stored[0].X)
}

func TestUpdateUnknownShape(t *testing.T) {
	svc := persist.NewMemory()
	defer svc.Close()
	e := newTestEngine(t, "alice", svc, clock.Fake(testEpoch))

	err := e.UpdateShape(context.Background(), "ghost", shape.Patch{X: fptr(1)}, "")
	require.ErrorIs(t, err, ErrShapeNotFound)
}

func TestDeleteAndUndoRecreatesExactShape(t *testing.T) {
	svc := persist.NewMemory()
	defer svc.Close()
	e := newTestEngine(t, "alice", svc, clock.Fake(testEpoch))
	ctx := context.Background()

	created, err := e.CreateShape(ctx, rect(10, 20))
	require.NoError(t, err)
	require.NoError(t, e.Select(created.ID))
	require.NoError(t, e.DeleteShape(ctx, created.ID))

	require.Empty(t, e.Shapes())
	require.Empty(t, e.SelectedIDs(), "deletion must purge the selection")
	stored, _ := svc.FetchAllShapes(ctx, "board")
	require.Empty(t, stored)

	require.NoError(t, e.Undo(ctx))

	got, ok := e.Shape(created.ID)
	require.True(t, ok)
	require.Equal(t, created, got, "undo must rebuild the exact pre-deletion shape")
	stored, _ = svc.FetchAllShapes(ctx, "board")
	require.Len(t, stored, 1)
}

func TestDeleteSelectedIsOneUndoStep(t *testing.T) {
	svc := persist.NewMemory()
	defer svc.Close()
	e := newTestEngine(t, "alice", svc, clock.Fake(testEpoch))
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		s, err := e.CreateShape(ctx, rect(float64(i*10), 0))
		require.NoError(t, err)
		ids = append(ids, s.ID)
		require.NoError(t, e.Select(s.ID))
	}

	n, err := e.DeleteSelected(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Empty(t, e.Shapes())

	require.NoError(t, e.Undo(ctx))
	require.Len(t, e.Shapes(), 3, "one undo must restore the whole selection")
	for _, id := range ids {
		_, ok := e.Shape(id)
		require.True(t, ok)
	}
}

func TestDeleteSelectedEmptySelection(t *testing.T) {
	svc := persist.NewMemory()
	defer svc.Close()
	e := newTestEngine(t, "alice", svc, clock.Fake(testEpoch))

	n, err := e.DeleteSelected(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
	require.False(t, e.CanUndo())
}

// ===== Collaboration: echo and remote reconciliation =====

func TestSelfEchoIsAbsorbed(t *testing.T) {
	svc := persist.NewMemory()
	defer svc.Close()
	e := newTestEngine(t, "alice", svc, clock.Fake(testEpoch))

	created, err := e.CreateShape(context.Background(), rect(0, 0))
	require.NoError(t, err)

	// The create echoes back through the subscription; the store must
	// not grow a duplicate, however long we wait.
	require.Never(t, func() bool {
		return len(e.Shapes()) != 1
	}, 200*time.Millisecond, 20*time.Millisecond)

	got, _ := e.Shape(created.ID)
	require.Equal(t, created, got)
}

func TestRemoteChangesReachOtherEnginesWithoutTouchingHistory(t *testing.T) {
	svc := persist.NewMemory()
	defer svc.Close()
	alice := newTestEngine(t, "alice", svc, clock.Fake(testEpoch))
	bob := newTestEngine(t, "bob", svc, clock.Fake(testEpoch))

	created, err := alice.CreateShape(context.Background(), rect(5, 5))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := bob.Shape(created.ID)
		return ok
	}, 2*time.Second, 10*time.Millisecond, "bob should see alice's shape")

	require.False(t, bob.CanUndo(), "remote work is not undoable by bob")
	require.True(t, alice.CanUndo())
}

func TestRemoteDeleteWinsOverStackedUpdate(t *testing.T) {
	svc := persist.NewMemory()
	defer svc.Close()
	ctx := context.Background()
	alice := newTestEngine(t, "alice", svc, clock.Fake(testEpoch))
	bob := newTestEngine(t, "bob", svc, clock.Fake(testEpoch))

	created, err := alice.CreateShape(ctx, rect(0, 0))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, ok := bob.Shape(created.ID)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	// Bob edits, then alice deletes; bob's undo of the edit finds the
	// shape gone and silently yields to the delete.
	require.NoError(t, bob.UpdateShape(ctx, created.ID, shape.Patch{X: fptr(50)}, "move"))
	require.Eventually(t, func() bool {
		sh, ok := alice.Shape(created.ID)
		return ok && sh.X == 50
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, alice.DeleteShape(ctx, created.ID))
	require.Eventually(t, func() bool {
		_, ok := bob.Shape(created.ID)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, bob.Undo(ctx))
	_, ok := bob.Shape(created.ID)
	require.False(t, ok, "undoing an update must not resurrect a deleted shape")
}

// ===== Coalesced drags =====

func TestCoalescedDragIsOneUndoStep(t *testing.T) {
	svc := persist.NewMemory()
	defer svc.Close()
	clk := clock.Fake(testEpoch)
	e := newTestEngine(t, "alice", svc, clk)
	ctx := context.Background()

	created, err := e.CreateShape(ctx, rect(0, 0))
	require.NoError(t, err)

	for i := 1; i <= 10; i++ {
		err := e.UpdateShapeCoalesced(ctx, created.ID, shape.Patch{X: fptr(float64(i * 10))}, "move", "", 300*time.Millisecond)
		require.NoError(t, err)
	}

	// Live position already tracks the drag, locally and persisted.
	got, _ := e.Shape(created.ID)
	require.Equal(t, 100.0, got.X)
	stored, _ := svc.FetchAllShapes(ctx, "board")
	require.Equal(t, 100.0, stored[0].X)

	// History holds only the create until the idle window lapses.
	require.Equal(t, 1, e.StackState().UndoDepth)
	clk.Advance(300 * time.Millisecond)
	require.Equal(t, 2, e.StackState().UndoDepth)

	// One undo returns to the drag start.
	require.NoError(t, e.Undo(ctx))
	got, _ = e.Shape(created.ID)
	require.Equal(t, 0.0, got.X)
}

func TestUndoMidDragFlushesFirst(t *testing.T) {
	svc := persist.NewMemory()
	defer svc.Close()
	clk := clock.Fake(testEpoch)
	e := newTestEngine(t, "alice", svc, clk)
	ctx := context.Background()

	created, err := e.CreateShape(ctx, rect(0, 0))
	require.NoError(t, err)

	require.NoError(t, e.UpdateShapeCoalesced(ctx, created.ID, shape.Patch{X: fptr(40)}, "move", "", 300*time.Millisecond))

	// Undo before the idle window: the pending drag commits and is
	// what gets undone.
	require.NoError(t, e.Undo(ctx))
	got, _ := e.Shape(created.ID)
	require.Equal(t, 0.0, got.X)
	require.True(t, e.CanRedo())
}

// ===== Locks =====

func TestLockVisibilityAcrossEngines(t *testing.T) {
	svc := persist.NewMemory()
	defer svc.Close()
	ctx := context.Background()
	alice := newTestEngine(t, "alice", svc, clock.Fake(testEpoch))
	bob := newTestEngine(t, "bob", svc, clock.Fake(testEpoch))

	created, err := alice.CreateShape(ctx, rect(0, 0))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, ok := bob.Shape(created.ID)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	granted, err := alice.AcquireLock(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, granted)

	// Bob's engine learns about the lock via the event stream and then
	// refuses to grant it to bob.
	require.Eventually(t, func() bool {
		holder, held := bob.LockHolder(created.ID)
		return held && holder == "alice"
	}, 2*time.Second, 10*time.Millisecond)

	granted, err = bob.AcquireLock(ctx, created.ID)
	require.NoError(t, err)
	require.False(t, granted)

	// Release propagates the same way.
	require.NoError(t, alice.ReleaseLock(ctx, created.ID))
	require.Eventually(t, func() bool {
		_, held := bob.LockHolder(created.ID)
		return !held
	}, 2*time.Second, 10*time.Millisecond)

	granted, err = bob.AcquireLock(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, granted)
}

func TestLockExpiryAllowsTakeover(t *testing.T) {
	svc := persist.NewMemory()
	defer svc.Close()
	ctx := context.Background()
	clk := clock.Fake(testEpoch)
	alice := newTestEngine(t, "alice", svc, clk)
	bob := newTestEngine(t, "bob", svc, clk)

	created, err := alice.CreateShape(ctx, rect(0, 0))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, ok := bob.Shape(created.ID)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	granted, err := alice.AcquireLock(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, granted)

	require.Eventually(t, func() bool {
		_, held := bob.LockHolder(created.ID)
		return held
	}, 2*time.Second, 10*time.Millisecond)

	clk.Advance(30*time.Second + time.Millisecond)

	granted, err = bob.AcquireLock(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, granted, "a lock older than the TTL is claimable")
}

func TestCloseReleasesHeldLocks(t *testing.T) {
	svc := persist.NewMemory()
	defer svc.Close()
	ctx := context.Background()
	alice := newTestEngine(t, "alice", svc, clock.Fake(testEpoch))
	bob := newTestEngine(t, "bob", svc, clock.Fake(testEpoch))

	created, err := alice.CreateShape(ctx, rect(0, 0))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, ok := bob.Shape(created.ID)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	granted, err := alice.AcquireLock(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, granted)
	require.Eventually(t, func() bool {
		_, held := bob.LockHolder(created.ID)
		return held
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, alice.Close())

	require.Eventually(t, func() bool {
		_, held := bob.LockHolder(created.ID)
		return !held
	}, 2*time.Second, 10*time.Millisecond, "disconnect should drop the lock")
}

// ===== Lifecycle =====

func TestGesturesFailAfterClose(t *testing.T) {
	svc := persist.NewMemory()
	defer svc.Close()
	e := newTestEngine(t, "alice", svc, clock.Fake(testEpoch))
	ctx := context.Background()

	require.NoError(t, e.Close())
	require.NoError(t, e.Close(), "double close is safe")

	_, err := e.CreateShape(ctx, rect(0, 0))
	require.ErrorIs(t, err, ErrEngineClosed)
	require.ErrorIs(t, e.UpdateShape(ctx, "x", shape.Patch{X: fptr(1)}, ""), ErrEngineClosed)
	require.ErrorIs(t, e.DeleteShape(ctx, "x"), ErrEngineClosed)
	require.ErrorIs(t, e.Undo(ctx), ErrEngineClosed)
	_, err = e.AcquireLock(ctx, "x")
	require.ErrorIs(t, err, ErrEngineClosed)
}

func TestStackObserverSeesCommitAndUndo(t *testing.T) {
	svc := persist.NewMemory()
	defer svc.Close()
	e := newTestEngine(t, "alice", svc, clock.Fake(testEpoch))
	ctx := context.Background()

	var states []history.StackState
	id := e.SubscribeStacks(func(st history.StackState) {
		states = append(states, st)
	})

	created, err := e.CreateShape(ctx, rect(0, 0))
	require.NoError(t, err)
	require.NoError(t, e.Undo(ctx))
	require.NoError(t, e.Redo(ctx))

	// Commit, undo, redo: three notifications, in order.
	require.Len(t, states, 3)
	require.Equal(t, history.StackState{CanUndo: true, UndoDepth: 1}, states[0])
	require.Equal(t, history.StackState{CanRedo: true, RedoDepth: 1}, states[1])
	require.Equal(t, history.StackState{CanUndo: true, UndoDepth: 1}, states[2])

	e.UnsubscribeStacks(id)
	require.NoError(t, e.DeleteShape(ctx, created.ID))
	require.Len(t, states, 3, "unsubscribed observers stay quiet")
}

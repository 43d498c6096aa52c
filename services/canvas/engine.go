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
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianCanvas/pkg/clock"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/history"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/lock"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/persist"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/shape"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/store"
)

// EngineConfig holds configuration for one actor's Engine.
type EngineConfig struct {
	// Actor identifies the user this engine belongs to. Required.
	Actor string

	// CanvasID names the canvas the engine operates on. Required.
	CanvasID string

	// Persist is the canvas-wide shared persistence service. Required.
	Persist persist.Service

	// HistoryDepth bounds the undo/redo stacks. Zero uses the history
	// package default.
	HistoryDepth int

	// CoalesceIdle is the default idle window for coalesced edits.
	// Zero uses the history package default.
	CoalesceIdle time.Duration

	// LockTTL is the advisory lock lifetime. Zero uses the lock
	// package default.
	LockTTL time.Duration

	// Clock drives coalescing timers, lock expiry and timestamps.
	// Default: the system clock.
	Clock clock.Clock

	// Logger receives engine lifecycle and gesture events.
	// Default: slog.Default().
	Logger *slog.Logger

	// OnCoalesceFlush, when set, is invoked each time a coalesced burst
	// commits as a command. Used for instrumentation; may be nil.
	OnCoalesceFlush func()
}

// Validate checks the configuration.
func (c EngineConfig) Validate() error {
	if c.Actor == "" {
		return fmt.Errorf("%w: actor is required", ErrInvalidConfig)
	}
	if c.CanvasID == "" {
		return fmt.Errorf("%w: canvas id is required", ErrInvalidConfig)
	}
	if c.Persist == nil {
		return fmt.Errorf("%w: persist service is required", ErrInvalidConfig)
	}
	return nil
}

// =============================================================================
// Engine
// =============================================================================

// Engine is one actor's live view of a canvas: their own shape store,
// selection, undo/redo history and lock coordinator, wired to the
// shared persistence service.
//
// # Description
//
// Every connected actor gets an independent Engine; nothing here is
// process-global. Gestures mutate the local store first, record into
// the actor's history, then push to persistence; the push is broadcast
// back to every subscriber on the canvas, this engine included, and
// the idempotent reconciler absorbs the self-echo. Remote batches
// reconcile into the store and never touch history, so an actor can
// only ever undo their own work.
//
// # Thread Safety
//
// Safe for concurrent use. Gesture methods serialize on an internal
// mutex; remote event batches arrive on the subscription's delivery
// goroutine and take the same mutex.
type Engine struct {
	mu       sync.Mutex
	actor    string
	canvasID string
	store    *store.Store
	manager  *history.Manager
	locks    *lock.Coordinator
	persist  persist.Service
	clk      clock.Clock
	log      *slog.Logger
	subID    string
	closed   bool
}

// NewEngine builds an engine, seeds its store with the canvas's
// current shapes, and subscribes it to the canvas event stream.
//
// Inputs:
//
//	ctx - Bounds the initial shape fetch.
//	cfg - Engine configuration; see EngineConfig.
//
// Outputs:
//
//	*Engine - Ready to serve gestures. Caller must Close.
//	error - Non-nil if the configuration is invalid or the initial
//	fetch fails.
func NewEngine(ctx context.Context, cfg EngineConfig) (*Engine, error) {
	if cfg.Clock == nil {
		cfg.Clock = clock.System()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := cfg.Logger.With("actor", cfg.Actor, "canvas_id", cfg.CanvasID)

	e := &Engine{
		actor:    cfg.Actor,
		canvasID: cfg.CanvasID,
		store:    store.NewStore(),
		persist:  cfg.Persist,
		clk:      cfg.Clock,
		log:      log,
	}

	mgr, err := history.NewManager(history.Config{
		Apply:       e.applyHistory,
		MaxDepth:    cfg.HistoryDepth,
		DefaultIdle: cfg.CoalesceIdle,
		Clock:       cfg.Clock,
		Logger:      log,
		OnFlush:     cfg.OnCoalesceFlush,
	})
	if err != nil {
		return nil, err
	}
	e.manager = mgr

	locks, err := lock.NewCoordinator(e.store, lock.Config{
		TTL:    cfg.LockTTL,
		Clock:  cfg.Clock,
		Logger: log,
	})
	if err != nil {
		return nil, err
	}
	e.locks = locks

	// Initial sync: load the canvas, then join the event stream. The
	// snapshot rides through the reconciler like any other batch.
	shapes, err := cfg.Persist.FetchAllShapes(ctx, cfg.CanvasID)
	if err != nil {
		return nil, fmt.Errorf("initial shape fetch: %w", err)
	}
	seed := make(store.Batch, 0, len(shapes))
	for _, sh := range shapes {
		seed = append(seed, store.Added(sh))
	}
	e.store.ApplyEvents(seed)

	e.subID = cfg.Persist.Subscribe(cfg.CanvasID, e.handleRemote)

	log.Info("engine ready", "shapes", len(shapes))
	return e, nil
}

// Actor returns the actor this engine belongs to.
func (e *Engine) Actor() string { return e.actor }

// CanvasID returns the canvas this engine operates on.
func (e *Engine) CanvasID() string { return e.canvasID }

// handleRemote reconciles an incoming event batch into the local
// store. Runs on the subscription's delivery goroutine. History is
// deliberately untouched: remote work is not undoable here.
func (e *Engine) handleRemote(events []store.Event) {
	e.mu.Lock()
	applied := e.store.ApplyEvents(events)
	e.mu.Unlock()

	e.log.Debug("reconciled remote batch", "events", len(events), "applied", applied)
}

// applyHistory replays a derived operation batch against the local
// store and persistence. Invoked by the history manager during
// undo/redo, while the engine's mutex is already held by Undo/Redo.
//
// Every operation is idempotent (upsert, patch-if-present,
// delete-if-present), so a batch that failed halfway converges when
// the replay is retried.
func (e *Engine) applyHistory(ctx context.Context, ops []history.Op, direction history.Direction) error {
	for _, op := range ops {
		switch op.Kind {
		case history.OpCreate:
			e.store.Upsert(op.Shape)
			if err := e.persist.CreateShape(ctx, e.canvasID, op.Shape); err != nil {
				return fmt.Errorf("replay %s create %s: %w", direction, op.ShapeID, err)
			}
		case history.OpUpdate:
			updated, ok := e.store.Patch(op.ShapeID, op.Patch)
			if !ok {
				// The shape was deleted remotely while the command sat
				// on the stack; the delete wins.
				e.log.Warn("replay skipped missing shape",
					"direction", string(direction),
					"shape_id", op.ShapeID,
				)
				continue
			}
			if err := e.persist.UpdateShape(ctx, e.canvasID, updated); err != nil {
				return fmt.Errorf("replay %s update %s: %w", direction, op.ShapeID, err)
			}
		case history.OpDelete:
			if _, ok := e.store.Get(op.ShapeID); !ok {
				continue
			}
			e.store.Remove(op.ShapeID)
			if err := e.persist.DeleteShape(ctx, e.canvasID, op.ShapeID); err != nil {
				return fmt.Errorf("replay %s delete %s: %w", direction, op.ShapeID, err)
			}
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Shape gestures
// -----------------------------------------------------------------------------

// CreateShape stamps, validates, stores and persists a new shape as
// one undoable gesture.
//
// Description:
//
//	The engine owns identity and provenance: a missing ID is assigned,
//	and the creation/modification stamps are set from this engine's
//	actor and clock regardless of what the caller filled in. Lock
//	fields are cleared; a shape is never born locked.
//
// Outputs:
//
//	shape.Shape - The stored shape, stamps included.
//	error - Validation failure or persistence push failure. On push
//	failure the local state and history already hold the shape.
func (e *Engine) CreateShape(ctx context.Context, s shape.Shape) (shape.Shape, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return shape.Shape{}, ErrEngineClosed
	}

	now := e.clk.Now().UnixMilli()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.CreatedBy, s.CreatedAt = e.actor, now
	s.LastModifiedBy, s.LastModifiedAt = e.actor, now
	s.LockedBy, s.LockedAt = "", 0

	if err := s.Validate(); err != nil {
		return shape.Shape{}, err
	}

	e.store.Upsert(s)

	e.manager.Begin("create", nil)
	snap := shape.Snapshot(s)
	if err := e.manager.Record(s.ID, nil, &snap); err != nil {
		e.manager.Cancel()
		return shape.Shape{}, err
	}
	e.manager.Commit()

	if err := e.persist.CreateShape(ctx, e.canvasID, s); err != nil {
		e.log.Error("create push failed", "shape_id", s.ID, "error", err)
		return s, fmt.Errorf("push create %s: %w", s.ID, err)
	}
	return s, nil
}

// UpdateShape applies a field-level patch to a shape as one undoable
// gesture. An empty patch is a no-op.
//
// Inputs:
//
//	id - The shape to update.
//	p - The fields to change.
//	action - Gesture name for history, e.g. "move"; empty means
//	"update".
func (e *Engine) UpdateShape(ctx context.Context, id string, p shape.Patch, action string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}
	if p.IsEmpty() {
		return nil
	}
	if action == "" {
		action = "update"
	}

	cur, ok := e.store.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrShapeNotFound, id)
	}

	after := e.stampPatch(p)
	before := shape.Project(cur, after)
	updated, _ := e.store.Patch(id, after)

	e.manager.Begin(action, nil)
	if err := e.manager.Record(id, &before, &after); err != nil {
		e.manager.Cancel()
		return err
	}
	e.manager.Commit()

	if err := e.persist.UpdateShape(ctx, e.canvasID, updated); err != nil {
		e.log.Error("update push failed", "shape_id", id, "error", err)
		return fmt.Errorf("push update %s: %w", id, err)
	}
	return nil
}

// UpdateShapeCoalesced is the drag path: the store mutation and
// persistence push happen per call so other clients see movement
// live, but the history record folds into the per-key coalescing
// accumulator, so the whole burst lands as one undo step after the
// idle window.
//
// Inputs:
//
//	key - Coalescing identity; empty derives "<action>:<id>".
//	idle - Idle window; non-positive uses the configured default.
func (e *Engine) UpdateShapeCoalesced(ctx context.Context, id string, p shape.Patch, action, key string, idle time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}
	if p.IsEmpty() {
		return nil
	}
	if action == "" {
		action = "update"
	}
	if key == "" {
		key = action + ":" + id
	}

	cur, ok := e.store.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrShapeNotFound, id)
	}

	after := e.stampPatch(p)
	before := shape.Project(cur, after)
	updated, _ := e.store.Patch(id, after)

	var recErr error
	e.manager.Coalesce(key, action, idle, nil, func() {
		recErr = e.manager.Record(id, &before, &after)
	})
	if recErr != nil {
		return recErr
	}

	if err := e.persist.UpdateShape(ctx, e.canvasID, updated); err != nil {
		e.log.Error("coalesced update push failed", "shape_id", id, "error", err)
		return fmt.Errorf("push update %s: %w", id, err)
	}
	return nil
}

// DeleteShape removes a shape as one undoable gesture, recording its
// full snapshot so undo can rebuild it exactly.
func (e *Engine) DeleteShape(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}

	cur, ok := e.store.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrShapeNotFound, id)
	}

	snap := shape.Snapshot(cur)
	e.store.Remove(id)

	e.manager.Begin("delete", nil)
	if err := e.manager.Record(id, &snap, nil); err != nil {
		e.manager.Cancel()
		return err
	}
	e.manager.Commit()

	if err := e.persist.DeleteShape(ctx, e.canvasID, id); err != nil {
		e.log.Error("delete push failed", "shape_id", id, "error", err)
		return fmt.Errorf("push delete %s: %w", id, err)
	}
	return nil
}

// DeleteSelected removes every selected shape in a single
// transaction, so one undo restores the whole selection.
//
// Outputs:
//
//	int - Number of shapes removed.
//	error - First persistence push failure, if any; local removal and
//	history are already committed at that point.
func (e *Engine) DeleteSelected(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return 0, ErrEngineClosed
	}

	ids := e.store.Selection().IDs()
	if len(ids) == 0 {
		return 0, nil
	}

	e.manager.Begin("delete-selected", nil)
	removed := make([]string, 0, len(ids))
	for _, id := range ids {
		cur, ok := e.store.Get(id)
		if !ok {
			continue
		}
		snap := shape.Snapshot(cur)
		e.store.Remove(id)
		if err := e.manager.Record(id, &snap, nil); err != nil {
			e.manager.Cancel()
			return 0, err
		}
		removed = append(removed, id)
	}
	e.manager.Commit()

	var firstErr error
	for _, id := range removed {
		if err := e.persist.DeleteShape(ctx, e.canvasID, id); err != nil {
			e.log.Error("delete push failed", "shape_id", id, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("push delete %s: %w", id, err)
			}
		}
	}
	return len(removed), firstErr
}

// stampPatch clones p and overlays the modification stamps. Caller
// holds the mutex.
func (e *Engine) stampPatch(p shape.Patch) shape.Patch {
	after := shape.ClonePatch(p)
	actor := e.actor
	now := e.clk.Now().UnixMilli()
	after.LastModifiedBy = &actor
	after.LastModifiedAt = &now
	return after
}

// -----------------------------------------------------------------------------
// Selection
// -----------------------------------------------------------------------------

// Select adds a shape to the actor's selection.
func (e *Engine) Select(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.store.Has(id) {
		return fmt.Errorf("%w: %s", ErrShapeNotFound, id)
	}
	e.store.Selection().Add(id)
	return nil
}

// Deselect removes a shape from the selection. Returns true if it was
// selected.
func (e *Engine) Deselect(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Selection().Remove(id)
}

// ClearSelection empties the selection and returns how many shapes
// were selected.
func (e *Engine) ClearSelection() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Selection().Clear()
}

// SelectedIDs returns the selected shape IDs in selection order.
func (e *Engine) SelectedIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Selection().IDs()
}

// -----------------------------------------------------------------------------
// History
// -----------------------------------------------------------------------------

// Undo reverses this actor's most recent command. Pending coalesced
// batches flush first, so an in-flight drag becomes the command being
// undone rather than a lost tail.
func (e *Engine) Undo(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}
	e.manager.FlushAll()
	return e.manager.Undo(ctx)
}

// Redo re-applies the most recently undone command. Pending coalesced
// batches flush first; note that a flush is a commit, which clears
// the redo stack, making the redo a no-op by the usual rule.
func (e *Engine) Redo(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}
	e.manager.FlushAll()
	return e.manager.Redo(ctx)
}

// CanUndo reports whether the actor has undoable work.
func (e *Engine) CanUndo() bool { return e.manager.CanUndo() }

// CanRedo reports whether the actor has redoable work.
func (e *Engine) CanRedo() bool { return e.manager.CanRedo() }

// StackState returns the actor's current undo/redo stack snapshot.
func (e *Engine) StackState() history.StackState { return e.manager.State() }

// SubscribeStacks registers an observer for this actor's stack state
// changes and returns the subscription ID.
func (e *Engine) SubscribeStacks(fn history.StackObserver) string {
	return e.manager.Subscribe(fn)
}

// UnsubscribeStacks removes a stack observer.
func (e *Engine) UnsubscribeStacks(id string) bool {
	return e.manager.Unsubscribe(id)
}

// -----------------------------------------------------------------------------
// Locks
// -----------------------------------------------------------------------------

// AcquireLock attempts to take the advisory lock on a shape. A grant
// is pushed through persistence so every client's lock view updates.
func (e *Engine) AcquireLock(ctx context.Context, id string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return false, ErrEngineClosed
	}

	granted, err := e.locks.Acquire(id, e.actor)
	if err != nil || !granted {
		return false, err
	}

	updated, _ := e.store.Get(id)
	if err := e.persist.UpdateShape(ctx, e.canvasID, updated); err != nil {
		e.log.Error("lock push failed", "shape_id", id, "error", err)
		return true, fmt.Errorf("push lock %s: %w", id, err)
	}
	return true, nil
}

// ReleaseLock releases the actor's lock on a shape. Releasing a lock
// the actor does not hold is a silent no-op.
func (e *Engine) ReleaseLock(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}

	if !e.locks.Release(id, e.actor) {
		return nil
	}

	updated, _ := e.store.Get(id)
	if err := e.persist.UpdateShape(ctx, e.canvasID, updated); err != nil {
		e.log.Error("unlock push failed", "shape_id", id, "error", err)
		return fmt.Errorf("push unlock %s: %w", id, err)
	}
	return nil
}

// LockHolder returns the live holder of a shape's lock, if any.
func (e *Engine) LockHolder(id string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.locks.Holder(id)
}

// -----------------------------------------------------------------------------
// Views and lifecycle
// -----------------------------------------------------------------------------

// Shapes returns all shapes in render order (ascending z-index,
// insertion order as tiebreak).
func (e *Engine) Shapes() []shape.Shape {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Shapes()
}

// Shape returns one shape by ID.
func (e *Engine) Shape(id string) (shape.Shape, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Get(id)
}

// Close flushes pending coalesced work, releases the actor's locks,
// and leaves the canvas event stream. Safe to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true

	e.manager.FlushAll()

	released := e.locks.ReleaseAllHeldBy(e.actor)
	snapshots := make([]shape.Shape, 0, len(released))
	for _, id := range released {
		if sh, ok := e.store.Get(id); ok {
			snapshots = append(snapshots, sh)
		}
	}
	subID := e.subID
	e.mu.Unlock()

	e.persist.Unsubscribe(e.canvasID, subID)

	// Best-effort: peers should see the locks drop.
	ctx := context.Background()
	for _, sh := range snapshots {
		if err := e.persist.UpdateShape(ctx, e.canvasID, sh); err != nil {
			e.log.Warn("lock cleanup push failed", "shape_id", sh.ID, "error", err)
		}
	}

	e.log.Info("engine closed", "released_locks", len(released))
	return nil
}

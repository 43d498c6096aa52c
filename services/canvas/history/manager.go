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

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianCanvas/pkg/clock"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/shape"
)

const (
	// DefaultMaxDepth bounds the undo and redo stacks.
	DefaultMaxDepth = 100

	// DefaultCoalesceIdle is the idle window after which a coalesced
	// batch auto-commits.
	DefaultCoalesceIdle = 300 * time.Millisecond
)

// ApplyFunc receives the derived operation batch for one undo or redo
// step. It must apply all operations or fail as a unit; on error the
// replayed command is restored to the stack it came from.
type ApplyFunc func(ctx context.Context, ops []Op, direction Direction) error

// Config holds configuration for a history Manager.
type Config struct {
	// Apply replays derived operation batches against the shape store
	// and persistence. Required.
	Apply ApplyFunc

	// MaxDepth bounds the undo and redo stacks. When the undo stack is
	// full the oldest command is evicted. Default: DefaultMaxDepth.
	MaxDepth int

	// DefaultIdle is the coalescing idle window used when a Coalesce
	// call passes a non-positive duration. Default: DefaultCoalesceIdle.
	DefaultIdle time.Duration

	// Clock schedules coalescing idle timers and stamps commands.
	// Default: the system clock. Tests inject a fake.
	Clock clock.Clock

	// Logger receives debug-level lifecycle events. Default: slog.Default().
	Logger *slog.Logger

	// OnFlush, when set, is invoked each time a coalesced batch commits
	// as a command. Used for instrumentation; may be nil.
	OnFlush func()
}

// DefaultConfig returns a Config with production defaults. Apply must
// still be set by the caller.
func DefaultConfig() Config {
	return Config{
		MaxDepth:    DefaultMaxDepth,
		DefaultIdle: DefaultCoalesceIdle,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Apply == nil {
		return fmt.Errorf("%w: apply callback is required", ErrInvalidConfig)
	}
	if c.MaxDepth < 1 {
		return fmt.Errorf("%w: max depth must be positive, got %d", ErrInvalidConfig, c.MaxDepth)
	}
	if c.DefaultIdle <= 0 {
		return fmt.Errorf("%w: default idle must be positive, got %s", ErrInvalidConfig, c.DefaultIdle)
	}
	return nil
}

// =============================================================================
// Manager
// =============================================================================

// Manager owns one actor's undo/redo stacks, the open transaction, and
// the coalescing accumulators.
//
// # Description
//
// Gestures call Begin/Record/Commit (or Run, or Coalesce for bursts).
// Commit folds the recorded deltas into an immutable Command and pushes
// it onto the bounded undo stack; any new commit clears the redo stack,
// since redoing a superseded branch would fork history. Undo and Redo
// derive operation batches from the popped command and hand them to the
// configured apply callback as a unit.
//
// Remote changes reconciled into the store must never pass through the
// Manager: an actor can only undo their own work.
//
// # Thread Safety
//
// Safe for concurrent use. Gesture methods are expected to be called
// from one goroutine per actor, but coalescing timers fire on clock
// goroutines, so all state is mutex-guarded internally.
type Manager struct {
	mu       sync.Mutex
	cfg      Config
	apply    ApplyFunc
	clk      clock.Clock
	log      *slog.Logger
	undo     *ringStack[*Command]
	redo     *ringStack[*Command]
	tx       *transaction
	capture  *ChangeSet
	pending  map[string]*coalesceEntry
	notifier *stackNotifier
}

// NewManager creates a Manager from the configuration. Zero-valued
// MaxDepth, DefaultIdle, Clock and Logger fields fall back to defaults
// before validation.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.DefaultIdle == 0 {
		cfg.DefaultIdle = DefaultCoalesceIdle
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Manager{
		cfg:      cfg,
		apply:    cfg.Apply,
		clk:      cfg.Clock,
		log:      cfg.Logger,
		undo:     newRingStack[*Command](cfg.MaxDepth),
		redo:     newRingStack[*Command](cfg.MaxDepth),
		pending:  make(map[string]*coalesceEntry),
		notifier: newStackNotifier(),
	}, nil
}

// -----------------------------------------------------------------------------
// Transactions
// -----------------------------------------------------------------------------

// Begin opens a transaction for one gesture.
//
// Description:
//
//	If a transaction is already open it is committed first, never
//	discarded: a stray unclosed gesture loses at most its grouping,
//	not its edits.
//
// Inputs:
//
//	action - Human-readable gesture name, e.g. "move" or "delete".
//	meta - Optional free-form annotations. May be nil.
func (m *Manager) Begin(action string, meta Meta) {
	m.mu.Lock()
	st := m.commitLocked()
	m.tx = newTransaction(action, meta)
	m.mu.Unlock()

	if st != nil {
		m.notifier.notify(*st)
	}
	m.log.Debug("transaction opened", "action", action)
}

// Record registers one shape delta against the open transaction.
//
// Description:
//
//	Repeated records for the same shape fold: the first Before wins,
//	After partials merge field by field, and After == nil collapses
//	the accumulated edits to a deletion. Inside a Coalesce builder,
//	records divert to the per-key accumulator instead.
//
// Inputs:
//
//	shapeID - The shape the delta applies to.
//	before - State prior to the change; nil means the shape did not exist.
//	after - State after the change; nil means the shape was deleted.
//
// Outputs:
//
//	error - ErrNoActiveTransaction when no transaction or coalesce
//	builder is active.
func (m *Manager) Record(shapeID string, before, after *shape.Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.capture != nil {
		m.capture.Record(shapeID, before, after)
		return nil
	}
	if m.tx == nil {
		return fmt.Errorf("%w: record for shape %s", ErrNoActiveTransaction, shapeID)
	}
	m.tx.changes.Record(shapeID, before, after)
	return nil
}

// Commit closes the open transaction and pushes it onto the undo stack.
//
// Description:
//
//	A transaction with no recorded changes is discarded silently and
//	observers are not notified. A successful commit clears the redo
//	stack unconditionally and notifies stack observers. Without an
//	open transaction Commit is a no-op.
func (m *Manager) Commit() {
	m.mu.Lock()
	st := m.commitLocked()
	m.mu.Unlock()

	if st != nil {
		m.notifier.notify(*st)
	}
}

// commitLocked commits the open transaction, if any. Returns the stack
// state to broadcast, or nil when nothing landed on the stacks.
// Caller must hold mu.
func (m *Manager) commitLocked() *StackState {
	if m.tx == nil {
		return nil
	}
	tx := m.tx
	m.tx = nil

	if tx.changes.Len() == 0 {
		m.log.Debug("empty transaction discarded", "action", tx.action)
		return nil
	}

	cmd := newCommand(tx.action, tx.changes, tx.meta, m.clk.Now().UnixMilli())
	m.undo.Push(cmd)
	m.redo.Clear()
	st := m.stateLocked()

	m.log.Debug("command committed",
		"action", cmd.Action,
		"command_id", cmd.ID,
		"changes", len(cmd.Changes),
		"undo_depth", st.UndoDepth,
	)
	return &st
}

// Cancel discards the open transaction without touching the stacks.
// Without an open transaction it is a no-op.
func (m *Manager) Cancel() {
	m.mu.Lock()
	had := m.tx != nil
	action := ""
	if had {
		action = m.tx.action
	}
	m.tx = nil
	m.mu.Unlock()

	if had {
		m.log.Debug("transaction cancelled", "action", action)
	}
}

// Run wraps fn in a transaction: commit on nil return, cancel on error.
//
// Inputs:
//
//	action - Gesture name for the committed command.
//	meta - Optional annotations. May be nil.
//	fn - Gesture body; its Record calls land in this transaction.
//
// Outputs:
//
//	error - The error from fn, unchanged.
func (m *Manager) Run(action string, meta Meta, fn func() error) error {
	m.Begin(action, meta)
	if err := fn(); err != nil {
		m.Cancel()
		return err
	}
	m.Commit()
	return nil
}

// InTransaction reports whether a transaction is currently open.
func (m *Manager) InTransaction() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx != nil
}

// -----------------------------------------------------------------------------
// Undo / redo
// -----------------------------------------------------------------------------

// Undo reverses the most recent command.
//
// Description:
//
//	Pops the newest command off the undo stack, derives the inverse
//	operations from its recorded deltas (creations delete, deletions
//	recreate, updates apply the Before side), and hands them to the
//	apply callback as one batch. On success the command moves to the
//	redo stack and observers are notified. On failure the command is
//	restored to the undo stack, observers are NOT notified, and the
//	wrapped error is returned. An empty undo stack is a silent no-op.
//
// Inputs:
//
//	ctx - Propagated to the apply callback.
//
// Outputs:
//
//	error - Non-nil only when the apply callback fails.
func (m *Manager) Undo(ctx context.Context) error {
	return m.replay(ctx, DirectionUndo)
}

// Redo re-applies the most recently undone command. Mirrors Undo over
// the After side of the recorded deltas; a silent no-op when the redo
// stack is empty.
func (m *Manager) Redo(ctx context.Context) error {
	return m.replay(ctx, DirectionRedo)
}

func (m *Manager) replay(ctx context.Context, direction Direction) error {
	m.mu.Lock()
	source, target := m.undo, m.redo
	if direction == DirectionRedo {
		source, target = m.redo, m.undo
	}

	cmd, ok := source.Pop()
	if !ok {
		m.mu.Unlock()
		m.log.Debug("nothing to replay", "direction", string(direction))
		return nil
	}

	var ops []Op
	if direction == DirectionUndo {
		ops = inverseOps(cmd.Changes)
	} else {
		ops = forwardOps(cmd.Changes)
	}
	m.mu.Unlock()

	// The apply callback does real work (store mutation, persistence) and
	// may call back into CanUndo/CanRedo; it runs outside the lock.
	if len(ops) > 0 {
		if err := m.apply(ctx, ops, direction); err != nil {
			m.mu.Lock()
			source.Push(cmd)
			m.mu.Unlock()
			m.log.Warn("replay failed, command restored",
				"direction", string(direction),
				"action", cmd.Action,
				"command_id", cmd.ID,
				"error", err,
			)
			return fmt.Errorf("%w: %s %q: %v", ErrApplyFailed, direction, cmd.Action, err)
		}
	}

	m.mu.Lock()
	target.Push(cmd)
	st := m.stateLocked()
	m.mu.Unlock()

	m.notifier.notify(st)
	m.log.Debug("command replayed",
		"direction", string(direction),
		"action", cmd.Action,
		"command_id", cmd.ID,
	)
	return nil
}

// -----------------------------------------------------------------------------
// Stack inspection and observation
// -----------------------------------------------------------------------------

// CanUndo reports whether the undo stack is non-empty.
func (m *Manager) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.undo.IsEmpty()
}

// CanRedo reports whether the redo stack is non-empty.
func (m *Manager) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.redo.IsEmpty()
}

// UndoDepth returns the number of undoable commands.
func (m *Manager) UndoDepth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.undo.Len()
}

// RedoDepth returns the number of redoable commands.
func (m *Manager) RedoDepth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.redo.Len()
}

// State returns the current stack state snapshot.
func (m *Manager) State() StackState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

// stateLocked builds a StackState. Caller must hold mu.
func (m *Manager) stateLocked() StackState {
	return StackState{
		CanUndo:   !m.undo.IsEmpty(),
		CanRedo:   !m.redo.IsEmpty(),
		UndoDepth: m.undo.Len(),
		RedoDepth: m.redo.Len(),
	}
}

// Subscribe registers an observer for stack state changes.
//
// Outputs:
//
//	string - Subscription ID for Unsubscribe.
func (m *Manager) Subscribe(fn StackObserver) string {
	return m.notifier.subscribe(fn)
}

// Unsubscribe removes a stack observer. Returns true if it was
// registered.
func (m *Manager) Unsubscribe(id string) bool {
	return m.notifier.unsubscribe(id)
}

// Close flushes all pending coalesced batches so in-flight gestures
// are not lost on teardown.
func (m *Manager) Close() {
	m.FlushAll()
}

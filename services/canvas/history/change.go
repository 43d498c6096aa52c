// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history groups shape edits into atomic, reversible commands
// and drives undo/redo replay through an injected apply callback.
//
// # Description
//
// Local gestures open a transaction, record before/after deltas per
// shape, and commit; the committed command lands on a bounded undo
// stack. Undo derives the inverse operations from the recorded deltas
// and hands them to the apply callback as one batch; redo replays the
// forward side. Bursts of fine-grained edits (drags, arrow-key nudges)
// are coalesced per key behind an idle timer so they collapse into a
// single undo step.
//
// All stacks, transactions and coalescing accumulators are per-Manager
// state; construct one Manager per actor per canvas.
package history

import (
	"github.com/AleutianAI/AleutianCanvas/services/canvas/shape"
)

// Direction tells the apply callback which way a command is replaying.
type Direction string

const (
	DirectionUndo Direction = "undo"
	DirectionRedo Direction = "redo"
)

// Change is the recorded delta for one shape within a command.
//
// Before == nil means the shape did not exist before the change
// (creation); After == nil means it no longer exists after (deletion);
// both non-nil is a field-level update. Creation and deletion records
// carry full Snapshot patches so replay can rebuild the exact shape.
type Change struct {
	ShapeID string       `json:"shapeId"`
	Before  *shape.Patch `json:"before"`
	After   *shape.Patch `json:"after"`
}

func (c Change) clone() Change {
	return Change{
		ShapeID: c.ShapeID,
		Before:  shape.ClonePatchPtr(c.Before),
		After:   shape.ClonePatchPtr(c.After),
	}
}

// -----------------------------------------------------------------------------
// ChangeSet
// -----------------------------------------------------------------------------

// ChangeSet folds repeated records for the same shape into one change,
// preserving first-record order across shapes.
//
// # Description
//
// Folding keeps the original Before from the first record — several
// low-level field writes belonging to one gesture must undo back to
// the exact pre-gesture snapshot in one step — and overlays subsequent
// After partials field by field. An incoming After == nil collapses
// the accumulated result to nil: the shape was deleted during the
// transaction and its intermediate edits are moot.
//
// # Thread Safety
//
// NOT safe for concurrent use; the owning Manager serializes.
type ChangeSet struct {
	order []string
	byID  map[string]*Change
}

// NewChangeSet creates an empty change set.
func NewChangeSet() *ChangeSet {
	return &ChangeSet{byID: make(map[string]*Change)}
}

// Record folds one before/after delta for the shape into the set.
// Patches are cloned on entry, so callers may reuse or mutate their
// arguments afterwards.
func (cs *ChangeSet) Record(shapeID string, before, after *shape.Patch) {
	existing, ok := cs.byID[shapeID]
	if !ok {
		cs.order = append(cs.order, shapeID)
		cs.byID[shapeID] = &Change{
			ShapeID: shapeID,
			Before:  shape.ClonePatchPtr(before),
			After:   shape.ClonePatchPtr(after),
		}
		return
	}

	switch {
	case after == nil:
		existing.After = nil
	case existing.After == nil:
		existing.After = shape.ClonePatchPtr(after)
	default:
		merged := existing.After.Merge(*after)
		existing.After = &merged
	}
}

// Len returns the number of distinct shapes recorded.
func (cs *ChangeSet) Len() int {
	return len(cs.order)
}

// Changes returns the folded changes in first-record order. The
// returned changes are deep copies.
func (cs *ChangeSet) Changes() []Change {
	out := make([]Change, 0, len(cs.order))
	for _, id := range cs.order {
		out = append(out, cs.byID[id].clone())
	}
	return out
}

// Get returns a copy of the folded change for the shape, if recorded.
func (cs *ChangeSet) Get(shapeID string) (Change, bool) {
	c, ok := cs.byID[shapeID]
	if !ok {
		return Change{}, false
	}
	return c.clone(), true
}

// -----------------------------------------------------------------------------
// Replay operations
// -----------------------------------------------------------------------------

// OpKind classifies a derived replay operation.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// Op is one derived replay operation handed to the apply callback.
// Shape is populated for creates, Patch for updates; deletes carry
// only the id.
type Op struct {
	Kind    OpKind
	ShapeID string
	Shape   shape.Shape
	Patch   shape.Patch
}

// inverseOps derives the operations that reverse the changes:
// creations delete, deletions recreate from Before, updates apply
// Before as a field update. Changes that net to nothing (both sides
// nil after folding) derive no operation.
func inverseOps(changes []Change) []Op {
	ops := make([]Op, 0, len(changes))
	for _, c := range changes {
		switch {
		case c.Before == nil && c.After == nil:
			continue
		case c.Before == nil:
			ops = append(ops, Op{Kind: OpDelete, ShapeID: c.ShapeID})
		case c.After == nil:
			ops = append(ops, Op{Kind: OpCreate, ShapeID: c.ShapeID, Shape: c.Before.Shape(c.ShapeID)})
		default:
			ops = append(ops, Op{Kind: OpUpdate, ShapeID: c.ShapeID, Patch: shape.ClonePatch(*c.Before)})
		}
	}
	return ops
}

// forwardOps derives the operations that re-apply the changes, the
// mirror of inverseOps over the After side.
func forwardOps(changes []Change) []Op {
	ops := make([]Op, 0, len(changes))
	for _, c := range changes {
		switch {
		case c.Before == nil && c.After == nil:
			continue
		case c.After == nil:
			ops = append(ops, Op{Kind: OpDelete, ShapeID: c.ShapeID})
		case c.Before == nil:
			ops = append(ops, Op{Kind: OpCreate, ShapeID: c.ShapeID, Shape: c.After.Shape(c.ShapeID)})
		default:
			ops = append(ops, Op{Kind: OpUpdate, ShapeID: c.ShapeID, Patch: shape.ClonePatch(*c.After)})
		}
	}
	return ops
}

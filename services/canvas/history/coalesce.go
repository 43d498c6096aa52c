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
	"time"

	"github.com/AleutianAI/AleutianCanvas/pkg/clock"
)

// coalesceEntry accumulates records for one coalescing key while its
// idle timer keeps getting pushed back.
type coalesceEntry struct {
	action  string
	meta    Meta
	changes *ChangeSet
	timer   clock.Timer
}

// Coalesce folds a burst of fine-grained edits into one history entry.
//
// Description:
//
//	Runs build synchronously. Record calls made inside build divert to
//	a per-key accumulator instead of a normal transaction, folding with
//	whatever the key has already accumulated. Each call re-arms the
//	key's idle timer; when no further call arrives within the idle
//	window the accumulated batch commits as a single command, so a
//	40-event drag undoes in one step. Distinct keys accumulate and
//	flush independently.
//
//	The timer is suspended while build runs, so a flush can never split
//	a burst mid-record.
//
// Inputs:
//
//	key - Identity of the burst, e.g. "move:shape-7". Calls with the
//	same key fold together.
//	action - Gesture name for the eventually committed command.
//	idle - Idle window before auto-commit. Non-positive values use the
//	configured default.
//	meta - Annotations for the committed command; the first call's meta
//	wins. May be nil.
//	build - Runs synchronously with records diverted. Must not be nil.
func (m *Manager) Coalesce(key, action string, idle time.Duration, meta Meta, build func()) {
	if build == nil {
		return
	}

	m.mu.Lock()
	entry, ok := m.pending[key]
	if !ok {
		entry = &coalesceEntry{
			action:  action,
			meta:    cloneMeta(meta),
			changes: NewChangeSet(),
		}
		m.pending[key] = entry
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	prev := m.capture
	m.capture = entry.changes
	m.mu.Unlock()

	// Restore the diversion and re-arm the timer even if build panics,
	// so records made before the panic still flush.
	defer func() {
		m.mu.Lock()
		m.capture = prev
		d := idle
		if d <= 0 {
			d = m.cfg.DefaultIdle
		}
		if entry.timer == nil {
			entry.timer = m.clk.AfterFunc(d, func() {
				m.Flush(key)
			})
		} else {
			entry.timer.Reset(d)
		}
		m.mu.Unlock()
	}()

	build()
}

// Flush commits the pending coalesced batch for the key immediately,
// without waiting for the idle timer. Unknown keys and empty batches
// are no-ops.
func (m *Manager) Flush(key string) {
	m.mu.Lock()
	entry, ok := m.pending[key]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.pending, key)
	if entry.timer != nil {
		entry.timer.Stop()
	}

	if entry.changes.Len() == 0 {
		m.mu.Unlock()
		return
	}

	cmd := newCommand(entry.action, entry.changes, entry.meta, m.clk.Now().UnixMilli())
	m.undo.Push(cmd)
	m.redo.Clear()
	st := m.stateLocked()
	m.mu.Unlock()

	m.notifier.notify(st)
	if m.cfg.OnFlush != nil {
		m.cfg.OnFlush()
	}
	m.log.Debug("coalesced command committed",
		"key", key,
		"action", cmd.Action,
		"command_id", cmd.ID,
		"changes", len(cmd.Changes),
	)
}

// FlushAll commits every pending coalesced batch. Called on teardown
// and before explicit undo, so a still-ticking drag becomes undoable
// state rather than a lost tail.
func (m *Manager) FlushAll() {
	m.mu.Lock()
	keys := make([]string, 0, len(m.pending))
	for key := range m.pending {
		keys = append(keys, key)
	}
	m.mu.Unlock()

	for _, key := range keys {
		m.Flush(key)
	}
}

// PendingKeys returns the coalescing keys that have not flushed yet.
// Primarily for tests and diagnostics.
func (m *Manager) PendingKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.pending))
	for key := range m.pending {
		keys = append(keys, key)
	}
	return keys
}

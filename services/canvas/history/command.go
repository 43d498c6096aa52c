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
	"github.com/google/uuid"
)

// Meta carries free-form annotations attached to a command, e.g. the
// gesture origin ("toolbar", "keyboard") or a selection snapshot.
type Meta map[string]any

func cloneMeta(m Meta) Meta {
	if m == nil {
		return nil
	}
	out := make(Meta, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Command is one committed, replayable history entry.
//
// # Description
//
// A command owns an immutable, ordered snapshot of the folded changes
// it was committed with. Undo and redo never mutate a command; they
// derive operation batches from it and move it between stacks.
type Command struct {
	ID        string  `json:"id"`
	Action    string  `json:"action"`
	Changes   []Change `json:"changes"`
	Timestamp int64   `json:"timestamp"`
	Meta      Meta    `json:"meta,omitempty"`
}

// newCommand snapshots the change set into an immutable command.
func newCommand(action string, changes *ChangeSet, meta Meta, atMillis int64) *Command {
	return &Command{
		ID:        uuid.NewString(),
		Action:    action,
		Changes:   changes.Changes(),
		Timestamp: atMillis,
		Meta:      cloneMeta(meta),
	}
}

// transaction accumulates records between Begin and Commit/Cancel.
type transaction struct {
	action  string
	meta    Meta
	changes *ChangeSet
}

func newTransaction(action string, meta Meta) *transaction {
	return &transaction{
		action:  action,
		meta:    meta,
		changes: NewChangeSet(),
	}
}

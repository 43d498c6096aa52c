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

import "github.com/AleutianAI/AleutianCanvas/services/canvas/shape"

// EventKind classifies an externally delivered shape change.
type EventKind string

const (
	// EventAdded announces a shape that entered the authoritative set.
	EventAdded EventKind = "added"

	// EventModified announces a complete replacement snapshot for an
	// existing shape.
	EventModified EventKind = "modified"

	// EventRemoved announces a shape that left the authoritative set.
	EventRemoved EventKind = "removed"
)

// Event is one externally delivered shape change. The shape is always
// the complete snapshot, even for removals (keyed by Shape.ID).
type Event struct {
	Kind  EventKind   `json:"kind"`
	Shape shape.Shape `json:"shape"`
}

// Batch is an ordered list of events delivered together.
type Batch []Event

// Added builds an added event for the shape.
func Added(s shape.Shape) Event { return Event{Kind: EventAdded, Shape: s} }

// Modified builds a modified event for the shape.
func Modified(s shape.Shape) Event { return Event{Kind: EventModified, Shape: s} }

// Removed builds a removed event for the shape.
func Removed(s shape.Shape) Event { return Event{Kind: EventRemoved, Shape: s} }

// ApplyEvents folds a batch of external change events into the store.
//
// # Description
//
// Events apply strictly in the order given, synchronously, with no
// I/O. The reducer is idempotent against duplicate delivery:
//
//   - added: inserted only when no shape with that id exists;
//     re-delivery of the same added event leaves exactly one instance.
//   - modified: wholesale replacement of the stored shape with the
//     incoming snapshot (no field merge); unknown id is a no-op.
//   - removed: deletes the shape when present and always purges the id
//     from the selection; unknown id is otherwise a no-op.
//
// No event ever raises. There is no timestamp or version arbitration:
// the last modified event processed for an id determines final state
// even if it was generated earlier in wall-clock time. That
// last-event-wins behavior is the engine's intended conflict boundary,
// inherited from the field-replacement granularity of the persistence
// channel.
//
// # Outputs
//
//   - applied: How many events mutated the shape map. Duplicate adds,
//     unknown-id modifies and unknown-id removes do not count.
func (s *Store) ApplyEvents(events Batch) (applied int) {
	for _, ev := range events {
		id := ev.Shape.ID
		switch ev.Kind {
		case EventAdded:
			if _, exists := s.shapes[id]; exists {
				continue
			}
			s.Upsert(ev.Shape)
			applied++
		case EventModified:
			if _, exists := s.shapes[id]; !exists {
				continue
			}
			s.shapes[id] = ev.Shape
			applied++
		case EventRemoved:
			if s.Remove(id) {
				applied++
			} else {
				s.selection.Remove(id)
			}
		}
	}
	return applied
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store holds the canonical in-memory shape collection for one
// engine instance, the multi-selection that points into it, and the
// reconciler that folds externally delivered change events into it.
//
// # Description
//
// The store is a pure data holder: mutation primitives for the local
// edit path (Upsert/Patch/Remove) and an idempotent event reducer for
// the remote path (ApplyEvents). It performs no I/O, never blocks, and
// keeps at most one shape per id.
//
// # Thread Safety
//
// NOT safe for concurrent use. Each engine instance owns one store and
// serializes access; see the canvas package.
package store

import (
	"sort"

	"github.com/AleutianAI/AleutianCanvas/services/canvas/shape"
)

// Store is the canonical local shape collection plus the current
// selection.
//
// Shapes preserve insertion order for deterministic iteration; Shapes()
// additionally sorts by zIndex for render-order consumers.
type Store struct {
	shapes    map[string]shape.Shape
	order     []string
	selection *Selection
}

// NewStore creates an empty store with an empty selection.
func NewStore() *Store {
	return &Store{
		shapes:    make(map[string]shape.Shape),
		selection: NewSelection(),
	}
}

// Len returns the number of shapes held.
func (s *Store) Len() int {
	return len(s.shapes)
}

// Has reports whether a shape with the id exists.
func (s *Store) Has(id string) bool {
	_, ok := s.shapes[id]
	return ok
}

// Get returns a copy of the shape with the id.
func (s *Store) Get(id string) (shape.Shape, bool) {
	sh, ok := s.shapes[id]
	return sh, ok
}

// Upsert inserts the shape or replaces the stored one wholesale.
func (s *Store) Upsert(sh shape.Shape) {
	if _, exists := s.shapes[sh.ID]; !exists {
		s.order = append(s.order, sh.ID)
	}
	s.shapes[sh.ID] = sh
}

// Patch applies a partial update to an existing shape, returning the
// updated copy. A missing id is a no-op reported via ok=false.
func (s *Store) Patch(id string, p shape.Patch) (shape.Shape, bool) {
	sh, ok := s.shapes[id]
	if !ok {
		return shape.Shape{}, false
	}
	p.ApplyTo(&sh)
	s.shapes[id] = sh
	return sh, true
}

// Remove deletes the shape with the id, if present, and purges it from
// the selection. Reports whether a shape was removed.
func (s *Store) Remove(id string) bool {
	if _, ok := s.shapes[id]; !ok {
		return false
	}
	delete(s.shapes, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.selection.Remove(id)
	return true
}

// IDs returns the shape ids in insertion order.
func (s *Store) IDs() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Shapes returns copies of all shapes in render order: ascending
// zIndex, insertion order among equals.
func (s *Store) Shapes() []shape.Shape {
	out := make([]shape.Shape, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.shapes[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ZIndex < out[j].ZIndex
	})
	return out
}

// Selection returns the store's selection. The returned value is live:
// mutating it mutates the store's selection.
func (s *Store) Selection() *Selection {
	return s.selection
}

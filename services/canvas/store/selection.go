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

// Selection is an ordered multi-selection of shape ids.
//
// # Description
//
// Selection never persists and never broadcasts — it is view state,
// one per actor. The service layer gives each connection its own
// Selection and purges it when removal events arrive, mirroring what
// Store.Remove does for the engine-local selection.
//
// # Thread Safety
//
// NOT safe for concurrent use; the owner serializes.
type Selection struct {
	order []string
	set   map[string]struct{}
}

// NewSelection creates an empty selection.
func NewSelection() *Selection {
	return &Selection{set: make(map[string]struct{})}
}

// Add selects the id, reporting whether it was newly added.
func (sel *Selection) Add(id string) bool {
	if _, ok := sel.set[id]; ok {
		return false
	}
	sel.set[id] = struct{}{}
	sel.order = append(sel.order, id)
	return true
}

// Remove deselects the id, reporting whether it was selected.
func (sel *Selection) Remove(id string) bool {
	if _, ok := sel.set[id]; !ok {
		return false
	}
	delete(sel.set, id)
	for i, existing := range sel.order {
		if existing == id {
			sel.order = append(sel.order[:i], sel.order[i+1:]...)
			break
		}
	}
	return true
}

// Clear deselects everything, returning how many ids were dropped.
func (sel *Selection) Clear() int {
	n := len(sel.order)
	sel.order = sel.order[:0]
	sel.set = make(map[string]struct{})
	return n
}

// Has reports whether the id is selected.
func (sel *Selection) Has(id string) bool {
	_, ok := sel.set[id]
	return ok
}

// IDs returns the selected ids in selection order.
func (sel *Selection) IDs() []string {
	out := make([]string, len(sel.order))
	copy(out, sel.order)
	return out
}

// Len returns the number of selected ids.
func (sel *Selection) Len() int {
	return len(sel.order)
}

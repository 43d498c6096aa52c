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
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// StackState is the snapshot delivered to stack observers whenever the
// undo or redo stack changes. UI layers bind enable/disable state of
// their undo and redo affordances to it.
type StackState struct {
	CanUndo   bool `json:"canUndo"`
	CanRedo   bool `json:"canRedo"`
	UndoDepth int  `json:"undoDepth"`
	RedoDepth int  `json:"redoDepth"`
}

// StackObserver receives stack state snapshots.
type StackObserver func(state StackState)

// stackNotifier broadcasts stack state changes to observers.
//
// Thread Safety: stackNotifier is safe for concurrent use.
type stackNotifier struct {
	mu        sync.RWMutex
	observers map[string]StackObserver
	order     []string
}

func newStackNotifier() *stackNotifier {
	return &stackNotifier{observers: make(map[string]StackObserver)}
}

// subscribe registers an observer and returns its subscription ID.
func (n *stackNotifier) subscribe(fn StackObserver) string {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := uuid.NewString()
	n.observers[id] = fn
	n.order = append(n.order, id)
	return id
}

// unsubscribe removes an observer. Returns true if it was registered.
func (n *stackNotifier) unsubscribe(id string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.observers[id]; !ok {
		return false
	}
	delete(n.observers, id)
	for i, existing := range n.order {
		if existing == id {
			n.order = append(n.order[:i], n.order[i+1:]...)
			break
		}
	}
	return true
}

// notify delivers the state to every observer in subscription order.
// Observer panics are recovered so one misbehaving observer cannot
// starve the rest.
func (n *stackNotifier) notify(state StackState) {
	n.mu.RLock()
	observers := make([]StackObserver, 0, len(n.order))
	for _, id := range n.order {
		observers = append(observers, n.observers[id])
	}
	n.mu.RUnlock()

	for _, fn := range observers {
		n.safeInvoke(fn, state)
	}
}

func (n *stackNotifier) safeInvoke(fn StackObserver, state StackState) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("stack observer panicked",
				"can_undo", state.CanUndo,
				"can_redo", state.CanRedo,
				"panic", r,
			)
		}
	}()
	fn(state)
}

// count returns the number of registered observers.
func (n *stackNotifier) count() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.observers)
}

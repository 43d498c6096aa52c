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
	"encoding/json"
	"sync"

	"github.com/AleutianAI/AleutianCanvas/pkg/logging"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/persist"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/store"
)

// Hub fans one board's event stream out to its websocket clients.
//
// # Description
//
// The hub holds a single canvas-level persistence subscription; each
// delivered batch is marshalled once and pushed onto every client's
// buffered send channel. A client whose buffer is full is considered
// too slow to keep up and is disconnected rather than allowed to stall
// the board.
//
// # Thread Safety
//
// Safe for concurrent use. Broadcasts arrive on the subscription's
// delivery goroutine; registers and unregisters arrive from connection
// handlers.
type Hub struct {
	canvasID string
	persist  persist.Service
	log      *logging.Logger
	metrics  *Metrics
	subID    string

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

// newHub creates the hub and joins the board's event stream.
func newHub(canvasID string, p persist.Service, log *logging.Logger, metrics *Metrics) *Hub {
	h := &Hub{
		canvasID: canvasID,
		persist:  p,
		log:      log.With("board_id", canvasID),
		metrics:  metrics,
		clients:  make(map[*wsClient]struct{}),
	}
	h.subID = p.Subscribe(canvasID, h.broadcast)
	return h
}

// register adds a client to the board. Returns false when the hub is
// already closed.
func (h *Hub) register(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.metrics.ClientConnected(h.canvasID, 1)
	return true
}

// unregister removes a client. Safe to call for a client that was
// already removed.
func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	h.metrics.ClientConnected(h.canvasID, -1)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// broadcast pushes one event batch to every client as an "events"
// frame. Runs on the persistence subscription's delivery goroutine.
func (h *Hub) broadcast(events []store.Event) {
	frame := ServerFrame{Type: FrameEvents, Events: events}
	data, err := json.Marshal(frame)
	if err != nil {
		h.log.Error("marshal events frame", "error", err)
		return
	}

	h.mu.Lock()
	targets := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		if !c.trySend(data) {
			h.log.Warn("disconnecting slow client", "actor", c.actor)
			c.shutdown()
		}
	}
	h.metrics.ObserveBroadcastFanout(len(targets))
}

// close disconnects every client and leaves the event stream. The hub
// cannot be reused afterwards.
func (h *Hub) close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	targets := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	h.persist.Unsubscribe(h.canvasID, h.subID)
	for _, c := range targets {
		h.metrics.ClientConnected(h.canvasID, -1)
		c.shutdown()
	}
	h.log.Info("board hub closed", "clients_disconnected", len(targets))
}

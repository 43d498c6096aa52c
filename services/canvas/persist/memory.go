// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package persist

import (
	"context"
	"sort"
	"sync"

	"github.com/AleutianAI/AleutianCanvas/services/canvas/shape"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/store"
)

// Memory is the in-memory Service implementation, used in tests and
// for ephemeral canvases that should not survive a restart.
//
// # Thread Safety
//
// Safe for concurrent use.
type Memory struct {
	*Fanout
	mu       sync.Mutex
	canvases map[string]*memCanvas
}

type memCanvas struct {
	shapes map[string]shape.Shape
	order  []string
}

var _ Service = (*Memory)(nil)

// NewMemory creates an empty in-memory service.
func NewMemory() *Memory {
	return &Memory{
		Fanout:   NewFanout(nil),
		canvases: make(map[string]*memCanvas),
	}
}

func (m *Memory) canvas(id string) *memCanvas {
	c, ok := m.canvases[id]
	if !ok {
		c = &memCanvas{shapes: make(map[string]shape.Shape)}
		m.canvases[id] = c
	}
	return c
}

// CreateShape stores the shape and broadcasts an added event.
func (m *Memory) CreateShape(ctx context.Context, canvasID string, s shape.Shape) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	c := m.canvas(canvasID)
	if _, exists := c.shapes[s.ID]; !exists {
		c.order = append(c.order, s.ID)
	}
	c.shapes[s.ID] = s
	m.mu.Unlock()

	m.Publish(canvasID, store.Batch{store.Added(s)})
	return nil
}

// UpdateShape replaces the stored shape wholesale. Updating a shape
// that no longer exists is a no-op: the delete already won.
func (m *Memory) UpdateShape(ctx context.Context, canvasID string, s shape.Shape) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	c := m.canvas(canvasID)
	if _, exists := c.shapes[s.ID]; !exists {
		m.mu.Unlock()
		return nil
	}
	c.shapes[s.ID] = s
	m.mu.Unlock()

	m.Publish(canvasID, store.Batch{store.Modified(s)})
	return nil
}

// DeleteShape removes the shape and broadcasts its final snapshot.
// Absent shapes are a no-op.
func (m *Memory) DeleteShape(ctx context.Context, canvasID, shapeID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	c := m.canvas(canvasID)
	s, exists := c.shapes[shapeID]
	if !exists {
		m.mu.Unlock()
		return nil
	}
	delete(c.shapes, shapeID)
	for i, id := range c.order {
		if id == shapeID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	m.Publish(canvasID, store.Batch{store.Removed(s)})
	return nil
}

// FetchAllShapes returns every shape on the canvas in creation order.
func (m *Memory) FetchAllShapes(ctx context.Context, canvasID string) ([]shape.Shape, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.canvases[canvasID]
	if !ok {
		return nil, nil
	}
	out := make([]shape.Shape, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.shapes[id])
	}
	return out, nil
}

// ListCanvases returns the sorted IDs of canvases holding at least
// one shape.
func (m *Memory) ListCanvases(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.canvases))
	for id, c := range m.canvases {
		if len(c.shapes) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Close tears down all subscriptions. Stored shapes are discarded
// with the process.
func (m *Memory) Close() error {
	m.Fanout.Close()
	return nil
}

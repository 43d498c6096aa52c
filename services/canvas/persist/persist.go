// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package persist is the canvas-wide shared persistence and broadcast
// service.
//
// # Description
//
// One Service instance backs all connections to a canvas. Engines push
// their local mutations through it and subscribe to receive everyone's
// mutations back, their own included: echo-to-all keeps the fanout
// trivially correct and leans on the reconciler's idempotence to make
// self-echoes harmless.
//
// Delivery is per-subscriber FIFO on a dedicated goroutine, so a slow
// consumer never reorders events or blocks the publisher, and
// subscriber callbacks can safely take their own locks.
package persist

import (
	"context"

	"github.com/AleutianAI/AleutianCanvas/services/canvas/shape"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/store"
)

// Subscriber receives shape event batches for one canvas, in publish
// order.
type Subscriber func(events []store.Event)

// Service is the persistence and broadcast surface engines talk to.
//
// # Description
//
// Mutations are full-shape, not delta: UpdateShape replaces the stored
// shape wholesale, matching the last-event-wins policy of the
// reconciler that consumes the resulting events. Every successful
// mutation is broadcast to all of the canvas's subscribers.
type Service interface {
	// CreateShape stores the shape and broadcasts an added event.
	CreateShape(ctx context.Context, canvasID string, s shape.Shape) error

	// UpdateShape replaces the stored shape wholesale and broadcasts a
	// modified event.
	UpdateShape(ctx context.Context, canvasID string, s shape.Shape) error

	// DeleteShape removes the shape and broadcasts a removed event
	// carrying the final snapshot. Deleting an absent shape is a
	// no-op, so replayed deletes stay safe.
	DeleteShape(ctx context.Context, canvasID, shapeID string) error

	// FetchAllShapes loads every shape on the canvas for initial sync,
	// ordered by creation time.
	FetchAllShapes(ctx context.Context, canvasID string) ([]shape.Shape, error)

	// ListCanvases returns the sorted IDs of canvases that currently
	// hold at least one shape.
	ListCanvases(ctx context.Context) ([]string, error)

	// Subscribe registers a subscriber for the canvas's event stream
	// and returns its subscription ID.
	Subscribe(canvasID string, fn Subscriber) string

	// Unsubscribe removes a subscription. Returns true if it existed.
	Unsubscribe(canvasID, id string) bool

	// Close tears down the service and all subscriptions.
	Close() error
}

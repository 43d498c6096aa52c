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
	"sort"

	"github.com/AleutianAI/AleutianCanvas/services/canvas/shape"
)

// CreateBoardRequest is the body for POST /v1/canvas/boards.
type CreateBoardRequest struct {
	// ID optionally names the board. Empty lets the server assign a
	// UUID.
	ID string `json:"id,omitempty" binding:"omitempty,max=64"`
}

// BoardResponse describes one board.
type BoardResponse struct {
	ID      string `json:"id"`
	Shapes  int    `json:"shapes"`
	Clients int    `json:"clients"`
}

// BoardListResponse is the body for GET /v1/canvas/boards.
type BoardListResponse struct {
	Boards []BoardResponse `json:"boards"`
}

// BoardSnapshotResponse is the body for GET /v1/canvas/boards/:id.
// Shapes are in render order: ascending z-index, then creation time.
type BoardSnapshotResponse struct {
	ID     string        `json:"id"`
	Shapes []shape.Shape `json:"shapes"`
}

// HealthResponse is the body for GET /v1/canvas/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse is the body for GET /v1/canvas/ready.
type ReadyResponse struct {
	Ready  bool `json:"ready"`
	Boards int  `json:"boards"`
}

// ErrorResponse is the error body for every REST endpoint.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// sortForRender orders shapes by ascending z-index, breaking ties by
// creation time and then id, matching the store's render order.
func sortForRender(shapes []shape.Shape) {
	sort.SliceStable(shapes, func(i, j int) bool {
		if shapes[i].ZIndex != shapes[j].ZIndex {
			return shapes[i].ZIndex < shapes[j].ZIndex
		}
		if shapes[i].CreatedAt != shapes[j].CreatedAt {
			return shapes[i].CreatedAt < shapes[j].CreatedAt
		}
		return shapes[i].ID < shapes[j].ID
	})
}

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

import "errors"

var (
	// ErrShapeNotFound is returned when an operation targets a shape
	// that is not in the actor's store.
	ErrShapeNotFound = errors.New("shape not found")

	// ErrEngineClosed is returned by gesture methods after Close.
	ErrEngineClosed = errors.New("engine closed")

	// ErrCanvasNotFound is returned when a canvas ID is not registered
	// with the service.
	ErrCanvasNotFound = errors.New("canvas not found")

	// ErrInvalidConfig is returned when a configuration fails
	// validation.
	ErrInvalidConfig = errors.New("invalid canvas config")

	// ErrInvalidBoardID is returned for empty or oversized board ids.
	ErrInvalidBoardID = errors.New("invalid board id")

	// ErrServiceClosed is returned by registry operations after the
	// service shuts down.
	ErrServiceClosed = errors.New("canvas service closed")
)

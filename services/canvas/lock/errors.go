// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lock

import "errors"

var (
	// ErrShapeNotFound is returned when a lock operation targets a
	// shape that is not in the store.
	ErrShapeNotFound = errors.New("shape not found")

	// ErrActorRequired is returned when an acquire names no actor.
	ErrActorRequired = errors.New("actor is required")

	// ErrInvalidConfig is returned when a Config fails validation.
	ErrInvalidConfig = errors.New("invalid lock config")
)

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

import "errors"

var (
	// ErrNoActiveTransaction is returned when Record is called outside
	// an open transaction.
	ErrNoActiveTransaction = errors.New("no active transaction")

	// ErrApplyFailed wraps errors returned by the apply callback during
	// undo or redo replay.
	ErrApplyFailed = errors.New("history apply failed")

	// ErrInvalidConfig is returned when a Config fails validation.
	ErrInvalidConfig = errors.New("invalid history config")
)

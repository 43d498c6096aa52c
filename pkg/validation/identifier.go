// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for client-supplied
// identifiers.
//
// Board ids become database key prefixes and URL path segments, and actor
// names are persisted into shape attribution and emitted into structured
// logs. Validating them at the boundary keeps malformed or hostile input
// out of keys, paths and log streams.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// boardIDPattern matches valid board identifiers.
// Allows: letters, digits, dots, underscores, hyphens; must start with a
// letter or digit. Max length: 64 characters.
var boardIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]{0,63}$`)

// actorPattern matches valid actor names: 1-64 characters with no
// control characters. Interior spaces are allowed so display names work.
var actorPattern = regexp.MustCompile(`^[^[:cntrl:]]{1,64}$`)

// ValidateBoardID validates a board identifier before it is used as a
// storage key prefix or URL path segment.
//
// Valid board ids:
//   - 1-64 characters
//   - Letters A-Z a-z, digits 0-9
//   - Dots (.), underscores (_) and hyphens (-) after the first character
//
// Returns an error if the id is invalid.
//
// Example:
//
//	if err := validation.ValidateBoardID(id); err != nil {
//	    return fmt.Errorf("%w: %v", ErrInvalidBoardID, err)
//	}
//	// Safe to use as a key prefix
func ValidateBoardID(id string) error {
	if id == "" {
		return fmt.Errorf("board id cannot be empty")
	}

	if !boardIDPattern.MatchString(id) {
		return fmt.Errorf("invalid board id %q (must be 1-64 alphanumeric chars, dots, underscores, or hyphens)", id)
	}

	return nil
}

// ValidateActorName validates an actor name before it is persisted into
// shape attribution fields or echoed into logs. Names are free-form but
// bounded and may not contain control characters.
func ValidateActorName(actor string) error {
	if actor == "" {
		return fmt.Errorf("actor name cannot be empty")
	}

	if !actorPattern.MatchString(actor) {
		return fmt.Errorf("invalid actor name %q (must be 1-64 characters without control characters)", actor)
	}

	return nil
}

// SanitizeBoardID normalizes and validates a board identifier.
// Returns the trimmed id if valid, or an error if invalid. Case is
// preserved; boards named "Retro" and "retro" are distinct.
func SanitizeBoardID(id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if err := ValidateBoardID(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package shape defines the drawable entity model shared by the canvas
// engine: the Shape record, its partial-update Patch form, and the
// helpers for cloning and validation.
//
// # Description
//
// Shapes are flat records discriminated by a type tag rather than an
// interface hierarchy: every variant (rectangle, circle, text, image)
// shares the same struct with variant fields left at their zero value.
// That keeps wholesale replacement, JSON wire format, and persistence
// trivial — a shape is always a complete, self-describing snapshot.
//
// Collaboration metadata (createdBy/lastModifiedBy timestamps and the
// advisory lock fields lockedBy/lockedAt) are ordinary fields and
// travel with the shape through every channel.
//
// # Thread Safety
//
// Shape and Patch are plain value types. Copies are independent except
// for Patch's pointer fields; use ClonePatch before retaining a Patch
// whose source may mutate.
package shape

import (
	"errors"
	"fmt"

	"github.com/brunoga/deep"
	"github.com/google/uuid"
)

// Validation errors.
var (
	// ErrInvalidShape indicates a shape failed structural validation.
	ErrInvalidShape = errors.New("invalid shape")
)

// Kind discriminates the shape variants.
type Kind string

const (
	KindRectangle Kind = "rectangle"
	KindCircle    Kind = "circle"
	KindText      Kind = "text"
	KindImage     Kind = "image"
)

// Valid reports whether k names a known variant.
func (k Kind) Valid() bool {
	switch k {
	case KindRectangle, KindCircle, KindText, KindImage:
		return true
	default:
		return false
	}
}

// -----------------------------------------------------------------------------
// Shape
// -----------------------------------------------------------------------------

// Shape is a drawable entity.
//
// # Description
//
// Common fields apply to every variant. Variant fields are meaningful
// only for the kinds noted and are omitted from JSON when zero:
//
//   - rectangle, image: Width, Height
//   - circle: Radius
//   - text: Text, FontSize, Bold, Italic
//   - image: URL
//
// Timestamps are epoch milliseconds. LockedBy == "" / LockedAt == 0
// mean the shape is unheld; the lock fields are advisory (see the lock
// package) and ride the same persistence channel as everything else.
type Shape struct {
	ID       string  `json:"id"`
	Kind     Kind    `json:"type"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Color    string  `json:"color"`
	Rotation float64 `json:"rotation,omitempty"`
	ZIndex   int     `json:"zIndex,omitempty"`

	CreatedBy      string `json:"createdBy"`
	CreatedAt      int64  `json:"createdAt"`
	LastModifiedBy string `json:"lastModifiedBy"`
	LastModifiedAt int64  `json:"lastModifiedAt"`

	LockedBy string `json:"lockedBy,omitempty"`
	LockedAt int64  `json:"lockedAt,omitempty"`

	Width    float64 `json:"width,omitempty"`
	Height   float64 `json:"height,omitempty"`
	Radius   float64 `json:"radius,omitempty"`
	Text     string  `json:"text,omitempty"`
	FontSize float64 `json:"fontSize,omitempty"`
	Bold     bool    `json:"bold,omitempty"`
	Italic   bool    `json:"italic,omitempty"`
	URL      string  `json:"url,omitempty"`
}

// New creates a shape of the given kind with a fresh id, creation and
// modification metadata stamped to the actor and instant, and unheld
// lock fields. Geometry and styling start at zero values; callers fill
// them before validating.
func New(kind Kind, actor string, at int64) Shape {
	return Shape{
		ID:             uuid.NewString(),
		Kind:           kind,
		CreatedBy:      actor,
		CreatedAt:      at,
		LastModifiedBy: actor,
		LastModifiedAt: at,
	}
}

// TouchModified stamps the modification metadata in place.
func (s *Shape) TouchModified(actor string, at int64) {
	s.LastModifiedBy = actor
	s.LastModifiedAt = at
}

// Validate checks structural invariants for the shape's kind.
//
// # Description
//
// Used on inbound payloads before they enter the store. Errors wrap
// ErrInvalidShape so callers can classify with errors.Is.
func (s Shape) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidShape)
	}
	if !s.Kind.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidShape, s.Kind)
	}

	switch s.Kind {
	case KindRectangle, KindImage:
		if s.Width <= 0 || s.Height <= 0 {
			return fmt.Errorf("%w: %s %q requires positive width/height", ErrInvalidShape, s.Kind, s.ID)
		}
	case KindCircle:
		if s.Radius <= 0 {
			return fmt.Errorf("%w: circle %q requires positive radius", ErrInvalidShape, s.ID)
		}
	case KindText:
		if s.Text == "" {
			return fmt.Errorf("%w: text %q requires text content", ErrInvalidShape, s.ID)
		}
		if s.FontSize < 0 {
			return fmt.Errorf("%w: text %q has negative fontSize", ErrInvalidShape, s.ID)
		}
	}
	return nil
}

// Clone returns an independent copy of the shape.
func Clone(s Shape) Shape {
	return deep.MustCopy(s)
}

// CloneAll returns independent copies of every shape in the slice.
func CloneAll(shapes []Shape) []Shape {
	return deep.MustCopy(shapes)
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package shape

import "github.com/brunoga/deep"

// Patch is a partial shape: every field is a pointer so that "not
// provided" (nil) is distinct from "set to the zero value".
//
// # Description
//
// Patches are the unit of field-level change everywhere in the engine:
// history change records carry before/after patches, updates arrive
// from clients as patches, and lock writes are two-field patches. A
// patch never carries the shape id — the id always travels alongside.
//
// A fully populated patch (see Snapshot) can recreate its shape from
// scratch, which is how undo restores a deleted shape.
type Patch struct {
	Kind     *Kind    `json:"type,omitempty"`
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
	Color    *string  `json:"color,omitempty"`
	Rotation *float64 `json:"rotation,omitempty"`
	ZIndex   *int     `json:"zIndex,omitempty"`

	CreatedBy      *string `json:"createdBy,omitempty"`
	CreatedAt      *int64  `json:"createdAt,omitempty"`
	LastModifiedBy *string `json:"lastModifiedBy,omitempty"`
	LastModifiedAt *int64  `json:"lastModifiedAt,omitempty"`

	LockedBy *string `json:"lockedBy,omitempty"`
	LockedAt *int64  `json:"lockedAt,omitempty"`

	Width    *float64 `json:"width,omitempty"`
	Height   *float64 `json:"height,omitempty"`
	Radius   *float64 `json:"radius,omitempty"`
	Text     *string  `json:"text,omitempty"`
	FontSize *float64 `json:"fontSize,omitempty"`
	Bold     *bool    `json:"bold,omitempty"`
	Italic   *bool    `json:"italic,omitempty"`
	URL      *string  `json:"url,omitempty"`
}

// IsEmpty reports whether the patch provides no fields.
func (p Patch) IsEmpty() bool {
	return p == Patch{}
}

// Merge overlays other onto p: fields other provides win, fields it
// leaves nil keep p's value. Neither receiver nor argument is
// modified; the result shares no pointers with either.
func (p Patch) Merge(other Patch) Patch {
	out := ClonePatch(p)
	o := ClonePatch(other)

	if o.Kind != nil {
		out.Kind = o.Kind
	}
	if o.X != nil {
		out.X = o.X
	}
	if o.Y != nil {
		out.Y = o.Y
	}
	if o.Color != nil {
		out.Color = o.Color
	}
	if o.Rotation != nil {
		out.Rotation = o.Rotation
	}
	if o.ZIndex != nil {
		out.ZIndex = o.ZIndex
	}
	if o.CreatedBy != nil {
		out.CreatedBy = o.CreatedBy
	}
	if o.CreatedAt != nil {
		out.CreatedAt = o.CreatedAt
	}
	if o.LastModifiedBy != nil {
		out.LastModifiedBy = o.LastModifiedBy
	}
	if o.LastModifiedAt != nil {
		out.LastModifiedAt = o.LastModifiedAt
	}
	if o.LockedBy != nil {
		out.LockedBy = o.LockedBy
	}
	if o.LockedAt != nil {
		out.LockedAt = o.LockedAt
	}
	if o.Width != nil {
		out.Width = o.Width
	}
	if o.Height != nil {
		out.Height = o.Height
	}
	if o.Radius != nil {
		out.Radius = o.Radius
	}
	if o.Text != nil {
		out.Text = o.Text
	}
	if o.FontSize != nil {
		out.FontSize = o.FontSize
	}
	if o.Bold != nil {
		out.Bold = o.Bold
	}
	if o.Italic != nil {
		out.Italic = o.Italic
	}
	if o.URL != nil {
		out.URL = o.URL
	}
	return out
}

// ApplyTo writes every provided field onto the shape in place.
func (p Patch) ApplyTo(s *Shape) {
	if p.Kind != nil {
		s.Kind = *p.Kind
	}
	if p.X != nil {
		s.X = *p.X
	}
	if p.Y != nil {
		s.Y = *p.Y
	}
	if p.Color != nil {
		s.Color = *p.Color
	}
	if p.Rotation != nil {
		s.Rotation = *p.Rotation
	}
	if p.ZIndex != nil {
		s.ZIndex = *p.ZIndex
	}
	if p.CreatedBy != nil {
		s.CreatedBy = *p.CreatedBy
	}
	if p.CreatedAt != nil {
		s.CreatedAt = *p.CreatedAt
	}
	if p.LastModifiedBy != nil {
		s.LastModifiedBy = *p.LastModifiedBy
	}
	if p.LastModifiedAt != nil {
		s.LastModifiedAt = *p.LastModifiedAt
	}
	if p.LockedBy != nil {
		s.LockedBy = *p.LockedBy
	}
	if p.LockedAt != nil {
		s.LockedAt = *p.LockedAt
	}
	if p.Width != nil {
		s.Width = *p.Width
	}
	if p.Height != nil {
		s.Height = *p.Height
	}
	if p.Radius != nil {
		s.Radius = *p.Radius
	}
	if p.Text != nil {
		s.Text = *p.Text
	}
	if p.FontSize != nil {
		s.FontSize = *p.FontSize
	}
	if p.Bold != nil {
		s.Bold = *p.Bold
	}
	if p.Italic != nil {
		s.Italic = *p.Italic
	}
	if p.URL != nil {
		s.URL = *p.URL
	}
}

// Shape materializes a full shape with the given id from the patch.
// Fields the patch does not provide are zero; a Snapshot patch yields
// an exact reconstruction.
func (p Patch) Shape(id string) Shape {
	s := Shape{ID: id}
	p.ApplyTo(&s)
	return s
}

// Snapshot captures every field of s as a fully populated patch.
//
// Used when recording a deletion so undo can recreate the exact
// pre-deletion shape, and by the reconciler-facing echo tests.
func Snapshot(s Shape) Patch {
	return Patch{
		Kind:           ptr(s.Kind),
		X:              ptr(s.X),
		Y:              ptr(s.Y),
		Color:          ptr(s.Color),
		Rotation:       ptr(s.Rotation),
		ZIndex:         ptr(s.ZIndex),
		CreatedBy:      ptr(s.CreatedBy),
		CreatedAt:      ptr(s.CreatedAt),
		LastModifiedBy: ptr(s.LastModifiedBy),
		LastModifiedAt: ptr(s.LastModifiedAt),
		LockedBy:       ptr(s.LockedBy),
		LockedAt:       ptr(s.LockedAt),
		Width:          ptr(s.Width),
		Height:         ptr(s.Height),
		Radius:         ptr(s.Radius),
		Text:           ptr(s.Text),
		FontSize:       ptr(s.FontSize),
		Bold:           ptr(s.Bold),
		Italic:         ptr(s.Italic),
		URL:            ptr(s.URL),
	}
}

// Project captures the current values of exactly the fields mask
// provides, as a new patch.
//
// This is how the before side of an update is recorded: for an
// incoming after patch, Project(current, after) holds the old values
// of only the fields about to change, so undo touches nothing else.
func Project(s Shape, mask Patch) Patch {
	full := Snapshot(s)
	out := Patch{}

	if mask.Kind != nil {
		out.Kind = full.Kind
	}
	if mask.X != nil {
		out.X = full.X
	}
	if mask.Y != nil {
		out.Y = full.Y
	}
	if mask.Color != nil {
		out.Color = full.Color
	}
	if mask.Rotation != nil {
		out.Rotation = full.Rotation
	}
	if mask.ZIndex != nil {
		out.ZIndex = full.ZIndex
	}
	if mask.CreatedBy != nil {
		out.CreatedBy = full.CreatedBy
	}
	if mask.CreatedAt != nil {
		out.CreatedAt = full.CreatedAt
	}
	if mask.LastModifiedBy != nil {
		out.LastModifiedBy = full.LastModifiedBy
	}
	if mask.LastModifiedAt != nil {
		out.LastModifiedAt = full.LastModifiedAt
	}
	if mask.LockedBy != nil {
		out.LockedBy = full.LockedBy
	}
	if mask.LockedAt != nil {
		out.LockedAt = full.LockedAt
	}
	if mask.Width != nil {
		out.Width = full.Width
	}
	if mask.Height != nil {
		out.Height = full.Height
	}
	if mask.Radius != nil {
		out.Radius = full.Radius
	}
	if mask.Text != nil {
		out.Text = full.Text
	}
	if mask.FontSize != nil {
		out.FontSize = full.FontSize
	}
	if mask.Bold != nil {
		out.Bold = full.Bold
	}
	if mask.Italic != nil {
		out.Italic = full.Italic
	}
	if mask.URL != nil {
		out.URL = full.URL
	}
	return out
}

// ClonePatch returns a copy sharing no pointers with p. History
// commands clone patches at record time so later caller mutation can
// never reach inside a committed command.
func ClonePatch(p Patch) Patch {
	return deep.MustCopy(p)
}

// ClonePatchPtr clones through a nillable patch pointer, preserving
// nil ("no snapshot") as-is.
func ClonePatchPtr(p *Patch) *Patch {
	if p == nil {
		return nil
	}
	out := ClonePatch(*p)
	return &out
}

func ptr[T any](v T) *T {
	return &v
}

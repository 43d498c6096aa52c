// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lock implements advisory, TTL-expiring shape locks.
//
// # Description
//
// Locks are advisory: they gate editing affordances in the UI but
// nothing in the engine hard-blocks a write, so a crashed client can
// never wedge a shape permanently. Lock state lives on the shape
// itself (LockedBy, LockedAt) and travels through the same persistence
// and broadcast path as any other field, which is what keeps every
// client's lock view converging without a dedicated lock channel.
//
// Expiry is lazy: nothing sweeps stale locks, they are simply treated
// as free on the next contact. A lock older than the TTL loses to the
// next acquire.
package lock

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianCanvas/pkg/clock"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/shape"
)

// DefaultTTL is how long a lock holds without refresh before any
// other actor may take it over.
const DefaultTTL = 30 * time.Second

// Store is the minimal shape access the coordinator needs. The
// canvas store satisfies it.
type Store interface {
	Get(id string) (shape.Shape, bool)
	Patch(id string, p shape.Patch) (shape.Shape, bool)
	IDs() []string
}

// Config holds configuration for a lock Coordinator.
type Config struct {
	// TTL is the lock lifetime without refresh. Default: DefaultTTL.
	TTL time.Duration

	// Clock supplies timestamps for grant and expiry checks.
	// Default: the system clock. Tests inject a fake.
	Clock clock.Clock

	// Logger receives debug-level lock events. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() Config {
	return Config{TTL: DefaultTTL}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.TTL <= 0 {
		return fmt.Errorf("%w: ttl must be positive, got %s", ErrInvalidConfig, c.TTL)
	}
	return nil
}

// Coordinator grants and releases advisory shape locks.
//
// # Thread Safety
//
// NOT safe for concurrent use on its own: it reads and patches the
// shape store directly, so the caller that serializes store access
// (the engine) serializes the coordinator with it.
type Coordinator struct {
	store Store
	ttl   time.Duration
	clk   clock.Clock
	log   *slog.Logger
}

// NewCoordinator creates a Coordinator over the store. Zero-valued
// TTL, Clock and Logger fields fall back to defaults before
// validation.
func NewCoordinator(store Store, cfg Config) (*Coordinator, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Coordinator{
		store: store,
		ttl:   cfg.TTL,
		clk:   cfg.Clock,
		log:   cfg.Logger,
	}, nil
}

// Acquire attempts to take the lock on a shape for the actor.
//
// Description:
//
//	The lock is granted when the shape is unlocked, already held by
//	the same actor (refresh), or held by a stale lock past the TTL.
//	A grant stamps LockedBy and LockedAt on the shape. Contention is
//	not an error: a live lock held by someone else yields false, nil.
//
// Inputs:
//
//	shapeID - The shape to lock.
//	actor - The requesting actor. Must be non-empty.
//
// Outputs:
//
//	bool - True when the lock is held by the actor on return.
//	error - ErrActorRequired or ErrShapeNotFound.
func (c *Coordinator) Acquire(shapeID, actor string) (bool, error) {
	if actor == "" {
		return false, ErrActorRequired
	}
	s, ok := c.store.Get(shapeID)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrShapeNotFound, shapeID)
	}

	switch {
	case s.LockedBy == "", s.LockedBy == actor, c.IsExpired(s.LockedAt):
		now := c.clk.Now().UnixMilli()
		c.store.Patch(shapeID, lockPatch(actor, now))
		c.log.Debug("lock acquired",
			"shape_id", shapeID,
			"actor", actor,
			"taken_over", s.LockedBy != "" && s.LockedBy != actor,
		)
		return true, nil
	default:
		c.log.Debug("lock contended",
			"shape_id", shapeID,
			"actor", actor,
			"holder", s.LockedBy,
		)
		return false, nil
	}
}

// Release clears the lock if the actor holds it.
//
// Description:
//
//	A non-holder release is a silent no-op: with TTL takeover two
//	actors can legitimately believe they hold the same lock, and the
//	loser's release must not clobber the winner's. Unknown shapes are
//	also a no-op, since shapes get deleted while locks on them are
//	still being torn down.
//
// Outputs:
//
//	bool - True when the lock was actually cleared.
func (c *Coordinator) Release(shapeID, actor string) bool {
	s, ok := c.store.Get(shapeID)
	if !ok {
		return false
	}
	if s.LockedBy != actor || actor == "" {
		if s.LockedBy != "" {
			c.log.Debug("release ignored, not the holder",
				"shape_id", shapeID,
				"actor", actor,
				"holder", s.LockedBy,
			)
		}
		return false
	}

	c.store.Patch(shapeID, clearLockPatch())
	c.log.Debug("lock released", "shape_id", shapeID, "actor", actor)
	return true
}

// ForceRelease clears the lock regardless of holder. Used by janitor
// paths such as disconnect cleanup for another actor's abandoned
// session.
func (c *Coordinator) ForceRelease(shapeID string) bool {
	s, ok := c.store.Get(shapeID)
	if !ok || s.LockedBy == "" {
		return false
	}
	c.store.Patch(shapeID, clearLockPatch())
	c.log.Debug("lock force-released", "shape_id", shapeID, "holder", s.LockedBy)
	return true
}

// ReleaseAllHeldBy clears every lock the actor holds and returns the
// affected shape IDs. Called when the actor's session ends.
func (c *Coordinator) ReleaseAllHeldBy(actor string) []string {
	if actor == "" {
		return nil
	}
	var released []string
	for _, id := range c.store.IDs() {
		s, ok := c.store.Get(id)
		if !ok || s.LockedBy != actor {
			continue
		}
		c.store.Patch(id, clearLockPatch())
		released = append(released, id)
	}
	if len(released) > 0 {
		c.log.Debug("released all locks for actor",
			"actor", actor,
			"count", len(released),
		)
	}
	return released
}

// Holder returns the live holder of the shape's lock. Expired and
// absent locks report no holder.
func (c *Coordinator) Holder(shapeID string) (string, bool) {
	s, ok := c.store.Get(shapeID)
	if !ok || s.LockedBy == "" || c.IsExpired(s.LockedAt) {
		return "", false
	}
	return s.LockedBy, true
}

// CanEdit reports whether the actor may edit the shape under advisory
// locking: true when the shape is unlocked, the lock is expired, or
// the actor holds it.
func (c *Coordinator) CanEdit(shapeID, actor string) bool {
	holder, held := c.Holder(shapeID)
	return !held || holder == actor
}

// IsExpired reports whether a lock timestamp is stale. A zero
// timestamp (never locked, or cleared) counts as expired.
func (c *Coordinator) IsExpired(lockedAt int64) bool {
	if lockedAt == 0 {
		return true
	}
	age := c.clk.Now().UnixMilli() - lockedAt
	return age > c.ttl.Milliseconds()
}

// TTL returns the configured lock lifetime.
func (c *Coordinator) TTL() time.Duration {
	return c.ttl
}

func lockPatch(actor string, at int64) shape.Patch {
	return shape.Patch{LockedBy: &actor, LockedAt: &at}
}

func clearLockPatch() shape.Patch {
	var (
		nobody string
		never  int64
	)
	return shape.Patch{LockedBy: &nobody, LockedAt: &never}
}

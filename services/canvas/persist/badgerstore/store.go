// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badgerstore persists canvas shapes in an embedded BadgerDB.
//
// Shapes are stored one key per shape under
//
//	canvas/<canvasID>/shape/<shapeID>
//
// as JSON values, so a crash loses at most the write in flight and a
// restarted service reloads state with a single prefix scan. Broadcast
// fanout is process-local and rides on the shared persist.Fanout; the
// database only provides durability.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianCanvas/services/canvas/persist"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/shape"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/store"
)

// Config holds configuration for a badger-backed Store.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Required for persistent databases. Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	// Default: true for production, false for testing.
	SyncWrites bool

	// Logger receives store and BadgerDB log output.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Default: 5 minutes. Set to a negative value to disable.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	// Default: 0.5.
	GCDiscardRatio float64
}

// DefaultConfig returns sensible defaults for production use.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns configuration optimized for testing: no disk
// I/O, no sync, no GC.
func InMemoryConfig() Config {
	return Config{
		InMemory:   true,
		GCInterval: -1,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if !c.InMemory && c.Path == "" {
		return errors.New("path is required for persistent database")
	}
	if c.GCDiscardRatio < 0 || c.GCDiscardRatio > 1 {
		return fmt.Errorf("gc discard ratio must be between 0 and 1, got %v", c.GCDiscardRatio)
	}
	return nil
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// =============================================================================
// Store
// =============================================================================

// Store is the durable persist.Service implementation.
//
// # Thread Safety
//
// Safe for concurrent use; BadgerDB transactions and the fanout are
// both internally synchronized.
type Store struct {
	*persist.Fanout
	db     *badger.DB
	log    *slog.Logger
	gcStop chan struct{}
	gcDone chan struct{}
}

var _ persist.Service = (*Store)(nil)

// Open creates a Store over a BadgerDB opened from the configuration.
//
// Description:
//
//	Opens the database at the configured path, or in memory, creating
//	the directory if needed, and starts the value log GC loop for
//	persistent databases. Caller must Close when done.
//
// Outputs:
//
//	*Store - The opened store.
//	error - Non-nil if the configuration is invalid or the database
//	cannot be opened.
func Open(cfg Config) (*Store, error) {
	if cfg.GCInterval == 0 {
		cfg.GCInterval = 5 * time.Minute
	}
	if cfg.GCDiscardRatio == 0 {
		cfg.GCDiscardRatio = 0.5
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Store{
		Fanout: persist.NewFanout(log),
		db:     db,
		log:    log,
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gcStop = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.gcLoop(cfg.GCInterval, cfg.GCDiscardRatio)
	}

	return s, nil
}

func shapeKey(canvasID, shapeID string) []byte {
	return []byte("canvas/" + canvasID + "/shape/" + shapeID)
}

func canvasPrefix(canvasID string) []byte {
	return []byte("canvas/" + canvasID + "/shape/")
}

// CreateShape stores the shape and broadcasts an added event.
func (s *Store) CreateShape(ctx context.Context, canvasID string, sh shape.Shape) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(sh)
	if err != nil {
		return fmt.Errorf("marshal shape %s: %w", sh.ID, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(shapeKey(canvasID, sh.ID), data)
	})
	if err != nil {
		return fmt.Errorf("store shape %s: %w", sh.ID, err)
	}

	s.Publish(canvasID, store.Batch{store.Added(sh)})
	return nil
}

// UpdateShape replaces the stored shape wholesale. Updating a shape
// that no longer exists is a no-op: the delete already won.
func (s *Store) UpdateShape(ctx context.Context, canvasID string, sh shape.Shape) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(sh)
	if err != nil {
		return fmt.Errorf("marshal shape %s: %w", sh.ID, err)
	}

	exists := true
	err = s.db.Update(func(txn *badger.Txn) error {
		key := shapeKey(canvasID, sh.ID)
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				exists = false
				return nil
			}
			return err
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return fmt.Errorf("update shape %s: %w", sh.ID, err)
	}
	if !exists {
		return nil
	}

	s.Publish(canvasID, store.Batch{store.Modified(sh)})
	return nil
}

// DeleteShape removes the shape and broadcasts its final snapshot.
// Absent shapes are a no-op.
func (s *Store) DeleteShape(ctx context.Context, canvasID, shapeID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var (
		snapshot shape.Shape
		exists   bool
	)
	err := s.db.Update(func(txn *badger.Txn) error {
		key := shapeKey(canvasID, shapeID)
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snapshot)
		}); err != nil {
			return fmt.Errorf("decode shape %s: %w", shapeID, err)
		}
		exists = true
		return txn.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("delete shape %s: %w", shapeID, err)
	}
	if !exists {
		return nil
	}

	s.Publish(canvasID, store.Batch{store.Removed(snapshot)})
	return nil
}

// FetchAllShapes loads every shape on the canvas with one prefix scan,
// ordered by creation time with shape ID as tiebreak.
func (s *Store) FetchAllShapes(ctx context.Context, canvasID string) ([]shape.Shape, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var shapes []shape.Shape
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = canvasPrefix(canvasID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := it.Item().Value(func(val []byte) error {
				var sh shape.Shape
				if err := json.Unmarshal(val, &sh); err != nil {
					return fmt.Errorf("decode shape at %s: %w", it.Item().Key(), err)
				}
				shapes = append(shapes, sh)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch shapes for canvas %s: %w", canvasID, err)
	}

	// Badger iterates keys lexicographically by shape ID; initial sync
	// wants creation order.
	sort.SliceStable(shapes, func(i, j int) bool {
		if shapes[i].CreatedAt != shapes[j].CreatedAt {
			return shapes[i].CreatedAt < shapes[j].CreatedAt
		}
		return shapes[i].ID < shapes[j].ID
	})
	return shapes, nil
}

// ListCanvases returns the sorted IDs of canvases holding at least
// one shape.
func (s *Store) ListCanvases(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("canvas/")
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			rest := strings.TrimPrefix(key, "canvas/")
			if idx := strings.Index(rest, "/shape/"); idx > 0 {
				seen[rest[:idx]] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list canvases: %w", err)
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close stops GC, tears down subscriptions, and closes the database.
func (s *Store) Close() error {
	if s.gcStop != nil {
		close(s.gcStop)
		<-s.gcDone
		s.gcStop = nil
	}
	s.Fanout.Close()
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close badger database: %w", err)
	}
	return nil
}

// gcLoop periodically triggers BadgerDB value log garbage collection.
func (s *Store) gcLoop(interval time.Duration, ratio float64) {
	defer close(s.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.gcStop:
			return
		case <-ticker.C:
			// RunValueLogGC returns ErrNoRewrite when no GC was needed.
			err := s.db.RunValueLogGC(ratio)
			if err == nil {
				s.log.Debug("badger value log GC completed")
			} else if !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Warn("badger value log GC error", "error", err)
			}
		}
	}
}

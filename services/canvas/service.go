// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package canvas provides the collaborative drawing canvas service: the
// per-actor state engine (shape store, history, advisory locks) and the
// HTTP/websocket transport that exposes it.
//
// # Description
//
// One Service owns the persistence layer and a registry of open boards.
// Each websocket connection gets its own Engine, so undo/redo and
// selection are per actor, while the shared persistence channel echoes
// every change to every client on the same board.
package canvas

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/AleutianCanvas/pkg/clock"
	"github.com/AleutianAI/AleutianCanvas/pkg/logging"
	"github.com/AleutianAI/AleutianCanvas/pkg/validation"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/persist"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/persist/badgerstore"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/shape"
)

// Version is the canvas service version.
const Version = "0.1.0"

// Canvas is one open board: its identity and the hub fanning events out
// to the board's websocket clients.
type Canvas struct {
	id  string
	hub *Hub
}

// ID returns the board identifier.
func (c *Canvas) ID() string { return c.id }

// Service is the canvas board registry.
//
// Thread Safety:
//
//	Service is safe for concurrent use. Board opens deduplicate through
//	singleflight so concurrent requests for the same board share one
//	hub.
type Service struct {
	cfg     ServiceConfig
	persist persist.Service
	log     *logging.Logger
	clk     clock.Clock
	metrics *Metrics
	tracer  trace.Tracer

	mu       sync.Mutex
	canvases map[string]*Canvas
	flight   singleflight.Group
	closed   bool
}

// NewService creates the canvas service and opens its persistence
// layer.
//
// Description:
//
//	InMemory configurations run on an in-memory Badger instance;
//	otherwise the Badger database at cfg.DataDir is opened (created on
//	first run). The caller must Close the service to release it.
//
// Inputs:
//
//	cfg - Validated service configuration.
//	log - Service logger; nil uses logging.Default().
//
// Outputs:
//
//	*Service - Ready to open boards.
//	error - Config validation or Badger open failure.
func NewService(cfg ServiceConfig, log *logging.Logger) (*Service, error) {
	if log == nil {
		log = logging.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	storeCfg := badgerstore.DefaultConfig()
	storeCfg.Path = cfg.DataDir
	if cfg.InMemory {
		storeCfg = badgerstore.InMemoryConfig()
	}
	storeCfg.Logger = log.Slog()

	store, err := badgerstore.Open(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("open canvas store: %w", err)
	}

	return &Service{
		cfg:      cfg,
		persist:  store,
		log:      log,
		clk:      clock.System(),
		metrics:  defaultMetrics(),
		tracer:   otel.Tracer(tracerName),
		canvases: make(map[string]*Canvas),
	}, nil
}

// WithClock replaces the service clock. Call before serving traffic;
// tests use this to drive coalescing and lock expiry deterministically.
func (s *Service) WithClock(clk clock.Clock) *Service {
	s.clk = clk
	return s
}

// WithMetrics replaces the metrics collectors. Tests pass collectors
// registered on a private registry so parallel services do not collide.
func (s *Service) WithMetrics(m *Metrics) *Service {
	s.metrics = m
	return s
}

// Open returns the board's Canvas, creating its hub on first use.
//
// Description:
//
//	Boards exist implicitly: opening an unknown id creates an empty
//	board whose shapes appear once the first client draws. Concurrent
//	opens of the same id share one load through singleflight.
//
// Outputs:
//
//	*Canvas - The open board.
//	error - Invalid id or closed service.
func (s *Service) Open(ctx context.Context, id string) (*Canvas, error) {
	if err := validBoardID(id); err != nil {
		return nil, err
	}

	_, span := s.tracer.Start(ctx, "canvas.open",
		trace.WithAttributes(attribute.String("board.id", id)))
	defer span.End()

	v, err, _ := s.flight.Do(id, func() (any, error) {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, ErrServiceClosed
		}
		if cv, ok := s.canvases[id]; ok {
			s.mu.Unlock()
			return cv, nil
		}
		s.mu.Unlock()

		hub := newHub(id, s.persist, s.log, s.metrics)
		cv := &Canvas{id: id, hub: hub}

		s.mu.Lock()
		s.canvases[id] = cv
		s.mu.Unlock()

		s.log.Info("board opened", "board_id", id)
		s.metrics.RecordOp("open_board")
		return cv, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Canvas), nil
}

// Get returns an already-open board without creating one.
func (s *Service) Get(id string) (*Canvas, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cv, ok := s.canvases[id]
	return cv, ok
}

// List returns every known board: persisted boards plus boards opened
// this run that have no shapes yet, sorted by id.
func (s *Service) List(ctx context.Context) ([]BoardResponse, error) {
	ctx, span := s.tracer.Start(ctx, "canvas.list")
	defer span.End()

	ids, err := s.persist.ListCanvases(ctx)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}

	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	s.mu.Lock()
	for id := range s.canvases {
		if !seen[id] {
			ids = append(ids, id)
			seen[id] = true
		}
	}
	s.mu.Unlock()
	sort.Strings(ids)

	boards := make([]BoardResponse, 0, len(ids))
	for _, id := range ids {
		shapes, err := s.persist.FetchAllShapes(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("count shapes for %s: %w", id, err)
		}
		clients := 0
		if cv, ok := s.Get(id); ok {
			clients = cv.hub.ClientCount()
		}
		boards = append(boards, BoardResponse{ID: id, Shapes: len(shapes), Clients: clients})
	}

	span.SetAttributes(attribute.Int("board.count", len(boards)))
	return boards, nil
}

// Snapshot returns the board's shapes in render order (ascending
// z-index, then creation time).
//
// Outputs:
//
//	[]shape.Shape - The board's shapes; empty for an open, blank board.
//	error - ErrCanvasNotFound when the board is neither open nor
//	persisted.
func (s *Service) Snapshot(ctx context.Context, id string) ([]shape.Shape, error) {
	if err := validBoardID(id); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "canvas.snapshot",
		trace.WithAttributes(attribute.String("board.id", id)))
	defer span.End()

	shapes, err := s.persist.FetchAllShapes(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch board %s: %w", id, err)
	}
	if len(shapes) == 0 {
		if _, open := s.Get(id); !open {
			return nil, fmt.Errorf("%w: %s", ErrCanvasNotFound, id)
		}
	}

	sortForRender(shapes)
	span.SetAttributes(attribute.Int("shape.count", len(shapes)))
	return shapes, nil
}

// Delete removes a board: disconnects its clients, closes its hub and
// deletes every persisted shape.
//
// Outputs:
//
//	error - ErrCanvasNotFound when the board has neither an open hub
//	nor persisted shapes.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := validBoardID(id); err != nil {
		return err
	}

	ctx, span := s.tracer.Start(ctx, "canvas.delete",
		trace.WithAttributes(attribute.String("board.id", id)))
	defer span.End()

	s.mu.Lock()
	cv, open := s.canvases[id]
	delete(s.canvases, id)
	s.mu.Unlock()

	if open {
		cv.hub.close()
	}

	shapes, err := s.persist.FetchAllShapes(ctx, id)
	if err != nil {
		return fmt.Errorf("fetch shapes for delete: %w", err)
	}
	if !open && len(shapes) == 0 {
		return fmt.Errorf("%w: %s", ErrCanvasNotFound, id)
	}

	for _, sh := range shapes {
		if err := s.persist.DeleteShape(ctx, id, sh.ID); err != nil {
			return fmt.Errorf("delete shape %s: %w", sh.ID, err)
		}
	}

	s.log.Info("board deleted", "board_id", id, "shapes_removed", len(shapes))
	s.metrics.RecordOp("delete_board")
	return nil
}

// BoardCount returns the number of open boards.
func (s *Service) BoardCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.canvases)
}

// Close shuts every hub down and closes the persistence layer.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	open := make([]*Canvas, 0, len(s.canvases))
	for _, cv := range s.canvases {
		open = append(open, cv)
	}
	s.canvases = make(map[string]*Canvas)
	s.mu.Unlock()

	for _, cv := range open {
		cv.hub.close()
	}

	if err := s.persist.Close(); err != nil {
		return fmt.Errorf("close canvas store: %w", err)
	}
	s.log.Info("canvas service closed", "boards_closed", len(open))
	return nil
}

// newEngine builds the per-connection engine for one actor on a board.
func (s *Service) newEngine(ctx context.Context, boardID, actor string) (*Engine, error) {
	return NewEngine(ctx, EngineConfig{
		Actor:           actor,
		CanvasID:        boardID,
		Persist:         s.persist,
		HistoryDepth:    s.cfg.HistoryDepth,
		CoalesceIdle:    s.cfg.CoalesceIdle(),
		LockTTL:         s.cfg.LockTTL(),
		Clock:           s.clk,
		Logger:          s.log.Slog(),
		OnCoalesceFlush: s.metrics.RecordCoalesceFlush,
	})
}

// validBoardID rejects ids that cannot be board names.
func validBoardID(id string) error {
	if err := validation.ValidateBoardID(id); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBoardID, err)
	}
	return nil
}

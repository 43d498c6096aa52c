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
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianCanvas/pkg/clock"
	"github.com/AleutianAI/AleutianCanvas/pkg/logging"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/shape"
)

// newTestService builds an in-memory service with private metrics so
// parallel tests do not fight over the default Prometheus registry.
func newTestService(t *testing.T) *Service {
	t.Helper()

	cfg := DefaultServiceConfig()
	cfg.InMemory = true

	svc, err := NewService(cfg, logging.Default())
	require.NoError(t, err)
	svc.WithMetrics(newMetrics(prometheus.NewRegistry()))
	svc.WithClock(clock.Fake(testEpoch))

	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

// seedBoard draws shapes onto a board through a short-lived engine.
func seedBoard(t *testing.T, svc *Service, board string, shapes ...shape.Shape) []shape.Shape {
	t.Helper()

	eng, err := svc.newEngine(context.Background(), board, "seeder")
	require.NoError(t, err)
	defer eng.Close()

	created := make([]shape.Shape, 0, len(shapes))
	for _, s := range shapes {
		out, err := eng.CreateShape(context.Background(), s)
		require.NoError(t, err)
		created = append(created, out)
	}
	return created
}

func TestNewServiceRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultServiceConfig()
	cfg.ClientRate = -1

	_, err := NewService(cfg, logging.Default())
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestOpenIsIdempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.Open(ctx, "b1")
	require.NoError(t, err)
	second, err := svc.Open(ctx, "b1")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, svc.BoardCount())

	got, ok := svc.Get("b1")
	require.True(t, ok)
	assert.Same(t, first, got)
}

func TestOpenRejectsInvalidIDs(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Open(ctx, "")
	require.ErrorIs(t, err, ErrInvalidBoardID)

	_, err = svc.Open(ctx, strings.Repeat("x", 65))
	require.ErrorIs(t, err, ErrInvalidBoardID)
}

func TestConcurrentOpensShareOneBoard(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	const callers = 16
	boards := make([]*Canvas, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cv, err := svc.Open(ctx, "shared")
			assert.NoError(t, err)
			boards[i] = cv
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		assert.Same(t, boards[0], boards[i])
	}
	assert.Equal(t, 1, svc.BoardCount())
}

func TestSnapshotUnknownBoard(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Snapshot(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrCanvasNotFound)
}

func TestSnapshotOpenEmptyBoard(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Open(ctx, "blank")
	require.NoError(t, err)

	shapes, err := svc.Snapshot(ctx, "blank")
	require.NoError(t, err)
	assert.Empty(t, shapes)
}

func TestSnapshotRendersInZOrder(t *testing.T) {
	svc := newTestService(t)

	back := rect(0, 0)
	back.ZIndex = 5
	middle := rect(10, 0)
	middle.ZIndex = 1
	front := rect(20, 0)
	front.ZIndex = 3
	created := seedBoard(t, svc, "layered", back, middle, front)

	shapes, err := svc.Snapshot(context.Background(), "layered")
	require.NoError(t, err)
	require.Len(t, shapes, 3)

	assert.Equal(t, created[1].ID, shapes[0].ID)
	assert.Equal(t, created[2].ID, shapes[1].ID)
	assert.Equal(t, created[0].ID, shapes[2].ID)
}

func TestListMergesOpenAndPersistedBoards(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Open(ctx, "empty-board")
	require.NoError(t, err)
	seedBoard(t, svc, "drawn-board", rect(0, 0), rect(10, 10))

	boards, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, boards, 2)

	assert.Equal(t, "drawn-board", boards[0].ID)
	assert.Equal(t, 2, boards[0].Shapes)
	assert.Equal(t, "empty-board", boards[1].ID)
	assert.Equal(t, 0, boards[1].Shapes)
}

func TestDeleteRemovesPersistedShapes(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	seedBoard(t, svc, "doomed", rect(0, 0), rect(5, 5))

	require.NoError(t, svc.Delete(ctx, "doomed"))

	_, err := svc.Snapshot(ctx, "doomed")
	require.ErrorIs(t, err, ErrCanvasNotFound)

	err = svc.Delete(ctx, "doomed")
	require.ErrorIs(t, err, ErrCanvasNotFound)
}

func TestDeleteUnknownBoard(t *testing.T) {
	svc := newTestService(t)

	err := svc.Delete(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrCanvasNotFound)
}

func TestDeleteOpenEmptyBoard(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Open(ctx, "blank")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "blank"))
	assert.Equal(t, 0, svc.BoardCount())
}

func TestCloseIsIdempotentAndStopsOpens(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Open(ctx, "b1")
	require.NoError(t, err)

	require.NoError(t, svc.Close())
	require.NoError(t, svc.Close())

	_, err = svc.Open(ctx, "b2")
	require.ErrorIs(t, err, ErrServiceClosed)
}

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
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianCanvas/pkg/logging"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/persist"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/store"
)

// bareClient builds a wsClient with no socket, for exercising hub
// bookkeeping directly.
func bareClient(buffer int) *wsClient {
	return &wsClient{
		actor: "test",
		send:  make(chan []byte, buffer),
		done:  make(chan struct{}),
	}
}

func isShutdown(c *wsClient) bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func newTestHub(t *testing.T) (*Hub, *persist.Memory) {
	t.Helper()
	mem := persist.NewMemory()
	t.Cleanup(func() { _ = mem.Close() })
	h := newHub("board", mem, logging.Default(), newMetrics(prometheus.NewRegistry()))
	t.Cleanup(h.close)
	return h, mem
}

func decodeFrame(t *testing.T, data []byte) ServerFrame {
	t.Helper()
	var f ServerFrame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func TestHubBroadcastsToAllClients(t *testing.T) {
	h, _ := newTestHub(t)

	c1 := bareClient(4)
	c2 := bareClient(4)
	require.True(t, h.register(c1))
	require.True(t, h.register(c2))
	assert.Equal(t, 2, h.ClientCount())

	s := rect(0, 0)
	s.ID = "s1"
	h.broadcast([]store.Event{store.Added(s)})

	for _, c := range []*wsClient{c1, c2} {
		select {
		case data := <-c.send:
			f := decodeFrame(t, data)
			assert.Equal(t, FrameEvents, f.Type)
			require.Len(t, f.Events, 1)
			assert.Equal(t, store.EventAdded, f.Events[0].Kind)
			assert.Equal(t, "s1", f.Events[0].Shape.ID)
		default:
			t.Fatal("client did not receive the broadcast")
		}
	}
}

func TestHubUnregisterStopsDelivery(t *testing.T) {
	h, _ := newTestHub(t)

	c1 := bareClient(4)
	c2 := bareClient(4)
	require.True(t, h.register(c1))
	require.True(t, h.register(c2))

	h.unregister(c1)
	h.unregister(c1)
	assert.Equal(t, 1, h.ClientCount())

	s := rect(0, 0)
	s.ID = "s1"
	h.broadcast([]store.Event{store.Modified(s)})

	assert.Zero(t, len(c1.send))
	assert.Equal(t, 1, len(c2.send))
}

func TestHubDisconnectsSlowClient(t *testing.T) {
	h, _ := newTestHub(t)

	slow := bareClient(1)
	slow.send <- []byte("stale")
	healthy := bareClient(4)
	require.True(t, h.register(slow))
	require.True(t, h.register(healthy))

	s := rect(0, 0)
	s.ID = "s1"
	h.broadcast([]store.Event{store.Added(s)})

	assert.True(t, isShutdown(slow), "full buffer should disconnect the client")
	assert.False(t, isShutdown(healthy))
	assert.Equal(t, 1, len(healthy.send))
}

func TestHubCloseDisconnectsAndRefusesRegisters(t *testing.T) {
	h, _ := newTestHub(t)

	c := bareClient(1)
	require.True(t, h.register(c))

	h.close()
	h.close()

	assert.True(t, isShutdown(c))
	assert.Equal(t, 0, h.ClientCount())
	assert.False(t, h.register(bareClient(1)))
}

func TestHubDeliversPersistedChanges(t *testing.T) {
	h, mem := newTestHub(t)

	c := bareClient(4)
	require.True(t, h.register(c))

	s := rect(0, 0)
	s.ID = "s1"
	require.NoError(t, mem.CreateShape(context.Background(), "board", s))

	// Subscription delivery is asynchronous.
	require.Eventually(t, func() bool { return len(c.send) == 1 },
		2*time.Second, 10*time.Millisecond)

	f := decodeFrame(t, <-c.send)
	assert.Equal(t, FrameEvents, f.Type)
	require.Len(t, f.Events, 1)
	assert.Equal(t, store.EventAdded, f.Events[0].Kind)
	assert.Equal(t, "s1", f.Events[0].Shape.ID)
}

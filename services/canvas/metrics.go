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
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for the Canvas Service
// =============================================================================

// Metrics holds the Prometheus collectors for the canvas service.
//
// # Description
//
// Production code uses the shared instance from defaultMetrics(), which
// registers against the default registry exactly once. Tests that build
// multiple services pass their own registry to newMetrics so collectors
// never collide.
type Metrics struct {
	// ops counts gesture operations by op name.
	// Labels: op (create, update, update_live, delete, undo, redo, ...)
	ops *prometheus.CounterVec

	// opErrors counts failed operations.
	// Labels: op, code (NOT_FOUND, INVALID_SHAPE, PERSIST, ...)
	opErrors *prometheus.CounterVec

	// connectedClients tracks live websocket connections per canvas.
	connectedClients *prometheus.GaugeVec

	// historyDepth observes undo stack depth at commit time.
	historyDepth prometheus.Histogram

	// lockDecisions counts advisory lock outcomes.
	// Labels: decision (granted, denied)
	lockDecisions *prometheus.CounterVec

	// coalesceFlushes counts coalesced bursts committed as commands.
	coalesceFlushes prometheus.Counter

	// broadcastFanout observes how many clients each event broadcast
	// reached.
	broadcastFanout prometheus.Histogram
}

// newMetrics registers the canvas collectors against reg.
func newMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ops: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aleutian",
			Subsystem: "canvas",
			Name:      "ops_total",
			Help:      "Total gesture operations by op name",
		}, []string{"op"}),

		opErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aleutian",
			Subsystem: "canvas",
			Name:      "op_errors_total",
			Help:      "Total failed operations by op name and error code",
		}, []string{"op", "code"}),

		connectedClients: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "aleutian",
			Subsystem: "canvas",
			Name:      "connected_clients",
			Help:      "Live websocket connections per canvas",
		}, []string{"canvas"}),

		historyDepth: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aleutian",
			Subsystem: "canvas",
			Name:      "history_depth",
			Help:      "Undo stack depth observed at commit",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100},
		}),

		lockDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aleutian",
			Subsystem: "canvas",
			Name:      "lock_decisions_total",
			Help:      "Advisory lock outcomes",
		}, []string{"decision"}),

		coalesceFlushes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "aleutian",
			Subsystem: "canvas",
			Name:      "coalesce_flushes_total",
			Help:      "Coalesced edit bursts committed as single commands",
		}),

		broadcastFanout: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aleutian",
			Subsystem: "canvas",
			Name:      "broadcast_fanout",
			Help:      "Clients reached per event broadcast",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
		}),
	}
}

var (
	sharedMetrics     *Metrics
	sharedMetricsOnce sync.Once
)

// defaultMetrics returns the process-wide Metrics registered against
// the default Prometheus registry.
func defaultMetrics() *Metrics {
	sharedMetricsOnce.Do(func() {
		sharedMetrics = newMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// =============================================================================
// Recording helpers
// =============================================================================

// RecordOp counts one gesture operation.
func (m *Metrics) RecordOp(op string) {
	m.ops.WithLabelValues(op).Inc()
}

// RecordOpError counts one failed operation.
func (m *Metrics) RecordOpError(op, code string) {
	m.opErrors.WithLabelValues(op, code).Inc()
}

// ClientConnected adjusts the connection gauge for a canvas.
func (m *Metrics) ClientConnected(canvasID string, delta float64) {
	m.connectedClients.WithLabelValues(canvasID).Add(delta)
}

// ObserveHistoryDepth records the undo stack depth after a commit.
func (m *Metrics) ObserveHistoryDepth(depth int) {
	m.historyDepth.Observe(float64(depth))
}

// RecordLockDecision counts a lock grant or denial.
func (m *Metrics) RecordLockDecision(granted bool) {
	decision := "denied"
	if granted {
		decision = "granted"
	}
	m.lockDecisions.WithLabelValues(decision).Inc()
}

// RecordCoalesceFlush counts one coalesced burst landing as a command.
func (m *Metrics) RecordCoalesceFlush() {
	m.coalesceFlushes.Inc()
}

// ObserveBroadcastFanout records how many clients one broadcast reached.
func (m *Metrics) ObserveBroadcastFanout(clients int) {
	m.broadcastFanout.Observe(float64(clients))
}

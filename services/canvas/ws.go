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
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianCanvas/pkg/logging"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/history"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/shape"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/store"
)

// Outbound frame types.
const (
	FrameHello  = "hello"
	FrameEvents = "events"
	FrameStacks = "stacks"
	FrameAck    = "ack"
	FrameError  = "error"
)

// Inbound operations.
const (
	OpCreate     = "create"
	OpUpdate     = "update"
	OpUpdateLive = "update_live"
	OpDelete     = "delete"
	OpSelect     = "select"
	OpDeselect   = "deselect"
	OpUndo       = "undo"
	OpRedo       = "redo"
	OpLock       = "lock"
	OpUnlock     = "unlock"
)

const (
	// maxFrameBytes caps one inbound frame.
	maxFrameBytes = 1 << 20

	// pongWait is how long a silent connection survives; pings go out
	// at pingPeriod so a healthy client always answers in time.
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// ClientFrame is one inbound websocket message.
//
// Seq is an optional client-chosen sequence number; when non-zero the
// server answers the frame with an ack (or error) echoing it. Lock
// operations are always answered, since the client needs the verdict.
type ClientFrame struct {
	Op      string       `json:"op"`
	Seq     int64        `json:"seq,omitempty"`
	ShapeID string       `json:"shapeId,omitempty"`
	Shape   *shape.Shape `json:"shape,omitempty"`
	Patch   *shape.Patch `json:"patch,omitempty"`
	Action  string       `json:"action,omitempty"`
}

// ServerFrame is one outbound websocket message. Type decides which
// fields are populated.
type ServerFrame struct {
	Type    string              `json:"type"`
	Actor   string              `json:"actor,omitempty"`
	BoardID string              `json:"boardId,omitempty"`
	Shapes  []shape.Shape       `json:"shapes,omitempty"`
	Events  []store.Event       `json:"events,omitempty"`
	Stacks  *history.StackState `json:"stacks,omitempty"`
	Seq     int64               `json:"seq,omitempty"`
	Op      string              `json:"op,omitempty"`
	ShapeID string              `json:"shapeId,omitempty"`
	Shape   *shape.Shape        `json:"shape,omitempty"`
	Granted *bool               `json:"granted,omitempty"`
	Code    string              `json:"code,omitempty"`
	Error   string              `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// =============================================================================
// Connection
// =============================================================================

// wsClient is one websocket connection: its actor's engine, the
// outbound frame buffer, and the per-connection rate limiter.
type wsClient struct {
	hub      *Hub
	conn     *websocket.Conn
	engine   *Engine
	actor    string
	svc      *Service
	log      *logging.Logger
	limiter  *rate.Limiter
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	stackSub string
}

// serveWS upgrades the request and runs the connection until the client
// leaves. Blocks for the connection's lifetime.
func serveWS(svc *Service, cv *Canvas, c *gin.Context) {
	actor := c.Query("actor")
	if actor == "" {
		actor = uuid.NewString()
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		svc.log.Error("websocket upgrade failed", "board_id", cv.id, "error", err)
		return
	}

	engine, err := svc.newEngine(c.Request.Context(), cv.id, actor)
	if err != nil {
		svc.log.Error("engine start failed", "board_id", cv.id, "actor", actor, "error", err)
		conn.Close()
		return
	}

	client := &wsClient{
		hub:     cv.hub,
		conn:    conn,
		engine:  engine,
		actor:   actor,
		svc:     svc,
		log:     svc.log.With("board_id", cv.id, "actor", actor),
		limiter: rate.NewLimiter(rate.Limit(svc.cfg.ClientRate), svc.cfg.ClientBurst),
		send:    make(chan []byte, svc.cfg.SendBuffer),
		done:    make(chan struct{}),
	}

	if !cv.hub.register(client) {
		engine.Close()
		conn.Close()
		return
	}

	client.stackSub = engine.SubscribeStacks(func(st history.StackState) {
		client.sendFrame(ServerFrame{Type: FrameStacks, Stacks: &st})
	})

	client.log.Info("client connected")

	initial := engine.StackState()
	client.sendFrame(ServerFrame{
		Type:    FrameHello,
		Actor:   actor,
		BoardID: cv.id,
		Shapes:  engine.Shapes(),
		Stacks:  &initial,
	})

	go client.writePump()
	client.readPump(c.Request.Context())
	client.cleanup()
}

// shutdown signals both pumps to stop. Idempotent, and tolerates a
// client that never finished its handshake.
func (c *wsClient) shutdown() {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// cleanup tears the connection's state down after the read pump exits.
func (c *wsClient) cleanup() {
	c.shutdown()
	c.hub.unregister(c)
	c.engine.UnsubscribeStacks(c.stackSub)
	if err := c.engine.Close(); err != nil {
		c.log.Warn("engine close failed", "error", err)
	}
	c.log.Info("client disconnected")
}

// trySend queues a marshalled frame without blocking.
//
// Outputs:
//
//	bool - False when the client's buffer is full, the slow-client
//	signal. A closing client reports true so teardown races do not
//	read as slowness.
func (c *wsClient) trySend(data []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// sendFrame marshals and queues one frame, disconnecting on a full
// buffer.
func (c *wsClient) sendFrame(f ServerFrame) {
	data, err := json.Marshal(f)
	if err != nil {
		c.log.Error("marshal frame failed", "type", f.Type, "error", err)
		return
	}
	if !c.trySend(data) {
		c.log.Warn("disconnecting slow client", "type", f.Type)
		c.shutdown()
	}
}

// writePump drains the send buffer onto the wire and keeps the
// connection alive with pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.svc.cfg.WriteTimeout()))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug("write failed", "error", err)
				c.shutdown()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.svc.cfg.WriteTimeout()))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}
		}
	}
}

// readPump parses inbound frames and dispatches them until the
// connection drops. Malformed frames produce error frames, never a
// disconnect; only transport errors end the loop.
func (c *wsClient) readPump(ctx context.Context) {
	defer c.shutdown()

	c.conn.SetReadLimit(maxFrameBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame ClientFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			var syntax *json.SyntaxError
			var unmarshal *json.UnmarshalTypeError
			if errors.As(err, &syntax) || errors.As(err, &unmarshal) || errors.Is(err, io.ErrUnexpectedEOF) {
				c.sendError(frame, "invalid_frame", "malformed frame: "+err.Error())
				continue
			}
			c.log.Info("read loop ended", "error", err)
			return
		}

		if !c.limiter.Allow() {
			c.svc.metrics.RecordOpError(frame.Op, "rate_limited")
			c.sendError(frame, "rate_limited", "frame rate limit exceeded")
			continue
		}

		c.dispatch(ctx, frame)
	}
}

// =============================================================================
// Frame dispatch
// =============================================================================

// dispatch routes one inbound frame to the actor's engine.
func (c *wsClient) dispatch(ctx context.Context, frame ClientFrame) {
	c.svc.metrics.RecordOp(frame.Op)

	switch frame.Op {
	case OpCreate:
		if frame.Shape == nil {
			c.rejectFrame(frame, "create requires a shape")
			return
		}
		created, err := c.engine.CreateShape(ctx, *frame.Shape)
		if err != nil {
			c.opFailed(frame, err)
			return
		}
		c.ack(frame, func(f *ServerFrame) {
			f.ShapeID = created.ID
			f.Shape = &created
		})
		c.observeDepth()

	case OpUpdate:
		if frame.ShapeID == "" || frame.Patch == nil {
			c.rejectFrame(frame, "update requires shapeId and patch")
			return
		}
		if err := c.engine.UpdateShape(ctx, frame.ShapeID, *frame.Patch, frame.Action); err != nil {
			c.opFailed(frame, err)
			return
		}
		c.ack(frame, func(f *ServerFrame) { f.ShapeID = frame.ShapeID })
		c.observeDepth()

	case OpUpdateLive:
		if frame.ShapeID == "" || frame.Patch == nil {
			c.rejectFrame(frame, "update_live requires shapeId and patch")
			return
		}
		if err := c.engine.UpdateShapeCoalesced(ctx, frame.ShapeID, *frame.Patch, frame.Action, "", 0); err != nil {
			c.opFailed(frame, err)
			return
		}
		c.ack(frame, func(f *ServerFrame) { f.ShapeID = frame.ShapeID })

	case OpDelete:
		if frame.ShapeID == "" {
			c.rejectFrame(frame, "delete requires shapeId")
			return
		}
		if err := c.engine.DeleteShape(ctx, frame.ShapeID); err != nil {
			c.opFailed(frame, err)
			return
		}
		c.ack(frame, func(f *ServerFrame) { f.ShapeID = frame.ShapeID })
		c.observeDepth()

	case OpSelect:
		if frame.ShapeID == "" {
			c.rejectFrame(frame, "select requires shapeId")
			return
		}
		if err := c.engine.Select(frame.ShapeID); err != nil {
			c.opFailed(frame, err)
			return
		}
		c.ack(frame, func(f *ServerFrame) { f.ShapeID = frame.ShapeID })

	case OpDeselect:
		if frame.ShapeID == "" {
			c.rejectFrame(frame, "deselect requires shapeId")
			return
		}
		c.engine.Deselect(frame.ShapeID)
		c.ack(frame, func(f *ServerFrame) { f.ShapeID = frame.ShapeID })

	case OpUndo:
		if err := c.engine.Undo(ctx); err != nil {
			c.opFailed(frame, err)
			return
		}
		c.ack(frame, nil)
		c.observeDepth()

	case OpRedo:
		if err := c.engine.Redo(ctx); err != nil {
			c.opFailed(frame, err)
			return
		}
		c.ack(frame, nil)
		c.observeDepth()

	case OpLock:
		if frame.ShapeID == "" {
			c.rejectFrame(frame, "lock requires shapeId")
			return
		}
		granted, err := c.engine.AcquireLock(ctx, frame.ShapeID)
		if err != nil {
			c.opFailed(frame, err)
			return
		}
		c.svc.metrics.RecordLockDecision(granted)
		// Lock verdicts always go back, seq or not.
		c.sendFrame(ServerFrame{
			Type:    FrameAck,
			Seq:     frame.Seq,
			Op:      frame.Op,
			ShapeID: frame.ShapeID,
			Granted: &granted,
		})

	case OpUnlock:
		if frame.ShapeID == "" {
			c.rejectFrame(frame, "unlock requires shapeId")
			return
		}
		if err := c.engine.ReleaseLock(ctx, frame.ShapeID); err != nil {
			c.opFailed(frame, err)
			return
		}
		c.ack(frame, func(f *ServerFrame) { f.ShapeID = frame.ShapeID })

	default:
		c.rejectFrame(frame, "unknown op "+frame.Op)
	}
}

// ack answers a frame when the client asked for one (Seq != 0).
func (c *wsClient) ack(frame ClientFrame, fill func(*ServerFrame)) {
	if frame.Seq == 0 {
		return
	}
	f := ServerFrame{Type: FrameAck, Seq: frame.Seq, Op: frame.Op}
	if fill != nil {
		fill(&f)
	}
	c.sendFrame(f)
}

// rejectFrame reports a structurally invalid frame.
func (c *wsClient) rejectFrame(frame ClientFrame, msg string) {
	c.svc.metrics.RecordOpError(frame.Op, "invalid_frame")
	c.sendError(frame, "invalid_frame", msg)
}

// opFailed reports an engine failure for a well-formed frame.
func (c *wsClient) opFailed(frame ClientFrame, err error) {
	code := wsErrorCode(err)
	c.svc.metrics.RecordOpError(frame.Op, code)
	c.sendError(frame, code, err.Error())
}

// sendError emits an error frame echoing the offending op and seq.
func (c *wsClient) sendError(frame ClientFrame, code, msg string) {
	c.sendFrame(ServerFrame{
		Type:  FrameError,
		Seq:   frame.Seq,
		Op:    frame.Op,
		Code:  code,
		Error: msg,
	})
}

// observeDepth samples the undo stack depth after a committing op.
func (c *wsClient) observeDepth() {
	c.svc.metrics.ObserveHistoryDepth(c.engine.StackState().UndoDepth)
}

// wsErrorCode maps engine errors to wire error codes.
func wsErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrShapeNotFound):
		return "not_found"
	case errors.Is(err, shape.ErrInvalidShape):
		return "invalid_shape"
	case errors.Is(err, history.ErrApplyFailed):
		return "apply_failed"
	case errors.Is(err, ErrEngineClosed):
		return "engine_closed"
	default:
		return "internal"
	}
}

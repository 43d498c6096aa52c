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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianCanvas/pkg/validation"
)

// Handlers contains the HTTP handlers for the canvas service.
type Handlers struct {
	svc *Service
	log *slog.Logger
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc, log: svc.log.Slog()}
}

// HandleCreateBoard handles POST /v1/canvas/boards.
//
// Description:
//
//	Opens a board, creating it if it does not exist. The body is
//	optional; an empty or absent id asks the server to assign one.
//
// Request Body:
//
//	CreateBoardRequest
//
// Response:
//
//	201 Created: BoardResponse
//	400 Bad Request: Validation error
//	503 Service Unavailable: Service is shutting down
func (h *Handlers) HandleCreateBoard(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.log.With("request_id", requestID, "handler", "HandleCreateBoard")

	var req CreateBoardRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.Warn("Invalid request body", "error", err)
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "Invalid request body",
				Code:  "INVALID_REQUEST",
			})
			return
		}
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	} else {
		sanitized, err := validation.SanitizeBoardID(id)
		if err != nil {
			logger.Warn("Rejected board id", "board_id", id, "error", err)
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: err.Error(),
				Code:  "INVALID_BOARD_ID",
			})
			return
		}
		id = sanitized
	}

	cv, err := h.svc.Open(c.Request.Context(), id)
	if err != nil {
		statusCode := http.StatusInternalServerError
		errCode := "OPEN_FAILED"

		if errors.Is(err, ErrInvalidBoardID) {
			statusCode = http.StatusBadRequest
			errCode = "INVALID_BOARD_ID"
		} else if errors.Is(err, ErrServiceClosed) {
			statusCode = http.StatusServiceUnavailable
			errCode = "SERVICE_CLOSED"
		}

		logger.Error("Open failed", "board_id", id, "error", err)
		c.JSON(statusCode, ErrorResponse{Error: err.Error(), Code: errCode})
		return
	}

	shapes, err := h.svc.Snapshot(c.Request.Context(), cv.ID())
	if err != nil {
		shapes = nil
	}

	logger.Info("Board opened", "board_id", cv.ID(), "shapes", len(shapes))

	c.JSON(http.StatusCreated, BoardResponse{
		ID:      cv.ID(),
		Shapes:  len(shapes),
		Clients: cv.hub.ClientCount(),
	})
}

// HandleListBoards handles GET /v1/canvas/boards.
//
// Description:
//
//	Lists every board the service knows about, persisted or open,
//	with shape and connected-client counts.
//
// Response:
//
//	200 OK: BoardListResponse
//	500 Internal Server Error: Storage error
func (h *Handlers) HandleListBoards(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.log.With("request_id", requestID, "handler", "HandleListBoards")

	boards, err := h.svc.List(c.Request.Context())
	if err != nil {
		logger.Error("List failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "LIST_FAILED",
		})
		return
	}

	c.JSON(http.StatusOK, BoardListResponse{Boards: boards})
}

// HandleGetBoard handles GET /v1/canvas/boards/:id.
//
// Description:
//
//	Returns the board's shapes in render order.
//
// Response:
//
//	200 OK: BoardSnapshotResponse
//	400 Bad Request: Invalid board id
//	404 Not Found: Unknown board
func (h *Handlers) HandleGetBoard(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.log.With("request_id", requestID, "handler", "HandleGetBoard")

	id := c.Param("id")
	shapes, err := h.svc.Snapshot(c.Request.Context(), id)
	if err != nil {
		statusCode := http.StatusInternalServerError
		errCode := "SNAPSHOT_FAILED"

		if errors.Is(err, ErrCanvasNotFound) {
			statusCode = http.StatusNotFound
			errCode = "NOT_FOUND"
		} else if errors.Is(err, ErrInvalidBoardID) {
			statusCode = http.StatusBadRequest
			errCode = "INVALID_BOARD_ID"
		}

		logger.Warn("Snapshot failed", "board_id", id, "error", err)
		c.JSON(statusCode, ErrorResponse{Error: err.Error(), Code: errCode})
		return
	}

	c.JSON(http.StatusOK, BoardSnapshotResponse{ID: id, Shapes: shapes})
}

// HandleDeleteBoard handles DELETE /v1/canvas/boards/:id.
//
// Description:
//
//	Disconnects the board's clients and removes its persisted shapes.
//
// Response:
//
//	200 OK: empty body
//	400 Bad Request: Invalid board id
//	404 Not Found: Unknown board
func (h *Handlers) HandleDeleteBoard(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.log.With("request_id", requestID, "handler", "HandleDeleteBoard")

	id := c.Param("id")
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		statusCode := http.StatusInternalServerError
		errCode := "DELETE_FAILED"

		if errors.Is(err, ErrCanvasNotFound) {
			statusCode = http.StatusNotFound
			errCode = "NOT_FOUND"
		} else if errors.Is(err, ErrInvalidBoardID) {
			statusCode = http.StatusBadRequest
			errCode = "INVALID_BOARD_ID"
		}

		logger.Warn("Delete failed", "board_id", id, "error", err)
		c.JSON(statusCode, ErrorResponse{Error: err.Error(), Code: errCode})
		return
	}

	logger.Info("Board deleted", "board_id", id)
	c.Status(http.StatusOK)
}

// HandleBoardWS handles GET /v1/canvas/boards/:id/ws.
//
// Description:
//
//	Upgrades the request to a websocket and joins the board as the
//	actor named by the "actor" query parameter (server-assigned when
//	absent). Blocks for the lifetime of the connection.
//
// Response:
//
//	101 Switching Protocols on success
//	400 Bad Request: Invalid board id
//	503 Service Unavailable: Service is shutting down
func (h *Handlers) HandleBoardWS(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.log.With("request_id", requestID, "handler", "HandleBoardWS")

	if actor := c.Query("actor"); actor != "" {
		if err := validation.ValidateActorName(actor); err != nil {
			logger.Warn("Rejected actor name", "error", err)
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: err.Error(),
				Code:  "INVALID_REQUEST",
			})
			return
		}
	}

	id := c.Param("id")
	cv, err := h.svc.Open(c.Request.Context(), id)
	if err != nil {
		statusCode := http.StatusInternalServerError
		errCode := "OPEN_FAILED"

		if errors.Is(err, ErrInvalidBoardID) {
			statusCode = http.StatusBadRequest
			errCode = "INVALID_BOARD_ID"
		} else if errors.Is(err, ErrServiceClosed) {
			statusCode = http.StatusServiceUnavailable
			errCode = "SERVICE_CLOSED"
		}

		logger.Warn("Join failed", "board_id", id, "error", err)
		c.JSON(statusCode, ErrorResponse{Error: err.Error(), Code: errCode})
		return
	}

	serveWS(h.svc, cv, c)
}

// HandleHealth handles GET /v1/canvas/health.
//
// Description:
//
//	Returns the health status of the service. Always returns 200 if running.
//
// Response:
//
//	200 OK: HealthResponse
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: Version,
	})
}

// HandleReady handles GET /v1/canvas/ready.
//
// Description:
//
//	Returns the readiness status of the service. Ready once the shape
//	store is open and the service accepts boards.
//
// Response:
//
//	200 OK: ReadyResponse
func (h *Handlers) HandleReady(c *gin.Context) {
	c.JSON(http.StatusOK, ReadyResponse{
		Ready:  true,
		Boards: h.svc.BoardCount(),
	})
}

// getOrCreateRequestID returns the request ID from the X-Request-ID
// header, generating a new one if absent.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}

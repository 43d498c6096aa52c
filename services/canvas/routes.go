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
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RegisterRoutes registers all canvas routes with the router.
//
// Description:
//
//	Registers all /v1/canvas/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Board Endpoints:
//
//	POST   /v1/canvas/boards - Open a board, creating it if needed
//	GET    /v1/canvas/boards - List boards with shape and client counts
//	GET    /v1/canvas/boards/:id - Board snapshot in render order
//	DELETE /v1/canvas/boards/:id - Delete a board and its shapes
//	GET    /v1/canvas/boards/:id/ws - Join a board over websocket
//
// Health Endpoints:
//
//	GET  /v1/canvas/health - Health check
//	GET  /v1/canvas/ready - Readiness check
//
// Example:
//
//	service, err := canvas.NewService(canvas.DefaultServiceConfig(), logger)
//	handlers := canvas.NewHandlers(service)
//
//	v1 := router.Group("/v1")
//	canvas.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	cv := rg.Group("/canvas")
	{
		// Board lifecycle
		cv.POST("/boards", handlers.HandleCreateBoard)
		cv.GET("/boards", handlers.HandleListBoards)
		cv.GET("/boards/:id", handlers.HandleGetBoard)
		cv.DELETE("/boards/:id", handlers.HandleDeleteBoard)

		// Realtime collaboration
		cv.GET("/boards/:id/ws", handlers.HandleBoardWS)

		// Health checks
		cv.GET("/health", handlers.HandleHealth)
		cv.GET("/ready", handlers.HandleReady)
	}
}

// NewRouter builds the service's HTTP router: recovery middleware,
// optional request tracing, the /v1/canvas API, and the Prometheus
// scrape endpoint.
func NewRouter(svc *Service) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if svc.cfg.Debug {
		router.Use(gin.Logger())
	}
	if svc.cfg.EnableTracing {
		router.Use(otelgin.Middleware("aleutian-canvas"))
	}

	v1 := router.Group("/v1")
	RegisterRoutes(v1, NewHandlers(svc))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianCanvas/pkg/clock"
	"github.com/AleutianAI/AleutianCanvas/pkg/logging"
	"github.com/AleutianAI/AleutianCanvas/services/canvas"
)

// shutdownGrace bounds how long in-flight requests get after SIGTERM.
const shutdownGrace = 10 * time.Second

// runServe starts the canvas server and blocks until shutdown.
func runServe(cmd *cobra.Command, args []string) {
	cfg, err := canvas.LoadServiceConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Flags beat both the file and the environment.
	if cmd.Flags().Changed("listen-addr") {
		cfg.ListenAddr = listenAddr
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir = dataDir
	}
	if cmd.Flags().Changed("in-memory") {
		cfg.InMemory = inMemory
	}
	if cmd.Flags().Changed("debug") {
		cfg.Debug = debugMode
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.LogLevel),
		LogDir:  cfg.LogDir,
		Service: "canvas",
	})
	defer log.Close()

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := canvas.SetupTracing(ctx, cfg)
	if err != nil {
		log.Error("Failed to set up tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("Trace exporter shutdown failed", "error", err)
		}
	}()

	svc, err := canvas.NewService(cfg, log)
	if err != nil {
		log.Error("Failed to start canvas service", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           canvas.NewRouter(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Hot-reload the log level when the config file changes.
	if err := canvas.WatchConfig(ctx, configPath, clock.System(), log, func(next canvas.ServiceConfig) {
		log.SetLevel(logging.ParseLevel(next.LogLevel))
	}); err != nil {
		log.Warn("Config watch disabled", "error", err)
	}

	printBanner(cfg)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Starting Aleutian Canvas server", "address", cfg.ListenAddr, "in_memory", cfg.InMemory)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down Aleutian Canvas server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		// Hijacked websocket connections are not covered by Shutdown;
		// svc.Close disconnects them afterwards.
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

// runVersion prints the service version.
func runVersion(cmd *cobra.Command, args []string) {
	fmt.Printf("aleutian-canvas %s\n", canvas.Version)
}

func printBanner(cfg canvas.ServiceConfig) {
	storage := "badger: " + cfg.DataDir
	if cfg.InMemory {
		storage = "in-memory (volatile)"
	}

	banner := `
╔═══════════════════════════════════════════════════════════════════╗
║                     ALEUTIAN CANVAS SERVER                        ║
╠═══════════════════════════════════════════════════════════════════╣
║                                                                   ║
║  Shared drawing boards: realtime sync, undo/redo, shape locks.    ║
║  Storage: %-55s ║
║                                                                   ║
║  Quick Start:                                                     ║
║  ┌─────────────────────────────────────────────────────────────┐  ║
║  │ # Health check                                              │  ║
║  │ curl http://localhost%s/v1/canvas/health                    │  ║
║  │                                                             │  ║
║  │ # Open a board                                              │  ║
║  │ curl -X POST http://localhost%s/v1/canvas/boards \          │  ║
║  │   -H "Content-Type: application/json"  \                    │  ║
║  │   -d '{"id": "team-board"}'                                 │  ║
║  │                                                             │  ║
║  │ # Join it over websocket                                    │  ║
║  │ websocat "ws://localhost%s/v1/canvas/boards/team-board/ws"  │  ║
║  └─────────────────────────────────────────────────────────────┘  ║
║                                                                   ║
║  Endpoints:                                                       ║
║  ├── Boards: POST/GET /boards, GET/DELETE /boards/:id            ║
║  ├── Realtime: GET /boards/:id/ws (actor query param)            ║
║  └── Ops: /health, /ready, /metrics                              ║
║                                                                   ║
║  Press Ctrl+C to stop                                             ║
╚═══════════════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, storage, cfg.ListenAddr, cfg.ListenAddr, cfg.ListenAddr)
}

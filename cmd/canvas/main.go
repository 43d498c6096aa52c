// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command canvas starts the Aleutian Canvas collaboration server.
//
// Aleutian Canvas hosts shared drawing boards with:
//   - Realtime shape sync over websockets
//   - Per-actor undo/redo with transactional grouping and drag coalescing
//   - Advisory shape locks with TTL expiry
//   - Local BadgerDB persistence (or fully in-memory boards)
//
// Usage:
//
//	go run ./cmd/canvas serve
//	go run ./cmd/canvas serve --listen-addr :9090 --in-memory
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8085/v1/canvas/health
//
//	# Open a board
//	curl -X POST http://localhost:8085/v1/canvas/boards \
//	  -H "Content-Type: application/json" \
//	  -d '{"id": "team-board"}'
//
//	# Join it over websocket
//	websocat "ws://localhost:8085/v1/canvas/boards/team-board/ws?actor=alice"
package main

import (
	"log"
)

func main() {
	// Execute the root command. Cobra handles parsing the arguments.
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

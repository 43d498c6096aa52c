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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath string
	listenAddr string
	dataDir    string
	inMemory   bool
	debugMode  bool

	rootCmd = &cobra.Command{
		Use:   "canvas",
		Short: "The Aleutian Canvas collaborative drawing server",
		Long: `Aleutian Canvas hosts shared drawing boards: realtime shape sync
				over websockets, per-actor undo/redo with drag coalescing, and
				advisory shape locks, persisted locally in BadgerDB.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the canvas HTTP and websocket server",
		Run:   runServe, // Defined in cmd_serve.go
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		Run:   runVersion, // Defined in cmd_serve.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "canvas.yaml",
		"Path to the YAML config file (a missing file falls back to defaults)")

	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&listenAddr, "listen-addr", "",
		"Override the configured listen address (e.g. :9090)")
	serveCmd.Flags().StringVar(&dataDir, "data-dir", "",
		"Override the configured BadgerDB directory")
	serveCmd.Flags().BoolVar(&inMemory, "in-memory", false,
		"Keep all boards in memory; nothing survives a restart")
	serveCmd.Flags().BoolVar(&debugMode, "debug", false,
		"Enable debug logging and gin debug mode")

	rootCmd.AddCommand(versionCmd)
}

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
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianCanvas/pkg/clock"
	"github.com/AleutianAI/AleutianCanvas/pkg/logging"
)

// serviceValidate is the validator instance for service configuration.
var serviceValidate *validator.Validate

func init() {
	serviceValidate = validator.New()
}

// ServiceConfig configures the canvas service.
//
// Loaded from YAML, then overridden by environment variables, then
// validated. All durations are integer milliseconds so the YAML stays
// plain.
type ServiceConfig struct {
	// ListenAddr is the HTTP listen address, e.g. ":8085".
	ListenAddr string `yaml:"listen_addr" validate:"required,hostname_port"`

	// DataDir is the Badger database directory. Ignored when InMemory.
	DataDir string `yaml:"data_dir" validate:"required_without=InMemory"`

	// InMemory keeps all canvas data in memory; nothing survives a
	// restart. Intended for development and tests.
	InMemory bool `yaml:"in_memory"`

	// Debug switches gin to debug mode and the logger to debug level.
	Debug bool `yaml:"debug"`

	// LogLevel sets the minimum log level: debug, info, warn, error.
	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`

	// LogDir enables file logging when set.
	LogDir string `yaml:"log_dir"`

	// HistoryDepth bounds each actor's undo/redo stacks. Zero uses the
	// history package default.
	HistoryDepth int `yaml:"history_depth" validate:"min=0"`

	// CoalesceIdleMs is the idle window that closes a coalesced edit
	// burst. Zero uses the history package default (300ms).
	CoalesceIdleMs int `yaml:"coalesce_idle_ms" validate:"min=0"`

	// LockTTLMs is the advisory lock lifetime. Zero uses the lock
	// package default (30s).
	LockTTLMs int `yaml:"lock_ttl_ms" validate:"min=0"`

	// ClientRate is the sustained inbound frame rate allowed per
	// websocket connection, in frames per second.
	ClientRate float64 `yaml:"client_rate" validate:"gt=0"`

	// ClientBurst is the instantaneous frame burst allowed per
	// connection.
	ClientBurst int `yaml:"client_burst" validate:"min=1"`

	// SendBuffer is the per-client outbound frame buffer. A client that
	// falls this many frames behind is disconnected.
	SendBuffer int `yaml:"send_buffer" validate:"min=1"`

	// WriteTimeoutMs bounds a single websocket write.
	WriteTimeoutMs int `yaml:"write_timeout_ms" validate:"min=1"`

	// EnableTracing turns on the OTLP trace exporter.
	EnableTracing bool `yaml:"enable_tracing"`

	// OTelEndpoint is the OTLP gRPC receiver, host:port.
	OTelEndpoint string `yaml:"otel_endpoint"`

	// OTelInsecure disables TLS for the OTLP connection.
	OTelInsecure bool `yaml:"otel_insecure"`
}

// DefaultServiceConfig returns sensible defaults for development.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ListenAddr:     ":8085",
		DataDir:        filepath.Join(os.TempDir(), "aleutian-canvas"),
		LogLevel:       "info",
		ClientRate:     60,
		ClientBurst:    120,
		SendBuffer:     256,
		WriteTimeoutMs: 10_000,
		OTelEndpoint:   "localhost:4317",
		OTelInsecure:   true,
	}
}

// Validate checks the configuration against its struct tags.
func (c ServiceConfig) Validate() error {
	if err := serviceValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// CoalesceIdle returns the coalescing idle window as a duration.
func (c ServiceConfig) CoalesceIdle() time.Duration {
	return time.Duration(c.CoalesceIdleMs) * time.Millisecond
}

// LockTTL returns the advisory lock lifetime as a duration.
func (c ServiceConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMs) * time.Millisecond
}

// WriteTimeout returns the websocket write deadline as a duration.
func (c ServiceConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutMs) * time.Millisecond
}

// LoadServiceConfig reads the YAML file at path, overlays it on the
// defaults, applies environment overrides and validates the result.
//
// Description:
//
//	A missing file is not an error: the defaults plus environment
//	overrides are returned, so a bare binary still starts. A present
//	but unparsable or invalid file is an error.
//
// Inputs:
//
//	path - Config file location. Empty skips the file entirely.
//
// Outputs:
//
//	ServiceConfig - The effective configuration.
//	error - Non-nil on parse or validation failure.
func LoadServiceConfig(path string) (ServiceConfig, error) {
	cfg := DefaultServiceConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Fall through to env overrides.
		case err != nil:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnvOverrides applies ALEUTIAN_CANVAS_* environment variables on
// top of the file values. The OTLP endpoint also honors the standard
// OTEL_EXPORTER_OTLP_ENDPOINT.
func applyEnvOverrides(cfg *ServiceConfig) {
	if v := os.Getenv("ALEUTIAN_CANVAS_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("ALEUTIAN_CANVAS_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("ALEUTIAN_CANVAS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("ALEUTIAN_CANVAS_IN_MEMORY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.InMemory = b
		}
	}
	if v := os.Getenv("ALEUTIAN_CANVAS_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OTelEndpoint = v
	}
	if v := os.Getenv("ALEUTIAN_CANVAS_OTEL_ENDPOINT"); v != "" {
		cfg.OTelEndpoint = v
	}
}

// configDebounce is how long WatchConfig waits after the last filesystem
// event before reloading; editors and atomic writers emit several events
// per save.
const configDebounce = 250 * time.Millisecond

// WatchConfig watches a config file and invokes onReload with each new
// valid configuration until ctx is cancelled.
//
// Description:
//
//	The parent directory is watched rather than the file itself, because
//	most editors replace the file (rename-over) instead of writing in
//	place, which would drop an inode-bound watch. Events are debounced,
//	and a reload that fails to parse or validate is logged and skipped;
//	the previous configuration stays in effect.
//
//	Only a subset of settings is meaningfully hot-reloadable (log level
//	in particular); onReload decides what to apply.
//
// Inputs:
//
//	ctx - Cancels the watch.
//	path - The config file to watch.
//	clk - Drives the debounce window.
//	log - Receives watch lifecycle and reload outcomes.
//	onReload - Called with each new valid ServiceConfig.
//
// Outputs:
//
//	error - Non-nil if the watcher cannot be established.
func WatchConfig(ctx context.Context, path string, clk clock.Clock, log *logging.Logger, onReload func(ServiceConfig)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	target := filepath.Clean(path)
	log.Info("watching config", "path", target)

	go func() {
		defer watcher.Close()

		var debounce <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				debounce = clk.After(configDebounce)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("config watcher error", "error", err)

			case <-debounce:
				debounce = nil
				cfg, err := LoadServiceConfig(target)
				if err != nil {
					log.Warn("config reload rejected", "path", target, "error", err)
					continue
				}
				log.Info("config reloaded", "path", target, "log_level", cfg.LogLevel)
				onReload(cfg)
			}
		}
	}()

	return nil
}

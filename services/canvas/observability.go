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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
)

// tracerName scopes the spans emitted by the canvas service.
const tracerName = "aleutian/canvas"

// SetupTracing initializes the OTLP gRPC trace exporter and installs
// the tracer provider globally.
//
// Description:
//
//	When tracing is disabled the returned shutdown is a no-op, so
//	callers can defer it unconditionally. After a successful Init,
//	otel.Tracer() hands out tracers backed by the batching provider.
//
// Inputs:
//
//	ctx - Used for the exporter connection.
//	cfg - Reads EnableTracing, OTelEndpoint and OTelInsecure.
//
// Outputs:
//
//	shutdown - Flushes and stops the provider. Must be called on exit.
//	error - Non-nil if the exporter cannot be created.
func SetupTracing(ctx context.Context, cfg ServiceConfig) (shutdown func(context.Context) error, err error) {
	if !cfg.EnableTracing {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.OTelEndpoint),
	}
	if cfg.OTelInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", "aleutian-canvas"),
		attribute.String("service.version", Version),
	)

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// Copyright (C) 2025 NextEleven Studios
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gate

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for tool execution gating.
var (
	tracer = otel.Tracer("eleven.gate")
	meter  = otel.Meter("eleven.gate")
)

// Metrics for gated tool executions.
var (
	executeLatency metric.Float64Histogram
	executeTotal   metric.Int64Counter
	rejectedTotal  metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		executeLatency, err = meter.Float64Histogram(
			"gate_execute_duration_seconds",
			metric.WithDescription("Duration of gated tool executions"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		executeTotal, err = meter.Int64Counter(
			"gate_execute_total",
			metric.WithDescription("Total gated tool executions"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		rejectedTotal, err = meter.Int64Counter(
			"gate_rejected_total",
			metric.WithDescription("Total invocations rejected before execution"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startExecuteSpan creates a span for one gated invocation.
func startExecuteSpan(ctx context.Context, tool string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Gate.Execute",
		trace.WithAttributes(
			attribute.String("gate.tool", tool),
		),
	)
}

// recordExecuteMetrics records metrics for one gated invocation.
func recordExecuteMetrics(ctx context.Context, tool string, duration time.Duration, exitCode int) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.Bool("success", exitCode == 0),
	)
	executeLatency.Record(ctx, duration.Seconds(), attrs)
	executeTotal.Add(ctx, 1, attrs)
}

// recordRejection records an invocation stopped before its handler ran.
func recordRejection(ctx context.Context, tool, reason string) {
	if err := initMetrics(); err != nil {
		return
	}
	rejectedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("reason", reason),
	))
}

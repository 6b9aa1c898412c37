// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the reasoning service instruments.
//
// A nil *Metrics is valid and records nothing.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// OperationsTotal counts engine operations by pattern, operation and
	// result code.
	OperationsTotal metric.Int64Counter

	// OperationDuration records operation latency in seconds.
	OperationDuration metric.Float64Histogram

	// SessionsActive tracks live sessions by pattern.
	SessionsActive metric.Int64UpDownCounter

	IterationsTotal   metric.Int64Counter
	SimulationsTotal  metric.Int64Counter
	NodesCreatedTotal metric.Int64Counter
}

// NewMetrics registers every instrument on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.OperationsTotal, err = meter.Int64Counter(
		"reason_operations_total",
		metric.WithDescription("Total engine operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create operations_total: %w", err)
	}

	m.OperationDuration, err = meter.Float64Histogram(
		"reason_operation_duration_seconds",
		metric.WithDescription("Engine operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30),
	)
	if err != nil {
		return nil, fmt.Errorf("create operation_duration: %w", err)
	}

	m.SessionsActive, err = meter.Int64UpDownCounter(
		"reason_sessions_active",
		metric.WithDescription("Live reasoning sessions"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create sessions_active: %w", err)
	}

	m.IterationsTotal, err = meter.Int64Counter(
		"reason_iterations_total",
		metric.WithDescription("Total engine iterations run"),
		metric.WithUnit("{iteration}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create iterations_total: %w", err)
	}

	m.SimulationsTotal, err = meter.Int64Counter(
		"reason_simulations_total",
		metric.WithDescription("Total MCTS rollouts"),
		metric.WithUnit("{simulation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create simulations_total: %w", err)
	}

	m.NodesCreatedTotal, err = meter.Int64Counter(
		"reason_nodes_created_total",
		metric.WithDescription("Total nodes created across engines"),
		metric.WithUnit("{node}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create nodes_created_total: %w", err)
	}

	return m, nil
}

// RecordOperation counts one operation and its latency. code is empty on
// success.
func (m *Metrics) RecordOperation(ctx context.Context, pattern, operation, code string, d time.Duration) {
	if m == nil {
		return
	}
	if code == "" {
		code = "OK"
	}
	attrs := metric.WithAttributes(
		attribute.String("pattern", pattern),
		attribute.String("operation", operation),
		attribute.String("code", code),
	)
	m.OperationsTotal.Add(ctx, 1, attrs)
	m.OperationDuration.Record(ctx, d.Seconds(), attrs)
}

// SessionOpened and SessionClosed move the active session gauge.
func (m *Metrics) SessionOpened(ctx context.Context, pattern string) {
	if m == nil {
		return
	}
	m.SessionsActive.Add(ctx, 1, metric.WithAttributes(attribute.String("pattern", pattern)))
}

func (m *Metrics) SessionClosed(ctx context.Context, pattern string) {
	if m == nil {
		return
	}
	m.SessionsActive.Add(ctx, -1, metric.WithAttributes(attribute.String("pattern", pattern)))
}

// AddIterations counts n completed iterations.
func (m *Metrics) AddIterations(ctx context.Context, pattern string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.IterationsTotal.Add(ctx, int64(n), metric.WithAttributes(attribute.String("pattern", pattern)))
}

// AddSimulations counts n rollouts.
func (m *Metrics) AddSimulations(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SimulationsTotal.Add(ctx, int64(n))
}

// AddNodes counts n created nodes.
func (m *Metrics) AddNodes(ctx context.Context, pattern string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.NodesCreatedTotal.Add(ctx, int64(n), metric.WithAttributes(attribute.String("pattern", pattern)))
}

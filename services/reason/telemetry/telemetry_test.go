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
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "aleutian-reason", cfg.ServiceName)
	assert.Equal(t, "none", cfg.TraceExporter)
	assert.Equal(t, "prometheus", cfg.MetricExporter)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"trace exporter", func(c *Config) { c.TraceExporter = "zipkin" }},
		{"metric exporter", func(c *Config) { c.MetricExporter = "statsd" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrUnknownExporter)
		})
	}

	cfg := DefaultConfig()
	cfg.SampleRatio = 2
	assert.Error(t, cfg.Validate())
}

func TestInit_NilContext(t *testing.T) {
	_, err := Init(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestInit_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MetricExporter = "none"

	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_PrometheusServesMetrics(t *testing.T) {
	shutdown, err := Init(context.Background(), DefaultConfig())
	require.NoError(t, err)
	defer func() { _ = shutdown(context.Background()) }()

	handler := MetricsHandler()
	require.NotNil(t, handler)

	m, err := NewMetrics(otel.Meter("aleutian.reason.test"))
	require.NoError(t, err)
	m.RecordOperation(context.Background(), "tree", "expand", "", 3*time.Millisecond)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "reason_operations_total")
}

func TestInit_StdoutTracer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "stdout"
	cfg.MetricExporter = "none"

	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordOperation(ctx, "graph", "connect", "CYCLE_REJECTED", time.Millisecond)
	m.SessionOpened(ctx, "graph")
	m.AddIterations(ctx, "graph", 3)
	m.AddSimulations(ctx, 10)
	m.AddNodes(ctx, "graph", 2)
	m.AddNodes(ctx, "graph", 0)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if sum, ok := md.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					sums[md.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(1), sums["reason_operations_total"])
	assert.Equal(t, int64(1), sums["reason_sessions_active"])
	assert.Equal(t, int64(3), sums["reason_iterations_total"])
	assert.Equal(t, int64(10), sums["reason_simulations_total"])
	assert.Equal(t, int64(2), sums["reason_nodes_created_total"])
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordOperation(context.Background(), "beam", "iterate", "", time.Second)
		m.SessionOpened(context.Background(), "beam")
		m.SessionClosed(context.Background(), "beam")
		m.AddIterations(context.Background(), "beam", 1)
	})
}

func TestRecordErrorAndTraceID(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	assert.Empty(t, TraceID(context.Background()))

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	assert.Len(t, TraceID(ctx), 32)
	RecordError(span, errors.New("boom"))
	RecordError(span, nil)
	span.End()

	ended := sr.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "boom", ended[0].Status().Description)
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry wires OpenTelemetry tracing and metrics for the
// reasoning service.
//
// Traces export over OTLP/gRPC or to stdout. Metrics are exposed in
// Prometheus format through MetricsHandler or printed to stdout. Either
// side can be disabled with "none".
//
// Thread Safety: Init must be called once at startup. Everything else is
// safe for concurrent use.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
)

var (
	ErrNilContext      = errors.New("telemetry: nil context")
	ErrUnknownExporter = errors.New("telemetry: unknown exporter")
)

// Config controls telemetry behavior.
type Config struct {
	ServiceName    string `json:"service_name" yaml:"service_name"`
	ServiceVersion string `json:"service_version" yaml:"service_version"`
	Environment    string `json:"environment" yaml:"environment"`

	// TraceExporter is "otlp", "stdout" or "none".
	TraceExporter string `json:"trace_exporter" yaml:"trace_exporter"`

	// MetricExporter is "prometheus", "stdout" or "none".
	MetricExporter string `json:"metric_exporter" yaml:"metric_exporter"`

	OTLPEndpoint string `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	OTLPInsecure bool   `json:"otlp_insecure" yaml:"otlp_insecure"`

	// SampleRatio is the fraction of root spans sampled.
	SampleRatio float64 `json:"sample_ratio" yaml:"sample_ratio"`
}

// DefaultConfig returns development defaults: no trace export and
// Prometheus metrics.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "aleutian-reason",
		ServiceVersion: "dev",
		Environment:    "development",
		TraceExporter:  "none",
		MetricExporter: "prometheus",
		OTLPEndpoint:   "localhost:4317",
		OTLPInsecure:   true,
		SampleRatio:    1,
	}
}

// Validate reports unknown exporters and an out of range sample ratio.
func (c Config) Validate() error {
	switch c.TraceExporter {
	case "otlp", "stdout", "none":
	default:
		return fmt.Errorf("%w: trace %q", ErrUnknownExporter, c.TraceExporter)
	}
	switch c.MetricExporter {
	case "prometheus", "stdout", "none":
	default:
		return fmt.Errorf("%w: metric %q", ErrUnknownExporter, c.MetricExporter)
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return fmt.Errorf("telemetry: sample_ratio must be in [0,1], got %v", c.SampleRatio)
	}
	return nil
}

// Init installs the global tracer and meter providers.
//
// Outputs:
//
//	shutdown - Flushes and stops every provider Init started. Must be called.
//	error - ErrNilContext, ErrUnknownExporter or an exporter failure.
//
// Example:
//
//	shutdown, err := telemetry.Init(ctx, cfg.Telemetry)
//	if err != nil {
//	    return fmt.Errorf("init telemetry: %w", err)
//	}
//	defer shutdown(context.Background())
func Init(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var shutdownFuncs []func(context.Context) error
	shutdown = func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdownFuncs {
			if err := fn(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
	)

	if cfg.TraceExporter != "none" {
		tp, err := initTracer(ctx, cfg, res)
		if err != nil {
			return nil, fmt.Errorf("init tracer: %w", err)
		}
		otel.SetTracerProvider(tp)
		shutdownFuncs = append(shutdownFuncs, tp.Shutdown)
	}

	if cfg.MetricExporter != "none" {
		mp, err := initMeter(cfg, res)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("init meter: %w", err), shutdown(ctx))
		}
		otel.SetMeterProvider(mp)
		shutdownFuncs = append(shutdownFuncs, mp.Shutdown)
	}

	return shutdown, nil
}

func initTracer(ctx context.Context, cfg Config, res *resource.Resource) (*trace.TracerProvider, error) {
	var exporter trace.SpanExporter
	var err error

	switch cfg.TraceExporter {
	case "otlp":
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.TraceExporter)
	}
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}

	return trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(cfg.SampleRatio))),
	), nil
}

var (
	metricsHandler   http.Handler
	metricsHandlerMu sync.RWMutex
)

// MetricsHandler returns the /metrics handler, or nil unless the
// Prometheus exporter is active.
func MetricsHandler() http.Handler {
	metricsHandlerMu.RLock()
	defer metricsHandlerMu.RUnlock()
	return metricsHandler
}

func initMeter(cfg Config, res *resource.Resource) (*metric.MeterProvider, error) {
	switch cfg.MetricExporter {
	case "prometheus":
		// A private registry keeps repeated Init calls from colliding on
		// the default registerer.
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		exporter, err := promexporter.New(promexporter.WithRegisterer(reg))
		if err != nil {
			return nil, fmt.Errorf("create prometheus exporter: %w", err)
		}

		metricsHandlerMu.Lock()
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
		metricsHandlerMu.Unlock()

		return metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(exporter),
		), nil

	case "stdout":
		exporter, err := stdoutmetric.New(stdoutmetric.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout metric exporter: %w", err)
		}
		return metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(metric.NewPeriodicReader(exporter)),
		), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.MetricExporter)
	}
}

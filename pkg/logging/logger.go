// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging builds the service's structured logger on log/slog.
//
// A Logger writes to one stream (stderr by default, text or JSON) and
// optionally to an append-only JSON file. Records logged with a context
// carrying an OpenTelemetry span gain trace_id and span_id attributes.
//
//	logger, err := logging.New(logging.Config{Level: "debug", Service: "reason"})
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//	slog.SetDefault(logger.Slog())
//
// This package does not redact anything. Keep thought content and client
// supplied text out of attributes at Info and above.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"
)

// ErrInvalidConfig is returned for an unknown level or format.
var ErrInvalidConfig = errors.New("logging: invalid config")

// ParseLevel maps debug, info, warn and error to slog levels. The empty
// string is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("%w: level %q", ErrInvalidConfig, s)
}

// Config configures a Logger. The zero value logs info and above to
// stderr as text.
type Config struct {
	// Level is debug, info, warn or error.
	Level string `json:"level" yaml:"level"`

	// Format of the stream output, "text" or "json". Files are always JSON.
	Format string `json:"format" yaml:"format"`

	// File enables an additional JSON log file. A leading ~ is expanded.
	File string `json:"file" yaml:"file"`

	// Service is attached to every record when set.
	Service string `json:"service" yaml:"service"`

	// Quiet disables the stream output. File logging is unaffected.
	Quiet bool `json:"quiet" yaml:"quiet"`

	// Output replaces stderr as the stream destination.
	Output io.Writer `json:"-" yaml:"-"`
}

// Validate checks Level and Format.
func (c Config) Validate() error {
	if _, err := ParseLevel(c.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Format) {
	case "", "text", "json":
		return nil
	}
	return fmt.Errorf("%w: format %q", ErrInvalidConfig, c.Format)
}

// Logger owns the slog logger and any file it writes to.
//
// Thread Safety: Safe for concurrent use.
type Logger struct {
	slog *slog.Logger

	mu   sync.Mutex
	file *os.File
}

// New builds a Logger from cfg.
//
// Outputs:
//
//	*Logger - Must be closed when a file is configured.
//	error - ErrInvalidConfig, or the failure to create the log file.
func New(cfg Config) (*Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, _ := ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	l := &Logger{}

	if !cfg.Quiet {
		out := cfg.Output
		if out == nil {
			out = os.Stderr
		}
		if strings.EqualFold(cfg.Format, "json") {
			handlers = append(handlers, slog.NewJSONHandler(out, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(out, opts))
		}
	}

	if cfg.File != "" {
		path := expandPath(cfg.File)
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		l.file = f
		handlers = append(handlers, slog.NewJSONHandler(f, opts))
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(io.Discard, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}
	handler = &traceHandler{next: handler}
	if cfg.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", cfg.Service)})
	}

	l.slog = slog.New(handler)
	return l, nil
}

// Slog returns the underlying logger.
func (l *Logger) Slog() *slog.Logger { return l.slog }

// Close syncs and closes the log file, if any. It is safe to call twice.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	return errors.Join(f.Sync(), f.Close())
}

// multiHandler fans records out to every enabled handler.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			errs = append(errs, handler.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// traceHandler adds the span context from ctx to each record.
type traceHandler struct {
	next slog.Handler
}

func (h *traceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.next.Handle(ctx, r)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{next: h.next.WithAttrs(attrs)}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{next: h.next.WithGroup(name)}
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

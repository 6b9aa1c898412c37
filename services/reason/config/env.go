// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/AleutianAI/AleutianReason/services/reason/engine"
)

// lookupFunc matches os.LookupEnv.
type lookupFunc func(key string) (string, bool)

// loadEnv applies REASON_* and OTEL_* overrides. Malformed values are
// reported rather than ignored.
func loadEnv(cfg *Config, lookup lookupFunc) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			i, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = i
		}
	}
	duration := func(key string, dst *engine.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = engine.Duration(d)
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("REASON_ADDR", &cfg.Server.Addr)
	str("REASON_GIN_MODE", &cfg.Server.Mode)
	duration("REASON_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	str("REASON_LOG_LEVEL", &cfg.Logging.Level)
	str("REASON_LOG_FORMAT", &cfg.Logging.Format)
	str("REASON_LOG_FILE", &cfg.Logging.File)

	duration("REASON_SESSION_TTL", &cfg.Sessions.TTL)
	integer("REASON_MAX_SESSIONS", &cfg.Sessions.MaxSessions)

	str("REASON_ENV", &cfg.Telemetry.Environment)
	str("OTEL_SERVICE_NAME", &cfg.Telemetry.ServiceName)
	str("OTEL_TRACES_EXPORTER", &cfg.Telemetry.TraceExporter)
	str("OTEL_METRICS_EXPORTER", &cfg.Telemetry.MetricExporter)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.Telemetry.OTLPEndpoint)
	boolean("OTEL_EXPORTER_OTLP_INSECURE", &cfg.Telemetry.OTLPInsecure)

	integer("REASON_TREE_MAX_DEPTH", &cfg.Tree.MaxDepth)
	integer("REASON_GRAPH_MAX_NODES", &cfg.Graph.MaxNodes)
	integer("REASON_BEAM_WIDTH", &cfg.Beam.BeamWidth)
	integer("REASON_MCTS_MAX_SIMULATIONS", &cfg.MCTS.MaxSimulations)

	if v, ok := lookup("REASON_SEED"); ok && v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("REASON_SEED: %w", err))
		} else {
			cfg.Tree.Seed = seed
			cfg.Beam.Seed = seed
			cfg.MCTS.Seed = seed
		}
	}

	return errors.Join(errs...)
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the reasoning service configuration.
//
// Values are layered: DefaultConfig, then a YAML or JSON file, then
// environment variables, then Validate.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianReason/pkg/logging"
	"github.com/AleutianAI/AleutianReason/services/reason/beam"
	"github.com/AleutianAI/AleutianReason/services/reason/engine"
	"github.com/AleutianAI/AleutianReason/services/reason/got"
	"github.com/AleutianAI/AleutianReason/services/reason/mcts"
	"github.com/AleutianAI/AleutianReason/services/reason/session"
	"github.com/AleutianAI/AleutianReason/services/reason/telemetry"
	"github.com/AleutianAI/AleutianReason/services/reason/tot"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	Addr            string          `json:"addr" yaml:"addr"`
	Mode            string          `json:"mode" yaml:"mode"`
	ReadTimeout     engine.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    engine.Duration `json:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout engine.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64 `json:"max_body_bytes" yaml:"max_body_bytes"`
}

// SessionConfig configures the session store.
type SessionConfig struct {
	// TTL is the idle expiry. Zero keeps sessions until deleted.
	TTL             engine.Duration `json:"ttl" yaml:"ttl"`
	MaxSessions     int             `json:"max_sessions" yaml:"max_sessions"`
	JanitorInterval engine.Duration `json:"janitor_interval" yaml:"janitor_interval"`
}

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig     `json:"server" yaml:"server"`
	Logging   logging.Config   `json:"logging" yaml:"logging"`
	Telemetry telemetry.Config `json:"telemetry" yaml:"telemetry"`
	Sessions  SessionConfig    `json:"sessions" yaml:"sessions"`

	Tree  tot.Config  `json:"tree" yaml:"tree"`
	Graph got.Config  `json:"graph" yaml:"graph"`
	Beam  beam.Config `json:"beam" yaml:"beam"`
	MCTS  mcts.Config `json:"mcts" yaml:"mcts"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8090",
			Mode:            "release",
			ReadTimeout:     engine.Duration(15 * time.Second),
			WriteTimeout:    engine.Duration(60 * time.Second),
			ShutdownTimeout: engine.Duration(10 * time.Second),
			MaxBodyBytes:    4 << 20,
		},
		Logging: logging.Config{
			Level:   "info",
			Format:  "text",
			Service: "reason",
		},
		Telemetry: telemetry.DefaultConfig(),
		Sessions: SessionConfig{
			TTL:             engine.Duration(session.DefaultTTL),
			JanitorInterval: engine.Duration(time.Minute),
		},
		Tree:  tot.DefaultConfig(),
		Graph: got.DefaultConfig(),
		Beam:  beam.DefaultConfig(),
		MCTS:  mcts.DefaultConfig(),
	}
}

// Load returns the configuration with priority env > file > defaults.
//
// Inputs:
//
//	path - YAML or JSON file. Empty or missing files are skipped.
//
// Outputs:
//
//	Config - The merged configuration.
//	error - A parse error, a malformed environment value, or ErrInvalid.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}
	if err := loadEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, fmt.Errorf("load config env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

// Validate checks every section.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr must be set"))
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		errs = append(errs, fmt.Errorf("server.mode must be debug, release or test, got %q", c.Server.Mode))
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("server timeouts must not be negative"))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server.max_body_bytes must be > 0"))
	}
	if c.Sessions.TTL < 0 {
		errs = append(errs, errors.New("sessions.ttl must not be negative"))
	}
	if c.Sessions.MaxSessions < 0 {
		errs = append(errs, errors.New("sessions.max_sessions must not be negative"))
	}
	if c.Sessions.JanitorInterval <= 0 {
		errs = append(errs, errors.New("sessions.janitor_interval must be > 0"))
	}

	sections := []struct {
		name string
		err  error
	}{
		{"logging", c.Logging.Validate()},
		{"telemetry", c.Telemetry.Validate()},
		{"tree", c.Tree.Validate()},
		{"graph", c.Graph.Validate()},
		{"beam", c.Beam.Validate()},
		{"mcts", c.MCTS.Validate()},
	}
	for _, s := range sections {
		if s.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, s.err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// YAML renders the configuration as YAML.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/AleutianReason/pkg/logging"
	"github.com/AleutianAI/AleutianReason/services/reason"
	"github.com/AleutianAI/AleutianReason/services/reason/config"
	"github.com/AleutianAI/AleutianReason/services/reason/mcptools"
	"github.com/AleutianAI/AleutianReason/services/reason/telemetry"
)

var (
	configPath string
	addrFlag   string
	logLevel   string
)

var (
	rootCmd = &cobra.Command{
		Use:   "reason",
		Short: "Multi-strategy thought exploration engines",
		Long: `reason serves Tree-of-Thought, Graph-of-Thought, beam search and
Monte Carlo tree search engines over HTTP or as MCP tools.`,
		SilenceUsage: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  runServe,
	}

	mcpCmd = &cobra.Command{
		Use:   "mcp",
		Short: "Serve the engines as MCP tools on stdio",
		RunE:  runMCP,
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE:  runConfig,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), reason.ServiceVersion)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML or JSON config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the log level (debug, info, warn, error)")
	serveCmd.Flags().StringVar(&addrFlag, "addr", "", "Override the listen address")

	rootCmd.AddCommand(serveCmd, mcpCmd, configCmd, versionCmd)
}

// loadConfig applies flag overrides on top of file and environment.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if addrFlag != "" {
		cfg.Server.Addr = addrFlag
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, cfg.Validate()
}

// setup builds the logger, telemetry and service shared by serve and mcp.
func setup(ctx context.Context, cfg config.Config, logOut io.Writer) (*reason.Service, *logging.Logger, func(context.Context) error, error) {
	cfg.Logging.Output = logOut
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logging: %w", err)
	}
	slog.SetDefault(logger.Slog())

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		logger.Close()
		return nil, nil, nil, fmt.Errorf("init telemetry: %w", err)
	}

	metrics, err := telemetry.NewMetrics(otel.Meter("aleutian.reason"))
	if err != nil {
		logger.Slog().Warn("Metrics disabled", slog.String("error", err.Error()))
	}

	svc := reason.NewService(cfg,
		reason.WithLogger(logger.Slog()),
		reason.WithMetrics(metrics),
	)
	return svc, logger, shutdown, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, logger, shutdownTelemetry, err := setup(ctx, cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.Slog()

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	if cfg.Server.Mode == gin.DebugMode {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	reason.RegisterRoutes(v1, reason.NewHandlers(svc).WithMaxBodyBytes(cfg.Server.MaxBodyBytes))
	if h := telemetry.MetricsHandler(); h != nil {
		router.GET("/metrics", gin.WrapH(h))
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
	}

	janitorDone := make(chan struct{})
	go func() {
		defer close(janitorDone)
		if err := svc.Run(ctx, cfg.Sessions.JanitorInterval.Std()); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("Session janitor stopped", slog.String("error", err.Error()))
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Starting reasoning server",
			slog.String("address", cfg.Server.Addr),
			slog.String("version", reason.ServiceVersion),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			stop()
			<-janitorDone
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("Shutting down reasoning server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	<-janitorDone
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
	}
	return errors.Join(errs...)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// stdout carries the protocol.
	svc, logger, shutdownTelemetry, err := setup(cmd.Context(), cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		if err := svc.Run(ctx, cfg.Sessions.JanitorInterval.Std()); err != nil && !errors.Is(err, context.Canceled) {
			logger.Slog().Warn("Session janitor stopped", slog.String("error", err.Error()))
		}
	}()

	logger.Slog().Info("Serving MCP tools on stdio", slog.String("version", reason.ServiceVersion))
	serveErr := server.ServeStdio(mcptools.NewServer(svc, logger.Slog()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(serveErr, shutdownTelemetry(shutdownCtx))
}

func runConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out, err := cfg.YAML()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}

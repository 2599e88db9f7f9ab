// Copyright (C) 2025 Agentra AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/agentra-ai/factcheck/services/verifier"
	"github.com/agentra-ai/factcheck/services/verifier/config"
	"github.com/agentra-ai/factcheck/services/verifier/observability"
	"github.com/agentra-ai/factcheck/services/verifier/store"
)

const shutdownGrace = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the fact-checking HTTP service",
	Long: `Starts the verification API:

  POST /v1/factcheck     - run one verification
  GET  /v1/factcheck/:id - fetch a persisted report
  GET  /health           - liveness
  GET  /metrics          - Prometheus metrics`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	reports, err := store.Open(store.Options{Dir: cfg.DataDir, Logger: logger.Logger})
	if err != nil {
		return fmt.Errorf("open report store: %w", err)
	}
	defer reports.Close()

	checker, err := buildChecker(cfg, logger, metrics, reports)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	handlers := verifier.NewHandlers(checker, reports)
	verifier.RegisterRoutes(router.Group("/v1"), handlers)
	router.GET("/health", handlers.HandleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("factcheck service listening",
			"port", cfg.Port,
			"low_rpm_mode", cfg.LowRPMMode,
			"debate", cfg.DebateEnabled(),
			"data_dir", cfg.DataDir)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

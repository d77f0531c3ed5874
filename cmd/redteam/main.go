// Copyright (C) 2025 Sentinel AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentinelai/sentinel/pkg/logging"
	"github.com/sentinelai/sentinel/services/llm"
	"github.com/sentinelai/sentinel/services/redteam"
	"github.com/sentinelai/sentinel/services/store"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	slog.Info("Using default", "key", key, "value", fallback)
	return fallback
}

func main() {
	godotenv.Load()
	logging.Setup("redteam")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dsn := envOr("DATABASE_URL",
		"postgres://sentinel_db_admin:sentinel_db_password@db:5432/sentinel_db?sslmode=disable")
	st, err := store.Open(ctx, dsn)
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer st.Close()
	if err := st.EnsureSchema(ctx); err != nil {
		slog.Error("Failed to initialize schema", "error", err)
		os.Exit(1)
	}

	sim := redteam.NewSimulator(envOr("BACKEND_URL", "http://backend:8000"), st)

	qwen, err := llm.NewLMStudioClient(llm.LMStudioConfig{
		Name:    "qwen",
		BaseURL: envOr("QWEN_URL", "http://lm-proxy:8080"),
		Model:   envOr("QWEN_MODEL", "qwen2.5-coder-7b-instruct"),
	})
	if err != nil {
		slog.Error("Failed to build qwen client", "error", err)
		os.Exit(1)
	}
	mistral, err := llm.NewLMStudioClient(llm.LMStudioConfig{
		Name:    "mistral",
		BaseURL: envOr("MISTRAL_URL", "http://host.docker.internal:1234"),
		Model:   envOr("MISTRAL_MODEL", "mistral-7b-instruct-v0.3"),
		Timeout: llm.DefaultMistralTimeout,
	})
	if err != nil {
		slog.Error("Failed to build mistral client", "error", err)
		os.Exit(1)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "redteam"})
	})
	router.GET("/ready", func(c *gin.Context) {
		if err := st.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	redteam.RegisterRoutes(router, sim, st, qwen, mistral)

	srv := &http.Server{Addr: ":" + envOr("REDTEAM_PORT", "8002"), Handler: router}
	go func() {
		slog.Info("Red team service listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Shutdown failed", "error", err)
	}
}

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

	"github.com/sentinelai/sentinel/pkg/logging"
	"github.com/sentinelai/sentinel/services/backend/handlers"
	"github.com/sentinelai/sentinel/services/backend/routes"
	"github.com/sentinelai/sentinel/services/llm"
	"github.com/sentinelai/sentinel/services/pipeline"
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
	logging.Setup("backend")

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

	queue, err := pipeline.DialQueue(ctx, envOr("REDIS_ADDR", "redis:6379"), os.Getenv("REDIS_PASSWORD"), 0)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer queue.Close()

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

	deps := routes.Deps{
		Store:   st,
		Queue:   queue,
		Qwen:    qwen,
		Mistral: mistral,
		Webhook: handlers.WebhookConfig{
			Secret:  envOr("GITHUB_WEBHOOK_SECRET", "super-secret"),
			DevMode: os.Getenv("WEBHOOK_DEV_MODE") == "true",
		},
		Readiness:    map[string]handlers.Pinger{"db": st, "queue": queue},
		APIKeyHeader: os.Getenv("API_KEY_HEADER"),
		APIKey:       os.Getenv("API_KEY"),
	}

	// A missing credential silently disables the validator.
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		validator, err := llm.NewGeminiValidator(ctx, apiKey)
		if err != nil {
			slog.Warn("Gemini validator unavailable", "error", err)
		} else {
			deps.Validator = validator
		}
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	routes.SetupRoutes(router, deps)

	srv := &http.Server{
		Addr:    ":" + envOr("BACKEND_PORT", "8000"),
		Handler: router,
	}
	go func() {
		slog.Info("Backend listening", "addr", srv.Addr)
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

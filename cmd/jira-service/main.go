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
	"github.com/sentinelai/sentinel/services/jira"
	"github.com/sentinelai/sentinel/services/store"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	slog.Info("Using default", "key", key, "value", fallback)
	return fallback
}

// clientConfig builds the tracker credentials, letting a row saved via
// POST /api/jira/config override the environment.
func clientConfig(ctx context.Context, st *store.Store) jira.ClientConfig {
	cfg := jira.ClientConfig{
		BaseURL:    os.Getenv("JIRA_BASE_URL"),
		UserEmail:  os.Getenv("JIRA_USER_EMAIL"),
		APIToken:   os.Getenv("JIRA_API_TOKEN"),
		ProjectKey: envOr("JIRA_PROJECT_KEY", "SEC"),
		IssueType:  envOr("JIRA_ISSUE_TYPE", "Bug"),
	}
	stored, ok, err := st.LoadJiraConfig(ctx)
	if err != nil {
		slog.Warn("Failed to load stored tracker config", "error", err)
		return cfg
	}
	if ok {
		slog.Info("Using tracker config from database", "project", stored.ProjectKey)
		cfg.BaseURL = stored.BaseURL
		cfg.UserEmail = stored.UserEmail
		cfg.APIToken = stored.APIToken
		cfg.ProjectKey = stored.ProjectKey
		if stored.IssueType != "" {
			cfg.IssueType = stored.IssueType
		}
	}
	return cfg
}

func main() {
	godotenv.Load()
	logging.Setup("jira-service")

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

	client := jira.NewClient(clientConfig(ctx, st))
	dispatcher := jira.NewDispatcher(st, client, jira.DefaultPollInterval)
	go dispatcher.Run(ctx)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "jira-service"})
	})
	router.GET("/ready", func(c *gin.Context) {
		if err := st.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	jira.RegisterRoutes(router, st, client, dispatcher)

	srv := &http.Server{Addr: ":" + envOr("JIRA_SERVICE_PORT", "8003"), Handler: router}
	go func() {
		slog.Info("Jira service listening", "addr", srv.Addr)
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

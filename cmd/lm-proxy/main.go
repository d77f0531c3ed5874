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
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sentinelai/sentinel/pkg/logging"
	"github.com/sentinelai/sentinel/services/proxy"
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
	logging.Setup("lm-proxy")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	target := envOr("LM_TARGET_HOST", "http://host.docker.internal:1234")
	port := envOr("PROXY_PORT", "8080")

	// Opt-in: evict whatever is squatting on the listen port before
	// binding, for hosts where a stale proxy instance lingers.
	if raw := os.Getenv("PROXY_TAKEOVER_PORT"); raw == "true" || raw == "1" {
		if n, err := strconv.Atoi(port); err == nil {
			proxy.FreePort(n)
			time.Sleep(500 * time.Millisecond)
		}
	}

	srv := &http.Server{Addr: ":" + port, Handler: proxy.NewForwarder(target)}
	go func() {
		slog.Info("Proxy listening", "addr", srv.Addr, "target", target)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Proxy failed to serve", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Shutdown failed", "error", err)
	}
}

// Copyright (C) 2025 Sentinel AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging setup for Sentinel services.
//
// Every long-lived process calls Setup once at startup. Logs are JSON on
// stdout so container log collectors can parse them; the "service" attribute
// identifies the component in aggregated output.
//
//	logger := logging.Setup("scan-worker")
//	logger.Info("starting", "queue", queueName)
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Setup installs a JSON slog handler as the process default and returns a
// logger tagged with the service name.
//
// The minimum level comes from LOG_LEVEL (debug|info|warn|error, default
// info). The returned logger is also set as slog's default so package-level
// slog calls pick up the same handler.
func Setup(service string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: levelFromEnv()}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	logger := slog.New(handler).With("service", service)
	slog.SetDefault(logger)
	return logger
}

// levelFromEnv maps LOG_LEVEL to a slog.Level, defaulting to Info.
func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

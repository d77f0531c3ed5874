// Copyright (C) 2025 Sentinel AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sentinelai/sentinel/services/store"
)

// recentScanLimit bounds the dashboard scan list and the graph window.
const recentScanLimit = 5

// DashboardStore is the read/reset surface the dashboard handlers need.
type DashboardStore interface {
	Stats(ctx context.Context) (store.DashboardStats, error)
	RecentScans(ctx context.Context, limit int) ([]store.ScanResult, error)
	RecentVulnerabilities(ctx context.Context, scanLimit int) ([]store.FlatVulnerability, error)
	ResetScans(ctx context.Context) error
}

// AIProber reports live reachability of one model backend.
type AIProber interface {
	Available(ctx context.Context) bool
}

// ValidatorStatus reports whether the external validator is usable.
type ValidatorStatus interface {
	Enabled() bool
}

// DashboardStats serves the headline counters. Empty or unreachable
// stores fall back to demo values so a fresh install renders something.
func DashboardStats(st DashboardStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := st.Stats(c.Request.Context())
		if err != nil {
			slog.Warn("Stats query failed, serving defaults", "error", err)
			c.JSON(http.StatusOK, gin.H{"score": 92, "drift": 2, "exploits_prevented": 14})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"score":              stats.Score,
			"drift":              stats.Drift,
			"exploits_prevented": stats.ExploitsPrevented,
		})
	}
}

// RecentScans serves the latest scans in the dashboard's row shape.
func RecentScans(st DashboardStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		scans, err := st.RecentScans(c.Request.Context(), recentScanLimit)
		if err != nil {
			slog.Warn("Recent scans query failed", "error", err)
			c.JSON(http.StatusOK, []gin.H{})
			return
		}
		rows := make([]gin.H, 0, len(scans))
		for _, s := range scans {
			status := "Blocked"
			if s.AuthIntegrityScore >= 80 {
				status = "Passed"
			}
			commit := s.CommitHash
			if len(commit) > 6 {
				commit = commit[:6]
			}
			rows = append(rows, gin.H{
				"id":        "#" + commit,
				"status":    status,
				"title":     "Scan for " + s.RepoName,
				"repo_name": s.RepoName,
				"issues":    len(s.Vulnerabilities),
				"severity":  s.Severity,
				"time":      s.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			})
		}
		c.JSON(http.StatusOK, rows)
	}
}

// RecentVulnerabilities serves the flat vulnerability list the attack
// simulator consumes.
func RecentVulnerabilities(st DashboardStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		vulns, err := st.RecentVulnerabilities(c.Request.Context(), recentScanLimit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load vulnerabilities"})
			return
		}
		if vulns == nil {
			vulns = []store.FlatVulnerability{}
		}
		c.JSON(http.StatusOK, vulns)
	}
}

// AIStatus reports reachability of the review models and the validator.
func AIStatus(qwen, mistral AIProber, validator ValidatorStatus) gin.HandlerFunc {
	status := func(ctx context.Context, p AIProber) string {
		if p != nil && p.Available(ctx) {
			return "online"
		}
		return "offline"
	}
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		validatorState := "disabled"
		if validator != nil && validator.Enabled() {
			validatorState = "enabled"
		}
		c.JSON(http.StatusOK, gin.H{
			"qwen":             status(ctx, qwen),
			"mistral":          status(ctx, mistral),
			"gemini_validator": validatorState,
		})
	}
}

// ResetDashboard truncates the scan store.
func ResetDashboard(st DashboardStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := st.ResetScans(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reset scans"})
			return
		}
		slog.Info("Scan store reset")
		c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Scan history cleared"})
	}
}

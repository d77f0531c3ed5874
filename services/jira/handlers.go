// Copyright (C) 2025 Sentinel AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package jira

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sentinelai/sentinel/services/store"
)

// HandlerStore is the persistence surface the HTTP layer reads.
type HandlerStore interface {
	AllJiraIssues(ctx context.Context, limit int) ([]store.JiraIssue, error)
	JiraIssuesForScan(ctx context.Context, scanID int64) ([]store.JiraIssue, error)
	JiraTicketStats(ctx context.Context) (store.JiraStats, error)
	SaveJiraConfig(ctx context.Context, cfg store.JiraConfig) error
}

// ConnectivityChecker reports tracker reachability for the status page.
type ConnectivityChecker interface {
	CheckConnectivity(ctx context.Context) ConnectivityStatus
}

// RegisterRoutes mounts the tracker API under /api/jira.
func RegisterRoutes(router *gin.Engine, st HandlerStore, checker ConnectivityChecker, dispatcher *Dispatcher) {
	api := router.Group("/api/jira")
	{
		api.GET("/status", statusHandler(checker))
		api.GET("/issues", listIssuesHandler(st))
		api.GET("/issues/:scan_id", scanIssuesHandler(st))
		api.GET("/stats", statsHandler(st))
		api.POST("/trigger", triggerHandler(dispatcher))
		api.POST("/config", configHandler(st))
	}
}

func statusHandler(checker ConnectivityChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, checker.CheckConnectivity(c.Request.Context()))
	}
}

func listIssuesHandler(st HandlerStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 100
		if raw := c.Query("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
				limit = n
			}
		}
		issues, err := st.AllJiraIssues(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch issues"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": len(issues), "issues": issues})
	}
}

func scanIssuesHandler(st HandlerStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		scanID, err := strconv.ParseInt(c.Param("scan_id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid scan id"})
			return
		}
		issues, err := st.JiraIssuesForScan(c.Request.Context(), scanID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch issues"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"scan_id": scanID, "count": len(issues), "issues": issues})
	}
}

func statsHandler(st HandlerStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := st.JiraTicketStats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch stats"})
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

func triggerHandler(dispatcher *Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		dispatcher.Trigger()
		c.JSON(http.StatusAccepted, gin.H{"status": "triggered"})
	}
}

func configHandler(st HandlerStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cfg store.JiraConfig
		if err := c.ShouldBindJSON(&cfg); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid config payload"})
			return
		}
		if cfg.IssueType == "" {
			cfg.IssueType = "Bug"
		}
		if err := st.SaveJiraConfig(c.Request.Context(), cfg); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save config"})
			return
		}
		// The tracker client reads its config at startup; a restart picks
		// up the new settings.
		c.JSON(http.StatusOK, gin.H{"status": "saved"})
	}
}

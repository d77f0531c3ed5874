// Copyright (C) 2025 Sentinel AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes wires the analysis backend's HTTP surface.
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentinelai/sentinel/services/backend/handlers"
	"github.com/sentinelai/sentinel/services/backend/middleware"
)

// Deps carries everything the backend routes need. Nil probes render as
// offline in /api/dashboard/ai_status; a nil validator renders disabled.
type Deps struct {
	Store     handlers.DashboardStore
	Queue     handlers.ScanQueue
	Webhook   handlers.WebhookConfig
	Qwen      handlers.AIProber
	Mistral   handlers.AIProber
	Validator handlers.ValidatorStatus
	Readiness map[string]handlers.Pinger

	APIKeyHeader string
	APIKey       string
}

// SetupRoutes mounts the full backend surface on the router.
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.Use(middleware.RequestID())
	router.Use(middleware.APIKeyAuth(deps.APIKeyHeader, deps.APIKey))

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "Sentinel AI Auth API is running"})
	})
	router.GET("/health", handlers.HealthCheck)
	router.GET("/ready", handlers.Readiness(deps.Readiness))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.POST("/scan", handlers.TriggerScan(deps.Queue))
		api.POST("/github/webhook", handlers.GitHubWebhook(deps.Webhook, deps.Queue))

		dashboard := api.Group("/dashboard")
		{
			dashboard.GET("/stats", handlers.DashboardStats(deps.Store))
			dashboard.GET("/recent_scans", handlers.RecentScans(deps.Store))
			dashboard.GET("/vulnerabilities", handlers.RecentVulnerabilities(deps.Store))
			dashboard.GET("/ai_status", handlers.AIStatus(deps.Qwen, deps.Mistral, deps.Validator))
			dashboard.DELETE("/reset", handlers.ResetDashboard(deps.Store))
		}

		api.GET("/graph/data", handlers.GraphData(deps.Store))
	}
}

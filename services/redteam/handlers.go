// Copyright (C) 2025 Sentinel AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package redteam

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sentinelai/sentinel/services/store"
)

// ModelProber reports live reachability of one review model.
type ModelProber interface {
	Available(ctx context.Context) bool
}

// FindingsStore is the CRUD surface over redteam_findings.
type FindingsStore interface {
	ListFindings(ctx context.Context, filter store.FindingFilter) ([]store.Finding, error)
	CreateFinding(ctx context.Context, f store.Finding) (store.Finding, error)
	GetFinding(ctx context.Context, id int64) (store.Finding, error)
	UpdateFinding(ctx context.Context, id int64, upd store.FindingUpdate) (store.Finding, error)
	DeleteFinding(ctx context.Context, id int64) error
}

// RegisterRoutes mounts the red-team API under /api/v1.
func RegisterRoutes(router *gin.Engine, sim *Simulator, findings FindingsStore, qwen, mistral ModelProber) {
	attacks := router.Group("/api/v1/attacks")
	{
		attacks.POST("/simulate", simulateHandler(sim, ""))
		attacks.POST("/simulate/qwen", simulateHandler(sim, "qwen"))
		attacks.POST("/simulate/mistral", simulateHandler(sim, "mistral"))
		attacks.GET("/model-status", modelStatusHandler(qwen, mistral))
		attacks.GET("/status", attackStatusHandler(sim))
		attacks.GET("/vulnerabilities", vulnerabilitiesHandler(sim))
		attacks.GET("/scans", scansHandler(sim))
	}
	f := router.Group("/api/v1/findings")
	{
		f.GET("", listFindingsHandler(findings))
		f.POST("", createFindingHandler(findings))
		f.GET("/:id", getFindingHandler(findings))
		f.PATCH("/:id", updateFindingHandler(findings))
		f.DELETE("/:id", deleteFindingHandler(findings))
	}
}

func simulateHandler(sim *Simulator, model string) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := sim.RunCycle(c.Request.Context(), model)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func modelStatusHandler(qwen, mistral ModelProber) gin.HandlerFunc {
	status := func(ctx context.Context, p ModelProber) string {
		if p != nil && p.Available(ctx) {
			return "online"
		}
		return "offline"
	}
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		c.JSON(http.StatusOK, gin.H{
			"mistral": status(ctx, mistral),
			"qwen":    status(ctx, qwen),
		})
	}
}

func attackStatusHandler(sim *Simulator) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		connected := true
		vulns, err := sim.FetchVulnerabilities(ctx, "")
		if err != nil {
			connected = false
		}
		scans, err := sim.FetchRecentScans(ctx)
		if err != nil {
			connected = false
		}
		c.JSON(http.StatusOK, gin.H{
			"service":                   "red-team-attack-simulator",
			"status":                    "operational",
			"backend_connected":         connected,
			"vulnerabilities_available": len(vulns),
			"recent_scans_available":    len(scans),
		})
	}
}

func vulnerabilitiesHandler(sim *Simulator) gin.HandlerFunc {
	return func(c *gin.Context) {
		model := c.Query("model")
		vulns, err := sim.FetchVulnerabilities(c.Request.Context(), model)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"count":           len(vulns),
			"model_filter":    model,
			"vulnerabilities": vulns,
		})
	}
}

func scansHandler(sim *Simulator) gin.HandlerFunc {
	return func(c *gin.Context) {
		scans, err := sim.FetchRecentScans(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": len(scans), "scans": scans})
	}
}

func listFindingsHandler(findings FindingsStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := store.FindingFilter{
			Severity: c.Query("severity"),
			Status:   c.Query("status"),
		}
		if n, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
			filter.Limit = n
		}
		if n, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil && n >= 0 {
			filter.Offset = n
		}
		list, err := findings.ListFindings(c.Request.Context(), filter)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list findings"})
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

func createFindingHandler(findings FindingsStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var f store.Finding
		if err := c.ShouldBindJSON(&f); err != nil || f.Title == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
			return
		}
		created, err := findings.CreateFinding(c.Request.Context(), f)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create finding"})
			return
		}
		c.JSON(http.StatusCreated, created)
	}
}

func getFindingHandler(findings FindingsStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := findingID(c)
		if !ok {
			return
		}
		f, err := findings.GetFinding(c.Request.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "finding not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch finding"})
			return
		}
		c.JSON(http.StatusOK, f)
	}
}

func updateFindingHandler(findings FindingsStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := findingID(c)
		if !ok {
			return
		}
		var upd store.FindingUpdate
		if err := c.ShouldBindJSON(&upd); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid update payload"})
			return
		}
		f, err := findings.UpdateFinding(c.Request.Context(), id, upd)
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "finding not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update finding"})
			return
		}
		c.JSON(http.StatusOK, f)
	}
}

func deleteFindingHandler(findings FindingsStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := findingID(c)
		if !ok {
			return
		}
		err := findings.DeleteFinding(c.Request.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "finding not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete finding"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func findingID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid finding id"})
		return 0, false
	}
	return id, true
}

// Copyright (C) 2025 Sentinel AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers contains the HTTP handlers for the analysis backend.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sentinelai/sentinel/pkg/validation"
	"github.com/sentinelai/sentinel/services/pipeline"
)

// ScanQueue enqueues scan jobs for the worker pool.
type ScanQueue interface {
	Enqueue(ctx context.Context, req pipeline.ScanRequest) error
}

type scanRequestBody struct {
	GitHubURL string `json:"github_url"`
}

// TriggerScan queues a manual scan from a GitHub URL or bare owner/name
// reference.
func TriggerScan(queue ScanQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body scanRequestBody
		if err := c.ShouldBindJSON(&body); err != nil || body.GitHubURL == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "github_url is required"})
			return
		}

		repo := validation.RepoFromURL(body.GitHubURL)
		if err := validation.ValidateRepo(repo); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		err := queue.Enqueue(c.Request.Context(), pipeline.ScanRequest{
			Repo:   repo,
			Branch: "main",
			Commit: "latest",
		})
		if err != nil {
			slog.Error("Failed to queue manual scan", "repo", repo, "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to queue scan"})
			return
		}

		slog.Info("Manual scan triggered", "repo", repo)
		c.JSON(http.StatusOK, gin.H{
			"status":  "success",
			"message": "Scan triggered for " + repo,
			"repo":    repo,
		})
	}
}

// Copyright (C) 2025 Sentinel AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sentinelai/sentinel/services/pipeline"
)

// webhookActions are the pull_request actions that trigger a scan.
var webhookActions = map[string]bool{
	"opened":      true,
	"synchronize": true,
	"reopened":    true,
}

// WebhookConfig controls GitHub webhook verification.
//
// DevMode logs signature failures and processes the event anyway, for
// local setups without a shared secret. Never enable it in production.
type WebhookConfig struct {
	Secret  string
	DevMode bool
}

type webhookPayload struct {
	Action      string `json:"action"`
	PullRequest *struct {
		Number  int    `json:"number"`
		DiffURL string `json:"diff_url"`
		Head    struct {
			SHA string `json:"sha"`
		} `json:"head"`
	} `json:"pull_request"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// VerifySignature checks the X-Hub-Signature-256 HMAC over the raw body.
func VerifySignature(secret string, body []byte, header string) bool {
	if header == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}

// GitHubWebhook handles pull_request events, queueing a scan for opened,
// synchronized and reopened PRs.
func GitHubWebhook(cfg WebhookConfig, queue ScanQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
			return
		}

		if !VerifySignature(cfg.Secret, body, c.GetHeader("X-Hub-Signature-256")) {
			if !cfg.DevMode {
				c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "invalid signature"})
				return
			}
			slog.Warn("Webhook signature invalid, continuing in dev mode")
		}

		var payload webhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}

		if payload.PullRequest == nil || !webhookActions[payload.Action] {
			c.JSON(http.StatusOK, gin.H{"status": "ignored", "message": "Event ignored."})
			return
		}

		pr := payload.PullRequest
		err = queue.Enqueue(c.Request.Context(), pipeline.ScanRequest{
			Repo:    payload.Repository.FullName,
			Branch:  "main",
			Commit:  pr.Head.SHA,
			DiffURL: pr.DiffURL,
		})
		if err != nil {
			slog.Error("Failed to queue webhook scan",
				"repo", payload.Repository.FullName, "pr", pr.Number, "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to queue scan"})
			return
		}

		slog.Info("Webhook scan triggered",
			"repo", payload.Repository.FullName, "pr", pr.Number, "action", payload.Action)
		c.JSON(http.StatusOK, gin.H{
			"status":  "success",
			"message": "Scan triggered for PR #" + strconv.Itoa(pr.Number),
		})
	}
}

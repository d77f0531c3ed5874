// Copyright (C) 2025 Sentinel AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package jira files tracker tickets for qualifying vulnerabilities and
// keeps scan processing checkpoints. Uses Jira REST API v2, which accepts
// wiki-markup text without ADF payloads.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	maxRetries       = 3
	retryBackoffBase = 2 * time.Second
	requestTimeout   = 10 * time.Second
)

// priorityBySeverity maps scan severity to Jira priority names. Unknown
// severities default to High.
var priorityBySeverity = map[string]string{
	"Critical": "Highest",
	"High":     "High",
}

// ClientConfig holds tracker connection settings.
type ClientConfig struct {
	BaseURL    string
	UserEmail  string
	APIToken   string
	ProjectKey string
	IssueType  string // preferred issue type name, e.g. "Bug"
}

// Configured reports whether credentials are present.
func (c ClientConfig) Configured() bool {
	return c.BaseURL != "" && c.UserEmail != "" && c.APIToken != ""
}

// Client talks to the Jira REST API with bounded retries.
type Client struct {
	cfg  ClientConfig
	http *http.Client

	mu        sync.Mutex
	issueType map[string]string // cached {"id": ...} or {"name": ...}
}

// NewClient creates a tracker client.
func NewClient(cfg ClientConfig) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: requestTimeout},
	}
}

// doWithRetry sends one request up to maxRetries times with exponential
// backoff (2s, 4s). Bodies are rebuilt per attempt.
func (c *Client) doWithRetry(ctx context.Context, method, url string, payload any) (*http.Response, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		req.SetBasicAuth(c.cfg.UserEmail, c.cfg.APIToken)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err == nil && resp.StatusCode < 400 {
			return resp, nil
		}
		if err == nil {
			data, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("jira API returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		} else {
			lastErr = err
		}
		if attempt < maxRetries {
			wait := retryBackoffBase * time.Duration(1<<(attempt-1))
			slog.Warn("Jira API attempt failed, retrying",
				"attempt", attempt, "wait", wait, "error", lastErr)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("jira API request failed after %d attempts: %w", maxRetries, lastErr)
}

func (c *Client) apiURL(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

// discoverIssueType resolves the issue type reference used when creating
// tickets: configured name (case-insensitive), else first non-subtask type,
// else first type, else the literal name "Task". The result is cached for
// the process lifetime.
func (c *Client) discoverIssueType(ctx context.Context) map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.issueType != nil {
		return c.issueType
	}

	fallback := map[string]string{"name": "Task"}
	resp, err := c.doWithRetry(ctx, http.MethodGet, c.apiURL("/rest/api/2/project/"+c.cfg.ProjectKey), nil)
	if err != nil {
		slog.Error("Failed to discover issue types, falling back to Task", "error", err)
		c.issueType = fallback
		return c.issueType
	}
	defer resp.Body.Close()

	var project struct {
		IssueTypes []struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			Subtask bool   `json:"subtask"`
		} `json:"issueTypes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&project); err != nil || len(project.IssueTypes) == 0 {
		slog.Warn("No issue types found for project, falling back to Task")
		c.issueType = fallback
		return c.issueType
	}

	for _, it := range project.IssueTypes {
		if strings.EqualFold(it.Name, c.cfg.IssueType) {
			slog.Info("Using configured issue type", "name", it.Name, "id", it.ID)
			c.issueType = map[string]string{"id": it.ID}
			return c.issueType
		}
	}
	for _, it := range project.IssueTypes {
		if !it.Subtask {
			slog.Info("Configured issue type not found, using first standard type",
				"configured", c.cfg.IssueType, "name", it.Name, "id", it.ID)
			c.issueType = map[string]string{"id": it.ID}
			return c.issueType
		}
	}
	first := project.IssueTypes[0]
	slog.Info("Using first available issue type", "name", first.Name, "id", first.ID)
	c.issueType = map[string]string{"id": first.ID}
	return c.issueType
}

// CreateIssue files a ticket and returns its key.
func (c *Client) CreateIssue(ctx context.Context, title, description, severity string) (string, error) {
	priority, ok := priorityBySeverity[severity]
	if !ok {
		priority = "High"
	}
	payload := map[string]any{
		"fields": map[string]any{
			"project":     map[string]string{"key": c.cfg.ProjectKey},
			"summary":     title,
			"description": description,
			"issuetype":   c.discoverIssueType(ctx),
			"priority":    map[string]string{"name": priority},
		},
	}
	slog.Info("Creating Jira issue", "title", title)
	resp, err := c.doWithRetry(ctx, http.MethodPost, c.apiURL("/rest/api/2/issue"), payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var created struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("failed to decode create response: %w", err)
	}
	if created.Key == "" {
		created.Key = "UNKNOWN"
	}
	slog.Info("Created Jira issue", "key", created.Key)
	return created.Key, nil
}

// AddComment appends a comment to an existing ticket.
func (c *Client) AddComment(ctx context.Context, issueKey, text string) error {
	resp, err := c.doWithRetry(ctx, http.MethodPost,
		c.apiURL("/rest/api/2/issue/"+issueKey+"/comment"),
		map[string]string{"body": text})
	if err != nil {
		return err
	}
	resp.Body.Close()
	slog.Info("Added comment to Jira issue", "key", issueKey)
	return nil
}

// ConnectivityStatus describes the tracker connection for status endpoints.
type ConnectivityStatus struct {
	Status  string `json:"status"`
	User    string `json:"user,omitempty"`
	Email   string `json:"email,omitempty"`
	Message string `json:"message,omitempty"`
}

// CheckConnectivity verifies credentials against the tracker.
func (c *Client) CheckConnectivity(ctx context.Context) ConnectivityStatus {
	if !c.cfg.Configured() {
		return ConnectivityStatus{Status: "not_configured", Message: "Jira credentials not set."}
	}
	resp, err := c.doWithRetry(ctx, http.MethodGet, c.apiURL("/rest/api/2/myself"), nil)
	if err != nil {
		return ConnectivityStatus{Status: "error", Message: err.Error()}
	}
	defer resp.Body.Close()

	var me struct {
		DisplayName  string `json:"displayName"`
		EmailAddress string `json:"emailAddress"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		return ConnectivityStatus{Status: "error", Message: err.Error()}
	}
	return ConnectivityStatus{Status: "connected", User: me.DisplayName, Email: me.EmailAddress}
}

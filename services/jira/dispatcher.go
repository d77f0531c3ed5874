// Copyright (C) 2025 Sentinel AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package jira

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sentinelai/sentinel/services/store"
)

// DefaultPollInterval is how often the dispatcher looks for new scans.
const DefaultPollInterval = 30 * time.Second

// scanBatchSize bounds the number of scans handled per tick.
const scanBatchSize = 50

// confidenceThreshold is the minimum confidence for a vulnerability to
// earn a ticket.
const confidenceThreshold = 55

// qualifyingKinds always earn a ticket at sufficient confidence; other
// kinds only qualify when the whole scan is Critical.
var qualifyingKinds = map[string]bool{
	"BOLA":                    true,
	"IDOR":                    true,
	"Missing Authentication":  true,
	"Privilege Escalation":    true,
	"Missing Role Guard":      true,
	"Inconsistent Middleware": true,
}

// qualifyingSeverities are the scan severities the dispatcher acts on.
var qualifyingSeverities = map[string]bool{"High": true, "Critical": true}

// Qualifies reports whether one vulnerability merits a ticket given its
// scan's severity.
func Qualifies(v store.Vulnerability, scanSeverity string) bool {
	if !qualifyingSeverities[scanSeverity] {
		return false
	}
	if int(v.Confidence) < confidenceThreshold {
		return false
	}
	if qualifyingKinds[v.Kind] {
		return true
	}
	return scanSeverity == "Critical"
}

// Tracker is the ticket-system boundary the dispatcher drives.
type Tracker interface {
	CreateIssue(ctx context.Context, title, description, severity string) (string, error)
	AddComment(ctx context.Context, issueKey, text string) error
}

// DispatcherStore is the persistence surface the dispatcher needs.
type DispatcherStore interface {
	UnprocessedScans(ctx context.Context, limit int) ([]store.ScanResult, error)
	MarkScanProcessed(ctx context.Context, scanID int64) error
	FindOpenIssue(ctx context.Context, repo, endpointOrFile, kind string) (string, error)
	SaveJiraIssue(ctx context.Context, issue store.JiraIssue) error
}

// Dispatcher turns qualifying scan findings into tracker tickets. Exactly
// one dispatcher instance may run against a database: checkpoints guard
// reprocessing, not concurrent ticket creation.
type Dispatcher struct {
	store    DispatcherStore
	tracker  Tracker
	interval time.Duration
	trigger  chan struct{}
}

// NewDispatcher creates a dispatcher polling at interval (0 means the
// default 30s).
func NewDispatcher(st DispatcherStore, tracker Tracker, interval time.Duration) *Dispatcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Dispatcher{
		store:    st,
		tracker:  tracker,
		interval: interval,
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger requests an immediate processing pass. Non-blocking; a pending
// trigger coalesces with the next.
func (d *Dispatcher) Trigger() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	slog.Info("Jira dispatcher started", "interval", d.interval)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("Jira dispatcher stopping")
			return
		case <-ticker.C:
		case <-d.trigger:
		}
		if _, err := d.ProcessOnce(ctx); err != nil {
			slog.Error("Dispatcher pass failed", "error", err)
		}
	}
}

// PassResult summarises one dispatcher pass.
type PassResult struct {
	Processed      int `json:"processed"`
	TicketsCreated int `json:"tickets_created"`
	CommentsAdded  int `json:"comments_added"`
}

// ProcessOnce fetches unprocessed High/Critical scans oldest-first and
// files tickets for their qualifying vulnerabilities. Ticket failures are
// logged per finding; the scan checkpoint is always written so a poisoned
// scan cannot wedge the queue.
func (d *Dispatcher) ProcessOnce(ctx context.Context) (PassResult, error) {
	var result PassResult
	scans, err := d.store.UnprocessedScans(ctx, scanBatchSize)
	if err != nil {
		return result, err
	}
	if len(scans) == 0 {
		return result, nil
	}

	for _, scan := range scans {
		logger := slog.With("scan_id", scan.ID, "repo", scan.RepoName, "severity", scan.Severity)
		logger.Info("Processing scan", "vulnerabilities", len(scan.Vulnerabilities))

		for idx, vuln := range scan.Vulnerabilities {
			if !Qualifies(vuln, scan.Severity) {
				continue
			}
			location := vuln.EndpointOrFile()
			existing, err := d.store.FindOpenIssue(ctx, scan.RepoName, location, vuln.Kind)
			if err != nil {
				logger.Error("Duplicate lookup failed", "error", err)
				continue
			}
			if existing != "" {
				if err := d.tracker.AddComment(ctx, existing, recurrenceComment(scan, vuln)); err != nil {
					logger.Error("Failed to add recurrence comment", "key", existing, "error", err)
					continue
				}
				result.CommentsAdded++
				continue
			}

			title := IssueTitle(scan.Severity, vuln.Kind, scan.RepoName)
			key, err := d.tracker.CreateIssue(ctx, title, IssueDescription(vuln, scan), scan.Severity)
			if err != nil {
				logger.Error("Failed to create ticket", "finding", idx, "error", err)
				continue
			}
			if err := d.store.SaveJiraIssue(ctx, store.JiraIssue{
				ScanResultID:   scan.ID,
				FindingIndex:   idx,
				RepoName:       scan.RepoName,
				Kind:           vuln.Kind,
				EndpointOrFile: location,
				IssueKey:       key,
				Severity:       scan.Severity,
			}); err != nil {
				logger.Error("Failed to record ticket", "key", key, "error", err)
			}
			result.TicketsCreated++
		}

		if err := d.store.MarkScanProcessed(ctx, scan.ID); err != nil {
			logger.Error("Failed to checkpoint scan", "error", err)
		}
		result.Processed++
	}

	slog.Info("Dispatcher pass complete", "processed", result.Processed,
		"tickets_created", result.TicketsCreated, "comments_added", result.CommentsAdded)
	return result, nil
}

// IssueTitle builds the ticket summary line.
func IssueTitle(severity, kind, repo string) string {
	return fmt.Sprintf("[Sentinel] %s - %s - %s", severity, kind, repo)
}

// IssueDescription renders the wiki-markup ticket body.
func IssueDescription(v store.Vulnerability, scan store.ScanResult) string {
	lines := []string{
		fmt.Sprintf("*Vulnerability Type:* %s", v.Kind),
		fmt.Sprintf("*Severity Level:* %s", scan.Severity),
		fmt.Sprintf("*Risk Score:* %d", scan.AuthIntegrityScore),
		fmt.Sprintf("*Affected Endpoint / File:* %s", v.EndpointOrFile()),
		"",
		"*Attack Path Explanation:*",
		reasoningOrDefault(v.Reasoning),
		"",
		fmt.Sprintf("*Function:* %s", v.FunctionName),
		fmt.Sprintf("*Method:* %s", v.Method),
		fmt.Sprintf("*Confidence:* %d%%", int(v.Confidence)),
		"",
		fmt.Sprintf("*Repository:* %s", scan.RepoName),
		fmt.Sprintf("*Commit Hash:* %s", scan.CommitHash),
		fmt.Sprintf("*Scan ID:* %d", scan.ID),
		"",
		"----",
		"_Generated automatically by Sentinel AI Jira Integration_",
	}
	return strings.Join(lines, "\n")
}

func recurrenceComment(scan store.ScanResult, v store.Vulnerability) string {
	return fmt.Sprintf(
		"Sentinel AI detected this vulnerability again.\nScan ID: %d\nCommit: %s\nConfidence: %d%%\nReasoning: %s",
		scan.ID, scan.CommitHash, int(v.Confidence), reasoningOrDefault(v.Reasoning))
}

func reasoningOrDefault(reasoning string) string {
	if reasoning == "" {
		return "No details available."
	}
	return reasoning
}

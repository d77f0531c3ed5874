// Copyright (C) 2025 Sentinel AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store is the Postgres persistence layer shared by every Sentinel
// service. Scan results, tracker tickets and red-team findings all live
// here; the database is the only shared mutable state between processes.
package store

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Confidence is an int that tolerates sloppy JSON: models and older rows
// sometimes store confidence as a string. Non-coercible values decode to 0.
type Confidence int

// UnmarshalJSON implements lenient decoding for Confidence.
func (c *Confidence) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	s = strings.Trim(s, `"`)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*c = 0
		return nil
	}
	*c = Confidence(int(f))
	return nil
}

// Vulnerability is one confirmed finding inside a scan result. The JSON
// field names are the persisted wire form in scan_results.vulnerabilities.
type Vulnerability struct {
	FunctionName string     `json:"function_name"`
	Method       string     `json:"method"`
	Path         string     `json:"path,omitempty"`
	FilePath     string     `json:"file_path,omitempty"`
	Kind         string     `json:"vulnerability_type"`
	Confidence   Confidence `json:"confidence"`
	Reasoning    string     `json:"reasoning"`
	ValidatedBy  string     `json:"validated_by"`
}

// EndpointOrFile returns the location coordinate used for ticket
// de-duplication: route path, else source file, else "unknown".
func (v Vulnerability) EndpointOrFile() string {
	if v.Path != "" {
		return v.Path
	}
	if v.FilePath != "" {
		return v.FilePath
	}
	return "unknown"
}

// ScanResult is one row of scan_results.
type ScanResult struct {
	ID                 int64
	RepoName           string
	CommitHash         string
	Timestamp          time.Time
	AuthIntegrityScore int
	DriftDelta         int
	Severity           string
	Vulnerabilities    []Vulnerability
}

// decodeVulnerabilities parses the JSONB column, treating corrupt payloads
// as empty rather than failing the whole read.
func decodeVulnerabilities(raw []byte) []Vulnerability {
	if len(raw) == 0 {
		return nil
	}
	var vulns []Vulnerability
	if err := json.Unmarshal(raw, &vulns); err != nil {
		return nil
	}
	return vulns
}

// JiraIssue is one row of jira_issues: a ticket the dispatcher created for
// a specific finding.
type JiraIssue struct {
	ID             int64     `json:"id"`
	ScanResultID   int64     `json:"scan_result_id"`
	FindingIndex   int       `json:"finding_index"`
	RepoName       string    `json:"repo_name"`
	Kind           string    `json:"vulnerability_type"`
	EndpointOrFile string    `json:"endpoint_or_file"`
	IssueKey       string    `json:"jira_issue_key"`
	Status         string    `json:"jira_status"`
	Severity       string    `json:"severity"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// JiraStats summarises ticket volume for the tracker dashboard.
type JiraStats struct {
	TotalCritical   int `json:"total_critical"`
	TotalMajor      int `json:"total_major"`
	OpenTickets     int `json:"open_tickets"`
	ResolvedTickets int `json:"resolved_tickets"`
	TotalTickets    int `json:"total_tickets"`
}

// Finding is one row of redteam_findings: a simulated attack that
// succeeded, or a manually filed observation.
type Finding struct {
	ID             int64     `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Severity       string    `json:"severity"`
	Status         string    `json:"status"`
	Category       string    `json:"category"`
	Endpoint       string    `json:"endpoint"`
	Method         string    `json:"method"`
	Evidence       string    `json:"evidence"`
	Recommendation string    `json:"recommendation"`
	ScanID         int64     `json:"scan_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// FindingUpdate carries the mutable fields of a PATCH; nil means leave
// unchanged.
type FindingUpdate struct {
	Title          *string `json:"title"`
	Description    *string `json:"description"`
	Severity       *string `json:"severity"`
	Status         *string `json:"status"`
	Category       *string `json:"category"`
	Endpoint       *string `json:"endpoint"`
	Method         *string `json:"method"`
	Evidence       *string `json:"evidence"`
	Recommendation *string `json:"recommendation"`
}

// FlatVulnerability is a vulnerability joined with its scan context, the
// shape served by the dashboard and consumed by the attack simulator.
type FlatVulnerability struct {
	Vulnerability
	ScanID   int64  `json:"scan_id"`
	RepoName string `json:"repo_name"`
	Severity string `json:"severity"`
}

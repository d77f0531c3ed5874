// Copyright (C) 2025 Sentinel AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// FindOpenIssue returns the ticket key of an open issue for the same
// (repo, location, kind) coordinate, or "" when none exists.
func (s *Store) FindOpenIssue(ctx context.Context, repo, endpointOrFile, kind string) (string, error) {
	var key string
	err := s.db.QueryRowContext(ctx, `
		SELECT jira_issue_key
		FROM jira_issues
		WHERE repo_name = $1
		  AND endpoint_or_file = $2
		  AND vulnerability_type = $3
		  AND jira_status = 'Open'
		LIMIT 1`, repo, endpointOrFile, kind).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up open issue: %w", err)
	}
	return key, nil
}

// SaveJiraIssue records a ticket the dispatcher created.
func (s *Store) SaveJiraIssue(ctx context.Context, issue JiraIssue) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jira_issues
			(scan_result_id, finding_index, repo_name, vulnerability_type,
			 endpoint_or_file, jira_issue_key, severity)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		issue.ScanResultID, issue.FindingIndex, issue.RepoName, issue.Kind,
		issue.EndpointOrFile, issue.IssueKey, issue.Severity)
	if err != nil {
		return fmt.Errorf("failed to save jira issue %s: %w", issue.IssueKey, err)
	}
	return nil
}

// AllJiraIssues returns tickets newest first.
func (s *Store) AllJiraIssues(ctx context.Context, limit int) ([]JiraIssue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scan_result_id, finding_index, repo_name, vulnerability_type,
		       endpoint_or_file, jira_issue_key, jira_status, severity, created_at, updated_at
		FROM jira_issues
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query jira issues: %w", err)
	}
	defer rows.Close()
	return jiraIssues(rows)
}

// JiraIssuesForScan returns the tickets filed for one scan.
func (s *Store) JiraIssuesForScan(ctx context.Context, scanID int64) ([]JiraIssue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scan_result_id, finding_index, repo_name, vulnerability_type,
		       endpoint_or_file, jira_issue_key, jira_status, severity, created_at, updated_at
		FROM jira_issues
		WHERE scan_result_id = $1
		ORDER BY created_at DESC`, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to query jira issues for scan %d: %w", scanID, err)
	}
	defer rows.Close()
	return jiraIssues(rows)
}

// JiraTicketStats aggregates ticket counts for the tracker dashboard.
func (s *Store) JiraTicketStats(ctx context.Context) (JiraStats, error) {
	var stats JiraStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE severity = 'Critical'),
			COUNT(*) FILTER (WHERE severity = 'High'),
			COUNT(*) FILTER (WHERE jira_status = 'Open'),
			COUNT(*) FILTER (WHERE jira_status NOT IN ('Open')),
			COUNT(*)
		FROM jira_issues`,
	).Scan(&stats.TotalCritical, &stats.TotalMajor, &stats.OpenTickets,
		&stats.ResolvedTickets, &stats.TotalTickets)
	if err != nil {
		return stats, fmt.Errorf("failed to read jira stats: %w", err)
	}
	return stats, nil
}

// JiraConfig is the persisted tracker connection settings row.
type JiraConfig struct {
	BaseURL    string `json:"base_url"`
	ProjectKey string `json:"project_key"`
	APIToken   string `json:"api_token"`
	UserEmail  string `json:"user_email"`
	IssueType  string `json:"issue_type"`
}

// SaveJiraConfig replaces the stored tracker configuration.
func (s *Store) SaveJiraConfig(ctx context.Context, cfg JiraConfig) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM jira_integration_config`); err != nil {
		return fmt.Errorf("failed to clear jira config: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO jira_integration_config (base_url, project_key, api_token, user_email, issue_type)
		VALUES ($1, $2, $3, $4, $5)`,
		cfg.BaseURL, cfg.ProjectKey, cfg.APIToken, cfg.UserEmail, cfg.IssueType)
	if err != nil {
		return fmt.Errorf("failed to save jira config: %w", err)
	}
	return tx.Commit()
}

// LoadJiraConfig returns the stored tracker configuration, or ok=false when
// none has been saved.
func (s *Store) LoadJiraConfig(ctx context.Context) (JiraConfig, bool, error) {
	var cfg JiraConfig
	err := s.db.QueryRowContext(ctx, `
		SELECT base_url, project_key, api_token, user_email, issue_type
		FROM jira_integration_config
		ORDER BY updated_at DESC
		LIMIT 1`,
	).Scan(&cfg.BaseURL, &cfg.ProjectKey, &cfg.APIToken, &cfg.UserEmail, &cfg.IssueType)
	if errors.Is(err, sql.ErrNoRows) {
		return cfg, false, nil
	}
	if err != nil {
		return cfg, false, fmt.Errorf("failed to load jira config: %w", err)
	}
	return cfg, true, nil
}

func jiraIssues(rows *sql.Rows) ([]JiraIssue, error) {
	issues := []JiraIssue{}
	for rows.Next() {
		var i JiraIssue
		if err := rows.Scan(&i.ID, &i.ScanResultID, &i.FindingIndex, &i.RepoName,
			&i.Kind, &i.EndpointOrFile, &i.IssueKey, &i.Status, &i.Severity,
			&i.CreatedAt, &i.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan jira issue row: %w", err)
		}
		issues = append(issues, i)
	}
	return issues, rows.Err()
}

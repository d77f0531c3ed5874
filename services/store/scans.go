// Copyright (C) 2025 Sentinel AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// InsertScanResult persists one completed scan in a single transaction and
// returns the new row id.
func (s *Store) InsertScanResult(ctx context.Context, r ScanResult) (int64, error) {
	payload, err := json.Marshal(r.Vulnerabilities)
	if err != nil {
		return 0, fmt.Errorf("failed to encode vulnerabilities: %w", err)
	}
	if r.Vulnerabilities == nil {
		payload = []byte("[]")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO scan_results
			(repo_name, commit_hash, auth_integrity_score, drift_delta, severity, vulnerabilities)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		r.RepoName, r.CommitHash, r.AuthIntegrityScore, r.DriftDelta, r.Severity, payload,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert scan result: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit scan result: %w", err)
	}
	return id, nil
}

// RecentScans returns the newest scans, most recent first.
func (s *Store) RecentScans(ctx context.Context, limit int) ([]ScanResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, repo_name, commit_hash, timestamp,
		       auth_integrity_score, drift_delta, severity, vulnerabilities
		FROM scan_results
		ORDER BY timestamp DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent scans: %w", err)
	}
	defer rows.Close()
	return scanResults(rows)
}

// DashboardStats is the headline projection for the dashboard.
type DashboardStats struct {
	Score             int `json:"score"`
	Drift             int `json:"drift"`
	ExploitsPrevented int `json:"exploits_prevented"`
}

// Stats returns the latest integrity score, the total scan count, and the
// number of High/Critical scans.
func (s *Store) Stats(ctx context.Context) (DashboardStats, error) {
	var stats DashboardStats

	err := s.db.QueryRowContext(ctx,
		`SELECT auth_integrity_score FROM scan_results ORDER BY timestamp DESC LIMIT 1`,
	).Scan(&stats.Score)
	if err != nil {
		return stats, fmt.Errorf("failed to read latest score: %w", err)
	}
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scan_results`).Scan(&stats.Drift)
	if err != nil {
		return stats, fmt.Errorf("failed to count scans: %w", err)
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scan_results WHERE severity IN ('High', 'Critical')`,
	).Scan(&stats.ExploitsPrevented)
	if err != nil {
		return stats, fmt.Errorf("failed to count high severity scans: %w", err)
	}
	return stats, nil
}

// RecentVulnerabilities flattens the vulnerability lists of the newest
// scans into scan-context-carrying rows.
func (s *Store) RecentVulnerabilities(ctx context.Context, scanLimit int) ([]FlatVulnerability, error) {
	scans, err := s.RecentScans(ctx, scanLimit)
	if err != nil {
		return nil, err
	}
	flat := []FlatVulnerability{}
	for _, scan := range scans {
		for _, v := range scan.Vulnerabilities {
			flat = append(flat, FlatVulnerability{
				Vulnerability: v,
				ScanID:        scan.ID,
				RepoName:      scan.RepoName,
				Severity:      scan.Severity,
			})
		}
	}
	return flat, nil
}

// ResetScans truncates the scan store. Dashboard reset only.
func (s *Store) ResetScans(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `TRUNCATE scan_results RESTART IDENTITY`); err != nil {
		return fmt.Errorf("failed to truncate scan_results: %w", err)
	}
	return nil
}

// UnprocessedScans returns up to limit High/Critical scans that have no
// processing checkpoint, oldest first. This is the dispatcher's work queue.
func (s *Store) UnprocessedScans(ctx context.Context, limit int) ([]ScanResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sr.id, sr.repo_name, sr.commit_hash, sr.timestamp,
		       sr.auth_integrity_score, sr.drift_delta, sr.severity, sr.vulnerabilities
		FROM scan_results sr
		LEFT JOIN jira_processed_scans jps ON sr.id = jps.scan_result_id
		WHERE jps.id IS NULL
		  AND sr.severity IN ('High', 'Critical')
		ORDER BY sr.timestamp ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unprocessed scans: %w", err)
	}
	defer rows.Close()
	return scanResults(rows)
}

// MarkScanProcessed writes the dispatcher checkpoint with insert-or-ignore
// semantics. The checkpoint is the sole idempotence guarantee.
func (s *Store) MarkScanProcessed(ctx context.Context, scanID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jira_processed_scans (scan_result_id) VALUES ($1) ON CONFLICT DO NOTHING`,
		scanID)
	if err != nil {
		return fmt.Errorf("failed to mark scan %d processed: %w", scanID, err)
	}
	return nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanResults(rows rowScanner) ([]ScanResult, error) {
	var results []ScanResult
	for rows.Next() {
		var r ScanResult
		var raw []byte
		if err := rows.Scan(&r.ID, &r.RepoName, &r.CommitHash, &r.Timestamp,
			&r.AuthIntegrityScore, &r.DriftDelta, &r.Severity, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		r.Vulnerabilities = decodeVulnerabilities(raw)
		results = append(results, r)
	}
	return results, rows.Err()
}

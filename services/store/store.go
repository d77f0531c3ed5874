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
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

// Store wraps the shared Postgres database. One Store per process; the
// underlying pool is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	slog.Info("Connected to Postgres")
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection, used by tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Ping reports database reachability for readiness probes.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS scan_results (
		id SERIAL PRIMARY KEY,
		repo_name VARCHAR(255),
		commit_hash VARCHAR(255),
		timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		auth_integrity_score INTEGER,
		drift_delta INTEGER,
		severity VARCHAR(50),
		vulnerabilities JSONB
	)`,
	`CREATE TABLE IF NOT EXISTS redteam_findings (
		id SERIAL PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		description TEXT,
		severity VARCHAR(20) DEFAULT 'medium',
		status VARCHAR(20) DEFAULT 'open',
		category VARCHAR(100),
		endpoint VARCHAR(500),
		method VARCHAR(10),
		evidence TEXT,
		recommendation TEXT,
		scan_id INTEGER,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS jira_integration_config (
		id SERIAL PRIMARY KEY,
		base_url VARCHAR(512),
		project_key VARCHAR(50),
		api_token TEXT,
		user_email VARCHAR(255),
		issue_type VARCHAR(100) DEFAULT 'Bug',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS jira_issues (
		id SERIAL PRIMARY KEY,
		scan_result_id INTEGER,
		finding_index INTEGER,
		repo_name VARCHAR(255),
		vulnerability_type VARCHAR(255),
		endpoint_or_file VARCHAR(512),
		jira_issue_key VARCHAR(50),
		jira_status VARCHAR(50) DEFAULT 'Open',
		severity VARCHAR(50),
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jira_issues_lookup
		ON jira_issues (repo_name, endpoint_or_file, vulnerability_type, jira_status)`,
	`CREATE INDEX IF NOT EXISTS idx_jira_issues_scan
		ON jira_issues (scan_result_id, finding_index)`,
	`CREATE TABLE IF NOT EXISTS jira_processed_scans (
		id SERIAL PRIMARY KEY,
		scan_result_id INTEGER UNIQUE,
		processed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
}

// EnsureSchema creates every Sentinel table and index if missing. Safe to
// call from multiple services; statements are idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	slog.Info("Database schema ensured")
	return nil
}

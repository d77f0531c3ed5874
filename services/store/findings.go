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

// ErrNotFound is returned when a finding id does not exist.
var ErrNotFound = errors.New("not found")

const findingColumns = `id, title, COALESCE(description, ''), severity, status,
	COALESCE(category, ''), COALESCE(endpoint, ''), COALESCE(method, ''),
	COALESCE(evidence, ''), COALESCE(recommendation, ''), COALESCE(scan_id, 0),
	created_at, updated_at`

// CreateFinding inserts one finding and returns it with generated fields.
func (s *Store) CreateFinding(ctx context.Context, f Finding) (Finding, error) {
	if f.Severity == "" {
		f.Severity = "medium"
	}
	if f.Status == "" {
		f.Status = "open"
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO redteam_findings
			(title, description, severity, status, category, endpoint, method,
			 evidence, recommendation, scan_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`,
		f.Title, f.Description, f.Severity, f.Status, f.Category, f.Endpoint,
		f.Method, f.Evidence, f.Recommendation, f.ScanID,
	).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return Finding{}, fmt.Errorf("failed to create finding: %w", err)
	}
	return f, nil
}

// CreateFindings inserts a batch of findings in one transaction. Used by
// the attack simulator to record every successful exploit atomically.
func (s *Store) CreateFindings(ctx context.Context, findings []Finding) (int, error) {
	if len(findings) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO redteam_findings
			(title, description, severity, status, category, endpoint, method,
			 evidence, recommendation, scan_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range findings {
		if f.Severity == "" {
			f.Severity = "medium"
		}
		if f.Status == "" {
			f.Status = "open"
		}
		if _, err := stmt.ExecContext(ctx, f.Title, f.Description, f.Severity,
			f.Status, f.Category, f.Endpoint, f.Method, f.Evidence,
			f.Recommendation, f.ScanID); err != nil {
			return 0, fmt.Errorf("failed to insert finding %q: %w", f.Title, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit findings: %w", err)
	}
	return len(findings), nil
}

// FindingFilter narrows ListFindings; zero values mean no filter.
type FindingFilter struct {
	Severity string
	Status   string
	Limit    int
	Offset   int
}

// ListFindings returns findings matching the filter, newest first.
func (s *Store) ListFindings(ctx context.Context, filter FindingFilter) ([]Finding, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}
	query := `SELECT ` + findingColumns + ` FROM redteam_findings WHERE 1=1`
	args := []any{}
	if filter.Severity != "" {
		args = append(args, filter.Severity)
		query += fmt.Sprintf(" AND severity = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	args = append(args, filter.Limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query findings: %w", err)
	}
	defer rows.Close()

	findings := []Finding{}
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, err
		}
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

// GetFinding returns one finding by id.
func (s *Store) GetFinding(ctx context.Context, id int64) (Finding, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+findingColumns+` FROM redteam_findings WHERE id = $1`, id)
	f, err := scanFinding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Finding{}, ErrNotFound
	}
	return f, err
}

// UpdateFinding applies the non-nil fields of the update and returns the
// updated row.
func (s *Store) UpdateFinding(ctx context.Context, id int64, upd FindingUpdate) (Finding, error) {
	set := ""
	args := []any{}
	add := func(column string, value *string) {
		if value == nil {
			return
		}
		args = append(args, *value)
		if set != "" {
			set += ", "
		}
		set += fmt.Sprintf("%s = $%d", column, len(args))
	}
	add("title", upd.Title)
	add("description", upd.Description)
	add("severity", upd.Severity)
	add("status", upd.Status)
	add("category", upd.Category)
	add("endpoint", upd.Endpoint)
	add("method", upd.Method)
	add("evidence", upd.Evidence)
	add("recommendation", upd.Recommendation)

	if set == "" {
		return s.GetFinding(ctx, id)
	}
	args = append(args, id)
	query := fmt.Sprintf(
		"UPDATE redteam_findings SET %s, updated_at = CURRENT_TIMESTAMP WHERE id = $%d",
		set, len(args))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return Finding{}, fmt.Errorf("failed to update finding %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Finding{}, ErrNotFound
	}
	return s.GetFinding(ctx, id)
}

// DeleteFinding removes one finding by id.
func (s *Store) DeleteFinding(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM redteam_findings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete finding %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type singleRowScanner interface {
	Scan(dest ...any) error
}

func scanFinding(row singleRowScanner) (Finding, error) {
	var f Finding
	err := row.Scan(&f.ID, &f.Title, &f.Description, &f.Severity, &f.Status,
		&f.Category, &f.Endpoint, &f.Method, &f.Evidence, &f.Recommendation,
		&f.ScanID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return Finding{}, err
	}
	return f, nil
}

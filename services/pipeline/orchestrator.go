// Copyright (C) 2025 Sentinel AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sentinelai/sentinel/pkg/validation"
	"github.com/sentinelai/sentinel/services/consensus"
	"github.com/sentinelai/sentinel/services/llm"
	"github.com/sentinelai/sentinel/services/scanner"
	"github.com/sentinelai/sentinel/services/store"
)

// maxConcurrentReviews caps in-flight reviewer calls per scan.
const maxConcurrentReviews = 5

// minVerdictConfidence is the persistence bar: only positive verdicts above
// this confidence enter the scan result.
const minVerdictConfidence = 55

// ResultStore persists finished scans.
type ResultStore interface {
	InsertScanResult(ctx context.Context, r store.ScanResult) (int64, error)
}

// Orchestrator drives one scan from archive to persisted result.
type Orchestrator struct {
	fetcher   *Fetcher
	extractor *scanner.Extractor
	store     ResultStore
	qwen      llm.Reviewer
	mistral   llm.Reviewer
	validator llm.Validator // nil when arbitration is not configured
}

// NewOrchestrator wires the scan pipeline. validator may be nil.
func NewOrchestrator(fetcher *Fetcher, extractor *scanner.Extractor, st ResultStore,
	qwen, mistral llm.Reviewer, validator llm.Validator) *Orchestrator {
	return &Orchestrator{
		fetcher:   fetcher,
		extractor: extractor,
		store:     st,
		qwen:      qwen,
		mistral:   mistral,
		validator: validator,
	}
}

// Summary reports one finished scan.
type Summary struct {
	ScanID          int64  `json:"scan_id"`
	Repo            string `json:"repo"`
	Score           int    `json:"score"`
	Severity        string `json:"severity"`
	ItemsExtracted  int    `json:"items_extracted"`
	ItemsReviewed   int    `json:"items_reviewed"`
	Vulnerabilities int    `json:"vulnerabilities"`
}

// Run executes one scan. Reviewer failures on individual items demote that
// item to clean; only archive, extraction and persistence failures fail the
// scan.
func (o *Orchestrator) Run(ctx context.Context, req ScanRequest) (Summary, error) {
	start := time.Now()
	if err := validation.ValidateRepo(req.Repo); err != nil {
		return Summary{}, err
	}
	branch := req.Branch
	if branch == "" {
		branch = "main"
	}
	if err := validation.ValidateBranch(branch); err != nil {
		return Summary{}, err
	}
	commit := req.Commit
	if commit == "" {
		commit = "latest"
	}
	logger := slog.With("repo", req.Repo, "branch", branch, "commit", commit)
	logger.Info("Starting security scan")

	archive, err := o.fetcher.Fetch(ctx, req.Repo, branch)
	if err != nil {
		logger.Error("Failed to download repository", "error", err)
		return Summary{}, fmt.Errorf("failed to download repository: %w", err)
	}

	tmpDir, err := os.MkdirTemp("", "sentinel-scan-*")
	if err != nil {
		return Summary{}, fmt.Errorf("failed to create scan dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := Extract(archive, tmpDir); err != nil {
		logger.Error("Failed to extract archive", "error", err)
		return Summary{}, err
	}

	records := o.collect(ctx, tmpDir, logger)
	extracted := len(records)

	relevant := records[:0]
	for _, r := range records {
		if scanner.Relevant(r) {
			relevant = append(relevant, r)
		}
	}
	logger.Info("Extraction complete", "extracted", extracted, "relevant", len(relevant))

	var vulns []store.Vulnerability
	if len(relevant) > 0 {
		vulns = o.review(ctx, relevant, logger)
	}

	findings := make([]consensus.Finding, 0, len(vulns))
	for _, v := range vulns {
		findings = append(findings, consensus.Finding{Kind: v.Kind, Confidence: int(v.Confidence)})
	}
	score := consensus.Score(findings)
	severity := consensus.SeverityFor(score)

	scanID, err := o.store.InsertScanResult(ctx, store.ScanResult{
		RepoName:           req.Repo,
		CommitHash:         commit,
		AuthIntegrityScore: score,
		DriftDelta:         extracted,
		Severity:           severity,
		Vulnerabilities:    vulns,
	})
	if err != nil {
		logger.Error("Failed to persist scan result", "error", err)
		return Summary{}, err
	}

	summary := Summary{
		ScanID:          scanID,
		Repo:            req.Repo,
		Score:           score,
		Severity:        severity,
		ItemsExtracted:  extracted,
		ItemsReviewed:   len(relevant),
		Vulnerabilities: len(vulns),
	}
	logger.Info("Scan complete", "scan_id", scanID, "score", score,
		"severity", severity, "vulnerabilities", len(vulns),
		"duration", time.Since(start).Round(time.Millisecond))
	observeScan(severity, len(vulns), time.Since(start))
	return summary, nil
}

// collect walks the extracted tree and merges endpoint and function
// records. Parse failures skip the file; endpoints win key collisions.
func (o *Orchestrator) collect(ctx context.Context, root string, logger *slog.Logger) []scanner.Record {
	merged := make(map[string]scanner.Record)
	var order []string

	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if scanner.SkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil || scanner.SkipFile(path, info.Size()) {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(root, path)

		endpoints, err := o.extractor.ExtractEndpoints(ctx, content, rel)
		if err != nil {
			logger.Warn("Skipping unparseable file", "file", rel, "error", err)
			return nil
		}
		functions, _ := o.extractor.ExtractFunctions(ctx, content, rel)

		endpointFns := make(map[string]bool, len(endpoints))
		for _, r := range endpoints {
			endpointFns[r.FunctionName] = true
			if _, ok := merged[r.Key()]; ok {
				continue
			}
			merged[r.Key()] = r
			order = append(order, r.Key())
		}
		for _, r := range functions {
			// Handlers already captured as endpoints carry more context
			// there; do not review them twice.
			if endpointFns[r.FunctionName] {
				continue
			}
			if _, ok := merged[r.Key()]; ok {
				continue
			}
			merged[r.Key()] = r
			order = append(order, r.Key())
		}
		return nil
	})

	records := make([]scanner.Record, 0, len(order))
	for _, key := range order {
		records = append(records, merged[key])
	}
	return records
}

// review fans the records out to both reviewers with bounded concurrency
// and returns the confirmed vulnerabilities. Verdicts are matched back to
// records by index, never by completion order.
func (o *Orchestrator) review(ctx context.Context, records []scanner.Record, logger *slog.Logger) []store.Vulnerability {
	verdicts := make([]consensus.Verdict, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentReviews)
	for i, rec := range records {
		g.Go(func() error {
			verdicts[i] = o.reviewOne(gctx, rec)
			return nil
		})
	}
	g.Wait()

	var vulns []store.Vulnerability
	for i, v := range verdicts {
		if !consensus.IsPositiveTag(v.Tag) || !v.HasVulnerability || v.Confidence <= minVerdictConfidence {
			continue
		}
		rec := records[i]
		vuln := store.Vulnerability{
			FunctionName: rec.FunctionName,
			Method:       rec.Method,
			Kind:         v.Kind,
			Confidence:   store.Confidence(v.Confidence),
			Reasoning:    v.Reasoning,
			ValidatedBy:  v.Tag,
			FilePath:     rec.FilePath,
		}
		if rec.IsEndpoint {
			vuln.Path = rec.Path
		}
		vulns = append(vulns, vuln)
		logger.Info("Confirmed vulnerability", "function", rec.FunctionName,
			"kind", v.Kind, "confidence", v.Confidence, "tag", v.Tag)
	}
	return vulns
}

// reviewOne runs both reviewers in parallel for one record, optionally
// consults the validator, and merges the opinions. Never fails: every
// error path degrades to a clean or failed verdict.
func (o *Orchestrator) reviewOne(ctx context.Context, rec scanner.Record) consensus.Verdict {
	prompt := consensus.DetectionPrompt(rec)

	var qwenRaw, mistralRaw string
	var qwenErr, mistralErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		qwenRaw, qwenErr = o.qwen.Review(ctx, consensus.DetectionSystemPrompt, prompt)
	}()
	go func() {
		defer wg.Done()
		mistralRaw, mistralErr = o.mistral.Review(ctx, consensus.DetectionSystemPrompt, prompt)
	}()
	wg.Wait()

	in := consensus.Input{Source: rec.Code, ReviewersInvoked: true}
	if qwenErr == nil {
		if op, err := consensus.ParseOpinion(qwenRaw); err == nil {
			in.Qwen = op
		}
	}
	if mistralErr == nil {
		if op, err := consensus.ParseOpinion(mistralRaw); err == nil {
			in.Mistral = op
		}
	}

	if o.validator != nil && o.validator.Enabled() && (in.Qwen != nil || in.Mistral != nil) {
		raw, err := o.validator.Validate(ctx, consensus.ValidatorPrompt(qwenRaw, mistralRaw))
		if err != nil {
			if !errors.Is(err, llm.ErrValidatorDisabled) {
				slog.Warn("Validator call failed", "function", rec.FunctionName, "error", err)
			}
		} else if op, perr := consensus.ParseOpinion(raw); perr == nil {
			in.Validator = op
		}
	}

	return consensus.Decide(in)
}

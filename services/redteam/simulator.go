// Copyright (C) 2025 Sentinel AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package redteam

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/sentinelai/sentinel/services/store"
)

// modelTags maps a reviewer name to the provenance tags that indicate the
// model participated in the verdict.
var modelTags = map[string]map[string]bool{
	"qwen": {
		"consensus":        true,
		"judged":           true,
		"gemini_validated": true,
	},
	"mistral": {
		"consensus":        true,
		"judged":           true,
		"gemini_validated": true,
		"fallback_mistral": true,
	},
}

// attackPacing is the per-attack delay keeping simulations from hammering
// the log stream.
const attackPacing = 100 * time.Millisecond

// defaultRecommendation fills results for vulnerabilities without one.
const defaultRecommendation = "Review and implement proper access controls"

// AttackResult is one simulated attack against one vulnerability.
type AttackResult struct {
	AttackName             string `json:"attack_name"`
	AttackDescription      string `json:"attack_description"`
	TargetEndpoint         string `json:"target_endpoint"`
	TargetMethod           string `json:"target_method"`
	VulnerabilityTitle     string `json:"vulnerability_title"`
	OriginalSeverity       string `json:"original_severity"`
	AttackSuccessful       bool   `json:"attack_successful"`
	ExploitationDifficulty string `json:"exploitation_difficulty"`
	SimulatedAt            string `json:"simulated_at"`
	Recommendation         string `json:"recommendation"`
	ModelSource            string `json:"model_source"`
	ValidatedBy            string `json:"validated_by"`
	Confidence             int    `json:"confidence"`
}

// CycleReport summarises one red-team cycle.
type CycleReport struct {
	Status        string         `json:"status"`
	Timestamp     string         `json:"timestamp"`
	ModelSource   string         `json:"model_source"`
	Summary       CycleSummary   `json:"summary"`
	AttackResults []AttackResult `json:"attack_results"`
	HighRisk      []AttackResult `json:"high_risk_findings"`
}

// CycleSummary carries the cycle counters.
type CycleSummary struct {
	VulnerabilitiesAnalyzed int `json:"vulnerabilities_analyzed"`
	RecentScansFound        int `json:"recent_scans_found"`
	TotalAttacksSimulated   int `json:"total_attacks_simulated"`
	SuccessfulAttacks       int `json:"successful_attacks"`
	FindingsCreated         int `json:"findings_created"`
}

// FindingWriter persists successful exploits. Nil writer means simulate
// without storing.
type FindingWriter interface {
	CreateFindings(ctx context.Context, findings []store.Finding) (int, error)
}

// Simulator fetches vulnerabilities from the analysis backend and runs
// attack simulations against them.
type Simulator struct {
	backendURL string
	http       *http.Client
	findings   FindingWriter
	pacing     time.Duration
	randFloat  func() float64
	randIntN   func(n int) int
	randPerm   func(n int) []int
}

// NewSimulator creates a simulator against the analysis backend.
func NewSimulator(backendURL string, findings FindingWriter) *Simulator {
	return &Simulator{
		backendURL: strings.TrimRight(backendURL, "/"),
		http:       &http.Client{Timeout: 30 * time.Second},
		findings:   findings,
		pacing:     attackPacing,
		randFloat:  rand.Float64,
		randIntN:   rand.Intn,
		randPerm:   rand.Perm,
	}
}

// FetchVulnerabilities pulls vulnerabilities from the backend dashboard,
// optionally filtered to verdicts a specific model participated in.
func (s *Simulator) FetchVulnerabilities(ctx context.Context, model string) ([]store.FlatVulnerability, error) {
	var vulns []store.FlatVulnerability
	if err := s.getJSON(ctx, "/api/dashboard/vulnerabilities", &vulns); err != nil {
		return nil, err
	}
	tags, ok := modelTags[model]
	if !ok {
		return vulns, nil
	}
	filtered := make([]store.FlatVulnerability, 0, len(vulns))
	for _, v := range vulns {
		if tags[v.ValidatedBy] {
			filtered = append(filtered, v)
		}
	}
	slog.Info("Fetched vulnerabilities for model", "model", model,
		"total", len(vulns), "filtered", len(filtered))
	return filtered, nil
}

// FetchRecentScans pulls the recent scan list from the backend.
func (s *Simulator) FetchRecentScans(ctx context.Context) ([]map[string]any, error) {
	var scans []map[string]any
	if err := s.getJSON(ctx, "/api/dashboard/recent_scans", &scans); err != nil {
		return nil, err
	}
	return scans, nil
}

func (s *Simulator) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.backendURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build backend request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend returned HTTP %d for %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode backend response: %w", err)
	}
	return nil
}

// Simulate runs attack simulations for the given vulnerabilities. One or
// two templates are chosen per vulnerability; each attack is paced.
func (s *Simulator) Simulate(ctx context.Context, vulns []store.FlatVulnerability, modelSource string) []AttackResult {
	if len(vulns) == 0 {
		slog.Info("No vulnerabilities to attack", "model", modelSource)
		return []AttackResult{}
	}
	slog.Info("Starting attack simulation", "vulnerabilities", len(vulns), "model", modelSource)

	var results []AttackResult
	for _, vuln := range vulns {
		rendered, _ := json.Marshal(vuln)
		templates := TemplatesFor(Categorize(string(rendered)))

		count := s.randIntN(2) + 1
		if count > len(templates) {
			count = len(templates)
		}
		for _, idx := range s.randPerm(len(templates))[:count] {
			select {
			case <-time.After(s.pacing):
			case <-ctx.Done():
				return results
			}
			result := s.attack(templates[idx], vuln, modelSource)
			results = append(results, result)
			slog.Info("Attack simulated", "attack", result.AttackName,
				"target", result.TargetEndpoint, "success", result.AttackSuccessful,
				"model", modelSource)
		}
	}

	successful := 0
	for _, r := range results {
		if r.AttackSuccessful {
			successful++
		}
	}
	slog.Info("Attack simulation complete", "total_attacks", len(results),
		"successful", successful, "model", modelSource)
	return results
}

func (s *Simulator) attack(tpl AttackTemplate, vuln store.FlatVulnerability, modelSource string) AttackResult {
	severity := strings.ToLower(vuln.Severity)
	if severity == "" {
		severity = "medium"
	}
	p := SuccessProbability(severity)

	endpoint := vuln.Path
	if endpoint == "" {
		endpoint = vuln.FilePath
	}
	if endpoint == "" {
		endpoint = "Unknown"
	}
	method := vuln.Method
	if method == "" {
		method = "GET"
	}
	title := vuln.Kind
	if title == "" {
		title = "Unknown Vulnerability"
	}
	validatedBy := vuln.ValidatedBy
	if validatedBy == "" {
		validatedBy = "unknown"
	}

	return AttackResult{
		AttackName:             tpl.Name,
		AttackDescription:      tpl.Description,
		TargetEndpoint:         endpoint,
		TargetMethod:           method,
		VulnerabilityTitle:     title,
		OriginalSeverity:       severity,
		AttackSuccessful:       s.randFloat() < p,
		ExploitationDifficulty: Difficulty(p),
		SimulatedAt:            time.Now().UTC().Format(time.RFC3339),
		Recommendation:         defaultRecommendation,
		ModelSource:            modelSource,
		ValidatedBy:            validatedBy,
		Confidence:             int(vuln.Confidence),
	}
}

// RunCycle executes a full red-team pass: fetch, simulate, persist the
// successful exploits as open findings in one transaction.
//
// model is "" for the combined cycle, or "qwen"/"mistral" for a scoped
// one; the report's model_source reflects the choice.
func (s *Simulator) RunCycle(ctx context.Context, model string) (CycleReport, error) {
	modelSource := model
	if modelSource == "" {
		modelSource = "combined"
	}
	slog.Info("Starting red team cycle", "model", modelSource)

	vulns, err := s.FetchVulnerabilities(ctx, model)
	if err != nil {
		return CycleReport{}, err
	}
	scans, err := s.FetchRecentScans(ctx)
	if err != nil {
		slog.Warn("Failed to fetch recent scans", "error", err)
		scans = nil
	}

	results := s.Simulate(ctx, vulns, modelSource)

	var toStore []store.Finding
	var highRisk []AttackResult
	for _, r := range results {
		if !r.AttackSuccessful {
			continue
		}
		if r.OriginalSeverity == "critical" || r.OriginalSeverity == "high" {
			highRisk = append(highRisk, r)
		}
		toStore = append(toStore, store.Finding{
			Title:       "Exploitable: " + r.VulnerabilityTitle,
			Description: fmt.Sprintf("Attack '%s' succeeded against %s", r.AttackName, r.TargetEndpoint),
			Severity:    r.OriginalSeverity,
			Status:      "open",
			Category:    r.AttackName,
			Endpoint:    r.TargetEndpoint,
			Method:      r.TargetMethod,
			Evidence: fmt.Sprintf("Simulated attack successful. Difficulty: %s. Model: %s",
				r.ExploitationDifficulty, r.ModelSource),
			Recommendation: r.Recommendation,
		})
	}

	created := 0
	if s.findings != nil && len(toStore) > 0 {
		created, err = s.findings.CreateFindings(ctx, toStore)
		if err != nil {
			slog.Error("Failed to persist findings", "error", err)
			created = 0
		}
	}

	return CycleReport{
		Status:      "completed",
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		ModelSource: modelSource,
		Summary: CycleSummary{
			VulnerabilitiesAnalyzed: len(vulns),
			RecentScansFound:        len(scans),
			TotalAttacksSimulated:   len(results),
			SuccessfulAttacks:       len(toStore),
			FindingsCreated:         created,
		},
		AttackResults: results,
		HighRisk:      highRisk,
	}, nil
}

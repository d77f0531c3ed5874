// Copyright (C) 2025 Sentinel AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package consensus

// Severity bands, from worst score to best.
const (
	SeverityCritical = "Critical"
	SeverityHigh     = "High"
	SeverityMedium   = "Medium"
	SeverityLow      = "Low"
)

// kindPenalties weight each vulnerability kind when computing the auth
// integrity score.
var kindPenalties = map[string]int{
	KindBOLA:                   25,
	KindIDOR:                   20,
	KindPrivilegeEscalation:    20,
	KindMissingAuthentication:  15,
	KindMissingRoleGuard:       10,
	KindInconsistentMiddleware: 8,
}

// defaultPenalty applies to any flagged kind outside the table.
const defaultPenalty = 5

// Penalty returns the score deduction weight for a kind. KindNone carries
// no penalty.
func Penalty(kind string) int {
	if kind == KindNone || kind == "" {
		return 0
	}
	if p, ok := kindPenalties[kind]; ok {
		return p
	}
	return defaultPenalty
}

// Finding is the (kind, confidence) pair the scorer consumes.
type Finding struct {
	Kind       string
	Confidence int
}

// Score computes the auth integrity score for a scan: 100 minus the
// confidence-weighted penalty of every finding, clamped to [0,100]. A scan
// with no findings scores a perfect 100.
func Score(findings []Finding) int {
	score := 100
	for _, f := range findings {
		score -= Penalty(f.Kind) * f.Confidence / 100
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// SeverityFor maps a score onto its severity band.
func SeverityFor(score int) string {
	switch {
	case score <= 30:
		return SeverityCritical
	case score <= 60:
		return SeverityHigh
	case score <= 80:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Copyright (C) 2025 Sentinel AI
// Tests for the auth integrity scorer.

package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreEmptyIsPerfect(t *testing.T) {
	assert.Equal(t, 100, Score(nil))
	assert.Equal(t, SeverityLow, SeverityFor(100))
}

func TestScoreSingleBOLA(t *testing.T) {
	// A single BOLA at consensus confidence 86: 100 - floor(25*86/100) = 79.
	score := Score([]Finding{{Kind: KindBOLA, Confidence: 86}})
	assert.Equal(t, 79, score)
	assert.Equal(t, SeverityMedium, SeverityFor(score))
}

func TestScoreClampsAtZero(t *testing.T) {
	findings := []Finding{
		{Kind: KindBOLA, Confidence: 100},
		{Kind: KindBOLA, Confidence: 100},
		{Kind: KindBOLA, Confidence: 100},
		{Kind: KindIDOR, Confidence: 100},
		{Kind: KindPrivilegeEscalation, Confidence: 100},
	}
	score := Score(findings)
	assert.Equal(t, 0, score)
	assert.Equal(t, SeverityCritical, SeverityFor(score))
}

func TestPenaltyTable(t *testing.T) {
	assert.Equal(t, 25, Penalty(KindBOLA))
	assert.Equal(t, 20, Penalty(KindIDOR))
	assert.Equal(t, 20, Penalty(KindPrivilegeEscalation))
	assert.Equal(t, 15, Penalty(KindMissingAuthentication))
	assert.Equal(t, 10, Penalty(KindMissingRoleGuard))
	assert.Equal(t, 8, Penalty(KindInconsistentMiddleware))
	assert.Equal(t, 5, Penalty("Weird New Kind"))
	assert.Equal(t, 0, Penalty(KindNone))
}

func TestSeverityBands(t *testing.T) {
	assert.Equal(t, SeverityCritical, SeverityFor(0))
	assert.Equal(t, SeverityCritical, SeverityFor(30))
	assert.Equal(t, SeverityHigh, SeverityFor(31))
	assert.Equal(t, SeverityHigh, SeverityFor(60))
	assert.Equal(t, SeverityMedium, SeverityFor(61))
	assert.Equal(t, SeverityMedium, SeverityFor(80))
	assert.Equal(t, SeverityLow, SeverityFor(81))
}

// Copyright (C) 2025 Sentinel AI
// Tests for model response parsing.

package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOpinionPlainJSON(t *testing.T) {
	op, err := ParseOpinion(`{"has_vulnerability": true, "vulnerability_type": "BOLA", "confidence": 85, "reasoning": "no ownership check"}`)
	require.NoError(t, err)
	assert.True(t, op.HasVulnerability)
	assert.Equal(t, KindBOLA, op.Kind)
	assert.Equal(t, 85, op.Confidence)
	assert.Equal(t, "no ownership check", op.Reasoning)
}

func TestParseOpinionFencedWithProse(t *testing.T) {
	raw := "Sure! Here is the analysis:\n```json\n{\"has_vulnerability\": false, \"vulnerability_type\": \"None\", \"confidence\": 90, \"reasoning\": \"guarded\"}\n```\nLet me know if you need more."
	op, err := ParseOpinion(raw)
	require.NoError(t, err)
	assert.False(t, op.HasVulnerability)
	assert.Equal(t, KindNone, op.Kind)
	assert.Equal(t, 90, op.Confidence)
}

func TestParseOpinionCoercions(t *testing.T) {
	op, err := ParseOpinion(`{"has_vulnerability": "true", "vulnerability_type": "privilege_escalation", "confidence": "72"}`)
	require.NoError(t, err)
	assert.True(t, op.HasVulnerability)
	assert.Equal(t, KindPrivilegeEscalation, op.Kind)
	assert.Equal(t, 72, op.Confidence)
}

func TestParseOpinionValidatorAlias(t *testing.T) {
	op, err := ParseOpinion(`{"resolved_vulnerability": true, "vulnerability_type": "IDOR", "confidence": 66, "reasoning": "id from request"}`)
	require.NoError(t, err)
	assert.True(t, op.HasVulnerability)
	assert.Equal(t, KindIDOR, op.Kind)
}

func TestParseOpinionFailures(t *testing.T) {
	for _, raw := range []string{"", "no json here", "{broken", "[1,2,3]"} {
		_, err := ParseOpinion(raw)
		assert.Error(t, err, raw)
	}
}

func TestParseOpinionClampsConfidence(t *testing.T) {
	op, err := ParseOpinion(`{"has_vulnerability": true, "vulnerability_type": "BOLA", "confidence": 250}`)
	require.NoError(t, err)
	assert.Equal(t, 100, op.Confidence)

	op, err = ParseOpinion(`{"has_vulnerability": true, "vulnerability_type": "BOLA", "confidence": -5}`)
	require.NoError(t, err)
	assert.Equal(t, 0, op.Confidence)
}

func TestNormalizeKind(t *testing.T) {
	assert.Equal(t, KindMissingRoleGuard, NormalizeKind("missing_role_guard"))
	assert.Equal(t, KindPrivilegeEscalation, NormalizeKind("PrivilegeEscalation"))
	assert.Equal(t, KindNone, NormalizeKind(""))
	assert.Equal(t, "SQL Injection", NormalizeKind("SQL Injection"))
}

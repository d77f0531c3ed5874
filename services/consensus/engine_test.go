// Copyright (C) 2025 Sentinel AI
// Tests for the consensus decision rules.

package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func op(flag bool, kind string, conf int, reasoning string) *Opinion {
	return &Opinion{HasVulnerability: flag, Kind: kind, Confidence: conf, Reasoning: reasoning}
}

func TestDecideSkippedOnEmptySource(t *testing.T) {
	v := Decide(Input{Source: "", Qwen: op(true, KindBOLA, 99, "x")})
	assert.Equal(t, TagSkipped, v.Tag)
	assert.False(t, v.HasVulnerability)
	assert.Equal(t, KindNone, v.Kind)
}

func TestDecideValidatorWins(t *testing.T) {
	v := Decide(Input{
		Source:           "def f(): pass",
		Qwen:             op(true, KindBOLA, 90, "qwen says bola"),
		Mistral:          op(false, KindNone, 80, "mistral says clean"),
		Validator:        op(true, KindIDOR, 77, "validator says idor"),
		ReviewersInvoked: true,
	})
	assert.Equal(t, TagGeminiValidated, v.Tag)
	assert.True(t, v.HasVulnerability)
	assert.Equal(t, KindIDOR, v.Kind)
	assert.Equal(t, 77, v.Confidence)
	assert.Equal(t, "validator says idor", v.Reasoning)
}

func TestDecideValidatorIgnoredAtLowConfidence(t *testing.T) {
	v := Decide(Input{
		Source:           "def f(): pass",
		Qwen:             op(false, KindNone, 60, ""),
		Mistral:          op(false, KindNone, 60, ""),
		Validator:        op(true, KindBOLA, 50, "not confident"),
		ReviewersInvoked: true,
	})
	assert.Equal(t, TagClean, v.Tag)
	assert.False(t, v.HasVulnerability)
}

func TestDecideAllFailed(t *testing.T) {
	v := Decide(Input{Source: "def f(): pass"})
	assert.Equal(t, TagAllFailed, v.Tag)
	assert.False(t, v.HasVulnerability)
}

func TestDecideSingleWitness(t *testing.T) {
	// Confident single witness flags.
	v := Decide(Input{
		Source:  "def f(): pass",
		Mistral: op(true, KindBOLA, 71, "missing ownership check"),
	})
	assert.Equal(t, TagFallbackSingle, v.Tag)
	assert.True(t, v.HasVulnerability)
	assert.Equal(t, 71, v.Confidence)

	// At or below the bar the item is treated as clean.
	v = Decide(Input{
		Source: "def f(): pass",
		Qwen:   op(true, KindBOLA, 70, "maybe"),
	})
	assert.Equal(t, TagClean, v.Tag)
	assert.False(t, v.HasVulnerability)
}

func TestDecideConsensusBonus(t *testing.T) {
	v := Decide(Input{
		Source:           "def f(): pass",
		Qwen:             op(true, KindBOLA, 70, "qwen reasoning"),
		Mistral:          op(true, KindBOLA, 80, "mistral reasoning"),
		ReviewersInvoked: true,
	})
	assert.Equal(t, TagConsensus, v.Tag)
	assert.True(t, v.HasVulnerability)
	assert.Equal(t, KindBOLA, v.Kind)
	// mean 75, +15% bonus, floored.
	assert.Equal(t, 86, v.Confidence)
	assert.Equal(t, "[Consensus] mistral reasoning", v.Reasoning)
}

func TestDecideConsensusBonusCapped(t *testing.T) {
	v := Decide(Input{
		Source:  "def f(): pass",
		Qwen:    op(true, KindIDOR, 95, "a"),
		Mistral: op(true, KindIDOR, 95, "b"),
	})
	assert.Equal(t, 100, v.Confidence)
}

func TestDecideBothClean(t *testing.T) {
	v := Decide(Input{
		Source:  "def f(): pass",
		Qwen:    op(false, KindNone, 90, ""),
		Mistral: op(false, KindNone, 85, ""),
	})
	assert.Equal(t, TagClean, v.Tag)
	assert.False(t, v.HasVulnerability)
}

func TestDecideKindDisagreement(t *testing.T) {
	// Higher-confidence model wins at a discount.
	v := Decide(Input{
		Source:  "def f(): pass",
		Qwen:    op(true, KindBOLA, 90, "qwen view"),
		Mistral: op(true, KindIDOR, 70, "mistral view"),
	})
	assert.Equal(t, TagJudged, v.Tag)
	assert.True(t, v.HasVulnerability)
	assert.Equal(t, KindBOLA, v.Kind)
	assert.Equal(t, 76, v.Confidence) // floor(90 * 0.85)
	assert.Equal(t, "[Disagreement: models differ on type] qwen view", v.Reasoning)

	// Discounted confidence at or below 60 means clean.
	v = Decide(Input{
		Source:  "def f(): pass",
		Qwen:    op(true, KindBOLA, 70, "a"),
		Mistral: op(true, KindIDOR, 65, "b"),
	})
	assert.Equal(t, TagClean, v.Tag)
	assert.False(t, v.HasVulnerability)
}

func TestDecideSplitVote(t *testing.T) {
	v := Decide(Input{
		Source:  "def f(): pass",
		Qwen:    op(true, KindMissingAuthentication, 80, "no auth guard"),
		Mistral: op(false, KindNone, 60, "looks fine"),
	})
	assert.Equal(t, TagJudged, v.Tag)
	assert.True(t, v.HasVulnerability)
	assert.Equal(t, KindMissingAuthentication, v.Kind)
	assert.Equal(t, "[Split vote — high confidence] no auth guard", v.Reasoning)

	v = Decide(Input{
		Source:  "def f(): pass",
		Qwen:    op(true, KindMissingAuthentication, 75, "no auth guard"),
		Mistral: op(false, KindNone, 60, "looks fine"),
	})
	assert.Equal(t, TagClean, v.Tag)
}

func TestIsPositiveTag(t *testing.T) {
	for _, tag := range []string{TagConsensus, TagGeminiValidated, TagJudged, TagFallbackSingle} {
		assert.True(t, IsPositiveTag(tag), tag)
	}
	for _, tag := range []string{TagClean, TagSkipped, TagAllFailed, ""} {
		assert.False(t, IsPositiveTag(tag), tag)
	}
}

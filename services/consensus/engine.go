// Copyright (C) 2025 Sentinel AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package consensus

import "fmt"

// Provenance tags attached to every verdict.
const (
	TagSkipped         = "skipped"
	TagGeminiValidated = "gemini_validated"
	TagAllFailed       = "all_failed"
	TagFallbackSingle  = "fallback_mistral"
	TagConsensus       = "consensus"
	TagClean           = "clean"
	TagJudged          = "judged"
)

// positiveTags mark verdicts that downstream consumers (risk scorer, ticket
// dispatcher, attack simulator) treat as confirmed findings.
var positiveTags = map[string]bool{
	TagConsensus:       true,
	TagGeminiValidated: true,
	TagJudged:          true,
	TagFallbackSingle:  true,
}

// IsPositiveTag reports whether a provenance tag marks a confirmed finding.
func IsPositiveTag(tag string) bool { return positiveTags[tag] }

// Verdict is the engine's merged conclusion for one function or endpoint.
type Verdict struct {
	HasVulnerability bool
	Kind             string
	Confidence       int
	Reasoning        string
	Tag              string
}

// Input carries everything the decision needs for one item.
type Input struct {
	Source string // function source; empty means nothing to review

	// Parsed opinions; nil means the model failed or was unparseable.
	Qwen      *Opinion
	Mistral   *Opinion
	Validator *Opinion

	// ReviewersInvoked is true when both reviewer calls were actually
	// attempted. The validator may only override a completed review round.
	ReviewersInvoked bool
}

// Decide merges the opinions into one verdict. Rules are evaluated in
// order; the first match wins.
func Decide(in Input) Verdict {
	// 1. Nothing to review.
	if in.Source == "" {
		return cleanVerdict(TagSkipped)
	}

	// 2. The validator overrides when it produced a confident verdict for
	// a completed review round.
	if in.Validator != nil && in.ReviewersInvoked && in.Validator.Confidence > 50 {
		return Verdict{
			HasVulnerability: in.Validator.HasVulnerability,
			Kind:             in.Validator.Kind,
			Confidence:       in.Validator.Confidence,
			Reasoning:        in.Validator.Reasoning,
			Tag:              TagGeminiValidated,
		}
	}

	// 3. Neither reviewer produced an opinion.
	if in.Qwen == nil && in.Mistral == nil {
		return cleanVerdict(TagAllFailed)
	}

	// 4. Single witness: demand high confidence before flagging.
	if in.Qwen == nil || in.Mistral == nil {
		survivor := in.Qwen
		if survivor == nil {
			survivor = in.Mistral
		}
		if survivor.HasVulnerability && survivor.Confidence > 70 {
			return Verdict{
				HasVulnerability: true,
				Kind:             survivor.Kind,
				Confidence:       survivor.Confidence,
				Reasoning:        survivor.Reasoning,
				Tag:              TagFallbackSingle,
			}
		}
		return cleanVerdict(TagClean)
	}

	a, b := in.Qwen, in.Mistral

	// 5. Agreement on both flag and kind earns a confidence bonus.
	if a.HasVulnerability && b.HasVulnerability && a.Kind == b.Kind {
		conf := (a.Confidence + b.Confidence) * 115 / 200 // mean * 1.15, floored
		if conf > 100 {
			conf = 100
		}
		higher := a
		if b.Confidence > a.Confidence {
			higher = b
		}
		return Verdict{
			HasVulnerability: true,
			Kind:             a.Kind,
			Confidence:       conf,
			Reasoning:        "[Consensus] " + higher.Reasoning,
			Tag:              TagConsensus,
		}
	}

	// 6. Agreement that the code is clean.
	if !a.HasVulnerability && !b.HasVulnerability {
		return cleanVerdict(TagClean)
	}

	// 7. Both flag but name different kinds: trust the more confident
	// model at a discount.
	if a.HasVulnerability && b.HasVulnerability {
		higher := a
		if b.Confidence > a.Confidence {
			higher = b
		}
		conf := higher.Confidence * 85 / 100
		if conf > 60 {
			return Verdict{
				HasVulnerability: true,
				Kind:             higher.Kind,
				Confidence:       conf,
				Reasoning:        "[Disagreement: models differ on type] " + higher.Reasoning,
				Tag:              TagJudged,
			}
		}
		return cleanVerdict(TagClean)
	}

	// 8. Split vote: one flags, one clean.
	flagging := a
	if b.HasVulnerability {
		flagging = b
	}
	if flagging.Confidence > 75 {
		return Verdict{
			HasVulnerability: true,
			Kind:             flagging.Kind,
			Confidence:       flagging.Confidence,
			Reasoning:        "[Split vote — high confidence] " + flagging.Reasoning,
			Tag:              TagJudged,
		}
	}
	return cleanVerdict(TagClean)
}

func cleanVerdict(tag string) Verdict {
	return Verdict{HasVulnerability: false, Kind: KindNone, Confidence: 0, Tag: tag}
}

// String summarises a verdict for logs.
func (v Verdict) String() string {
	return fmt.Sprintf("%s/%s conf=%d flagged=%t", v.Tag, v.Kind, v.Confidence, v.HasVulnerability)
}

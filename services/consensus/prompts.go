// Copyright (C) 2025 Sentinel AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package consensus

import (
	"fmt"
	"strings"

	"github.com/sentinelai/sentinel/services/scanner"
)

// DetectionSystemPrompt is the system role for both reviewers.
const DetectionSystemPrompt = "You are an expert security engineer analyzing Python FastAPI application authorization configurations. Respond with JSON only, no markdown."

// detectionTemplate asks a reviewer for a structured opinion on one item.
const detectionTemplate = `Given the following endpoint metadata, detect if there are potential BOLA (Broken Object Level Authorization), IDOR, Privilege Escalation, or missing authorization guards.

ENDPOINT DATA:
Function Name: %s
HTTP Method: %s
Path: %s
Guards/Depends: %s
Arguments: %s

SOURCE CODE:
%s

Analyze the endpoint. Provide exactly a JSON response in the following schema completely without markdown codeblocks:
{
  "has_vulnerability": true/false,
  "vulnerability_type": "BOLA" | "IDOR" | "Privilege Escalation" | "Missing Role Guard" | "Missing Authentication" | "Inconsistent Middleware" | "None",
  "confidence": 0-100,
  "reasoning": "string"
}`

// DetectionPrompt renders the user prompt sent to each reviewer for one
// extracted record.
func DetectionPrompt(r scanner.Record) string {
	code := r.Code
	if code == "" {
		code = "Source code not available"
	}
	return fmt.Sprintf(detectionTemplate,
		r.FunctionName,
		r.Method,
		r.Path,
		strings.Join(r.Guards, ", "),
		strings.Join(r.Arguments, ", "),
		code,
	)
}

// validatorTemplate asks the arbitration model for the final call when the
// two reviewers disagree or need confirmation.
const validatorTemplate = `You are a senior security architect acting as a consensus judge.
Two AI agents (Qwen and Mistral) analyzed a FastAPI endpoint for authorization vulnerabilities.

Model A (Qwen) Analysis:
%s

Model B (Mistral) Analysis:
%s

Review the analyses and provide the final, authoritative judgement in the following JSON format without markdown codeblocks:
{
  "resolved_vulnerability": true/false,
  "vulnerability_type": "BOLA" | "IDOR" | "Privilege Escalation" | "Missing Role Guard" | "Missing Authentication" | "Inconsistent Middleware" | "None",
  "confidence": 0-100,
  "reasoning": "string explaining why one model was correct over the other"
}`

// ValidatorPrompt renders the arbitration prompt from the raw reviewer
// responses.
func ValidatorPrompt(qwenRaw, mistralRaw string) string {
	if qwenRaw == "" {
		qwenRaw = "(no response)"
	}
	if mistralRaw == "" {
		mistralRaw = "(no response)"
	}
	return fmt.Sprintf(validatorTemplate, qwenRaw, mistralRaw)
}

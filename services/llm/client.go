// Copyright (C) 2025 Sentinel AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm is the gateway to the review models.
//
// Two locally hosted reviewers (Qwen and Mistral, behind an OpenAI-compatible
// chat-completions API) analyse code independently, and a Gemini validator
// arbitrates when both reviewers produced parseable opinions. All clients
// take a context and return explicit errors; callers decide what a failed
// reviewer means for the verdict.
package llm

import (
	"context"
	"strings"
)

// Reviewer is a single code-review model. Review sends one prompt pair and
// returns the raw completion text. Implementations apply their own request
// timeout and make exactly one attempt: a slow or failed reviewer is
// reported to the consensus layer, not retried.
type Reviewer interface {
	// Name identifies the reviewer in logs and verdict provenance
	// ("qwen", "mistral").
	Name() string
	Review(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Validator arbitrates between reviewer opinions. A Validator may disable
// itself permanently after exhausting its model fallbacks; callers must
// treat ErrValidatorDisabled as "no arbitration available", not a failure.
type Validator interface {
	Validate(ctx context.Context, prompt string) (string, error)
	Enabled() bool
}

// NormalizeBaseURL canonicalises a model server base URL. Operators paste
// URLs with or without the OpenAI path suffixes; both
// "http://host:1234/v1" and "http://host:1234/v1/chat" collapse to
// "http://host:1234".
func NormalizeBaseURL(raw string) string {
	u := strings.TrimRight(raw, "/")
	u = strings.TrimSuffix(u, "/chat")
	u = strings.TrimSuffix(u, "/v1")
	return strings.TrimRight(u, "/")
}

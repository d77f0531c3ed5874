// Copyright (C) 2025 Sentinel AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package consensus merges independent reviewer opinions into a single
// verdict with a provenance tag, and scores scans from the verdicts.
package consensus

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Canonical vulnerability kinds. These are the wire strings persisted in
// scan results and matched by the ticket dispatcher.
const (
	KindBOLA                   = "BOLA"
	KindIDOR                   = "IDOR"
	KindPrivilegeEscalation    = "Privilege Escalation"
	KindMissingRoleGuard       = "Missing Role Guard"
	KindMissingAuthentication  = "Missing Authentication"
	KindInconsistentMiddleware = "Inconsistent Middleware"
	KindNone                   = "None"
)

// kindAliases maps the spellings models actually emit to canonical kinds.
var kindAliases = map[string]string{
	"bola":                    KindBOLA,
	"idor":                    KindIDOR,
	"privilege escalation":    KindPrivilegeEscalation,
	"privilege_escalation":    KindPrivilegeEscalation,
	"privilegeescalation":     KindPrivilegeEscalation,
	"missing role guard":      KindMissingRoleGuard,
	"missing_role_guard":      KindMissingRoleGuard,
	"missingroleguard":        KindMissingRoleGuard,
	"missing authentication":  KindMissingAuthentication,
	"missing_authentication":  KindMissingAuthentication,
	"missingauthentication":   KindMissingAuthentication,
	"inconsistent middleware": KindInconsistentMiddleware,
	"inconsistent_middleware": KindInconsistentMiddleware,
	"inconsistentmiddleware":  KindInconsistentMiddleware,
	"none":                    KindNone,
	"":                        KindNone,
}

// NormalizeKind maps a model-emitted kind string onto a canonical kind.
// Unknown kinds pass through unchanged so the scorer can still apply its
// default penalty.
func NormalizeKind(raw string) string {
	if k, ok := kindAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return k
	}
	return strings.TrimSpace(raw)
}

// Opinion is one model's parsed analysis of a single function or endpoint.
type Opinion struct {
	HasVulnerability bool
	Kind             string
	Confidence       int
	Reasoning        string
}

// ParseOpinion extracts an Opinion from raw model output.
//
// Models frequently wrap JSON in markdown fences or surround it with prose.
// The parser strips fences, slices from the first '{' to the last '}', and
// coerces loosely typed fields (string booleans, float or string
// confidence). The validator's "resolved_vulnerability" field is accepted
// as an alias for "has_vulnerability". Any failure returns an error; the
// caller treats an unparseable opinion as absent.
func ParseOpinion(raw string) (*Opinion, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &fields); err != nil {
		return nil, fmt.Errorf("invalid JSON in response: %w", err)
	}

	op := &Opinion{
		Kind:      NormalizeKind(asString(fields["vulnerability_type"])),
		Reasoning: asString(fields["reasoning"]),
	}
	if v, ok := fields["has_vulnerability"]; ok {
		op.HasVulnerability = asBool(v)
	} else if v, ok := fields["resolved_vulnerability"]; ok {
		op.HasVulnerability = asBool(v)
	}
	op.Confidence = clampConfidence(asInt(fields["confidence"]))
	return op, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(strings.TrimSpace(t), "true")
	default:
		return false
	}
}

func asInt(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func clampConfidence(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

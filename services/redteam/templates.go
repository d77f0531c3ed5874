// Copyright (C) 2025 Sentinel AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package redteam simulates attacks against the vulnerabilities the scan
// pipeline discovered and records successful exploits as findings.
package redteam

import "strings"

// AttackTemplate names one attack vector for a vulnerability category.
type AttackTemplate struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// attackTemplates maps vulnerability categories to their attack vectors.
var attackTemplates = map[string][]AttackTemplate{
	"BOLA": {
		{Name: "IDOR User Enumeration", Description: "Attempt to access other users' resources by manipulating IDs"},
		{Name: "Horizontal Privilege Escalation", Description: "Access resources belonging to same-level users"},
		{Name: "Object Reference Manipulation", Description: "Modify object references to access unauthorized data"},
	},
	"privilege_escalation": {
		{Name: "Vertical Privilege Escalation", Description: "Attempt to elevate to admin/higher role"},
		{Name: "Role Bypass Attack", Description: "Bypass role checks to access privileged functions"},
		{Name: "Token Manipulation", Description: "Modify JWT/session tokens to gain elevated access"},
	},
	"authentication": {
		{Name: "Session Fixation", Description: "Force victim to use attacker-controlled session"},
		{Name: "Credential Stuffing Simulation", Description: "Test rate limiting on login endpoints"},
		{Name: "Token Replay Attack", Description: "Reuse captured authentication tokens"},
	},
	"authorization": {
		{Name: "Missing Function Level Access Control", Description: "Access admin functions without proper authorization"},
		{Name: "Forced Browsing", Description: "Access restricted endpoints directly"},
		{Name: "Parameter Tampering", Description: "Modify request parameters to bypass authorization"},
	},
	"default": {
		{Name: "Generic Security Probe", Description: "General security testing of the endpoint"},
		{Name: "Input Validation Test", Description: "Test input handling and validation"},
	},
}

// Categorize picks the attack template category by keyword match on the
// lowercased textual rendering of a vulnerability.
func Categorize(rendered string) string {
	lower := strings.ToLower(rendered)
	contains := func(terms ...string) bool {
		for _, t := range terms {
			if strings.Contains(lower, t) {
				return true
			}
		}
		return false
	}
	switch {
	case contains("bola", "idor", "object reference", "insecure direct"):
		return "BOLA"
	case contains("privilege", "escalation", "role"):
		return "privilege_escalation"
	case contains("auth", "login", "session", "token", "jwt"):
		return "authentication"
	case contains("access control", "authorization", "forbidden"):
		return "authorization"
	default:
		return "default"
	}
}

// TemplatesFor returns the attack list for a category, falling back to the
// generic probes.
func TemplatesFor(category string) []AttackTemplate {
	if templates, ok := attackTemplates[category]; ok {
		return templates
	}
	return attackTemplates["default"]
}

// successProbability maps a vulnerability's severity (lowercased) to the
// chance a simulated attack lands.
var successProbability = map[string]float64{
	"critical": 0.85,
	"high":     0.70,
	"medium":   0.50,
	"low":      0.30,
	"info":     0.10,
}

// SuccessProbability returns the Bernoulli parameter for a severity,
// defaulting to 0.50.
func SuccessProbability(severity string) float64 {
	if p, ok := successProbability[strings.ToLower(severity)]; ok {
		return p
	}
	return 0.50
}

// Difficulty grades how hard exploitation is from the success probability.
func Difficulty(p float64) string {
	switch {
	case p > 0.6:
		return "Easy"
	case p > 0.3:
		return "Medium"
	default:
		return "Hard"
	}
}

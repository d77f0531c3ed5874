// Copyright (C) 2025 Sentinel AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that end up in
// archive URLs, database queries, or filesystem paths. Using these validators
// prevents injection attacks (URL manipulation, path traversal).
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// repoPattern matches "owner/name" GitHub repository references.
// Owner and name allow letters, digits, dots, underscores and hyphens,
// which is the character set GitHub itself accepts.
var repoPattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]{1,100}/[A-Za-z0-9_.\-]{1,100}$`)

// branchPattern matches git branch names we are willing to interpolate
// into an archive URL. Deliberately stricter than git itself.
var branchPattern = regexp.MustCompile(`^[A-Za-z0-9_.\-/]{1,200}$`)

// commitPattern matches a hex commit hash or the "latest" sentinel.
var commitPattern = regexp.MustCompile(`^([0-9a-fA-F]{4,64}|latest)$`)

// ValidateRepo validates an "owner/name" repository reference.
//
// Returns an error if the reference is empty, contains path traversal
// sequences, or does not match the owner/name shape.
//
// Example:
//
//	if err := validation.ValidateRepo(repo); err != nil {
//	    return fmt.Errorf("invalid repository: %w", err)
//	}
//	// Safe to build an archive URL from repo
func ValidateRepo(repo string) error {
	if repo == "" {
		return fmt.Errorf("repository cannot be empty")
	}
	if strings.Contains(repo, "..") {
		return fmt.Errorf("repository %q contains path traversal sequence", repo)
	}
	if !repoPattern.MatchString(repo) {
		return fmt.Errorf("invalid repository format: %q (expected owner/name)", repo)
	}
	return nil
}

// ValidateBranch validates a git branch name before it is interpolated
// into an archive download URL.
func ValidateBranch(branch string) error {
	if branch == "" {
		return fmt.Errorf("branch cannot be empty")
	}
	if strings.Contains(branch, "..") {
		return fmt.Errorf("branch %q contains path traversal sequence", branch)
	}
	if !branchPattern.MatchString(branch) {
		return fmt.Errorf("invalid branch name: %q", branch)
	}
	return nil
}

// ValidateCommit validates a commit hash. The literal "latest" is accepted
// because manually triggered scans have no pinned commit.
func ValidateCommit(commit string) error {
	if commit == "" {
		return fmt.Errorf("commit cannot be empty")
	}
	if !commitPattern.MatchString(commit) {
		return fmt.Errorf("invalid commit hash: %q", commit)
	}
	return nil
}

// RepoFromURL extracts the "owner/name" reference from a GitHub URL.
// Inputs that are already bare references are returned unchanged.
//
//	RepoFromURL("https://github.com/acme/shop")      -> "acme/shop"
//	RepoFromURL("https://github.com/acme/shop.git")  -> "acme/shop"
//	RepoFromURL("acme/shop")                         -> "acme/shop"
func RepoFromURL(raw string) string {
	repo := raw
	if idx := strings.Index(raw, "github.com/"); idx >= 0 {
		repo = raw[idx+len("github.com/"):]
	}
	repo = strings.TrimSuffix(repo, "/")
	repo = strings.TrimSuffix(repo, ".git")
	// Keep only owner/name even if the URL carries extra path segments.
	parts := strings.Split(repo, "/")
	if len(parts) > 2 {
		repo = parts[0] + "/" + parts[1]
	}
	return repo
}

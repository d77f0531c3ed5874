// Copyright (C) 2025 Sentinel AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package scanner

import (
	"path/filepath"
	"strings"
)

// skipDirs are directory names excluded from repository walks. Vendored
// code, virtualenvs and test trees produce noise, not findings.
var skipDirs = map[string]bool{
	"__pycache__":  true,
	".git":         true,
	"venv":         true,
	"env":          true,
	".venv":        true,
	"node_modules": true,
	"migrations":   true,
	"tests":        true,
	"test":         true,
}

// skipFiles are individual filenames excluded from analysis.
var skipFiles = map[string]bool{
	"setup.py":    true,
	"conftest.py": true,
}

// SkipDir reports whether a directory (by base name) should be pruned from
// the walk.
func SkipDir(name string) bool {
	return skipDirs[name]
}

// SkipFile reports whether a file should be excluded from analysis. Only
// non-empty .py files outside the skip lists are analysed.
func SkipFile(path string, size int64) bool {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, ".py") {
		return true
	}
	if skipFiles[base] {
		return true
	}
	return size == 0
}

// relevanceTokens are substrings whose presence in a function body suggests
// it touches authentication, authorization or data access.
var relevanceTokens = []string{
	"user", "admin", "role", "permission", "auth", "token",
	"db.query", "session.query", "current_user", "owner", "access",
	"privilege", "delete", "update", "create", "write", "modify",
	"depends", "httpexception",
}

// Relevant reports whether a record is worth sending to review. Endpoints
// are always relevant; plain functions qualify when they span at least five
// lines (blank lines included) and mention an auth-adjacent token.
func Relevant(r Record) bool {
	if r.IsEndpoint {
		return true
	}
	if lineCount(r.Code) < 5 {
		return false
	}
	lower := strings.ToLower(r.Code)
	for _, tok := range relevanceTokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}

// lineCount counts the raw lines of a snippet, ignoring a trailing newline.
func lineCount(code string) int {
	if code == "" {
		return 0
	}
	return strings.Count(strings.TrimRight(code, "\n"), "\n") + 1
}

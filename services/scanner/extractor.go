// Copyright (C) 2025 Sentinel AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package scanner extracts HTTP endpoints and notable functions from Python
// source files using tree-sitter.
//
// Two disjoint record streams are produced per file:
//
//   - Endpoints: functions decorated with <router>.<method>("<path>", ...)
//     where <method> is an HTTP verb. Dependency-injection guards passed via
//     the configured marker (default "Depends") are collected.
//   - Functions: every named function definition whose body spans at least
//     three non-blank lines, de-duplicated within the file.
//
// The extractor is error-tolerant at the repository level: a file that fails
// to parse is skipped by the caller, never failing the whole scan.
package scanner

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// httpMethods is the set of decorator attribute names recognised as route
// registrations. Method names are matched lowercase and emitted uppercase.
var httpMethods = map[string]bool{
	"get": true, "post": true, "put": true, "delete": true,
	"patch": true, "options": true, "head": true,
}

// DefaultGuardMarker is the dependency-injection call recognised in
// parameter defaults, matching FastAPI's Depends().
const DefaultGuardMarker = "Depends"

// Record describes one extracted endpoint or function. The JSON field names
// are the canonical wire form persisted inside scan results.
type Record struct {
	FunctionName string   `json:"function_name"`
	Method       string   `json:"method"` // HTTP verb, or "FUNCTION" for non-endpoints
	Path         string   `json:"path"`   // route path, or "[<file>]" for non-endpoints
	Guards       []string `json:"guards"`
	Arguments    []string `json:"arguments"`
	Code         string   `json:"code"`
	FilePath     string   `json:"file_path"`
	IsEndpoint   bool     `json:"is_endpoint"`
}

// Key returns the uniqueness coordinate used when merging records across
// extraction passes: endpoints collapse on method+path, plain functions on
// name+file.
func (r Record) Key() string {
	if r.IsEndpoint {
		return r.Method + ":" + r.Path
	}
	return "FUNCTION:" + r.FunctionName + ":" + r.FilePath
}

// Extractor parses Python sources and emits Records. Safe for concurrent
// use: each parse creates its own tree-sitter parser instance.
type Extractor struct {
	guardMarker string
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithGuardMarker overrides the dependency-injection marker name.
func WithGuardMarker(name string) Option {
	return func(e *Extractor) {
		if name != "" {
			e.guardMarker = name
		}
	}
}

// NewExtractor creates an Extractor with the default guard marker.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{guardMarker: DefaultGuardMarker}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractEndpoints returns all decorated route handlers found in content.
//
// A function qualifies when one of its decorators is a call of the form
// <receiver>.<verb>(<string literal>, ...) with <verb> in the HTTP method
// set. The first positional string literal becomes the path.
func (e *Extractor) ExtractEndpoints(ctx context.Context, content []byte, filePath string) ([]Record, error) {
	root, cleanup, err := parse(ctx, content)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	var records []Record
	walk(root, func(n *sitter.Node) {
		if n.Type() != "decorated_definition" {
			return
		}
		def := n.ChildByFieldName("definition")
		if def == nil || def.Type() != "function_definition" {
			return
		}
		method, path, ok := e.routeDecorator(n, content)
		if !ok {
			return
		}
		name := nodeText(def.ChildByFieldName("name"), content)
		if name == "" {
			return
		}
		records = append(records, Record{
			FunctionName: name,
			Method:       method,
			Path:         path,
			Guards:       e.guardNames(def, content),
			Arguments:    parameterNames(def, content),
			Code:         nodeText(def, content),
			FilePath:     filePath,
			IsEndpoint:   true,
		})
	})
	return records, nil
}

// ExtractFunctions returns every named function definition spanning at least
// three non-blank lines, including methods. Duplicate definitions within a
// file (same name and same leading source) are emitted once.
func (e *Extractor) ExtractFunctions(ctx context.Context, content []byte, filePath string) ([]Record, error) {
	root, cleanup, err := parse(ctx, content)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	seen := make(map[string]bool)
	var records []Record
	walk(root, func(n *sitter.Node) {
		if n.Type() != "function_definition" {
			return
		}
		name := nodeText(n.ChildByFieldName("name"), content)
		if name == "" {
			return
		}
		code := nodeText(n, content)
		if nonBlankLines(code) < 3 {
			return
		}
		key := name + truncate(code, 40)
		if seen[key] {
			return
		}
		seen[key] = true
		records = append(records, Record{
			FunctionName: name,
			Method:       "FUNCTION",
			Path:         "[" + filePath + "]",
			Guards:       []string{},
			Arguments:    parameterNames(n, content),
			Code:         code,
			FilePath:     filePath,
			IsEndpoint:   false,
		})
	})
	return records, nil
}

// parse runs tree-sitter over content and returns the root node plus a
// cleanup func. Syntax errors are reported as a parse error so callers can
// skip the file, mirroring a strict-parser front end.
func parse(ctx context.Context, content []byte) (*sitter.Node, func(), error) {
	if !utf8.Valid(content) {
		return nil, nil, fmt.Errorf("content is not valid UTF-8")
	}
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	root := tree.RootNode()
	if root == nil {
		tree.Close()
		return nil, nil, fmt.Errorf("tree-sitter returned nil root node")
	}
	if root.HasError() {
		tree.Close()
		return nil, nil, fmt.Errorf("source contains syntax errors")
	}
	return root, func() { tree.Close() }, nil
}

// walk visits every node in the tree depth-first.
func walk(n *sitter.Node, visit func(*sitter.Node)) {
	visit(n)
	for i := 0; i < int(n.ChildCount()); i++ {
		walk(n.Child(i), visit)
	}
}

// routeDecorator inspects the decorators of a decorated_definition and
// returns the HTTP method (uppercase) and path of the first route
// registration found.
func (e *Extractor) routeDecorator(decorated *sitter.Node, content []byte) (method, path string, ok bool) {
	for i := 0; i < int(decorated.ChildCount()); i++ {
		dec := decorated.Child(i)
		if dec.Type() != "decorator" {
			continue
		}
		call := firstNamedChild(dec)
		if call == nil || call.Type() != "call" {
			continue
		}
		fn := call.ChildByFieldName("function")
		if fn == nil || fn.Type() != "attribute" {
			continue
		}
		attr := strings.ToLower(nodeText(fn.ChildByFieldName("attribute"), content))
		if !httpMethods[attr] {
			continue
		}
		args := call.ChildByFieldName("arguments")
		if args == nil {
			continue
		}
		for j := 0; j < int(args.NamedChildCount()); j++ {
			arg := args.NamedChild(j)
			if arg.Type() == "string" {
				return strings.ToUpper(attr), stringLiteral(arg, content), true
			}
			// Only the first positional argument may carry the path.
			break
		}
	}
	return "", "", false
}

// guardNames collects identifiers passed to the guard marker in default or
// keyword-default parameter positions, e.g. user=Depends(get_current_user).
func (e *Extractor) guardNames(def *sitter.Node, content []byte) []string {
	guards := []string{}
	params := def.ChildByFieldName("parameters")
	if params == nil {
		return guards
	}
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		switch p.Type() {
		case "default_parameter", "typed_default_parameter":
			val := p.ChildByFieldName("value")
			if val == nil || val.Type() != "call" {
				continue
			}
			fn := val.ChildByFieldName("function")
			if fn == nil || fn.Type() != "identifier" || nodeText(fn, content) != e.guardMarker {
				continue
			}
			args := val.ChildByFieldName("arguments")
			if args == nil {
				continue
			}
			for j := 0; j < int(args.NamedChildCount()); j++ {
				if arg := args.NamedChild(j); arg.Type() == "identifier" {
					guards = append(guards, nodeText(arg, content))
					break
				}
			}
		}
	}
	return guards
}

// parameterNames returns the declared argument names of a function.
func parameterNames(def *sitter.Node, content []byte) []string {
	names := []string{}
	params := def.ChildByFieldName("parameters")
	if params == nil {
		return names
	}
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		switch p.Type() {
		case "identifier":
			names = append(names, nodeText(p, content))
		case "typed_parameter", "list_splat_pattern", "dictionary_splat_pattern":
			if id := firstNamedChild(p); id != nil && id.Type() == "identifier" {
				names = append(names, nodeText(id, content))
			}
		case "default_parameter", "typed_default_parameter":
			if name := p.ChildByFieldName("name"); name != nil {
				names = append(names, nodeText(name, content))
			}
		}
	}
	return names
}

func firstNamedChild(n *sitter.Node) *sitter.Node {
	if n.NamedChildCount() == 0 {
		return nil
	}
	return n.NamedChild(0)
}

func nodeText(n *sitter.Node, content []byte) string {
	if n == nil {
		return ""
	}
	return string(content[n.StartByte():n.EndByte()])
}

// stringLiteral strips quoting from a tree-sitter string node, handling
// single, double and triple quotes plus common prefixes (f, r, b).
func stringLiteral(n *sitter.Node, content []byte) string {
	s := nodeText(n, content)
	s = strings.TrimLeft(s, "fFrRbBuU")
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			return s[len(q) : len(s)-len(q)]
		}
	}
	return s
}

// nonBlankLines counts lines containing at least one non-whitespace rune.
func nonBlankLines(s string) int {
	count := 0
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			count++
		}
	}
	return count
}

// truncate returns at most n bytes of s.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

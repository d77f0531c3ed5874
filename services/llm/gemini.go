// Copyright (C) 2025 Sentinel AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/genai"
)

// ErrValidatorDisabled is returned once every Gemini model fallback has
// failed. The validator never re-enables itself within a process lifetime.
var ErrValidatorDisabled = errors.New("gemini validator is disabled")

// geminiFallbacks is tried in order until one model answers. API projects
// differ in which aliases they expose.
var geminiFallbacks = []string{
	"gemini-1.5-flash-latest",
	"gemini-1.5-flash",
	"gemini-pro",
	"gemini-1.0-pro",
}

// GeminiValidator arbitrates reviewer disagreements via the Gemini API.
//
// Model selection is sticky: the first model that answers successfully is
// cached and reused. Unknown-model errors advance the fallback list; when
// a fresh validator finds no model it can use at all, it disables itself
// permanently and all later calls return ErrValidatorDisabled immediately.
// Transient failures fail only the request at hand.
type GeminiValidator struct {
	client   *genai.Client
	generate func(ctx context.Context, model, prompt string) (string, error)

	mu       sync.Mutex
	model    string // cached working model, empty until first success
	disabled bool
}

// NewGeminiValidator creates a validator. A missing API key is an error;
// callers that want to run without arbitration pass a nil Validator instead.
func NewGeminiValidator(ctx context.Context, apiKey string) (*GeminiValidator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	v := &GeminiValidator{client: client}
	v.generate = v.generateContent
	return v, nil
}

// modelUnavailable reports whether the error means this API project does
// not serve the model name at all (404 / "not found" / "not supported").
// Only these advance the fallback list; anything else is a per-request
// failure the caller absorbs as "no arbitration".
func modelUnavailable(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusNotFound
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "not supported")
}

// Enabled reports whether the validator can still serve requests.
func (v *GeminiValidator) Enabled() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return !v.disabled
}

// Validate sends the arbitration prompt and returns the raw response text.
func (v *GeminiValidator) Validate(ctx context.Context, prompt string) (string, error) {
	v.mu.Lock()
	if v.disabled {
		v.mu.Unlock()
		return "", ErrValidatorDisabled
	}
	cached := v.model
	v.mu.Unlock()

	candidates := geminiFallbacks
	if cached != "" {
		candidates = []string{cached}
	}

	var lastErr error
	for _, model := range candidates {
		text, err := v.generate(ctx, model, prompt)
		if err == nil {
			v.mu.Lock()
			v.model = model
			v.mu.Unlock()
			return text, nil
		}
		if !modelUnavailable(err) {
			// Transient failure (5xx, timeout, quota): this request gets
			// no arbitration, but the fallback list stays intact.
			slog.Warn("Gemini request failed", "model", model, "error", err)
			return "", fmt.Errorf("gemini model %s: %w", model, err)
		}
		slog.Warn("Gemini model unavailable", "model", model, "error", err)
		lastErr = err
	}

	if cached == "" {
		// No fallback model exists in this API project: give up for good.
		v.mu.Lock()
		v.disabled = true
		v.mu.Unlock()
		slog.Error("No Gemini fallback model available, disabling validator", "error", lastErr)
		return "", fmt.Errorf("%w: %v", ErrValidatorDisabled, lastErr)
	}
	return "", fmt.Errorf("gemini model %s: %w", cached, lastErr)
}

func (v *GeminiValidator) generateContent(ctx context.Context, model, prompt string) (string, error) {
	resp, err := v.client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", err
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from %s", model)
	}
	return text, nil
}

// Copyright (C) 2025 Sentinel AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Default request timeouts. Mistral runs on weaker hardware and routinely
// needs more than a minute per review; Qwen answers fast or not at all.
const (
	DefaultQwenTimeout    = 15 * time.Second
	DefaultMistralTimeout = 90 * time.Second
)

// DefaultTemperature keeps review verdicts near-deterministic. Zero is not
// representable on the wire (the SDK drops it), so the config treats zero
// as "use the default".
const DefaultTemperature = 0.1

// LMStudioConfig configures one locally hosted reviewer.
type LMStudioConfig struct {
	Name        string // provenance name, e.g. "qwen"
	BaseURL     string // server root, path suffixes are stripped
	Model       string
	Timeout     time.Duration
	Temperature float32
	MaxTokens   int
}

// LMStudioClient talks to an LM Studio (or any OpenAI-compatible) server.
type LMStudioClient struct {
	client  *openai.Client
	name    string
	model   string
	timeout time.Duration
	temp    float32
	maxTok  int
}

// NewLMStudioClient creates a reviewer against an OpenAI-compatible server.
// LM Studio ignores the API key but the SDK requires one.
func NewLMStudioClient(cfg LMStudioConfig) (*LMStudioClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("reviewer %q: base URL is required", cfg.Name)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("reviewer %q: model is required", cfg.Name)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultQwenTimeout
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	conf := openai.DefaultConfig("lm-studio")
	conf.BaseURL = NormalizeBaseURL(cfg.BaseURL) + "/v1"
	slog.Info("Initializing reviewer client",
		"reviewer", cfg.Name, "model", cfg.Model, "base_url", conf.BaseURL, "timeout", cfg.Timeout)
	return &LMStudioClient{
		client:  openai.NewClientWithConfig(conf),
		name:    cfg.Name,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		temp:    cfg.Temperature,
		maxTok:  cfg.MaxTokens,
	}, nil
}

// Name implements Reviewer.
func (c *LMStudioClient) Name() string { return c.name }

// Review sends one chat completion and returns the raw assistant text.
// Exactly one attempt: local models that miss the deadline are treated as
// absent for this review.
func (c *LMStudioClient) Review(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: c.temp,
	}
	if c.maxTok > 0 {
		req.MaxTokens = c.maxTok
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		slog.Warn("Reviewer call failed", "reviewer", c.name, "error", err)
		return "", fmt.Errorf("reviewer %s: %w", c.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("reviewer %s: no choices returned", c.name)
	}
	return resp.Choices[0].Message.Content, nil
}

// Available probes the server's model list. Used by the dashboard's model
// status panel, never by the review path.
func (c *LMStudioClient) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := c.client.ListModels(ctx)
	return err == nil
}

// Copyright (C) 2025 Sentinel AI
// Tests for the reviewer gateway.

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeBaseURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:1234":          "http://localhost:1234",
		"http://localhost:1234/":         "http://localhost:1234",
		"http://localhost:1234/v1":       "http://localhost:1234",
		"http://localhost:1234/v1/":      "http://localhost:1234",
		"http://localhost:1234/v1/chat":  "http://localhost:1234",
		"http://localhost:1234/v1/chat/": "http://localhost:1234",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeBaseURL(in), in)
	}
}

func chatStub(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": reply}},
			},
		})
	}))
}

func TestLMStudioReview(t *testing.T) {
	srv := chatStub(t, `{"has_vulnerability": false}`)
	defer srv.Close()

	client, err := NewLMStudioClient(LMStudioConfig{
		Name:    "qwen",
		BaseURL: srv.URL + "/v1", // suffix must be tolerated
		Model:   "qwen2.5-coder",
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "qwen", client.Name())

	out, err := client.Review(context.Background(), "system", "review this")
	require.NoError(t, err)
	assert.Equal(t, `{"has_vulnerability": false}`, out)
}

func TestLMStudioReviewSendsDefaultTemperature(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "ok"}},
			},
		})
	}))
	defer srv.Close()

	// Built the way the service mains build it: no explicit temperature.
	client, err := NewLMStudioClient(LMStudioConfig{
		Name:    "qwen",
		BaseURL: srv.URL,
		Model:   "qwen2.5-coder",
	})
	require.NoError(t, err)

	_, err = client.Review(context.Background(), "system", "review this")
	require.NoError(t, err)

	temp, ok := captured["temperature"]
	require.True(t, ok, "temperature missing from request body")
	assert.InDelta(t, 0.1, temp, 0.001)
	// No output cap: the models decide when the verdict JSON is complete.
	_, ok = captured["max_tokens"]
	assert.False(t, ok)
}

func TestLMStudioReviewTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	client, err := NewLMStudioClient(LMStudioConfig{
		Name:    "mistral",
		BaseURL: srv.URL,
		Model:   "mistral-7b",
		Timeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = client.Review(context.Background(), "system", "review this")
	assert.Error(t, err)
}

func TestLMStudioConfigValidation(t *testing.T) {
	_, err := NewLMStudioClient(LMStudioConfig{Name: "qwen", Model: "m"})
	assert.Error(t, err)

	_, err = NewLMStudioClient(LMStudioConfig{Name: "qwen", BaseURL: "http://x"})
	assert.Error(t, err)
}

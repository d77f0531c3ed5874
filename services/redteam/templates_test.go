// Copyright (C) 2025 Sentinel AI
// Tests for attack template selection.

package redteam

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategorize(t *testing.T) {
	cases := []struct {
		rendered string
		want     string
	}{
		{`{"vulnerability_type":"BOLA","path":"/users/{id}"}`, "BOLA"},
		{`{"vulnerability_type":"IDOR"}`, "BOLA"},
		{`insecure direct object reference on orders`, "BOLA"},
		{`{"vulnerability_type":"Privilege Escalation"}`, "privilege_escalation"},
		{`missing role guard on admin route`, "privilege_escalation"},
		{`{"vulnerability_type":"Missing Authentication"}`, "authentication"},
		{`stale jwt accepted`, "authentication"},
		{`broken access control on export`, "authorization"},
		{`{"vulnerability_type":"None"}`, "default"},
		{``, "default"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Categorize(tc.rendered), "rendered=%q", tc.rendered)
	}
}

func TestTemplatesFor(t *testing.T) {
	assert.Len(t, TemplatesFor("BOLA"), 3)
	assert.Len(t, TemplatesFor("default"), 2)
	// Unknown categories fall back to the generic probes.
	assert.Equal(t, TemplatesFor("default"), TemplatesFor("nonsense"))
}

func TestSuccessProbability(t *testing.T) {
	assert.Equal(t, 0.85, SuccessProbability("critical"))
	assert.Equal(t, 0.85, SuccessProbability("Critical"))
	assert.Equal(t, 0.70, SuccessProbability("high"))
	assert.Equal(t, 0.50, SuccessProbability("medium"))
	assert.Equal(t, 0.30, SuccessProbability("low"))
	assert.Equal(t, 0.10, SuccessProbability("info"))
	assert.Equal(t, 0.50, SuccessProbability("unknown"))
}

func TestDifficulty(t *testing.T) {
	assert.Equal(t, "Easy", Difficulty(0.85))
	assert.Equal(t, "Easy", Difficulty(0.70))
	assert.Equal(t, "Medium", Difficulty(0.50))
	assert.Equal(t, "Hard", Difficulty(0.30))
	assert.Equal(t, "Hard", Difficulty(0.10))
}

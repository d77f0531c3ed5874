// Copyright (C) 2025 Sentinel AI
// Tests for persisted wire types.

package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfidenceCoercion(t *testing.T) {
	var v Vulnerability
	require.NoError(t, json.Unmarshal([]byte(`{"confidence": 85}`), &v))
	assert.Equal(t, Confidence(85), v.Confidence)

	require.NoError(t, json.Unmarshal([]byte(`{"confidence": "72"}`), &v))
	assert.Equal(t, Confidence(72), v.Confidence)

	require.NoError(t, json.Unmarshal([]byte(`{"confidence": "high"}`), &v))
	assert.Equal(t, Confidence(0), v.Confidence)

	require.NoError(t, json.Unmarshal([]byte(`{"confidence": 86.4}`), &v))
	assert.Equal(t, Confidence(86), v.Confidence)
}

func TestEndpointOrFile(t *testing.T) {
	assert.Equal(t, "/users/{id}", Vulnerability{Path: "/users/{id}", FilePath: "a.py"}.EndpointOrFile())
	assert.Equal(t, "app/a.py", Vulnerability{FilePath: "app/a.py"}.EndpointOrFile())
	assert.Equal(t, "unknown", Vulnerability{}.EndpointOrFile())
}

func TestDecodeVulnerabilities(t *testing.T) {
	raw := []byte(`[{"function_name":"get_user","method":"GET","path":"/users/{id}","vulnerability_type":"BOLA","confidence":86,"reasoning":"no ownership check","validated_by":"consensus"}]`)
	vulns := decodeVulnerabilities(raw)
	require.Len(t, vulns, 1)
	assert.Equal(t, "BOLA", vulns[0].Kind)
	assert.Equal(t, "consensus", vulns[0].ValidatedBy)

	assert.Nil(t, decodeVulnerabilities(nil))
	assert.Nil(t, decodeVulnerabilities([]byte("not json")))
}

func TestVulnerabilityRoundTrip(t *testing.T) {
	v := Vulnerability{
		FunctionName: "create_order",
		Method:       "POST",
		Path:         "/orders",
		FilePath:     "app/orders.py",
		Kind:         "Missing Authentication",
		Confidence:   77,
		Reasoning:    "no guard on write path",
		ValidatedBy:  "judged",
	}
	data, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"vulnerability_type":"Missing Authentication"`)
	assert.Contains(t, string(data), `"validated_by":"judged"`)
}

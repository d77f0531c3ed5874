// Copyright (C) 2025 Sentinel AI
// Tests for ticket qualification and the dispatcher pass.

package jira

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelai/sentinel/services/store"
)

func TestQualifies(t *testing.T) {
	bola := store.Vulnerability{Kind: "BOLA", Confidence: 86, Path: "/users/{id}"}

	assert.True(t, Qualifies(bola, "High"))
	assert.True(t, Qualifies(bola, "Critical"))
	assert.False(t, Qualifies(bola, "Medium"))
	assert.False(t, Qualifies(bola, "Low"))

	lowConf := bola
	lowConf.Confidence = 54
	assert.False(t, Qualifies(lowConf, "Critical"))

	atBar := bola
	atBar.Confidence = 55
	assert.True(t, Qualifies(atBar, "High"))

	// Unlisted kinds only qualify on Critical scans.
	odd := store.Vulnerability{Kind: "SQL Injection", Confidence: 90}
	assert.False(t, Qualifies(odd, "High"))
	assert.True(t, Qualifies(odd, "Critical"))
}

func TestIssueTitle(t *testing.T) {
	assert.Equal(t, "[Sentinel] High - BOLA - acme/shop", IssueTitle("High", "BOLA", "acme/shop"))
}

func TestIssueDescription(t *testing.T) {
	scan := store.ScanResult{ID: 7, RepoName: "acme/shop", CommitHash: "deadbeef",
		Severity: "High", AuthIntegrityScore: 42}
	vuln := store.Vulnerability{FunctionName: "get_user", Method: "GET",
		Path: "/users/{id}", Kind: "BOLA", Confidence: 86, Reasoning: "no ownership check"}

	desc := IssueDescription(vuln, scan)
	assert.Contains(t, desc, "*Vulnerability Type:* BOLA")
	assert.Contains(t, desc, "*Affected Endpoint / File:* /users/{id}")
	assert.Contains(t, desc, "*Confidence:* 86%")
	assert.Contains(t, desc, "*Scan ID:* 7")
	assert.Contains(t, desc, "Generated automatically by Sentinel AI")
}

type fakeDispatcherStore struct {
	scans     []store.ScanResult
	open      map[string]string // repo|location|kind -> key
	saved     []store.JiraIssue
	processed []int64
}

func (f *fakeDispatcherStore) UnprocessedScans(ctx context.Context, limit int) ([]store.ScanResult, error) {
	return f.scans, nil
}

func (f *fakeDispatcherStore) MarkScanProcessed(ctx context.Context, scanID int64) error {
	f.processed = append(f.processed, scanID)
	return nil
}

func (f *fakeDispatcherStore) FindOpenIssue(ctx context.Context, repo, location, kind string) (string, error) {
	return f.open[repo+"|"+location+"|"+kind], nil
}

func (f *fakeDispatcherStore) SaveJiraIssue(ctx context.Context, issue store.JiraIssue) error {
	f.saved = append(f.saved, issue)
	return nil
}

type fakeTracker struct {
	created  []string
	comments []string
	fail     bool
}

func (f *fakeTracker) CreateIssue(ctx context.Context, title, description, severity string) (string, error) {
	if f.fail {
		return "", assert.AnError
	}
	f.created = append(f.created, title)
	return "SEC-1", nil
}

func (f *fakeTracker) AddComment(ctx context.Context, issueKey, text string) error {
	f.comments = append(f.comments, issueKey)
	return nil
}

func TestProcessOnceCreatesAndComments(t *testing.T) {
	scan := store.ScanResult{
		ID: 11, RepoName: "acme/shop", CommitHash: "abc123", Severity: "High",
		Vulnerabilities: []store.Vulnerability{
			{Kind: "BOLA", Confidence: 86, Path: "/users/{id}", FunctionName: "get_user"},
			{Kind: "IDOR", Confidence: 70, Path: "/orders/{id}", FunctionName: "get_order"},
			{Kind: "Missing Role Guard", Confidence: 40, Path: "/admin"}, // below bar
		},
	}
	st := &fakeDispatcherStore{
		scans: []store.ScanResult{scan},
		open:  map[string]string{"acme/shop|/orders/{id}|IDOR": "SEC-9"},
	}
	tracker := &fakeTracker{}
	d := NewDispatcher(st, tracker, 0)

	result, err := d.ProcessOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.TicketsCreated)
	assert.Equal(t, 1, result.CommentsAdded)

	require.Len(t, tracker.created, 1)
	assert.Equal(t, "[Sentinel] High - BOLA - acme/shop", tracker.created[0])
	assert.Equal(t, []string{"SEC-9"}, tracker.comments)

	require.Len(t, st.saved, 1)
	assert.Equal(t, int64(11), st.saved[0].ScanResultID)
	assert.Equal(t, 0, st.saved[0].FindingIndex)
	assert.Equal(t, "/users/{id}", st.saved[0].EndpointOrFile)

	// Checkpoint written even though one finding was skipped.
	assert.Equal(t, []int64{11}, st.processed)
}

func TestProcessOnceCheckpointsOnTrackerFailure(t *testing.T) {
	scan := store.ScanResult{
		ID: 12, RepoName: "acme/shop", Severity: "Critical",
		Vulnerabilities: []store.Vulnerability{
			{Kind: "BOLA", Confidence: 90, Path: "/users/{id}"},
		},
	}
	st := &fakeDispatcherStore{scans: []store.ScanResult{scan}}
	tracker := &fakeTracker{fail: true}
	d := NewDispatcher(st, tracker, 0)

	result, err := d.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.TicketsCreated)
	assert.Equal(t, []int64{12}, st.processed)
	assert.Empty(t, st.saved)
}

func TestProcessOnceEmptyQueue(t *testing.T) {
	d := NewDispatcher(&fakeDispatcherStore{}, &fakeTracker{}, 0)
	result, err := d.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Processed)
}

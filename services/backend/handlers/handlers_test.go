// Copyright (C) 2025 Sentinel AI
// Tests for the backend HTTP handlers.

package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelai/sentinel/services/pipeline"
	"github.com/sentinelai/sentinel/services/store"
)

type fakeQueue struct {
	requests []pipeline.ScanRequest
	fail     bool
}

func (f *fakeQueue) Enqueue(ctx context.Context, req pipeline.ScanRequest) error {
	if f.fail {
		return assert.AnError
	}
	f.requests = append(f.requests, req)
	return nil
}

type fakeDashboardStore struct {
	stats     store.DashboardStats
	scans     []store.ScanResult
	vulns     []store.FlatVulnerability
	statsErr  error
	scansErr  error
	resetDone bool
}

func (f *fakeDashboardStore) Stats(ctx context.Context) (store.DashboardStats, error) {
	return f.stats, f.statsErr
}

func (f *fakeDashboardStore) RecentScans(ctx context.Context, limit int) ([]store.ScanResult, error) {
	return f.scans, f.scansErr
}

func (f *fakeDashboardStore) RecentVulnerabilities(ctx context.Context, scanLimit int) ([]store.FlatVulnerability, error) {
	return f.vulns, nil
}

func (f *fakeDashboardStore) ResetScans(ctx context.Context) error {
	f.resetDone = true
	return nil
}

func perform(router *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestTriggerScanFromURL(t *testing.T) {
	gin.SetMode(gin.TestMode)
	queue := &fakeQueue{}
	router := gin.New()
	router.POST("/api/scan", TriggerScan(queue))

	rec := perform(router, http.MethodPost, "/api/scan",
		`{"github_url":"https://github.com/acme/shop"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "acme/shop", body["repo"])

	require.Len(t, queue.requests, 1)
	assert.Equal(t, "acme/shop", queue.requests[0].Repo)
	assert.Equal(t, "main", queue.requests[0].Branch)
	assert.Equal(t, "latest", queue.requests[0].Commit)
}

func TestTriggerScanRejectsBadInput(t *testing.T) {
	gin.SetMode(gin.TestMode)
	queue := &fakeQueue{}
	router := gin.New()
	router.POST("/api/scan", TriggerScan(queue))

	rec := perform(router, http.MethodPost, "/api/scan", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = perform(router, http.MethodPost, "/api/scan",
		`{"github_url":"https://github.com/../../etc"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, queue.requests)
}

func TestTriggerScanQueueDown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/api/scan", TriggerScan(&fakeQueue{fail: true}))

	rec := perform(router, http.MethodPost, "/api/scan",
		`{"github_url":"acme/shop"}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

const prPayload = `{
	"action": "opened",
	"pull_request": {"number": 7, "diff_url": "https://github.com/acme/shop/pull/7.diff",
		"head": {"sha": "deadbeefcafe"}},
	"repository": {"full_name": "acme/shop"}
}`

func webhookRouter(cfg WebhookConfig, queue ScanQueue) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/api/github/webhook", GitHubWebhook(cfg, queue))
	return router
}

func TestWebhookEnqueuesPullRequest(t *testing.T) {
	queue := &fakeQueue{}
	router := webhookRouter(WebhookConfig{Secret: "s3cret"}, queue)

	rec := perform(router, http.MethodPost, "/api/github/webhook", prPayload,
		map[string]string{"X-Hub-Signature-256": sign("s3cret", prPayload)})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "success", body["status"])
	assert.Contains(t, body["message"], "PR #7")

	require.Len(t, queue.requests, 1)
	assert.Equal(t, "acme/shop", queue.requests[0].Repo)
	assert.Equal(t, "deadbeefcafe", queue.requests[0].Commit)
	assert.NotEmpty(t, queue.requests[0].DiffURL)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	queue := &fakeQueue{}
	router := webhookRouter(WebhookConfig{Secret: "s3cret"}, queue)

	rec := perform(router, http.MethodPost, "/api/github/webhook", prPayload,
		map[string]string{"X-Hub-Signature-256": "sha256=deadbeef"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, queue.requests)

	rec = perform(router, http.MethodPost, "/api/github/webhook", prPayload, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookDevModeAllowsBadSignature(t *testing.T) {
	queue := &fakeQueue{}
	router := webhookRouter(WebhookConfig{Secret: "s3cret", DevMode: true}, queue)

	rec := perform(router, http.MethodPost, "/api/github/webhook", prPayload, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, queue.requests, 1)
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	queue := &fakeQueue{}
	router := webhookRouter(WebhookConfig{Secret: "s3cret"}, queue)

	payload := `{"action": "closed", "pull_request": {"number": 7, "head": {"sha": "abc"}},
		"repository": {"full_name": "acme/shop"}}`
	rec := perform(router, http.MethodPost, "/api/github/webhook", payload,
		map[string]string{"X-Hub-Signature-256": sign("s3cret", payload)})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ignored", decodeBody(t, rec)["status"])

	push := `{"ref": "refs/heads/main"}`
	rec = perform(router, http.MethodPost, "/api/github/webhook", push,
		map[string]string{"X-Hub-Signature-256": sign("s3cret", push)})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ignored", decodeBody(t, rec)["status"])
	assert.Empty(t, queue.requests)
}

func TestDashboardStats(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := &fakeDashboardStore{stats: store.DashboardStats{Score: 79, Drift: 3, ExploitsPrevented: 2}}
	router := gin.New()
	router.GET("/api/dashboard/stats", DashboardStats(st))

	rec := perform(router, http.MethodGet, "/api/dashboard/stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(79), body["score"])
	assert.Equal(t, float64(3), body["drift"])
	assert.Equal(t, float64(2), body["exploits_prevented"])
}

func TestDashboardStatsFallback(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := &fakeDashboardStore{statsErr: assert.AnError}
	router := gin.New()
	router.GET("/api/dashboard/stats", DashboardStats(st))

	rec := perform(router, http.MethodGet, "/api/dashboard/stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(92), decodeBody(t, rec)["score"])
}

func TestRecentScansRows(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	st := &fakeDashboardStore{scans: []store.ScanResult{
		{RepoName: "acme/shop", CommitHash: "deadbeefcafe", Timestamp: ts,
			Severity: "Medium", AuthIntegrityScore: 79,
			Vulnerabilities: []store.Vulnerability{{Kind: "BOLA"}}},
		{RepoName: "acme/clean", CommitHash: "abc123", Timestamp: ts,
			Severity: "Low", AuthIntegrityScore: 100},
	}}
	router := gin.New()
	router.GET("/api/dashboard/recent_scans", RecentScans(st))

	rec := perform(router, http.MethodGet, "/api/dashboard/recent_scans", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "#deadbe", rows[0]["id"])
	assert.Equal(t, "Blocked", rows[0]["status"])
	assert.Equal(t, float64(1), rows[0]["issues"])
	assert.Equal(t, "Passed", rows[1]["status"])
	assert.Equal(t, "2025-06-01 12:00:00", rows[1]["time"])
}

func TestRecentVulnerabilitiesEmpty(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/api/dashboard/vulnerabilities", RecentVulnerabilities(&fakeDashboardStore{}))

	rec := perform(router, http.MethodGet, "/api/dashboard/vulnerabilities", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

type stubProber struct{ up bool }

func (s *stubProber) Available(ctx context.Context) bool { return s.up }

type stubValidator struct{ enabled bool }

func (s *stubValidator) Enabled() bool { return s.enabled }

func TestAIStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/api/dashboard/ai_status",
		AIStatus(&stubProber{up: true}, &stubProber{}, &stubValidator{enabled: true}))

	rec := perform(router, http.MethodGet, "/api/dashboard/ai_status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "online", body["qwen"])
	assert.Equal(t, "offline", body["mistral"])
	assert.Equal(t, "enabled", body["gemini_validator"])
}

func TestResetDashboard(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := &fakeDashboardStore{}
	router := gin.New()
	router.DELETE("/api/dashboard/reset", ResetDashboard(st))

	rec := perform(router, http.MethodDelete, "/api/dashboard/reset", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, st.resetDone)
}

func TestGraphDataDeduplicatesNodes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	vuln := store.Vulnerability{FunctionName: "get_user", Method: "GET",
		Path: "/users/{id}", Kind: "BOLA", Confidence: 86, Reasoning: "no ownership check"}
	st := &fakeDashboardStore{scans: []store.ScanResult{
		{RepoName: "acme/shop", Vulnerabilities: []store.Vulnerability{vuln}},
		{RepoName: "acme/shop", Vulnerabilities: []store.Vulnerability{vuln,
			{FunctionName: "helper", Kind: "IDOR", Confidence: 70, FilePath: "app/util.py"}}},
	}}
	router := gin.New()
	router.GET("/api/graph/data", GraphData(st))

	rec := perform(router, http.MethodGet, "/api/graph/data", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Nodes []graphNode `json:"nodes"`
		Stats graphStats  `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Nodes, 2)
	assert.Equal(t, "acme/shop:get_user:/users/{id}", body.Nodes[0].ID)
	assert.Equal(t, "GET /users/{id}", body.Nodes[0].Label)
	// Function findings with no route label by name.
	assert.Equal(t, "helper", body.Nodes[1].Label)
	assert.Equal(t, 2, body.Stats.Total)
	assert.Equal(t, 2, body.Stats.Vulnerable)
}

func TestReadiness(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ok := pingerFunc(func(ctx context.Context) error { return nil })
	bad := pingerFunc(func(ctx context.Context) error { return assert.AnError })

	router := gin.New()
	router.GET("/ready", Readiness(map[string]Pinger{"db": ok, "queue": bad}))
	rec := perform(router, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	router = gin.New()
	router.GET("/ready", Readiness(map[string]Pinger{"db": ok}))
	rec = perform(router, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

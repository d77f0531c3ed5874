// Copyright (C) 2025 Sentinel AI
// Tests for the backend middleware.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authRouter(headerName, key string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(APIKeyAuth(headerName, key))
	handler := func(c *gin.Context) { c.Status(http.StatusOK) }
	router.GET("/", handler)
	router.GET("/health", handler)
	router.GET("/api/dashboard/stats", handler)
	router.GET("/admin/panel", handler)
	return router
}

func get(router *gin.Engine, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestIsPublicPath(t *testing.T) {
	assert.True(t, IsPublicPath("/"))
	assert.True(t, IsPublicPath("/health"))
	assert.True(t, IsPublicPath("/ready"))
	assert.True(t, IsPublicPath("/metrics"))
	assert.True(t, IsPublicPath("/api/scan"))
	assert.True(t, IsPublicPath("/api/dashboard/stats"))
	assert.False(t, IsPublicPath("/admin/panel"))
}

func TestAPIKeyAuthProtectsPrivatePaths(t *testing.T) {
	router := authRouter("", "sekrit")

	assert.Equal(t, http.StatusOK, get(router, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, get(router, "/api/dashboard/stats", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, get(router, "/admin/panel", nil).Code)
	assert.Equal(t, http.StatusOK,
		get(router, "/admin/panel", map[string]string{DefaultAPIKeyHeader: "sekrit"}).Code)
	assert.Equal(t, http.StatusUnauthorized,
		get(router, "/admin/panel", map[string]string{DefaultAPIKeyHeader: "wrong"}).Code)
}

func TestAPIKeyAuthCustomHeader(t *testing.T) {
	router := authRouter("X-Sentinel-Key", "sekrit")
	assert.Equal(t, http.StatusOK,
		get(router, "/admin/panel", map[string]string{"X-Sentinel-Key": "sekrit"}).Code)
	assert.Equal(t, http.StatusUnauthorized,
		get(router, "/admin/panel", map[string]string{DefaultAPIKeyHeader: "sekrit"}).Code)
}

func TestAPIKeyAuthDisabledWithoutKey(t *testing.T) {
	router := authRouter("", "")
	assert.Equal(t, http.StatusOK, get(router, "/admin/panel", nil).Code)
}

func TestRequestIDMintedAndEchoed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	var seen string
	router.GET("/", func(c *gin.Context) {
		seen = GetRequestID(c)
		c.Status(http.StatusOK)
	})

	rec := get(router, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	echoed := rec.Header().Get(RequestIDHeader)
	assert.Equal(t, seen, echoed)
	_, err := uuid.Parse(echoed)
	assert.NoError(t, err)
}

func TestRequestIDPropagated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := get(router, "/", map[string]string{RequestIDHeader: "req-42"})
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
}

// Copyright (C) 2025 Sentinel AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the analysis backend.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// DefaultAPIKeyHeader is the shared-secret header checked by APIKeyAuth.
const DefaultAPIKeyHeader = "X-API-Key"

// publicPrefixes are served without the shared secret. The /api/ routes
// are either webhook-signed or intentionally open.
var publicPrefixes = []string{
	"/health",
	"/ready",
	"/metrics",
	"/docs",
	"/static",
	"/api/",
}

// IsPublicPath reports whether a request path skips API-key auth.
func IsPublicPath(path string) bool {
	if path == "/" {
		return true
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// APIKeyAuth requires the shared secret on non-public endpoints.
//
// An empty header name falls back to DefaultAPIKeyHeader. An empty key
// disables the check entirely.
func APIKeyAuth(headerName, key string) gin.HandlerFunc {
	if headerName == "" {
		headerName = DefaultAPIKeyHeader
	}
	return func(c *gin.Context) {
		if key == "" || IsPublicPath(c.Request.URL.Path) {
			c.Next()
			return
		}
		provided := c.GetHeader(headerName)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

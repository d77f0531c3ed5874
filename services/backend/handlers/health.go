// Copyright (C) 2025 Sentinel AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Pinger is the liveness probe over a backing dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck reports process liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "sentinel-backend"})
}

// Readiness reports 503 until every named dependency answers a ping.
func Readiness(deps map[string]Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		failures := gin.H{}
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				failures[name] = err.Error()
			}
		}
		if len(failures) > 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "failures": failures})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

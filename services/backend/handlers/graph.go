// Copyright (C) 2025 Sentinel AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type graphNode struct {
	ID           string `json:"id"`
	Label        string `json:"label"`
	FunctionName string `json:"function_name"`
	Repo         string `json:"repo"`
	Status       string `json:"status"`
	VulnType     string `json:"vuln_type"`
	Confidence   int    `json:"confidence"`
	Reasoning    string `json:"reasoning"`
	FilePath     string `json:"file_path"`
}

type graphStats struct {
	Total      int `json:"total"`
	Vulnerable int `json:"vulnerable"`
	Clean      int `json:"clean"`
}

// GraphData materialises a vulnerability graph over the most recent
// scans. Nodes are deduplicated on repo:function:path.
func GraphData(st DashboardStore) gin.HandlerFunc {
	empty := gin.H{"nodes": []graphNode{}, "stats": graphStats{}}
	return func(c *gin.Context) {
		scans, err := st.RecentScans(c.Request.Context(), recentScanLimit)
		if err != nil {
			c.JSON(http.StatusOK, empty)
			return
		}

		nodes := []graphNode{}
		seen := map[string]bool{}
		for _, scan := range scans {
			for _, v := range scan.Vulnerabilities {
				key := scan.RepoName + ":" + v.FunctionName + ":" + v.Path
				if seen[key] {
					continue
				}
				seen[key] = true

				label := v.FunctionName
				if v.Path != "" {
					method := v.Method
					if method == "" {
						method = "FUNCTION"
					}
					label = method + " " + v.Path
				}
				nodes = append(nodes, graphNode{
					ID:           key,
					Label:        label,
					FunctionName: v.FunctionName,
					Repo:         scan.RepoName,
					Status:       "vulnerable",
					VulnType:     v.Kind,
					Confidence:   int(v.Confidence),
					Reasoning:    v.Reasoning,
					FilePath:     v.FilePath,
				})
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"nodes": nodes,
			"stats": graphStats{
				Total:      len(nodes),
				Vulnerable: len(nodes),
				Clean:      0,
			},
		})
	}
}

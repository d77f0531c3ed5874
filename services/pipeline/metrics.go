// Copyright (C) 2025 Sentinel AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_scans_total",
		Help: "Completed scans by resulting severity.",
	}, []string{"severity"})

	scanFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_scan_failures_total",
		Help: "Scans that failed before a result was persisted.",
	})

	vulnerabilitiesFound = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_vulnerabilities_found_total",
		Help: "Confirmed vulnerabilities across all scans.",
	})

	scanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sentinel_scan_duration_seconds",
		Help:    "End-to-end scan duration.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
)

func observeScan(severity string, vulnCount int, elapsed time.Duration) {
	scansTotal.WithLabelValues(severity).Inc()
	vulnerabilitiesFound.Add(float64(vulnCount))
	scanDuration.Observe(elapsed.Seconds())
}

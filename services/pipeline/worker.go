// Copyright (C) 2025 Sentinel AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// JobSource supplies scan requests to a Worker.
type JobSource interface {
	Dequeue(ctx context.Context, timeout time.Duration) (ScanRequest, bool, error)
}

// Worker consumes the scan queue and runs each job through the
// orchestrator. One worker processes one scan at a time; reviewer
// concurrency lives inside the orchestrator.
type Worker struct {
	queue        JobSource
	orchestrator *Orchestrator
	popTimeout   time.Duration
}

// NewWorker creates a queue consumer.
func NewWorker(queue JobSource, orchestrator *Orchestrator) *Worker {
	return &Worker{queue: queue, orchestrator: orchestrator, popTimeout: 5 * time.Second}
}

// Run blocks until ctx is cancelled, processing scan requests as they
// arrive. A failed scan is logged and dropped; the queue holds no retry
// state.
func (w *Worker) Run(ctx context.Context) {
	slog.Info("Scan worker started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("Scan worker stopping")
			return
		default:
		}

		req, ok, err := w.queue.Dequeue(ctx, w.popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("Scan worker stopping")
				return
			}
			slog.Error("Failed to dequeue scan request", "error", err)
			time.Sleep(2 * time.Second)
			continue
		}
		if !ok {
			continue
		}

		logger := slog.With("request_id", req.ID, "repo", req.Repo)
		logger.Info("Processing scan request")
		if _, err := w.orchestrator.Run(ctx, req); err != nil {
			scanFailures.Inc()
			logger.Error("Scan failed", "error", err)
		}
	}
}

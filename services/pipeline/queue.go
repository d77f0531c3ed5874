// Copyright (C) 2025 Sentinel AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ScanQueueKey is the Redis list the backend pushes scan requests onto and
// workers pop from.
const ScanQueueKey = "sentinel:scan_queue"

// ScanRequest is one queued scan job.
type ScanRequest struct {
	ID      string `json:"id"`
	Repo    string `json:"repo"`
	Branch  string `json:"branch"`
	Commit  string `json:"commit"`
	DiffURL string `json:"diff_url,omitempty"`
}

// Queue is the Redis-backed scan job queue.
type Queue struct {
	rdb *redis.Client
}

// NewQueue wraps an existing Redis client.
func NewQueue(rdb *redis.Client) *Queue { return &Queue{rdb: rdb} }

// DialQueue connects to Redis and verifies the connection.
func DialQueue(ctx context.Context, addr, password string, db int) (*Queue, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	slog.Info("Connected to Redis", "addr", addr)
	return &Queue{rdb: rdb}, nil
}

// Close releases the Redis connection.
func (q *Queue) Close() error { return q.rdb.Close() }

// Ping reports broker reachability for readiness probes.
func (q *Queue) Ping(ctx context.Context) error { return q.rdb.Ping(ctx).Err() }

// Enqueue pushes one scan request. An empty ID is filled in; the ID ties
// worker log lines back to the enqueueing request.
func (q *Queue) Enqueue(ctx context.Context, req ScanRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode scan request: %w", err)
	}
	if err := q.rdb.LPush(ctx, ScanQueueKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue scan request: %w", err)
	}
	slog.Info("Scan queued", "request_id", req.ID, "repo", req.Repo)
	return nil
}

// Dequeue blocks up to timeout for the next scan request. Returns ok=false
// when the queue stayed empty.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (ScanRequest, bool, error) {
	var req ScanRequest
	res, err := q.rdb.BRPop(ctx, timeout, ScanQueueKey).Result()
	if errors.Is(err, redis.Nil) {
		return req, false, nil
	}
	if err != nil {
		return req, false, fmt.Errorf("failed to pop scan request: %w", err)
	}
	// BRPOP returns [key, value].
	if len(res) != 2 {
		return req, false, fmt.Errorf("unexpected BRPOP reply length %d", len(res))
	}
	if err := json.Unmarshal([]byte(res[1]), &req); err != nil {
		return req, false, fmt.Errorf("failed to decode scan request: %w", err)
	}
	return req, true, nil
}

// Depth returns the number of queued scan requests.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, ScanQueueKey).Result()
}

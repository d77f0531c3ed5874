// Copyright (C) 2025 Sentinel AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package proxy is a pass-through forwarder that lets containers reach a
// model server running on another host. It relays every request verbatim
// and shields callers from nothing but hop-by-hop headers.
package proxy

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// forwardTimeout covers the slowest model completions.
const forwardTimeout = 120 * time.Second

// hopByHopHeaders are stripped in both directions.
var hopByHopHeaders = map[string]bool{
	"host":              true,
	"connection":        true,
	"transfer-encoding": true,
}

// Forwarder relays requests to the target model host.
type Forwarder struct {
	target string
	client *http.Client
}

// NewForwarder creates a forwarder to the target base URL.
func NewForwarder(target string) *Forwarder {
	return &Forwarder{
		target: strings.TrimRight(target, "/"),
		client: &http.Client{Timeout: forwardTimeout},
	}
}

// ServeHTTP forwards the request and relays status, headers and body
// verbatim. Any forwarding failure yields 502 with the error text.
func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	url := f.target + r.URL.RequestURI()

	upstream, err := http.NewRequestWithContext(r.Context(), r.Method, url, r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	for name, values := range r.Header {
		if hopByHopHeaders[strings.ToLower(name)] {
			continue
		}
		for _, v := range values {
			upstream.Header.Add(name, v)
		}
	}

	resp, err := f.client.Do(upstream)
	if err != nil {
		slog.Error("Forwarding failed", "url", url, "error", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	header := w.Header()
	for name, values := range resp.Header {
		if hopByHopHeaders[strings.ToLower(name)] {
			continue
		}
		for _, v := range values {
			header.Add(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		slog.Warn("Response relay interrupted", "url", url, "error", err)
	}
}

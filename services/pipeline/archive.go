// Copyright (C) 2025 Sentinel AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pipeline runs security scans end to end: fetch the repository
// archive, extract endpoints and functions, fan the items out to the
// reviewers, merge opinions into verdicts, and persist one scan result.
package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultArchiveBase is the code host serving branch archives.
const DefaultArchiveBase = "https://github.com"

// archiveTimeout bounds the repository download.
const archiveTimeout = 30 * time.Second

// maxFileSize guards the extractor against pathological archive members.
const maxFileSize = 2 << 20

// Fetcher downloads and extracts repository archives.
type Fetcher struct {
	base   string
	client *http.Client
}

// NewFetcher creates a Fetcher against the default code host.
func NewFetcher() *Fetcher {
	return &Fetcher{
		base:   DefaultArchiveBase,
		client: &http.Client{Timeout: archiveTimeout},
	}
}

// NewFetcherWithBase overrides the code host, used by tests.
func NewFetcherWithBase(base string) *Fetcher {
	f := NewFetcher()
	f.base = strings.TrimRight(base, "/")
	return f
}

// Fetch downloads the branch archive for repo ("owner/name"). When the
// requested branch is "main" and the host answers 404, "master" is retried
// once before giving up.
func (f *Fetcher) Fetch(ctx context.Context, repo, branch string) ([]byte, error) {
	data, status, err := f.download(ctx, repo, branch)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound && branch == "main" {
		slog.Info("main branch not found, trying master", "repo", repo)
		data, status, err = f.download(ctx, repo, "master")
		if err != nil {
			return nil, err
		}
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("archive download for %s returned HTTP %d", repo, status)
	}
	return data, nil
}

func (f *Fetcher) download(ctx context.Context, repo, branch string) ([]byte, int, error) {
	url := fmt.Sprintf("%s/%s/archive/refs/heads/%s.zip", f.base, repo, branch)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build archive request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to download archive: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read archive body: %w", err)
	}
	return data, resp.StatusCode, nil
}

// Extract unzips archive data into dir. Member paths are confined to dir;
// entries escaping it make the whole archive invalid.
func Extract(data []byte, dir string) error {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("invalid zip archive: %w", err)
	}
	for _, member := range reader.File {
		target := filepath.Join(dir, filepath.Clean(member.Name))
		if !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) {
			return fmt.Errorf("archive member %q escapes extraction dir", member.Name)
		}
		if member.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create dir %s: %w", target, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("failed to create parent dir for %s: %w", target, err)
		}
		src, err := member.Open()
		if err != nil {
			return fmt.Errorf("failed to open archive member %s: %w", member.Name, err)
		}
		dst, err := os.Create(target)
		if err != nil {
			src.Close()
			return fmt.Errorf("failed to create %s: %w", target, err)
		}
		_, err = io.Copy(dst, io.LimitReader(src, maxFileSize))
		src.Close()
		dst.Close()
		if err != nil {
			return fmt.Errorf("failed to extract %s: %w", member.Name, err)
		}
	}
	return nil
}

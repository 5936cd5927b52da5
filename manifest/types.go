// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package manifest provides content fingerprinting over a source tree.
//
// A Manifest records one SHA-256 hash per tracked file. The combined
// fingerprint of a manifest is the hash of the sorted "path:hash" lines;
// the pipeline uses it to decide whether a step must rerun.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Default include/exclude patterns for Django-style source trees.
var (
	// DefaultIncludes are the glob patterns for files the pipeline tracks.
	DefaultIncludes = []string{
		"**/*.py",
		"requirements*.txt",
		"**/requirements*.txt",
	}

	// DefaultExcludes are the glob patterns always skipped.
	DefaultExcludes = []string{
		"**/.git/**",
		"**/__pycache__/**",
		"**/node_modules/**",
		"**/.venv/**",
		"**/venv/**",
		"**/*.pyc",
		"**/migrations/**",
	}
)

// FileEntry records the hash of one tracked file.
type FileEntry struct {
	// Path is relative to the scanned root, forward slashes.
	Path string `json:"path"`

	// Hash is the lowercase hex SHA-256 of the file content.
	Hash string `json:"hash"`

	// Size is the file size in bytes at hash time.
	Size int64 `json:"size"`

	// Mtime is the modification time in Unix nanoseconds at hash time.
	Mtime int64 `json:"mtime"`
}

// Validate checks that the entry is structurally sound.
func (e FileEntry) Validate() error {
	if e.Path == "" {
		return fmt.Errorf("file entry has empty path")
	}
	if len(e.Hash) != 64 {
		return fmt.Errorf("file entry %s: hash length %d, want 64", e.Path, len(e.Hash))
	}
	return nil
}

// ScanError records a non-fatal problem encountered during a scan.
type ScanError struct {
	Path string `json:"path"`
	Err  error  `json:"-"`
	Msg  string `json:"error"`
}

// Manifest is the result of scanning a source tree.
type Manifest struct {
	// Root is the absolute path that was scanned.
	Root string `json:"root"`

	// Files maps relative path to its entry.
	Files map[string]FileEntry `json:"files"`

	// Errors lists non-fatal scan problems.
	Errors []ScanError `json:"errors,omitempty"`

	// Incomplete is true when the scan was cancelled before finishing.
	Incomplete bool `json:"incomplete,omitempty"`

	// UpdatedAtMilli is when the scan finished, Unix milliseconds.
	UpdatedAtMilli int64 `json:"updated_at_milli"`
}

// NewManifest creates an empty manifest for the given root.
func NewManifest(root string) *Manifest {
	return &Manifest{
		Root:  root,
		Files: make(map[string]FileEntry),
	}
}

// Paths returns the tracked paths in sorted order.
func (m *Manifest) Paths() []string {
	paths := make([]string, 0, len(m.Files))
	for p := range m.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Fingerprint combines the per-file hashes into one overall hash: the
// SHA-256 of the sorted "path:hash" lines joined by newlines. Two manifests
// over identical content produce identical fingerprints regardless of scan
// order or mtimes.
func (m *Manifest) Fingerprint() string {
	lines := make([]string, 0, len(m.Files))
	for _, p := range m.Paths() {
		lines = append(lines, p+":"+m.Files[p].Hash)
	}
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}

// Touch sets UpdatedAtMilli to now.
func (m *Manifest) Touch() {
	m.UpdatedAtMilli = time.Now().UnixMilli()
}

// Changes is the difference between two manifests.
type Changes struct {
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
	Deleted  []string `json:"deleted"`
}

// Empty reports whether no file changed.
func (c *Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Modified) == 0 && len(c.Deleted) == 0
}

// All returns every changed path, in added/modified/deleted order.
func (c *Changes) All() []string {
	out := make([]string, 0, len(c.Added)+len(c.Modified)+len(c.Deleted))
	out = append(out, c.Added...)
	out = append(out, c.Modified...)
	out = append(out, c.Deleted...)
	return out
}

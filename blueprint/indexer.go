// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package blueprint builds a per-file inventory of a source tree.
//
// A blueprint records the path, content hash, and optionally the raw text
// and line count of every tracked file. Unlike the manifest scan, blueprint
// indexing treats I/O errors as fatal: an inventory with silently missing
// files is worse than no inventory.
package blueprint

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/substratelabs/atlas/manifest"
)

// Blueprint is the inventory entry for a single tracked file.
type Blueprint struct {
	FilePath  string `json:"file_path"`
	SHA256    string `json:"sha256"`
	LineCount int    `json:"line_count,omitempty"`
	RawText   string `json:"raw_text,omitempty"`
}

// Inventory is the full blueprint set for a source tree.
type Inventory struct {
	Root             string      `json:"root"`
	Files            []Blueprint `json:"files"`
	GeneratedAtMilli int64       `json:"generated_at_ms"`
}

// ByPath returns the blueprint for a relative path, or nil.
func (inv *Inventory) ByPath(relPath string) *Blueprint {
	for i := range inv.Files {
		if inv.Files[i].FilePath == relPath {
			return &inv.Files[i]
		}
	}
	return nil
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithMatcher sets the include/exclude matcher.
func WithMatcher(m *manifest.Matcher) IndexerOption {
	return func(ix *Indexer) { ix.matcher = m }
}

// WithStoreRawText controls whether file contents are kept in the inventory.
func WithStoreRawText(store bool) IndexerOption {
	return func(ix *Indexer) { ix.storeRawText = store }
}

// WithStoreLines controls whether line counts are recorded.
func WithStoreLines(store bool) IndexerOption {
	return func(ix *Indexer) { ix.storeLines = store }
}

// Indexer walks a source tree and produces an Inventory.
//
// Thread Safety: Indexer is safe for concurrent use after construction.
type Indexer struct {
	matcher      *manifest.Matcher
	hasher       manifest.Hasher
	storeRawText bool
	storeLines   bool
}

// NewIndexer creates an Indexer. Raw text storage defaults to on.
func NewIndexer(opts ...IndexerOption) *Indexer {
	ix := &Indexer{
		matcher:      manifest.DefaultMatcher(),
		hasher:       manifest.NewSHA256Hasher(manifest.DefaultMaxFileSize),
		storeRawText: true,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Build walks root and returns the inventory, sorted by path.
//
// Any I/O error aborts the build. A cancelled context aborts the build.
func (ix *Indexer) Build(ctx context.Context, root string) (*Inventory, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("blueprint root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("blueprint root %s is not a directory", root)
	}

	start := time.Now()
	inv := &Inventory{Root: root}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fmt.Errorf("walk %s: %w", path, walkErr)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("relativize %s: %w", path, err)
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && ix.matcher.ExcludesDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !ix.matcher.Match(rel) {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		bp := Blueprint{
			FilePath: rel,
			SHA256:   ix.hasher.HashBytes(content),
		}
		if ix.storeRawText {
			bp.RawText = string(content)
		}
		if ix.storeLines {
			bp.LineCount = countLines(content)
		}
		inv.Files = append(inv.Files, bp)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(inv.Files, func(i, j int) bool {
		return inv.Files[i].FilePath < inv.Files[j].FilePath
	})
	inv.GeneratedAtMilli = time.Now().UnixMilli()

	slog.Info("blueprint inventory built",
		slog.String("root", root),
		slog.Int("files", len(inv.Files)),
		slog.Duration("elapsed", time.Since(start)))
	return inv, nil
}

// countLines counts newline-terminated lines, counting a trailing partial
// line as a line.
func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := strings.Count(string(content), "\n")
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}

// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package manifest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultMaxFileSize is the largest file the scanner will hash (10MB).
const DefaultMaxFileSize = 10 * 1024 * 1024

// DefaultMaxRetries is the retry budget for atomic hashing.
const DefaultMaxRetries = 3

// ErrInvalidRoot indicates the scan root is missing or not a directory.
var ErrInvalidRoot = errors.New("invalid scan root")

// Manager scans source trees into manifests and diffs them.
//
// Thread Safety: Manager is safe for concurrent use.
type Manager struct {
	hasher      Hasher
	matcher     *Matcher
	maxFileSize int64
	maxRetries  int
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithMatcher sets a custom include/exclude matcher.
func WithMatcher(m *Matcher) ManagerOption {
	return func(mgr *Manager) { mgr.matcher = m }
}

// WithHasher sets a custom hasher.
func WithHasher(h Hasher) ManagerOption {
	return func(mgr *Manager) { mgr.hasher = h }
}

// WithMaxFileSize sets the per-file size limit for hashing.
func WithMaxFileSize(bytes int64) ManagerOption {
	return func(mgr *Manager) { mgr.maxFileSize = bytes }
}

// NewManager creates a Manager with the given options.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		maxFileSize: DefaultMaxFileSize,
		maxRetries:  DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.hasher == nil {
		m.hasher = NewSHA256Hasher(m.maxFileSize)
	}
	if m.matcher == nil {
		m.matcher = DefaultMatcher()
	}
	return m
}

// Scan walks root and hashes every tracked file.
//
// Directory read errors below the root are recorded in Errors and the scan
// continues; a missing or non-directory root is fatal. Symlinks are not
// followed. Cancellation returns the partial manifest with Incomplete set.
func (m *Manager) Scan(ctx context.Context, root string) (*Manifest, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoot, err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidRoot, absRoot)
	}

	manifest := NewManifest(absRoot)
	if err := m.scanDir(ctx, absRoot, absRoot, manifest); err != nil {
		if ctx.Err() != nil {
			manifest.Incomplete = true
			return manifest, nil
		}
		return manifest, err
	}
	manifest.Touch()
	return manifest, nil
}

func (m *Manager) scanDir(ctx context.Context, root, dir string, manifest *Manifest) error {
	select {
	case <-ctx.Done():
		manifest.Incomplete = true
		return ctx.Err()
	default:
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		relPath, _ := filepath.Rel(root, dir)
		manifest.Errors = append(manifest.Errors, ScanError{Path: relPath, Err: err, Msg: err.Error()})
		return nil
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		relPath, err := filepath.Rel(root, path)
		if err != nil {
			manifest.Errors = append(manifest.Errors, ScanError{Path: path, Err: err, Msg: err.Error()})
			continue
		}
		relSlash := filepath.ToSlash(relPath)

		info, err := os.Lstat(path)
		if err != nil {
			manifest.Errors = append(manifest.Errors, ScanError{Path: relSlash, Err: err, Msg: err.Error()})
			continue
		}
		if info.Mode()&os.ModeSymlink != 0 {
			continue
		}

		if info.IsDir() {
			if m.matcher.ExcludesDir(relSlash) {
				continue
			}
			if err := m.scanDir(ctx, root, path, manifest); err != nil {
				return err
			}
			continue
		}

		if !m.matcher.Match(relSlash) {
			continue
		}
		if m.maxFileSize > 0 && info.Size() > m.maxFileSize {
			manifest.Errors = append(manifest.Errors, ScanError{
				Path: relSlash,
				Err:  ErrFileTooLarge,
				Msg:  fmt.Sprintf("file too large: %d bytes", info.Size()),
			})
			continue
		}

		fe, err := m.hasher.HashFileAtomic(path, m.maxRetries)
		if err != nil {
			manifest.Errors = append(manifest.Errors, ScanError{Path: relSlash, Err: err, Msg: err.Error()})
			continue
		}
		fe.Path = relSlash
		manifest.Files[relSlash] = fe
	}
	return nil
}

// Diff compares two manifests by hash. A nil old manifest reports every
// file in new as added.
func (m *Manager) Diff(old, current *Manifest) *Changes {
	changes := &Changes{
		Added:    make([]string, 0),
		Modified: make([]string, 0),
		Deleted:  make([]string, 0),
	}

	if old == nil {
		for path := range current.Files {
			changes.Added = append(changes.Added, path)
		}
		return changes
	}

	for path, entry := range current.Files {
		oldEntry, exists := old.Files[path]
		if !exists {
			changes.Added = append(changes.Added, path)
		} else if oldEntry.Hash != entry.Hash {
			changes.Modified = append(changes.Modified, path)
		}
	}
	for path := range old.Files {
		if _, exists := current.Files[path]; !exists {
			changes.Deleted = append(changes.Deleted, path)
		}
	}
	return changes
}

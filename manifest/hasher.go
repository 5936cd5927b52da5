// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

// Sentinel errors for hashing.
var (
	// ErrFileTooLarge indicates a file exceeding the hasher's size limit.
	ErrFileTooLarge = errors.New("file exceeds maximum size")

	// ErrFileChangedDuringHash indicates the file was modified while being
	// hashed, and retries were exhausted.
	ErrFileChangedDuringHash = errors.New("file changed during hashing")
)

// Hasher computes content hashes for files.
type Hasher interface {
	// HashFile returns the lowercase hex hash of the file at path.
	HashFile(path string) (string, error)

	// HashBytes returns the lowercase hex hash of the given content.
	HashBytes(content []byte) string

	// HashFileAtomic hashes a file and captures its size and mtime,
	// retrying when the file changes mid-read.
	HashFileAtomic(path string, maxRetries int) (FileEntry, error)
}

// SHA256Hasher is the standard Hasher implementation.
//
// Thread Safety: SHA256Hasher is stateless and safe for concurrent use.
type SHA256Hasher struct {
	maxFileSize int64
}

// NewSHA256Hasher creates a hasher. maxFileSize of 0 disables the limit.
func NewSHA256Hasher(maxFileSize int64) *SHA256Hasher {
	return &SHA256Hasher{maxFileSize: maxFileSize}
}

// HashBytes returns the lowercase hex SHA-256 of content.
func (h *SHA256Hasher) HashBytes(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// HashFile returns the lowercase hex SHA-256 of the file at path.
func (h *SHA256Hasher) HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if h.maxFileSize > 0 {
		info, err := f.Stat()
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", path, err)
		}
		if info.Size() > h.maxFileSize {
			return "", fmt.Errorf("%w: %s is %d bytes", ErrFileTooLarge, path, info.Size())
		}
	}

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// HashFileAtomic hashes a file and records size/mtime from the same
// observation. If the file's mtime or size differs before and after
// hashing, the read is retried up to maxRetries times.
func (h *SHA256Hasher) HashFileAtomic(path string, maxRetries int) (FileEntry, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		before, err := os.Lstat(path)
		if err != nil {
			return FileEntry{}, fmt.Errorf("stat %s: %w", path, err)
		}
		if h.maxFileSize > 0 && before.Size() > h.maxFileSize {
			return FileEntry{}, fmt.Errorf("%w: %s is %d bytes", ErrFileTooLarge, path, before.Size())
		}

		hash, err := h.HashFile(path)
		if err != nil {
			return FileEntry{}, err
		}

		after, err := os.Lstat(path)
		if err != nil {
			return FileEntry{}, fmt.Errorf("stat %s: %w", path, err)
		}

		if before.ModTime().Equal(after.ModTime()) && before.Size() == after.Size() {
			return FileEntry{
				Path:  path,
				Hash:  hash,
				Size:  after.Size(),
				Mtime: after.ModTime().UnixNano(),
			}, nil
		}
	}

	return FileEntry{}, fmt.Errorf("%w: %s after %d attempts", ErrFileChangedDuringHash, path, maxRetries)
}

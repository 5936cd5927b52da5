// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pipeline orchestrates the generation steps and their incremental
// state.
//
// The pipeline is deliberately single-flight: one Run executes steps in
// dependency order, skipping any step whose recorded fingerprint still
// matches the source tree. Optional stages (impact, verification seeding)
// are isolated; their failures are recorded but never abort a run.
package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/substratelabs/atlas/manifest"
)

// Step names, in execution order.
const (
	StepBlueprints    = "blueprints"
	StepArtifacts     = "artifacts"
	StepRelationships = "relationships"
)

// stepOrder is the canonical execution order. A step rerunning forces every
// downstream step to rerun.
var stepOrder = []string{StepBlueprints, StepArtifacts, StepRelationships}

// StepState records one step's last successful completion.
type StepState struct {
	DoneAtMilli    int64  `json:"done_at_ms"`
	SrcFingerprint string `json:"src_fingerprint"`
	OutputHash     string `json:"output_hash"`
}

// MetaState is the persistent incremental state of a workspace. It survives
// across runs in meta_state.json; step outputs themselves are regenerated
// wholesale whenever their step runs.
type MetaState struct {
	Steps map[string]StepState `json:"steps"`

	// Dirty forces every step stale on the next run, regardless of
	// fingerprints. Set by the patch engine and the watcher.
	Dirty       bool   `json:"dirty"`
	DirtyReason string `json:"dirty_reason,omitempty"`

	LastRunID      string             `json:"last_run_id,omitempty"`
	Manifest       *manifest.Manifest `json:"manifest,omitempty"`
	UpdatedAtMilli int64              `json:"updated_at_ms"`
}

// LoadState reads meta state from path. A missing file yields fresh empty
// state; a corrupt file is an error.
func LoadState(path string) (*MetaState, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &MetaState{Steps: make(map[string]StepState)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read meta state: %w", err)
	}
	var st MetaState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse meta state %s: %w", path, err)
	}
	if st.Steps == nil {
		st.Steps = make(map[string]StepState)
	}
	return &st, nil
}

// Save writes the state atomically (temp file + rename).
func (s *MetaState) Save(path string) error {
	s.UpdatedAtMilli = time.Now().UnixMilli()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal meta state: %w", err)
	}
	return writeFileAtomic(path, data)
}

// MarkDirty flags the workspace so the next run regenerates everything.
func (s *MetaState) MarkDirty(reason string) {
	s.Dirty = true
	s.DirtyReason = reason
}

// StepStale decides whether a step must rerun: the workspace is dirty, the
// step never completed, the source fingerprint moved, or the step output
// file is missing.
func (s *MetaState) StepStale(step, fingerprint, outputPath string) (bool, string) {
	if s.Dirty {
		return true, "workspace dirty: " + s.DirtyReason
	}
	prev, ok := s.Steps[step]
	if !ok {
		return true, "never ran"
	}
	if prev.SrcFingerprint != fingerprint {
		return true, "source fingerprint changed"
	}
	if _, err := os.Stat(outputPath); err != nil {
		return true, "output missing"
	}
	return false, ""
}

// RecordStep stores a successful completion.
func (s *MetaState) RecordStep(step, fingerprint, outputHash string) {
	s.Steps[step] = StepState{
		DoneAtMilli:    time.Now().UnixMilli(),
		SrcFingerprint: fingerprint,
		OutputHash:     outputHash,
	}
}

// writeFileAtomic writes data via a temp file in the target directory and
// renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".atlas-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}

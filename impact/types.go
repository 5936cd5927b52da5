// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package impact computes which artifacts and relationships a patch
// touches, and how far the effect propagates through the graph.
package impact

import "github.com/substratelabs/atlas/patch"

// FileChange is one patched file as seen by the analyzer. Nil Ranges
// means the whole file changed.
type FileChange struct {
	Path   string            `json:"path"`
	Ranges []patch.LineRange `json:"ranges,omitempty"`
}

// AffectedArtifact is an artifact whose anchor intersects a change.
type AffectedArtifact struct {
	ArtifactID string `json:"artifact_id"`
	Type       string `json:"type"`
	Name       string `json:"name"`
	FilePath   string `json:"file_path"`
	Reason     string `json:"reason"`
}

// BlastNode is one node reached by the downstream walk.
type BlastNode struct {
	Key   string `json:"key"`
	Depth int    `json:"depth"`
}

// BlastRadius summarizes the bounded downstream walk from the affected
// artifacts.
type BlastRadius struct {
	Size        int         `json:"size"`
	MaxDepth    int         `json:"max_depth"`
	Truncated   bool        `json:"truncated"`
	Nodes       []BlastNode `json:"nodes,omitempty"`
	SamplePaths [][]string  `json:"sample_paths,omitempty"`
}

// SnapshotDiff compares the current artifact set against a previous
// snapshot. It is advisory; Error records why it could not be computed.
type SnapshotDiff struct {
	Added    []string `json:"added,omitempty"`
	Removed  []string `json:"removed,omitempty"`
	Modified []string `json:"modified,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Report is the persisted output of one impact analysis.
type Report struct {
	PatchID                    string             `json:"patch_id,omitempty"`
	GeneratedAtMilli           int64              `json:"generated_at_ms"`
	ChangedFiles               []FileChange       `json:"changed_files,omitempty"`
	AffectedArtifacts          []AffectedArtifact `json:"affected_artifacts,omitempty"`
	InvalidatedRelationshipIDs []string           `json:"invalidated_relationship_ids,omitempty"`
	BlastRadius                BlastRadius        `json:"blast_radius"`
	SnapshotDiff               *SnapshotDiff      `json:"snapshot_diff,omitempty"`
}

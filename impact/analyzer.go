// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package impact

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/substratelabs/atlas/artifact"
	"github.com/substratelabs/atlas/patch"
)

// Default bounds for the downstream walk.
const (
	DefaultMaxNodes    = 500
	DefaultMaxDepth    = 10
	DefaultSamplePaths = 10
)

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithMaxNodes bounds the number of nodes the downstream walk visits.
func WithMaxNodes(n int) AnalyzerOption {
	return func(a *Analyzer) {
		if n > 0 {
			a.maxNodes = n
		}
	}
}

// WithMaxDepth bounds how deep the downstream walk goes.
func WithMaxDepth(n int) AnalyzerOption {
	return func(a *Analyzer) {
		if n > 0 {
			a.maxDepth = n
		}
	}
}

// WithSamplePaths bounds how many reconstructed paths the report carries.
func WithSamplePaths(n int) AnalyzerOption {
	return func(a *Analyzer) {
		if n >= 0 {
			a.samplePaths = n
		}
	}
}

// Analyzer computes impact reports from patch records and graph
// snapshots. The zero bounds are filled in by NewAnalyzer.
type Analyzer struct {
	maxNodes    int
	maxDepth    int
	samplePaths int
}

// NewAnalyzer returns an Analyzer with default walk bounds.
func NewAnalyzer(opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		maxNodes:    DefaultMaxNodes,
		maxDepth:    DefaultMaxDepth,
		samplePaths: DefaultSamplePaths,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze computes the impact of rec against the given artifact and
// relationship snapshot. A nil record, or a record with no applied file
// detail, treats every source file as changed. prev is an optional
// earlier artifact snapshot for the advisory diff; nil skips it.
func (a *Analyzer) Analyze(ctx context.Context, rec *patch.Record, arts []*artifact.Artifact, rels []*artifact.Relationship, prev []*artifact.Artifact) *Report {
	start := time.Now()
	ctx, span := startAnalysisSpan(ctx, patchID(rec), len(arts), len(rels))
	defer span.End()

	rep := &Report{
		PatchID:          patchID(rec),
		GeneratedAtMilli: start.UnixMilli(),
	}

	changed := changedFiles(rec)
	rep.ChangedFiles = changed

	affected, affectedIDs := affectedArtifacts(arts, changed)
	rep.AffectedArtifacts = affected
	rep.InvalidatedRelationshipIDs = invalidatedRelationships(rels, affectedIDs)
	rep.BlastRadius = a.walkDownstream(affectedIDs, rels)
	if prev != nil {
		rep.SnapshotDiff = diffSnapshots(prev, arts)
	}

	recordAnalysisMetrics(ctx, time.Since(start), len(affected))
	slog.Info("impact analysis complete",
		slog.String("patch_id", rep.PatchID),
		slog.Int("changed_files", len(changed)),
		slog.Int("affected_artifacts", len(affected)),
		slog.Int("invalidated_relationships", len(rep.InvalidatedRelationshipIDs)),
		slog.Int("blast_radius", rep.BlastRadius.Size),
	)
	return rep
}

// Save persists the report to the canonical path and, when the report
// carries a patch ID, to perPatchDir/impact_<patch_id>.json.
func Save(rep *Report, canonicalPath, perPatchDir string) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("encode impact report: %w", err)
	}
	if err := writeAtomic(canonicalPath, data); err != nil {
		return fmt.Errorf("write impact report: %w", err)
	}
	if rep.PatchID != "" {
		perPatch := filepath.Join(perPatchDir, "impact_"+rep.PatchID+".json")
		if err := writeAtomic(perPatch, data); err != nil {
			return fmt.Errorf("write per-patch impact report: %w", err)
		}
	}
	return nil
}

// Load reads a previously persisted impact report.
func Load(path string) (*Report, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read impact report: %w", err)
	}
	var rep Report
	if err := json.Unmarshal(raw, &rep); err != nil {
		return nil, fmt.Errorf("decode impact report: %w", err)
	}
	return &rep, nil
}

func patchID(rec *patch.Record) string {
	if rec == nil {
		return ""
	}
	return rec.PatchID
}

// changedFiles extracts per-file change detail from the record. Nil means
// no detail: callers must treat every file as changed.
func changedFiles(rec *patch.Record) []FileChange {
	if rec == nil {
		return nil
	}
	byFile := rec.ChangedFiles()
	if len(byFile) == 0 {
		return nil
	}
	out := make([]FileChange, 0, len(byFile))
	for path, ranges := range byFile {
		out = append(out, FileChange{Path: path, Ranges: ranges})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// affectedArtifacts selects artifacts in changed files whose anchors
// overlap the changed ranges. With no change detail every artifact is
// affected.
func affectedArtifacts(arts []*artifact.Artifact, changed []FileChange) ([]AffectedArtifact, map[string]bool) {
	ids := make(map[string]bool)
	var out []AffectedArtifact

	add := func(art *artifact.Artifact, reason string) {
		if ids[art.ID] {
			return
		}
		ids[art.ID] = true
		out = append(out, AffectedArtifact{
			ArtifactID: art.ID,
			Type:       string(art.Kind),
			Name:       art.Name,
			FilePath:   art.FilePath,
			Reason:     reason,
		})
	}

	if changed == nil {
		for _, art := range arts {
			add(art, "no per-file change detail; all files treated as changed")
		}
		return out, ids
	}

	byPath := make(map[string]FileChange, len(changed))
	for _, fc := range changed {
		byPath[fc.Path] = fc
	}
	for _, art := range arts {
		fc, ok := byPath[art.FilePath]
		if !ok {
			continue
		}
		if fc.Ranges == nil {
			add(art, "file rewritten")
			continue
		}
		for _, r := range fc.Ranges {
			if art.Anchor.Overlaps(r.Start, r.End) {
				add(art, fmt.Sprintf("anchor overlaps changed lines %d-%d", r.Start, r.End))
				break
			}
		}
	}
	return out, ids
}

// invalidatedRelationships returns IDs of relationships with either
// endpoint in the affected set, sorted for stable output.
func invalidatedRelationships(rels []*artifact.Relationship, affected map[string]bool) []string {
	var out []string
	for _, rel := range rels {
		if affected[rel.From.ArtifactID] || affected[rel.To.ArtifactID] {
			out = append(out, rel.ID)
		}
	}
	sort.Strings(out)
	return out
}

// walkDownstream runs a bounded breadth-first walk over forward edges
// starting from the affected artifacts.
func (a *Analyzer) walkDownstream(affected map[string]bool, rels []*artifact.Relationship) BlastRadius {
	forward := make(map[string][]string)
	for _, rel := range rels {
		from, to := rel.From.Key(), rel.To.Key()
		forward[from] = append(forward[from], to)
	}

	var radius BlastRadius
	visited := make(map[string]bool)
	parent := make(map[string]string)
	type queued struct {
		key   string
		depth int
	}
	var queue []queued
	for id := range affected {
		visited[id] = true
		queue = append(queue, queued{key: id, depth: 0})
	}
	sort.Slice(queue, func(i, j int) bool { return queue[i].key < queue[j].key })

	var frontier []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth > 0 {
			radius.Nodes = append(radius.Nodes, BlastNode{Key: cur.key, Depth: cur.depth})
			if cur.depth > radius.MaxDepth {
				radius.MaxDepth = cur.depth
			}
		}
		if cur.depth >= a.maxDepth {
			radius.Truncated = true
			continue
		}
		next := append([]string(nil), forward[cur.key]...)
		sort.Strings(next)
		for _, to := range next {
			if visited[to] {
				continue
			}
			if len(visited) >= a.maxNodes {
				radius.Truncated = true
				break
			}
			visited[to] = true
			parent[to] = cur.key
			queue = append(queue, queued{key: to, depth: cur.depth + 1})
			frontier = append(frontier, to)
		}
	}
	radius.Size = len(radius.Nodes)
	radius.SamplePaths = samplePathsFrom(frontier, parent, a.samplePaths)
	return radius
}

// samplePathsFrom reconstructs up to limit root-to-node paths, deepest
// nodes first so samples show the longest propagation chains.
func samplePathsFrom(frontier []string, parent map[string]string, limit int) [][]string {
	if limit == 0 || len(frontier) == 0 {
		return nil
	}
	// Later frontier entries were discovered deeper in the walk.
	var paths [][]string
	for i := len(frontier) - 1; i >= 0 && len(paths) < limit; i-- {
		var rev []string
		for key := frontier[i]; key != ""; key = parent[key] {
			rev = append(rev, key)
			if _, ok := parent[key]; !ok {
				break
			}
		}
		path := make([]string, len(rev))
		for j, key := range rev {
			path[len(rev)-1-j] = key
		}
		paths = append(paths, path)
	}
	return paths
}

// diffSnapshots compares two artifact snapshots. Identity for the
// modified check is kind:name:file, so an artifact that only moved lines
// counts as modified rather than added plus removed.
func diffSnapshots(prev, cur []*artifact.Artifact) *SnapshotDiff {
	identity := func(a *artifact.Artifact) string {
		return string(a.Kind) + ":" + a.Name + ":" + a.FilePath
	}
	prevByID := make(map[string]bool, len(prev))
	prevByIdentity := make(map[string]string, len(prev))
	for _, a := range prev {
		prevByID[a.ID] = true
		prevByIdentity[identity(a)] = a.ID
	}
	curByID := make(map[string]bool, len(cur))
	curByIdentity := make(map[string]bool, len(cur))
	for _, a := range cur {
		curByID[a.ID] = true
		curByIdentity[identity(a)] = true
	}

	diff := &SnapshotDiff{}
	for _, a := range cur {
		if prevByID[a.ID] {
			continue
		}
		if _, moved := prevByIdentity[identity(a)]; moved {
			diff.Modified = append(diff.Modified, a.ID)
		} else {
			diff.Added = append(diff.Added, a.ID)
		}
	}
	for _, a := range prev {
		if curByID[a.ID] {
			continue
		}
		if !curByIdentity[identity(a)] {
			diff.Removed = append(diff.Removed, a.ID)
		}
	}
	sort.Strings(diff.Added)
	sort.Strings(diff.Removed)
	sort.Strings(diff.Modified)
	return diff
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".impact-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package query serves read-only lookups and traces over the artifact
// and relationship payloads.
//
// An Index is explicitly constructed and explicitly reloaded; nothing in
// this package watches the payloads for change.
package query

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/substratelabs/atlas/artifact"
	"github.com/substratelabs/atlas/config"
	"github.com/substratelabs/atlas/pipeline"
)

// Sentinel errors for index and op execution.
var (
	// ErrNotLoaded indicates an Index used before a successful Reload.
	ErrNotLoaded = errors.New("index not loaded")

	// ErrArtifactNotFound indicates a lookup that matched nothing.
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrUnknownOp indicates a RunOp name with no registered handler.
	ErrUnknownOp = errors.New("unknown query op")

	// ErrBadArgs indicates op arguments that failed to decode or validate.
	ErrBadArgs = errors.New("invalid op arguments")
)

// Index holds the loaded snapshot plus lookup tables over it.
//
// Thread Safety: Reload swaps the snapshot under a write lock; all
// lookups take the read lock, so queries may run concurrently with a
// reload.
type Index struct {
	cfg *config.Config

	mu     sync.RWMutex
	loaded bool

	artifacts     []*artifact.Artifact
	relationships []*artifact.Relationship

	byID        map[string]*artifact.Artifact
	byKind      map[artifact.Kind][]*artifact.Artifact
	byName      map[string][]*artifact.Artifact
	byLowerName map[string][]*artifact.Artifact
	byFile      map[string][]*artifact.Artifact

	relsBySourceID  map[string][]*artifact.Relationship
	relsByTargetID  map[string][]*artifact.Relationship
	relsBySourceKey map[string][]*artifact.Relationship
	relsByTargetKey map[string][]*artifact.Relationship
}

// NewIndex returns an empty Index bound to cfg. Call Reload before
// querying.
func NewIndex(cfg *config.Config) *Index {
	return &Index{cfg: cfg}
}

// Reload reads the artifact and relationship payloads from disk and
// rebuilds every lookup table. The previous snapshot stays live until
// the new one is fully built.
func (ix *Index) Reload() error {
	arts, err := pipeline.LoadArtifacts(ix.cfg.Paths.ArtifactsOut)
	if err != nil {
		return fmt.Errorf("load artifacts payload: %w", err)
	}
	rels, err := pipeline.LoadRelationships(ix.cfg.Paths.RelationshipsOut)
	if err != nil {
		return fmt.Errorf("load relationships payload: %w", err)
	}
	ix.Load(arts.Artifacts, rels.Relationships)
	slog.Info("query index reloaded",
		slog.Int("artifacts", len(arts.Artifacts)),
		slog.Int("relationships", len(rels.Relationships)),
	)
	return nil
}

// Load replaces the snapshot with in-memory data. Reload uses it; tests
// and pipeline callers with fresh results in hand may call it directly.
func (ix *Index) Load(arts []*artifact.Artifact, rels []*artifact.Relationship) {
	byID := make(map[string]*artifact.Artifact, len(arts))
	byKind := make(map[artifact.Kind][]*artifact.Artifact)
	byName := make(map[string][]*artifact.Artifact)
	byLowerName := make(map[string][]*artifact.Artifact)
	byFile := make(map[string][]*artifact.Artifact)
	for _, a := range arts {
		byID[a.ID] = a
		byKind[a.Kind] = append(byKind[a.Kind], a)
		byName[a.Name] = append(byName[a.Name], a)
		byLowerName[strings.ToLower(a.Name)] = append(byLowerName[strings.ToLower(a.Name)], a)
		byFile[a.FilePath] = append(byFile[a.FilePath], a)
	}

	bySourceID := make(map[string][]*artifact.Relationship)
	byTargetID := make(map[string][]*artifact.Relationship)
	bySourceKey := make(map[string][]*artifact.Relationship)
	byTargetKey := make(map[string][]*artifact.Relationship)
	for _, r := range rels {
		if r.From.ArtifactID != "" {
			bySourceID[r.From.ArtifactID] = append(bySourceID[r.From.ArtifactID], r)
		}
		if r.To.ArtifactID != "" {
			byTargetID[r.To.ArtifactID] = append(byTargetID[r.To.ArtifactID], r)
		}
		bySourceKey[r.From.Key()] = append(bySourceKey[r.From.Key()], r)
		byTargetKey[r.To.Key()] = append(byTargetKey[r.To.Key()], r)
		if r.From.Name != "" {
			bySourceKey[r.From.Name] = append(bySourceKey[r.From.Name], r)
		}
		if r.To.Name != "" {
			byTargetKey[r.To.Name] = append(byTargetKey[r.To.Name], r)
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.loaded = true
	ix.artifacts = arts
	ix.relationships = rels
	ix.byID = byID
	ix.byKind = byKind
	ix.byName = byName
	ix.byLowerName = byLowerName
	ix.byFile = byFile
	ix.relsBySourceID = bySourceID
	ix.relsByTargetID = byTargetID
	ix.relsBySourceKey = bySourceKey
	ix.relsByTargetKey = byTargetKey
}

// Loaded reports whether the index holds a snapshot.
func (ix *Index) Loaded() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.loaded
}

// Artifacts returns the current artifact snapshot. Callers must not
// mutate it.
func (ix *Index) Artifacts() []*artifact.Artifact {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.artifacts
}

// Relationships returns the current relationship snapshot. Callers must
// not mutate it.
func (ix *Index) Relationships() []*artifact.Relationship {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.relationships
}

// ByID looks up a single artifact by its ID.
func (ix *Index) ByID(id string) (*artifact.Artifact, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	a, ok := ix.byID[id]
	return a, ok
}

// ByKind returns all artifacts of one kind.
func (ix *Index) ByKind(kind artifact.Kind) []*artifact.Artifact {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.byKind[kind]
}

// ByName returns artifacts with the exact name, falling back to the
// case-insensitive table when the exact match is empty.
func (ix *Index) ByName(name string) []*artifact.Artifact {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if hits := ix.byName[name]; len(hits) > 0 {
		return hits
	}
	return ix.byLowerName[strings.ToLower(name)]
}

// ByFile returns all artifacts extracted from one file.
func (ix *Index) ByFile(path string) []*artifact.Artifact {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.byFile[path]
}

// Outgoing returns relationships whose source resolves to the artifact
// ID.
func (ix *Index) Outgoing(id string) []*artifact.Relationship {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.relsBySourceID[id]
}

// Incoming returns relationships whose target resolves to the artifact
// ID.
func (ix *Index) Incoming(id string) []*artifact.Relationship {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.relsByTargetID[id]
}

// OutgoingByKey returns relationships whose source matches an endpoint
// key, artifact ID, or bare name.
func (ix *Index) OutgoingByKey(key string) []*artifact.Relationship {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.relsBySourceKey[key]
}

// IncomingByKey returns relationships whose target matches an endpoint
// key, artifact ID, or bare name.
func (ix *Index) IncomingByKey(key string) []*artifact.Relationship {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.relsByTargetKey[key]
}

// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package artifact defines the core data model for extracted code constructs
// and the typed relationships between them.
//
// An Artifact is a typed, anchored record of one recognized code construct
// (a model class, a serializer field, a URL pattern, ...). A Relationship is
// a typed, directed edge between two artifacts, or between an artifact and
// an unresolved reference when the target could not be matched to a known
// artifact.
//
// Artifacts and relationships are fully regenerated each time their owning
// pipeline step runs; they are plain data with deterministic identifiers so
// that repeated runs over unchanged sources produce identical payloads.
package artifact

import (
	"errors"
	"fmt"
)

// Kind identifies the construct type of an artifact.
type Kind string

// Artifact kinds recognized by the extractor.
const (
	KindModel               Kind = "model"
	KindModelField          Kind = "model_field"
	KindSerializer          Kind = "serializer"
	KindSerializerField     Kind = "serializer_field"
	KindSerializerValidator Kind = "serializer_validator"
	KindViewSet             Kind = "viewset"
	KindAPIView             Kind = "api_view"
	KindURLPattern          Kind = "url_pattern"
	KindRouterRegister      Kind = "router_register"
	KindTask                Kind = "task"
	KindSettingsEntry       Kind = "settings_entry"
	KindAppConfig           Kind = "app_config"
	KindCacheClient         Kind = "cache_client"
	KindAdminRegister       Kind = "admin_register"
	KindParseError          Kind = "parse_error"
	KindRequirement         Kind = "requirement"

	// KindUnresolvedRef is never assigned to an artifact. It is the type
	// carried by a relationship endpoint whose target could not be
	// resolved to a known artifact.
	KindUnresolvedRef Kind = "unresolved_ref"

	// KindGeneric is the forward-compatibility fallback for constructs
	// the current classifier does not recognize.
	KindGeneric Kind = "generic"
)

// knownKinds is the set of kinds Validate accepts on an artifact.
var knownKinds = map[Kind]bool{
	KindModel: true, KindModelField: true,
	KindSerializer: true, KindSerializerField: true, KindSerializerValidator: true,
	KindViewSet: true, KindAPIView: true,
	KindURLPattern: true, KindRouterRegister: true,
	KindTask: true, KindSettingsEntry: true, KindAppConfig: true,
	KindCacheClient: true, KindAdminRegister: true,
	KindParseError: true, KindRequirement: true, KindGeneric: true,
}

// Valid reports whether k is a kind an artifact may carry.
func (k Kind) Valid() bool {
	return knownKinds[k]
}

// Confidence is the certainty tier attached to every artifact and edge.
type Confidence string

const (
	// ConfidenceCertain marks direct structural matches, e.g. a class that
	// inherits a known framework base under a resolved import alias.
	ConfidenceCertain Confidence = "certain"

	// ConfidenceProbable marks decorator and instantiation heuristics.
	ConfidenceProbable Confidence = "probable"

	// ConfidenceHeuristic marks fallback or fuzzy matches, including every
	// edge that points at an unresolved reference.
	ConfidenceHeuristic Confidence = "heuristic"
)

// Valid reports whether c is one of the three recognized tiers.
func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceCertain, ConfidenceProbable, ConfidenceHeuristic:
		return true
	}
	return false
}

// Anchor is the source location of an artifact. Lines and columns are
// 1-based, end-inclusive.
type Anchor struct {
	StartLine int `json:"start_line"`
	StartCol  int `json:"start_col"`
	EndLine   int `json:"end_line"`
	EndCol    int `json:"end_col"`
}

// Validate checks anchor ordering.
func (a Anchor) Validate() error {
	if a.StartLine <= 0 {
		return fmt.Errorf("%w: start_line %d", ErrInvalidAnchor, a.StartLine)
	}
	if a.EndLine < a.StartLine {
		return fmt.Errorf("%w: start_line %d > end_line %d", ErrInvalidAnchor, a.StartLine, a.EndLine)
	}
	return nil
}

// Overlaps reports whether the anchor's line span intersects the inclusive
// range [startLine, endLine].
func (a Anchor) Overlaps(startLine, endLine int) bool {
	return a.StartLine <= endLine && a.EndLine >= startLine
}

// Artifact is a typed, anchored record of one recognized code construct.
//
// The ID is derived deterministically from (type, name, file path, anchor)
// so that IDs are reproducible across runs as long as anchors are stable,
// and detectably colliding if not.
type Artifact struct {
	// ID is "<type>:<name>:<file_path>:<start>-<end>".
	ID string `json:"artifact_id"`

	// Kind is the construct type.
	Kind Kind `json:"type"`

	// Name is the declared name. For anonymous constructs (a url pattern
	// without name=) the extractor synthesizes a stable name.
	Name string `json:"name"`

	// FilePath is the path relative to the source root, forward slashes.
	FilePath string `json:"file_path"`

	// Anchor is the source span of the declaration.
	Anchor Anchor `json:"anchor"`

	// Confidence is the classification certainty tier.
	Confidence Confidence `json:"confidence"`

	// Evidence lists the observations that led to the classification,
	// e.g. "base class models.Model via alias db.Model".
	Evidence []string `json:"evidence,omitempty"`

	// Meta is the kind-specific payload. Struct-typed, so it serializes
	// on every artifact; the variant pointers inside carry omitempty.
	Meta Meta `json:"meta"`
}

// Sentinel errors for artifact validation.
var (
	// ErrInvalidAnchor indicates a malformed anchor range.
	ErrInvalidAnchor = errors.New("invalid anchor range")

	// ErrInvalidKind indicates an unrecognized artifact kind.
	ErrInvalidKind = errors.New("invalid artifact kind")

	// ErrInvalidConfidence indicates an unrecognized confidence tier.
	ErrInvalidConfidence = errors.New("invalid confidence")

	// ErrEmptyName indicates an artifact with no name.
	ErrEmptyName = errors.New("artifact name must not be empty")
)

// MakeID builds the deterministic artifact identifier.
//
// The format is "<type>:<name>:<file_path>:<start>-<end>". Identifiers are
// unique within one generation as long as no two constructs of the same
// type and name share an anchor; the inv:artifact_id_unique invariant
// detects violations.
func MakeID(kind Kind, name, filePath string, anchor Anchor) string {
	return fmt.Sprintf("%s:%s:%s:%d-%d", kind, name, filePath, anchor.StartLine, anchor.EndLine)
}

// New constructs an artifact with its deterministic ID filled in.
func New(kind Kind, name, filePath string, anchor Anchor, confidence Confidence) *Artifact {
	return &Artifact{
		ID:         MakeID(kind, name, filePath, anchor),
		Kind:       kind,
		Name:       name,
		FilePath:   filePath,
		Anchor:     anchor,
		Confidence: confidence,
	}
}

// Validate checks the structural invariants of a single artifact.
func (a *Artifact) Validate() error {
	if !a.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, a.Kind)
	}
	if a.Name == "" {
		return fmt.Errorf("%w (id %s)", ErrEmptyName, a.ID)
	}
	if !a.Confidence.Valid() {
		return fmt.Errorf("%w: %q (id %s)", ErrInvalidConfidence, a.Confidence, a.ID)
	}
	if err := a.Anchor.Validate(); err != nil {
		return fmt.Errorf("%s: %w", a.ID, err)
	}
	if want := MakeID(a.Kind, a.Name, a.FilePath, a.Anchor); a.ID != want {
		return fmt.Errorf("artifact id %q does not match derived id %q", a.ID, want)
	}
	return nil
}

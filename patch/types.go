// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package patch applies structured, auditable text edits to the source
// tree.
//
// Every change attempt is recorded with before/after content hashes, and
// the full record is persisted immutably whether or not changes succeeded.
// The engine never half-applies a single change: each change either lands
// completely or is recorded as failed.
package patch

import (
	"encoding/json"
	"errors"
)

// Op is a patch operation kind.
type Op string

// Supported patch operations.
const (
	OpWriteFile        Op = "write_file"
	OpReplaceText      Op = "replace_text"
	OpInsertAfter      Op = "insert_after"
	OpInsertBefore     Op = "insert_before"
	OpApplyUnifiedDiff Op = "apply_unified_diff"
)

// Sentinel errors for patch application.
var (
	// ErrNoChangesApplied indicates a patch where every change failed.
	ErrNoChangesApplied = errors.New("no changes applied")

	// ErrUnknownOp indicates a change with an unrecognized operation.
	ErrUnknownOp = errors.New("unknown patch operation")

	// ErrPathEscapes indicates a file path outside the source root.
	ErrPathEscapes = errors.New("file path escapes source root")

	// ErrAnchorNotFound indicates an insert anchor with no occurrence.
	ErrAnchorNotFound = errors.New("anchor text not found")

	// ErrTextNotFound indicates replace_text with zero occurrences.
	ErrTextNotFound = errors.New("search text not found")
)

// Change is one requested edit within a patch document.
type Change struct {
	Op       Op     `json:"op"`
	FilePath string `json:"file_path"`

	// Content is the payload for write_file and the insert ops.
	Content string `json:"content,omitempty"`

	// Find and Replace drive replace_text. Count limits the number of
	// occurrences replaced; 0 means all.
	Find    string `json:"find,omitempty"`
	Replace string `json:"replace,omitempty"`
	Count   int    `json:"count,omitempty"`

	// Anchor is the target text for the insert ops. AllOccurrences
	// inserts at every match instead of only the first.
	Anchor         string `json:"anchor,omitempty"`
	AllOccurrences bool   `json:"all_occurrences,omitempty"`

	// Diff is the unified-diff payload for apply_unified_diff.
	Diff string `json:"diff,omitempty"`
}

// UnmarshalJSON accepts "path" as the wire name for the target file.
// "file_path" is honored too and wins when both are present.
func (c *Change) UnmarshalJSON(data []byte) error {
	type plain Change
	aux := struct {
		*plain
		Path string `json:"path"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if c.FilePath == "" {
		c.FilePath = aux.Path
	}
	return nil
}

// Document is a patch file as submitted by a caller.
type Document struct {
	PatchID     string   `json:"patch_id,omitempty"`
	Description string   `json:"description,omitempty"`
	Changes     []Change `json:"changes"`
}

// UnmarshalJSON accepts "note" as the wire name for the description.
func (d *Document) UnmarshalJSON(data []byte) error {
	type plain Document
	aux := struct {
		*plain
		Note string `json:"note"`
	}{plain: (*plain)(d)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if d.Description == "" {
		d.Description = aux.Note
	}
	return nil
}

// LineRange is an inclusive 1-based span of changed lines.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ChangeResult records the outcome of one change attempt.
type ChangeResult struct {
	Index    int    `json:"index"`
	Op       Op     `json:"op"`
	FilePath string `json:"file_path"`
	Applied  bool   `json:"applied"`
	Error    string `json:"error,omitempty"`

	// BeforeSHA256 is empty when the file did not exist.
	BeforeSHA256 string `json:"before_sha256,omitempty"`
	AfterSHA256  string `json:"after_sha256,omitempty"`

	// ChangedRanges are the edited line spans in the new content, used
	// downstream for anchor-overlap impact. Empty means the whole file.
	ChangedRanges []LineRange `json:"changed_ranges,omitempty"`

	// Warnings carry non-fatal findings, e.g. post-apply syntax errors.
	Warnings []string `json:"warnings,omitempty"`
}

// Record is the immutable persisted outcome of one patch application.
type Record struct {
	PatchID        string         `json:"patch_id"`
	Description    string         `json:"description,omitempty"`
	AppliedAtMilli int64          `json:"applied_at_ms"`
	Results        []ChangeResult `json:"results"`
	Succeeded      int            `json:"succeeded"`
	Failed         int            `json:"failed"`
}

// ChangedFiles returns the distinct files with at least one applied
// change, each with its merged changed ranges. A nil range list means the
// whole file changed.
func (r *Record) ChangedFiles() map[string][]LineRange {
	out := make(map[string][]LineRange)
	wholeFile := make(map[string]bool)
	for _, res := range r.Results {
		if !res.Applied {
			continue
		}
		if len(res.ChangedRanges) == 0 {
			wholeFile[res.FilePath] = true
			out[res.FilePath] = nil
			continue
		}
		if !wholeFile[res.FilePath] {
			out[res.FilePath] = append(out[res.FilePath], res.ChangedRanges...)
		}
	}
	return out
}

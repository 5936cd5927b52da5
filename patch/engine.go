// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package patch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithSyntaxValidation toggles post-apply re-parsing of patched Python
// files. Syntax errors become change warnings, never failures.
func WithSyntaxValidation(enabled bool) EngineOption {
	return func(e *Engine) { e.validateSyntax = enabled }
}

// Engine applies patch documents against a source root and persists a
// record of every attempt.
//
// Thread Safety: an Engine is stateless between calls; concurrent Apply
// calls touching disjoint files are safe, concurrent edits to the same
// file are the caller's problem.
type Engine struct {
	srcDir         string
	patchesDir     string
	validateSyntax bool
}

// NewEngine returns an Engine rooted at srcDir that writes records under
// patchesDir. Syntax validation is on by default.
func NewEngine(srcDir, patchesDir string, opts ...EngineOption) *Engine {
	e := &Engine{
		srcDir:         srcDir,
		patchesDir:     patchesDir,
		validateSyntax: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// LoadDocument reads and decodes a patch document from path.
func LoadDocument(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read patch document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode patch document: %w", err)
	}
	return &doc, nil
}

// Apply runs every change in doc, persists the record, and returns it.
// Individual change failures are recorded and do not abort the patch;
// ErrNoChangesApplied is returned only when every change failed. The
// record is persisted in both cases.
func (e *Engine) Apply(ctx context.Context, doc *Document) (*Record, error) {
	start := time.Now()
	rec := &Record{
		PatchID:        doc.PatchID,
		Description:    doc.Description,
		AppliedAtMilli: start.UnixMilli(),
	}
	if rec.PatchID == "" {
		rec.PatchID = uuid.NewString()
	}

	for i, ch := range doc.Changes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res := e.applyChange(i, ch)
		if res.Applied {
			rec.Succeeded++
		} else {
			rec.Failed++
			slog.Warn("patch change failed",
				slog.String("patch_id", rec.PatchID),
				slog.Int("index", i),
				slog.String("op", string(ch.Op)),
				slog.String("file", ch.FilePath),
				slog.String("error", res.Error),
			)
		}
		rec.Results = append(rec.Results, res)
	}

	if err := e.persist(rec); err != nil {
		return nil, err
	}
	slog.Info("patch applied",
		slog.String("patch_id", rec.PatchID),
		slog.Int("succeeded", rec.Succeeded),
		slog.Int("failed", rec.Failed),
		slog.Duration("duration", time.Since(start)),
	)
	if rec.Succeeded == 0 && len(doc.Changes) > 0 {
		return rec, fmt.Errorf("%w: all %d changes failed", ErrNoChangesApplied, rec.Failed)
	}
	return rec, nil
}

// applyChange runs one change and always returns a result, converting
// errors into a failed result rather than propagating them.
func (e *Engine) applyChange(index int, ch Change) ChangeResult {
	res := ChangeResult{Index: index, Op: ch.Op, FilePath: ch.FilePath}

	abs, err := e.resolvePath(ch.FilePath)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	before, beforeHash, exists, err := readFileState(abs)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.BeforeSHA256 = beforeHash

	var after string
	var ranges []LineRange
	switch ch.Op {
	case OpWriteFile:
		after = ch.Content
		ranges = nil // whole file
	case OpReplaceText:
		if !exists {
			err = fmt.Errorf("file does not exist: %s", ch.FilePath)
			break
		}
		after, ranges, err = replaceText(before, ch.Find, ch.Replace, ch.Count)
	case OpInsertAfter:
		if !exists {
			err = fmt.Errorf("file does not exist: %s", ch.FilePath)
			break
		}
		after, ranges, err = insertAt(before, ch.Anchor, ch.Content, true, ch.AllOccurrences)
	case OpInsertBefore:
		if !exists {
			err = fmt.Errorf("file does not exist: %s", ch.FilePath)
			break
		}
		after, ranges, err = insertAt(before, ch.Anchor, ch.Content, false, ch.AllOccurrences)
	case OpApplyUnifiedDiff:
		after, ranges, err = applyUnifiedDiff(before, exists, ch.FilePath, ch.Diff)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownOp, ch.Op)
	}
	if err != nil {
		res.Error = err.Error()
		return res
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		res.Error = fmt.Sprintf("create parent directory: %v", err)
		return res
	}
	if err := os.WriteFile(abs, []byte(after), 0o644); err != nil {
		res.Error = fmt.Sprintf("write file: %v", err)
		return res
	}

	res.Applied = true
	res.AfterSHA256 = hashString(after)
	res.ChangedRanges = ranges
	if e.validateSyntax {
		res.Warnings = append(res.Warnings, checkSyntax(ch.FilePath, after)...)
	}
	return res
}

// resolvePath joins rel onto the source root, rejecting absolute paths
// and traversal outside the root.
func (e *Engine) resolvePath(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("empty file path")
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, rel)
	}
	abs := filepath.Join(e.srcDir, filepath.FromSlash(rel))
	root := filepath.Clean(e.srcDir)
	if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, rel)
	}
	return abs, nil
}

// persist writes the record to <patchesDir>/<patch_id>.json atomically.
func (e *Engine) persist(rec *Record) error {
	if err := os.MkdirAll(e.patchesDir, 0o755); err != nil {
		return fmt.Errorf("create patches directory: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode patch record: %w", err)
	}
	final := filepath.Join(e.patchesDir, rec.PatchID+".json")
	tmp, err := os.CreateTemp(e.patchesDir, ".patch-*")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write patch record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close patch record: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("persist patch record: %w", err)
	}
	return nil
}

// LoadRecord reads a persisted patch record by ID.
func LoadRecord(patchesDir, patchID string) (*Record, error) {
	raw, err := os.ReadFile(filepath.Join(patchesDir, patchID+".json"))
	if err != nil {
		return nil, fmt.Errorf("read patch record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode patch record: %w", err)
	}
	return &rec, nil
}

// replaceText substitutes find with replace. count limits the number of
// occurrences touched; 0 means all. Zero occurrences is a hard failure.
func replaceText(content, find, replace string, count int) (string, []LineRange, error) {
	if find == "" {
		return "", nil, fmt.Errorf("empty search text")
	}
	total := strings.Count(content, find)
	if total == 0 {
		return "", nil, fmt.Errorf("%w: %q", ErrTextNotFound, truncate(find, 60))
	}
	if count <= 0 || count > total {
		count = total
	}

	var b strings.Builder
	var ranges []LineRange
	rest := content
	replaced := 0
	for replaced < count {
		idx := strings.Index(rest, find)
		if idx < 0 {
			break
		}
		b.WriteString(rest[:idx])
		startLine := lineAt(b.String(), b.Len())
		b.WriteString(replace)
		ranges = append(ranges, LineRange{
			Start: startLine,
			End:   startLine + strings.Count(replace, "\n"),
		})
		rest = rest[idx+len(find):]
		replaced++
	}
	b.WriteString(rest)
	return b.String(), mergeRanges(ranges), nil
}

// insertAt inserts content after or before each anchor occurrence. A
// missing anchor is a hard failure.
func insertAt(content, anchor, insert string, after, allOccurrences bool) (string, []LineRange, error) {
	if anchor == "" {
		return "", nil, fmt.Errorf("empty anchor text")
	}
	if !strings.Contains(content, anchor) {
		return "", nil, fmt.Errorf("%w: %q", ErrAnchorNotFound, truncate(anchor, 60))
	}

	var b strings.Builder
	var ranges []LineRange
	rest := content
	done := false
	for !done {
		idx := strings.Index(rest, anchor)
		if idx < 0 {
			break
		}
		b.WriteString(rest[:idx])
		if after {
			b.WriteString(anchor)
		}
		startLine := lineAt(b.String(), b.Len())
		b.WriteString(insert)
		ranges = append(ranges, LineRange{
			Start: startLine,
			End:   startLine + strings.Count(insert, "\n"),
		})
		if !after {
			b.WriteString(anchor)
		}
		rest = rest[idx+len(anchor):]
		done = !allOccurrences
	}
	b.WriteString(rest)
	return b.String(), mergeRanges(ranges), nil
}

// readFileState loads a file if it exists, returning its content, hash,
// and existence.
func readFileState(path string) (string, string, bool, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, fmt.Errorf("read file: %w", err)
	}
	return string(raw), hashString(string(raw)), true, nil
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// lineAt returns the 1-based line number of byte offset in s.
func lineAt(s string, offset int) int {
	if offset > len(s) {
		offset = len(s)
	}
	return strings.Count(s[:offset], "\n") + 1
}

// mergeRanges collapses overlapping or adjacent line ranges. Input is
// already in ascending start order by construction.
func mergeRanges(ranges []LineRange) []LineRange {
	if len(ranges) <= 1 {
		return ranges
	}
	out := ranges[:1]
	for _, r := range ranges[1:] {
		last := &out[len(out)-1]
		if r.Start <= last.End+1 {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

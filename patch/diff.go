// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package patch

import (
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// applyUnifiedDiff parses a unified diff and applies the hunks that
// target filePath against before. Context and removed lines must match
// the original exactly. Returns the patched content and the line ranges
// of added lines in the new content.
func applyUnifiedDiff(before string, exists bool, filePath, patch string) (string, []LineRange, error) {
	if strings.TrimSpace(patch) == "" {
		return "", nil, fmt.Errorf("empty diff")
	}
	fileDiffs, err := diff.NewMultiFileDiffReader(strings.NewReader(patch)).ReadAllFiles()
	if err != nil {
		return "", nil, fmt.Errorf("parse unified diff: %w", err)
	}

	fd := matchFileDiff(fileDiffs, filePath)
	if fd == nil {
		return "", nil, fmt.Errorf("diff does not touch %s", filePath)
	}
	if stripDiffPrefix(fd.NewName) == "/dev/null" {
		return "", nil, fmt.Errorf("file deletion via diff is not supported")
	}
	if stripDiffPrefix(fd.OrigName) != "/dev/null" && !exists {
		return "", nil, fmt.Errorf("file does not exist: %s", filePath)
	}

	return applyHunks(before, fd)
}

// matchFileDiff finds the file diff whose new (or original) name matches
// filePath, tolerating the conventional a/ and b/ prefixes.
func matchFileDiff(fds []*diff.FileDiff, filePath string) *diff.FileDiff {
	for _, fd := range fds {
		if stripDiffPrefix(fd.NewName) == filePath || stripDiffPrefix(fd.OrigName) == filePath {
			return fd
		}
	}
	if len(fds) == 1 {
		return fds[0]
	}
	return nil
}

func stripDiffPrefix(name string) string {
	if rest, ok := strings.CutPrefix(name, "a/"); ok {
		return rest
	}
	if rest, ok := strings.CutPrefix(name, "b/"); ok {
		return rest
	}
	return name
}

// applyHunks walks the original lines and each hunk body, verifying that
// context and removed lines match before emitting the patched output.
func applyHunks(before string, fd *diff.FileDiff) (string, []LineRange, error) {
	var origLines []string
	trailingNewline := strings.HasSuffix(before, "\n")
	if before != "" {
		origLines = strings.Split(before, "\n")
		if trailingNewline {
			origLines = origLines[:len(origLines)-1]
		}
	}

	var out []string
	var ranges []LineRange
	origIdx := 0

	for _, hunk := range fd.Hunks {
		hunkStart := int(hunk.OrigStartLine) - 1
		if hunkStart < 0 {
			hunkStart = 0
		}
		if hunkStart > len(origLines) {
			return "", nil, fmt.Errorf("hunk starts at line %d beyond end of file (%d lines)",
				hunk.OrigStartLine, len(origLines))
		}
		if hunkStart < origIdx {
			return "", nil, fmt.Errorf("overlapping hunks at line %d", hunk.OrigStartLine)
		}
		out = append(out, origLines[origIdx:hunkStart]...)
		origIdx = hunkStart

		body := strings.Split(string(hunk.Body), "\n")
		for _, line := range body {
			if line == "" || line == "\\ No newline at end of file" {
				continue
			}
			marker, text := line[0], line[1:]
			switch marker {
			case '+':
				out = append(out, text)
				newLine := len(out)
				if n := len(ranges); n > 0 && ranges[n-1].End == newLine-1 {
					ranges[n-1].End = newLine
				} else {
					ranges = append(ranges, LineRange{Start: newLine, End: newLine})
				}
			case '-':
				if origIdx >= len(origLines) || origLines[origIdx] != text {
					return "", nil, fmt.Errorf("removed line mismatch at line %d", origIdx+1)
				}
				origIdx++
			case ' ':
				if origIdx >= len(origLines) || origLines[origIdx] != text {
					return "", nil, fmt.Errorf("context mismatch at line %d", origIdx+1)
				}
				out = append(out, origLines[origIdx])
				origIdx++
			default:
				return "", nil, fmt.Errorf("malformed hunk line: %q", truncate(line, 60))
			}
		}
	}

	out = append(out, origLines[origIdx:]...)
	result := strings.Join(out, "\n")
	if trailingNewline || before == "" {
		result += "\n"
	}
	return result, ranges, nil
}

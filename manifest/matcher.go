// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package manifest

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher decides which relative paths a scan tracks. A path is tracked
// when it matches at least one include pattern and no exclude pattern.
//
// Patterns use doublestar syntax ("**" spans directories). Paths are
// matched with forward slashes.
type Matcher struct {
	includes []string
	excludes []string
}

// NewMatcher creates a matcher from include and exclude glob patterns.
// Empty includes means "match everything".
func NewMatcher(includes, excludes []string) *Matcher {
	return &Matcher{includes: includes, excludes: excludes}
}

// DefaultMatcher returns a matcher with the package default patterns plus
// any extra excludes.
func DefaultMatcher(extraExcludes ...string) *Matcher {
	excludes := make([]string, 0, len(DefaultExcludes)+len(extraExcludes))
	excludes = append(excludes, DefaultExcludes...)
	excludes = append(excludes, extraExcludes...)
	return NewMatcher(DefaultIncludes, excludes)
}

// Match reports whether relPath is tracked.
func (m *Matcher) Match(relPath string) bool {
	relPath = strings.TrimPrefix(relPath, "./")

	for _, pattern := range m.excludes {
		if ok, _ := doublestar.Match(pattern, relPath); ok {
			return false
		}
	}

	if len(m.includes) == 0 {
		return true
	}
	for _, pattern := range m.includes {
		if ok, _ := doublestar.Match(pattern, relPath); ok {
			return true
		}
	}
	return false
}

// ExcludesDir reports whether an entire directory subtree is excluded, so
// the scan can skip descending into it.
func (m *Matcher) ExcludesDir(relPath string) bool {
	relPath = strings.TrimPrefix(relPath, "./")
	for _, pattern := range m.excludes {
		if ok, _ := doublestar.Match(pattern, relPath); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, relPath+"/"); ok {
			return true
		}
		// A pattern like "**/x/**" excludes everything under x; treat the
		// directory itself as excluded too.
		if strings.HasSuffix(pattern, "/**") {
			if ok, _ := doublestar.Match(strings.TrimSuffix(pattern, "/**"), relPath); ok {
				return true
			}
		}
	}
	return false
}

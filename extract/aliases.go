// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extract

import (
	"strings"

	"github.com/substratelabs/atlas/ast"
)

// Resolver maps local names bound by a module's imports back to their
// qualified origins, so that "serializers.ModelSerializer" under
// "from rest_framework import serializers" canonicalizes to
// "rest_framework.serializers.ModelSerializer".
type Resolver struct {
	origins map[string]string
}

// NewResolver builds a Resolver from a module's imports.
func NewResolver(imports []ast.Import) *Resolver {
	r := &Resolver{origins: make(map[string]string, len(imports)*2)}
	for _, imp := range imports {
		if imp.Alias == "" || imp.Alias == "*" {
			continue
		}
		r.origins[imp.Alias] = imp.Qualified()
		// "import a.b.c" also binds the root package name.
		if imp.Name == "" {
			if head := firstSegment(imp.Module); head != imp.Alias {
				r.origins[head] = head
			}
		}
	}
	return r
}

// Resolve canonicalizes a dotted token through the import table. Tokens
// whose head is not a bound name are returned unchanged: they are either
// already qualified or local.
func (r *Resolver) Resolve(token string) string {
	head, rest, found := strings.Cut(token, ".")
	origin, ok := r.origins[head]
	if !ok {
		return token
	}
	if !found {
		return origin
	}
	return origin + "." + rest
}

// Known reports whether the token's head is bound by an import.
func (r *Resolver) Known(token string) bool {
	_, ok := r.origins[firstSegment(token)]
	return ok
}

func firstSegment(dotted string) string {
	if idx := strings.Index(dotted, "."); idx >= 0 {
		return dotted[:idx]
	}
	return dotted
}

func lastSegment(dotted string) string {
	if idx := strings.LastIndex(dotted, "."); idx >= 0 {
		return dotted[idx+1:]
	}
	return dotted
}

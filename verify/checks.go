// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package verify

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/substratelabs/atlas/artifact"
	"github.com/substratelabs/atlas/config"
	"github.com/substratelabs/atlas/query"
)

// Known invariant IDs. An invariant check naming anything else fails
// with this list in the detail.
const (
	InvArtifactIDUnique      = "inv:artifact_id_unique"
	InvEndpointTypesNonempty = "inv:endpoint_types_nonempty"
	InvAnchorOrdering        = "inv:anchor_ordering"
	InvRelIDsUnique          = "inv:rel_ids_unique"
	InvConfidenceValid       = "inv:confidence_valid"
)

// KnownInvariants lists the fixed invariant set, sorted.
func KnownInvariants() []string {
	ids := []string{
		InvArtifactIDUnique,
		InvEndpointTypesNonempty,
		InvAnchorOrdering,
		InvRelIDsUnique,
		InvConfidenceValid,
	}
	sort.Strings(ids)
	return ids
}

// checkFileExists resolves the path key and stats the target.
func checkFileExists(cfg *config.Config, check Check) (bool, string) {
	path, err := cfg.ResolvePathKey(config.PathKey(check.PathKey))
	if err != nil {
		return false, err.Error()
	}
	if _, err := os.Stat(path); err != nil {
		return false, fmt.Sprintf("%s: %v", check.PathKey, err)
	}
	return true, path
}

// checkJSONSchema verifies required top-level keys and their coarse
// types in the JSON document behind the path key.
func checkJSONSchema(cfg *config.Config, check Check) (bool, string) {
	path, err := cfg.ResolvePathKey(config.PathKey(check.PathKey))
	if err != nil {
		return false, err.Error()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Sprintf("read %s: %v", check.PathKey, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return false, fmt.Sprintf("%s is not a JSON object: %v", check.PathKey, err)
	}

	for _, req := range check.Required {
		val, ok := doc[req.Key]
		if !ok {
			return false, fmt.Sprintf("missing required key %q", req.Key)
		}
		if req.Type == "" {
			continue
		}
		if !jsonTypeMatches(val, req.Type) {
			return false, fmt.Sprintf("key %q has type %T, want %s", req.Key, val, req.Type)
		}
	}
	return true, fmt.Sprintf("%d required keys present", len(check.Required))
}

// jsonTypeMatches maps the coarse suite type names onto decoded JSON
// values. JSON numbers decode as float64; int accepts integral values.
func jsonTypeMatches(val any, typ string) bool {
	switch typ {
	case "list":
		_, ok := val.([]any)
		return ok
	case "dict":
		_, ok := val.(map[string]any)
		return ok
	case "string":
		_, ok := val.(string)
		return ok
	case "int":
		f, ok := val.(float64)
		return ok && f == math.Trunc(f)
	case "bool":
		_, ok := val.(bool)
		return ok
	case "null":
		return val == nil
	}
	return false
}

// checkInvariant runs one of the fixed invariants over the snapshot.
func checkInvariant(ix *query.Index, check Check) (bool, string) {
	arts := ix.Artifacts()
	rels := ix.Relationships()

	switch check.Invariant {
	case InvArtifactIDUnique:
		seen := make(map[string]bool, len(arts))
		for _, a := range arts {
			if seen[a.ID] {
				return false, fmt.Sprintf("duplicate artifact_id %q", a.ID)
			}
			seen[a.ID] = true
		}
		return true, fmt.Sprintf("%d artifact IDs unique", len(arts))

	case InvEndpointTypesNonempty:
		for _, r := range rels {
			if r.From.Type == "" || r.To.Type == "" {
				return false, fmt.Sprintf("relationship %q has an untyped endpoint", r.ID)
			}
		}
		return true, fmt.Sprintf("%d relationships have typed endpoints", len(rels))

	case InvAnchorOrdering:
		for _, a := range arts {
			if err := a.Anchor.Validate(); err != nil {
				return false, fmt.Sprintf("artifact %q: %v", a.ID, err)
			}
		}
		return true, fmt.Sprintf("%d anchors ordered", len(arts))

	case InvRelIDsUnique:
		seen := make(map[string]bool, len(rels))
		for _, r := range rels {
			if seen[r.ID] {
				return false, fmt.Sprintf("duplicate rel_id %q", r.ID)
			}
			seen[r.ID] = true
		}
		return true, fmt.Sprintf("%d rel IDs unique", len(rels))

	case InvConfidenceValid:
		for _, a := range arts {
			if !validConfidence(a.Confidence) {
				return false, fmt.Sprintf("artifact %q has confidence %q", a.ID, a.Confidence)
			}
		}
		for _, r := range rels {
			if !validConfidence(r.Confidence) {
				return false, fmt.Sprintf("relationship %q has confidence %q", r.ID, r.Confidence)
			}
		}
		return true, fmt.Sprintf("%d artifacts and %d relationships carry valid confidence", len(arts), len(rels))
	}

	return false, fmt.Sprintf("%v: %q (known: %v)", ErrUnknownInvariant, check.Invariant, KnownInvariants())
}

func validConfidence(c artifact.Confidence) bool {
	switch c {
	case artifact.ConfidenceCertain, artifact.ConfidenceProbable, artifact.ConfidenceHeuristic:
		return true
	}
	return false
}

// checkQuery dispatches the named op and applies the result-count
// expectation.
func checkQuery(ix *query.Index, check Check) (bool, string) {
	var raw json.RawMessage
	if check.Args != nil {
		encoded, err := json.Marshal(check.Args)
		if err != nil {
			return false, fmt.Sprintf("encode args: %v", err)
		}
		raw = encoded
	}
	out, err := ix.RunOp(check.Op, raw)
	if err != nil {
		return false, fmt.Sprintf("op %q: %v", check.Op, err)
	}

	count := resultCount(out)
	if check.Expect != nil {
		if check.Expect.MinResults != nil && count < *check.Expect.MinResults {
			return false, fmt.Sprintf("op %q returned %d results, want >= %d", check.Op, count, *check.Expect.MinResults)
		}
		if check.Expect.MaxResults != nil && count > *check.Expect.MaxResults {
			return false, fmt.Sprintf("op %q returned %d results, want <= %d", check.Op, count, *check.Expect.MaxResults)
		}
	}
	return true, fmt.Sprintf("op %q returned %d results", check.Op, count)
}

// resultCount maps op results onto a single comparable count.
func resultCount(out any) int {
	switch v := out.(type) {
	case *query.ArtifactList:
		return v.Total
	case *query.NeighborSet:
		return len(v.Outgoing) + len(v.Incoming)
	case *query.WalkResult:
		return len(v.Nodes)
	case *query.RouteToModelResult:
		return len(v.Traces)
	case *query.ModelToRoutesResult:
		return len(v.Routes)
	case *query.Stats:
		return v.Artifacts
	case nil:
		return 0
	}
	return 1
}

// checkGraph applies edge-count and orphan expectations to the snapshot.
func checkGraph(ix *query.Index, check Check) (bool, string) {
	arts := ix.Artifacts()
	rels := ix.Relationships()

	connected := make(map[string]bool)
	for _, r := range rels {
		if r.From.ArtifactID != "" {
			connected[r.From.ArtifactID] = true
		}
		if r.To.ArtifactID != "" {
			connected[r.To.ArtifactID] = true
		}
	}
	orphans := 0
	for _, a := range arts {
		if !connected[a.ID] {
			orphans++
		}
	}

	if check.Expect != nil {
		if check.Expect.MinEdges != nil && len(rels) < *check.Expect.MinEdges {
			return false, fmt.Sprintf("%d edges, want >= %d", len(rels), *check.Expect.MinEdges)
		}
		if check.Expect.MaxOrphans != nil && orphans > *check.Expect.MaxOrphans {
			return false, fmt.Sprintf("%d orphan artifacts, want <= %d", orphans, *check.Expect.MaxOrphans)
		}
	}
	return true, fmt.Sprintf("%d edges, %d orphan artifacts", len(rels), orphans)
}

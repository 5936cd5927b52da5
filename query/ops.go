// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/substratelabs/atlas/artifact"
)

// DefaultLimit caps result sets when the caller does not set one.
const DefaultLimit = 100

// GetArtifactArgs selects a single artifact by ID.
type GetArtifactArgs struct {
	ArtifactID string `json:"artifact_id"`
}

// GetArtifact returns an artifact by ID along with its edge counts.
func (ix *Index) GetArtifact(args GetArtifactArgs) (*ArtifactDetail, error) {
	if args.ArtifactID == "" {
		return nil, fmt.Errorf("%w: artifact_id is required", ErrBadArgs)
	}
	a, ok := ix.ByID(args.ArtifactID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, args.ArtifactID)
	}
	return &ArtifactDetail{
		Artifact: a,
		Outgoing: len(ix.Outgoing(a.ID)),
		Incoming: len(ix.Incoming(a.ID)),
	}, nil
}

// ArtifactDetail is a single artifact plus its degree.
type ArtifactDetail struct {
	Artifact *artifact.Artifact `json:"artifact"`
	Outgoing int                `json:"outgoing_edges"`
	Incoming int                `json:"incoming_edges"`
}

// FindByTypeArgs selects artifacts of one kind.
type FindByTypeArgs struct {
	Type  string `json:"type"`
	Limit int    `json:"limit,omitempty"`
}

// FindByType returns artifacts of the named kind.
func (ix *Index) FindByType(args FindByTypeArgs) (*ArtifactList, error) {
	if args.Type == "" {
		return nil, fmt.Errorf("%w: type is required", ErrBadArgs)
	}
	return newArtifactList(ix.ByKind(artifact.Kind(args.Type)), args.Limit), nil
}

// FindByNameArgs selects artifacts by exact (or case-folded) name.
type FindByNameArgs struct {
	Name  string `json:"name"`
	Limit int    `json:"limit,omitempty"`
}

// FindByName returns artifacts whose name matches exactly, falling back
// to a case-insensitive match.
func (ix *Index) FindByName(args FindByNameArgs) (*ArtifactList, error) {
	if args.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrBadArgs)
	}
	return newArtifactList(ix.ByName(args.Name), args.Limit), nil
}

// FindContainsArgs selects artifacts whose name contains a substring.
type FindContainsArgs struct {
	Substring string `json:"substring"`
	Limit     int    `json:"limit,omitempty"`
}

// FindContains returns artifacts whose name contains the substring,
// case-insensitively.
func (ix *Index) FindContains(args FindContainsArgs) (*ArtifactList, error) {
	if args.Substring == "" {
		return nil, fmt.Errorf("%w: substring is required", ErrBadArgs)
	}
	needle := strings.ToLower(args.Substring)
	var hits []*artifact.Artifact
	for _, a := range ix.Artifacts() {
		if strings.Contains(strings.ToLower(a.Name), needle) {
			hits = append(hits, a)
		}
	}
	return newArtifactList(hits, args.Limit), nil
}

// ArtifactList is a bounded artifact result set.
type ArtifactList struct {
	Total     int                  `json:"total"`
	Truncated bool                 `json:"truncated,omitempty"`
	Artifacts []*artifact.Artifact `json:"artifacts"`
}

func newArtifactList(hits []*artifact.Artifact, limit int) *ArtifactList {
	if limit <= 0 {
		limit = DefaultLimit
	}
	out := &ArtifactList{Total: len(hits), Artifacts: hits}
	if len(hits) > limit {
		out.Artifacts = hits[:limit]
		out.Truncated = true
	}
	return out
}

// NeighborsArgs selects the edges around one artifact.
type NeighborsArgs struct {
	ArtifactID string `json:"artifact_id,omitempty"`
	Name       string `json:"name,omitempty"`
	// Direction is "out", "in", or "both" (default).
	Direction string `json:"direction,omitempty"`
	// RelTypes restricts the result to the listed relationship types.
	// Empty means all types.
	RelTypes []artifact.RelType `json:"rel_types,omitempty"`
	// IncludeUnresolved keeps edges whose far endpoint is an unresolved
	// reference. Off by default.
	IncludeUnresolved bool `json:"include_unresolved,omitempty"`
	Limit             int  `json:"limit,omitempty"`
}

// Neighbor is one edge from or to the subject artifact.
type Neighbor struct {
	Relationship *artifact.Relationship `json:"relationship"`
	// Artifact is the far endpoint when it resolves to a known artifact.
	Artifact *artifact.Artifact `json:"artifact,omitempty"`
}

// NeighborSet is the result of a neighbors query.
type NeighborSet struct {
	Subject   *artifact.Artifact `json:"subject"`
	Outgoing  []Neighbor         `json:"outgoing,omitempty"`
	Incoming  []Neighbor         `json:"incoming,omitempty"`
	Truncated bool               `json:"truncated,omitempty"`
}

// Neighbors returns the edges around an artifact selected by ID or name.
func (ix *Index) Neighbors(args NeighborsArgs) (*NeighborSet, error) {
	subject, err := ix.resolveSubject(args.ArtifactID, args.Name)
	if err != nil {
		return nil, err
	}
	limit := args.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	wantType := make(map[artifact.RelType]bool, len(args.RelTypes))
	for _, rt := range args.RelTypes {
		wantType[rt] = true
	}

	set := &NeighborSet{Subject: subject}
	dir := args.Direction
	if dir == "" {
		dir = "both"
	}
	switch dir {
	case "out", "both":
		for _, rel := range ix.Outgoing(subject.ID) {
			if len(wantType) > 0 && !wantType[rel.Type] {
				continue
			}
			far, ok := ix.ByID(rel.To.ArtifactID)
			if !ok && !args.IncludeUnresolved {
				continue
			}
			if len(set.Outgoing) >= limit {
				set.Truncated = true
				break
			}
			set.Outgoing = append(set.Outgoing, Neighbor{Relationship: rel, Artifact: far})
		}
		if dir == "out" {
			return set, nil
		}
		fallthrough
	case "in":
		for _, rel := range ix.Incoming(subject.ID) {
			if len(wantType) > 0 && !wantType[rel.Type] {
				continue
			}
			far, ok := ix.ByID(rel.From.ArtifactID)
			if !ok && !args.IncludeUnresolved {
				continue
			}
			if len(set.Incoming) >= limit {
				set.Truncated = true
				break
			}
			set.Incoming = append(set.Incoming, Neighbor{Relationship: rel, Artifact: far})
		}
	default:
		return nil, fmt.Errorf("%w: direction must be out, in, or both", ErrBadArgs)
	}
	return set, nil
}

// GraphWalkArgs drives a bounded walk from one artifact.
type GraphWalkArgs struct {
	Start string `json:"start"` // artifact ID or name
	// Direction is "out" (default) or "in".
	Direction string `json:"direction,omitempty"`
	MaxDepth  int    `json:"max_depth,omitempty"`
	MaxNodes  int    `json:"max_nodes,omitempty"`
}

// WalkNode is one node reached by a graph walk.
type WalkNode struct {
	Key      string             `json:"key"`
	Depth    int                `json:"depth"`
	Artifact *artifact.Artifact `json:"artifact,omitempty"`
}

// WalkResult is the output of a graph walk.
type WalkResult struct {
	Start     string     `json:"start"`
	Nodes     []WalkNode `json:"nodes"`
	Truncated bool       `json:"truncated,omitempty"`
}

// GraphWalk runs a bounded breadth-first walk from the start artifact.
func (ix *Index) GraphWalk(args GraphWalkArgs) (*WalkResult, error) {
	subject, err := ix.resolveSubject(args.Start, args.Start)
	if err != nil {
		return nil, err
	}
	maxDepth := args.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 10
	}
	maxNodes := args.MaxNodes
	if maxNodes <= 0 {
		maxNodes = 500
	}
	outward := args.Direction != "in"

	result := &WalkResult{Start: subject.ID}
	visited := map[string]bool{subject.ID: true}
	type queued struct {
		key   string
		depth int
	}
	queue := []queued{{key: subject.ID}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth > 0 {
			node := WalkNode{Key: cur.key, Depth: cur.depth}
			node.Artifact, _ = ix.ByID(cur.key)
			result.Nodes = append(result.Nodes, node)
		}
		if cur.depth >= maxDepth {
			result.Truncated = true
			continue
		}
		var edges []*artifact.Relationship
		if outward {
			edges = ix.OutgoingByKey(cur.key)
		} else {
			edges = ix.IncomingByKey(cur.key)
		}
		next := make([]string, 0, len(edges))
		for _, rel := range edges {
			if outward {
				next = append(next, rel.To.Key())
			} else {
				next = append(next, rel.From.Key())
			}
		}
		sort.Strings(next)
		for _, key := range next {
			if visited[key] {
				continue
			}
			if len(visited) >= maxNodes {
				result.Truncated = true
				break
			}
			visited[key] = true
			queue = append(queue, queued{key: key, depth: cur.depth + 1})
		}
	}
	return result, nil
}

// FindModelArgs and friends select a single kind by name.
type FindModelArgs struct {
	Name  string `json:"name"`
	Limit int    `json:"limit,omitempty"`
}

// FindModel returns models matching the name; empty name lists all.
func (ix *Index) FindModel(args FindModelArgs) (*ArtifactList, error) {
	return ix.findKindByName(artifact.KindModel, args.Name, args.Limit)
}

// FindSerializer returns serializers matching the name.
func (ix *Index) FindSerializer(args FindModelArgs) (*ArtifactList, error) {
	return ix.findKindByName(artifact.KindSerializer, args.Name, args.Limit)
}

// FindView returns viewsets and API views matching the name.
func (ix *Index) FindView(args FindModelArgs) (*ArtifactList, error) {
	views := append([]*artifact.Artifact(nil), ix.ByKind(artifact.KindViewSet)...)
	views = append(views, ix.ByKind(artifact.KindAPIView)...)
	return filterByName(views, args.Name, args.Limit), nil
}

func (ix *Index) findKindByName(kind artifact.Kind, name string, limit int) (*ArtifactList, error) {
	return filterByName(ix.ByKind(kind), name, limit), nil
}

func filterByName(arts []*artifact.Artifact, name string, limit int) *ArtifactList {
	if name == "" {
		return newArtifactList(arts, limit)
	}
	var hits []*artifact.Artifact
	for _, a := range arts {
		if a.Name == name || strings.EqualFold(a.Name, name) {
			hits = append(hits, a)
		}
	}
	return newArtifactList(hits, limit)
}

// Stats summarizes the loaded snapshot.
type Stats struct {
	Artifacts       int            `json:"artifacts"`
	Relationships   int            `json:"relationships"`
	Files           int            `json:"files"`
	ByType          map[string]int `json:"by_type"`
	ByConfidence    map[string]int `json:"by_confidence"`
	ByRelType       map[string]int `json:"by_rel_type"`
	UnresolvedEdges int            `json:"unresolved_edges"`
}

// StatsArgs is empty; stats takes no arguments.
type StatsArgs struct{}

// Stats returns counts over the loaded snapshot.
func (ix *Index) Stats(StatsArgs) (*Stats, error) {
	arts := ix.Artifacts()
	rels := ix.Relationships()

	s := &Stats{
		Artifacts:     len(arts),
		Relationships: len(rels),
		ByType:        make(map[string]int),
		ByConfidence:  make(map[string]int),
		ByRelType:     make(map[string]int),
	}
	files := make(map[string]bool)
	for _, a := range arts {
		s.ByType[string(a.Kind)]++
		s.ByConfidence[string(a.Confidence)]++
		files[a.FilePath] = true
	}
	s.Files = len(files)
	for _, r := range rels {
		s.ByRelType[string(r.Type)]++
		if !r.From.Resolved() || !r.To.Resolved() {
			s.UnresolvedEdges++
		}
	}
	return s, nil
}

// resolveSubject finds a single artifact by ID first, then by name. An
// ambiguous name is an error so callers know to disambiguate by ID.
func (ix *Index) resolveSubject(id, name string) (*artifact.Artifact, error) {
	if id != "" {
		if a, ok := ix.ByID(id); ok {
			return a, nil
		}
	}
	if name != "" {
		hits := ix.ByName(name)
		switch len(hits) {
		case 0:
		case 1:
			return hits[0], nil
		default:
			return nil, fmt.Errorf("%w: name %q is ambiguous (%d matches)", ErrBadArgs, name, len(hits))
		}
	}
	if id == "" && name == "" {
		return nil, fmt.Errorf("%w: artifact_id or name is required", ErrBadArgs)
	}
	return nil, fmt.Errorf("%w: %s%s", ErrArtifactNotFound, id, name)
}

// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package relate derives the typed relationship graph from a set of
// artifacts.
//
// Name resolution is by normalized short name within a kind bucket. A
// reference that resolves to no artifact is never dropped: it becomes an
// edge to an unresolved_ref endpoint at heuristic confidence, so that
// dangling references stay queryable.
package relate

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/substratelabs/atlas/artifact"
)

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithMentions enables the fuzzy mentions_field_string channel.
func WithMentions(enable bool) BuilderOption {
	return func(b *Builder) { b.enableMentions = enable }
}

// Builder derives relationships from one artifact generation.
type Builder struct {
	enableMentions bool
}

// NewBuilder creates a Builder. Mentions edges default to off.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// index buckets artifacts by kind and normalized short name.
type index struct {
	byKindName map[artifact.Kind]map[string][]*artifact.Artifact
	byFile     map[string][]*artifact.Artifact
}

func buildIndex(arts []*artifact.Artifact) *index {
	ix := &index{
		byKindName: make(map[artifact.Kind]map[string][]*artifact.Artifact),
		byFile:     make(map[string][]*artifact.Artifact),
	}
	for _, a := range arts {
		bucket := ix.byKindName[a.Kind]
		if bucket == nil {
			bucket = make(map[string][]*artifact.Artifact)
			ix.byKindName[a.Kind] = bucket
		}
		name := Normalize(a.Name)
		bucket[name] = append(bucket[name], a)
		ix.byFile[a.FilePath] = append(ix.byFile[a.FilePath], a)
	}
	return ix
}

// lookup returns the artifacts of any of the given kinds matching the
// normalized token.
func (ix *index) lookup(token string, kinds ...artifact.Kind) []*artifact.Artifact {
	name := Normalize(token)
	var out []*artifact.Artifact
	for _, k := range kinds {
		out = append(out, ix.byKindName[k][name]...)
	}
	return out
}

// Normalize reduces a reference token to its comparable short name: call
// parens and quotes stripped, the segment after the last dot kept.
func Normalize(token string) string {
	token = strings.TrimSpace(token)
	token = strings.Trim(token, `"'`)
	token = strings.TrimSuffix(token, "()")
	if idx := strings.LastIndex(token, "."); idx >= 0 {
		token = token[idx+1:]
	}
	return token
}

// Build derives the deduplicated relationship set, sorted by rel_id.
func (b *Builder) Build(arts []*artifact.Artifact) []*artifact.Relationship {
	ix := buildIndex(arts)
	sink := newRelSink()

	b.buildDeclares(arts, ix, sink)
	b.buildSerializesModel(arts, ix, sink)
	b.buildViewUsesSerializer(arts, ix, sink)
	b.buildRoutesTo(arts, ix, sink)
	b.buildRegisters(arts, ix, sink)
	if b.enableMentions {
		b.buildMentions(arts, ix, sink)
	}

	rels := sink.sorted()
	slog.Info("relationship graph built",
		slog.Int("artifacts", len(arts)),
		slog.Int("relationships", len(rels)))
	return rels
}

// relSink deduplicates edges by rel_id; the first writer wins.
type relSink struct {
	byID map[string]*artifact.Relationship
}

func newRelSink() *relSink {
	return &relSink{byID: make(map[string]*artifact.Relationship)}
}

func (s *relSink) add(r *artifact.Relationship) {
	if _, ok := s.byID[r.ID]; !ok {
		s.byID[r.ID] = r
	}
}

func (s *relSink) sorted() []*artifact.Relationship {
	out := make([]*artifact.Relationship, 0, len(s.byID))
	for _, r := range s.byID {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// declaredChildKinds maps a child kind to its possible owner kinds.
var declaredChildKinds = map[artifact.Kind][]artifact.Kind{
	artifact.KindModelField:          {artifact.KindModel},
	artifact.KindSerializerField:     {artifact.KindSerializer},
	artifact.KindSerializerValidator: {artifact.KindSerializer},
}

// buildDeclares links owners to the children declared inside their anchor
// span. Ownership is structural: same file, child anchor enclosed by owner
// anchor. Unresolvable children get no edge; ownership is never guessed.
func (b *Builder) buildDeclares(arts []*artifact.Artifact, ix *index, sink *relSink) {
	for _, child := range arts {
		ownerKinds, ok := declaredChildKinds[child.Kind]
		if !ok {
			continue
		}
		owner := encloser(ix.byFile[child.FilePath], child, ownerKinds)
		if owner == nil {
			continue
		}
		rel := artifact.NewRelationship(artifact.RelDeclares,
			artifact.ResolvedEndpoint(owner), artifact.ResolvedEndpoint(child),
			artifact.ConfidenceCertain)
		rel.Evidence = []string{fmt.Sprintf("declared inside %s", owner.Name)}
		sink.add(rel)
	}
}

// encloser picks the innermost artifact of the given kinds whose anchor
// encloses the child.
func encloser(candidates []*artifact.Artifact, child *artifact.Artifact, kinds []artifact.Kind) *artifact.Artifact {
	var best *artifact.Artifact
	for _, c := range candidates {
		if c == child || !kindIn(c.Kind, kinds) {
			continue
		}
		if c.Anchor.StartLine > child.Anchor.StartLine || c.Anchor.EndLine < child.Anchor.EndLine {
			continue
		}
		if best == nil || c.Anchor.StartLine > best.Anchor.StartLine {
			best = c
		}
	}
	return best
}

func kindIn(k artifact.Kind, kinds []artifact.Kind) bool {
	for _, kk := range kinds {
		if k == kk {
			return true
		}
	}
	return false
}

// resolveEdges emits one edge per resolution outcome for a named reference:
// a unique match keeps the given confidence, an ambiguous match downgrades
// one tier, and no match becomes an unresolved endpoint at heuristic.
func resolveEdges(sink *relSink, relType artifact.RelType, from *artifact.Artifact,
	token string, conf artifact.Confidence, evidence string, ix *index, kinds ...artifact.Kind) {

	targets := ix.lookup(token, kinds...)
	switch len(targets) {
	case 0:
		rel := artifact.NewRelationship(relType,
			artifact.ResolvedEndpoint(from), artifact.UnresolvedEndpoint(Normalize(token)),
			artifact.ConfidenceHeuristic)
		rel.Evidence = []string{evidence, "reference did not resolve"}
		sink.add(rel)
	case 1:
		rel := artifact.NewRelationship(relType,
			artifact.ResolvedEndpoint(from), artifact.ResolvedEndpoint(targets[0]), conf)
		rel.Evidence = []string{evidence}
		sink.add(rel)
	default:
		downgraded := downgrade(conf)
		for _, target := range targets {
			rel := artifact.NewRelationship(relType,
				artifact.ResolvedEndpoint(from), artifact.ResolvedEndpoint(target), downgraded)
			rel.Evidence = []string{evidence, fmt.Sprintf("ambiguous: %d candidates", len(targets))}
			sink.add(rel)
		}
	}
}

func downgrade(c artifact.Confidence) artifact.Confidence {
	switch c {
	case artifact.ConfidenceCertain:
		return artifact.ConfidenceProbable
	default:
		return artifact.ConfidenceHeuristic
	}
}

// buildSerializesModel links serializers to their Meta.model reference.
func (b *Builder) buildSerializesModel(arts []*artifact.Artifact, ix *index, sink *relSink) {
	for _, a := range arts {
		if a.Kind != artifact.KindSerializer || a.Meta.Serializer == nil || a.Meta.Serializer.MetaModel == "" {
			continue
		}
		resolveEdges(sink, artifact.RelSerializesModel, a, a.Meta.Serializer.MetaModel,
			artifact.ConfidenceCertain, "inner Meta.model reference", ix, artifact.KindModel)
	}
}

// buildViewUsesSerializer links views to their serializer references: the
// serializer_class attribute at certain, get_serializer_class returns at
// probable.
func (b *Builder) buildViewUsesSerializer(arts []*artifact.Artifact, ix *index, sink *relSink) {
	for _, a := range arts {
		if (a.Kind != artifact.KindViewSet && a.Kind != artifact.KindAPIView) || a.Meta.View == nil {
			continue
		}
		if sc := a.Meta.View.SerializerClass; sc != "" {
			resolveEdges(sink, artifact.RelViewUsesSerializer, a, sc,
				artifact.ConfidenceCertain, "serializer_class attribute", ix, artifact.KindSerializer)
		}
		for _, ret := range a.Meta.View.SerializerReturns {
			resolveEdges(sink, artifact.RelViewUsesSerializer, a, ret,
				artifact.ConfidenceProbable, "returned by get_serializer_class", ix, artifact.KindSerializer)
		}
	}
}

// buildRoutesTo links url patterns to their target views. Include entries
// reference a urlconf module, not a view, so they stay unresolved by
// construction.
func (b *Builder) buildRoutesTo(arts []*artifact.Artifact, ix *index, sink *relSink) {
	for _, a := range arts {
		if a.Kind != artifact.KindURLPattern || a.Meta.URLPattern == nil || a.Meta.URLPattern.Target == "" {
			continue
		}
		target := a.Meta.URLPattern.Target
		if a.Meta.URLPattern.IsInclude {
			rel := artifact.NewRelationship(artifact.RelRoutesTo,
				artifact.ResolvedEndpoint(a), artifact.UnresolvedEndpoint(target),
				artifact.ConfidenceHeuristic)
			rel.Evidence = []string{"include() references a urlconf module"}
			sink.add(rel)
			continue
		}
		resolveEdges(sink, artifact.RelRoutesTo, a, target,
			artifact.ConfidenceCertain, "urlpatterns entry target", ix,
			artifact.KindViewSet, artifact.KindAPIView)
	}
}

// buildRegisters links router registrations to the registered viewset.
func (b *Builder) buildRegisters(arts []*artifact.Artifact, ix *index, sink *relSink) {
	for _, a := range arts {
		if a.Kind != artifact.KindRouterRegister || a.Meta.RouterRegister == nil {
			continue
		}
		resolveEdges(sink, artifact.RelRegisters, a, a.Meta.RouterRegister.Handler,
			artifact.ConfidenceCertain, "router.register handler", ix,
			artifact.KindViewSet, artifact.KindAPIView)
	}
}

// buildMentions emits the fuzzy co-occurrence channel: an edge from any
// artifact whose metadata text contains a field's short name to that field.
// Always heuristic, off by default.
func (b *Builder) buildMentions(arts []*artifact.Artifact, ix *index, sink *relSink) {
	fields := make([]*artifact.Artifact, 0)
	for _, a := range arts {
		if a.Kind == artifact.KindModelField {
			fields = append(fields, a)
		}
	}
	for _, a := range arts {
		if a.Kind == artifact.KindModelField || a.Kind == artifact.KindParseError {
			continue
		}
		text := a.Meta.Text()
		if text == "" {
			continue
		}
		for _, field := range fields {
			if field.FilePath == a.FilePath {
				continue
			}
			if !containsWord(text, field.Name) {
				continue
			}
			rel := artifact.NewRelationship(artifact.RelMentionsFieldString,
				artifact.ResolvedEndpoint(a), artifact.ResolvedEndpoint(field),
				artifact.ConfidenceHeuristic)
			rel.Evidence = []string{fmt.Sprintf("metadata mentions field name %q", field.Name)}
			sink.add(rel)
		}
	}
}

// containsWord reports whether text contains name as a whole token.
func containsWord(text, name string) bool {
	if name == "" {
		return false
	}
	start := 0
	for {
		idx := strings.Index(text[start:], name)
		if idx < 0 {
			return false
		}
		idx += start
		before := idx == 0 || !isWordByte(text[idx-1])
		afterIdx := idx + len(name)
		after := afterIdx >= len(text) || !isWordByte(text[afterIdx])
		if before && after {
			return true
		}
		start = idx + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

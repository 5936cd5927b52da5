// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extract classifies parsed Python declarations into typed
// artifacts.
//
// Classification is rule-table driven: import aliases are resolved into
// qualified names, and class bases, decorators, and call sites are matched
// against explicit tables. Anything unrecognized degrades to a generic
// artifact or an unresolved reference downstream, never to a dropped
// record.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/substratelabs/atlas/artifact"
	"github.com/substratelabs/atlas/ast"
)

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithParser overrides the Python parser.
func WithParser(p *ast.PythonParser) ExtractorOption {
	return func(e *Extractor) { e.parser = p }
}

// Extractor turns one source file into a set of artifacts.
//
// Thread Safety: Extractor is safe for concurrent use after construction.
type Extractor struct {
	parser *ast.PythonParser
}

// NewExtractor creates an Extractor with a default Python parser.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{parser: ast.NewPythonParser()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractFile classifies one file into artifacts.
//
// relPath is the forward-slash path relative to the source root and is
// recorded verbatim on every artifact. Unparseable content yields a
// parse_error artifact rather than an error; only context cancellation is
// fatal.
func (e *Extractor) ExtractFile(ctx context.Context, relPath string, content []byte) ([]*artifact.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	base := path.Base(relPath)
	if isRequirementsFile(base) {
		return extractRequirements(relPath, content), nil
	}
	if !strings.HasSuffix(base, ".py") {
		return nil, nil
	}

	mod, err := e.parser.Parse(ctx, content, relPath)
	if err != nil {
		if errors.Is(err, ast.ErrFileTooLarge) || errors.Is(err, ast.ErrInvalidContent) {
			slog.Warn("file not parseable, recording parse_error",
				slog.String("file", relPath),
				slog.String("reason", err.Error()))
			return []*artifact.Artifact{parseErrorArtifact(relPath, base, err.Error(), 1, 1)}, nil
		}
		return nil, fmt.Errorf("extract %s: %w", relPath, err)
	}

	var out []*artifact.Artifact
	for _, se := range mod.Errors {
		out = append(out, parseErrorArtifact(relPath, base, se.Message, se.Line, se.Col))
	}

	resolver := NewResolver(mod.Imports)

	if isSettingsFile(relPath) {
		out = append(out, extractSettings(relPath, mod)...)
	}

	out = append(out, e.extractClasses(relPath, mod, resolver)...)
	out = append(out, e.extractTasks(relPath, mod)...)
	out = append(out, e.extractURLPatterns(relPath, mod, resolver)...)
	out = append(out, e.extractRouterRegisters(relPath, mod)...)
	out = append(out, e.extractAdminRegisters(relPath, mod, resolver)...)
	out = append(out, e.extractCacheClients(relPath, mod, resolver)...)

	return out, nil
}

// parseErrorArtifact records an unparseable file or region as data.
func parseErrorArtifact(relPath, name, msg string, line, col int) *artifact.Artifact {
	anchor := artifact.Anchor{StartLine: line, StartCol: col, EndLine: line, EndCol: col}
	a := artifact.New(artifact.KindParseError, name, relPath, anchor, artifact.ConfidenceCertain)
	a.Meta.ParseError = &artifact.ParseErrorMeta{Message: msg, Line: line, Col: col}
	return a
}

// extractClasses classifies every class in the module, including a second
// pass that propagates kinds through local inheritance: a class whose base
// is another class classified in the same file inherits its kind at
// probable confidence.
func (e *Extractor) extractClasses(relPath string, mod *ast.Module, r *Resolver) []*artifact.Artifact {
	var out []*artifact.Artifact

	type pending struct {
		cls *ast.Class
	}
	classified := make(map[string]classification, len(mod.Classes))
	var unmatched []pending

	for i := range mod.Classes {
		cls := &mod.Classes[i]
		if c, ok := classify(cls.Bases, r); ok {
			classified[cls.Name] = c
			out = append(out, e.classArtifacts(relPath, cls, c)...)
			continue
		}
		unmatched = append(unmatched, pending{cls: cls})
	}

	// Local inheritance pass.
	var still []pending
	for _, p := range unmatched {
		matched := false
		for _, base := range p.cls.Bases {
			parent, ok := classified[lastSegment(base)]
			if !ok {
				continue
			}
			c := classification{
				kind:       parent.kind,
				confidence: artifact.ConfidenceProbable,
				evidence:   fmt.Sprintf("inherits local %s class %s", parent.kind, lastSegment(base)),
			}
			classified[p.cls.Name] = c
			out = append(out, e.classArtifacts(relPath, p.cls, c)...)
			matched = true
			break
		}
		if !matched {
			still = append(still, p)
		}
	}

	// Generic fallback for anything the table never matched, except
	// classes whose only role is an admin registration (emitted by the
	// decorator path).
	for _, p := range still {
		if hasAdminRegisterDecorator(p.cls) {
			continue
		}
		out = append(out, genericClassArtifact(relPath, p.cls))
	}
	return out
}

// classArtifacts emits the class artifact plus its kind-specific children.
func (e *Extractor) classArtifacts(relPath string, cls *ast.Class, c classification) []*artifact.Artifact {
	anchor := anchorOf(cls.Location)
	a := artifact.New(c.kind, cls.Name, relPath, anchor, c.confidence)
	a.Evidence = []string{c.evidence}

	var out []*artifact.Artifact
	switch c.kind {
	case artifact.KindModel:
		a.Meta.Model = modelMeta(cls)
		out = append(out, a)
		out = append(out, fieldArtifacts(relPath, cls, artifact.KindModelField, c.confidence)...)
	case artifact.KindSerializer:
		a.Meta.Serializer = serializerMeta(cls)
		out = append(out, a)
		out = append(out, fieldArtifacts(relPath, cls, artifact.KindSerializerField, c.confidence)...)
		out = append(out, validatorArtifacts(relPath, cls)...)
	case artifact.KindViewSet, artifact.KindAPIView:
		a.Meta.View = viewMeta(cls)
		out = append(out, a)
	case artifact.KindAppConfig:
		a.Meta.AppConfig = appConfigMeta(cls)
		out = append(out, a)
	default:
		out = append(out, a)
	}
	return out
}

// genericClassArtifact is the forward-compatibility fallback.
func genericClassArtifact(relPath string, cls *ast.Class) *artifact.Artifact {
	a := artifact.New(artifact.KindGeneric, cls.Name, relPath, anchorOf(cls.Location), artifact.ConfidenceHeuristic)
	a.Evidence = []string{"class matched no classification rule"}
	if len(cls.Bases) > 0 {
		a.Meta.Extra = map[string]string{"bases": strings.Join(cls.Bases, ",")}
	}
	return a
}

func modelMeta(cls *ast.Class) *artifact.ModelMeta {
	m := &artifact.ModelMeta{Bases: cls.Bases}
	if meta, ok := cls.InnerClass("Meta"); ok {
		if a, ok := meta.Assignment("abstract"); ok && a.ValueText == "True" {
			m.Abstract = true
		}
		if a, ok := meta.Assignment("db_table"); ok && a.Kind == ast.ValueString {
			m.DBTable = stripQuotes(a.ValueText)
		}
	}
	return m
}

func serializerMeta(cls *ast.Class) *artifact.SerializerMeta {
	m := &artifact.SerializerMeta{Bases: cls.Bases}
	meta, ok := cls.InnerClass("Meta")
	if !ok {
		return m
	}
	if a, ok := meta.Assignment("model"); ok {
		m.MetaModel = a.ValueText
	}
	if a, ok := meta.Assignment("fields"); ok {
		switch a.Kind {
		case ast.ValueList:
			m.MetaFields = a.ListItems
		case ast.ValueString:
			m.MetaFields = []string{stripQuotes(a.ValueText)}
		}
	}
	return m
}

func viewMeta(cls *ast.Class) *artifact.ViewMeta {
	m := &artifact.ViewMeta{Bases: cls.Bases}
	if a, ok := cls.Assignment("serializer_class"); ok {
		m.SerializerClass = a.ValueText
	}
	if method, ok := cls.Method("get_serializer_class"); ok {
		m.SerializerReturns = method.ReturnNames
	}
	if a, ok := cls.Assignment("queryset"); ok {
		m.QuerysetModel = querysetModel(a.ValueText)
	} else if method, ok := cls.Method("get_queryset"); ok {
		for _, name := range method.ReturnNames {
			if model := querysetModel(name); model != "" {
				m.QuerysetModel = model
				break
			}
		}
	}
	return m
}

func appConfigMeta(cls *ast.Class) *artifact.AppConfigMeta {
	m := &artifact.AppConfigMeta{Bases: cls.Bases}
	if a, ok := cls.Assignment("name"); ok && a.Kind == ast.ValueString {
		m.AppName = stripQuotes(a.ValueText)
	}
	return m
}

// querysetModel extracts "User" from tokens like "User.objects.all()".
func querysetModel(token string) string {
	head, rest, found := strings.Cut(token, ".")
	if !found || !strings.HasPrefix(rest, "objects") {
		return ""
	}
	return head
}

// relationFieldCtors are the field constructors that reference another
// model through their first positional argument.
var relationFieldCtors = set("ForeignKey", "OneToOneField", "ManyToManyField")

// fieldArtifacts emits a child artifact per class-body field declaration:
// assignments whose RHS calls a field-constructor-like name.
func fieldArtifacts(relPath string, cls *ast.Class, kind artifact.Kind, conf artifact.Confidence) []*artifact.Artifact {
	var out []*artifact.Artifact
	for i := range cls.Assignments {
		assign := &cls.Assignments[i]
		if assign.Kind != ast.ValueCall || assign.Call == nil {
			continue
		}
		ctor := lastSegment(assign.Call.Func)
		isRelation := relationFieldCtors[ctor]
		isField := strings.HasSuffix(ctor, "Field") || isRelation
		isNested := kind == artifact.KindSerializerField && strings.HasSuffix(ctor, "Serializer")
		if !isField && !isNested {
			continue
		}

		a := artifact.New(kind, assign.Target, relPath, anchorOf(assign.Location), conf)
		a.Evidence = []string{fmt.Sprintf("assignment calls %s", assign.Call.Func)}
		meta := &artifact.FieldMeta{FieldType: assign.Call.Func}
		if isRelation {
			if pos := assign.Call.Positional(); len(pos) > 0 {
				meta.RelatedModel = pos[0]
			}
		}
		if isNested {
			meta.RelatedModel = assign.Call.Func
		}
		if raw, ok := assign.Call.Kwarg("validators"); ok {
			meta.Validators = splitListText(raw)
		}
		for _, arg := range assign.Call.Args {
			if arg.Name == "" || arg.Name == "validators" {
				continue
			}
			if meta.Kwargs == nil {
				meta.Kwargs = make(map[string]string)
			}
			meta.Kwargs[arg.Name] = arg.Value
		}
		a.Meta.Field = meta
		out = append(out, a)
	}
	return out
}

// validatorArtifacts emits serializer_validator children for validate and
// validate_<field> methods.
func validatorArtifacts(relPath string, cls *ast.Class) []*artifact.Artifact {
	var out []*artifact.Artifact
	for i := range cls.Methods {
		m := &cls.Methods[i]
		if m.Name != "validate" && !strings.HasPrefix(m.Name, "validate_") {
			continue
		}
		a := artifact.New(artifact.KindSerializerValidator, m.Name, relPath, anchorOf(m.Location), artifact.ConfidenceCertain)
		a.Evidence = []string{fmt.Sprintf("serializer method %s on %s", m.Name, cls.Name)}
		if field := strings.TrimPrefix(m.Name, "validate_"); field != m.Name {
			a.Meta.Extra = map[string]string{"field": field, "serializer": cls.Name}
		} else {
			a.Meta.Extra = map[string]string{"serializer": cls.Name}
		}
		out = append(out, a)
	}
	return out
}

// extractTasks emits task artifacts for decorated module-level functions.
func (e *Extractor) extractTasks(relPath string, mod *ast.Module) []*artifact.Artifact {
	var out []*artifact.Artifact
	for i := range mod.Functions {
		fn := &mod.Functions[i]
		for _, dec := range fn.Decorators {
			if !taskDecorators[lastSegment(dec.Name)] {
				continue
			}
			a := artifact.New(artifact.KindTask, fn.Name, relPath, anchorOf(fn.Location), artifact.ConfidenceProbable)
			a.Evidence = []string{fmt.Sprintf("decorated with @%s", dec.Name)}
			a.Meta.Task = &artifact.TaskMeta{Decorator: dec.Name}
			out = append(out, a)
			break
		}
	}
	return out
}

// extractCacheClients scans every call site for cache-client constructors.
// Module-level assignments give the client its variable name; anonymous
// call sites fall back to the constructor token.
func (e *Extractor) extractCacheClients(relPath string, mod *ast.Module, r *Resolver) []*artifact.Artifact {
	named := make(map[string]string) // "line:col" -> assignment target
	for i := range mod.Assignments {
		assign := &mod.Assignments[i]
		if assign.Kind == ast.ValueCall && assign.Call != nil {
			named[locKey(assign.Call.Location)] = assign.Target
		}
	}

	var out []*artifact.Artifact
	for i := range mod.Calls {
		call := &mod.Calls[i]
		canonical := r.Resolve(call.Func)
		if !cacheClientCtors[canonical] && !cacheClientNames[lastSegment(call.Func)] {
			continue
		}
		name := named[locKey(call.Location)]
		if name == "" {
			name = call.Func
		}
		a := artifact.New(artifact.KindCacheClient, name, relPath, anchorOf(call.Location), artifact.ConfidenceProbable)
		a.Evidence = []string{fmt.Sprintf("instantiates %s", canonical)}
		a.Meta.CacheClient = &artifact.CacheClientMeta{
			ClassName: call.Func,
			Args:      call.Positional(),
		}
		out = append(out, a)
	}
	return out
}

func locKey(loc ast.Location) string {
	return fmt.Sprintf("%d:%d", loc.StartLine, loc.StartCol)
}

func anchorOf(loc ast.Location) artifact.Anchor {
	return artifact.Anchor{
		StartLine: loc.StartLine,
		StartCol:  loc.StartCol,
		EndLine:   loc.EndLine,
		EndCol:    loc.EndCol,
	}
}

func stripQuotes(text string) string {
	for _, q := range []string{`"`, `'`} {
		if strings.HasPrefix(text, q) && strings.HasSuffix(text, q) && len(text) >= 2 {
			return text[1 : len(text)-1]
		}
	}
	return text
}

// splitListText splits "[a, b(c, d)]" into top-level elements.
func splitListText(raw string) []string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "[")
	raw = strings.TrimSuffix(raw, "]")
	var out []string
	depth, start := 0, 0
	for i, ch := range raw {
		switch ch {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				if el := strings.TrimSpace(raw[start:i]); el != "" {
					out = append(out, el)
				}
				start = i + 1
			}
		}
	}
	if el := strings.TrimSpace(raw[start:]); el != "" {
		out = append(out, el)
	}
	return out
}

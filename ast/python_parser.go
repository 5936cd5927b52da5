// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ast

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// File size constants for parser input validation.
const (
	// DefaultMaxFileSize is the maximum file size the parser accepts (10MB).
	DefaultMaxFileSize = 10 * 1024 * 1024

	// WarnFileSize is the threshold at which a warning is logged (1MB).
	WarnFileSize = 1 * 1024 * 1024

	// MaxValueText caps the raw RHS text captured per assignment.
	MaxValueText = 200

	// MaxSyntaxErrors caps the number of error nodes reported per file.
	MaxSyntaxErrors = 10
)

// PythonParserOption configures a PythonParser.
type PythonParserOption func(*PythonParser)

// WithMaxFileSize sets the maximum file size the parser will accept.
func WithMaxFileSize(bytes int64) PythonParserOption {
	return func(p *PythonParser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// PythonParser parses Python source with tree-sitter.
//
// Thread Safety:
//
//	PythonParser is safe for concurrent use. Each Parse call creates its
//	own tree-sitter parser instance internally.
type PythonParser struct {
	maxFileSize int64
}

// NewPythonParser creates a PythonParser with the given options.
func NewPythonParser(opts ...PythonParserOption) *PythonParser {
	p := &PythonParser{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse extracts the declaration tree from Python source.
//
// Syntax errors are reported in Module.Errors and partial results are
// returned for the recoverable parts of the tree. A non-nil error is
// returned only for complete failures: oversized input, invalid UTF-8, a
// cancelled context, or tree-sitter itself failing.
func (p *PythonParser) Parse(ctx context.Context, content []byte, filePath string) (*Module, error) {
	ctx, span := startParseSpan(ctx, filePath, len(content))
	defer span.End()

	start := time.Now()

	if err := ctx.Err(); err != nil {
		recordParseMetrics(ctx, time.Since(start), false)
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}
	if int64(len(content)) > p.maxFileSize {
		recordParseMetrics(ctx, time.Since(start), false)
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), p.maxFileSize)
	}
	if len(content) > WarnFileSize {
		slog.Warn("parsing large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}
	if !utf8.Valid(content) {
		recordParseMetrics(ctx, time.Since(start), false)
		return nil, fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent)
	}

	hash := sha256.Sum256(content)

	// New parser instance per call for thread safety.
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		recordParseMetrics(ctx, time.Since(start), false)
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	if err := ctx.Err(); err != nil {
		recordParseMetrics(ctx, time.Since(start), false)
		return nil, fmt.Errorf("parse canceled after tree-sitter: %w", err)
	}

	mod := &Module{
		FilePath: filePath,
		Hash:     hex.EncodeToString(hash[:]),
	}

	root := tree.RootNode()
	if root == nil {
		mod.Errors = append(mod.Errors, SyntaxError{Message: "tree-sitter returned nil root node", Line: 1, Col: 1})
		return mod, nil
	}

	if root.HasError() {
		p.collectSyntaxErrors(root, content, mod)
	}

	p.extractModule(root, content, mod)
	p.collectCalls(root, content, mod)

	recordParseMetrics(ctx, time.Since(start), true)
	return mod, nil
}

// collectSyntaxErrors walks the tree for ERROR and missing nodes.
func (p *PythonParser) collectSyntaxErrors(node *sitter.Node, content []byte, mod *Module) {
	if len(mod.Errors) >= MaxSyntaxErrors {
		return
	}
	if node.Type() == "ERROR" || node.IsMissing() {
		snippet := nodeText(node, content)
		if len(snippet) > 40 {
			snippet = snippet[:40] + "..."
		}
		mod.Errors = append(mod.Errors, SyntaxError{
			Message: fmt.Sprintf("syntax error near %q", snippet),
			Line:    int(node.StartPoint().Row + 1),
			Col:     int(node.StartPoint().Column + 1),
		})
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if child := node.Child(i); child != nil && child.HasError() {
			p.collectSyntaxErrors(child, content, mod)
		}
	}
}

// extractModule walks top-level statements.
func (p *PythonParser) extractModule(root *sitter.Node, content []byte, mod *Module) {
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "import_statement":
			p.extractImport(child, content, mod)
		case "import_from_statement":
			p.extractFromImport(child, content, mod)
		case "class_definition":
			mod.Classes = append(mod.Classes, p.extractClass(child, content, nil))
		case "function_definition", "async_function_definition":
			mod.Functions = append(mod.Functions, p.extractFunction(child, content, nil))
		case "decorated_definition":
			p.extractDecorated(child, content, mod)
		case "expression_statement":
			if a, ok := p.extractAssignment(child, content); ok {
				mod.Assignments = append(mod.Assignments, a)
			}
		}
	}
}

// extractDecorated handles a decorated class or function at module level.
func (p *PythonParser) extractDecorated(node *sitter.Node, content []byte, mod *Module) {
	decorators := p.extractDecorators(node, content)

	def := node.ChildByFieldName("definition")
	if def == nil {
		// Fall back to the last child for older grammar revisions.
		def = node.Child(int(node.ChildCount()) - 1)
	}
	if def == nil {
		return
	}

	switch def.Type() {
	case "class_definition":
		mod.Classes = append(mod.Classes, p.extractClass(def, content, decorators))
	case "function_definition", "async_function_definition":
		mod.Functions = append(mod.Functions, p.extractFunction(def, content, decorators))
	}
}

// extractDecorators collects the decorator list of a decorated_definition.
func (p *PythonParser) extractDecorators(node *sitter.Node, content []byte) []Decorator {
	var out []Decorator
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil || child.Type() != "decorator" {
			continue
		}
		// The decorator expression is the first named child after "@".
		var expr *sitter.Node
		for j := 0; j < int(child.NamedChildCount()); j++ {
			expr = child.NamedChild(j)
			break
		}
		if expr == nil {
			continue
		}

		dec := Decorator{Location: location(child)}
		if expr.Type() == "call" {
			call := p.extractCall(expr, content)
			dec.Name = call.Func
			dec.Args = call.Args
		} else {
			dec.Name = nodeText(expr, content)
		}
		out = append(out, dec)
	}
	return out
}

// extractClass builds a Class from a class_definition node.
func (p *PythonParser) extractClass(node *sitter.Node, content []byte, decorators []Decorator) Class {
	cls := Class{
		Decorators: decorators,
		Location:   location(node),
	}
	if decorators != nil {
		// Anchor the class at the decorated definition's start so child
		// artifacts stay within the parent span.
		cls.Location.StartLine = decorators[0].Location.StartLine
	}

	if name := node.ChildByFieldName("name"); name != nil {
		cls.Name = nodeText(name, content)
	}
	if supers := node.ChildByFieldName("superclasses"); supers != nil {
		for i := 0; i < int(supers.NamedChildCount()); i++ {
			arg := supers.NamedChild(i)
			if arg == nil || arg.Type() == "keyword_argument" {
				// metaclass=... is not a base class.
				continue
			}
			cls.Bases = append(cls.Bases, nodeText(arg, content))
		}
	}

	body := node.ChildByFieldName("body")
	if body == nil {
		return cls
	}

	for i := 0; i < int(body.ChildCount()); i++ {
		stmt := body.Child(i)
		if stmt == nil {
			continue
		}
		switch stmt.Type() {
		case "expression_statement":
			if a, ok := p.extractAssignment(stmt, content); ok {
				cls.Assignments = append(cls.Assignments, a)
			}
		case "function_definition", "async_function_definition":
			cls.Methods = append(cls.Methods, p.extractMethod(stmt, content, nil))
		case "class_definition":
			cls.Inner = append(cls.Inner, p.extractClass(stmt, content, nil))
		case "decorated_definition":
			decs := p.extractDecorators(stmt, content)
			def := stmt.ChildByFieldName("definition")
			if def == nil {
				continue
			}
			switch def.Type() {
			case "function_definition", "async_function_definition":
				cls.Methods = append(cls.Methods, p.extractMethod(def, content, decs))
			case "class_definition":
				cls.Inner = append(cls.Inner, p.extractClass(def, content, decs))
			}
		}
	}
	return cls
}

// extractMethod builds a Method, collecting return-expression tokens.
func (p *PythonParser) extractMethod(node *sitter.Node, content []byte, decorators []Decorator) Method {
	m := Method{
		Decorators: decorators,
		Location:   location(node),
	}
	if name := node.ChildByFieldName("name"); name != nil {
		m.Name = nodeText(name, content)
	}
	if body := node.ChildByFieldName("body"); body != nil {
		p.collectReturnNames(body, content, &m)
	}
	return m
}

// collectReturnNames walks a method body for return statements, recording
// the returned name or callee token. Nested function definitions are not
// descended into.
func (p *PythonParser) collectReturnNames(node *sitter.Node, content []byte, m *Method) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "function_definition", "async_function_definition", "class_definition":
			continue
		case "return_statement":
			if expr := returnExpression(child); expr != nil {
				if name := expressionToken(expr, content); name != "" {
					m.ReturnNames = append(m.ReturnNames, name)
				}
			}
		default:
			p.collectReturnNames(child, content, m)
		}
	}
}

// returnExpression returns the expression node of a return statement.
func returnExpression(node *sitter.Node) *sitter.Node {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		return node.NamedChild(i)
	}
	return nil
}

// expressionToken reduces an expression to its primary name token:
// identifiers and attributes verbatim, calls to their callee token.
// Other expressions (conditionals, subscripts) descend into their first
// named child to find a usable token.
func expressionToken(node *sitter.Node, content []byte) string {
	switch node.Type() {
	case "identifier", "attribute":
		return nodeText(node, content)
	case "call":
		if fn := node.ChildByFieldName("function"); fn != nil {
			return nodeText(fn, content)
		}
	case "conditional_expression", "parenthesized_expression":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			if tok := expressionToken(node.NamedChild(i), content); tok != "" {
				return tok
			}
		}
	}
	return ""
}

// extractFunction builds a module-level Function.
func (p *PythonParser) extractFunction(node *sitter.Node, content []byte, decorators []Decorator) Function {
	fn := Function{
		Decorators: decorators,
		Location:   location(node),
	}
	if decorators != nil {
		fn.Location.StartLine = decorators[0].Location.StartLine
	}
	if name := node.ChildByFieldName("name"); name != nil {
		fn.Name = nodeText(name, content)
	}
	return fn
}

// extractAssignment pulls a single-target assignment out of an
// expression_statement. Multi-target and augmented assignments are skipped.
func (p *PythonParser) extractAssignment(stmt *sitter.Node, content []byte) (Assignment, bool) {
	var assign *sitter.Node
	for i := 0; i < int(stmt.NamedChildCount()); i++ {
		child := stmt.NamedChild(i)
		if child != nil && child.Type() == "assignment" {
			assign = child
			break
		}
	}
	if assign == nil {
		return Assignment{}, false
	}

	left := assign.ChildByFieldName("left")
	right := assign.ChildByFieldName("right")
	if left == nil || right == nil {
		return Assignment{}, false
	}
	if left.Type() != "identifier" && left.Type() != "attribute" {
		return Assignment{}, false
	}

	a := Assignment{
		Target:   nodeText(left, content),
		Location: location(assign),
	}

	text := nodeText(right, content)
	if len(text) > MaxValueText {
		text = text[:MaxValueText]
	}
	a.ValueText = text

	switch right.Type() {
	case "call":
		a.Kind = ValueCall
		call := p.extractCall(right, content)
		a.Call = &call
	case "list", "tuple":
		a.Kind = ValueList
		p.extractListValue(right, content, &a)
	case "dictionary":
		a.Kind = ValueDict
		for i := 0; i < int(right.NamedChildCount()); i++ {
			pair := right.NamedChild(i)
			if pair == nil || pair.Type() != "pair" {
				continue
			}
			if key := pair.ChildByFieldName("key"); key != nil {
				a.DictKeys = append(a.DictKeys, stringLiteral(nodeText(key, content)))
			}
		}
	case "string", "concatenated_string":
		a.Kind = ValueString
	case "identifier", "attribute":
		a.Kind = ValueName
	default:
		a.Kind = ValueOther
	}
	return a, true
}

// extractListValue records scalar items and element calls of a list RHS.
func (p *PythonParser) extractListValue(node *sitter.Node, content []byte, a *Assignment) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		el := node.NamedChild(i)
		if el == nil {
			continue
		}
		switch el.Type() {
		case "call":
			a.Calls = append(a.Calls, p.extractCall(el, content))
		case "string":
			a.ListItems = append(a.ListItems, stringLiteral(nodeText(el, content)))
		case "identifier", "attribute":
			a.ListItems = append(a.ListItems, nodeText(el, content))
		}
	}
}

// extractCall builds a Call from a call node.
func (p *PythonParser) extractCall(node *sitter.Node, content []byte) Call {
	call := Call{Location: location(node)}

	if fn := node.ChildByFieldName("function"); fn != nil {
		call.Func = nodeText(fn, content)
	}

	args := node.ChildByFieldName("arguments")
	if args == nil {
		return call
	}
	for i := 0; i < int(args.NamedChildCount()); i++ {
		arg := args.NamedChild(i)
		if arg == nil {
			continue
		}
		if arg.Type() == "keyword_argument" {
			ka := CallArg{}
			if name := arg.ChildByFieldName("name"); name != nil {
				ka.Name = nodeText(name, content)
			}
			if value := arg.ChildByFieldName("value"); value != nil {
				ka.Value = stringLiteral(nodeText(value, content))
			}
			call.Args = append(call.Args, ka)
			continue
		}
		call.Args = append(call.Args, CallArg{Value: stringLiteral(nodeText(arg, content))})
	}
	return call
}

// extractImport handles "import a.b.c" and "import a.b as x".
func (p *PythonParser) extractImport(node *sitter.Node, content []byte, mod *Module) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "dotted_name":
			module := nodeText(child, content)
			mod.Imports = append(mod.Imports, Import{
				Module:   module,
				Alias:    lastSegment(module),
				Location: location(node),
			})
		case "aliased_import":
			imp := Import{Location: location(node)}
			if name := child.ChildByFieldName("name"); name != nil {
				imp.Module = nodeText(name, content)
			}
			if alias := child.ChildByFieldName("alias"); alias != nil {
				imp.Alias = nodeText(alias, content)
			}
			if imp.Alias == "" {
				imp.Alias = lastSegment(imp.Module)
			}
			mod.Imports = append(mod.Imports, imp)
		}
	}
}

// extractFromImport handles "from a.b import c, d as e".
func (p *PythonParser) extractFromImport(node *sitter.Node, content []byte, mod *Module) {
	var module string
	if mn := node.ChildByFieldName("module_name"); mn != nil {
		module = nodeText(mn, content)
	}

	// Named children after module_name are the imported names.
	seenModule := false
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}
		if !seenModule {
			// The first dotted_name/relative_import is the module itself.
			if child.Type() == "dotted_name" || child.Type() == "relative_import" {
				seenModule = true
				continue
			}
		}
		switch child.Type() {
		case "dotted_name", "identifier":
			name := nodeText(child, content)
			mod.Imports = append(mod.Imports, Import{
				Module:   module,
				Name:     name,
				Alias:    lastSegment(name),
				Location: location(node),
			})
		case "aliased_import":
			imp := Import{Module: module, Location: location(node)}
			if name := child.ChildByFieldName("name"); name != nil {
				imp.Name = nodeText(name, content)
			}
			if alias := child.ChildByFieldName("alias"); alias != nil {
				imp.Alias = nodeText(alias, content)
			}
			if imp.Alias == "" {
				imp.Alias = lastSegment(imp.Name)
			}
			mod.Imports = append(mod.Imports, imp)
		case "wildcard_import":
			mod.Imports = append(mod.Imports, Import{
				Module:   module,
				Name:     "*",
				Alias:    "*",
				Location: location(node),
			})
		}
	}
}

// collectCalls gathers every call node in the file.
func (p *PythonParser) collectCalls(node *sitter.Node, content []byte, mod *Module) {
	if node.Type() == "call" {
		mod.Calls = append(mod.Calls, p.extractCall(node, content))
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if child := node.Child(i); child != nil {
			p.collectCalls(child, content, mod)
		}
	}
}

// nodeText returns the source text of a node.
func nodeText(node *sitter.Node, content []byte) string {
	return string(content[node.StartByte():node.EndByte()])
}

// location converts a node's span to a 1-based Location.
func location(node *sitter.Node) Location {
	return Location{
		StartLine: int(node.StartPoint().Row + 1),
		StartCol:  int(node.StartPoint().Column + 1),
		EndLine:   int(node.EndPoint().Row + 1),
		EndCol:    int(node.EndPoint().Column + 1),
	}
}

// lastSegment returns the text after the final dot.
func lastSegment(dotted string) string {
	if idx := strings.LastIndex(dotted, "."); idx >= 0 {
		return dotted[idx+1:]
	}
	return dotted
}

// stringLiteral strips quotes and string prefixes from a literal token.
// Non-string tokens are returned unchanged.
func stringLiteral(text string) string {
	trimmed := strings.TrimLeft(text, "rbufRBUF")
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(trimmed, q) && strings.HasSuffix(trimmed, q) && len(trimmed) >= 2*len(q) {
			return trimmed[len(q) : len(trimmed)-len(q)]
		}
	}
	return text
}

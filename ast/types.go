// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ast parses Python source into a typed declaration tree.
//
// The parser is deliberately shallow: it extracts exactly the structure the
// Django classifier needs (classes with bases, decorators and body
// assignments; module assignments; imports with aliases; every call site)
// and nothing else. Syntax errors are reported per file and never abort
// parsing of other files.
package ast

import "fmt"

// Location is a 1-based, end-inclusive source span.
type Location struct {
	StartLine int `json:"start_line"`
	StartCol  int `json:"start_col"`
	EndLine   int `json:"end_line"`
	EndCol    int `json:"end_col"`
}

// Import records one imported binding and its local alias.
//
// For "import django.db.models as db", Module="django.db.models",
// Name="", Alias="db". For "from django.db import models as m",
// Module="django.db", Name="models", Alias="m". When no alias is written,
// Alias is the default local name (last dotted segment, or Name).
type Import struct {
	Module   string   `json:"module"`
	Name     string   `json:"name,omitempty"`
	Alias    string   `json:"alias"`
	Location Location `json:"location"`
}

// Qualified returns the full dotted path of the imported binding.
func (i Import) Qualified() string {
	if i.Name == "" {
		return i.Module
	}
	if i.Module == "" {
		return i.Name
	}
	return i.Module + "." + i.Name
}

// CallArg is one argument in a call. Name is set for keyword arguments.
type CallArg struct {
	Name  string `json:"name,omitempty"`
	Value string `json:"value"`
}

// Call is one call site. Func is the dotted callee token as written,
// e.g. "models.ForeignKey" or "router.register".
type Call struct {
	Func     string    `json:"func"`
	Args     []CallArg `json:"args,omitempty"`
	Location Location  `json:"location"`
}

// Positional returns the positional argument values in order.
func (c Call) Positional() []string {
	var out []string
	for _, a := range c.Args {
		if a.Name == "" {
			out = append(out, a.Value)
		}
	}
	return out
}

// Kwarg returns the value of the named keyword argument, if present.
func (c Call) Kwarg(name string) (string, bool) {
	for _, a := range c.Args {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Decorator is one applied decorator. Name excludes the leading "@" and
// any call arguments: "@app.task(bind=True)" has Name "app.task".
type Decorator struct {
	Name     string    `json:"name"`
	Args     []CallArg `json:"args,omitempty"`
	Location Location  `json:"location"`
}

// ValueKind classifies the right-hand side of an assignment.
type ValueKind string

const (
	ValueCall   ValueKind = "call"
	ValueList   ValueKind = "list"
	ValueDict   ValueKind = "dict"
	ValueString ValueKind = "string"
	ValueName   ValueKind = "name"
	ValueOther  ValueKind = "other"
)

// Assignment is one single-target assignment statement.
type Assignment struct {
	// Target is the left-hand identifier (or dotted attribute).
	Target string `json:"target"`

	// Kind classifies the right-hand side.
	Kind ValueKind `json:"kind"`

	// Call is set when the RHS is a call.
	Call *Call `json:"call,omitempty"`

	// Calls holds calls that are direct elements of a list/tuple RHS,
	// preserving order. This is how urlpatterns entries surface.
	Calls []Call `json:"calls,omitempty"`

	// ListItems holds best-effort scalar elements of a list/tuple RHS.
	ListItems []string `json:"list_items,omitempty"`

	// DictKeys holds best-effort top-level keys of a dict RHS.
	DictKeys []string `json:"dict_keys,omitempty"`

	// ValueText is the raw RHS text, truncated to MaxValueText bytes.
	ValueText string `json:"value_text,omitempty"`

	Location Location `json:"location"`
}

// Method is one function defined inside a class body.
type Method struct {
	Name       string      `json:"name"`
	Decorators []Decorator `json:"decorators,omitempty"`

	// ReturnNames are the callee/name tokens of the method's return
	// statements, in order: "return UserSerializer" and
	// "return UserSerializer(...)" both contribute "UserSerializer".
	ReturnNames []string `json:"return_names,omitempty"`

	Location Location `json:"location"`
}

// Class is one class definition.
type Class struct {
	Name       string      `json:"name"`
	Bases      []string    `json:"bases,omitempty"`
	Decorators []Decorator `json:"decorators,omitempty"`

	// Assignments are the direct class-body assignments, one level deep.
	Assignments []Assignment `json:"assignments,omitempty"`

	Methods []Method `json:"methods,omitempty"`

	// Inner holds nested class definitions, notably "class Meta".
	Inner []Class `json:"inner,omitempty"`

	Location Location `json:"location"`
}

// InnerClass returns the nested class with the given name, if any.
func (c *Class) InnerClass(name string) (*Class, bool) {
	for i := range c.Inner {
		if c.Inner[i].Name == name {
			return &c.Inner[i], true
		}
	}
	return nil, false
}

// Assignment returns the class-body assignment with the given target.
func (c *Class) Assignment(target string) (*Assignment, bool) {
	for i := range c.Assignments {
		if c.Assignments[i].Target == target {
			return &c.Assignments[i], true
		}
	}
	return nil, false
}

// Method returns the method with the given name.
func (c *Class) Method(name string) (*Method, bool) {
	for i := range c.Methods {
		if c.Methods[i].Name == name {
			return &c.Methods[i], true
		}
	}
	return nil, false
}

// Function is one module-level function definition.
type Function struct {
	Name       string      `json:"name"`
	Decorators []Decorator `json:"decorators,omitempty"`
	Location   Location    `json:"location"`
}

// SyntaxError is one recoverable parse problem.
type SyntaxError struct {
	Message string `json:"message"`
	Line    int    `json:"line"`
	Col     int    `json:"col"`
}

func (e SyntaxError) Error() string {
	return fmt.Sprintf("%s at %d:%d", e.Message, e.Line, e.Col)
}

// Module is the parse result for one file.
type Module struct {
	FilePath    string       `json:"file_path"`
	Classes     []Class      `json:"classes,omitempty"`
	Functions   []Function   `json:"functions,omitempty"`
	Assignments []Assignment `json:"assignments,omitempty"`
	Imports     []Import     `json:"imports,omitempty"`

	// Calls holds every call site in the file, from a full-tree walk,
	// independent of nesting. Client-instantiation detection relies on
	// this being complete.
	Calls []Call `json:"calls,omitempty"`

	// Errors lists syntax problems; a non-empty list does not prevent
	// partial extraction from the recoverable parts of the tree.
	Errors []SyntaxError `json:"errors,omitempty"`

	// Hash is the lowercase hex SHA-256 of the parsed content.
	Hash string `json:"hash"`
}

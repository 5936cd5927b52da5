// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package verify runs declarative check suites against the analysis
// outputs. Suites are data, not code: every check type resolves through
// fixed tables, never through expression evaluation.
package verify

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Check types accepted in suite documents.
const (
	CheckFileExists = "file_exists"
	CheckJSONSchema = "json_schema"
	CheckInvariant  = "invariant"
	CheckQuery      = "query"
	CheckGraph      = "graph"
)

// Severities. Only failed high checks fail a suite.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// Sentinel errors for suite loading and execution.
var (
	// ErrInvalidDocument indicates a suite document that failed
	// structural validation.
	ErrInvalidDocument = errors.New("invalid suite document")

	// ErrSuiteNotFound indicates a suite ID not present in any loaded
	// document.
	ErrSuiteNotFound = errors.New("suite not found")

	// ErrUnknownInvariant indicates an invariant check naming an ID
	// outside the fixed set.
	ErrUnknownInvariant = errors.New("unknown invariant")
)

// Document is a suite file as loaded from YAML or JSON.
type Document struct {
	Suites []Suite `yaml:"suites" json:"suites" validate:"required,min=1,dive"`
}

// Suite is one named group of checks.
type Suite struct {
	ID          string  `yaml:"id" json:"id" validate:"required"`
	Description string  `yaml:"description" json:"description,omitempty"`
	Checks      []Check `yaml:"checks" json:"checks" validate:"required,min=1,dive"`
}

// Check is one declarative assertion. Which parameter fields apply
// depends on Type.
type Check struct {
	ID          string `yaml:"id" json:"id" validate:"required"`
	Type        string `yaml:"type" json:"type" validate:"required,oneof=file_exists json_schema invariant query graph"`
	Severity    string `yaml:"severity" json:"severity,omitempty" validate:"omitempty,oneof=high medium low"`
	Description string `yaml:"description" json:"description,omitempty"`

	// PathKey names a configured path for file_exists and json_schema.
	PathKey string `yaml:"path_key" json:"path_key,omitempty"`

	// Required lists top-level keys a json_schema check demands.
	Required []RequiredKey `yaml:"required" json:"required,omitempty" validate:"dive"`

	// Invariant names the fixed invariant an invariant check runs.
	Invariant string `yaml:"invariant" json:"invariant,omitempty"`

	// Op and Args drive a query check through the op dispatcher.
	Op   string         `yaml:"op" json:"op,omitempty"`
	Args map[string]any `yaml:"args" json:"args,omitempty"`

	// Expect holds structural expectations for query and graph checks.
	Expect *Expectation `yaml:"expect" json:"expect,omitempty"`
}

// RequiredKey is one top-level key demanded by a json_schema check.
type RequiredKey struct {
	Key  string `yaml:"key" json:"key" validate:"required"`
	Type string `yaml:"type" json:"type,omitempty" validate:"omitempty,oneof=list dict string int bool null"`
}

// Expectation bounds a check result. Nil fields are unchecked.
type Expectation struct {
	MinResults *int `yaml:"min_results" json:"min_results,omitempty"`
	MaxResults *int `yaml:"max_results" json:"max_results,omitempty"`
	MinEdges   *int `yaml:"min_edges" json:"min_edges,omitempty"`
	MaxOrphans *int `yaml:"max_orphans" json:"max_orphans,omitempty"`
}

// EffectiveSeverity returns the check severity, defaulting to high so an
// untagged check can never fail silently.
func (c *Check) EffectiveSeverity() string {
	if c.Severity == "" {
		return SeverityHigh
	}
	return c.Severity
}

var validate = validator.New()

// ParseDocument decodes and validates a suite document. YAML is a
// superset of JSON, so one decoder serves both formats.
func ParseDocument(raw []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := validate.Struct(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	seen := make(map[string]bool)
	for _, s := range doc.Suites {
		if seen[s.ID] {
			return nil, fmt.Errorf("%w: duplicate suite id %q", ErrInvalidDocument, s.ID)
		}
		seen[s.ID] = true
	}
	return &doc, nil
}

// LoadDocument reads a suite document from a .yaml, .yml, or .json file.
func LoadDocument(path string) (*Document, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
	default:
		return nil, fmt.Errorf("%w: unsupported extension %q", ErrInvalidDocument, filepath.Ext(path))
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read suite document: %w", err)
	}
	return ParseDocument(raw)
}

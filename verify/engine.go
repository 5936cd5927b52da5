// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package verify

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/substratelabs/atlas/config"
	"github.com/substratelabs/atlas/query"
)

//go:embed suites/default.yaml
var defaultSuites []byte

// DefaultCheckConcurrency bounds parallel check execution per suite.
const DefaultCheckConcurrency = 4

// CheckResult is the outcome of one check.
type CheckResult struct {
	CheckID       string `json:"check_id"`
	Type          string `json:"type"`
	Severity      string `json:"severity"`
	Passed        bool   `json:"passed"`
	Detail        string `json:"detail,omitempty"`
	DurationMilli int64  `json:"duration_ms"`
}

// SuiteResult is the persisted outcome of one suite run.
type SuiteResult struct {
	SuiteID        string        `json:"suite_id"`
	RunID          string        `json:"run_id"`
	StartedAtMilli int64         `json:"started_at_ms"`
	DurationMilli  int64         `json:"duration_ms"`
	Passed         bool          `json:"passed"`
	Checks         []CheckResult `json:"checks"`
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithConcurrency bounds how many checks run in parallel.
func WithConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithDocuments replaces the embedded default suite documents.
func WithDocuments(docs ...*Document) RunnerOption {
	return func(r *Runner) { r.docs = docs }
}

// Runner executes verification suites. Verification is read-only: it
// never mutates pipeline state, so a failing suite leaves everything as
// it was.
type Runner struct {
	cfg         *config.Config
	index       *query.Index
	docs        []*Document
	concurrency int
}

// NewRunner builds a Runner over cfg and ix, seeded with the embedded
// default suites.
func NewRunner(cfg *config.Config, ix *query.Index, opts ...RunnerOption) (*Runner, error) {
	doc, err := ParseDocument(defaultSuites)
	if err != nil {
		return nil, fmt.Errorf("parse embedded suites: %w", err)
	}
	r := &Runner{
		cfg:         cfg,
		index:       ix,
		docs:        []*Document{doc},
		concurrency: DefaultCheckConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// AddDocument registers an extra suite document alongside the defaults.
func (r *Runner) AddDocument(doc *Document) {
	r.docs = append(r.docs, doc)
}

// Suite finds a suite by ID across all loaded documents.
func (r *Runner) Suite(id string) (Suite, error) {
	var known []string
	for _, doc := range r.docs {
		for _, s := range doc.Suites {
			if s.ID == id {
				return s, nil
			}
			known = append(known, s.ID)
		}
	}
	return Suite{}, fmt.Errorf("%w: %q (known: %v)", ErrSuiteNotFound, id, known)
}

// RunSuite executes one suite, persists the result under the run
// directory, and returns it. The suite passes unless a high-severity
// check fails.
func (r *Runner) RunSuite(ctx context.Context, suiteID, runID string) (*SuiteResult, error) {
	suite, err := r.Suite(suiteID)
	if err != nil {
		return nil, err
	}
	if !r.index.Loaded() {
		if err := r.index.Reload(); err != nil {
			return nil, fmt.Errorf("load index for verification: %w", err)
		}
	}

	start := time.Now()
	result := &SuiteResult{
		SuiteID:        suite.ID,
		RunID:          runID,
		StartedAtMilli: start.UnixMilli(),
		Checks:         make([]CheckResult, len(suite.Checks)),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, check := range suite.Checks {
		i, check := i, check
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			result.Checks[i] = r.runCheck(check)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result.Passed = true
	for _, cr := range result.Checks {
		if !cr.Passed && cr.Severity == SeverityHigh {
			result.Passed = false
		}
	}
	result.DurationMilli = time.Since(start).Milliseconds()

	if err := r.persist(result); err != nil {
		return nil, err
	}
	slog.Info("verification suite complete",
		slog.String("suite_id", suite.ID),
		slog.String("run_id", runID),
		slog.Bool("passed", result.Passed),
		slog.Int("checks", len(result.Checks)),
	)
	return result, nil
}

// runCheck dispatches one check by type.
func (r *Runner) runCheck(check Check) CheckResult {
	start := time.Now()
	var passed bool
	var detail string
	switch check.Type {
	case CheckFileExists:
		passed, detail = checkFileExists(r.cfg, check)
	case CheckJSONSchema:
		passed, detail = checkJSONSchema(r.cfg, check)
	case CheckInvariant:
		passed, detail = checkInvariant(r.index, check)
	case CheckQuery:
		passed, detail = checkQuery(r.index, check)
	case CheckGraph:
		passed, detail = checkGraph(r.index, check)
	default:
		detail = fmt.Sprintf("unsupported check type %q", check.Type)
	}
	return CheckResult{
		CheckID:       check.ID,
		Type:          check.Type,
		Severity:      check.EffectiveSeverity(),
		Passed:        passed,
		Detail:        detail,
		DurationMilli: time.Since(start).Milliseconds(),
	}
}

// persist writes the result under runs/<run_id>/suite_<suite_id>.json.
func (r *Runner) persist(result *SuiteResult) error {
	dir := filepath.Join(r.cfg.RunsDir(), result.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create run directory: %w", err)
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode suite result: %w", err)
	}
	path := filepath.Join(dir, "suite_"+result.SuiteID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write suite result: %w", err)
	}
	return nil
}

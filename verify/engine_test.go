// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package verify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/substratelabs/atlas/artifact"
	"github.com/substratelabs/atlas/config"
	"github.com/substratelabs/atlas/query"
)

// testRunner builds a Runner over a state dir with payload files on disk
// and a matching in-memory snapshot.
func testRunner(t *testing.T, arts []*artifact.Artifact, rels []*artifact.Relationship) (*Runner, *config.Config) {
	t.Helper()
	cfg := config.Default(t.TempDir(), t.TempDir())

	writeJSON := func(path, content string) {
		t.Helper()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	writeJSON(cfg.Paths.ArtifactsOut, `{"fingerprint":"f1","artifacts":[]}`)
	writeJSON(cfg.Paths.RelationshipsOut, `{"fingerprint":"f1","relationships":[]}`)
	writeJSON(cfg.Paths.BlueprintsOut, `{"fingerprint":"f1","inventory":{}}`)

	ix := query.NewIndex(cfg)
	ix.Load(arts, rels)

	r, err := NewRunner(cfg, ix)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return r, cfg
}

func testSnapshot(t *testing.T) ([]*artifact.Artifact, []*artifact.Relationship) {
	t.Helper()
	model := artifact.New(artifact.KindModel, "User", "app/models.py",
		artifact.Anchor{StartLine: 5, StartCol: 1, EndLine: 20, EndCol: 1}, artifact.ConfidenceCertain)
	field := artifact.New(artifact.KindModelField, "email", "app/models.py",
		artifact.Anchor{StartLine: 8, StartCol: 5, EndLine: 8, EndCol: 40}, artifact.ConfidenceCertain)
	rel := artifact.NewRelationship(artifact.RelDeclares,
		artifact.ResolvedEndpoint(model), artifact.ResolvedEndpoint(field), artifact.ConfidenceCertain)
	return []*artifact.Artifact{model, field}, []*artifact.Relationship{rel}
}

func TestParseDocument_Validation(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr bool
	}{
		{
			name: "valid minimal suite",
			doc: `suites:
  - id: s1
    checks:
      - id: c1
        type: graph
`,
		},
		{
			name: "bad severity rejected",
			doc: `suites:
  - id: s1
    checks:
      - id: c1
        type: graph
        severity: catastrophic
`,
			wantErr: true,
		},
		{
			name: "bad check type rejected",
			doc: `suites:
  - id: s1
    checks:
      - id: c1
        type: shell_exec
`,
			wantErr: true,
		},
		{
			name: "suite without checks rejected",
			doc: `suites:
  - id: s1
    checks: []
`,
			wantErr: true,
		},
		{
			name: "duplicate suite ids rejected",
			doc: `suites:
  - id: s1
    checks:
      - {id: c1, type: graph}
  - id: s1
    checks:
      - {id: c2, type: graph}
`,
			wantErr: true,
		},
		{
			name: "json form accepted",
			doc:  `{"suites":[{"id":"s1","checks":[{"id":"c1","type":"stats","severity":"low"}]}]}`,
			// "stats" is not a check type.
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDocument([]byte(tt.doc))
			if tt.wantErr && !errors.Is(err, ErrInvalidDocument) {
				t.Errorf("err = %v, want ErrInvalidDocument", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("err = %v", err)
			}
		})
	}
}

func TestRunSuite_Defaults(t *testing.T) {
	arts, rels := testSnapshot(t)
	r, cfg := testRunner(t, arts, rels)

	for _, suiteID := range []string{"core", "invariants"} {
		res, err := r.RunSuite(context.Background(), suiteID, "run-1")
		if err != nil {
			t.Fatalf("RunSuite(%s): %v", suiteID, err)
		}
		if !res.Passed {
			t.Errorf("suite %s failed: %+v", suiteID, res.Checks)
		}
		persisted := filepath.Join(cfg.RunsDir(), "run-1", "suite_"+suiteID+".json")
		if _, err := os.Stat(persisted); err != nil {
			t.Errorf("result not persisted: %v", err)
		}
	}
}

func TestRunSuite_UnknownSuite(t *testing.T) {
	arts, rels := testSnapshot(t)
	r, _ := testRunner(t, arts, rels)

	_, err := r.RunSuite(context.Background(), "no-such-suite", "run-1")
	if !errors.Is(err, ErrSuiteNotFound) {
		t.Errorf("err = %v, want ErrSuiteNotFound", err)
	}
}

func TestRunSuite_HighSeverityFails(t *testing.T) {
	model := artifact.New(artifact.KindModel, "User", "app/models.py",
		artifact.Anchor{StartLine: 5, StartCol: 1, EndLine: 20, EndCol: 1}, artifact.ConfidenceCertain)
	dup := *model
	_, rels := testSnapshot(t)
	r, _ := testRunner(t, []*artifact.Artifact{model, &dup}, rels)

	res, err := r.RunSuite(context.Background(), "invariants", "run-2")
	if err != nil {
		t.Fatalf("RunSuite: %v", err)
	}
	if res.Passed {
		t.Error("duplicate artifact IDs should fail the invariants suite")
	}
	var sawFailure bool
	for _, cr := range res.Checks {
		if cr.CheckID == "artifact-ids-unique" && !cr.Passed {
			sawFailure = true
		}
	}
	if !sawFailure {
		t.Errorf("checks = %+v", res.Checks)
	}
}

func TestRunSuite_LowSeverityDoesNotFail(t *testing.T) {
	// No relationships: the low-severity graph check fails, the suite
	// still passes.
	model := artifact.New(artifact.KindModel, "User", "app/models.py",
		artifact.Anchor{StartLine: 5, StartCol: 1, EndLine: 20, EndCol: 1}, artifact.ConfidenceCertain)
	r, _ := testRunner(t, []*artifact.Artifact{model}, nil)

	res, err := r.RunSuite(context.Background(), "invariants", "run-3")
	if err != nil {
		t.Fatalf("RunSuite: %v", err)
	}
	if !res.Passed {
		t.Errorf("low-severity failure should not fail the suite: %+v", res.Checks)
	}
	var graphFailed bool
	for _, cr := range res.Checks {
		if cr.Type == CheckGraph && !cr.Passed {
			graphFailed = true
		}
	}
	if !graphFailed {
		t.Error("graph check with no edges should fail")
	}
}

func TestCheckInvariant_UnknownID(t *testing.T) {
	arts, rels := testSnapshot(t)
	r, _ := testRunner(t, arts, rels)
	r.AddDocument(mustDoc(t, `suites:
  - id: custom
    checks:
      - id: bogus
        type: invariant
        invariant: inv:does_not_exist
`))

	res, err := r.RunSuite(context.Background(), "custom", "run-4")
	if err != nil {
		t.Fatalf("RunSuite: %v", err)
	}
	if res.Passed {
		t.Error("unknown invariant must fail")
	}
	if !strings.Contains(res.Checks[0].Detail, InvArtifactIDUnique) {
		t.Errorf("detail should list known invariants: %q", res.Checks[0].Detail)
	}
}

func TestCheckQuery_Expectations(t *testing.T) {
	arts, rels := testSnapshot(t)
	r, _ := testRunner(t, arts, rels)
	r.AddDocument(mustDoc(t, `suites:
  - id: q
    checks:
      - id: models-present
        type: query
        op: find_by_type
        args: {type: model}
        expect: {min_results: 1}
      - id: too-many-models
        type: query
        severity: high
        op: find_by_type
        args: {type: model}
        expect: {max_results: 0}
`))

	res, err := r.RunSuite(context.Background(), "q", "run-5")
	if err != nil {
		t.Fatalf("RunSuite: %v", err)
	}
	if res.Checks[0].Passed != true || res.Checks[1].Passed != false {
		t.Errorf("checks = %+v", res.Checks)
	}
	if res.Passed {
		t.Error("failed high-severity query check should fail the suite")
	}
}

func TestJSONTypeMatches(t *testing.T) {
	tests := []struct {
		val  any
		typ  string
		want bool
	}{
		{[]any{1}, "list", true},
		{map[string]any{}, "dict", true},
		{"x", "string", true},
		{float64(3), "int", true},
		{float64(3.5), "int", false},
		{true, "bool", true},
		{nil, "null", true},
		{"x", "list", false},
	}
	for _, tt := range tests {
		if got := jsonTypeMatches(tt.val, tt.typ); got != tt.want {
			t.Errorf("jsonTypeMatches(%v, %s) = %v", tt.val, tt.typ, got)
		}
	}
}

func mustDoc(t *testing.T, raw string) *Document {
	t.Helper()
	doc, err := ParseDocument([]byte(raw))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	return doc
}

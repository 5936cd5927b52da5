// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package impact

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/substratelabs/atlas/artifact"
	"github.com/substratelabs/atlas/patch"
)

func makeArtifact(t *testing.T, kind artifact.Kind, name, file string, startLine, endLine int) *artifact.Artifact {
	t.Helper()
	return artifact.New(kind, name, file, artifact.Anchor{
		StartLine: startLine,
		StartCol:  1,
		EndLine:   endLine,
		EndCol:    1,
	}, artifact.ConfidenceCertain)
}

// fixtureGraph builds a model with two fields, a serializer over the
// model, and a view over the serializer.
func fixtureGraph(t *testing.T) ([]*artifact.Artifact, []*artifact.Relationship) {
	t.Helper()
	model := makeArtifact(t, artifact.KindModel, "User", "app/models.py", 5, 20)
	fieldA := makeArtifact(t, artifact.KindModelField, "name", "app/models.py", 10, 10)
	fieldB := makeArtifact(t, artifact.KindModelField, "email", "app/models.py", 30, 30)
	ser := makeArtifact(t, artifact.KindSerializer, "UserSerializer", "app/serializers.py", 4, 12)
	view := makeArtifact(t, artifact.KindViewSet, "UserViewSet", "app/views.py", 6, 18)

	rels := []*artifact.Relationship{
		artifact.NewRelationship(artifact.RelDeclares,
			artifact.ResolvedEndpoint(model), artifact.ResolvedEndpoint(fieldA), artifact.ConfidenceCertain),
		artifact.NewRelationship(artifact.RelSerializesModel,
			artifact.ResolvedEndpoint(ser), artifact.ResolvedEndpoint(model), artifact.ConfidenceCertain),
		artifact.NewRelationship(artifact.RelViewUsesSerializer,
			artifact.ResolvedEndpoint(view), artifact.ResolvedEndpoint(ser), artifact.ConfidenceCertain),
		// Forward propagation out of the model.
		artifact.NewRelationship(artifact.RelDeclares,
			artifact.ResolvedEndpoint(model), artifact.ResolvedEndpoint(fieldB), artifact.ConfidenceCertain),
	}
	return []*artifact.Artifact{model, fieldA, fieldB, ser, view}, rels
}

func recordFor(file string, ranges ...patch.LineRange) *patch.Record {
	return &patch.Record{
		PatchID: "p-test",
		Results: []patch.ChangeResult{
			{FilePath: file, Applied: true, ChangedRanges: ranges},
		},
		Succeeded: 1,
	}
}

func TestAnalyze_AnchorOverlap(t *testing.T) {
	arts, rels := fixtureGraph(t)
	a := NewAnalyzer()

	// Lines 10-12 of models.py: hits the model (5-20) and the name field
	// (10-10), not the email field (30-30).
	rep := a.Analyze(context.Background(), recordFor("app/models.py", patch.LineRange{Start: 10, End: 12}), arts, rels, nil)

	affected := make(map[string]bool)
	for _, aa := range rep.AffectedArtifacts {
		affected[aa.Name] = true
	}
	if !affected["User"] || !affected["name"] {
		t.Errorf("affected = %v, want User and name", affected)
	}
	if affected["email"] {
		t.Error("email field outside changed range should not be affected")
	}
	if affected["UserSerializer"] {
		t.Error("artifact in untouched file should not be directly affected")
	}
}

func TestAnalyze_WholeFileChange(t *testing.T) {
	arts, rels := fixtureGraph(t)
	a := NewAnalyzer()

	rep := a.Analyze(context.Background(), recordFor("app/models.py"), arts, rels, nil)

	var inFile int
	for _, aa := range rep.AffectedArtifacts {
		if aa.FilePath == "app/models.py" {
			inFile++
		}
	}
	if inFile != 3 {
		t.Errorf("whole-file change affected %d models.py artifacts, want 3", inFile)
	}
}

func TestAnalyze_NoDetailAffectsEverything(t *testing.T) {
	arts, rels := fixtureGraph(t)
	a := NewAnalyzer()

	rep := a.Analyze(context.Background(), nil, arts, rels, nil)
	if len(rep.AffectedArtifacts) != len(arts) {
		t.Errorf("affected = %d, want all %d", len(rep.AffectedArtifacts), len(arts))
	}
	if len(rep.InvalidatedRelationshipIDs) != len(rels) {
		t.Errorf("invalidated = %d, want all %d", len(rep.InvalidatedRelationshipIDs), len(rels))
	}
}

func TestAnalyze_InvalidatedRelationships(t *testing.T) {
	arts, rels := fixtureGraph(t)
	a := NewAnalyzer()

	rep := a.Analyze(context.Background(), recordFor("app/models.py", patch.LineRange{Start: 10, End: 12}), arts, rels, nil)

	// Model is affected, so declares(model->name), declares(model->email)
	// and serializes_model(serializer->model) are all invalidated.
	if len(rep.InvalidatedRelationshipIDs) != 3 {
		t.Errorf("invalidated = %v, want 3 edges", rep.InvalidatedRelationshipIDs)
	}
}

func TestAnalyze_BlastRadius(t *testing.T) {
	arts, rels := fixtureGraph(t)
	a := NewAnalyzer()

	rep := a.Analyze(context.Background(), recordFor("app/serializers.py", patch.LineRange{Start: 4, End: 4}), arts, rels, nil)

	// Serializer is affected; forward edges reach the model, then both
	// fields.
	if rep.BlastRadius.Size != 3 {
		t.Errorf("blast radius size = %d, want 3 (model plus two fields)", rep.BlastRadius.Size)
	}
	if rep.BlastRadius.MaxDepth != 2 {
		t.Errorf("max depth = %d, want 2", rep.BlastRadius.MaxDepth)
	}
	if rep.BlastRadius.Truncated {
		t.Error("walk should not truncate on a tiny graph")
	}
	if len(rep.BlastRadius.SamplePaths) == 0 {
		t.Fatal("expected at least one sample path")
	}
	for _, p := range rep.BlastRadius.SamplePaths {
		if len(p) < 2 {
			t.Errorf("sample path too short: %v", p)
		}
	}
}

func TestAnalyze_BlastRadiusBounds(t *testing.T) {
	// A chain a0 -> a1 -> ... -> a19 with the head affected.
	var arts []*artifact.Artifact
	var rels []*artifact.Relationship
	for i := 0; i < 20; i++ {
		arts = append(arts, makeArtifact(t, artifact.KindModel, fmt.Sprintf("M%02d", i), fmt.Sprintf("m/%02d.py", i), 1, 3))
	}
	for i := 0; i < 19; i++ {
		rels = append(rels, artifact.NewRelationship(artifact.RelDeclares,
			artifact.ResolvedEndpoint(arts[i]), artifact.ResolvedEndpoint(arts[i+1]), artifact.ConfidenceCertain))
	}

	a := NewAnalyzer(WithMaxDepth(5), WithSamplePaths(2))
	rep := a.Analyze(context.Background(), recordFor("m/00.py", patch.LineRange{Start: 1, End: 1}), arts, rels, nil)

	if rep.BlastRadius.Size != 5 {
		t.Errorf("size = %d, want 5 with depth bound 5", rep.BlastRadius.Size)
	}
	if !rep.BlastRadius.Truncated {
		t.Error("depth-bounded walk should report truncation")
	}
	if len(rep.BlastRadius.SamplePaths) > 2 {
		t.Errorf("sample paths = %d, want at most 2", len(rep.BlastRadius.SamplePaths))
	}
}

func TestDiffSnapshots(t *testing.T) {
	old := []*artifact.Artifact{
		makeArtifact(t, artifact.KindModel, "User", "app/models.py", 5, 20),
		makeArtifact(t, artifact.KindModel, "Gone", "app/models.py", 30, 40),
	}
	cur := []*artifact.Artifact{
		// User moved down two lines: modified, not added+removed.
		makeArtifact(t, artifact.KindModel, "User", "app/models.py", 7, 22),
		makeArtifact(t, artifact.KindModel, "Fresh", "app/models.py", 50, 60),
	}

	diff := diffSnapshots(old, cur)
	if len(diff.Added) != 1 || len(diff.Removed) != 1 || len(diff.Modified) != 1 {
		t.Fatalf("diff = %+v, want 1 added, 1 removed, 1 modified", diff)
	}
}

func TestSaveAndLoad(t *testing.T) {
	stateDir := t.TempDir()
	canonical := filepath.Join(stateDir, "impact.json")
	perPatch := filepath.Join(stateDir, "impact")

	rep := &Report{PatchID: "p-save", GeneratedAtMilli: 1}
	if err := Save(rep, canonical, perPatch); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(canonical)
	if err != nil {
		t.Fatalf("Load canonical: %v", err)
	}
	if loaded.PatchID != "p-save" {
		t.Errorf("PatchID = %q", loaded.PatchID)
	}
	if _, err := Load(filepath.Join(perPatch, "impact_p-save.json")); err != nil {
		t.Errorf("Load per-patch: %v", err)
	}
}

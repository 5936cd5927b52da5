// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/substratelabs/atlas/artifact"
	"github.com/substratelabs/atlas/config"
)

func testWorkspace(t *testing.T) *config.Config {
	t.Helper()
	srcDir := t.TempDir()
	stateDir := t.TempDir()

	files := map[string]string{
		"app/models.py": `from django.db import models


class User(models.Model):
    name = models.CharField(max_length=100)
`,
		"app/serializers.py": `from rest_framework import serializers


class UserSerializer(serializers.ModelSerializer):
    class Meta:
        model = User
        fields = ["id", "name"]
`,
		"app/views.py": `from rest_framework import viewsets


class UserViewSet(viewsets.ModelViewSet):
    serializer_class = UserSerializer
    queryset = User.objects.all()
`,
		"app/urls.py": `from django.urls import path

urlpatterns = [
    path("api/users/", UserViewSet.as_view(), name="user-list"),
]
`,
		"requirements.txt": "django==4.2\n",
	}
	for rel, content := range files {
		path := filepath.Join(srcDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return config.Default(srcDir, stateDir)
}

func ranSteps(result *RunResult) []string {
	var out []string
	for _, s := range result.Steps {
		if s.Ran {
			out = append(out, s.Name)
		}
	}
	return out
}

func TestRun_FullPipeline(t *testing.T) {
	cfg := testWorkspace(t)
	runner := NewRunner(cfg)

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(ranSteps(result)) != 3 {
		t.Fatalf("ran steps = %v, want all three", ranSteps(result))
	}

	arts, err := LoadArtifacts(cfg.Paths.ArtifactsOut)
	if err != nil {
		t.Fatalf("load artifacts: %v", err)
	}
	if arts.Fingerprint != result.Fingerprint {
		t.Errorf("payload fingerprint %q != run fingerprint %q", arts.Fingerprint, result.Fingerprint)
	}

	kinds := map[artifact.Kind]int{}
	for _, a := range arts.Artifacts {
		kinds[a.Kind]++
	}
	for _, want := range []artifact.Kind{
		artifact.KindModel, artifact.KindModelField, artifact.KindSerializer,
		artifact.KindViewSet, artifact.KindURLPattern, artifact.KindRequirement,
	} {
		if kinds[want] == 0 {
			t.Errorf("no %s artifacts extracted: %v", want, kinds)
		}
	}

	rels, err := LoadRelationships(cfg.Paths.RelationshipsOut)
	if err != nil {
		t.Fatalf("load relationships: %v", err)
	}
	if len(rels.Relationships) == 0 {
		t.Fatal("no relationships built")
	}

	bps, err := LoadBlueprints(cfg.Paths.BlueprintsOut)
	if err != nil {
		t.Fatalf("load blueprints: %v", err)
	}
	if len(bps.Inventory.Files) != 5 {
		t.Errorf("blueprint files = %d, want 5", len(bps.Inventory.Files))
	}

	// Run summary persisted.
	if _, err := os.Stat(filepath.Join(cfg.RunsDir(), result.RunID, "run.json")); err != nil {
		t.Errorf("run.json missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.RunsDir(), result.RunID, "run.log")); err != nil {
		t.Errorf("run.log missing: %v", err)
	}
}

func TestRun_SecondRunSkips(t *testing.T) {
	cfg := testWorkspace(t)
	runner := NewRunner(cfg)
	ctx := context.Background()

	if _, err := runner.Run(ctx); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	second, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if steps := ranSteps(second); len(steps) != 0 {
		t.Errorf("second run reran %v, want none", steps)
	}
}

func TestRun_SourceChangeReruns(t *testing.T) {
	cfg := testWorkspace(t)
	runner := NewRunner(cfg)
	ctx := context.Background()

	if _, err := runner.Run(ctx); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	newModel := filepath.Join(cfg.Paths.SrcDir, "app", "models.py")
	content := `from django.db import models


class User(models.Model):
    name = models.CharField(max_length=100)
    email = models.EmailField()
`
	if err := os.WriteFile(newModel, []byte(content), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	result, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("rerun failed: %v", err)
	}
	if steps := ranSteps(result); len(steps) != 3 {
		t.Errorf("reran %v, want all three", steps)
	}
}

func TestRun_DirtyFlagForcesRerun(t *testing.T) {
	cfg := testWorkspace(t)
	runner := NewRunner(cfg)
	ctx := context.Background()

	if _, err := runner.Run(ctx); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	state, err := LoadState(cfg.MetaStatePath())
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	state.MarkDirty("patch applied")
	if err := state.Save(cfg.MetaStatePath()); err != nil {
		t.Fatalf("save state: %v", err)
	}

	result, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("rerun failed: %v", err)
	}
	if steps := ranSteps(result); len(steps) != 3 {
		t.Errorf("dirty rerun ran %v, want all three", steps)
	}

	state, err = LoadState(cfg.MetaStatePath())
	if err != nil {
		t.Fatalf("reload state: %v", err)
	}
	if state.Dirty {
		t.Error("dirty flag should clear after a successful run")
	}
}

func TestStepStale(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.json")
	if err := os.WriteFile(out, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	st := &MetaState{Steps: map[string]StepState{}}

	stale, reason := st.StepStale(StepArtifacts, "fp1", out)
	if !stale || reason != "never ran" {
		t.Errorf("fresh state: stale=%v reason=%q", stale, reason)
	}

	st.RecordStep(StepArtifacts, "fp1", "hash")
	if stale, _ := st.StepStale(StepArtifacts, "fp1", out); stale {
		t.Error("recorded step with matching fingerprint should not be stale")
	}
	if stale, _ := st.StepStale(StepArtifacts, "fp2", out); !stale {
		t.Error("fingerprint change should be stale")
	}
	if stale, _ := st.StepStale(StepArtifacts, "fp1", out+".missing"); !stale {
		t.Error("missing output should be stale")
	}

	st.MarkDirty("test")
	if stale, _ := st.StepStale(StepArtifacts, "fp1", out); !stale {
		t.Error("dirty state should be stale")
	}
}

func TestState_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta_state.json")

	st, err := LoadState(path)
	if err != nil {
		t.Fatalf("load missing: %v", err)
	}
	st.RecordStep(StepBlueprints, "fp", "hash")
	st.LastRunID = "run-1"
	if err := st.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadState(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.LastRunID != "run-1" {
		t.Errorf("last run id = %q", loaded.LastRunID)
	}
	if loaded.Steps[StepBlueprints].SrcFingerprint != "fp" {
		t.Errorf("step state = %+v", loaded.Steps[StepBlueprints])
	}
}

// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/substratelabs/atlas/artifact"
	"github.com/substratelabs/atlas/blueprint"
	"github.com/substratelabs/atlas/config"
	"github.com/substratelabs/atlas/extract"
	"github.com/substratelabs/atlas/manifest"
	"github.com/substratelabs/atlas/relate"
)

// StepResult records one step's outcome within a run.
type StepResult struct {
	Name          string `json:"name"`
	Ran           bool   `json:"ran"`
	Reason        string `json:"reason,omitempty"`
	DurationMilli int64  `json:"duration_ms"`
	OutputHash    string `json:"output_hash,omitempty"`
	Artifacts     int    `json:"artifacts,omitempty"`
	Error         string `json:"error,omitempty"`
}

// RunResult is the persisted summary of one pipeline run.
type RunResult struct {
	RunID          string       `json:"run_id"`
	StartedAtMilli int64        `json:"started_at_ms"`
	Fingerprint    string       `json:"fingerprint"`
	Steps          []StepResult `json:"steps"`
	Error          string       `json:"error,omitempty"`
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithManager overrides the manifest manager.
func WithManager(m *manifest.Manager) RunnerOption {
	return func(r *Runner) { r.manager = m }
}

// WithExtractor overrides the artifact extractor.
func WithExtractor(e *extract.Extractor) RunnerOption {
	return func(r *Runner) { r.extractor = e }
}

// Runner executes the generation pipeline for one workspace.
//
// Thread Safety: a Runner must not be shared across concurrent Run calls;
// the pipeline is single-flight per workspace.
type Runner struct {
	cfg       *config.Config
	manager   *manifest.Manager
	indexer   *blueprint.Indexer
	extractor *extract.Extractor
	builder   *relate.Builder
}

// NewRunner wires a Runner from the workspace configuration.
func NewRunner(cfg *config.Config, opts ...RunnerOption) *Runner {
	matcher := manifest.DefaultMatcher(cfg.Excludes...)
	r := &Runner{
		cfg:     cfg,
		manager: manifest.NewManager(manifest.WithMatcher(matcher)),
		indexer: blueprint.NewIndexer(
			blueprint.WithMatcher(matcher),
			blueprint.WithStoreRawText(cfg.Blueprints.StoreRawText),
			blueprint.WithStoreLines(cfg.Blueprints.StoreLines),
		),
		extractor: extract.NewExtractor(),
		builder:   relate.NewBuilder(relate.WithMentions(cfg.Relationships.EnableMentions)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes every stale step in order. The run summary is persisted to
// runs/<run_id>/run.json whether the run succeeds or fails.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	ctx, span := startRunSpan(ctx)
	defer span.End()

	result := &RunResult{
		RunID:          uuid.NewString(),
		StartedAtMilli: time.Now().UnixMilli(),
	}
	start := time.Now()

	runDir := filepath.Join(r.cfg.RunsDir(), result.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}
	runLog, closeLog, err := openRunLog(runDir)
	if err != nil {
		return nil, err
	}
	defer closeLog()

	err = r.run(ctx, runLog, result)
	if err != nil {
		result.Error = err.Error()
		runLog.Error("run failed", slog.String("error", err.Error()))
	}
	if persistErr := r.persistResult(runDir, result); persistErr != nil {
		runLog.Error("persisting run summary failed", slog.String("error", persistErr.Error()))
	}
	recordRunMetrics(ctx, time.Since(start), err == nil)
	if err != nil {
		return result, err
	}
	return result, nil
}

func (r *Runner) run(ctx context.Context, runLog *slog.Logger, result *RunResult) error {
	state, err := LoadState(r.cfg.MetaStatePath())
	if err != nil {
		return err
	}

	man, err := r.manager.Scan(ctx, r.cfg.Paths.SrcDir)
	if err != nil {
		return fmt.Errorf("scan source tree: %w", err)
	}
	if man.Incomplete {
		return fmt.Errorf("source scan incomplete: %w", ctx.Err())
	}
	result.Fingerprint = man.Fingerprint()
	runLog.Info("source tree scanned",
		slog.Int("files", len(man.Files)),
		slog.String("fingerprint", result.Fingerprint))

	var (
		arts  []*artifact.Artifact
		force bool
	)
	for _, step := range stepOrder {
		outPath := r.outputPath(step)
		stale, reason := state.StepStale(step, result.Fingerprint, outPath)
		if force && !stale {
			stale, reason = true, "upstream step reran"
		}

		sr := StepResult{Name: step, Reason: reason}
		if !stale {
			runLog.Info("step up to date", slog.String("step", step))
			result.Steps = append(result.Steps, sr)
			continue
		}

		stepStart := time.Now()
		runLog.Info("step starting", slog.String("step", step), slog.String("reason", reason))

		var execErr error
		switch step {
		case StepBlueprints:
			sr.OutputHash, execErr = r.runBlueprints(ctx, result.Fingerprint)
		case StepArtifacts:
			arts, sr.OutputHash, execErr = r.runArtifacts(ctx, man, result.Fingerprint)
			sr.Artifacts = len(arts)
		case StepRelationships:
			if arts == nil {
				payload, loadErr := LoadArtifacts(r.cfg.Paths.ArtifactsOut)
				if loadErr != nil {
					execErr = loadErr
					break
				}
				arts = payload.Artifacts
			}
			sr.OutputHash, execErr = r.runRelationships(arts, result.Fingerprint)
		}
		sr.DurationMilli = time.Since(stepStart).Milliseconds()
		sr.Ran = true

		if execErr != nil {
			sr.Error = execErr.Error()
			result.Steps = append(result.Steps, sr)
			return fmt.Errorf("step %s: %w", step, execErr)
		}

		state.RecordStep(step, result.Fingerprint, sr.OutputHash)
		result.Steps = append(result.Steps, sr)
		force = true
		runLog.Info("step done",
			slog.String("step", step),
			slog.Int64("duration_ms", sr.DurationMilli))
	}

	state.Dirty = false
	state.DirtyReason = ""
	state.LastRunID = result.RunID
	state.Manifest = man
	if err := state.Save(r.cfg.MetaStatePath()); err != nil {
		return err
	}
	return nil
}

func (r *Runner) outputPath(step string) string {
	switch step {
	case StepBlueprints:
		return r.cfg.Paths.BlueprintsOut
	case StepArtifacts:
		return r.cfg.Paths.ArtifactsOut
	default:
		return r.cfg.Paths.RelationshipsOut
	}
}

func (r *Runner) runBlueprints(ctx context.Context, fingerprint string) (string, error) {
	inv, err := r.indexer.Build(ctx, r.cfg.Paths.SrcDir)
	if err != nil {
		return "", err
	}
	return writePayload(r.cfg.Paths.BlueprintsOut, &BlueprintsPayload{
		Fingerprint: fingerprint,
		Inventory:   inv,
	})
}

func (r *Runner) runArtifacts(ctx context.Context, man *manifest.Manifest, fingerprint string) ([]*artifact.Artifact, string, error) {
	var arts []*artifact.Artifact
	for _, rel := range man.Paths() {
		content, err := os.ReadFile(filepath.Join(r.cfg.Paths.SrcDir, filepath.FromSlash(rel)))
		if err != nil {
			return nil, "", fmt.Errorf("read %s: %w", rel, err)
		}
		fileArts, err := r.extractor.ExtractFile(ctx, rel, content)
		if err != nil {
			return nil, "", err
		}
		arts = append(arts, fileArts...)
	}
	for _, a := range arts {
		if err := a.Validate(); err != nil {
			return nil, "", fmt.Errorf("generated invalid artifact: %w", err)
		}
	}
	hash, err := writePayload(r.cfg.Paths.ArtifactsOut, &ArtifactsPayload{
		Fingerprint:      fingerprint,
		GeneratedAtMilli: time.Now().UnixMilli(),
		Artifacts:        arts,
	})
	if err != nil {
		return nil, "", err
	}
	return arts, hash, nil
}

func (r *Runner) runRelationships(arts []*artifact.Artifact, fingerprint string) (string, error) {
	rels := r.builder.Build(arts)
	for _, rel := range rels {
		if err := rel.Validate(); err != nil {
			return "", fmt.Errorf("generated invalid relationship: %w", err)
		}
	}
	return writePayload(r.cfg.Paths.RelationshipsOut, &RelationshipsPayload{
		Fingerprint:      fingerprint,
		GeneratedAtMilli: time.Now().UnixMilli(),
		Relationships:    rels,
	})
}

// writePayload marshals, writes atomically, and returns the content hash.
func writePayload(path string, payload any) (string, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal payload for %s: %w", path, err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func (r *Runner) persistResult(runDir string, result *RunResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(runDir, "run.json"), data)
}

// openRunLog creates runs/<id>/run.log with a JSON handler.
func openRunLog(runDir string) (*slog.Logger, func(), error) {
	f, err := os.Create(filepath.Join(runDir, "run.log"))
	if err != nil {
		return nil, nil, fmt.Errorf("create run log: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logger, func() { f.Close() }, nil
}

// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/substratelabs/atlas/artifact"
	"github.com/substratelabs/atlas/config"
	"github.com/substratelabs/atlas/impact"
	"github.com/substratelabs/atlas/patch"
	"github.com/substratelabs/atlas/pipeline"
	"github.com/substratelabs/atlas/specstore"
)

var (
	flagRunPatch string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the analysis pipeline",
	Long: `Run every stale pipeline step: blueprint indexing, artifact
extraction, and relationship building. With --patch, the patch is applied
first and its impact computed after the run.

Impact analysis and spec-store seeding are best-effort; their failures
are logged, never fatal.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&flagRunPatch, "patch", "",
		"Patch document to apply before running")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyLogLevel(cfg)
	ctx := cmd.Context()

	// Previous artifacts, for the advisory snapshot diff.
	prevArts := loadPreviousArtifacts(cfg)

	var rec *patch.Record
	if flagRunPatch != "" {
		rec, err = applyPatchFile(ctx, cfg, flagRunPatch)
		if err != nil {
			return err
		}
	}

	result, err := pipeline.NewRunner(cfg).Run(ctx)
	if err != nil {
		if result != nil {
			printJSON(result)
			return fmt.Errorf("pipeline failed (see %s): %w",
				filepath.Join(cfg.RunsDir(), result.RunID), err)
		}
		return err
	}

	runImpactAnalysis(ctx, cfg, rec, prevArts)
	seedSpecStore(ctx, cfg)

	return printJSON(result)
}

// applyPatchFile applies the patch document and marks the pipeline dirty
// when at least one change landed.
func applyPatchFile(ctx context.Context, cfg *config.Config, path string) (*patch.Record, error) {
	doc, err := patch.LoadDocument(path)
	if err != nil {
		return nil, err
	}
	eng := patch.NewEngine(cfg.Paths.SrcDir, cfg.PatchesDir())
	rec, err := eng.Apply(ctx, doc)
	if err != nil {
		return rec, err
	}
	if rec.Succeeded > 0 {
		if err := markPipelineDirty(cfg, rec); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

// markPipelineDirty records that sources changed outside a scan.
func markPipelineDirty(cfg *config.Config, rec *patch.Record) error {
	state, err := pipeline.LoadState(cfg.MetaStatePath())
	if err != nil {
		return err
	}
	state.MarkDirty(fmt.Sprintf("patch %s applied %d changes", rec.PatchID, rec.Succeeded))
	return state.Save(cfg.MetaStatePath())
}

// loadPreviousArtifacts reads the pre-run artifacts payload if present.
func loadPreviousArtifacts(cfg *config.Config) []*artifact.Artifact {
	payload, err := pipeline.LoadArtifacts(cfg.Paths.ArtifactsOut)
	if err != nil {
		return nil
	}
	return payload.Artifacts
}

// runImpactAnalysis computes and persists impact after a successful run.
// Failures are logged, never propagated.
func runImpactAnalysis(ctx context.Context, cfg *config.Config, rec *patch.Record, prev []*artifact.Artifact) {
	arts, err := pipeline.LoadArtifacts(cfg.Paths.ArtifactsOut)
	if err != nil {
		slog.Warn("impact analysis skipped", slog.String("error", err.Error()))
		return
	}
	rels, err := pipeline.LoadRelationships(cfg.Paths.RelationshipsOut)
	if err != nil {
		slog.Warn("impact analysis skipped", slog.String("error", err.Error()))
		return
	}
	rep := impact.NewAnalyzer().Analyze(ctx, rec, arts.Artifacts, rels.Relationships, prev)
	if err := impact.Save(rep, cfg.ImpactPath(), cfg.ImpactDir()); err != nil {
		slog.Warn("persisting impact report failed", slog.String("error", err.Error()))
	}
}

// seedSpecStore installs missing default spec documents. Best-effort.
func seedSpecStore(ctx context.Context, cfg *config.Config) {
	store, err := specstore.Open(cfg.SpecsDir())
	if err != nil {
		slog.Warn("spec store unavailable", slog.String("error", err.Error()))
		return
	}
	defer store.Close()
	if _, err := store.Seed(ctx); err != nil {
		slog.Warn("spec store seeding failed", slog.String("error", err.Error()))
	}
}

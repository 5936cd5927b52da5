// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/substratelabs/atlas/query"
	"github.com/substratelabs/atlas/verify"
)

var (
	flagSuiteRunID string
	flagSuiteFile  string
)

var suiteCmd = &cobra.Command{
	Use:   "suite <suite_id>",
	Short: "Run a verification suite",
	Long: `Run the named verification suite against the current payloads.
Results are persisted under runs/<run_id>/suite_<suite_id>.json. The
command exits non-zero when a high-severity check fails.

The embedded default suites are "core" and "invariants"; --file adds
suites from a YAML or JSON document.`,
	Args: cobra.ExactArgs(1),
	RunE: runSuite,
}

func init() {
	suiteCmd.Flags().StringVar(&flagSuiteRunID, "run-id", "",
		"Run ID to file results under (default: a fresh UUID)")
	suiteCmd.Flags().StringVar(&flagSuiteFile, "file", "",
		"Extra suite document to load")
	rootCmd.AddCommand(suiteCmd)
}

func runSuite(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyLogLevel(cfg)

	runID := flagSuiteRunID
	if runID == "" {
		runID = uuid.NewString()
	}

	ix := query.NewIndex(cfg)
	runner, err := verify.NewRunner(cfg, ix)
	if err != nil {
		return err
	}
	if flagSuiteFile != "" {
		doc, err := verify.LoadDocument(flagSuiteFile)
		if err != nil {
			return err
		}
		runner.AddDocument(doc)
	}

	result, err := runner.RunSuite(cmd.Context(), args[0], runID)
	if err != nil {
		return err
	}
	if err := printJSON(result); err != nil {
		return err
	}
	if !result.Passed {
		return fmt.Errorf("suite %s failed (see %s)", result.SuiteID,
			filepath.Join(cfg.RunsDir(), runID))
	}
	return nil
}

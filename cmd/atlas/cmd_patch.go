// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

var patchCmd = &cobra.Command{
	Use:   "patch <file>",
	Short: "Apply a patch document without running the pipeline",
	Long: `Apply the changes in a patch document against the source tree.
The attempt record is persisted under state/patches/ whether or not
changes succeeded, and the pipeline is marked dirty when at least one
change landed. The next run picks it up.`,
	Args: cobra.ExactArgs(1),
	RunE: runPatch,
}

func init() {
	rootCmd.AddCommand(patchCmd)
}

func runPatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyLogLevel(cfg)

	rec, err := applyPatchFile(cmd.Context(), cfg, args[0])
	if rec != nil {
		printJSON(rec)
	}
	return err
}

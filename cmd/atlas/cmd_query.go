// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/substratelabs/atlas/query"
)

var (
	flagQueryJSON string
)

var queryCmd = &cobra.Command{
	Use:   "query <op>",
	Short: "Run a read-only query op against the loaded payloads",
	Long: fmt.Sprintf(`Run one of the named query ops over the artifacts and
relationships payloads. Arguments are passed as a JSON object via --json.

Known ops:
  %s

Examples:
  atlas query stats
  atlas query find_by_type --json '{"type":"model"}'
  atlas query trace_route_to_model --json '{"route":"/api/users/"}'`,
		strings.Join(query.Ops(), "\n  ")),
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&flagQueryJSON, "json", "",
		"Op arguments as a JSON object")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyLogLevel(cfg)

	ix := query.NewIndex(cfg)
	if err := ix.Reload(); err != nil {
		return fmt.Errorf("load payloads (run `atlas run` first): %w", err)
	}

	out, err := ix.RunOp(args[0], json.RawMessage(flagQueryJSON))
	if err != nil {
		return err
	}
	return printJSON(out)
}

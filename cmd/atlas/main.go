// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command atlas analyzes Django-style codebases: it indexes the source
// tree, extracts typed artifacts, builds the relationship graph, applies
// auditable patches, and answers queries over the result.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/substratelabs/atlas/config"
)

// Persistent flags.
var (
	flagConfig string
)

var rootCmd = &cobra.Command{
	Use:   "atlas",
	Short: "Static analysis for Django-style codebases",
	Long: `Atlas walks a Django-style source tree, classifies declarations into
typed artifacts, derives a relationship graph, and keeps both up to date
incrementally. Results are plain JSON files under the state directory.

Commands print JSON on stdout; diagnostics go to stderr.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "atlas: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "",
		"Path to the workspace config file (default: ./atlas.json if present)")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		setupLogging()
	}
}

// loadConfig resolves the workspace configuration: the --config flag,
// then ./atlas.json, then defaults rooted at the working directory.
func loadConfig() (*config.Config, error) {
	if flagConfig != "" {
		return config.Load(flagConfig)
	}
	if _, err := os.Stat("atlas.json"); err == nil {
		return config.Load("atlas.json")
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}
	return config.Default(cwd, filepath.Join(cwd, "state")), nil
}

// setupLogging installs a text slog handler on stderr. The level is
// revisited once the config is loaded.
func setupLogging() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))
}

// applyLogLevel tightens or loosens the default logger per the config.
func applyLogLevel(cfg *config.Config) {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/substratelabs/atlas/pipeline"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the source tree and mark the pipeline dirty on change",
	Long: `Watch the source tree with a debounced filesystem watcher. When
tracked files change, the pipeline meta state is marked dirty so the next
run regenerates everything stale. The watcher never runs the pipeline
itself.

Stops on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyLogLevel(cfg)

	watcher, err := pipeline.NewWatcher(cfg, nil)
	if err != nil {
		return err
	}
	if err := watcher.Start(cmd.Context()); err != nil {
		return err
	}
	defer watcher.Stop()

	slog.Info("watching for changes", slog.String("src_dir", cfg.Paths.SrcDir))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		slog.Info("shutting down", slog.String("signal", s.String()))
	case <-cmd.Context().Done():
	}
	return nil
}

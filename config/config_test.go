// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "atlas.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Run("fills defaults", func(t *testing.T) {
		path := writeConfig(t, `{"paths": {"src_dir": "repo"}}`)

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}

		base := filepath.Dir(path)
		if cfg.Paths.SrcDir != filepath.Join(base, "repo") {
			t.Errorf("SrcDir = %q, want under %q", cfg.Paths.SrcDir, base)
		}
		if cfg.Paths.ArtifactsOut != filepath.Join(base, "state", "artifacts.json") {
			t.Errorf("ArtifactsOut = %q", cfg.Paths.ArtifactsOut)
		}
		if cfg.LogLevel != "info" {
			t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
		}
	})

	t.Run("rejects missing src_dir", func(t *testing.T) {
		path := writeConfig(t, `{"paths": {}}`)
		if _, err := Load(path); !errors.Is(err, ErrMissingSrcDir) {
			t.Errorf("Load error = %v, want ErrMissingSrcDir", err)
		}
	})

	t.Run("env override wins", func(t *testing.T) {
		path := writeConfig(t, `{"paths": {"src_dir": "repo"}, "log_level": "warn"}`)
		t.Setenv("ATLAS_LOG_LEVEL", "debug")

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.LogLevel != "debug" {
			t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
		}
	})
}

func TestDerivedDirs(t *testing.T) {
	cfg := Default("/ws/repo", "/ws/state")

	// Run directories live beside the state directory, not inside it.
	if got := cfg.RunsDir(); got != filepath.Join("/ws", "runs") {
		t.Errorf("RunsDir = %q, want sibling of state", got)
	}
	if got := cfg.PatchesDir(); got != filepath.Join("/ws", "state", "patches") {
		t.Errorf("PatchesDir = %q", got)
	}
	if got := cfg.SpecsDir(); got != filepath.Join("/ws", "state", "specs") {
		t.Errorf("SpecsDir = %q", got)
	}
}

func TestResolvePathKey(t *testing.T) {
	cfg := Default("/src", "/state")

	t.Run("known keys resolve", func(t *testing.T) {
		got, err := cfg.ResolvePathKey(PathArtifactsOut)
		if err != nil {
			t.Fatalf("ResolvePathKey: %v", err)
		}
		if got != filepath.Join("/state", "artifacts.json") {
			t.Errorf("resolved = %q", got)
		}
	})

	t.Run("unknown key lists known keys", func(t *testing.T) {
		_, err := cfg.ResolvePathKey("paths.nope")
		if !errors.Is(err, ErrUnknownPathKey) {
			t.Fatalf("error = %v, want ErrUnknownPathKey", err)
		}
	})
}

// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the workspace configuration.
//
// A workspace is one analyzed source tree plus its derived state directory.
// Configuration comes from a JSON file, with environment-variable overrides
// applied on top (ATLAS_ prefix, via envconfig).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
)

// Sentinel errors for configuration loading.
var (
	// ErrUnknownPathKey indicates a symbolic path key with no accessor.
	ErrUnknownPathKey = errors.New("unknown path key")

	// ErrMissingSrcDir indicates a workspace without a source directory.
	ErrMissingSrcDir = errors.New("paths.src_dir is required")
)

// Paths holds the workspace directory layout. All paths are resolved to
// absolute at load time; relative entries are taken relative to the config
// file's directory.
type Paths struct {
	SrcDir           string `json:"src_dir" envconfig:"SRC_DIR"`
	StateDir         string `json:"state_dir" envconfig:"STATE_DIR"`
	InputsDir        string `json:"inputs_dir" envconfig:"INPUTS_DIR"`
	ToolsDir         string `json:"tools_dir" envconfig:"TOOLS_DIR"`
	BlueprintsOut    string `json:"blueprints_out" envconfig:"BLUEPRINTS_OUT"`
	ArtifactsOut     string `json:"artifacts_out" envconfig:"ARTIFACTS_OUT"`
	RelationshipsOut string `json:"relationships_out" envconfig:"RELATIONSHIPS_OUT"`
}

// Blueprints holds indexer toggles.
type Blueprints struct {
	// StoreRawText embeds each file's full text in the blueprint payload.
	// Required for anchor-exact extraction; on by default.
	StoreRawText bool `json:"store_raw_text" envconfig:"STORE_RAW_TEXT" default:"true"`

	// StoreLines additionally records the line count per file.
	StoreLines bool `json:"store_lines" envconfig:"STORE_LINES"`
}

// Relationships holds builder toggles.
type Relationships struct {
	// EnableMentions turns on the noisy mentions_field_string heuristic
	// edge generator. Off by default.
	EnableMentions bool `json:"enable_mentions" envconfig:"ENABLE_MENTIONS"`
}

// Config is the full workspace configuration.
type Config struct {
	Paths         Paths         `json:"paths"`
	Blueprints    Blueprints    `json:"blueprints"`
	Relationships Relationships `json:"relationships"`

	// Excludes extends the default exclude globs for the source walk.
	Excludes []string `json:"excludes,omitempty"`

	// LogLevel is one of debug, info, warn, error. Default info.
	LogLevel string `json:"log_level,omitempty" envconfig:"LOG_LEVEL" default:"info"`
}

// Default returns the configuration for a workspace rooted at srcDir, with
// state kept under stateDir.
func Default(srcDir, stateDir string) *Config {
	return &Config{
		Paths: Paths{
			SrcDir:           srcDir,
			StateDir:         stateDir,
			InputsDir:        filepath.Join(stateDir, "inputs"),
			ToolsDir:         filepath.Join(stateDir, "tools"),
			BlueprintsOut:    filepath.Join(stateDir, "blueprints.json"),
			ArtifactsOut:     filepath.Join(stateDir, "artifacts.json"),
			RelationshipsOut: filepath.Join(stateDir, "relationships.json"),
		},
		Blueprints: Blueprints{StoreRawText: true},
		LogLevel:   "info",
	}
}

// Load reads the JSON config file at path, fills defaults for omitted
// entries, applies ATLAS_-prefixed environment overrides, and resolves all
// paths to absolute.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := envconfig.Process("atlas", &cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	base := filepath.Dir(path)
	if err := cfg.finalize(base); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// finalize fills derived defaults and makes every path absolute against base.
func (c *Config) finalize(base string) error {
	if c.Paths.SrcDir == "" {
		return ErrMissingSrcDir
	}
	if c.Paths.StateDir == "" {
		c.Paths.StateDir = filepath.Join(base, "state")
	}

	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.Paths.SrcDir = abs(c.Paths.SrcDir)
	c.Paths.StateDir = abs(c.Paths.StateDir)

	if c.Paths.InputsDir == "" {
		c.Paths.InputsDir = filepath.Join(c.Paths.StateDir, "inputs")
	}
	if c.Paths.ToolsDir == "" {
		c.Paths.ToolsDir = filepath.Join(c.Paths.StateDir, "tools")
	}
	if c.Paths.BlueprintsOut == "" {
		c.Paths.BlueprintsOut = filepath.Join(c.Paths.StateDir, "blueprints.json")
	}
	if c.Paths.ArtifactsOut == "" {
		c.Paths.ArtifactsOut = filepath.Join(c.Paths.StateDir, "artifacts.json")
	}
	if c.Paths.RelationshipsOut == "" {
		c.Paths.RelationshipsOut = filepath.Join(c.Paths.StateDir, "relationships.json")
	}
	c.Paths.InputsDir = abs(c.Paths.InputsDir)
	c.Paths.ToolsDir = abs(c.Paths.ToolsDir)
	c.Paths.BlueprintsOut = abs(c.Paths.BlueprintsOut)
	c.Paths.ArtifactsOut = abs(c.Paths.ArtifactsOut)
	c.Paths.RelationshipsOut = abs(c.Paths.RelationshipsOut)

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return nil
}

// MetaStatePath returns the location of the pipeline meta-state file.
func (c *Config) MetaStatePath() string {
	return filepath.Join(c.Paths.StateDir, "meta_state.json")
}

// PatchesDir returns the directory holding immutable patch records.
func (c *Config) PatchesDir() string {
	return filepath.Join(c.Paths.StateDir, "patches")
}

// ImpactDir returns the directory holding per-patch impact archives.
func (c *Config) ImpactDir() string {
	return filepath.Join(c.Paths.StateDir, "impact")
}

// ImpactPath returns the canonical latest-impact file.
func (c *Config) ImpactPath() string {
	return filepath.Join(c.Paths.StateDir, "impact.json")
}

// SpecsDir returns the spec-store database directory.
func (c *Config) SpecsDir() string {
	return filepath.Join(c.Paths.StateDir, "specs")
}

// RunsDir returns the per-run log/snapshot directory root. It sits next
// to the state directory, not inside it, so run logs survive a state
// wipe.
func (c *Config) RunsDir() string {
	return filepath.Join(filepath.Dir(c.Paths.StateDir), "runs")
}

// PathKey is a symbolic name for one configured path. Verification suites
// refer to paths by key; keys resolve through a fixed accessor table, never
// through expression evaluation.
type PathKey string

// Symbolic path keys accepted by ResolvePathKey.
const (
	PathSrcDir           PathKey = "paths.src_dir"
	PathStateDir         PathKey = "paths.state_dir"
	PathInputsDir        PathKey = "paths.inputs_dir"
	PathToolsDir         PathKey = "paths.tools_dir"
	PathBlueprintsOut    PathKey = "paths.blueprints_out"
	PathArtifactsOut     PathKey = "paths.artifacts_out"
	PathRelationshipsOut PathKey = "paths.relationships_out"
	PathMetaState        PathKey = "paths.meta_state"
	PathImpact           PathKey = "paths.impact"
)

// ResolvePathKey maps a symbolic key to its configured absolute path.
// Unknown keys return ErrUnknownPathKey with the list of known keys.
func (c *Config) ResolvePathKey(key PathKey) (string, error) {
	table := map[PathKey]string{
		PathSrcDir:           c.Paths.SrcDir,
		PathStateDir:         c.Paths.StateDir,
		PathInputsDir:        c.Paths.InputsDir,
		PathToolsDir:         c.Paths.ToolsDir,
		PathBlueprintsOut:    c.Paths.BlueprintsOut,
		PathArtifactsOut:     c.Paths.ArtifactsOut,
		PathRelationshipsOut: c.Paths.RelationshipsOut,
		PathMetaState:        c.MetaStatePath(),
		PathImpact:           c.ImpactPath(),
	}
	if p, ok := table[key]; ok {
		return p, nil
	}
	known := make([]PathKey, 0, len(table))
	for k := range table {
		known = append(known, k)
	}
	return "", fmt.Errorf("%w: %q (known: %v)", ErrUnknownPathKey, key, known)
}

// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/substratelabs/atlas/artifact"
	"github.com/substratelabs/atlas/blueprint"
)

// BlueprintsPayload is the on-disk shape of the blueprints step output.
type BlueprintsPayload struct {
	Fingerprint string               `json:"fingerprint"`
	Inventory   *blueprint.Inventory `json:"inventory"`
}

// ArtifactsPayload is the on-disk shape of the artifacts step output.
type ArtifactsPayload struct {
	Fingerprint      string               `json:"fingerprint"`
	GeneratedAtMilli int64                `json:"generated_at_ms"`
	Artifacts        []*artifact.Artifact `json:"artifacts"`
}

// RelationshipsPayload is the on-disk shape of the relationships step output.
type RelationshipsPayload struct {
	Fingerprint      string                   `json:"fingerprint"`
	GeneratedAtMilli int64                    `json:"generated_at_ms"`
	Relationships    []*artifact.Relationship `json:"relationships"`
}

// LoadArtifacts reads an artifacts payload from disk.
func LoadArtifacts(path string) (*ArtifactsPayload, error) {
	var p ArtifactsPayload
	if err := readJSON(path, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadRelationships reads a relationships payload from disk.
func LoadRelationships(path string) (*RelationshipsPayload, error) {
	var p RelationshipsPayload
	if err := readJSON(path, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadBlueprints reads a blueprints payload from disk.
func LoadBlueprints(path string) (*BlueprintsPayload, error) {
	var p BlueprintsPayload
	if err := readJSON(path, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

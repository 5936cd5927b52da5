// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package specstore

import (
	"encoding/json"

	"github.com/substratelabs/atlas/verify"
)

// defaultDocs returns the shipped reference documents: one description
// per verification invariant plus the payload schema notes.
func defaultDocs() []*Doc {
	invariants := []struct {
		id, title, detail string
	}{
		{
			id:     verify.InvArtifactIDUnique,
			title:  "Artifact IDs are unique",
			detail: "Every artifact_id of the form <type>:<name>:<file>:<start>-<end> appears at most once in the artifacts payload.",
		},
		{
			id:     verify.InvEndpointTypesNonempty,
			title:  "Relationship endpoints carry a type",
			detail: "Both endpoints of every relationship declare an artifact type; unresolved endpoints use unresolved_ref.",
		},
		{
			id:     verify.InvAnchorOrdering,
			title:  "Anchors are ordered",
			detail: "Every artifact anchor satisfies start_line <= end_line, with columns ordered on the same line, all 1-based.",
		},
		{
			id:     verify.InvRelIDsUnique,
			title:  "Relationship IDs are unique",
			detail: "Every rel_id of the form <type>:<from>-><to> appears at most once in the relationships payload.",
		},
		{
			id:     verify.InvConfidenceValid,
			title:  "Confidence values are valid",
			detail: "Every artifact and relationship carries one of: certain, probable, heuristic.",
		},
	}

	var docs []*Doc
	for _, inv := range invariants {
		body, _ := json.Marshal(map[string]string{"detail": inv.detail})
		docs = append(docs, &Doc{
			Kind:   KindInvariant,
			SpecID: inv.id,
			Title:  inv.title,
			Body:   body,
		})
	}

	schemaBody, _ := json.Marshal(map[string]any{
		"artifacts":     map[string]string{"fingerprint": "string", "artifacts": "list"},
		"relationships": map[string]string{"fingerprint": "string", "relationships": "list"},
		"blueprints":    map[string]string{"fingerprint": "string", "inventory": "dict"},
	})
	docs = append(docs, &Doc{
		Kind:   KindSchema,
		SpecID: "payloads",
		Title:  "Analysis payload shapes",
		Body:   schemaBody,
	})
	return docs
}

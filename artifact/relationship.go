// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package artifact

import (
	"errors"
	"fmt"
)

// RelType identifies the type of a relationship edge.
type RelType string

// Relationship types derived by the builder.
const (
	// RelDeclares links an owner to a child artifact it declares:
	// model → model_field, serializer → serializer_field/validator.
	RelDeclares RelType = "declares"

	// RelSerializesModel links a serializer to the model named by its
	// inner Meta.model reference.
	RelSerializesModel RelType = "serializes_model"

	// RelViewUsesSerializer links a view to a serializer it instantiates,
	// via the serializer_class attribute or get_serializer_class returns.
	RelViewUsesSerializer RelType = "view_uses_serializer"

	// RelRoutesTo links a url_pattern to its target view.
	RelRoutesTo RelType = "routes_to"

	// RelRegisters links a router_register to the registered viewset.
	RelRegisters RelType = "registers"

	// RelMentionsFieldString is the optional fuzzy co-occurrence edge from
	// any non-error artifact to a field whose short name appears inside the
	// artifact's metadata text. A hint channel, not a structural fact.
	RelMentionsFieldString RelType = "mentions_field_string"
)

// Endpoint is one side of a relationship. ArtifactID is empty for an
// unresolved reference; Type is non-empty always, carrying
// KindUnresolvedRef when the target could not be matched.
type Endpoint struct {
	ArtifactID string `json:"artifact_id,omitempty"`
	Type       Kind   `json:"type"`
	Name       string `json:"name"`
}

// Resolved reports whether the endpoint points at a known artifact.
func (e Endpoint) Resolved() bool {
	return e.ArtifactID != ""
}

// Key returns the identity token used in relationship IDs: the artifact ID
// when resolved, otherwise "name:<name>".
func (e Endpoint) Key() string {
	if e.ArtifactID != "" {
		return e.ArtifactID
	}
	return "name:" + e.Name
}

// ResolvedEndpoint builds an endpoint for a known artifact.
func ResolvedEndpoint(a *Artifact) Endpoint {
	return Endpoint{ArtifactID: a.ID, Type: a.Kind, Name: a.Name}
}

// UnresolvedEndpoint builds a weak back-reference endpoint for a name that
// could not be matched to any artifact.
func UnresolvedEndpoint(name string) Endpoint {
	return Endpoint{Type: KindUnresolvedRef, Name: name}
}

// Relationship is a typed, directed edge between two endpoints.
type Relationship struct {
	ID         string            `json:"rel_id"`
	Type       RelType           `json:"type"`
	From       Endpoint          `json:"from"`
	To         Endpoint          `json:"to"`
	Confidence Confidence        `json:"confidence"`
	Evidence   []string          `json:"evidence,omitempty"`
	Meta       map[string]string `json:"meta,omitempty"`
}

// Sentinel errors for relationship validation.
var (
	// ErrEmptyEndpointType indicates an endpoint with no type, which is
	// forbidden even for unresolved references.
	ErrEmptyEndpointType = errors.New("relationship endpoint type must not be empty")

	// ErrEmptyRelType indicates a relationship with no type.
	ErrEmptyRelType = errors.New("relationship type must not be empty")
)

// MakeRelID builds the deterministic, dedup-stable relationship identifier.
func MakeRelID(relType RelType, from, to Endpoint) string {
	return fmt.Sprintf("%s:%s->%s", relType, from.Key(), to.Key())
}

// NewRelationship constructs a relationship with its ID filled in.
func NewRelationship(relType RelType, from, to Endpoint, confidence Confidence) *Relationship {
	return &Relationship{
		ID:         MakeRelID(relType, from, to),
		Type:       relType,
		From:       from,
		To:         to,
		Confidence: confidence,
	}
}

// Validate checks the structural invariants of a relationship.
func (r *Relationship) Validate() error {
	if r.Type == "" {
		return ErrEmptyRelType
	}
	if r.From.Type == "" || r.To.Type == "" {
		return fmt.Errorf("%w (rel %s)", ErrEmptyEndpointType, r.ID)
	}
	if !r.Confidence.Valid() {
		return fmt.Errorf("%w: %q (rel %s)", ErrInvalidConfidence, r.Confidence, r.ID)
	}
	if want := MakeRelID(r.Type, r.From, r.To); r.ID != want {
		return fmt.Errorf("relationship id %q does not match derived id %q", r.ID, want)
	}
	return nil
}

// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package query

import (
	"fmt"
	"strings"

	"github.com/substratelabs/atlas/artifact"
)

// TraceRouteToModelArgs selects the URL route to trace.
type TraceRouteToModelArgs struct {
	Route string `json:"route"`
}

// TraceStep is one hop in a route trace.
type TraceStep struct {
	Relationship *artifact.Relationship `json:"relationship"`
	// Artifact is the hop target when it resolves; nil for unresolved
	// endpoints.
	Artifact *artifact.Artifact `json:"artifact,omitempty"`
}

// RouteTrace is the chain from one routing entry toward its models.
type RouteTrace struct {
	Entry *artifact.Artifact `json:"entry"`
	Steps []TraceStep        `json:"steps"`
	// Models are the model artifacts the chain reached.
	Models []*artifact.Artifact `json:"models,omitempty"`
	// Complete is false when the chain died on an unresolved endpoint.
	Complete bool `json:"complete"`
}

// RouteToModelResult is the output of trace_route_to_model.
type RouteToModelResult struct {
	Route  string       `json:"route"`
	Traces []RouteTrace `json:"traces"`
}

// TraceRouteToModel follows a URL route through its view and serializer
// down to the models it ultimately serializes.
func (ix *Index) TraceRouteToModel(args TraceRouteToModelArgs) (*RouteToModelResult, error) {
	if args.Route == "" {
		return nil, fmt.Errorf("%w: route is required", ErrBadArgs)
	}
	route := normalizeRoute(args.Route)

	entries := ix.routingEntries(route)
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no routing entry matches %q", ErrArtifactNotFound, args.Route)
	}

	result := &RouteToModelResult{Route: args.Route}
	for _, entry := range entries {
		result.Traces = append(result.Traces, ix.traceFromEntry(entry))
	}
	return result, nil
}

// routingEntries finds url_pattern artifacts whose route matches, and
// router_register artifacts whose prefix covers the route.
func (ix *Index) routingEntries(route string) []*artifact.Artifact {
	var entries []*artifact.Artifact
	for _, a := range ix.ByKind(artifact.KindURLPattern) {
		if a.Meta.URLPattern == nil {
			continue
		}
		if normalizeRoute(a.Meta.URLPattern.Route) == route {
			entries = append(entries, a)
		}
	}
	for _, a := range ix.ByKind(artifact.KindRouterRegister) {
		if a.Meta.RouterRegister == nil {
			continue
		}
		prefix := normalizeRoute(a.Meta.RouterRegister.Prefix)
		if prefix == "" {
			continue
		}
		if route == prefix || strings.HasPrefix(route, prefix+"/") ||
			strings.HasSuffix(route, "/"+prefix) || strings.Contains(route, "/"+prefix+"/") {
			entries = append(entries, a)
		}
	}
	return entries
}

// traceFromEntry walks entry -> view -> serializer -> model, recording
// every hop. Unresolved endpoints end the branch.
func (ix *Index) traceFromEntry(entry *artifact.Artifact) RouteTrace {
	trace := RouteTrace{Entry: entry, Complete: true}
	seenModels := make(map[string]bool)

	type frontier struct{ a *artifact.Artifact }
	queue := []frontier{{a: entry}}
	visited := map[string]bool{entry.ID: true}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, rel := range ix.Outgoing(cur.a.ID) {
			switch rel.Type {
			case artifact.RelRoutesTo, artifact.RelRegisters,
				artifact.RelViewUsesSerializer, artifact.RelSerializesModel:
			default:
				continue
			}
			far, ok := ix.ByID(rel.To.ArtifactID)
			if !ok {
				trace.Steps = append(trace.Steps, TraceStep{Relationship: rel})
				trace.Complete = false
				continue
			}
			trace.Steps = append(trace.Steps, TraceStep{Relationship: rel, Artifact: far})
			if far.Kind == artifact.KindModel {
				if !seenModels[far.ID] {
					seenModels[far.ID] = true
					trace.Models = append(trace.Models, far)
				}
				continue
			}
			if !visited[far.ID] {
				visited[far.ID] = true
				queue = append(queue, frontier{a: far})
			}
		}
	}
	if len(trace.Models) == 0 {
		trace.Complete = false
	}
	return trace
}

// TraceModelToRoutesArgs selects the model to trace back from.
type TraceModelToRoutesArgs struct {
	Model string `json:"model"`
}

// RouteBinding is one URL surface that can reach the model.
type RouteBinding struct {
	Route string `json:"route"`
	// Entry is the url_pattern or router_register artifact.
	Entry *artifact.Artifact `json:"entry"`
	// Via lists the artifact names on the path back to the model.
	Via []string `json:"via,omitempty"`
}

// ModelToRoutesResult is the output of trace_model_to_routes.
type ModelToRoutesResult struct {
	Model  *artifact.Artifact `json:"model"`
	Routes []RouteBinding     `json:"routes"`
}

// TraceModelToRoutes walks backward from a model through serializers and
// views to every routing entry that reaches it.
func (ix *Index) TraceModelToRoutes(args TraceModelToRoutesArgs) (*ModelToRoutesResult, error) {
	if args.Model == "" {
		return nil, fmt.Errorf("%w: model is required", ErrBadArgs)
	}
	models, _ := ix.findKindByName(artifact.KindModel, args.Model, 0)
	if len(models.Artifacts) == 0 {
		return nil, fmt.Errorf("%w: model %q", ErrArtifactNotFound, args.Model)
	}
	model := models.Artifacts[0]

	result := &ModelToRoutesResult{Model: model}
	type frontier struct {
		a   *artifact.Artifact
		via []string
	}
	queue := []frontier{{a: model}}
	visited := map[string]bool{model.ID: true}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, rel := range ix.Incoming(cur.a.ID) {
			switch rel.Type {
			case artifact.RelSerializesModel, artifact.RelViewUsesSerializer,
				artifact.RelRoutesTo, artifact.RelRegisters:
			default:
				continue
			}
			far, ok := ix.ByID(rel.From.ArtifactID)
			if !ok || visited[far.ID] {
				continue
			}
			visited[far.ID] = true
			switch far.Kind {
			case artifact.KindURLPattern, artifact.KindRouterRegister:
				result.Routes = append(result.Routes, RouteBinding{
					Route: routeOf(far),
					Entry: far,
					Via:   cur.via,
				})
			default:
				queue = append(queue, frontier{a: far, via: append(append([]string(nil), cur.via...), far.Name)})
			}
		}
	}
	return result, nil
}

// routeOf extracts the route string from a routing artifact.
func routeOf(a *artifact.Artifact) string {
	if a.Meta.URLPattern != nil {
		return a.Meta.URLPattern.Route
	}
	if a.Meta.RouterRegister != nil {
		return a.Meta.RouterRegister.Prefix
	}
	return a.Name
}

// normalizeRoute strips the slashes Django route declarations leave off
// but callers usually include.
func normalizeRoute(route string) string {
	return strings.Trim(strings.TrimSpace(route), "/")
}

// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package query

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatch metrics.
var (
	opTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_query_ops_total",
		Help: "Total query op dispatches by op and status",
	}, []string{"op", "status"})

	opDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "atlas_query_op_duration_seconds",
		Help:    "Query op execution latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
)

// opFunc adapts one typed op to the generic dispatch signature.
type opFunc func(ix *Index, raw json.RawMessage) (any, error)

// registry binds op names to handlers. External callers bind by name
// only; adding an op means adding a row here.
var registry = map[string]opFunc{
	"get_artifact":          typedOp((*Index).GetArtifact),
	"find_by_type":          typedOp((*Index).FindByType),
	"find_by_name":          typedOp((*Index).FindByName),
	"find_contains":         typedOp((*Index).FindContains),
	"neighbors":             typedOp((*Index).Neighbors),
	"graph_walk":            typedOp((*Index).GraphWalk),
	"trace_route_to_model":  typedOp((*Index).TraceRouteToModel),
	"trace_model_to_routes": typedOp((*Index).TraceModelToRoutes),
	"find_model":            typedOp((*Index).FindModel),
	"find_serializer":       typedOp((*Index).FindSerializer),
	"find_view":             typedOp((*Index).FindView),
	"stats":                 typedOp((*Index).Stats),
}

// typedOp wraps a typed op method with argument decoding.
func typedOp[A any, R any](fn func(*Index, A) (R, error)) opFunc {
	return func(ix *Index, raw json.RawMessage) (any, error) {
		var args A
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBadArgs, err)
			}
		}
		return fn(ix, args)
	}
}

// Ops lists the registered op names, sorted.
func Ops() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunOp dispatches a named op with raw JSON arguments. The index must be
// loaded first.
func (ix *Index) RunOp(name string, raw json.RawMessage) (any, error) {
	fn, ok := registry[name]
	if !ok {
		opTotal.WithLabelValues(name, "unknown").Inc()
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownOp, name, Ops())
	}
	if !ix.Loaded() {
		opTotal.WithLabelValues(name, "error").Inc()
		return nil, ErrNotLoaded
	}

	start := time.Now()
	out, err := fn(ix, raw)
	opDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		opTotal.WithLabelValues(name, "error").Inc()
		return nil, err
	}
	opTotal.WithLabelValues(name, "ok").Inc()
	return out, nil
}

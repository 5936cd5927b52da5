// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package impact

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for impact analysis.
var (
	tracer = otel.Tracer("atlas.impact")
	meter  = otel.Meter("atlas.impact")
)

// Metrics for impact analysis.
var (
	analysisLatency metric.Float64Histogram
	analysisTotal   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		analysisLatency, err = meter.Float64Histogram(
			"impact_analysis_duration_seconds",
			metric.WithDescription("Duration of impact analysis"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		analysisTotal, err = meter.Int64Counter(
			"impact_analysis_total",
			metric.WithDescription("Total number of impact analyses"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startAnalysisSpan creates a span for an impact analysis.
func startAnalysisSpan(ctx context.Context, patchID string, artifacts, relationships int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Analyzer.Analyze",
		trace.WithAttributes(
			attribute.String("impact.patch_id", patchID),
			attribute.Int("impact.artifacts", artifacts),
			attribute.Int("impact.relationships", relationships),
		),
	)
}

// recordAnalysisMetrics records metrics for one analysis.
func recordAnalysisMetrics(ctx context.Context, duration time.Duration, affected int) {
	if err := initMetrics(); err != nil {
		return
	}

	analysisLatency.Record(ctx, duration.Seconds(), metric.WithAttributes())
	analysisTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("affected_any", affected > 0),
	))
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level meter for graph operations. Graph mutations carry no
// context, so instruments record against the background context; spans
// for graph work are opened by the service layer instead.
var meter = otel.Meter("aleutian.drift.graph")

// Metrics for merge and query operations.
var (
	mergeLatency metric.Float64Histogram
	mergeTotal   metric.Int64Counter
	mergedSize   metric.Int64Histogram
	queryLatency metric.Float64Histogram
	queryResults metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		mergeLatency, err = meter.Float64Histogram(
			"drift_graph_merge_duration_seconds",
			metric.WithDescription("Duration of graph merge operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		mergeTotal, err = meter.Int64Counter(
			"drift_graph_merge_total",
			metric.WithDescription("Total number of graph merge operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		mergedSize, err = meter.Int64Histogram(
			"drift_graph_merged_elements",
			metric.WithDescription("Stored vertices plus edges after a merge"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		queryLatency, err = meter.Float64Histogram(
			"drift_graph_query_duration_seconds",
			metric.WithDescription("Duration of graph query operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		queryResults, err = meter.Int64Histogram(
			"drift_graph_query_results",
			metric.WithDescription("Result count of graph query operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordMerge records metrics for one merge operation.
func recordMerge(flavor string, duration time.Duration, vertexCount, edgeCount int) {
	if err := initMetrics(); err != nil {
		return
	}
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("flavor", flavor))

	mergeLatency.Record(ctx, duration.Seconds(), attrs)
	mergeTotal.Add(ctx, 1, attrs)
	mergedSize.Record(ctx, int64(vertexCount+edgeCount), attrs)
}

// recordQuery records metrics for one query operation.
func recordQuery(flavor, queryType string, duration time.Duration, resultCount int) {
	if err := initMetrics(); err != nil {
		return
	}
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("flavor", flavor),
		attribute.String("query_type", queryType),
	)

	queryLatency.Record(ctx, duration.Seconds(), attrs)
	queryResults.Record(ctx, int64(resultCount), attrs)
}

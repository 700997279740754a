// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sequence

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level meter for sequence operations. Sequence mutations carry
// no context, so instruments record against the background context;
// spans for sequence work are opened by the service layer instead.
var meter = otel.Meter("aleutian.drift.sequence")

var (
	mergeLatency metric.Float64Histogram
	mergeTotal   metric.Int64Counter
	mergedSize   metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		mergeLatency, err = meter.Float64Histogram(
			"drift_sequence_merge_duration_seconds",
			metric.WithDescription("Duration of sequence merge operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		mergeTotal, err = meter.Int64Counter(
			"drift_sequence_merge_total",
			metric.WithDescription("Total number of sequence merge operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		mergedSize, err = meter.Int64Histogram(
			"drift_sequence_merged_elements",
			metric.WithDescription("Stored elements after a merge, tombstones included"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordMerge records metrics for one merge operation.
func recordMerge(kind string, duration time.Duration, size int) {
	if err := initMetrics(); err != nil {
		return
	}
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("kind", kind))

	mergeLatency.Record(ctx, duration.Seconds(), attrs)
	mergeTotal.Add(ctx, 1, attrs)
	mergedSize.Record(ctx, int64(size), attrs)
}

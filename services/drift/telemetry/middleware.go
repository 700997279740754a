// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	httpMetricsOnce     sync.Once
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram
)

func initHTTPMetrics() {
	meter := otel.Meter("aleutian.drift.http")
	httpRequestsTotal, _ = meter.Int64Counter(
		"drift_http_requests_total",
		metric.WithDescription("Total HTTP requests handled"),
	)
	httpRequestDuration, _ = meter.Float64Histogram(
		"drift_http_request_duration_seconds",
		metric.WithDescription("HTTP request latency"),
		metric.WithUnit("s"),
	)
}

// TracingMiddleware returns gin middleware that wraps each request in a
// server span with incoming trace context extracted from headers.
func TracingMiddleware(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName)
}

// MetricsMiddleware returns gin middleware that records request count
// and latency, labeled by method, route, and status.
func MetricsMiddleware() gin.HandlerFunc {
	httpMetricsOnce.Do(initHTTPMetrics)

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		attrs := metric.WithAttributes(
			attribute.String("method", c.Request.Method),
			attribute.String("route", route),
			attribute.Int("status", c.Writer.Status()),
		)

		ctx := c.Request.Context()
		if httpRequestsTotal != nil {
			httpRequestsTotal.Add(ctx, 1, attrs)
		}
		if httpRequestDuration != nil {
			httpRequestDuration.Record(ctx, time.Since(start).Seconds(), attrs)
		}
	}
}

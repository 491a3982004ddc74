// Copyright 2025 Nguyen Nhat Nguyen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package internal

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/ngnhng/durableai/sdk"

// workerMetrics instruments task processing. Instruments come from the
// configured MeterProvider, the global one when none is given.
type workerMetrics struct {
	taskDuration       metric.Float64Histogram
	activityAttempts   metric.Int64Counter
	activityFailures   metric.Int64Counter
	activityRetries    metric.Int64Counter
	workflowsCompleted metric.Int64Counter
}

func newWorkerMetrics(mp metric.MeterProvider) *workerMetrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)

	m := &workerMetrics{}
	// instrument errors only happen on invalid names; the noop instrument
	// returned alongside keeps the worker running.
	m.taskDuration, _ = meter.Float64Histogram(
		"durableai_task_duration_seconds",
		metric.WithDescription("Time spent handling one workflow or activity task"),
		metric.WithUnit("s"),
	)
	m.activityAttempts, _ = meter.Int64Counter(
		"durableai_activity_attempts_total",
		metric.WithDescription("Activity attempts started"),
	)
	m.activityFailures, _ = meter.Int64Counter(
		"durableai_activity_failures_total",
		metric.WithDescription("Activities that failed for good"),
	)
	m.activityRetries, _ = meter.Int64Counter(
		"durableai_activity_retries_total",
		metric.WithDescription("Activity attempts that were retried"),
	)
	m.workflowsCompleted, _ = meter.Int64Counter(
		"durableai_workflows_closed_total",
		metric.WithDescription("Workflow runs that completed or failed"),
	)
	return m
}

func (m *workerMetrics) observeTask(ctx context.Context, kind string, start time.Time) {
	m.taskDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *workerMetrics) attempt(ctx context.Context, activity string) {
	m.activityAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("activity", activity)))
}

func (m *workerMetrics) retry(ctx context.Context, activity string) {
	m.activityRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("activity", activity)))
}

func (m *workerMetrics) failure(ctx context.Context, activity, errType string) {
	m.activityFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("activity", activity),
		attribute.String("error_type", errType),
	))
}

func (m *workerMetrics) closed(ctx context.Context, workflow, status string) {
	m.workflowsCompleted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow", workflow),
		attribute.String("status", status),
	))
}

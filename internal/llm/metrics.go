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

package llm

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type clientMetrics struct {
	duration metric.Float64Histogram
	requests metric.Int64Counter
	errors   metric.Int64Counter
	usage    metric.Int64Counter
}

func newClientMetrics(mp metric.MeterProvider) *clientMetrics {
	meter := mp.Meter(instrumentationName)
	m := &clientMetrics{}
	m.duration, _ = meter.Float64Histogram(
		"durableai_llm_request_duration_seconds",
		metric.WithDescription("LLM request duration in seconds"),
		metric.WithUnit("s"),
	)
	m.requests, _ = meter.Int64Counter(
		"durableai_llm_requests_total",
		metric.WithDescription("Total LLM requests"),
	)
	m.errors, _ = meter.Int64Counter(
		"durableai_llm_errors_total",
		metric.WithDescription("Total failed LLM requests"),
	)
	m.usage, _ = meter.Int64Counter(
		"durableai_llm_tokens_total",
		metric.WithDescription("Tokens reported by the LLM usage block"),
	)
	return m
}

func (m *clientMetrics) request(ctx context.Context, model string, d time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("model", model))
	m.duration.Record(ctx, d.Seconds(), attrs)
	m.requests.Add(ctx, 1, attrs)
	if err == nil {
		return
	}
	status := "transport"
	if apiErr, ok := err.(*APIError); ok {
		status = strconv.Itoa(apiErr.StatusCode)
	}
	m.errors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("status", status),
	))
}

func (m *clientMetrics) tokens(ctx context.Context, model string, u Usage) {
	m.usage.Add(ctx, int64(u.PromptTokens), metric.WithAttributes(
		attribute.String("model", model), attribute.String("kind", "prompt")))
	m.usage.Add(ctx, int64(u.CompletionTokens), metric.WithAttributes(
		attribute.String("model", model), attribute.String("kind", "completion")))
}

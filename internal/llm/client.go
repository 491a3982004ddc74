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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ngnhng/durableai/internal/config"
)

const instrumentationName = "github.com/ngnhng/durableai/internal/llm"

// Client talks to an OpenAI compatible /chat/completions endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	headers    map[string]string
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
	tracer     trace.Tracer
	metrics    *clientMetrics
	now        func() time.Time
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient = &http.Client{Timeout: d}
	}
}

// WithMaxRetries enables in-client retries of retryable failures. The
// default is 0: retries belong to the workflow engine.
func WithMaxRetries(max int) Option {
	return func(c *Client) {
		c.maxRetries = max
	}
}

func WithBaseDelay(delay time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = delay
	}
}

// WithModel sets the model used when a request names none.
func WithModel(model string) Option {
	return func(c *Client) {
		c.model = model
	}
}

// WithHeaders adds headers to every request, e.g. OpenRouter's
// HTTP-Referer and X-Title.
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) {
		for k, v := range headers {
			c.headers[k] = v
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		c.tracer = tp.Tracer(instrumentationName)
	}
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Client) {
		c.metrics = newClientMetrics(mp)
	}
}

func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		headers:    map[string]string{},
		baseDelay:  time.Second,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(instrumentationName)
	}
	if c.metrics == nil {
		c.metrics = newClientMetrics(otel.GetMeterProvider())
	}
	return c
}

// NewFromConfig builds a client for the provider p as resolved by cfg.
func NewFromConfig(cfg *config.LLMConfig, p config.Provider, opts ...Option) *Client {
	ep := cfg.EndpointFor(p)
	base := []Option{
		WithTimeout(cfg.Timeout),
		WithMaxRetries(cfg.MaxRetries),
		WithModel(ep.Model),
		WithHeaders(ep.Headers),
	}
	return New(ep.BaseURL, ep.APIKey, append(base, opts...)...)
}

func (c *Client) Model() string { return c.model }

// Complete sends req and returns the decoded response. Retryable failures
// are retried up to the configured maximum, honouring Retry-After.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if req.Model == "" {
		req.Model = c.model
	}
	if req.Model == "" {
		return nil, fmt.Errorf("llm: no model configured")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, span := c.tracer.Start(ctx, "llm.chat_completions",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.model", req.Model),
			attribute.Int("llm.max_tokens", req.MaxTokens),
			attribute.Int("llm.messages", len(req.Messages)),
			attribute.Int("llm.tools", len(req.Tools)),
		))
	defer span.End()

	resp, err := retry.DoWithData(
		func() (*Response, error) {
			start := c.now()
			resp, err := c.do(ctx, body)
			c.metrics.request(ctx, req.Model, c.now().Sub(start), err)
			return resp, err
		},
		retry.Context(ctx),
		retry.Attempts(uint(max(c.maxRetries, 0)+1)),
		retry.RetryIf(IsRetryable),
		retry.Delay(c.baseDelay),
		retry.DelayType(retryAfterDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.WarnContext(ctx, "retrying llm request",
				"model", req.Model, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			err = &TransportError{Err: ctxErr}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("llm.usage.prompt_tokens", resp.Usage.PromptTokens),
		attribute.Int("llm.usage.completion_tokens", resp.Usage.CompletionTokens),
		attribute.String("llm.finish_reason", resp.FinishReason()),
	)
	c.metrics.tokens(ctx, req.Model, resp.Usage)
	return resp, nil
}

// retryAfterDelay waits as long as the provider asked to, and backs off
// exponentially from the base delay otherwise.
func retryAfterDelay(n uint, err error, cfg *retry.Config) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter
	}
	return retry.BackOffDelay(n-1, err, cfg)
}

func (c *Client) do(ctx context.Context, body []byte) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := parseErrorBody(resp.StatusCode, data)
		apiErr.RetryAfter = retryAfter(resp.Header, c.now())
		return nil, apiErr
	}

	var out Response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, ErrNoChoices
	}
	return &out, nil
}

// Chat sends messages and returns the first choice's text.
func (c *Client) Chat(ctx context.Context, model string, messages []Message, maxTokens int) (string, error) {
	resp, err := c.Complete(ctx, Request{Model: model, Messages: messages, MaxTokens: maxTokens})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

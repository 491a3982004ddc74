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
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ngnhng/durableai/api"
)

func TestCalculateRetryDelay(t *testing.T) {
	tests := []struct {
		name    string
		policy  *api.RetryPolicy
		attempt int32
		want    time.Duration
	}{
		{"defaults first retry", &api.RetryPolicy{}, 1, time.Second},
		{"defaults doubles", &api.RetryPolicy{}, 3, 4 * time.Second},
		{"custom coefficient", &api.RetryPolicy{InitialIntervalMs: 100, BackoffCoefficient: 3}, 3, 900 * time.Millisecond},
		{"capped by maximum", &api.RetryPolicy{InitialIntervalMs: 1000, MaximumIntervalMs: 5000}, 10, 5 * time.Second},
		{"default cap is 100x", &api.RetryPolicy{InitialIntervalMs: 10}, 30, time.Second},
		{"nil policy", nil, 5, time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := calculateRetryDelay(tt.policy, tt.attempt); got != tt.want {
				t.Errorf("calculateRetryDelay() = %v, want %v", got, tt.want)
			}
		})
	}
}

type quotaError struct{}

func (quotaError) Error() string     { return "quota exceeded" }
func (quotaError) ErrorType() string { return "QuotaExceeded" }

func TestEvaluateRetryDecision(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	base := func(p *api.RetryPolicy) *api.ActivityTask {
		return &api.ActivityTask{ActivityFn: "a", Attempt: 1, RetryPolicy: p, ScheduledAtMs: now.UnixMilli()}
	}
	plain := errors.New("transient")

	tests := []struct {
		name  string
		task  *api.ActivityTask
		err   error
		retry bool
	}{
		{"no policy", base(nil), plain, false},
		{"retryable", base(&api.RetryPolicy{MaximumAttempts: 3}), plain, true},
		{"unlimited attempts", base(&api.RetryPolicy{}), plain, true},
		{
			"maximum attempts reached",
			func() *api.ActivityTask { t := base(&api.RetryPolicy{MaximumAttempts: 3}); t.Attempt = 3; return t }(),
			plain, false,
		},
		{"non-retryable wrapper", base(&api.RetryPolicy{MaximumAttempts: 3}), fmt.Errorf("call: %w", NewNonRetryableError(plain)), false},
		{"listed custom type", base(&api.RetryPolicy{NonRetryableErrorTypes: []string{"QuotaExceeded"}}), fmt.Errorf("call: %w", quotaError{}), false},
		{"listed go type", base(&api.RetryPolicy{NonRetryableErrorTypes: []string{"internal.quotaError"}}), quotaError{}, false},
		{"unlisted type", base(&api.RetryPolicy{NonRetryableErrorTypes: []string{"Other"}}), quotaError{}, true},
		{
			"schedule to close exceeded",
			func() *api.ActivityTask {
				t := base(&api.RetryPolicy{InitialIntervalMs: 500})
				t.ScheduleToCloseTimeoutMs = 1000
				t.ScheduledAtMs = now.UnixMilli() - 800
				return t
			}(),
			plain, false,
		},
		{"timeout is retryable", base(&api.RetryPolicy{MaximumAttempts: 2}), &TimeoutError{Timeout: time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := evaluateRetryDecision(tt.task, tt.err, now)
			if got.retry != tt.retry {
				t.Errorf("retry = %v (%s), want %v", got.retry, got.reason, tt.retry)
			}
		})
	}
}

func TestRegistryRejectsBadRegistrations(t *testing.T) {
	c, err := NewClient(&ClientOptions{Store: NewMemoryStore(nil)})
	if err != nil {
		t.Fatal(err)
	}
	w, err := NewWorker(c, WorkerOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if err := w.RegisterActivity(greet); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	var regErr *RegistrationError
	if err := w.RegisterActivity(greet); !errors.As(err, &regErr) {
		t.Errorf("duplicate registration: got %v", err)
	}
	if err := w.RegisterActivity(func(s string) error { return nil }); !errors.As(err, &regErr) {
		t.Errorf("missing context: got %v", err)
	}
	if err := w.RegisterActivity("not a function", ActivityRegisterOption{Name: "x"}); !errors.As(err, &regErr) {
		t.Errorf("non-function: got %v", err)
	}
	if err := w.RegisterWorkflow(greet); !errors.As(err, &regErr) {
		t.Errorf("workflow with context.Context first: got %v", err)
	}
	if err := w.RegisterActivity(func(ctx context.Context) {}, ActivityRegisterOption{Name: "noerr"}); !errors.As(err, &regErr) {
		t.Errorf("missing error return: got %v", err)
	}
}

func TestReplayDetectsNondeterminism(t *testing.T) {
	wfctx := newWorkflowContext(context.Background(), nil, nil)
	history := []api.WorkflowEvent{
		&api.WorkflowStarted{ID: "wf", WorkflowFnName: "wf", TaskQueue: "q"},
		&api.ActivityScheduled{ID: "wf", ActivityFnName: "first", Seq: 1},
		&api.ActivityCompleted{ID: "wf", ActivityFnName: "first", Seq: 1, Result: []any{"ok"}},
	}
	if err := wfctx.replay(history); err != nil {
		t.Fatalf("replay: %v", err)
	}

	defer func() {
		r := recover()
		var nd *nondeterminismError
		err, _ := r.(error)
		if !errors.As(err, &nd) {
			t.Fatalf("recovered %v, want *nondeterminismError", r)
		}
	}()
	wfctx.ExecuteActivity("second")
}

func TestReplayReturnsRecordedResultsWithoutRescheduling(t *testing.T) {
	wfctx := newWorkflowContext(context.Background(), nil, nil)
	if err := wfctx.replay([]api.WorkflowEvent{
		&api.WorkflowStarted{ID: "wf", WorkflowFnName: "wf", TaskQueue: "q"},
		&api.ActivityScheduled{ID: "wf", ActivityFnName: "first", Seq: 1},
		&api.ActivityCompleted{ID: "wf", ActivityFnName: "first", Seq: 1, Result: []any{"ok"}},
		&api.ActivityScheduled{ID: "wf", ActivityFnName: "second", Seq: 2},
	}); err != nil {
		t.Fatalf("replay: %v", err)
	}

	var out string
	if err := wfctx.ExecuteActivity("first").Get(wfctx, &out); err != nil || out != "ok" {
		t.Fatalf("first = %q, %v", out, err)
	}
	if f := wfctx.ExecuteActivity("second"); f.IsReady() {
		t.Error("second is still running and must be pending")
	}
	if n := len(wfctx.newEvents); n != 0 {
		t.Errorf("replay recorded %d new events", n)
	}

	wfctx.ExecuteActivity("third")
	if n := len(wfctx.newEvents); n != 1 {
		t.Fatalf("new call recorded %d events, want 1", n)
	}
	scheduled, ok := wfctx.newEvents[0].(*api.ActivityScheduled)
	if !ok || scheduled.Seq != 3 || scheduled.TaskQueue != "q" {
		t.Errorf("unexpected event %#v", wfctx.newEvents[0])
	}
}

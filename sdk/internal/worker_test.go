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
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ngnhng/durableai/api"
)

const testQueue = "test-queue"

type pair struct {
	Text  string `json:"text"`
	Count int    `json:"count"`
}

func greet(ctx context.Context, name string) (string, error) {
	return "Hello, " + name + "!", nil
}

func measure(ctx context.Context, text string) (pair, error) {
	return pair{Text: text, Count: len(strings.Fields(text))}, nil
}

func greetAndMeasure(ctx Context, name string) (pair, error) {
	ctx = WithActivityOptions(ctx, ActivityOptions{StartToCloseTimeout: time.Second})

	var greeting string
	if err := ctx.ExecuteActivity(greet, name).Get(ctx, &greeting); err != nil {
		return pair{}, err
	}
	var p pair
	if err := ctx.ExecuteActivity(measure, greeting).Get(ctx, &p); err != nil {
		return pair{}, err
	}
	return p, nil
}

// counting fails until it has been called failures times.
type counting struct {
	calls    atomic.Int32
	failures int32
	err      error
}

func (c *counting) Run(ctx context.Context, in string) (string, error) {
	n := c.calls.Add(1)
	if c.failures < 0 || n <= c.failures {
		return "", c.err
	}
	return strings.ToUpper(in), nil
}

func callFlaky(ctx Context, in string) (string, error) {
	ctx = WithActivityOptions(ctx, ActivityOptions{
		StartToCloseTimeout: time.Second,
		RetryPolicy: &RetryPolicy{
			InitialInterval: time.Millisecond,
			MaximumAttempts: 3,
		},
	})
	var out string
	err := ctx.ExecuteActivity("flaky", in).Get(ctx, &out)
	return out, err
}

type harness struct {
	store  Store
	client Client
	worker *workerImpl
}

func newHarness(t *testing.T, register func(w *workerImpl)) *harness {
	t.Helper()
	return newHarnessOn(t, NewMemoryStore(nil), register)
}

func newHarnessOn(t *testing.T, store Store, register func(w *workerImpl)) *harness {
	t.Helper()
	c, err := NewClient(&ClientOptions{Store: store})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	w, err := NewWorker(c, WorkerOptions{TaskQueue: testQueue, MaxConcurrentTasks: 4})
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	register(w)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("worker stopped with error: %v", err)
		}
	})
	return &harness{store: store, client: c, worker: w}
}

func (h *harness) run(t *testing.T, id string, wf any, args ...any) WorkflowRun {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	run, err := h.client.ExecuteWorkflow(ctx, StartWorkflowOptions{ID: id, TaskQueue: testQueue}, wf, args...)
	if err != nil {
		t.Fatalf("ExecuteWorkflow: %v", err)
	}
	return run
}

func getResult(t *testing.T, run WorkflowRun, out any) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return run.Get(ctx, out)
}

func (h *harness) eventNames(t *testing.T, id string) []string {
	t.Helper()
	events, _, err := h.store.LoadHistory(context.Background(), api.WorkflowID(id))
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	return api.EventNames(events)
}

func TestWorkflowRunsActivitiesInOrder(t *testing.T) {
	h := newHarness(t, func(w *workerImpl) {
		mustRegister(t, w.RegisterWorkflow(greetAndMeasure))
		mustRegister(t, w.RegisterActivity(greet))
		mustRegister(t, w.RegisterActivity(measure))
	})

	run := h.run(t, "wf-ordered", greetAndMeasure, "Ada")
	var got pair
	if err := getResult(t, run, &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if diff := cmp.Diff(pair{Text: "Hello, Ada!", Count: 2}, got); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}

	want := []string{
		"workflow/started",
		"activity/scheduled", "activity/completed",
		"activity/scheduled", "activity/completed",
		"workflow/completed",
	}
	if diff := cmp.Diff(want, h.eventNames(t, "wf-ordered")); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestActivityRetriedUntilSuccess(t *testing.T) {
	flaky := &counting{failures: 2, err: errors.New("rate limited")}
	h := newHarness(t, func(w *workerImpl) {
		mustRegister(t, w.RegisterWorkflow(callFlaky))
		mustRegister(t, w.RegisterActivity(flaky.Run, ActivityRegisterOption{Name: "flaky"}))
	})

	var got string
	if err := getResult(t, h.run(t, "wf-retry", callFlaky, "ok"), &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "OK" {
		t.Errorf("got %q, want %q", got, "OK")
	}
	if n := flaky.calls.Load(); n != 3 {
		t.Errorf("activity ran %d times, want 3", n)
	}

	retried := 0
	for _, name := range h.eventNames(t, "wf-retry") {
		if name == "activity/retried" {
			retried++
		}
	}
	if retried != 2 {
		t.Errorf("recorded %d retries, want 2", retried)
	}
}

func TestExhaustedRetriesFailWorkflow(t *testing.T) {
	flaky := &counting{failures: -1, err: errors.New("boom")}
	h := newHarness(t, func(w *workerImpl) {
		mustRegister(t, w.RegisterWorkflow(callFlaky))
		mustRegister(t, w.RegisterActivity(flaky.Run, ActivityRegisterOption{Name: "flaky"}))
	})

	var got string
	err := getResult(t, h.run(t, "wf-exhausted", callFlaky, "x"), &got)
	var execErr *WorkflowExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("got %v, want *WorkflowExecutionError", err)
	}
	if !strings.Contains(execErr.Message, "boom") {
		t.Errorf("failure message %q does not mention the activity error", execErr.Message)
	}
	if execErr.ErrorType != "*internal.ActivityError" {
		t.Errorf("error type = %q", execErr.ErrorType)
	}
	if n := flaky.calls.Load(); n != 3 {
		t.Errorf("activity ran %d times, want 3", n)
	}
	if got != "" {
		t.Errorf("failed run must not produce a value, got %q", got)
	}
}

func TestNonRetryableErrorStopsRetries(t *testing.T) {
	flaky := &counting{failures: -1, err: NewNonRetryableError(errors.New("bad request"))}
	h := newHarness(t, func(w *workerImpl) {
		mustRegister(t, w.RegisterWorkflow(callFlaky))
		mustRegister(t, w.RegisterActivity(flaky.Run, ActivityRegisterOption{Name: "flaky"}))
	})

	err := getResult(t, h.run(t, "wf-nonretryable", callFlaky, "x"), nil)
	if err == nil {
		t.Fatal("expected the workflow to fail")
	}
	if n := flaky.calls.Load(); n != 1 {
		t.Errorf("activity ran %d times, want 1", n)
	}
}

func stubborn(ctx context.Context) (string, error) {
	time.Sleep(300 * time.Millisecond)
	return "late", nil
}

func callStubborn(ctx Context) (string, error) {
	ctx = WithActivityOptions(ctx, ActivityOptions{
		StartToCloseTimeout: 20 * time.Millisecond,
		RetryPolicy:         &RetryPolicy{MaximumAttempts: 1},
	})
	var out string
	err := ctx.ExecuteActivity(stubborn).Get(ctx, &out)
	return out, err
}

func TestStartToCloseTimeoutIgnoredContext(t *testing.T) {
	h := newHarness(t, func(w *workerImpl) {
		mustRegister(t, w.RegisterWorkflow(callStubborn))
		mustRegister(t, w.RegisterActivity(stubborn))
	})

	err := getResult(t, h.run(t, "wf-timeout", callStubborn), nil)
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("got %v, want a timeout failure", err)
	}
}

func TestExecuteWorkflowRejectsDuplicateID(t *testing.T) {
	h := newHarness(t, func(w *workerImpl) {
		mustRegister(t, w.RegisterWorkflow(greetAndMeasure))
		mustRegister(t, w.RegisterActivity(greet))
		mustRegister(t, w.RegisterActivity(measure))
	})

	h.run(t, "wf-dup", greetAndMeasure, "a")
	_, err := h.client.ExecuteWorkflow(context.Background(), StartWorkflowOptions{ID: "wf-dup", TaskQueue: testQueue}, greetAndMeasure, "b")
	if !errors.Is(err, ErrWorkflowAlreadyStarted) {
		t.Fatalf("got %v, want ErrWorkflowAlreadyStarted", err)
	}
}

func TestExecuteWorkflowValidatesID(t *testing.T) {
	c, err := NewClient(&ClientOptions{Store: NewMemoryStore(nil)})
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.ExecuteWorkflow(context.Background(), StartWorkflowOptions{ID: "a.b"}, greetAndMeasure, "x")
	if !errors.Is(err, ErrInvalidWorkflowID) {
		t.Fatalf("got %v, want ErrInvalidWorkflowID", err)
	}

	run, err := c.ExecuteWorkflow(context.Background(), StartWorkflowOptions{}, greetAndMeasure, "x")
	if err != nil {
		t.Fatalf("generated id: %v", err)
	}
	if run.ID() == "" {
		t.Error("expected a generated workflow id")
	}
}

func mustRegister(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("register: %v", err)
	}
}

func TestGetHistory(t *testing.T) {
	h := newHarness(t, func(w *workerImpl) {
		mustRegister(t, w.RegisterWorkflow(greetAndMeasure))
		mustRegister(t, w.RegisterActivity(greet))
		mustRegister(t, w.RegisterActivity(measure))
	})

	if err := getResult(t, h.run(t, "wf-history", greetAndMeasure, "Ada"), nil); err != nil {
		t.Fatal(err)
	}
	events, err := h.client.GetHistory(context.Background(), "wf-history")
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if diff := cmp.Diff(h.eventNames(t, "wf-history"), api.EventNames(events)); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}

	if _, err := h.client.GetHistory(context.Background(), "wf-missing"); !errors.Is(err, ErrWorkflowNotFound) {
		t.Errorf("got %v, want ErrWorkflowNotFound", err)
	}
}

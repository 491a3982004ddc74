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
	"log/slog"
	"reflect"
	"time"

	"github.com/avast/retry-go/v4"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/ngnhng/durableai/api"
	"github.com/ngnhng/durableai/api/serde"
)

const (
	defaultMaxConcurrentTasks = 64
	maxCommitAttempts         = 8
	commitRetryDelay          = 5 * time.Millisecond
	maxCommitRetryDelay       = 200 * time.Millisecond
)

type (
	WorkerOptions struct {
		// TaskQueue is the queue this worker polls. Defaults to api.DefaultTaskQueue.
		TaskQueue string
		Logger    *slog.Logger
		// MaxConcurrentTasks bounds the tasks handled at once.
		MaxConcurrentTasks int
		// MeterProvider receives task and activity metrics. Defaults to the
		// global provider.
		MeterProvider metric.MeterProvider
	}

	ActivityRegisterOption struct {
		// Name replaces the function name as the registration key.
		Name string
	}

	WorkflowRegisterOption struct {
		Name string
	}

	WorkflowRegistry interface {
		RegisterWorkflow(w any, options ...WorkflowRegisterOption) error
	}

	ActivityRegistry interface {
		RegisterActivity(a any, options ...ActivityRegisterOption) error
	}
)

type workerImpl struct {
	store         Store
	converter     serde.BinarySerde
	typeConverter *serde.TypeConverter

	taskQueue      string
	maxConcurrency int

	workflowRegistry *hashMapRegistry
	activityRegistry *hashMapRegistry

	metrics *workerMetrics
	logger  *slog.Logger
	now     func() time.Time
}

func NewWorker(c Client, opts WorkerOptions) (*workerImpl, error) {
	if c == nil {
		return nil, fmt.Errorf("worker needs a client")
	}

	logger := opts.Logger
	if logger == nil {
		logger = c.getLogger()
	}
	queue := opts.TaskQueue
	if queue == "" {
		queue = api.DefaultTaskQueue
	}
	limit := opts.MaxConcurrentTasks
	if limit <= 0 {
		limit = defaultMaxConcurrentTasks
	}

	conv := c.getSerde()
	return &workerImpl{
		store:            c.getStore(),
		converter:        conv,
		typeConverter:    serde.NewTypeConverter(conv),
		taskQueue:        queue,
		maxConcurrency:   limit,
		workflowRegistry: newInMemoryRegistry(),
		activityRegistry: newInMemoryRegistry(),
		metrics:          newWorkerMetrics(opts.MeterProvider),
		logger:           defaultLogger(logger).With("task_queue", queue),
		now:              time.Now,
	}, nil
}

func (w *workerImpl) RegisterWorkflow(fn any, options ...WorkflowRegisterOption) error {
	name, err := registrationName(fn, options, func(o WorkflowRegisterOption) string { return o.Name })
	if err != nil {
		return err
	}
	if err := checkSignature(name, fn, workflowContextType); err != nil {
		return err
	}
	return w.workflowRegistry.set(name, fn)
}

func (w *workerImpl) RegisterActivity(fn any, options ...ActivityRegisterOption) error {
	name, err := registrationName(fn, options, func(o ActivityRegisterOption) string { return o.Name })
	if err != nil {
		return err
	}
	if err := checkSignature(name, fn, contextType); err != nil {
		return err
	}
	return w.activityRegistry.set(name, fn)
}

func registrationName[O any](fn any, options []O, name func(O) string) (string, error) {
	for _, o := range options {
		if n := name(o); n != "" {
			return n, nil
		}
	}
	n, err := extractFullFunctionName(fn)
	if err != nil {
		return "", &RegistrationError{Name: fmt.Sprintf("%T", fn), Reason: err.Error()}
	}
	return n, nil
}

// Run polls the task queue until ctx is done. Each task runs in its own
// goroutine, bounded by MaxConcurrentTasks.
func (w *workerImpl) Run(ctx context.Context) error {
	workflowTasksEnabled := w.workflowRegistry.size() > 0
	activityTasksEnabled := w.activityRegistry.size() > 0
	if !workflowTasksEnabled && !activityTasksEnabled {
		return fmt.Errorf("worker has no registered workflows or activities")
	}

	tokens, err := w.store.ReceiveTask(ctx, w.taskQueue, workflowTasksEnabled, activityTasksEnabled)
	if err != nil {
		return err
	}

	w.logger.Info("worker started",
		"workflows", w.workflowRegistry.size(),
		"activities", w.activityRegistry.size(),
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(w.maxConcurrency)
	for token := range tokens {
		g.Go(func() error {
			w.handleTask(gCtx, token)
			return nil
		})
	}
	err = g.Wait()
	w.logger.Info("worker stopped")
	return err
}

func (w *workerImpl) handleTask(ctx context.Context, token *TaskToken) {
	switch task := token.Task.(type) {
	case *api.WorkflowTask:
		defer w.metrics.observeTask(ctx, "workflow", w.now())
		w.settle(ctx, token, w.handleWorkflowTask(ctx, task), "workflow_id", task.WorkflowID)
	case *api.ActivityTask:
		defer w.metrics.observeTask(ctx, "activity", w.now())
		w.settle(ctx, token, w.handleActivityTask(ctx, task), "workflow_id", task.WorkflowID, "activity", task.ActivityFn)
	default:
		w.logger.Warn("received poison pill, terminating task", "type", fmt.Sprintf("%T", token.Task))
		w.settle(ctx, token, outcomeTerm)
	}
}

type taskOutcome int

const (
	outcomeAck taskOutcome = iota
	outcomeNak
	outcomeTerm
)

func (w *workerImpl) settle(ctx context.Context, token *TaskToken, outcome taskOutcome, attrs ...any) {
	var err error
	switch outcome {
	case outcomeAck:
		err = token.Ack(ctx)
	case outcomeNak:
		w.logger.Debug("task will be redelivered", attrs...)
		err = token.Nak(context.WithoutCancel(ctx))
	case outcomeTerm:
		err = token.Term(ctx)
	}
	if err != nil {
		w.logger.Warn("failed to settle task", append(attrs, "error", err)...)
	}
}

// loadState rebuilds the workflow state from its history.
func (w *workerImpl) loadState(ctx context.Context, id api.WorkflowID) (*workflowContext, uint64, error) {
	events, rev, err := w.store.LoadHistory(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	if len(events) == 0 {
		return nil, 0, fmt.Errorf("workflow %s has no history", id)
	}
	wfctx := newWorkflowContext(ctx, w.converter, w.logger)
	if err := wfctx.replay(events); err != nil {
		return nil, 0, fmt.Errorf("replay %s: %w", id, err)
	}
	return wfctx, rev, nil
}

func (w *workerImpl) handleWorkflowTask(ctx context.Context, task *api.WorkflowTask) taskOutcome {
	id := api.WorkflowID(task.WorkflowID)
	logger := w.logger.With("workflow_id", task.WorkflowID, "workflow", task.WorkflowFn)

	var (
		wfctx   *workflowContext
		loadErr error
	)
	err := w.commit(ctx, func() error {
		var rev uint64
		wfctx, rev, loadErr = w.loadState(ctx, id)
		if loadErr != nil {
			return loadErr
		}
		if wfctx.finished {
			return nil
		}
		w.processWorkflowTask(wfctx)
		if len(wfctx.newEvents) == 0 {
			return nil
		}
		_, err := w.store.AppendHistory(ctx, id, rev, wfctx.newEvents...)
		if errors.Is(err, ErrRevisionMismatch) {
			logger.Debug("history moved during workflow task, replaying again", "revision", rev)
		}
		return err
	})
	switch {
	case loadErr != nil:
		logger.Error("failed to replay workflow", "error", loadErr)
		if ctx.Err() != nil {
			return outcomeNak
		}
		return outcomeTerm
	case errors.Is(err, ErrRevisionMismatch):
		logger.Warn("gave up committing workflow task after repeated conflicts")
		return outcomeNak
	case err != nil:
		logger.Error("failed to append workflow events", "error", err)
		return outcomeNak
	}

	if len(wfctx.newEvents) == 0 {
		// Nothing new was decided. Whatever the history still waits on may
		// have been lost by an earlier dispatch, so publish it again.
		err = w.resume(ctx, wfctx)
	} else {
		err = w.dispatch(ctx, wfctx, wfctx.newEvents)
	}
	if err != nil {
		logger.Error("failed to dispatch workflow events", "error", err)
		return outcomeNak
	}
	return outcomeAck
}

// commit runs fn until it stops failing with ErrRevisionMismatch. fn reloads
// the history on every attempt.
func (w *workerImpl) commit(ctx context.Context, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(maxCommitAttempts),
		retry.RetryIf(func(err error) bool { return errors.Is(err, ErrRevisionMismatch) }),
		retry.Delay(commitRetryDelay),
		retry.MaxJitter(commitRetryDelay),
		retry.MaxDelay(maxCommitRetryDelay),
		retry.LastErrorOnly(true),
	)
}

// processWorkflowTask runs the workflow function over the replayed state.
// New events end up in wfctx.newEvents.
func (w *workerImpl) processWorkflowTask(wfctx *workflowContext) {
	var (
		value   any
		execErr error
		pending bool
	)

	func() {
		defer func() {
			if r := recover(); r != nil {
				if _, ok := r.(errorBlockingFuture); ok {
					pending = true
					return
				}
				if err, ok := r.(error); ok {
					execErr = err
				} else {
					execErr = fmt.Errorf("workflow panic: %v", r)
				}
				wfctx.Logger().Error("workflow execution panic", "panic", r)
			}
		}()

		fn, err := w.workflowRegistry.get(wfctx.workflowFunctionName)
		if err != nil {
			execErr = err
			return
		}
		fnv := reflect.ValueOf(fn)
		fnt := fnv.Type()
		if fnt.NumIn() != len(wfctx.input)+1 {
			execErr = fmt.Errorf("argument count mismatch: workflow expects %d, got %d", fnt.NumIn()-1, len(wfctx.input))
			return
		}

		args := make([]reflect.Value, 0, len(wfctx.input)+1)
		args = append(args, reflect.ValueOf(wfctx))
		for idx, arg := range wfctx.input {
			converted, err := w.typeConverter.ConvertToType(arg, fnt.In(idx+1))
			if err != nil {
				execErr = fmt.Errorf("failed to convert workflow parameter %d: %w", idx, err)
				return
			}
			args = append(args, converted)
		}

		value, execErr = splitResults(fnv.Call(args))
	}()

	switch {
	case pending:
		// keep whatever was scheduled before the blocking Get
	case execErr != nil:
		msg := execErr.Error()
		if msg == "" {
			msg = errorType(execErr)
		}
		wfctx.recordThat(&api.WorkflowFailed{
			ID:             wfctx.id,
			WorkflowFnName: wfctx.workflowFunctionName,
			Error:          msg,
			ErrorType:      errorType(execErr),
		})
	default:
		wfctx.recordThat(&api.WorkflowCompleted{
			ID:             wfctx.id,
			WorkflowFnName: wfctx.workflowFunctionName,
			Result:         []any{value},
		})
	}
}

func (w *workerImpl) handleActivityTask(ctx context.Context, task *api.ActivityTask) taskOutcome {
	id := api.WorkflowID(task.WorkflowID)
	logger := w.logger.With("workflow_id", task.WorkflowID, "activity", task.ActivityFn, "seq", task.Seq, "attempt", task.Attempt)

	wfctx, _, err := w.loadState(ctx, id)
	if err != nil {
		logger.Error("failed to load workflow for activity", "error", err)
		if ctx.Err() != nil {
			return outcomeNak
		}
		return outcomeTerm
	}
	if outcome, done := w.checkDuplicate(ctx, wfctx, task, logger); done {
		return outcome
	}

	if wait := time.UnixMilli(task.NotBeforeMs).Sub(w.now()); task.NotBeforeMs > 0 && wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return outcomeNak
		case <-timer.C:
		}
	}

	var (
		value  any
		runErr error
	)
	fn, lookupErr := w.activityRegistry.get(task.ActivityFn)
	if lookupErr != nil {
		runErr = NewNonRetryableError(lookupErr)
	} else {
		w.metrics.attempt(ctx, task.ActivityFn)
		value, runErr = w.runActivity(ctx, task, fn)
	}
	if ctx.Err() != nil {
		// worker shutting down: the attempt did not finish, let it run again
		return outcomeNak
	}

	var events []api.WorkflowEvent
	var next *api.ActivityTask
	switch {
	case runErr == nil:
		events = append(events, &api.ActivityCompleted{
			ID:             id,
			WorkflowFnName: task.WorkflowFn,
			ActivityFnName: task.ActivityFn,
			Seq:            task.Seq,
			Attempt:        task.Attempt,
			Result:         []any{value},
		})
	default:
		decision := evaluateRetryDecision(task, runErr, w.now())
		if decision.retry {
			logger.Warn("activity attempt failed, will retry", "error", runErr, "next_delay", decision.delay)
			w.metrics.retry(ctx, task.ActivityFn)
			events = append(events, &api.ActivityRetried{
				ID:             id,
				WorkflowFnName: task.WorkflowFn,
				ActivityFnName: task.ActivityFn,
				Seq:            task.Seq,
				Attempt:        task.Attempt,
				Error:          runErr.Error(),
				NextRetryDelay: decision.delay.Milliseconds(),
			})
			next = nextAttempt(task, w.now().Add(decision.delay))
		} else {
			logger.Warn("activity failed", "error", runErr, "reason", decision.reason)
			w.metrics.failure(ctx, task.ActivityFn, errorType(runErr))
			events = append(events, &api.ActivityFailed{
				ID:             id,
				WorkflowFnName: task.WorkflowFn,
				ActivityFnName: task.ActivityFn,
				Seq:            task.Seq,
				Attempt:        task.Attempt,
				Error:          runErr.Error(),
				ErrorType:      errorType(runErr),
				NonRetryable:   IsNonRetryable(runErr),
			})
		}
	}

	return w.commitActivity(ctx, task, events, next, logger)
}

// commitActivity appends the outcome of an attempt. Conflicts come from other
// activities of the same run, so the state is reloaded and the append retried.
func (w *workerImpl) commitActivity(ctx context.Context, task *api.ActivityTask, events []api.WorkflowEvent, next *api.ActivityTask, logger *slog.Logger) taskOutcome {
	id := api.WorkflowID(task.WorkflowID)

	var (
		wfctx     *workflowContext
		duplicate bool
		outcome   taskOutcome
	)
	err := w.commit(ctx, func() error {
		var (
			rev uint64
			err error
		)
		wfctx, rev, err = w.loadState(ctx, id)
		if err != nil {
			return fmt.Errorf("reload workflow: %w", err)
		}
		if outcome, duplicate = w.checkDuplicate(ctx, wfctx, task, logger); duplicate {
			return nil
		}
		_, err = w.store.AppendHistory(ctx, id, rev, events...)
		return err
	})
	switch {
	case errors.Is(err, ErrRevisionMismatch):
		logger.Warn("gave up committing activity result after repeated conflicts")
		return outcomeNak
	case err != nil:
		logger.Error("failed to append activity events", "error", err)
		return outcomeNak
	case duplicate:
		return outcome
	}

	if next != nil {
		if err := w.store.PublishTask(ctx, next); err != nil {
			// ActivityRetried is recorded: the redelivered attempt re-queues next
			logger.Error("failed to queue retry", "error", err)
			return outcomeNak
		}
		return outcomeAck
	}
	if err := w.dispatch(ctx, wfctx, events); err != nil {
		// the outcome is recorded: the redelivered attempt wakes the workflow
		logger.Error("failed to dispatch activity events", "error", err)
		return outcomeNak
	}
	return outcomeAck
}

// checkDuplicate reports whether the history already holds this attempt's
// outcome. The work that outcome implies is published again in case the
// first publish was lost: the next attempt for a retried one, a workflow
// task for a resolved one.
func (w *workerImpl) checkDuplicate(ctx context.Context, wfctx *workflowContext, task *api.ActivityTask, logger *slog.Logger) (taskOutcome, bool) {
	rec, ok := wfctx.activities[task.Seq]
	switch {
	case !ok:
		logger.Warn("activity task has no matching schedule")
		return outcomeTerm, true
	case wfctx.finished:
		logger.Debug("workflow already closed, dropping activity task")
		return outcomeAck, true
	case rec.resolved:
		logger.Debug("activity already resolved, waking workflow")
		if err := w.store.PublishTask(ctx, wfctx.workflowTask()); err != nil {
			logger.Error("failed to queue workflow task", "error", err)
			return outcomeNak, true
		}
		return outcomeAck, true
	case rec.lastRetried >= task.Attempt:
		if rec.lastRetried == task.Attempt {
			delay := calculateRetryDelay(task.RetryPolicy, task.Attempt)
			if err := w.store.PublishTask(ctx, nextAttempt(task, w.now().Add(delay))); err != nil {
				return outcomeNak, true
			}
		}
		return outcomeAck, true
	}
	return outcomeAck, false
}

func nextAttempt(task *api.ActivityTask, notBefore time.Time) *api.ActivityTask {
	next := *task
	next.Attempt = task.Attempt + 1
	next.NotBeforeMs = notBefore.UnixMilli()
	return &next
}

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
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/ngnhng/durableai/api"
	"github.com/ngnhng/durableai/api/serde"
)

// Context is what a workflow function receives as its first argument.
type Context interface {
	context.Context
	ExecuteActivity(activity any, args ...any) Future
	ID() api.WorkflowID
	GetWorkflowFunctionName() string
	WithValue(key any, value any) Context
	Logger() *slog.Logger
}

var (
	_ Context = (*workflowContext)(nil)

	workflowContextType = reflect.TypeOf((*Context)(nil)).Elem()
)

type workflowContext struct {
	*workflowState
	context.Context
	logger *slog.Logger
}

// workflowState is rebuilt from history on every workflow task. Activity
// calls are keyed by their position in the run, so replay is a walk over seq.
type workflowState struct {
	converter     serde.BinarySerde
	typeConverter *serde.TypeConverter

	id                   api.WorkflowID
	workflowFunctionName string
	taskQueue            string
	input                []any

	activities map[int]*activityRecord
	seq        int
	finished   bool
	// closing is the terminal event once the run has finished.
	closing api.WorkflowEvent

	newEvents []api.WorkflowEvent
}

type activityRecord struct {
	name        string
	scheduled   *api.ActivityScheduled
	resolved    bool
	result      []any
	err         error
	lastRetried int32
	retryDelay  time.Duration
}

func newWorkflowContext(ctx context.Context, conv serde.BinarySerde, logger *slog.Logger) *workflowContext {
	if conv == nil {
		conv = serde.Default()
	}
	return &workflowContext{
		workflowState: &workflowState{
			converter:     conv,
			typeConverter: serde.NewTypeConverter(conv),
			activities:    make(map[int]*activityRecord),
		},
		Context: ctx,
		logger:  defaultLogger(logger),
	}
}

func (c *workflowContext) ExecuteActivity(activity any, args ...any) Future {
	fnName, err := functionName(activity)
	if err != nil {
		c.Logger().Error("failed to resolve activity name", "error", err)
		return &future{isResolved: true, err: err, converter: c.typeConverter}
	}

	c.seq++
	seq := c.seq

	if rec, ok := c.activities[seq]; ok {
		if rec.name != fnName {
			panic(&nondeterminismError{Seq: seq, Recorded: rec.name, Called: fnName})
		}
		if rec.resolved {
			return &future{isResolved: true, value: rec.result, err: rec.err, converter: c.typeConverter}
		}
		return &future{converter: c.typeConverter}
	}

	opts := GetActivityOptions(c)
	queue := opts.TaskQueue
	if queue == "" {
		queue = c.taskQueue
	}
	c.recordThat(&api.ActivityScheduled{
		ID:                       c.id,
		WorkflowFnName:           c.workflowFunctionName,
		ActivityFnName:           fnName,
		Seq:                      seq,
		TaskQueue:                queue,
		Input:                    args,
		ScheduleToCloseTimeoutMs: opts.ScheduleToCloseTimeout.Milliseconds(),
		StartToCloseTimeoutMs:    opts.StartToCloseTimeout.Milliseconds(),
		RetryPolicy:              convertRetryPolicyToAPI(opts.RetryPolicy),
		ScheduledAtMs:            time.Now().UnixMilli(),
	})

	return &future{converter: c.typeConverter}
}

func (c *workflowContext) WithValue(key any, value any) Context {
	baseCtx := c.Context
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &workflowContext{
		workflowState: c.workflowState,
		Context:       context.WithValue(baseCtx, key, value),
		logger:        c.logger,
	}
}

func (c *workflowContext) ID() api.WorkflowID { return c.id }

// workflowTask is the task that wakes this run.
func (c *workflowContext) workflowTask() *api.WorkflowTask {
	return &api.WorkflowTask{
		WorkflowID: c.id.String(),
		WorkflowFn: c.workflowFunctionName,
		TaskQueue:  c.taskQueue,
	}
}

func (c *workflowContext) GetWorkflowFunctionName() string { return c.workflowFunctionName }

func (c *workflowContext) Logger() *slog.Logger {
	return defaultLogger(c.logger).With("workflow_id", c.id.String(), "workflow", c.workflowFunctionName)
}

func (c *workflowContext) Deadline() (time.Time, bool) {
	if c.Context == nil {
		return time.Time{}, false
	}
	return c.Context.Deadline()
}

func (c *workflowContext) Done() <-chan struct{} {
	if c.Context == nil {
		return nil
	}
	return c.Context.Done()
}

func (c *workflowContext) Err() error {
	if c.Context == nil {
		return nil
	}
	return c.Context.Err()
}

func (c *workflowContext) Value(key any) any {
	if c.Context == nil {
		return nil
	}
	return c.Context.Value(key)
}

func defaultLogger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

func (c *workflowContext) String() string {
	return fmt.Sprintf("workflow %s (%s) seq=%d", c.id, c.workflowFunctionName, c.seq)
}

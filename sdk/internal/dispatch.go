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
	"maps"
	"slices"

	"github.com/ngnhng/durableai/api"
)

// dispatch turns committed events into the work they imply: scheduled
// activities become activity tasks, resolved activities wake the workflow and
// a closed workflow publishes its result.
//
// Events are committed first. When dispatch fails the task is redelivered,
// and the replay finds nothing new to decide and calls resume instead.
func (w *workerImpl) dispatch(ctx context.Context, wfctx *workflowContext, events []api.WorkflowEvent) error {
	var errs []error
	for _, e := range events {
		var err error
		switch evt := e.(type) {
		case *api.ActivityScheduled:
			err = w.store.PublishTask(ctx, api.NewActivityTask(evt))
		case *api.ActivityCompleted, *api.ActivityFailed:
			err = w.store.PublishTask(ctx, wfctx.workflowTask())
		case *api.WorkflowCompleted:
			err = w.putClosing(ctx, evt)
			w.metrics.closed(ctx, evt.WorkflowFnName, "completed")
		case *api.WorkflowFailed:
			err = w.putClosing(ctx, evt)
			w.metrics.closed(ctx, evt.WorkflowFnName, "failed")
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.EventName(), err))
		}
	}
	return errors.Join(errs...)
}

// resume publishes again what the recorded state of a run waits on: the
// result of a closed run, or the current attempt of every unresolved
// activity. Activity tasks carry a dedup id, so a task that did get through
// is not run twice.
func (w *workerImpl) resume(ctx context.Context, wfctx *workflowContext) error {
	if wfctx.finished {
		return w.putClosing(ctx, wfctx.closing)
	}

	var errs []error
	for _, seq := range slices.Sorted(maps.Keys(wfctx.activities)) {
		rec := wfctx.activities[seq]
		if rec.resolved || rec.scheduled == nil {
			continue
		}
		task := api.NewActivityTask(rec.scheduled)
		if rec.lastRetried > 0 {
			task.Attempt = rec.lastRetried
			task = nextAttempt(task, w.now().Add(rec.retryDelay))
		}
		if err := w.store.PublishTask(ctx, task); err != nil {
			errs = append(errs, fmt.Errorf("activity %d: %w", seq, err))
		}
	}
	return errors.Join(errs...)
}

func (w *workerImpl) putClosing(ctx context.Context, e api.WorkflowEvent) error {
	switch evt := e.(type) {
	case *api.WorkflowCompleted:
		var value any
		if len(evt.Result) > 0 {
			value = evt.Result[0]
		}
		return w.putResult(ctx, evt.ID, api.WorkflowResult{Value: value})
	case *api.WorkflowFailed:
		return w.putResult(ctx, evt.ID, api.WorkflowResult{Error: evt.Error, ErrorType: evt.ErrorType})
	default:
		return fmt.Errorf("run has no closing event")
	}
}

func (w *workerImpl) putResult(ctx context.Context, id api.WorkflowID, result api.WorkflowResult) error {
	data, err := w.converter.SerializeBinary(result)
	if err != nil {
		return err
	}
	return w.store.PutResult(ctx, id, data)
}

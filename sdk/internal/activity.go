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
	"reflect"
	"runtime/debug"
	"time"

	"github.com/ngnhng/durableai/api"
)

type activityInfoKey struct{}

// ActivityInfo describes the attempt an activity function is running in.
type ActivityInfo struct {
	WorkflowID   api.WorkflowID
	WorkflowName string
	ActivityName string
	TaskQueue    string
	Seq          int
	Attempt      int32
	// Deadline is zero when the attempt has no StartToClose timeout.
	Deadline time.Time
}

// GetActivityInfo returns the info of the running attempt. Outside an
// activity it returns the zero value.
func GetActivityInfo(ctx context.Context) ActivityInfo {
	info, _ := ctx.Value(activityInfoKey{}).(ActivityInfo)
	return info
}

// runActivity calls fn under the attempt's StartToClose timeout. The timeout
// holds even when fn ignores its context: the call is abandoned and the
// attempt fails with a TimeoutError.
func (w *workerImpl) runActivity(ctx context.Context, task *api.ActivityTask, fn any) (any, error) {
	info := ActivityInfo{
		WorkflowID:   api.WorkflowID(task.WorkflowID),
		WorkflowName: task.WorkflowFn,
		ActivityName: task.ActivityFn,
		TaskQueue:    task.TaskQueue,
		Seq:          task.Seq,
		Attempt:      task.Attempt,
	}

	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	timeout := time.Duration(task.StartToCloseTimeoutMs) * time.Millisecond
	if timeout > 0 {
		info.Deadline = time.Now().Add(timeout)
		var timeoutCancel context.CancelFunc
		attemptCtx, timeoutCancel = context.WithDeadline(attemptCtx, info.Deadline)
		defer timeoutCancel()
	}
	attemptCtx = context.WithValue(attemptCtx, activityInfoKey{}, info)

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: &PanicError{Value: r, Stack: string(debug.Stack())}}
			}
		}()
		value, err := w.executeActivityFunc(attemptCtx, fn, task.Input)
		done <- outcome{value: value, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && timeout > 0 && ctx.Err() == nil && attemptCtx.Err() == context.DeadlineExceeded {
			return nil, &TimeoutError{Timeout: timeout}
		}
		return out.value, out.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TimeoutError{Timeout: timeout}
	}
}

func (w *workerImpl) executeActivityFunc(ctx context.Context, fn any, inputs []any) (any, error) {
	fnv := reflect.ValueOf(fn)
	fnt := fnv.Type()

	if fnt.NumIn() != len(inputs)+1 {
		return nil, NewNonRetryableError(fmt.Errorf("argument count mismatch: activity expects %d, got %d", fnt.NumIn()-1, len(inputs)))
	}

	callArgs := make([]reflect.Value, len(inputs)+1)
	callArgs[0] = reflect.ValueOf(ctx)
	for idx, arg := range inputs {
		converted, err := w.typeConverter.ConvertToType(arg, fnt.In(idx+1))
		if err != nil {
			return nil, NewNonRetryableError(fmt.Errorf("failed to convert parameter %d: %w", idx, err))
		}
		callArgs[idx+1] = converted
	}

	return splitResults(fnv.Call(callArgs))
}

// splitResults turns (value, error) or (error) returns into a value and error.
func splitResults(results []reflect.Value) (any, error) {
	if len(results) == 0 {
		return nil, nil
	}
	var err error
	last := results[len(results)-1]
	if last.Type().Implements(errorIfaceType) && !last.IsNil() {
		err = last.Interface().(error)
	}
	if len(results) == 1 {
		return nil, err
	}
	return results[0].Interface(), err
}

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

package api

import "fmt"

// RetryPolicy is the wire form of an activity retry policy.
type RetryPolicy struct {
	InitialIntervalMs      int64    `json:"initial_interval_ms"`
	BackoffCoefficient     float64  `json:"backoff_coefficient"`
	MaximumIntervalMs      int64    `json:"maximum_interval_ms"`
	MaximumAttempts        int32    `json:"maximum_attempts"`
	NonRetryableErrorTypes []string `json:"non_retryable_error_types,omitempty"`
}

type (
	Task interface {
		Queue() string
		isTask()
	}

	WorkflowTask struct {
		WorkflowID string `json:"wf_id"`
		WorkflowFn string `json:"wf_name"`
		TaskQueue  string `json:"queue"`
	}

	ActivityTask struct {
		WorkflowFn string `json:"wf_name"`
		WorkflowID string `json:"wf_id"`
		ActivityFn string `json:"ac_name"`
		Seq        int    `json:"seq"`
		TaskQueue  string `json:"queue"`
		Input      []any  `json:"input"`
		Attempt    int32  `json:"attempt"`

		ScheduleToCloseTimeoutMs int64        `json:"schedule_to_close_ms,omitempty"`
		StartToCloseTimeoutMs    int64        `json:"start_to_close_ms,omitempty"`
		RetryPolicy              *RetryPolicy `json:"retry_policy,omitempty"`
		ScheduledAtMs            int64        `json:"scheduled_at"`
		// NotBeforeMs delays a retry attempt until the backoff has elapsed.
		NotBeforeMs int64 `json:"not_before,omitempty"`
	}
)

// WorkflowResult is the record stored once a run completes or fails.
type WorkflowResult struct {
	Value     any    `json:"value"`
	Error     string `json:"error,omitempty"`
	ErrorType string `json:"error_type,omitempty"`
}

func (t *WorkflowTask) Queue() string { return t.TaskQueue }
func (t *ActivityTask) Queue() string { return t.TaskQueue }

func (t *WorkflowTask) isTask() {}
func (t *ActivityTask) isTask() {}

// NewActivityTask builds the first attempt of a scheduled activity.
func NewActivityTask(e *ActivityScheduled) *ActivityTask {
	return &ActivityTask{
		WorkflowFn:               e.WorkflowFnName,
		WorkflowID:               e.ID.String(),
		ActivityFn:               e.ActivityFnName,
		Seq:                      e.Seq,
		TaskQueue:                e.TaskQueue,
		Input:                    e.Input,
		Attempt:                  1,
		ScheduleToCloseTimeoutMs: e.ScheduleToCloseTimeoutMs,
		StartToCloseTimeoutMs:    e.StartToCloseTimeoutMs,
		RetryPolicy:              e.RetryPolicy,
		ScheduledAtMs:            e.ScheduledAtMs,
	}
}

// MsgID is a stable deduplication key for a task publication.
func MsgID(t Task) string {
	switch task := t.(type) {
	case *WorkflowTask:
		return ""
	case *ActivityTask:
		return fmt.Sprintf("actask-%s-%d-%d", task.WorkflowID, task.Seq, task.Attempt)
	default:
		return ""
	}
}

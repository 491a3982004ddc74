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
	"fmt"
	"time"

	"github.com/ngnhng/durableai/api"
)

// replay applies a loaded history to a fresh state.
func (c *workflowContext) replay(events []api.WorkflowEvent) error {
	for _, e := range events {
		if err := c.Apply(e); err != nil {
			return err
		}
	}
	return nil
}

// recordThat applies e and keeps it for the next append.
func (c *workflowContext) recordThat(e api.WorkflowEvent) {
	if err := c.Apply(e); err != nil {
		panic(fmt.Errorf("record %s: %w", e.EventName(), err))
	}
	c.newEvents = append(c.newEvents, e)
}

func (c *workflowContext) Apply(e api.WorkflowEvent) error {
	switch evt := e.(type) {
	case *api.WorkflowStarted:
		c.id = evt.ID
		c.workflowFunctionName = evt.WorkflowFnName
		c.taskQueue = evt.TaskQueue
		c.input = evt.Input
	case *api.ActivityScheduled:
		if _, ok := c.activities[evt.Seq]; ok {
			return fmt.Errorf("activity %d scheduled twice", evt.Seq)
		}
		c.activities[evt.Seq] = &activityRecord{name: evt.ActivityFnName, scheduled: evt}
	case *api.ActivityCompleted:
		rec, err := c.scheduled(evt.Seq)
		if err != nil {
			return err
		}
		rec.resolved = true
		rec.result = evt.Result
	case *api.ActivityFailed:
		rec, err := c.scheduled(evt.Seq)
		if err != nil {
			return err
		}
		rec.resolved = true
		rec.err = &ActivityError{
			ActivityName: evt.ActivityFnName,
			WorkflowID:   evt.ID.String(),
			Seq:          evt.Seq,
			Attempt:      evt.Attempt,
			ErrorType:    evt.ErrorType,
			Message:      evt.Error,
			NonRetryable: evt.NonRetryable,
		}
	case *api.ActivityRetried:
		// informational: only completed/failed resolve the future
		rec, err := c.scheduled(evt.Seq)
		if err != nil {
			return err
		}
		if evt.Attempt >= rec.lastRetried {
			rec.lastRetried = evt.Attempt
			rec.retryDelay = time.Duration(evt.NextRetryDelay) * time.Millisecond
		}
	case *api.WorkflowFailed, *api.WorkflowCompleted:
		c.finished = true
		c.closing = e
	default:
		return fmt.Errorf("unknown event type: %T", e)
	}
	return nil
}

func (c *workflowContext) scheduled(seq int) (*activityRecord, error) {
	rec, ok := c.activities[seq]
	if !ok {
		return nil, fmt.Errorf("activity %d resolved before being scheduled", seq)
	}
	return rec, nil
}

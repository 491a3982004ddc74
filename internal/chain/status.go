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

package chain

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/ngnhng/durableai/api"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Status is the progress of a chain run as read from its history.
type Status struct {
	WorkflowID  string       `json:"workflow_id"`
	Status      string       `json:"status"`
	Topic       string       `json:"topic"`
	Length      string       `json:"length"`
	CurrentStep StepID       `json:"current_step,omitempty"`
	Steps       []StepStatus `json:"steps"`
	Result      *Result      `json:"result,omitempty"`
	Error       string       `json:"error,omitempty"`
	StartedAt   time.Time    `json:"started_at"`
}

type StepStatus struct {
	Step     StepID  `json:"step"`
	Activity string  `json:"activity"`
	Status   string  `json:"status"`
	Attempts int32   `json:"attempts"`
	Error    string  `json:"error,omitempty"`
	Retries  []Retry `json:"retries,omitempty"`
}

// Retry is one failed attempt that was retried.
type Retry struct {
	Attempt        int32  `json:"attempt"`
	Error          string `json:"error"`
	NextRetryDelay int64  `json:"next_retry_delay_ms"`
}

// Describe folds the history of a chain run into its Status.
func Describe(id string, events []api.WorkflowEvent) (Status, error) {
	st := Status{WorkflowID: id, Status: StatusPending}
	byActivity := map[string]int{}
	for _, step := range Steps("") {
		byActivity[step.Activity] = len(st.Steps)
		st.Steps = append(st.Steps, StepStatus{Step: step.ID, Activity: step.Activity, Status: StatusPending})
	}
	step := func(name string) *StepStatus {
		i, ok := byActivity[name]
		if !ok {
			return nil
		}
		return &st.Steps[i]
	}

	for _, e := range events {
		switch evt := e.(type) {
		case *api.WorkflowStarted:
			st.Status = StatusRunning
			st.StartedAt = time.UnixMilli(evt.StartedAtMs).UTC()
			if len(evt.Input) > 0 {
				st.Topic, _ = evt.Input[0].(string)
			}
			if len(evt.Input) > 1 {
				st.Length, _ = evt.Input[1].(string)
			}

		case *api.ActivityScheduled:
			if s := step(evt.ActivityFnName); s != nil {
				s.Status = StatusRunning
				s.Attempts = 1
				st.CurrentStep = s.Step
			}

		case *api.ActivityRetried:
			if s := step(evt.ActivityFnName); s != nil {
				s.Retries = append(s.Retries, Retry{Attempt: evt.Attempt, Error: evt.Error, NextRetryDelay: evt.NextRetryDelay})
				s.Attempts = evt.Attempt + 1
			}

		case *api.ActivityCompleted:
			if s := step(evt.ActivityFnName); s != nil {
				s.Status = StatusCompleted
				s.Attempts = evt.Attempt
			}

		case *api.ActivityFailed:
			if s := step(evt.ActivityFnName); s != nil {
				s.Status = StatusFailed
				s.Attempts = evt.Attempt
				s.Error = evt.Error
			}

		case *api.WorkflowCompleted:
			st.Status = StatusCompleted
			st.CurrentStep = ""
			if len(evt.Result) > 0 {
				res, err := decodeResult(evt.Result[0])
				if err != nil {
					return st, err
				}
				st.Result = &res
			}

		case *api.WorkflowFailed:
			st.Status = StatusFailed
			st.Error = evt.Error
		}
	}
	return st, nil
}

// decodeResult restores a Result from its serde-neutral form.
func decodeResult(v any) (Result, error) {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(v)
	if err != nil {
		return Result{}, fmt.Errorf("encode chain result: %w", err)
	}
	var res Result
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &res); err != nil {
		return Result{}, fmt.Errorf("decode chain result: %w", err)
	}
	return res, nil
}

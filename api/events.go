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

import (
	"fmt"

	"github.com/ngnhng/durableai/api/serde"
)

type WorkflowID string

func (w WorkflowID) String() string { return string(w) }

type WorkflowEvent interface {
	EventName() string

	isWorkflowEvent()
}

var _ WorkflowEvent = (*WorkflowStarted)(nil)
var _ WorkflowEvent = (*ActivityScheduled)(nil)
var _ WorkflowEvent = (*ActivityCompleted)(nil)
var _ WorkflowEvent = (*ActivityFailed)(nil)
var _ WorkflowEvent = (*ActivityRetried)(nil)
var _ WorkflowEvent = (*WorkflowFailed)(nil)
var _ WorkflowEvent = (*WorkflowCompleted)(nil)

type WorkflowStarted struct {
	ID WorkflowID `json:"id"`

	WorkflowFnName string `json:"name"`
	TaskQueue      string `json:"queue"`
	Input          []any  `json:"input"`
	StartedAtMs    int64  `json:"started_at"`
}

func (*WorkflowStarted) EventName() string { return "workflow/started" }
func (*WorkflowStarted) isWorkflowEvent()  {}

type ActivityScheduled struct {
	ID WorkflowID `json:"id"`

	WorkflowFnName string `json:"wf_name"`
	ActivityFnName string `json:"name"`
	// Seq is the position of this call among all activity calls of the run.
	Seq       int    `json:"seq"`
	TaskQueue string `json:"queue"`
	Input     []any  `json:"input"`

	ScheduleToCloseTimeoutMs int64        `json:"schedule_to_close_ms,omitempty"`
	StartToCloseTimeoutMs    int64        `json:"start_to_close_ms,omitempty"`
	RetryPolicy              *RetryPolicy `json:"retry_policy,omitempty"`
	ScheduledAtMs            int64        `json:"scheduled_at"`
}

func (*ActivityScheduled) EventName() string { return "activity/scheduled" }
func (*ActivityScheduled) isWorkflowEvent()  {}

type ActivityCompleted struct {
	ID WorkflowID `json:"id"`

	WorkflowFnName string `json:"wf_name"`
	ActivityFnName string `json:"name"`
	Seq            int    `json:"seq"`
	Attempt        int32  `json:"attempt"`
	Result         []any  `json:"result"`
}

func (*ActivityCompleted) EventName() string { return "activity/completed" }
func (*ActivityCompleted) isWorkflowEvent()  {}

type ActivityFailed struct {
	ID WorkflowID `json:"id"`

	WorkflowFnName string `json:"wf_name"`
	ActivityFnName string `json:"name"`
	Seq            int    `json:"seq"`
	Attempt        int32  `json:"attempt"`
	Error          string `json:"error"`
	ErrorType      string `json:"error_type"`
	NonRetryable   bool   `json:"non_retryable"`
}

func (*ActivityFailed) EventName() string { return "activity/failed" }
func (*ActivityFailed) isWorkflowEvent()  {}

// ActivityRetried is informational during replay; only the terminal
// completed/failed event resolves the activity future.
type ActivityRetried struct {
	ID WorkflowID `json:"id"`

	WorkflowFnName string `json:"wf_name"`
	ActivityFnName string `json:"name"`
	Seq            int    `json:"seq"`
	Attempt        int32  `json:"attempt"`
	Error          string `json:"error"`
	NextRetryDelay int64  `json:"next_retry_delay_ms"`
}

func (*ActivityRetried) EventName() string { return "activity/retried" }
func (*ActivityRetried) isWorkflowEvent()  {}

type WorkflowFailed struct {
	ID WorkflowID `json:"id"`

	WorkflowFnName string `json:"name"`
	Error          string `json:"error"`
	ErrorType      string `json:"error_type"`
}

func (*WorkflowFailed) EventName() string { return "workflow/failed" }
func (*WorkflowFailed) isWorkflowEvent()  {}

type WorkflowCompleted struct {
	ID WorkflowID `json:"id"`

	WorkflowFnName string `json:"name"`
	Result         []any  `json:"result"`
}

func (*WorkflowCompleted) EventName() string { return "workflow/completed" }
func (*WorkflowCompleted) isWorkflowEvent()  {}

var eventFuncs = map[string]func() WorkflowEvent{
	(*WorkflowStarted)(nil).EventName():   func() WorkflowEvent { return new(WorkflowStarted) },
	(*ActivityScheduled)(nil).EventName(): func() WorkflowEvent { return new(ActivityScheduled) },
	(*ActivityCompleted)(nil).EventName(): func() WorkflowEvent { return new(ActivityCompleted) },
	(*ActivityFailed)(nil).EventName():    func() WorkflowEvent { return new(ActivityFailed) },
	(*ActivityRetried)(nil).EventName():   func() WorkflowEvent { return new(ActivityRetried) },
	(*WorkflowFailed)(nil).EventName():    func() WorkflowEvent { return new(WorkflowFailed) },
	(*WorkflowCompleted)(nil).EventName(): func() WorkflowEvent { return new(WorkflowCompleted) },
}

// NewEvent returns an empty event for the given name.
func NewEvent(name string) (WorkflowEvent, error) {
	fn, ok := eventFuncs[name]
	if !ok {
		return nil, fmt.Errorf("unknown event name %q", name)
	}
	return fn(), nil
}

// EventEnvelope is the stored form of an event.
type EventEnvelope struct {
	Name    string `json:"name"`
	Payload []byte `json:"payload"`
}

func EncodeEvent(conv serde.BinarySerde, e WorkflowEvent) ([]byte, error) {
	payload, err := conv.SerializeBinary(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", e.EventName(), err)
	}
	return conv.SerializeBinary(EventEnvelope{Name: e.EventName(), Payload: payload})
}

func DecodeEvent(conv serde.BinarySerde, data []byte) (WorkflowEvent, error) {
	var env EventEnvelope
	if err := conv.DeserializeBinary(data, &env); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	return DecodePayload(conv, env.Name, env.Payload)
}

// DecodePayload decodes a bare payload whose name travels out of band,
// e.g. in a message header.
func DecodePayload(conv serde.BinarySerde, name string, payload []byte) (WorkflowEvent, error) {
	e, err := NewEvent(name)
	if err != nil {
		return nil, err
	}
	if err := conv.DeserializeBinary(payload, e); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return e, nil
}

// EncodeEvents packs the events of one commit into a single record so that
// they are appended atomically.
func EncodeEvents(conv serde.BinarySerde, events []WorkflowEvent) ([]byte, error) {
	envs := make([]EventEnvelope, 0, len(events))
	for _, e := range events {
		payload, err := conv.SerializeBinary(e)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", e.EventName(), err)
		}
		envs = append(envs, EventEnvelope{Name: e.EventName(), Payload: payload})
	}
	return conv.SerializeBinary(envs)
}

func DecodeEvents(conv serde.BinarySerde, data []byte) ([]WorkflowEvent, error) {
	var envs []EventEnvelope
	if err := conv.DeserializeBinary(data, &envs); err != nil {
		return nil, fmt.Errorf("decode event batch: %w", err)
	}
	events := make([]WorkflowEvent, 0, len(envs))
	for _, env := range envs {
		e, err := DecodePayload(conv, env.Name, env.Payload)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

// EventNames lists the names of events, for headers and logs.
func EventNames(events []WorkflowEvent) []string {
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.EventName()
	}
	return names
}

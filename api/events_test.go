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

package api_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ngnhng/durableai/api"
	"github.com/ngnhng/durableai/api/serde"
)

func TestEventEnvelopeKeepsConcreteType(t *testing.T) {
	conv := serde.Default()
	in := &api.ActivityFailed{
		ID:             "wf-1",
		WorkflowFnName: "chain.Workflow",
		ActivityFnName: "chain.Analyze",
		Seq:            1,
		Attempt:        3,
		Error:          "rate limited",
		ErrorType:      "*llm.APIError",
	}

	data, err := api.EncodeEvent(conv, in)
	if err != nil {
		t.Fatalf("EncodeEvent: %v", err)
	}
	out, err := api.DecodeEvent(conv, data)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	got, ok := out.(*api.ActivityFailed)
	if !ok {
		t.Fatalf("decoded %T, want *api.ActivityFailed", out)
	}
	if diff := cmp.Diff(in, got); diff != "" {
		t.Errorf("event mismatch (-want +got):\n%s", diff)
	}
}

func TestNewEventRejectsUnknownNames(t *testing.T) {
	if _, err := api.NewEvent("workflow/paused"); err == nil {
		t.Fatal("expected an error for an unknown event name")
	}
	for _, e := range []api.WorkflowEvent{
		&api.WorkflowStarted{}, &api.ActivityScheduled{}, &api.ActivityCompleted{},
		&api.ActivityFailed{}, &api.ActivityRetried{}, &api.WorkflowFailed{}, &api.WorkflowCompleted{},
	} {
		if _, err := api.NewEvent(e.EventName()); err != nil {
			t.Errorf("NewEvent(%q): %v", e.EventName(), err)
		}
	}
}

func TestActivityTaskMsgIDChangesPerAttempt(t *testing.T) {
	task := api.NewActivityTask(&api.ActivityScheduled{ID: "wf-1", ActivityFnName: "a", Seq: 2})
	if task.Attempt != 1 {
		t.Fatalf("first attempt should be 1, got %d", task.Attempt)
	}
	first := api.MsgID(task)
	task.Attempt++
	if second := api.MsgID(task); second == first {
		t.Errorf("retry must not be deduplicated against the first attempt: %s", second)
	}
}

func TestEventBatchPreservesOrder(t *testing.T) {
	conv := serde.Default()
	in := []api.WorkflowEvent{
		&api.ActivityCompleted{ID: "wf-2", ActivityFnName: "generate", Seq: 1, Attempt: 1, Result: []any{"text"}},
		&api.ActivityScheduled{ID: "wf-2", ActivityFnName: "analyze", Seq: 2, TaskQueue: "q", Input: []any{"text"}},
	}

	data, err := api.EncodeEvents(conv, in)
	if err != nil {
		t.Fatalf("EncodeEvents: %v", err)
	}
	out, err := api.DecodeEvents(conv, data)
	if err != nil {
		t.Fatalf("DecodeEvents: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("batch mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"activity/completed", "activity/scheduled"}, api.EventNames(out)); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
}

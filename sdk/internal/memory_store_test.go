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
	"testing"
	"time"

	"github.com/ngnhng/durableai/api"
)

func TestMemoryStoreAppendChecksRevision(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)
	id := api.WorkflowID("wf")

	rev, err := s.AppendHistory(ctx, id, 0, &api.WorkflowStarted{ID: id, WorkflowFnName: "wf"})
	if err != nil || rev != 1 {
		t.Fatalf("first append: rev=%d err=%v", rev, err)
	}
	if _, err := s.AppendHistory(ctx, id, 0, &api.WorkflowStarted{ID: id}); !errors.Is(err, ErrRevisionMismatch) {
		t.Fatalf("stale append: got %v, want ErrRevisionMismatch", err)
	}

	events, rev, err := s.LoadHistory(ctx, id)
	if err != nil || rev != 1 || len(events) != 1 {
		t.Fatalf("load: %d events rev=%d err=%v", len(events), rev, err)
	}
	if _, ok := events[0].(*api.WorkflowStarted); !ok {
		t.Errorf("decoded %T", events[0])
	}

	if events, rev, err := s.LoadHistory(ctx, "missing"); err != nil || rev != 0 || len(events) != 0 {
		t.Errorf("unknown workflow: %d events rev=%d err=%v", len(events), rev, err)
	}
}

func TestMemoryStoreNakRedelivers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s := NewMemoryStore(nil)

	if err := s.PublishTask(ctx, &api.WorkflowTask{WorkflowID: "wf", TaskQueue: "q"}); err != nil {
		t.Fatal(err)
	}
	tokens, err := s.ReceiveTask(ctx, "q", true, false)
	if err != nil {
		t.Fatal(err)
	}

	deliveries := 0
	for token := range tokens {
		deliveries++
		task, ok := token.Task.(*api.WorkflowTask)
		if !ok || task.WorkflowID != "wf" {
			t.Fatalf("unexpected task %#v", token.Task)
		}
		if deliveries == 1 {
			_ = token.Nak(ctx)
			continue
		}
		_ = token.Ack(ctx)
		break
	}
	if deliveries != 2 {
		t.Errorf("got %d deliveries, want 2", deliveries)
	}
}

func TestMemoryStoreWatchResultWaits(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s := NewMemoryStore(nil)

	got := make(chan []byte, 1)
	go func() {
		data, err := s.WatchResult(ctx, "wf")
		if err != nil {
			t.Errorf("WatchResult: %v", err)
		}
		got <- data
	}()

	time.Sleep(10 * time.Millisecond)
	if err := s.PutResult(ctx, "wf", []byte("done")); err != nil {
		t.Fatal(err)
	}
	if data := <-got; string(data) != "done" {
		t.Errorf("got %q", data)
	}
}

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
	"iter"
	"sync"
	"time"

	"github.com/ngnhng/durableai/api"
	"github.com/ngnhng/durableai/api/serde"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps everything in process. Events and tasks still go through
// the serde so that a workflow behaves the same as it does against NATS.
type MemoryStore struct {
	converter serde.BinarySerde

	mu        sync.Mutex
	histories map[api.WorkflowID][][]byte
	queues    map[string]*memoryQueue
	results   map[api.WorkflowID][]byte
	resultsCh chan struct{} // closed and replaced on every PutResult
	closed    bool

	// published holds the dedup ids of recent tasks, like the Duplicates
	// window of a JetStream stream.
	published map[string]time.Time
	now       func() time.Time
}

func NewMemoryStore(conv serde.BinarySerde) *MemoryStore {
	if conv == nil {
		conv = serde.Default()
	}
	return &MemoryStore{
		converter: conv,
		histories: make(map[api.WorkflowID][][]byte),
		queues:    make(map[string]*memoryQueue),
		results:   make(map[api.WorkflowID][]byte),
		resultsCh: make(chan struct{}),
		published: make(map[string]time.Time),
		now:       time.Now,
	}
}

func (s *MemoryStore) LoadHistory(ctx context.Context, id api.WorkflowID) ([]api.WorkflowEvent, uint64, error) {
	s.mu.Lock()
	raw := append([][]byte(nil), s.histories[id]...)
	s.mu.Unlock()

	events := make([]api.WorkflowEvent, 0, len(raw))
	for i, data := range raw {
		e, err := api.DecodeEvent(s.converter, data)
		if err != nil {
			return nil, 0, fmt.Errorf("history of %s at %d: %w", id, i+1, err)
		}
		events = append(events, e)
	}
	return events, uint64(len(raw)), nil
}

func (s *MemoryStore) AppendHistory(ctx context.Context, id api.WorkflowID, expected uint64, events ...api.WorkflowEvent) (uint64, error) {
	encoded := make([][]byte, 0, len(events))
	for _, e := range events {
		data, err := api.EncodeEvent(s.converter, e)
		if err != nil {
			return 0, err
		}
		encoded = append(encoded, data)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current := uint64(len(s.histories[id]))
	if current != expected {
		return current, fmt.Errorf("%w: workflow %s at %d, expected %d", ErrRevisionMismatch, id, current, expected)
	}
	s.histories[id] = append(s.histories[id], encoded...)
	return uint64(len(s.histories[id])), nil
}

func (s *MemoryStore) PublishTask(ctx context.Context, task api.Task) error {
	data, err := s.converter.SerializeBinary(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	if s.duplicate(api.MsgID(task)) {
		return nil
	}
	s.queue(task.Queue(), taskKind(task)).push(data)
	return nil
}

func (s *MemoryStore) duplicate(msgID string) bool {
	if msgID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if at, ok := s.published[msgID]; ok && now.Sub(at) < dedupWindow {
		return true
	}
	if len(s.published) >= maxDedupEntries {
		for id, at := range s.published {
			if now.Sub(at) >= dedupWindow {
				delete(s.published, id)
			}
		}
	}
	s.published[msgID] = now
	return false
}

func (s *MemoryStore) ReceiveTask(ctx context.Context, queue string, includeWorkflow, includeActivity bool) (iter.Seq[*TaskToken], error) {
	if !includeWorkflow && !includeActivity {
		return nil, fmt.Errorf("at least one task type must be enabled")
	}

	var kinds []string
	if includeWorkflow {
		kinds = append(kinds, workflowKind)
	}
	if includeActivity {
		kinds = append(kinds, activityKind)
	}

	return func(yield func(*TaskToken) bool) {
		pollCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		tokens := make(chan *TaskToken)
		var wg sync.WaitGroup
		for _, kind := range kinds {
			q := s.queue(queue, kind)
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					data, ok := q.pop(pollCtx)
					if !ok {
						return
					}
					token, err := s.newToken(q, kind, data)
					if err != nil {
						// poison message, drop it
						continue
					}
					select {
					case tokens <- token:
					case <-pollCtx.Done():
						q.push(data)
						return
					}
				}
			}()
		}
		go func() {
			wg.Wait()
			close(tokens)
		}()

		for token := range tokens {
			if !yield(token) {
				cancel()
				for t := range tokens {
					_ = t.Nak(context.Background())
				}
				return
			}
		}
	}, nil
}

func (s *MemoryStore) newToken(q *memoryQueue, kind string, data []byte) (*TaskToken, error) {
	var task api.Task
	if kind == workflowKind {
		task = &api.WorkflowTask{}
	} else {
		task = &api.ActivityTask{}
	}
	if err := s.converter.DeserializeBinary(data, task); err != nil {
		return nil, err
	}
	var once sync.Once
	settle := func(requeue bool) func(context.Context) error {
		return func(context.Context) error {
			once.Do(func() {
				if requeue {
					q.push(data)
				}
			})
			return nil
		}
	}
	return &TaskToken{
		Task: task,
		Ack:  settle(false),
		Nak:  settle(true),
		Term: settle(false),
	}, nil
}

func (s *MemoryStore) PutResult(ctx context.Context, id api.WorkflowID, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[id] = data
	close(s.resultsCh)
	s.resultsCh = make(chan struct{})
	return nil
}

func (s *MemoryStore) WatchResult(ctx context.Context, id api.WorkflowID) ([]byte, error) {
	for {
		s.mu.Lock()
		data, ok := s.results[id]
		changed := s.resultsCh
		closed := s.closed
		s.mu.Unlock()

		if ok {
			return data, nil
		}
		if closed {
			return nil, fmt.Errorf("%w: store closed", ErrResultNotFound)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-changed:
		}
	}
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.resultsCh)
	s.resultsCh = make(chan struct{})
	return nil
}

func (s *MemoryStore) queue(name, kind string) *memoryQueue {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := name + "/" + kind
	q, ok := s.queues[key]
	if !ok {
		q = &memoryQueue{notify: make(chan struct{}, 1)}
		s.queues[key] = q
	}
	return q
}

const maxDedupEntries = 4096

const (
	workflowKind = "workflow"
	activityKind = "activity"
)

func taskKind(t api.Task) string {
	if _, ok := t.(*api.WorkflowTask); ok {
		return workflowKind
	}
	return activityKind
}

type memoryQueue struct {
	mu     sync.Mutex
	items  [][]byte
	notify chan struct{}
}

func (q *memoryQueue) push(data []byte) {
	q.mu.Lock()
	q.items = append(q.items, data)
	q.mu.Unlock()
	q.signal()
}

func (q *memoryQueue) pop(ctx context.Context) ([]byte, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			data := q.items[0]
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				q.signal()
			}
			return data, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, false
		case <-q.notify:
		}
	}
}

func (q *memoryQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

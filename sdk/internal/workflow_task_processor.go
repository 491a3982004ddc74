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

	"github.com/nats-io/nats.go/jetstream"
	"github.com/ngnhng/durableai/api"
)

// ReceiveTask consumes the task subjects of one queue. Workers polling the
// same queue share a durable consumer, so each task goes to one of them.
func (s *NATSStore) ReceiveTask(ctx context.Context, queue string, includeWorkflow, includeActivity bool) (iter.Seq[*TaskToken], error) {
	if !includeWorkflow && !includeActivity {
		return nil, fmt.Errorf("at least one task type must be enabled")
	}
	if err := validateToken("task queue", queue); err != nil {
		return nil, err
	}

	type consumerHandle struct {
		consumer jetstream.Consumer
		taskType string
		newTask  func() api.Task
	}

	var handles []consumerHandle
	if includeWorkflow {
		name := s.WorkflowTaskConsumerName(queue)
		consumer, err := s.EnsureConsumer(ctx, s.WorkflowTaskStreamName(), jetstream.ConsumerConfig{
			Name:          name,
			Durable:       name,
			FilterSubject: s.WorkflowTaskSubject(queue),
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       taskAckWait,
		})
		if err != nil {
			return nil, err
		}
		handles = append(handles, consumerHandle{consumer, workflowKind, func() api.Task { return &api.WorkflowTask{} }})
	}
	if includeActivity {
		name := s.ActivityTaskConsumerName(queue)
		consumer, err := s.EnsureConsumer(ctx, s.ActivityTaskStreamName(), jetstream.ConsumerConfig{
			Name:          name,
			Durable:       name,
			FilterSubject: s.ActivityTaskSubject(queue),
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       taskAckWait,
		})
		if err != nil {
			return nil, err
		}
		handles = append(handles, consumerHandle{consumer, activityKind, func() api.Task { return &api.ActivityTask{} }})
	}

	return func(yield func(*TaskToken) bool) {
		consumerCtx, cancelConsumers := context.WithCancel(ctx)
		defer cancelConsumers()

		taskChannel := make(chan *TaskToken)
		var wg sync.WaitGroup
		for _, h := range handles {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer cancelConsumers()

				consumeCtx, err := h.consumer.Consume(func(msg jetstream.Msg) {
					task := h.newTask()
					if err := s.converter.DeserializeBinary(msg.Data(), task); err != nil {
						s.Logger().Warn("dropping undecodable task", "type", h.taskType, "error", err)
						_ = msg.Term()
						return
					}
					s.enqueueTask(consumerCtx, task, msg, taskChannel)
				})
				if err != nil {
					s.Logger().Error("task consumer failed", "type", h.taskType, "error", err)
					return
				}
				defer consumeCtx.Stop()

				<-consumerCtx.Done()
			}()
		}
		go func() {
			wg.Wait()
			close(taskChannel)
		}()

		for {
			select {
			case <-consumerCtx.Done():
				return
			case t, ok := <-taskChannel:
				if !ok {
					return
				}
				if !yield(t) {
					return
				}
			}
		}
	}, nil
}

func (s *NATSStore) enqueueTask(ctx context.Context, task api.Task, msg jetstream.Msg, taskChannel chan<- *TaskToken) {
	token := &TaskToken{
		Task: task,
		Ack:  msg.DoubleAck,
		Nak:  func(context.Context) error { return msg.Nak() },
		Term: func(context.Context) error { return msg.Term() },
	}

	select {
	case <-ctx.Done():
		_ = msg.Nak()
	case taskChannel <- token:
	}
}

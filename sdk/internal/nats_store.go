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
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/ngnhng/durableai/api"
	"github.com/ngnhng/durableai/api/serde"
)

const (
	historyFetchWait = 5 * time.Second
	taskAckWait      = 5 * time.Minute
	dedupWindow      = 2 * time.Minute
)

var _ Store = (*NATSStore)(nil)

// NATSStore keeps histories in a JetStream stream (one subject per workflow,
// one message per commit), tasks in work-queue streams and results in a KV
// bucket.
type NATSStore struct {
	*Conn
	results jetstream.KeyValue
}

// NewNATSStore wraps nc and provisions the streams and bucket it needs.
// The connection stays owned by the caller.
func NewNATSStore(ctx context.Context, nc *nats.Conn, namespace string, conv serde.BinarySerde, logger *slog.Logger) (*NATSStore, error) {
	conn, err := wrapExisting(nc, namespace, conv)
	if err != nil {
		return nil, err
	}
	conn.SetLogger(logger)

	s := &NATSStore{Conn: conn}
	if err := s.Bootstrap(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Bootstrap creates or updates the streams and the result bucket.
func (s *NATSStore) Bootstrap(ctx context.Context) error {
	streams := []jetstream.StreamConfig{
		{
			Name:        s.HistoryStreamName(),
			Description: "Workflow event histories",
			Subjects:    []string{s.HistoryFilterSubject()},
			Retention:   jetstream.LimitsPolicy,
			Storage:     jetstream.FileStorage,
			Discard:     jetstream.DiscardOld,
		},
		{
			Name:        s.WorkflowTaskStreamName(),
			Description: "Workflow tasks",
			Subjects:    []string{s.WorkflowTaskFilterSubject()},
			Retention:   jetstream.WorkQueuePolicy,
			Storage:     jetstream.FileStorage,
		},
		{
			Name:        s.ActivityTaskStreamName(),
			Description: "Activity tasks",
			Subjects:    []string{s.ActivityTaskFilterSubject()},
			Retention:   jetstream.WorkQueuePolicy,
			Storage:     jetstream.FileStorage,
			Duplicates:  dedupWindow,
		},
	}
	for _, cfg := range streams {
		if _, err := s.EnsureStream(ctx, cfg); err != nil {
			return err
		}
		s.Logger().Debug("stream ready", "stream", cfg.Name)
	}

	kv, err := s.EnsureKV(ctx, jetstream.KeyValueConfig{
		Bucket:      s.ResultBucketName(),
		Description: "Workflow results",
		History:     1,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return err
	}
	s.results = kv
	return nil
}

func (s *NATSStore) LoadHistory(ctx context.Context, id api.WorkflowID) ([]api.WorkflowEvent, uint64, error) {
	subject := s.HistorySubject(id)
	stream, err := s.js.Stream(ctx, s.HistoryStreamName())
	if err != nil {
		return nil, 0, fmt.Errorf("history stream: %w", err)
	}

	last, err := stream.GetLastMsgForSubject(ctx, subject)
	if err != nil {
		if errors.Is(err, jetstream.ErrMsgNotFound) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("last commit of %s: %w", id, err)
	}

	cons, err := s.js.OrderedConsumer(ctx, s.HistoryStreamName(), jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{subject},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("history consumer for %s: %w", id, err)
	}

	var events []api.WorkflowEvent
	for {
		msg, err := cons.Next(jetstream.FetchMaxWait(historyFetchWait))
		if err != nil {
			return nil, 0, fmt.Errorf("read history of %s: %w", id, err)
		}
		meta, err := msg.Metadata()
		if err != nil {
			return nil, 0, fmt.Errorf("history metadata of %s: %w", id, err)
		}
		batch, err := api.DecodeEvents(s.converter, msg.Data())
		if err != nil {
			return nil, 0, fmt.Errorf("history of %s at %d: %w", id, meta.Sequence.Stream, err)
		}
		events = append(events, batch...)
		if meta.Sequence.Stream >= last.Sequence {
			break
		}
	}
	return events, last.Sequence, nil
}

// AppendHistory publishes one message per commit, guarded by the expected
// last sequence of the workflow subject.
func (s *NATSStore) AppendHistory(ctx context.Context, id api.WorkflowID, expected uint64, events ...api.WorkflowEvent) (uint64, error) {
	data, err := api.EncodeEvents(s.converter, events)
	if err != nil {
		return 0, err
	}

	msg := nats.NewMsg(s.HistorySubject(id))
	msg.Data = data
	msg.Header.Set(api.EventNameHeader, strings.Join(api.EventNames(events), ","))

	ack, err := s.js.PublishMsg(ctx, msg, jetstream.WithExpectLastSequencePerSubject(expected))
	if err != nil {
		var apiErr *jetstream.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence {
			return 0, fmt.Errorf("%w: workflow %s, expected %d", ErrRevisionMismatch, id, expected)
		}
		return 0, fmt.Errorf("append history of %s: %w", id, err)
	}
	return ack.Sequence, nil
}

func (s *NATSStore) PublishTask(ctx context.Context, task api.Task) error {
	if err := validateToken("task queue", task.Queue()); err != nil {
		return err
	}
	data, err := s.converter.SerializeBinary(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}

	var subject string
	switch task.(type) {
	case *api.WorkflowTask:
		subject = s.WorkflowTaskSubject(task.Queue())
	case *api.ActivityTask:
		subject = s.ActivityTaskSubject(task.Queue())
	default:
		return fmt.Errorf("unknown task type %T", task)
	}

	var opts []jetstream.PublishOpt
	if msgID := api.MsgID(task); msgID != "" {
		opts = append(opts, jetstream.WithMsgID(msgID))
	}
	if _, err := s.js.Publish(ctx, subject, data, opts...); err != nil {
		return fmt.Errorf("failed to publish task to %s: %w", subject, err)
	}
	return nil
}

func (s *NATSStore) PutResult(ctx context.Context, id api.WorkflowID, data []byte) error {
	if _, err := s.results.Put(ctx, id.String(), data); err != nil {
		return fmt.Errorf("failed to put result of %s: %w", id, err)
	}
	return nil
}

// Close leaves the connection open; it belongs to the caller.
func (s *NATSStore) Close() error { return nil }

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
	"reflect"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/gofrs/uuid/v5"
	"github.com/nats-io/nats.go"
	"github.com/ngnhng/durableai/api"
	"github.com/ngnhng/durableai/api/serde"
)

var _ Client = (*clientImpl)(nil)

const (
	publishAttempts   = 3
	publishRetryDelay = 50 * time.Millisecond
)

type (
	Client interface {
		// ExecuteWorkflow records WorkflowStarted and queues the first
		// workflow task. The workflow is a registered function or its name.
		ExecuteWorkflow(ctx context.Context, options StartWorkflowOptions, workflow any, args ...any) (WorkflowRun, error)
		// GetWorkflow returns a handle on an existing run.
		GetWorkflow(ctx context.Context, workflowID string) WorkflowRun
		// GetHistory returns the recorded events of a run, or
		// ErrWorkflowNotFound when nothing was recorded under workflowID.
		GetHistory(ctx context.Context, workflowID string) ([]api.WorkflowEvent, error)
		Close() error

		getStore() Store
		getSerde() serde.BinarySerde
		getLogger() *slog.Logger
	}

	ClientOptions struct {
		// Namespace prefixes stream names, consumers and buckets so that
		// several deployments can share one NATS server.
		Namespace string
		// Conn backs a NATS store when Store is nil.
		Conn *nats.Conn
		// Store overrides the backend, e.g. NewMemoryStore for tests.
		Store  Store
		Logger *slog.Logger
		Serde  serde.BinarySerde
	}

	StartWorkflowOptions struct {
		// ID defaults to a UUIDv7.
		ID string
		// TaskQueue defaults to api.DefaultTaskQueue.
		TaskQueue string
	}

	WorkflowRun interface {
		ID() string
		// Get waits for the run to close and decodes its value into valuePtr.
		// A failed run returns *WorkflowExecutionError.
		Get(ctx context.Context, valuePtr any) error
	}
)

type clientImpl struct {
	converter     serde.BinarySerde
	typeConverter *serde.TypeConverter
	logger        *slog.Logger
	store         Store
	ownsStore     bool
}

func NewClient(options *ClientOptions) (Client, error) {
	if options == nil {
		return nil, fmt.Errorf("client options are required")
	}

	conv := options.Serde
	if conv == nil {
		conv = serde.Default()
	}
	logger := defaultLogger(options.Logger)

	c := &clientImpl{
		converter:     conv,
		typeConverter: serde.NewTypeConverter(conv),
		logger:        logger,
		store:         options.Store,
	}
	if c.store == nil {
		if options.Conn == nil {
			return nil, fmt.Errorf("client options must include a store or an established NATS connection")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		st, err := NewNATSStore(ctx, options.Conn, options.Namespace, conv, logger)
		if err != nil {
			return nil, err
		}
		c.store = st
		c.ownsStore = true
	}
	return c, nil
}

func (c *clientImpl) ExecuteWorkflow(ctx context.Context, options StartWorkflowOptions, workflow any, args ...any) (WorkflowRun, error) {
	workflowName, err := functionName(workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to extract workflow function name: %w", err)
	}

	id := options.ID
	if id == "" {
		u, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generate workflow id: %w", err)
		}
		id = u.String()
	}
	if err := validateWorkflowID(api.WorkflowID(id)); err != nil {
		return nil, err
	}

	queue := options.TaskQueue
	if queue == "" {
		queue = api.DefaultTaskQueue
	}

	started := &api.WorkflowStarted{
		ID:             api.WorkflowID(id),
		WorkflowFnName: workflowName,
		TaskQueue:      queue,
		Input:          args,
		StartedAtMs:    time.Now().UnixMilli(),
	}
	if _, err := c.store.AppendHistory(ctx, started.ID, 0, started); err != nil {
		if errors.Is(err, ErrRevisionMismatch) {
			if err := c.resume(ctx, started.ID); err != nil {
				c.logger.Warn("failed to resume existing workflow", "workflow_id", id, "error", err)
			}
			return nil, fmt.Errorf("%w: %s", ErrWorkflowAlreadyStarted, id)
		}
		return nil, fmt.Errorf("start workflow %s: %w", id, err)
	}

	if err := c.publish(ctx, &api.WorkflowTask{
		WorkflowID: id,
		WorkflowFn: workflowName,
		TaskQueue:  queue,
	}); err != nil {
		return nil, fmt.Errorf("queue first task of %s: %w", id, err)
	}

	c.logger.Debug("workflow started", "workflow_id", id, "workflow", workflowName, "queue", queue)
	return &workflowRun{id: id, client: c}, nil
}

// publish retries transient failures of a task publication a few times.
func (c *clientImpl) publish(ctx context.Context, task api.Task) error {
	return retry.Do(
		func() error { return c.store.PublishTask(ctx, task) },
		retry.Context(ctx),
		retry.Attempts(publishAttempts),
		retry.Delay(publishRetryDelay),
		retry.LastErrorOnly(true),
	)
}

// resume queues a workflow task for a run that is already recorded, so that
// a run whose first task was lost gets going when it is started again. A
// closed run is left alone.
func (c *clientImpl) resume(ctx context.Context, id api.WorkflowID) error {
	events, _, err := c.store.LoadHistory(ctx, id)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}
	started, ok := events[0].(*api.WorkflowStarted)
	if !ok {
		return fmt.Errorf("history of %s does not begin with %s", id, (*api.WorkflowStarted)(nil).EventName())
	}
	switch events[len(events)-1].(type) {
	case *api.WorkflowCompleted, *api.WorkflowFailed:
		return nil
	}
	return c.publish(ctx, &api.WorkflowTask{
		WorkflowID: id.String(),
		WorkflowFn: started.WorkflowFnName,
		TaskQueue:  started.TaskQueue,
	})
}

func (c *clientImpl) GetWorkflow(ctx context.Context, workflowID string) WorkflowRun {
	return &workflowRun{id: workflowID, client: c}
}

func (c *clientImpl) GetHistory(ctx context.Context, workflowID string) ([]api.WorkflowEvent, error) {
	if err := validateWorkflowID(api.WorkflowID(workflowID)); err != nil {
		return nil, err
	}
	events, _, err := c.store.LoadHistory(ctx, api.WorkflowID(workflowID))
	if err != nil {
		return nil, fmt.Errorf("load history of %s: %w", workflowID, err)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, workflowID)
	}
	return events, nil
}

func (c *clientImpl) Close() error {
	if c.ownsStore {
		return c.store.Close()
	}
	return nil
}

func (c *clientImpl) getStore() Store             { return c.store }
func (c *clientImpl) getSerde() serde.BinarySerde { return c.converter }
func (c *clientImpl) getLogger() *slog.Logger     { return c.logger }

type workflowRun struct {
	id     string
	client *clientImpl
}

func (r *workflowRun) ID() string { return r.id }

func (r *workflowRun) Get(ctx context.Context, valuePtr any) error {
	data, err := r.client.store.WatchResult(ctx, api.WorkflowID(r.id))
	if err != nil {
		return fmt.Errorf("wait for workflow %s: %w", r.id, err)
	}

	var result api.WorkflowResult
	if err := r.client.converter.DeserializeBinary(data, &result); err != nil {
		return fmt.Errorf("decode result of %s: %w", r.id, err)
	}
	if result.Error != "" {
		return &WorkflowExecutionError{WorkflowID: r.id, ErrorType: result.ErrorType, Message: result.Error}
	}
	if valuePtr == nil || result.Value == nil {
		return nil
	}

	rv := reflect.ValueOf(valuePtr)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("result target must be a non-nil pointer, got %T", valuePtr)
	}
	converted, err := r.client.typeConverter.ConvertToType(result.Value, rv.Elem().Type())
	if err != nil {
		return fmt.Errorf("decode result of %s: %w", r.id, err)
	}
	rv.Elem().Set(converted)
	return nil
}

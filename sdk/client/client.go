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

package client

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/ngnhng/durableai/api/serde"
	"github.com/ngnhng/durableai/sdk/internal"
)

// Client starts workflow executions and retrieves their results.
//
// Example:
//
//	c, err := client.NewClient(&client.Options{
//		Namespace: "production",
//		Conn:      nc,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{TaskQueue: "chains"}, MyWorkflow, arg1)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	var result MyResult
//	if err := run.Get(ctx, &result); err != nil {
//		log.Fatal(err)
//	}
type Client = internal.Client

// Options contains configuration for creating a new Client. Either Store or
// Conn must be set.
type Options = internal.ClientOptions

type (
	StartWorkflowOptions = internal.StartWorkflowOptions
	WorkflowRun          = internal.WorkflowRun
	Store                = internal.Store
	NATSConfig           = internal.Config
)

var (
	ErrWorkflowAlreadyStarted = internal.ErrWorkflowAlreadyStarted
	ErrInvalidWorkflowID      = internal.ErrInvalidWorkflowID
	ErrWorkflowNotFound       = internal.ErrWorkflowNotFound
)

// WorkflowExecutionError is returned by WorkflowRun.Get for a failed run.
type WorkflowExecutionError = internal.WorkflowExecutionError

func NewClient(options *Options) (Client, error) {
	return internal.NewClient(options)
}

// NewMemoryStore returns an in-process store. Clients and workers sharing it
// run workflows without NATS.
func NewMemoryStore(conv serde.BinarySerde) Store {
	return internal.NewMemoryStore(conv)
}

// NewNATSStore provisions the JetStream streams and bucket under namespace.
func NewNATSStore(ctx context.Context, nc *nats.Conn, namespace string, conv serde.BinarySerde, logger *slog.Logger) (Store, error) {
	return internal.NewNATSStore(ctx, nc, namespace, conv, logger)
}

// Connect dials NATS using cfg.
func Connect(cfg NATSConfig, logger *slog.Logger) (*nats.Conn, error) {
	return internal.Connect(cfg, logger)
}

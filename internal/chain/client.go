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
	"context"

	"github.com/ngnhng/durableai/sdk/client"
)

// Start queues a chain run on queue. An empty id lets the engine pick one.
func Start(ctx context.Context, c client.Client, id, queue string, in Input) (client.WorkflowRun, error) {
	in = in.Normalized()
	return c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{ID: id, TaskQueue: queue}, WorkflowName, in.Topic, in.Length)
}

// Await waits for run and returns its result or a *ChainFailure.
func Await(ctx context.Context, run client.WorkflowRun, topic string) (Result, error) {
	var res Result
	if err := run.Get(ctx, &res); err != nil {
		return Result{}, AsFailure(topic, err)
	}
	return res, nil
}

// Execute starts a chain and waits for it.
func Execute(ctx context.Context, c client.Client, id, queue string, in Input) (Result, error) {
	run, err := Start(ctx, c, id, queue, in)
	if err != nil {
		return Result{}, AsFailure(in.Topic, err)
	}
	return Await(ctx, run, in.Topic)
}

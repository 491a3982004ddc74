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

	"github.com/ngnhng/durableai/internal/llm"
	"github.com/ngnhng/durableai/sdk/worker"
	"github.com/ngnhng/durableai/sdk/workflow"
)

const (
	WorkflowName     = "MultiStepAIChainWorkflow"
	DefaultTaskQueue = "multi-step-ai-chain-queue"
)

type Options struct {
	Model string
	// StepTimeout bounds a single attempt of a step.
	StepTimeout     time.Duration
	MaxAttempts     int32
	InitialInterval time.Duration
}

func DefaultOptions() Options {
	return Options{
		Model:           DefaultModel,
		StepTimeout:     30 * time.Second,
		MaxAttempts:     3,
		InitialInterval: time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Model == "" {
		o.Model = d.Model
	}
	if o.StepTimeout <= 0 {
		o.StepTimeout = d.StepTimeout
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	if o.InitialInterval <= 0 {
		o.InitialInterval = d.InitialInterval
	}
	return o
}

func (o Options) activityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: o.StepTimeout,
		RetryPolicy: &workflow.RetryPolicy{
			InitialInterval:    o.InitialInterval,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    o.MaxAttempts,
			NonRetryableErrorTypes: []string{
				"PermanentAPIError",
				"AuthenticationError",
			},
		},
	}
}

// engine executes each step as an activity of the running workflow.
type engine struct {
	ctx workflow.Context
}

func (e engine) Execute(step Step, req llm.Request) (string, error) {
	var text string
	err := workflow.ExecuteActivity(e.ctx, step.Activity, req).Get(e.ctx, &text)
	return text, err
}

// NewWorkflow returns the chain workflow. Prompts are built inside the
// workflow, so replays rebuild the same requests from recorded outputs.
func NewWorkflow(opts Options) func(ctx workflow.Context, topic, length string) (Result, error) {
	opts = opts.withDefaults()
	steps := Steps(opts.Model)
	return func(ctx workflow.Context, topic, length string) (Result, error) {
		ctx = workflow.WithActivityOptions(ctx, opts.activityOptions())
		logger := workflow.GetLogger(ctx)
		logger.Info("starting chain", "topic", topic, "length", length)

		res, err := Run(Input{Topic: topic, Length: length}, steps, engine{ctx: ctx})
		if err != nil {
			logger.Error("chain failed", "topic", topic, "error", err)
			return Result{}, err
		}
		logger.Info("chain completed", "topic", topic, "key_points", len(res.Points()))
		return res, nil
	}
}

// Register adds the chain workflow and its step activities to r.
func Register(r worker.Registry, acts *Activities, opts Options) error {
	if err := RegisterWorkflow(r, opts); err != nil {
		return err
	}
	return RegisterActivities(r, acts)
}

func RegisterWorkflow(r worker.WorkflowRegistry, opts Options) error {
	return r.RegisterWorkflow(NewWorkflow(opts), worker.WorkflowRegisterOption{Name: WorkflowName})
}

// RegisterActivities registers acts.Complete once per step name.
func RegisterActivities(r worker.ActivityRegistry, acts *Activities) error {
	for _, step := range Steps("") {
		if err := r.RegisterActivity(acts.Complete, worker.ActivityRegisterOption{Name: step.Activity}); err != nil {
			return fmt.Errorf("register %s: %w", step.Activity, err)
		}
	}
	return nil
}

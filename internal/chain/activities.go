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
	"errors"

	"github.com/ngnhng/durableai/internal/llm"
	"github.com/ngnhng/durableai/sdk/workflow"
)

// Completer sends one chat completion request.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Activities performs the remote calls of the chain. Every step registers
// Complete under its own name.
type Activities struct {
	LLM Completer
}

// Complete returns the reply text of req.
func (a *Activities) Complete(ctx context.Context, req llm.Request) (string, error) {
	msg, err := a.Reply(ctx, req)
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

// Reply returns the first reply message of req, tool calls included.
// Provider errors that retrying cannot fix are marked non-retryable.
func (a *Activities) Reply(ctx context.Context, req llm.Request) (llm.Message, error) {
	resp, err := a.LLM.Complete(ctx, req)
	if err != nil {
		var apiErr *llm.APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return llm.Message{}, workflow.NewNonRetryableError(err)
		}
		return llm.Message{}, err
	}
	return resp.Message(), nil
}

// direct runs steps in-process without the engine.
type direct struct {
	ctx  context.Context
	acts *Activities
}

func (d direct) Execute(_ Step, req llm.Request) (string, error) {
	return d.acts.Complete(d.ctx, req)
}

// RunDirect drives the chain synchronously against c. It gives no
// durability; a failed step fails the chain at once.
func RunDirect(ctx context.Context, c Completer, model string, in Input) (Result, error) {
	res, err := Run(in, Steps(model), direct{ctx: ctx, acts: &Activities{LLM: c}})
	if err != nil {
		return Result{}, AsFailure(in.Topic, err)
	}
	return res, nil
}

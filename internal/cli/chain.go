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

package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	chainexample "github.com/ngnhng/durableai/examples/scenarios/chain"
	"github.com/ngnhng/durableai/internal/app"
	"github.com/ngnhng/durableai/internal/chain"
	"github.com/ngnhng/durableai/internal/config"
	"github.com/ngnhng/durableai/internal/render"
	"github.com/ngnhng/durableai/sdk/client"
)

type chainOptions struct {
	topic  string
	length string
	id     string
	local  bool
	direct bool
}

func newChainCommand(o *globalOptions) *cobra.Command {
	co := &chainOptions{}
	cmd := &cobra.Command{
		Use:   "chain",
		Short: "Run one content chain and print its result",
		Long: `Run generate, analyze, summarize and extract for a topic and render the
result. The chain runs on the worker serving CHAIN_TASK_QUEUE unless --local
starts one in process or --direct calls the model without the engine.

Example:
  durableai chain --topic "Event sourcing" --length short --local`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if co.local && co.direct {
				return errors.New("--local and --direct are mutually exclusive")
			}
			backend := ""
			if co.local || co.direct {
				backend = config.BackendMemory
			}
			a, err := o.load(cmd, backend)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(cmd.Context()))

			in := chain.Input{Topic: co.topic, Length: co.length}.Normalized()
			out := cmd.OutOrStdout()
			render.Banner(out, fmt.Sprintf("Chain: %s (%s)", in.Topic, in.Length))

			var res chain.Result
			err = a.Run(cmd.Context(), func(ctx context.Context) (err error) {
				res, err = runChain(ctx, a, co, in)
				return err
			})
			if err != nil {
				render.Failure(out, err)
				return NewExitError(1)
			}
			render.Result(out, res)
			return nil
		},
	}
	cmd.Flags().StringVar(&co.topic, "topic", "", "subject of the generated content")
	cmd.Flags().StringVar(&co.length, "length", chain.DefaultLength, "short, medium or long")
	cmd.Flags().StringVar(&co.id, "id", "", "workflow id; a run with this id is attached to instead of restarted")
	cmd.Flags().BoolVar(&co.local, "local", false, "run an in-process worker on an in-memory store")
	cmd.Flags().BoolVar(&co.direct, "direct", false, "call the model step by step without the workflow engine")
	_ = cmd.MarkFlagRequired("topic")
	return cmd
}

func runChain(ctx context.Context, a *app.App, co *chainOptions, in chain.Input) (chain.Result, error) {
	opts := chainexample.Options(a.Config)
	if co.direct {
		c, err := a.LLM("")
		if err != nil {
			return chain.Result{}, err
		}
		return chain.RunDirect(ctx, c, opts.Model, in)
	}
	if !co.local {
		return startOrAttach(ctx, a, co.id, in)
	}

	m := app.NewManager(a)
	if err := m.AddChainWorker(opts); err != nil {
		return chain.Result{}, err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var res chain.Result
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.Run(gCtx) })
	g.Go(func() (err error) {
		defer cancel()
		res, err = startOrAttach(gCtx, a, co.id, in)
		return err
	})
	return res, g.Wait()
}

func startOrAttach(ctx context.Context, a *app.App, id string, in chain.Input) (chain.Result, error) {
	run, err := chain.Start(ctx, a.Client, id, a.Config.Chain.TaskQueue, in)
	if errors.Is(err, client.ErrWorkflowAlreadyStarted) {
		run, err = a.Client.GetWorkflow(ctx, id), nil
	}
	if err != nil {
		return chain.Result{}, chain.AsFailure(in.Topic, err)
	}
	return chain.Await(ctx, run, in.Topic)
}

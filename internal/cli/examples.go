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
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ngnhng/durableai/examples/scenarios"
	"github.com/ngnhng/durableai/internal/app"
	"github.com/ngnhng/durableai/internal/config"
)

func lookupExample(name string) (scenarios.Example, error) {
	ex, ok := scenarios.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown example %q. Available: %s", name, strings.Join(scenarios.Names(), ", "))
	}
	return ex, nil
}

func newWorkerCommand(o *globalOptions) *cobra.Command {
	var (
		example string
		role    string
	)
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run a worker for an example",
		Long: `Run a worker polling the task queue of an example until interrupted.
Workflow and activity roles may run in separate processes.

Example:
  durableai worker --example multi-step-chain --role activity`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ex, err := lookupExample(example)
			if err != nil {
				return err
			}
			r, err := app.ParseRole(role)
			if err != nil {
				return err
			}
			a, err := o.load(cmd, "")
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(cmd.Context()))

			m := app.NewManager(a)
			if err := m.AddExample(ex, r); err != nil {
				return err
			}
			return a.Run(cmd.Context(), m.Run)
		},
	}
	cmd.Flags().StringVar(&example, "example", "", "example to serve (see: durableai examples)")
	cmd.Flags().StringVar(&role, "role", string(app.RoleBoth), "task kinds to poll: workflow, activity or both")
	_ = cmd.MarkFlagRequired("example")
	return cmd
}

func newRunCommand(o *globalOptions) *cobra.Command {
	var (
		example string
		local   bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the client of an example",
		Long: `Start the demo workflows of an example and print their results. Without
--local a worker for the example must be running against the same NATS server.

Example:
  durableai run --example greeting --local`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ex, err := lookupExample(example)
			if err != nil {
				return err
			}
			backend := ""
			if local {
				backend = config.BackendMemory
			}
			a, err := o.load(cmd, backend)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(cmd.Context()))

			return a.Run(cmd.Context(), func(ctx context.Context) error {
				if local {
					return scenarios.RunLocal(ctx, ex, a.Deps())
				}
				return ex.RunClient(ctx, a.Client, a.Deps())
			})
		},
	}
	cmd.Flags().StringVar(&example, "example", "", "example to run (see: durableai examples)")
	cmd.Flags().BoolVar(&local, "local", false, "run an in-process worker on an in-memory store")
	_ = cmd.MarkFlagRequired("example")
	return cmd
}

func newExamplesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "examples",
		Short: "List the registered examples",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			for _, name := range scenarios.Names() {
				ex, _ := scenarios.Get(name)
				fmt.Fprintf(out, "%-18s %-22s %s\n", name, ex.TaskQueue(), ex.Description())
			}
		},
	}
}

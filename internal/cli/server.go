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
	"time"

	"github.com/spf13/cobra"

	chainexample "github.com/ngnhng/durableai/examples/scenarios/chain"
	"github.com/ngnhng/durableai/internal/app"
)

func newServerCommand(o *globalOptions) *cobra.Command {
	var (
		noWorker bool
		wait     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Serve the chains API with an embedded chain worker",
		Long: `Serve /health, /ready, /metrics and the chains API on SERVER_HOST:SERVER_PORT.

  POST /v1/chains        {"topic": "...", "length": "short", "id": "optional"}
  GET  /v1/chains/{id}   status per step; ?wait=true blocks for the result

A chain worker runs in the same process unless --no-worker is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := o.load(cmd, "")
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(cmd.Context()))

			m := app.NewManager(a)
			if !noWorker {
				if err := m.AddChainWorker(chainexample.Options(a.Config)); err != nil {
					return err
				}
			}
			m.AddHTTPServer(wait)
			return a.Run(cmd.Context(), m.Run)
		},
	}
	cmd.Flags().BoolVar(&noWorker, "no-worker", false, "serve the API only; chains run on separate workers")
	cmd.Flags().DurationVar(&wait, "wait", time.Minute, "upper bound for GET ?wait=true")
	return cmd
}

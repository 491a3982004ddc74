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

// Package cli wires the durableai commands.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ngnhng/durableai/internal/app"
	"github.com/ngnhng/durableai/internal/config"
)

// ExitError carries an exit code out of a command that already reported
// its failure.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

func NewExitError(code int) *ExitError {
	return &ExitError{Code: code}
}

// IsExitError returns the code carried by err, if any.
func IsExitError(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}

type globalOptions struct {
	envFile string
}

// load reads the configuration and builds the App. backend overrides
// ENGINE_BACKEND when set.
func (o *globalOptions) load(cmd *cobra.Command, backend string) (*app.App, error) {
	cfg, err := config.Load(o.envFile)
	if err != nil {
		return nil, err
	}
	return app.New(cmd.Context(), cfg, app.Options{Backend: backend, Out: cmd.OutOrStdout()})
}

func NewRootCommand() *cobra.Command {
	o := &globalOptions{}
	root := &cobra.Command{
		Use:   "durableai",
		Short: "Durable LLM call chains on a replaying workflow engine",
		Long: `durableai runs chains of chat completion calls as durable workflows.
Every step is an activity whose result is recorded, so a restarted worker
resumes a chain where it stopped instead of calling the model again.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&o.envFile, "env-file", ".env", "dotenv file read before the environment")

	root.AddCommand(
		newWorkerCommand(o),
		newRunCommand(o),
		newChainCommand(o),
		newServerCommand(o),
		newCheckCommand(o),
		newExamplesCommand(),
	)
	return root
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	root := NewRootCommand()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	if code, ok := IsExitError(err); ok {
		return code
	}
	fmt.Fprintln(root.ErrOrStderr(), color.RedString("Error: %v", err))
	return 1
}

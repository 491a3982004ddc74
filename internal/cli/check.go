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
	"fmt"
	"io"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ngnhng/durableai/internal/config"
	"github.com/ngnhng/durableai/sdk/client"
)

// placeholderKey is the value shipped in .env.example.
const placeholderKey = "your_openai_api_key_here"

type checkResult struct {
	name string
	err  error
	// warn marks a failure that does not prevent running.
	warn bool
}

func newCheckCommand(o *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the local setup",
		Long: `Verify that a .env file is present, the configuration is valid, the model
provider has a key and the NATS server is reachable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(o.envFile)
			if err != nil {
				return err
			}
			if failed := report(cmd.OutOrStdout(), runChecks(cfg)); failed > 0 {
				return NewExitError(1)
			}
			return nil
		},
	}
}

func runChecks(cfg *config.Config) []checkResult {
	results := []checkResult{checkEnvFile(cfg)}

	if err := cfg.Validate(); err != nil {
		return append(results, checkResult{name: "configuration", err: err})
	}
	results = append(results,
		checkResult{name: "configuration"},
		checkResult{name: fmt.Sprintf("%s API key", cfg.LLM.Provider), err: checkAPIKey(cfg)},
	)

	if cfg.Engine.Backend == config.BackendNATS {
		results = append(results, checkResult{name: "NATS at " + cfg.NATS.URL, err: checkNATS(cfg)})
	}
	return results
}

func checkEnvFile(cfg *config.Config) checkResult {
	if cfg.EnvFile == "" {
		return checkResult{name: ".env file", err: fmt.Errorf("not found; copy .env.example to .env"), warn: true}
	}
	return checkResult{name: ".env file (" + cfg.EnvFile + ")"}
}

func checkAPIKey(cfg *config.Config) error {
	if err := cfg.ValidateProvider(cfg.LLM.Provider); err != nil {
		return err
	}
	if cfg.LLM.EndpointFor("").APIKey == placeholderKey {
		return fmt.Errorf("the API key is still the placeholder from .env.example")
	}
	return nil
}

func checkNATS(cfg *config.Config) error {
	nc, err := client.Connect(cfg, slog.New(slog.DiscardHandler))
	if err != nil {
		return err
	}
	defer nc.Close()
	if _, err := nc.RTT(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// report prints results and returns the number of hard failures.
func report(w io.Writer, results []checkResult) int {
	ok := color.New(color.FgGreen).SprintFunc()
	warn := color.New(color.FgYellow).SprintFunc()
	fail := color.New(color.FgRed).SprintFunc()

	failed := 0
	for _, r := range results {
		switch {
		case r.err == nil:
			fmt.Fprintf(w, "%s %s\n", ok("✓"), r.name)
		case r.warn:
			fmt.Fprintf(w, "%s %s: %v\n", warn("!"), r.name, r.err)
		default:
			failed++
			fmt.Fprintf(w, "%s %s: %v\n", fail("✗"), r.name, r.err)
		}
	}
	if failed == 0 {
		fmt.Fprintln(w, ok("\nSetup looks good."))
	} else {
		fmt.Fprintln(w, fail(fmt.Sprintf("\n%d check(s) failed.", failed)))
	}
	return failed
}

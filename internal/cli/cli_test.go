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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ngnhng/durableai/internal/config"

	_ "github.com/ngnhng/durableai/examples/scenarios/greeting"
)

const reply = `{"id":"c1","model":"m","choices":[{"index":0,"message":{"role":"assistant","content":"- point"},"finish_reason":"stop"}]}`

// setupEnv isolates the command from the developer environment and points
// the model client at srv when given.
func setupEnv(t *testing.T, srv *httptest.Server) {
	t.Helper()
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_OUTPUT", "stderr")
	t.Setenv("TELEMETRY_METRICS_ENABLED", "false")
	t.Setenv("TELEMETRY_TRACING_ENABLED", "false")
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("LLM_OPENAI_API_KEY", "sk-test")
	t.Setenv("LLM_MAX_RETRIES", "0")
	if srv != nil {
		t.Setenv("LLM_BASE_URL", srv.URL)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "missing.env")))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func completionServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExamplesCommand(t *testing.T) {
	setupEnv(t, nil)
	out, err := execute(t, "examples")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "greeting") || !strings.Contains(out, "greeting-task-queue") {
		t.Errorf("examples output = %q", out)
	}
}

func TestRunLocal(t *testing.T) {
	setupEnv(t, nil)
	out, err := execute(t, "run", "--example", "greeting", "--local")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Workflow result: Hello, Durable User!") {
		t.Errorf("run output = %q", out)
	}
}

func TestRunUnknownExample(t *testing.T) {
	setupEnv(t, nil)
	_, err := execute(t, "run", "--example", "nope", "--local")
	if err == nil || !strings.Contains(err.Error(), `unknown example "nope"`) {
		t.Errorf("err = %v", err)
	}
}

func TestWorkerRejectsRole(t *testing.T) {
	setupEnv(t, nil)
	_, err := execute(t, "worker", "--example", "greeting", "--role", "all")
	if err == nil || !strings.Contains(err.Error(), "unknown worker role") {
		t.Errorf("err = %v", err)
	}
}

func TestChainCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"direct", []string{"--direct"}},
		{"local", []string{"--local", "--id", "cli-chain-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			setupEnv(t, completionServer(t, &calls))

			out, err := execute(t, append([]string{"chain", "--topic", "Go", "--length", "short"}, tt.args...)...)
			if err != nil {
				t.Fatalf("chain: %v\n%s", err, out)
			}
			for _, want := range []string{"Chain: Go (short)", "Key Points", "point"} {
				if !strings.Contains(out, want) {
					t.Errorf("output lacks %q:\n%s", want, out)
				}
			}
			if got := calls.Load(); got != 4 {
				t.Errorf("completions = %d, want 4", got)
			}
		})
	}
}

func TestChainCommandFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	t.Cleanup(srv.Close)
	setupEnv(t, srv)

	out, err := execute(t, "chain", "--topic", "Go", "--direct")
	if code, ok := IsExitError(err); !ok || code != 1 {
		t.Fatalf("err = %v, want exit status 1", err)
	}
	if !strings.Contains(out, "step generate failed") {
		t.Errorf("output = %q", out)
	}
}

func TestChainFlagsExclusive(t *testing.T) {
	setupEnv(t, nil)
	if _, err := execute(t, "chain", "--topic", "Go", "--direct", "--local"); err == nil {
		t.Error("--direct with --local succeeded")
	}
}

func TestRunChecks(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   []string
		failed int
	}{
		{
			name:   "ok",
			mutate: func(*config.Config) {},
			want:   []string{".env file", "configuration", "openai API key"},
			failed: 0,
		},
		{
			name:   "placeholder key",
			mutate: func(c *config.Config) { c.LLM.OpenAIAPIKey = placeholderKey },
			want:   []string{".env file", "configuration", "openai API key"},
			failed: 1,
		},
		{
			name:   "invalid configuration",
			mutate: func(c *config.Config) { c.Mode = "verbose" },
			want:   []string{".env file", "configuration"},
			failed: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupEnv(t, nil)
			cfg, err := config.LoadConfig()
			if err != nil {
				t.Fatal(err)
			}
			cfg.Engine.Backend = config.BackendMemory
			tt.mutate(cfg)

			results := runChecks(cfg)
			var names []string
			for _, r := range results {
				names = append(names, r.name)
			}
			if diff := cmp.Diff(tt.want, names); diff != "" {
				t.Errorf("checks mismatch (-want +got):\n%s", diff)
			}
			if got := report(io.Discard, results); got != tt.failed {
				t.Errorf("failed = %d, want %d", got, tt.failed)
			}
		})
	}
}

func TestIsExitError(t *testing.T) {
	if code, ok := IsExitError(fmt.Errorf("wrapped: %w", NewExitError(3))); !ok || code != 3 {
		t.Errorf("IsExitError = %d, %v", code, ok)
	}
	if _, ok := IsExitError(errors.New("plain")); ok {
		t.Error("plain error reported as ExitError")
	}
}

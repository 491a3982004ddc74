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

package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ngnhng/durableai/internal/chain"
	"github.com/ngnhng/durableai/internal/llm"
	"github.com/ngnhng/durableai/sdk/client"
	"github.com/ngnhng/durableai/sdk/worker"
)

const testQueue = "http-test-queue"

type constant struct{}

func (constant) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	return &llm.Response{Choices: []llm.Choice{{Message: llm.Assistant("- done")}}}, nil
}

func newTestServer(t *testing.T, checks map[string]Check) *httptest.Server {
	t.Helper()
	c, err := client.NewClient(&client.Options{Store: client.NewMemoryStore(nil)})
	if err != nil {
		t.Fatal(err)
	}
	w, err := worker.NewWorker(c, worker.Options{TaskQueue: testQueue})
	if err != nil {
		t.Fatal(err)
	}
	if err := chain.Register(w, &chain.Activities{LLM: constant{}}, chain.Options{Model: "m"}); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	srv := httptest.NewServer(NewRouter(Routes{
		Health:  NewHealthHandler(checks),
		Chains:  NewChainHandler(c, testQueue, 5*time.Second, nil),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { io.WriteString(w, "# metrics\n") }),
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return srv
}

func do(t *testing.T, method, url, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(data)
}

func TestChains(t *testing.T) {
	srv := newTestServer(t, nil)

	code, body := do(t, http.MethodPost, srv.URL+"/v1/chains", `{"id":"c-1","topic":"Go","length":"short"}`)
	if code != http.StatusAccepted {
		t.Fatalf("start: %d %s", code, body)
	}
	var started StartResponse
	if err := json.UnmarshalFromString(body, &started); err != nil {
		t.Fatal(err)
	}
	if started.WorkflowID != "c-1" {
		t.Errorf("workflow id = %q", started.WorkflowID)
	}

	code, body = do(t, http.MethodGet, srv.URL+"/v1/chains/c-1?wait=true", "")
	if code != http.StatusOK {
		t.Fatalf("get: %d %s", code, body)
	}
	var st chain.Status
	if err := json.UnmarshalFromString(body, &st); err != nil {
		t.Fatal(err)
	}
	if st.Status != chain.StatusCompleted || st.Result == nil || st.Result.KeyPoints != "done" {
		t.Errorf("status = %+v", st)
	}

	code, _ = do(t, http.MethodPost, srv.URL+"/v1/chains", `{"id":"c-1","topic":"Go"}`)
	if code != http.StatusConflict {
		t.Errorf("duplicate start: %d, want 409", code)
	}
}

func TestChains_BadRequests(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"missing topic", http.MethodPost, "/v1/chains", `{"length":"short"}`, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/v1/chains", `{`, http.StatusBadRequest},
		{"dotted id", http.MethodPost, "/v1/chains", `{"id":"a.b","topic":"x"}`, http.StatusBadRequest},
		{"unknown run", http.MethodGet, "/v1/chains/nope", "", http.StatusNotFound},
		{"unknown run while waiting", http.MethodGet, "/v1/chains/nope?wait=true", "", http.StatusNotFound},
		{"invalid id while waiting", http.MethodGet, "/v1/chains/a.b?wait=true", "", http.StatusBadRequest},
		{"wrong method", http.MethodDelete, "/v1/chains/nope", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now()
			if code, body := do(t, tt.method, srv.URL+tt.path, tt.body); code != tt.want {
				t.Errorf("got %d (%s), want %d", code, body, tt.want)
			}
			// the handler waits up to 5s for a run that exists
			if elapsed := time.Since(start); elapsed > time.Second {
				t.Errorf("answered after %v", elapsed)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, map[string]Check{
		"nats": func() error { return errors.New("disconnected") },
	})

	if code, _ := do(t, http.MethodGet, srv.URL+"/health", ""); code != http.StatusOK {
		t.Errorf("health: %d", code)
	}
	code, body := do(t, http.MethodGet, srv.URL+"/ready", "")
	if code != http.StatusServiceUnavailable || !strings.Contains(body, "disconnected") {
		t.Errorf("ready: %d %s", code, body)
	}
	if code, body := do(t, http.MethodGet, srv.URL+"/metrics", ""); code != http.StatusOK || body != "# metrics\n" {
		t.Errorf("metrics: %d %q", code, body)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := corsMiddleware(http.NotFoundHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/v1/chains", nil))
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("preflight: %d %v", rec.Code, rec.Header())
	}
}

func TestRouterPreflightOnUnknownPath(t *testing.T) {
	srv := httptest.NewServer(NewRouter(Routes{}))
	defer srv.Close()
	if code, _ := do(t, http.MethodOptions, srv.URL+"/v1/chains", ""); code != http.StatusOK {
		t.Errorf("preflight: %d", code)
	}
	if code, _ := do(t, http.MethodGet, srv.URL+"/v1/chains/x", ""); code != http.StatusNotFound {
		t.Errorf("unmounted route: %d", code)
	}
}

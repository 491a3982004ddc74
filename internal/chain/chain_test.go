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
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	jsoniter "github.com/json-iterator/go"

	"github.com/ngnhng/durableai/api"
	"github.com/ngnhng/durableai/internal/llm"
	"github.com/ngnhng/durableai/sdk/client"
	"github.com/ngnhng/durableai/sdk/worker"
)

// scripted answers each step by its system prompt.
type scripted struct {
	mu      sync.Mutex
	replies map[string]func(call int) (string, error)
	calls   map[string]int
	reqs    []llm.Request
}

func newScripted(generate, analyze, synthesize, extract string) *scripted {
	reply := func(s string) func(int) (string, error) {
		return func(int) (string, error) { return s, nil }
	}
	return &scripted{
		replies: map[string]func(int) (string, error){
			generateSystem:   reply(generate),
			analyzeSystem:    reply(analyze),
			synthesizeSystem: reply(synthesize),
			extractSystem:    reply(extract),
		},
		calls: map[string]int{},
	}
}

func (s *scripted) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	system := req.Messages[0].Content
	s.calls[system]++
	s.reqs = append(s.reqs, req)
	text, err := s.replies[system](s.calls[system])
	if err != nil {
		return nil, err
	}
	return &llm.Response{Choices: []llm.Choice{{Message: llm.Assistant(text)}}}, nil
}

func (s *scripted) count(system string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[system]
}

func TestRunDirect(t *testing.T) {
	fake := newScripted("C", "A", "S", "- p1\n- p2")
	got, err := RunDirect(context.Background(), fake, DefaultModel, Input{Topic: "T", Length: LengthShort})
	if err != nil {
		t.Fatalf("RunDirect: %v", err)
	}
	want := Result{
		Topic:            "T",
		GeneratedContent: "C",
		ContentWordCount: "1",
		Analysis:         "A",
		FinalSummary:     "S",
		KeyPoints:        "p1; p2",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}

	if len(fake.reqs) != 4 {
		t.Fatalf("made %d calls, want 4", len(fake.reqs))
	}
	if fake.reqs[0].MaxTokens != 150 {
		t.Errorf("generate max tokens = %d, want 150", fake.reqs[0].MaxTokens)
	}
	wantExtract := "Extract the main takeaways as bullet points:\n\nC\n\nA\n\nS"
	if got := fake.reqs[3].Messages[1].Content; got != wantExtract {
		t.Errorf("extract prompt = %q, want %q", got, wantExtract)
	}
	for _, req := range fake.reqs {
		if req.Model != DefaultModel {
			t.Errorf("request model = %q", req.Model)
		}
	}
}

func TestRunDirect_DefaultLength(t *testing.T) {
	fake := newScripted("C", "A", "S", "p")
	if _, err := RunDirect(context.Background(), fake, "m", Input{Topic: "T"}); err != nil {
		t.Fatal(err)
	}
	prompt := fake.reqs[0].Messages[1].Content
	if !strings.HasPrefix(prompt, "Write a medium explanation about T.") {
		t.Errorf("generate prompt = %q", prompt)
	}
	if fake.reqs[0].MaxTokens != 300 {
		t.Errorf("max tokens = %d, want 300", fake.reqs[0].MaxTokens)
	}
}

func TestRunDirect_EmptyOutputs(t *testing.T) {
	got, err := RunDirect(context.Background(), newScripted("", "", "", ""), "m", Input{Topic: "T"})
	if err != nil {
		t.Fatal(err)
	}
	want := Result{Topic: "T", ContentWordCount: "0"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}

	var fields map[string]string
	data, _ := jsoniter.Marshal(got)
	if err := jsoniter.Unmarshal(data, &fields); err != nil {
		t.Fatal(err)
	}
	if len(fields) != 6 {
		t.Errorf("encoded %d fields, want 6: %v", len(fields), fields)
	}
}

func TestRunDirect_Deterministic(t *testing.T) {
	run := func() []byte {
		fake := newScripted("Some content here", "Positive.", "Nice.", "- one\n- two\n- three")
		res, err := RunDirect(context.Background(), fake, "m", Input{Topic: "Go", Length: LengthLong})
		if err != nil {
			t.Fatal(err)
		}
		data, err := jsoniter.Marshal(res)
		if err != nil {
			t.Fatal(err)
		}
		return data
	}
	if a, b := run(), run(); string(a) != string(b) {
		t.Errorf("runs differ:\n%s\n%s", a, b)
	}
}

func TestRunDirect_FailureStopsChain(t *testing.T) {
	fake := newScripted("C", "A", "S", "p")
	fake.replies[analyzeSystem] = func(int) (string, error) {
		return "", &llm.APIError{StatusCode: http.StatusBadRequest, Message: "bad"}
	}
	_, err := RunDirect(context.Background(), fake, "m", Input{Topic: "T"})

	var cf *ChainFailure
	if !errors.As(err, &cf) {
		t.Fatalf("got %v, want *ChainFailure", err)
	}
	if cf.Step != StepAnalyze || cf.Topic != "T" {
		t.Errorf("failure = %+v", cf)
	}
	if n := fake.count(synthesizeSystem) + fake.count(extractSystem); n != 0 {
		t.Errorf("later steps ran %d times", n)
	}
}

func TestTokenBudget(t *testing.T) {
	tests := map[string]int{
		LengthShort:  150,
		LengthMedium: 300,
		LengthLong:   500,
		"epic":       150,
		"":           150,
	}
	for length, want := range tests {
		if got := TokenBudget(length); got != want {
			t.Errorf("TokenBudget(%q) = %d, want %d", length, got, want)
		}
	}
}

func TestSynthesizePromptTruncatesContent(t *testing.T) {
	content := strings.Repeat("é", 250)
	req := synthesizeRequest("m", content, "fine")
	prompt := req.Messages[1].Content
	want := "Content: " + strings.Repeat("é", 200) + "...\n"
	if !strings.Contains(prompt, want) {
		t.Errorf("prompt does not quote the first 200 characters: %q", prompt)
	}
	if strings.Contains(prompt, strings.Repeat("é", 201)) {
		t.Error("prompt quotes more than 200 characters")
	}
	if req.MaxTokens != 150 {
		t.Errorf("max tokens = %d", req.MaxTokens)
	}
}

func TestSynthesisLengths(t *testing.T) {
	state := NewState(Input{Topic: "T"})
	state, _ = state.With(StepGenerate, GeneratedContent{Content: "héllo"})
	state, _ = state.With(StepAnalyze, Analysis{Analysis: "ok"})
	out := Steps("m")[2].Project(state, "sum")
	want := Synthesis{FinalSummary: "sum", OriginalContentLength: "5", AnalysisLength: "2"}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("synthesis mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractKeyPoints(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "- a\n- b\n\nc", want: []string{"a", "b", "c"}},
		{in: "  - spaced  \r\n-\n--- dashes ---", want: []string{"spaced", "dashes"}},
		{in: "", want: nil},
		{in: "single", want: []string{"single"}},
		{in: "a\n-\nb", want: []string{"a", "b"}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, ExtractKeyPoints(tt.in)); diff != "" {
			t.Errorf("ExtractKeyPoints(%q) (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		s    string
		n    int
		want string
	}{
		{"hello", 3, "hel"},
		{"hi", 5, "hi"},
		{"日本語テキスト", 3, "日本語"},
		{"x", 0, ""},
	}
	for _, tt := range tests {
		if got := Truncate(tt.s, tt.n); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.s, tt.n, got, tt.want)
		}
	}
}

func TestState(t *testing.T) {
	s0 := NewState(Input{Topic: "T"})
	if _, err := s0.With(StepAnalyze, Analysis{}); err == nil {
		t.Error("expected an out-of-order step to be rejected")
	}

	s1, err := s0.With(StepGenerate, GeneratedContent{Content: "C"})
	if err != nil {
		t.Fatal(err)
	}
	if len(s0.Completed()) != 0 {
		t.Error("With modified the receiver")
	}
	if _, err := s1.With(StepGenerate, GeneratedContent{}); err == nil {
		t.Error("expected a repeated step to be rejected")
	}
	if got := Output[GeneratedContent](s1, StepGenerate).Content; got != "C" {
		t.Errorf("generate output = %q", got)
	}
	if _, err := Aggregate(s1); err == nil {
		t.Error("expected an incomplete chain to be rejected")
	}
}

func TestResultPoints(t *testing.T) {
	r := Result{KeyPoints: "a; b;  c"}
	if diff := cmp.Diff([]string{"a", "b", "c"}, r.Points()); diff != "" {
		t.Errorf("points (-want +got):\n%s", diff)
	}
	if len(r.Map()) != 6 {
		t.Errorf("Map has %d keys", len(r.Map()))
	}
}

func TestAsFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		step StepID
	}{
		{"step error", &StepError{Step: StepSynthesize, Err: errors.New("x")}, StepSynthesize},
		{"engine failure", &client.WorkflowExecutionError{Message: "step extract failed: activity extract_key_points failed"}, StepExtract},
		{"unknown", errors.New("no step"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cf *ChainFailure
			if !errors.As(AsFailure("T", tt.err), &cf) {
				t.Fatal("expected *ChainFailure")
			}
			if cf.Step != tt.step {
				t.Errorf("step = %q, want %q", cf.Step, tt.step)
			}
			if !errors.Is(cf, tt.err) {
				t.Error("failure does not wrap its cause")
			}
		})
	}
	if AsFailure("T", nil) != nil {
		t.Error("nil error must stay nil")
	}
}

const testQueue = "chain-test-queue"

func startWorker(t *testing.T, fake Completer) client.Client {
	t.Helper()
	return startWorkerOn(t, client.NewMemoryStore(nil), fake)
}

func startWorkerOn(t *testing.T, store client.Store, fake Completer) client.Client {
	t.Helper()
	c, err := client.NewClient(&client.Options{Store: store})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	w, err := worker.NewWorker(c, worker.Options{TaskQueue: testQueue, MaxConcurrentTasks: 4})
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	opts := Options{Model: "m", StepTimeout: time.Second, MaxAttempts: 3, InitialInterval: time.Millisecond}
	if err := Register(w, &Activities{LLM: fake}, opts); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("worker stopped with error: %v", err)
		}
	})
	return c
}

func execute(t *testing.T, c client.Client, id string, in Input) (Result, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return Execute(ctx, c, id, testQueue, in)
}

func TestWorkflow(t *testing.T) {
	fake := newScripted("C", "A", "S", "- p1\n- p2")
	c := startWorker(t, fake)

	got, err := execute(t, c, "chain-ok", Input{Topic: "T", Length: LengthShort})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := Result{Topic: "T", GeneratedContent: "C", ContentWordCount: "1", Analysis: "A", FinalSummary: "S", KeyPoints: "p1; p2"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	for _, system := range []string{generateSystem, analyzeSystem, synthesizeSystem, extractSystem} {
		if n := fake.count(system); n != 1 {
			t.Errorf("%q called %d times, want 1", system, n)
		}
	}
}

// lossyStore fails the first publication of every task of one activity.
type lossyStore struct {
	client.Store
	activity string

	mu   sync.Mutex
	lost map[int]bool
}

func (s *lossyStore) PublishTask(ctx context.Context, task api.Task) error {
	if at, ok := task.(*api.ActivityTask); ok && at.ActivityFn == s.activity {
		s.mu.Lock()
		first := !s.lost[at.Seq]
		s.lost[at.Seq] = true
		s.mu.Unlock()
		if first {
			return errors.New("nats: timeout")
		}
	}
	return s.Store.PublishTask(ctx, task)
}

func TestWorkflow_LostStepTaskRecovered(t *testing.T) {
	fake := newScripted("C", "A", "S", "- p")
	store := &lossyStore{Store: client.NewMemoryStore(nil), activity: ActivityAnalyze, lost: map[int]bool{}}
	c := startWorkerOn(t, store, fake)

	got, err := execute(t, c, "chain-lost-step", Input{Topic: "T"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := Result{Topic: "T", GeneratedContent: "C", ContentWordCount: "1", Analysis: "A", FinalSummary: "S", KeyPoints: "p"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	for _, system := range []string{generateSystem, analyzeSystem, synthesizeSystem, extractSystem} {
		if n := fake.count(system); n != 1 {
			t.Errorf("%q called %d times, want 1", system, n)
		}
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if !store.lost[2] {
		t.Error("analyze task was never published")
	}
}

func TestWorkflow_TransientFailureRetried(t *testing.T) {
	fake := newScripted("C", "A", "S", "p")
	fake.replies[analyzeSystem] = func(call int) (string, error) {
		if call < 3 {
			return "", &llm.APIError{StatusCode: http.StatusServiceUnavailable, Message: "overloaded"}
		}
		return "A", nil
	}
	c := startWorker(t, fake)

	got, err := execute(t, c, "chain-retry", Input{Topic: "T"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got.Analysis != "A" {
		t.Errorf("analysis = %q", got.Analysis)
	}
	if n := fake.count(analyzeSystem); n != 3 {
		t.Errorf("analyze called %d times, want 3", n)
	}
	if n := fake.count(generateSystem); n != 1 {
		t.Errorf("generate called %d times, want 1", n)
	}
}

func TestWorkflow_ExhaustedRetries(t *testing.T) {
	fake := newScripted("C", "A", "S", "p")
	fake.replies[analyzeSystem] = func(int) (string, error) {
		return "", &llm.APIError{StatusCode: http.StatusServiceUnavailable, Message: "overloaded"}
	}
	c := startWorker(t, fake)

	res, err := execute(t, c, "chain-exhausted", Input{Topic: "T"})
	var cf *ChainFailure
	if !errors.As(err, &cf) {
		t.Fatalf("got %v, want *ChainFailure", err)
	}
	if cf.Step != StepAnalyze {
		t.Errorf("failed step = %q, want analyze", cf.Step)
	}
	if diff := cmp.Diff(Result{}, res); diff != "" {
		t.Errorf("failed chain returned a partial result:\n%s", diff)
	}
	if n := fake.count(analyzeSystem); n != 3 {
		t.Errorf("analyze called %d times, want 3", n)
	}
	if n := fake.count(extractSystem); n != 0 {
		t.Errorf("extract called %d times, want 0", n)
	}
}

func TestWorkflow_PermanentErrorNotRetried(t *testing.T) {
	fake := newScripted("C", "A", "S", "p")
	fake.replies[generateSystem] = func(int) (string, error) {
		return "", &llm.APIError{StatusCode: http.StatusBadRequest, Message: "invalid model"}
	}
	c := startWorker(t, fake)

	_, err := execute(t, c, "chain-permanent", Input{Topic: "T"})
	var cf *ChainFailure
	if !errors.As(err, &cf) || cf.Step != StepGenerate {
		t.Fatalf("got %v, want a generate failure", err)
	}
	if n := fake.count(generateSystem); n != 1 {
		t.Errorf("generate called %d times, want 1", n)
	}
}

func TestWorkflow_ConcurrentChains(t *testing.T) {
	fake := newScripted("C", "A", "S", "- p")
	c := startWorker(t, fake)

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for i := range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			topic := fmt.Sprintf("topic-%d", i)
			res, err := execute(t, c, fmt.Sprintf("chain-%d", i), Input{Topic: topic})
			if err == nil && res.Topic != topic {
				err = fmt.Errorf("chain for %s returned topic %s", topic, res.Topic)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Error(err)
		}
	}
}

func TestDescribe(t *testing.T) {
	fake := newScripted("C", "A", "S", "- p")
	fake.replies[synthesizeSystem] = func(call int) (string, error) {
		if call == 1 {
			return "", &llm.APIError{StatusCode: http.StatusTooManyRequests, Message: "slow down"}
		}
		return "S", nil
	}
	c := startWorker(t, fake)

	if _, err := execute(t, c, "chain-describe", Input{Topic: "T", Length: LengthLong}); err != nil {
		t.Fatal(err)
	}
	events, err := c.GetHistory(context.Background(), "chain-describe")
	if err != nil {
		t.Fatal(err)
	}
	st, err := Describe("chain-describe", events)
	if err != nil {
		t.Fatal(err)
	}

	if st.Status != StatusCompleted || st.Topic != "T" || st.Length != LengthLong {
		t.Errorf("status = %+v", st)
	}
	if st.Result == nil || st.Result.KeyPoints != "p" {
		t.Errorf("result = %+v", st.Result)
	}
	synth := st.Steps[2]
	if synth.Step != StepSynthesize || synth.Status != StatusCompleted || synth.Attempts != 2 {
		t.Errorf("synthesize step = %+v", synth)
	}
	if len(synth.Retries) != 1 || !strings.Contains(synth.Retries[0].Error, "slow down") {
		t.Errorf("retries = %+v", synth.Retries)
	}
	for _, s := range st.Steps {
		if s.Status != StatusCompleted {
			t.Errorf("step %s is %s", s.Step, s.Status)
		}
	}
}

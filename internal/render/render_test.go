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

package render

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/ngnhng/durableai/internal/chain"
)

func TestResult(t *testing.T) {
	var buf bytes.Buffer
	Result(&buf, chain.Result{
		Topic:            "Go",
		GeneratedContent: "Go is a language.",
		ContentWordCount: "4",
		Analysis:         "positive",
		FinalSummary:     "Short.",
		KeyPoints:        "simple; fast",
	})
	out := buf.String()
	for _, want := range []string{"Topic", "Go is a language.", "Word Count", "positive", "Short.", "• simple", "• fast"} {
		if !strings.Contains(out, want) {
			t.Errorf("output misses %q:\n%s", want, out)
		}
	}
}

func TestFailure(t *testing.T) {
	var buf bytes.Buffer
	Failure(&buf, errors.New("step analyze failed"))
	if !strings.Contains(buf.String(), "step analyze failed") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestSteps(t *testing.T) {
	var buf bytes.Buffer
	Steps(&buf, chain.Status{
		WorkflowID: "wf-1",
		Status:     chain.StatusCompleted,
		Steps: []chain.StepStatus{
			{Step: chain.StepGenerate, Status: chain.StatusCompleted, Attempts: 2, Retries: []chain.Retry{{Attempt: 1, Error: "status 503", NextRetryDelay: 1000}}},
			{Step: chain.StepAnalyze, Status: chain.StatusFailed, Attempts: 1, Error: "bad key"},
		},
	})
	out := buf.String()
	for _, want := range []string{"Run wf-1: completed", "generate", "attempts=2", "retry after attempt 1 (1000ms): status 503", "analyze", "bad key"} {
		if !strings.Contains(out, want) {
			t.Errorf("output misses %q:\n%s", want, out)
		}
	}
}

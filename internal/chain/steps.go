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

import "github.com/ngnhng/durableai/internal/llm"

// Step is one remote call of the chain. Build reads only the outputs of
// earlier steps; Project turns the reply text into the step's output.
type Step struct {
	ID StepID
	// Activity is the name the step's call is registered under.
	Activity string
	Build    func(State) llm.Request
	Project  func(State, string) any
}

const (
	ActivityGenerate   = "generate_content"
	ActivityAnalyze    = "analyze_content"
	ActivitySynthesize = "summarize_analysis"
	ActivityExtract    = "extract_key_points"
)

// Steps returns the four steps in Order, addressing model.
func Steps(model string) []Step {
	return []Step{
		{
			ID:       StepGenerate,
			Activity: ActivityGenerate,
			Build: func(s State) llm.Request {
				in := s.Input()
				return generateRequest(model, in.Topic, in.Length)
			},
			Project: func(_ State, text string) any {
				return GeneratedContent{Content: text, WordCount: WordCount(text)}
			},
		},
		{
			ID:       StepAnalyze,
			Activity: ActivityAnalyze,
			Build: func(s State) llm.Request {
				return analyzeRequest(model, Output[GeneratedContent](s, StepGenerate).Content)
			},
			Project: func(_ State, text string) any {
				return Analysis{Analysis: text}
			},
		},
		{
			ID:       StepSynthesize,
			Activity: ActivitySynthesize,
			Build: func(s State) llm.Request {
				return synthesizeRequest(model,
					Output[GeneratedContent](s, StepGenerate).Content,
					Output[Analysis](s, StepAnalyze).Analysis)
			},
			Project: func(s State, text string) any {
				content := Output[GeneratedContent](s, StepGenerate).Content
				analysis := Output[Analysis](s, StepAnalyze).Analysis
				return Synthesis{
					FinalSummary:          text,
					OriginalContentLength: runeLen(content),
					AnalysisLength:        runeLen(analysis),
				}
			},
		},
		{
			ID:       StepExtract,
			Activity: ActivityExtract,
			Build: func(s State) llm.Request {
				return extractRequest(model, Combine(
					Output[GeneratedContent](s, StepGenerate).Content,
					Output[Analysis](s, StepAnalyze).Analysis,
					Output[Synthesis](s, StepSynthesize).FinalSummary,
				))
			},
			Project: func(_ State, text string) any {
				return ExtractKeyPoints(text)
			},
		},
	}
}

// Executor performs the remote call of one step.
type Executor interface {
	Execute(step Step, req llm.Request) (string, error)
}

// Run drives steps in order against ex. The first failing step aborts the
// chain with a *StepError.
func Run(in Input, steps []Step, ex Executor) (Result, error) {
	state := NewState(in.Normalized())
	for _, step := range steps {
		text, err := ex.Execute(step, step.Build(state))
		if err != nil {
			return Result{}, &StepError{Step: step.ID, Err: err}
		}
		state, err = state.With(step.ID, step.Project(state, text))
		if err != nil {
			return Result{}, err
		}
	}
	return Aggregate(state)
}

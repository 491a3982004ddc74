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
	"fmt"
	"maps"
	"slices"
)

// State holds the outputs of the steps completed so far. Values are never
// modified: With returns a new State and leaves the receiver untouched.
type State struct {
	input   Input
	outputs map[StepID]any
	done    []StepID
}

func NewState(in Input) State {
	return State{input: in, outputs: map[StepID]any{}}
}

func (s State) Input() Input { return s.input }

// Completed lists the finished steps in completion order.
func (s State) Completed() []StepID { return slices.Clone(s.done) }

// With records the output of id. Steps must complete in Order and only once.
func (s State) With(id StepID, out any) (State, error) {
	if len(s.done) >= len(Order) {
		return s, fmt.Errorf("chain already complete, cannot record %s", id)
	}
	if next := Order[len(s.done)]; id != next {
		return s, fmt.Errorf("step %s completed out of order, expected %s", id, next)
	}
	outputs := maps.Clone(s.outputs)
	outputs[id] = out
	return State{
		input:   s.input,
		outputs: outputs,
		done:    append(slices.Clone(s.done), id),
	}, nil
}

// Output returns the recorded output of id, or the zero T when the step has
// not run or produced another type.
func Output[T any](s State, id StepID) T {
	v, _ := s.outputs[id].(T)
	return v
}

// Aggregate assembles the result of a finished chain.
func Aggregate(s State) (Result, error) {
	if len(s.done) != len(Order) {
		return Result{}, fmt.Errorf("chain incomplete: %d of %d steps done", len(s.done), len(Order))
	}
	gen := Output[GeneratedContent](s, StepGenerate)
	return Result{
		Topic:            s.input.Topic,
		GeneratedContent: gen.Content,
		ContentWordCount: fmt.Sprint(gen.WordCount),
		Analysis:         Output[Analysis](s, StepAnalyze).Analysis,
		FinalSummary:     Output[Synthesis](s, StepSynthesize).FinalSummary,
		KeyPoints:        joinPoints(Output[[]string](s, StepExtract)),
	}, nil
}

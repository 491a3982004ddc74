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
	"errors"
	"fmt"
	"strings"

	"github.com/ngnhng/durableai/sdk/client"
)

// StepError is a step that failed after the execution layer gave up on it.
type StepError struct {
	Step StepID
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func (e *StepError) ErrorType() string { return "ChainStepError" }

// ChainFailure aborts a chain. No partial result accompanies it.
type ChainFailure struct {
	Topic string
	Step  StepID
	Cause error
}

func (e *ChainFailure) Error() string {
	if e.Step == "" {
		return fmt.Sprintf("chain %q failed: %v", e.Topic, e.Cause)
	}
	return fmt.Sprintf("chain %q failed at step %s: %v", e.Topic, e.Step, e.Cause)
}

func (e *ChainFailure) Unwrap() error { return e.Cause }

// AsFailure turns the error of a chain run into a *ChainFailure. Failures
// coming back from the engine only carry the message, so the step is read
// from it.
func AsFailure(topic string, err error) error {
	if err == nil {
		return nil
	}
	var cf *ChainFailure
	if errors.As(err, &cf) {
		return cf
	}
	var se *StepError
	if errors.As(err, &se) {
		return &ChainFailure{Topic: topic, Step: se.Step, Cause: err}
	}
	var we *client.WorkflowExecutionError
	if errors.As(err, &we) {
		return &ChainFailure{Topic: topic, Step: stepFromMessage(we.Message), Cause: err}
	}
	return &ChainFailure{Topic: topic, Cause: err}
}

func stepFromMessage(msg string) StepID {
	rest, ok := strings.CutPrefix(msg, "step ")
	if !ok {
		return ""
	}
	name, _, ok := strings.Cut(rest, " failed")
	if !ok {
		return ""
	}
	for _, id := range Order {
		if string(id) == name {
			return id
		}
	}
	return ""
}

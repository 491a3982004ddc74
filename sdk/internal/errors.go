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

package internal

import (
	"errors"
	"fmt"
	"reflect"
	"time"
)

var (
	ErrWorkflowAlreadyStarted = errors.New("workflow already started")
	ErrInvalidWorkflowID      = errors.New("invalid workflow id")
	ErrWorkflowNotFound       = errors.New("workflow not found")
)

// errorBlockingFuture is thrown in a panic when Get is called on a Future that
// is not resolved yet. It unwinds the workflow function the way a coroutine
// yields; the worker runs it again once the future can resolve.
type errorBlockingFuture struct{}

func (errorBlockingFuture) Error() string { return "blocking_future" }

// nondeterminismError means the workflow code no longer matches its history.
type nondeterminismError struct {
	Seq      int
	Recorded string
	Called   string
}

func (e *nondeterminismError) Error() string {
	return fmt.Sprintf("nondeterministic workflow: call %d was %s in history but %s on replay", e.Seq, e.Recorded, e.Called)
}

// NonRetryableError stops the retry loop regardless of the retry policy.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

func (e *NonRetryableError) Error() string { return e.Err.Error() }
func (e *NonRetryableError) Unwrap() error { return e.Err }

func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return errors.As(err, &nre)
}

// TimeoutError is returned when an attempt outlives its StartToClose timeout.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("activity attempt timed out after %s", e.Timeout)
}

// PanicError wraps a value recovered from an activity.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string { return fmt.Sprintf("activity panic: %v", e.Value) }

// ActivityError is what a workflow sees when an activity fails for good.
type ActivityError struct {
	ActivityName string
	WorkflowID   string
	Seq          int
	Attempt      int32
	ErrorType    string
	Message      string
	NonRetryable bool
}

func (e *ActivityError) Error() string {
	return fmt.Sprintf("activity %s (workflow=%s, attempt=%d) failed: %s", e.ActivityName, e.WorkflowID, e.Attempt, e.Message)
}

// WorkflowExecutionError is returned by WorkflowRun.Get for a failed run.
type WorkflowExecutionError struct {
	WorkflowID string
	ErrorType  string
	Message    string
}

func (e *WorkflowExecutionError) Error() string {
	return fmt.Sprintf("workflow %s failed: %s", e.WorkflowID, e.Message)
}

type RegistrationError struct {
	Name   string
	Reason string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("cannot register %q: %s", e.Name, e.Reason)
}

type errorTyper interface {
	ErrorType() string
}

// errorType names the outermost error for history records.
func errorType(err error) string {
	if err == nil {
		return ""
	}
	if t, ok := err.(errorTyper); ok {
		return t.ErrorType()
	}
	return reflect.TypeOf(err).String()
}

// errorTypes lists the type names of every error in the chain.
func errorTypes(err error) []string {
	var names []string
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		names = append(names, errorType(e))
		if t, ok := e.(errorTyper); ok {
			// also match the Go type behind a custom name
			if name := reflect.TypeOf(e).String(); name != t.ErrorType() {
				names = append(names, name)
			}
		}
		switch u := e.(type) {
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		}
	}
	walk(err)
	return names
}

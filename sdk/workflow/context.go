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

package workflow

import (
	"log/slog"

	"github.com/ngnhng/durableai/sdk/internal"
)

// Context is the workflow execution context that provides deterministic guarantees.
//
// Context extends context.Context with workflow-specific operations. All workflow
// operations must go through this context to maintain determinism during replay.
//
// Important: Workflow code must be deterministic. Do not:
//   - Perform I/O operations directly
//   - Generate random numbers
//   - Access current time directly
//   - Use goroutines
//
// Use activities for all non-deterministic operations.
type Context = internal.Context

// Future is the pending result of an activity call.
type Future = internal.Future

// ExecuteActivity schedules an activity. activity is either a function
// registered with the worker or the name it was registered under; args must
// survive a round trip through the configured serde.
//
// Calls are matched to history by their order in the run, so the sequence of
// ExecuteActivity calls must be the same on every replay.
func ExecuteActivity(ctx Context, activity any, args ...any) Future {
	return ctx.ExecuteActivity(activity, args...)
}

// GetLogger returns a logger tagged with the workflow id and name.
func GetLogger(ctx Context) *slog.Logger {
	return ctx.Logger()
}

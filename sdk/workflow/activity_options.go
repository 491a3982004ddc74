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
	"github.com/ngnhng/durableai/sdk/internal"
)

// ActivityOptions configures the activities scheduled through a context.
//
// Example:
//
//	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
//		StartToCloseTimeout: 30 * time.Second,
//		RetryPolicy: &workflow.RetryPolicy{
//			InitialInterval:    time.Second,
//			BackoffCoefficient: 2.0,
//			MaximumAttempts:    3,
//		},
//	})
type ActivityOptions = internal.ActivityOptions

// RetryPolicy defines how activities are retried on failure.
//
// Retries use exponential backoff. An activity stops retrying when:
//   - MaximumAttempts is reached
//   - the error is a NonRetryableError or its type is in NonRetryableErrorTypes
//   - the next attempt would start after ScheduleToCloseTimeout
type RetryPolicy = internal.RetryPolicy

func WithActivityOptions(ctx Context, opts ActivityOptions) Context {
	return internal.WithActivityOptions(ctx, opts)
}

func GetActivityOptions(ctx Context) ActivityOptions {
	return internal.GetActivityOptions(ctx)
}

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
	"time"

	"github.com/ngnhng/durableai/api"
)

type activityOptionsKey struct{}

type ActivityOptions struct {
	// TaskQueue routes the activity to workers polling that queue. Defaults to
	// the workflow's own queue.
	TaskQueue string

	// ScheduleToCloseTimeout is the total time allowed for the activity
	// including retries. Zero means unlimited.
	ScheduleToCloseTimeout time.Duration

	// StartToCloseTimeout bounds a single attempt. Expiry fails the attempt
	// with a retryable TimeoutError.
	StartToCloseTimeout time.Duration

	RetryPolicy *RetryPolicy
}

type RetryPolicy struct {
	// Backoff interval for the first retry. Defaults to 1s.
	InitialInterval time.Duration

	// Multiplier applied to the interval after each retry. Defaults to 2.0.
	BackoffCoefficient float64

	// Cap on the interval. Defaults to 100x InitialInterval.
	MaximumInterval time.Duration

	// MaximumAttempts counts the first attempt. Zero means unlimited, leaving
	// ScheduleToCloseTimeout to stop the retries.
	MaximumAttempts int32

	// Error type names that stop retrying. Matched against every error in the
	// chain, using ErrorType() when present and the Go type name otherwise.
	NonRetryableErrorTypes []string
}

// WithActivityOptions returns a workflow context carrying opts for the
// activities it schedules.
func WithActivityOptions(ctx Context, opts ActivityOptions) Context {
	return ctx.WithValue(activityOptionsKey{}, opts)
}

func GetActivityOptions(ctx Context) ActivityOptions {
	opts, _ := ctx.Value(activityOptionsKey{}).(ActivityOptions)
	return opts
}

func convertRetryPolicyToAPI(rp *RetryPolicy) *api.RetryPolicy {
	if rp == nil {
		return nil
	}
	return &api.RetryPolicy{
		InitialIntervalMs:      rp.InitialInterval.Milliseconds(),
		BackoffCoefficient:     rp.BackoffCoefficient,
		MaximumIntervalMs:      rp.MaximumInterval.Milliseconds(),
		MaximumAttempts:        rp.MaximumAttempts,
		NonRetryableErrorTypes: rp.NonRetryableErrorTypes,
	}
}

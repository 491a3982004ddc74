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
	"math"
	"slices"
	"time"

	"github.com/ngnhng/durableai/api"
)

const (
	defaultInitialInterval    = time.Second
	defaultBackoffCoefficient = 2.0
	defaultMaxIntervalFactor  = 100
)

type retryDecision struct {
	retry  bool
	delay  time.Duration
	reason string
}

// evaluateRetryDecision decides whether a failed attempt gets another one.
func evaluateRetryDecision(task *api.ActivityTask, err error, now time.Time) retryDecision {
	policy := task.RetryPolicy
	if policy == nil {
		return retryDecision{reason: "no retry policy"}
	}

	if policy.MaximumAttempts > 0 && task.Attempt >= policy.MaximumAttempts {
		return retryDecision{reason: "maximum attempts reached"}
	}

	if IsNonRetryable(err) {
		return retryDecision{reason: "non-retryable error"}
	}
	if len(policy.NonRetryableErrorTypes) > 0 {
		for _, name := range errorTypes(err) {
			if slices.Contains(policy.NonRetryableErrorTypes, name) {
				return retryDecision{reason: "non-retryable error type " + name}
			}
		}
	}

	delay := calculateRetryDelay(policy, task.Attempt)
	if task.ScheduleToCloseTimeoutMs > 0 {
		elapsed := now.UnixMilli() - task.ScheduledAtMs
		if elapsed+delay.Milliseconds() > task.ScheduleToCloseTimeoutMs {
			return retryDecision{reason: "schedule-to-close timeout would be exceeded"}
		}
	}

	return retryDecision{retry: true, delay: delay}
}

// calculateRetryDelay is initial * coefficient^(attempt-1), capped.
func calculateRetryDelay(policy *api.RetryPolicy, attempt int32) time.Duration {
	if policy == nil {
		return defaultInitialInterval
	}

	initialInterval := time.Duration(policy.InitialIntervalMs) * time.Millisecond
	if initialInterval <= 0 {
		initialInterval = defaultInitialInterval
	}

	backoffCoefficient := policy.BackoffCoefficient
	if backoffCoefficient < 1 {
		backoffCoefficient = defaultBackoffCoefficient
	}

	maxInterval := time.Duration(policy.MaximumIntervalMs) * time.Millisecond
	if maxInterval <= 0 {
		maxInterval = defaultMaxIntervalFactor * initialInterval
	}

	next := float64(initialInterval) * math.Pow(backoffCoefficient, float64(attempt-1))
	if next > float64(maxInterval) {
		return maxInterval
	}
	return time.Duration(next)
}

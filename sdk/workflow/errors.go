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

type (
	// NonRetryableError stops retries regardless of the policy.
	NonRetryableError = internal.NonRetryableError
	// TimeoutError fails an attempt that outlived StartToCloseTimeout. It is
	// retryable.
	TimeoutError = internal.TimeoutError
	PanicError   = internal.PanicError
	// ActivityError is returned by Future.Get when the activity failed for good.
	ActivityError = internal.ActivityError
)

func NewNonRetryableError(err error) error {
	return internal.NewNonRetryableError(err)
}

func IsNonRetryable(err error) bool {
	return internal.IsNonRetryable(err)
}

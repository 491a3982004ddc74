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

// Package workflow is the API available inside workflow functions.
//
// A workflow is a function taking a workflow.Context first and returning
// (error) or (value, error):
//
//	func Chain(ctx workflow.Context, topic string) (string, error) {
//		ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
//			StartToCloseTimeout: 30 * time.Second,
//			RetryPolicy:         &workflow.RetryPolicy{MaximumAttempts: 3},
//		})
//		var text string
//		if err := workflow.ExecuteActivity(ctx, Generate, topic).Get(ctx, &text); err != nil {
//			return "", err
//		}
//		return text, nil
//	}
//
// # Replay
//
// The worker runs the function again from the start every time an activity
// resolves. Completed calls return their recorded result, so workflow code
// must issue the same activity calls in the same order on every run: no I/O,
// no clocks, no randomness, no goroutines. Those belong in activities.
package workflow

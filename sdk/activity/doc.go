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

// Package activity holds helpers for activity functions.
//
// An activity takes a context.Context first and returns (error) or
// (value, error). The context carries the attempt deadline and GetInfo:
//
//	func Generate(ctx context.Context, topic string) (string, error) {
//		info := activity.GetInfo(ctx)
//		slog.InfoContext(ctx, "generating", "attempt", info.Attempt)
//		...
//	}
//
// Returning workflow.NewNonRetryableError(err) ends the retries early.
package activity

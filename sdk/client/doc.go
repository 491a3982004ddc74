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

// Package client starts workflows and waits for their results.
//
// A client talks to a Store: NATS JetStream in production, or the in-memory
// store for tests and single-process runs:
//
//	store := client.NewMemoryStore(nil)
//	c, _ := client.NewClient(&client.Options{Store: store})
package client

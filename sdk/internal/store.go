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
	"context"
	"errors"
	"iter"

	"github.com/ngnhng/durableai/api"
)

var (
	// ErrRevisionMismatch means another writer appended to the history since
	// it was loaded. The caller reloads and tries again.
	ErrRevisionMismatch = errors.New("history revision mismatch")

	ErrResultNotFound = errors.New("workflow result not found")
)

// Store persists workflow histories, carries tasks between clients and
// workers, and publishes final results.
type Store interface {
	// LoadHistory returns the events of a workflow in append order together
	// with the revision to pass to AppendHistory. Unknown workflows yield no
	// events and revision 0.
	LoadHistory(ctx context.Context, id api.WorkflowID) ([]api.WorkflowEvent, uint64, error)
	AppendHistory(ctx context.Context, id api.WorkflowID, expected uint64, events ...api.WorkflowEvent) (uint64, error)

	PublishTask(ctx context.Context, task api.Task) error
	ReceiveTask(ctx context.Context, queue string, includeWorkflow, includeActivity bool) (iter.Seq[*TaskToken], error)

	PutResult(ctx context.Context, id api.WorkflowID, data []byte) error
	// WatchResult blocks until a result exists for id or ctx is done.
	WatchResult(ctx context.Context, id api.WorkflowID) ([]byte, error)

	Close() error
}

type TaskToken struct {
	Task api.Task
	Ack  func(context.Context) error
	Nak  func(context.Context) error
	Term func(context.Context) error
}

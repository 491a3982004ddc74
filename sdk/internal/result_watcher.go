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
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/ngnhng/durableai/api"
)

// WatchResult waits for the result record of a workflow.
func (s *NATSStore) WatchResult(ctx context.Context, id api.WorkflowID) ([]byte, error) {
	watcher, err := s.results.Watch(ctx, id.String())
	if err != nil {
		return nil, fmt.Errorf("could not start KV watcher for key '%s': %w", id, err)
	}
	defer watcher.Stop()
	s.Logger().Debug("watching for workflow result", "workflow_id", id)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case update, ok := <-watcher.Updates():
			if !ok {
				return nil, fmt.Errorf("%w: watcher for %s stopped", ErrResultNotFound, id)
			}
			// nil marks the end of the initial values
			if update == nil {
				continue
			}
			if update.Operation() == jetstream.KeyValuePut {
				s.Logger().Debug("received workflow result", "workflow_id", id)
				return update.Value(), nil
			}
		}
	}
}

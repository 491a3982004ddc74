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

package worker

import (
	"context"

	"github.com/ngnhng/durableai/sdk/client"
	"github.com/ngnhng/durableai/sdk/internal"
)

type Worker interface {
	Registry
	// Run starts the worker and blocks until the context is canceled or an error occurs.
	// The worker will continuously poll for and process workflow and activity tasks.
	Run(ctx context.Context) error
}

type Registry interface {
	WorkflowRegistry
	ActivityRegistry
}

type (
	WorkflowRegistry       = internal.WorkflowRegistry
	ActivityRegistry       = internal.ActivityRegistry
	Options                = internal.WorkerOptions
	WorkflowRegisterOption = internal.WorkflowRegisterOption
	ActivityRegisterOption = internal.ActivityRegisterOption
	// RegistrationError rejects a duplicate name or a bad signature.
	RegistrationError = internal.RegistrationError
)

func NewWorker(c client.Client, options Options) (Worker, error) {
	return internal.NewWorker(c, options)
}
